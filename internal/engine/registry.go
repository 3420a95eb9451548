package engine

import "github.com/lllypuk/sagaflow/internal/domain/saga"

// slot holds one registered saga and its persistence version counter.
type slot struct {
	saga    saga.Saga
	version int
}

// registry is a slot table of currently-registered sagas keyed by saga id.
// It is not safe for concurrent use; the engine mutex guards all access.
type registry struct {
	slots map[string]*slot
}

func newRegistry() *registry {
	return &registry{slots: make(map[string]*slot)}
}

func (r *registry) insert(s saga.Saga) *slot {
	sl := &slot{saga: s}
	r.slots[s.SagaID()] = sl
	return sl
}

func (r *registry) get(sagaID string) (*slot, bool) {
	sl, ok := r.slots[sagaID]
	return sl, ok
}

func (r *registry) remove(sagaID string) {
	delete(r.slots, sagaID)
}

func (r *registry) contains(sagaID string) bool {
	_, ok := r.slots[sagaID]
	return ok
}

func (r *registry) len() int {
	return len(r.slots)
}

func (r *registry) list() []*slot {
	out := make([]*slot, 0, len(r.slots))
	for _, sl := range r.slots {
		out = append(out, sl)
	}
	return out
}
