package sagastore

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/lllypuk/sagaflow/internal/application/appcore"
	"github.com/lllypuk/sagaflow/internal/domain/saga"
)

// InMemorySagaStateStore хранит снапшоты саг в памяти.
// Используется в тестах и при локальной разработке.
type InMemorySagaStateStore struct {
	mu        sync.RWMutex
	snapshots map[string]saga.Snapshot
}

// NewInMemorySagaStateStore создает новый in-memory Saga State Store
func NewInMemorySagaStateStore() *InMemorySagaStateStore {
	return &InMemorySagaStateStore{
		snapshots: make(map[string]saga.Snapshot),
	}
}

// Save выполняет upsert снапшота по saga_id
func (s *InMemorySagaStateStore) Save(_ context.Context, snapshot saga.Snapshot) error {
	if snapshot.SagaID == "" {
		return errors.New("saga id is required")
	}

	if snapshot.Timestamp.IsZero() {
		snapshot.Timestamp = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshots[snapshot.SagaID] = snapshot

	return nil
}

// GetByID возвращает последний снапшот саги
func (s *InMemorySagaStateStore) GetByID(_ context.Context, sagaID string) (saga.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot, ok := s.snapshots[sagaID]
	if !ok {
		return saga.Snapshot{}, appcore.ErrSagaNotFound
	}

	return snapshot, nil
}

// Query возвращает страницу снапшотов с фильтром по статусу
func (s *InMemorySagaStateStore) Query(_ context.Context, filter appcore.SagaFilter) (appcore.SagaPage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]saga.Snapshot, 0, len(s.snapshots))
	for _, snapshot := range s.snapshots {
		if filter.Status != nil && snapshot.Status != *filter.Status {
			continue
		}
		matched = append(matched, snapshot)
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].Timestamp.Before(matched[j].Timestamp)
	})

	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultQueryLimit
	}
	if limit > MaxQueryLimit {
		limit = MaxQueryLimit
	}

	total := int64(len(matched))

	start := filter.Offset
	if start > len(matched) {
		start = len(matched)
	}

	end := start + limit
	if end > len(matched) {
		end = len(matched)
	}

	return appcore.SagaPage{
		Items:  matched[start:end],
		Total:  total,
		Offset: filter.Offset,
		Limit:  limit,
	}, nil
}

// Cleanup удаляет снапшоты старше указанной даты
func (s *InMemorySagaStateStore) Cleanup(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for id, snapshot := range s.snapshots {
		if snapshot.Timestamp.Before(before) {
			delete(s.snapshots, id)
			deleted++
		}
	}

	return deleted, nil
}

// Clear удаляет все снапшоты. Только для тестов.
func (s *InMemorySagaStateStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshots = make(map[string]saga.Snapshot)
}
