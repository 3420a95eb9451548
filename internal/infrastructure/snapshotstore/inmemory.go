package snapshotstore

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/lllypuk/sagaflow/internal/application/appcore"
)

// storedSnapshot couples a snapshot with its soft-delete marker.
type storedSnapshot struct {
	snapshot appcore.Snapshot
	deleted  bool
}

// InMemorySnapshotStore реализует appcore.SnapshotStore в памяти для тестирования
type InMemorySnapshotStore struct {
	mu sync.RWMutex
	// keyed by aggregateID, then version
	snapshots map[string]map[int]*storedSnapshot
}

// NewInMemorySnapshotStore создает новый in-memory snapshot store
func NewInMemorySnapshotStore() *InMemorySnapshotStore {
	return &InMemorySnapshotStore{
		snapshots: make(map[string]map[int]*storedSnapshot),
	}
}

// GetSnapshot возвращает снапшот заданной версии или последний
func (s *InMemorySnapshotStore) GetSnapshot(
	_ context.Context,
	aggregateID string,
	version *int,
) (appcore.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	versions, exists := s.snapshots[aggregateID]
	if !exists {
		return appcore.Snapshot{}, appcore.ErrSnapshotNotFound
	}

	if version != nil {
		stored, ok := versions[*version]
		if !ok || stored.deleted {
			return appcore.Snapshot{}, appcore.ErrSnapshotNotFound
		}
		return stored.snapshot, nil
	}

	var latest *storedSnapshot
	for _, stored := range versions {
		if stored.deleted {
			continue
		}
		if latest == nil || stored.snapshot.Version > latest.snapshot.Version {
			latest = stored
		}
	}
	if latest == nil {
		return appcore.Snapshot{}, appcore.ErrSnapshotNotFound
	}

	return latest.snapshot, nil
}

// SaveSnapshot выполняет upsert по ключу (aggregateID, version)
func (s *InMemorySnapshotStore) SaveSnapshot(_ context.Context, snapshot appcore.Snapshot) error {
	if snapshot.AggregateID == "" {
		return errors.New("snapshot aggregate id is required")
	}
	if snapshot.Version < 1 {
		return appcore.ErrInvalidVersion
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if snapshot.Timestamp.IsZero() {
		snapshot.Timestamp = time.Now().UTC()
	}

	versions, exists := s.snapshots[snapshot.AggregateID]
	if !exists {
		versions = make(map[int]*storedSnapshot)
		s.snapshots[snapshot.AggregateID] = versions
	}

	versions[snapshot.Version] = &storedSnapshot{snapshot: snapshot}
	return nil
}

// DeleteSnapshot помечает снапшоты удаленными (soft delete)
func (s *InMemorySnapshotStore) DeleteSnapshot(
	_ context.Context,
	aggregateID string,
	version *int,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	versions, exists := s.snapshots[aggregateID]
	if !exists {
		return appcore.ErrSnapshotNotFound
	}

	matched := false
	for v, stored := range versions {
		if stored.deleted {
			continue
		}
		if version != nil && v != *version {
			continue
		}
		stored.deleted = true
		matched = true
	}
	if !matched {
		return appcore.ErrSnapshotNotFound
	}

	return nil
}
