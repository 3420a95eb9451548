package eventstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/lllypuk/sagaflow/internal/application/appcore"
	"github.com/lllypuk/sagaflow/internal/domain/event"
	"github.com/lllypuk/sagaflow/internal/domain/uuid"
)

// InMemoryEventStore реализует appcore.EventStore в памяти для тестирования
type InMemoryEventStore struct {
	mu     sync.RWMutex
	events map[string][]event.DomainEvent
}

// NewInMemoryEventStore создает новый in-memory event store
func NewInMemoryEventStore() *InMemoryEventStore {
	return &InMemoryEventStore{
		events: make(map[string][]event.DomainEvent),
	}
}

// versionedEvent оборачивает событие с версией, присвоенной при записи
type versionedEvent struct {
	event.DomainEvent

	eventID string
	version int
}

func (e *versionedEvent) EventID() string { return e.eventID }
func (e *versionedEvent) Version() int    { return e.version }

// AppendEvents сохраняет события для агрегата с оптимистичной блокировкой
func (s *InMemoryEventStore) AppendEvents(
	_ context.Context,
	aggregateID string,
	events []event.DomainEvent,
	expectedVersion int,
) (appcore.AppendResult, error) {
	if len(events) == 0 {
		return appcore.AppendResult{}, appcore.ErrNoEvents
	}
	if expectedVersion < 0 {
		return appcore.AppendResult{}, appcore.ErrInvalidVersion
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Проверка optimistic locking
	currentVersion := len(s.events[aggregateID])
	if currentVersion != expectedVersion {
		return appcore.AppendResult{Success: false, Err: appcore.ErrConcurrencyConflict}, nil
	}

	// Присваиваем версии expectedVersion+1.. и сохраняем атомарно
	for i, e := range events {
		eventID := e.EventID()
		if eventID == "" {
			eventID = uuid.NewUUID().String()
		}
		s.events[aggregateID] = append(s.events[aggregateID], &versionedEvent{
			DomainEvent: e,
			eventID:     eventID,
			version:     expectedVersion + i + 1,
		})
	}

	return appcore.AppendResult{
		Success:     true,
		NewVersion:  expectedVersion + len(events),
		EventsCount: len(events),
	}, nil
}

// GetEvents загружает события агрегата в порядке возрастания версий
func (s *InMemoryEventStore) GetEvents(
	_ context.Context,
	aggregateID string,
	fromVersion, toVersion int,
) ([]event.DomainEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []event.DomainEvent
	for _, e := range s.events[aggregateID] {
		if fromVersion > 0 && e.Version() < fromVersion {
			continue
		}
		if toVersion > 0 && e.Version() > toVersion {
			continue
		}
		result = append(result, e)
	}

	return result, nil
}

// GetEventStream возвращает события вместе с метаданными потока
func (s *InMemoryEventStore) GetEventStream(
	ctx context.Context,
	aggregateID string,
	fromVersion, toVersion int,
) (event.Stream, error) {
	events, err := s.GetEvents(ctx, aggregateID, fromVersion, toVersion)
	if err != nil {
		return event.Stream{}, err
	}

	currentVersion, err := s.GetCurrentVersion(ctx, aggregateID)
	if err != nil {
		return event.Stream{}, err
	}

	stream := event.Stream{
		AggregateID: aggregateID,
		Events:      events,
		FromVersion: fromVersion,
		ToVersion:   toVersion,
		TotalEvents: len(events),
	}
	switch {
	case len(events) > 0:
		stream.HasMore = events[len(events)-1].Version() < currentVersion
	case toVersion > 0:
		// Пустая страница: события после верхней границы всё ещё существуют.
		stream.HasMore = toVersion < currentVersion
	}

	return stream, nil
}

// GetAllEvents возвращает события всех агрегатов по возрастанию времени
func (s *InMemoryEventStore) GetAllEvents(
	_ context.Context,
	fromTime, toTime time.Time,
	limit int,
) ([]event.DomainEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []event.DomainEvent
	for _, events := range s.events {
		for _, e := range events {
			if !fromTime.IsZero() && e.OccurredAt().Before(fromTime) {
				continue
			}
			if !toTime.IsZero() && e.OccurredAt().After(toTime) {
				continue
			}
			result = append(result, e)
		}
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].OccurredAt().Before(result[j].OccurredAt())
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}

	return result, nil
}

// GetCurrentVersion возвращает текущую версию агрегата
func (s *InMemoryEventStore) GetCurrentVersion(_ context.Context, aggregateID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.events[aggregateID]), nil
}

// Exists проверяет наличие агрегата
func (s *InMemoryEventStore) Exists(_ context.Context, aggregateID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.events[aggregateID]) > 0, nil
}

// GetStatistics возвращает статистику хранилища
func (s *InMemoryEventStore) GetStatistics(
	_ context.Context,
	aggregateID string,
) (appcore.StoreStatistics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := appcore.StoreStatistics{
		ByType:      make(map[string]int64),
		ByAggregate: make(map[string]int64),
	}

	for id, events := range s.events {
		if aggregateID != "" && id != aggregateID {
			continue
		}
		if len(events) == 0 {
			continue
		}
		stats.AggregateCount++
		for _, e := range events {
			stats.TotalEvents++
			stats.ByType[e.EventType()]++
			stats.ByAggregate[id]++
		}
	}

	return stats, nil
}

// Clear очищает все события (для тестов)
func (s *InMemoryEventStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = make(map[string][]event.DomainEvent)
}
