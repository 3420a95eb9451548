package eventstore

import (
	"encoding/json"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/lllypuk/sagaflow/internal/domain/event"
	"github.com/lllypuk/sagaflow/internal/domain/uuid"
)

// EventDocument представляет документ события в MongoDB
type EventDocument struct {
	ID bson.ObjectID `bson:"_id,omitempty"`

	EventID       string                `bson:"event_id"`
	AggregateID   string                `bson:"aggregate_id"`
	AggregateType string                `bson:"aggregate_type"`
	EventType     string                `bson:"event_type"`
	Version       int                   `bson:"version"`
	Data          bson.M                `bson:"data"`
	Metadata      EventMetadataDocument `bson:"metadata"`
	OccurredAt    time.Time             `bson:"occurred_at"`
	CreatedAt     time.Time             `bson:"created_at"`
}

// EventMetadataDocument представляет метаданные события в MongoDB
type EventMetadataDocument struct {
	Timestamp     time.Time `bson:"timestamp"`
	UserID        string    `bson:"user_id,omitempty"`
	CorrelationID string    `bson:"correlation_id"`
	CausationID   string    `bson:"causation_id,omitempty"`
	Source        string    `bson:"source,omitempty"`
}

// EventSerializer выполняет сериализацию и десериализацию событий для MongoDB
type EventSerializer struct {
}

// NewEventSerializer создает новый сериализатор событий
func NewEventSerializer() *EventSerializer {
	return &EventSerializer{}
}

// Serialize преобразует доменное событие в MongoDB документ.
// Версия присваивается хранилищем в момент записи, поэтому передается
// отдельно от события.
func (s *EventSerializer) Serialize(e event.DomainEvent, version int) (*EventDocument, error) {
	// Преобразуем событие в JSON и обратно в bson.M
	// для более надежной сериализации сложных типов
	jsonData, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event to JSON: %w", err)
	}

	var dataMap bson.M
	if err2 := json.Unmarshal(jsonData, &dataMap); err2 != nil {
		return nil, fmt.Errorf("failed to unmarshal event to map: %w", err2)
	}

	metadata := e.Metadata()
	metadataDoc := EventMetadataDocument{
		Timestamp:     metadata.Timestamp,
		UserID:        metadata.UserID,
		CorrelationID: metadata.CorrelationID,
		CausationID:   metadata.CausationID,
		Source:        metadata.Source,
	}

	eventID := e.EventID()
	if eventID == "" {
		eventID = uuid.NewUUID().String()
	}

	doc := &EventDocument{
		EventID:       eventID,
		AggregateID:   e.AggregateID(),
		AggregateType: e.AggregateType(),
		EventType:     e.EventType(),
		Version:       version,
		Data:          dataMap,
		Metadata:      metadataDoc,
		OccurredAt:    e.OccurredAt(),
		CreatedAt:     time.Now().UTC(),
	}

	return doc, nil
}

// SerializeBatch сериализует пакет событий, присваивая версии
// последовательно начиная с fromVersion.
func (s *EventSerializer) SerializeBatch(events []event.DomainEvent, fromVersion int) ([]*EventDocument, error) {
	documents := make([]*EventDocument, 0, len(events))

	for i, e := range events {
		doc, err := s.Serialize(e, fromVersion+i)
		if err != nil {
			return nil, fmt.Errorf("failed to serialize event at index %d: %w", i, err)
		}
		documents = append(documents, doc)
	}

	return documents, nil
}

// Deserialize преобразует MongoDB документ обратно в доменное событие.
// Полезная нагрузка остается непрозрачной и доступна через StoredEvent.
func (s *EventSerializer) Deserialize(doc *EventDocument) (event.DomainEvent, error) {
	jsonData, err := bson.MarshalExtJSON(doc.Data, false, false)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal BSON to JSON: %w", err)
	}

	var eventData map[string]any
	if unmarshalErr := json.Unmarshal(jsonData, &eventData); unmarshalErr != nil {
		return nil, fmt.Errorf("failed to unmarshal event data: %w", unmarshalErr)
	}

	metadata := event.Metadata{
		UserID:        doc.Metadata.UserID,
		CorrelationID: doc.Metadata.CorrelationID,
		CausationID:   doc.Metadata.CausationID,
		Timestamp:     doc.Metadata.Timestamp,
		Source:        doc.Metadata.Source,
	}

	baseEvent := event.RestoreBaseEvent(
		doc.EventID,
		doc.EventType,
		doc.AggregateID,
		doc.AggregateType,
		doc.Version,
		doc.OccurredAt,
		metadata,
	)

	return &StoredEvent{
		BaseEvent: baseEvent,
		Data:      eventData,
	}, nil
}

// DeserializeMany десериализует несколько документов сразу
func (s *EventSerializer) DeserializeMany(docs []*EventDocument) ([]event.DomainEvent, error) {
	events := make([]event.DomainEvent, 0, len(docs))

	for i, doc := range docs {
		evt, err := s.Deserialize(doc)
		if err != nil {
			return nil, fmt.Errorf("failed to deserialize event at index %d: %w", i, err)
		}
		events = append(events, evt)
	}

	return events, nil
}

// StoredEvent представляет событие, загруженное из хранилища.
// Полезная нагрузка сохраняется как непрозрачная карта значений.
type StoredEvent struct {
	event.BaseEvent

	Data map[string]any
}

// Payload возвращает данные события
func (e *StoredEvent) Payload() map[string]any {
	return e.Data
}
