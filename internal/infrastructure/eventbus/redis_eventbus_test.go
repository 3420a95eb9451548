package eventbus_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lllypuk/sagaflow/internal/domain/event"
	"github.com/lllypuk/sagaflow/internal/infrastructure/eventbus"
	"github.com/lllypuk/sagaflow/internal/testutil"
)

// testEvent is a concrete event type for testing.
type testEvent struct {
	event.BaseEvent

	Message string `json:"message"`
}

func newTestEvent(eventType, aggregateID, message string) *testEvent {
	return &testEvent{
		BaseEvent: event.NewBaseEvent(
			eventType,
			aggregateID,
			"test",
			1,
			event.NewMetadata("user-1", "correlation-1", "causation-1"),
		),
		Message: message,
	}
}

func startBus(t *testing.T, bus *eventbus.RedisEventBus) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		defer close(done)
		_ = bus.Start(ctx)
	}()

	// Give the subscription time to establish.
	require.Eventually(t, bus.IsRunning, 2*time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)

	t.Cleanup(func() {
		_ = bus.Shutdown()
		cancel()
		<-done
	})
}

func TestNewRedisEventBus(t *testing.T) {
	client := testutil.SetupTestRedis(t)

	t.Run("creates with defaults", func(t *testing.T) {
		bus := eventbus.NewRedisEventBus(client)

		assert.NotNil(t, bus)
		assert.False(t, bus.IsRunning())
		assert.Equal(t, 0, bus.HandlerCount("any.event"))
	})

	t.Run("applies options", func(t *testing.T) {
		retryConfig := eventbus.RetryConfig{
			MaxRetries:     5,
			InitialBackoff: 200 * time.Millisecond,
			MaxBackoff:     10 * time.Second,
			BackoffFactor:  3.0,
		}

		bus := eventbus.NewRedisEventBus(client,
			eventbus.WithRetryConfig(retryConfig),
			eventbus.WithChannelPrefix("custom:"),
			eventbus.WithDeadLetterKey("custom:dead"),
		)

		assert.NotNil(t, bus)
	})
}

func TestRedisEventBus_Subscribe(t *testing.T) {
	client := testutil.SetupTestRedis(t)
	bus := eventbus.NewRedisEventBus(client)

	t.Run("registers handler", func(t *testing.T) {
		err := bus.Subscribe("saga.completed", func(_ context.Context, _ event.DomainEvent) error {
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 1, bus.HandlerCount("saga.completed"))
	})

	t.Run("rejects empty event type", func(t *testing.T) {
		err := bus.Subscribe("", func(_ context.Context, _ event.DomainEvent) error {
			return nil
		})
		require.Error(t, err)
	})

	t.Run("rejects nil handler", func(t *testing.T) {
		err := bus.Subscribe("saga.completed", nil)
		require.Error(t, err)
	})
}

func TestRedisEventBus_PublishAndReceive(t *testing.T) {
	client := testutil.SetupTestRedis(t)
	bus := eventbus.NewRedisEventBus(client)

	received := make(chan event.DomainEvent, 1)
	require.NoError(t, bus.Subscribe("order.created", func(_ context.Context, evt event.DomainEvent) error {
		received <- evt
		return nil
	}))

	startBus(t, bus)

	sent := newTestEvent("order.created", "order-1", "hello")
	require.NoError(t, bus.Publish(context.Background(), sent))

	select {
	case evt := <-received:
		assert.Equal(t, "order.created", evt.EventType())
		assert.Equal(t, "order-1", evt.AggregateID())
		assert.Equal(t, "test", evt.AggregateType())
		assert.Equal(t, sent.EventID(), evt.EventID())
		assert.Equal(t, "user-1", evt.Metadata().UserID)

		payloadEvt, ok := evt.(interface{ Payload() json.RawMessage })
		require.True(t, ok)

		var decoded testEvent
		require.NoError(t, json.Unmarshal(payloadEvt.Payload(), &decoded))
		assert.Equal(t, "hello", decoded.Message)
	case <-time.After(5 * time.Second):
		t.Fatal("event was not received")
	}
}

func TestRedisEventBus_PublishNilEvent(t *testing.T) {
	client := testutil.SetupTestRedis(t)
	bus := eventbus.NewRedisEventBus(client)

	err := bus.Publish(context.Background(), nil)
	require.Error(t, err)
}

func TestRedisEventBus_RetryThenDeadLetter(t *testing.T) {
	client := testutil.SetupTestRedis(t)

	const deadLetterKey = "test:dead_letter"
	bus := eventbus.NewRedisEventBus(client,
		eventbus.WithRetryConfig(eventbus.RetryConfig{
			MaxRetries:     2,
			InitialBackoff: 10 * time.Millisecond,
			MaxBackoff:     50 * time.Millisecond,
			BackoffFactor:  2.0,
		}),
		eventbus.WithDeadLetterKey(deadLetterKey),
	)

	var attempts atomic.Int32
	require.NoError(t, bus.Subscribe("order.created", func(_ context.Context, _ event.DomainEvent) error {
		attempts.Add(1)
		return errors.New("handler always fails")
	}))

	startBus(t, bus)

	sent := newTestEvent("order.created", "order-1", "doomed")
	require.NoError(t, bus.Publish(context.Background(), sent))

	// 1 initial attempt + 2 retries, then the event lands in the dead letter list.
	require.Eventually(t, func() bool {
		n, err := client.LLen(context.Background(), deadLetterKey).Result()
		return err == nil && n == 1
	}, 5*time.Second, 20*time.Millisecond)

	assert.Equal(t, int32(3), attempts.Load())

	raw, err := client.LIndex(context.Background(), deadLetterKey, 0).Result()
	require.NoError(t, err)

	var envelope map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &envelope))
	assert.Equal(t, sent.EventID(), envelope["id"])
	assert.Equal(t, "order.created", envelope["event_type"])
}

func TestRedisEventBus_SucceedsAfterRetry(t *testing.T) {
	client := testutil.SetupTestRedis(t)

	bus := eventbus.NewRedisEventBus(client,
		eventbus.WithRetryConfig(eventbus.RetryConfig{
			MaxRetries:     3,
			InitialBackoff: 10 * time.Millisecond,
			MaxBackoff:     50 * time.Millisecond,
			BackoffFactor:  2.0,
		}),
	)

	var attempts atomic.Int32
	succeeded := make(chan struct{})
	require.NoError(t, bus.Subscribe("order.created", func(_ context.Context, _ event.DomainEvent) error {
		if attempts.Add(1) < 3 {
			return errors.New("transient failure")
		}
		close(succeeded)
		return nil
	}))

	startBus(t, bus)

	require.NoError(t, bus.Publish(context.Background(), newTestEvent("order.created", "order-1", "flaky")))

	select {
	case <-succeeded:
		assert.Equal(t, int32(3), attempts.Load())
	case <-time.After(5 * time.Second):
		t.Fatal("handler never succeeded")
	}
}

func TestRedisEventBus_Shutdown(t *testing.T) {
	client := testutil.SetupTestRedis(t)
	bus := eventbus.NewRedisEventBus(client)

	require.NoError(t, bus.Subscribe("order.created", func(_ context.Context, _ event.DomainEvent) error {
		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = bus.Start(ctx)
	}()

	require.Eventually(t, bus.IsRunning, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, bus.Shutdown())
	assert.False(t, bus.IsRunning())

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after Shutdown")
	}

	// Shutdown is idempotent.
	require.NoError(t, bus.Shutdown())
}
