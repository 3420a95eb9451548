package eventbus_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lllypuk/sagaflow/internal/domain/event"
	"github.com/lllypuk/sagaflow/internal/infrastructure/eventbus"
	"github.com/lllypuk/sagaflow/internal/testutil"
)

func TestCacheInvalidation_ByTag(t *testing.T) {
	client := testutil.SetupTestRedis(t)
	ctx := context.Background()

	// Cache writer registered two keys under the "orders" tag.
	require.NoError(t, client.Set(ctx, "cache:orders:list", "v1", 0).Err())
	require.NoError(t, client.Set(ctx, "cache:orders:count", "2", 0).Err())
	require.NoError(t, client.SAdd(ctx, eventbus.TagKey("orders"), "cache:orders:list", "cache:orders:count").Err())

	handler := eventbus.NewCacheInvalidationHandler(client)
	handler.AddRule("order.created", eventbus.InvalidationRule{
		Tags: []string{"orders"},
	})

	evt := newTestEvent("order.created", "order-1", "created")
	require.NoError(t, handler.Handle(ctx, evt))

	exists, err := client.Exists(ctx, "cache:orders:list", "cache:orders:count", eventbus.TagKey("orders")).Result()
	require.NoError(t, err)
	assert.Zero(t, exists)

	// At-least-once delivery: handling the same event again is a no-op.
	require.NoError(t, handler.Handle(ctx, evt))
}

func TestCacheInvalidation_ByKeyPattern(t *testing.T) {
	client := testutil.SetupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, client.Set(ctx, "cache:order:order-1", "v1", 0).Err())
	require.NoError(t, client.Set(ctx, "cache:order:order-2", "v2", 0).Err())
	require.NoError(t, client.Set(ctx, "cache:customer:c-1", "v3", 0).Err())

	handler := eventbus.NewCacheInvalidationHandler(client)
	handler.AddRule("order.updated", eventbus.InvalidationRule{
		KeyPatterns: []string{"cache:order:*"},
	})

	require.NoError(t, handler.Handle(ctx, newTestEvent("order.updated", "order-1", "updated")))

	exists, err := client.Exists(ctx, "cache:order:order-1", "cache:order:order-2").Result()
	require.NoError(t, err)
	assert.Zero(t, exists)

	// Keys outside the pattern survive.
	exists, err = client.Exists(ctx, "cache:customer:c-1").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), exists)
}

func TestCacheInvalidation_ByDerivedKeys(t *testing.T) {
	client := testutil.SetupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, client.Set(ctx, "cache:order:order-1", "v1", 0).Err())
	require.NoError(t, client.Set(ctx, "cache:order:order-2", "v2", 0).Err())

	handler := eventbus.NewCacheInvalidationHandler(client)
	handler.AddRule("order.shipped", eventbus.InvalidationRule{
		Keys: func(evt event.DomainEvent) []string {
			return []string{"cache:order:" + evt.AggregateID()}
		},
	})

	require.NoError(t, handler.Handle(ctx, newTestEvent("order.shipped", "order-1", "shipped")))

	exists, err := client.Exists(ctx, "cache:order:order-1").Result()
	require.NoError(t, err)
	assert.Zero(t, exists)

	exists, err = client.Exists(ctx, "cache:order:order-2").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), exists)
}

func TestCacheInvalidation_NoRuleIsNoop(t *testing.T) {
	client := testutil.SetupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, client.Set(ctx, "cache:order:order-1", "v1", 0).Err())

	handler := eventbus.NewCacheInvalidationHandler(client)

	require.NoError(t, handler.Handle(ctx, newTestEvent("order.created", "order-1", "created")))

	exists, err := client.Exists(ctx, "cache:order:order-1").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), exists)
}

func TestCacheInvalidation_EndToEndViaBus(t *testing.T) {
	client := testutil.SetupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, client.Set(ctx, "cache:order:order-1", "v1", 0).Err())

	handler := eventbus.NewCacheInvalidationHandler(client)
	handler.AddRule("order.completed", eventbus.InvalidationRule{
		Keys: func(evt event.DomainEvent) []string {
			return []string{"cache:order:" + evt.AggregateID()}
		},
	})

	bus := eventbus.NewRedisEventBus(client)
	require.NoError(t, handler.RegisterWith(bus))
	assert.Equal(t, 1, bus.HandlerCount("order.completed"))

	startBus(t, bus)

	require.NoError(t, bus.Publish(ctx, newTestEvent("order.completed", "order-1", "done")))

	require.Eventually(t, func() bool {
		exists, err := client.Exists(ctx, "cache:order:order-1").Result()
		return err == nil && exists == 0
	}, 5*time.Second, 20*time.Millisecond)
}
