package eventbus

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/lllypuk/sagaflow/internal/domain/event"
)

// Cache key layout constants.
const (
	tagSetPrefix    = "cache:tag:"
	defaultScanSize = 100
)

// KeysFunc derives cache keys to invalidate from a single event.
type KeysFunc func(evt event.DomainEvent) []string

// InvalidationRule describes how to invalidate cache entries when an event
// of a given type is delivered. All three mechanisms may be combined.
type InvalidationRule struct {
	// Tags name Redis sets (cache:tag:<tag>) whose member keys are deleted
	// along with the set itself.
	Tags []string

	// KeyPatterns are SCAN patterns; every matching key is deleted.
	KeyPatterns []string

	// Keys derives per-event cache keys to delete.
	Keys KeysFunc
}

// CacheInvalidationHandler invalidates Redis cache entries in response to
// persisted domain events. Deletes are naturally idempotent, so redelivery
// of the same event under at-least-once semantics is safe.
type CacheInvalidationHandler struct {
	client   *redis.Client
	logger   *slog.Logger
	rules    map[string]InvalidationRule
	scanSize int64
}

// CacheInvalidationOption configures CacheInvalidationHandler.
type CacheInvalidationOption func(*CacheInvalidationHandler)

// WithCacheLogger sets the logger for the handler.
func WithCacheLogger(logger *slog.Logger) CacheInvalidationOption {
	return func(h *CacheInvalidationHandler) {
		h.logger = logger
	}
}

// NewCacheInvalidationHandler creates a handler with no rules; register
// rules with AddRule and wire it to a bus with RegisterWith.
func NewCacheInvalidationHandler(client *redis.Client, opts ...CacheInvalidationOption) *CacheInvalidationHandler {
	h := &CacheInvalidationHandler{
		client:   client,
		logger:   slog.Default(),
		rules:    make(map[string]InvalidationRule),
		scanSize: defaultScanSize,
	}

	for _, opt := range opts {
		opt(h)
	}

	return h
}

// AddRule registers an invalidation rule for an event type. A second rule
// for the same type replaces the first.
func (h *CacheInvalidationHandler) AddRule(eventType string, rule InvalidationRule) {
	h.rules[eventType] = rule
}

// RegisterWith subscribes the handler to the bus for every configured rule.
func (h *CacheInvalidationHandler) RegisterWith(bus *RedisEventBus) error {
	for eventType := range h.rules {
		if err := bus.Subscribe(eventType, h.Handle); err != nil {
			return fmt.Errorf("failed to subscribe cache invalidation for %s: %w", eventType, err)
		}
	}
	return nil
}

// Handle invalidates cache entries per the rule for the event's type.
// Events without a rule are ignored.
func (h *CacheInvalidationHandler) Handle(ctx context.Context, evt event.DomainEvent) error {
	rule, ok := h.rules[evt.EventType()]
	if !ok {
		return nil
	}

	for _, tag := range rule.Tags {
		if err := h.invalidateTag(ctx, tag); err != nil {
			return err
		}
	}

	for _, pattern := range rule.KeyPatterns {
		if err := h.invalidatePattern(ctx, pattern); err != nil {
			return err
		}
	}

	if rule.Keys != nil {
		if keys := rule.Keys(evt); len(keys) > 0 {
			if err := h.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("failed to delete derived cache keys: %w", err)
			}
		}
	}

	h.logger.DebugContext(ctx, "cache invalidated",
		slog.String("event_type", evt.EventType()),
		slog.String("aggregate_id", evt.AggregateID()),
	)

	return nil
}

// invalidateTag deletes every key registered under the tag set, then the
// set itself.
func (h *CacheInvalidationHandler) invalidateTag(ctx context.Context, tag string) error {
	setKey := tagSetPrefix + tag

	members, err := h.client.SMembers(ctx, setKey).Result()
	if err != nil {
		return fmt.Errorf("failed to read tag set %s: %w", setKey, err)
	}

	if len(members) > 0 {
		if err = h.client.Del(ctx, members...).Err(); err != nil {
			return fmt.Errorf("failed to delete keys of tag %s: %w", tag, err)
		}
	}

	if err = h.client.Del(ctx, setKey).Err(); err != nil {
		return fmt.Errorf("failed to delete tag set %s: %w", setKey, err)
	}

	return nil
}

// invalidatePattern deletes every key matching the SCAN pattern.
func (h *CacheInvalidationHandler) invalidatePattern(ctx context.Context, pattern string) error {
	var cursor uint64
	for {
		keys, next, err := h.client.Scan(ctx, cursor, pattern, h.scanSize).Result()
		if err != nil {
			return fmt.Errorf("failed to scan pattern %s: %w", pattern, err)
		}

		if len(keys) > 0 {
			if err = h.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("failed to delete keys of pattern %s: %w", pattern, err)
			}
		}

		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// TagKey returns the Redis set key for a cache tag. Cache writers add the
// keys they create to this set so invalidation by tag can find them.
func TagKey(tag string) string {
	return tagSetPrefix + tag
}
