package saga

import "sync"

// ContextData is the concurrency-safe business context shared between the
// steps of one saga. Values are opaque to the engine.
type ContextData struct {
	mu     sync.RWMutex
	values map[string]any
}

// NewContextData creates context data pre-populated with the given values.
func NewContextData(values map[string]any) *ContextData {
	data := make(map[string]any, len(values))
	for k, v := range values {
		data[k] = v
	}
	return &ContextData{values: data}
}

// Get returns the value stored under key.
func (c *ContextData) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	v, ok := c.values[key]
	return v, ok
}

// Set stores a value under key.
func (c *ContextData) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.values[key] = value
}

// Merge copies all entries of values into the context data.
func (c *ContextData) Merge(values map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for k, v := range values {
		c.values[k] = v
	}
}

// Snapshot returns a shallow copy of all stored values.
func (c *ContextData) Snapshot() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]any, len(c.values))
	for k, v := range c.values {
		out[k] = v
	}
	return out
}
