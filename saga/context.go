package saga

import (
	"sort"
	"strings"
)

// Context is the key/value store shared by the steps of one saga execution.
// Keys may be dotted paths ("order.id") addressing nested maps. Values are
// never deleted; the last write wins. A Context belongs to a single execution
// and is not safe for concurrent use.
type Context struct {
	values map[string]any
}

// NewContext creates an empty context
func NewContext() *Context {
	return &Context{values: make(map[string]any)}
}

// NewContextFrom creates a context seeded with values
func NewContextFrom(values map[string]any) *Context {
	c := NewContext()
	c.Merge(values)
	return c
}

// Set stores value under key. Maps and slices are copied on the way in.
func (c *Context) Set(key string, value any) {
	value = copyValue(value)

	path := strings.Split(key, ".")
	current := c.values
	for _, segment := range path[:len(path)-1] {
		next, ok := current[segment].(map[string]any)
		if !ok {
			next = make(map[string]any)
			current[segment] = next
		}
		current = next
	}
	current[path[len(path)-1]] = value
}

// Merge sets every top-level entry of values
func (c *Context) Merge(values map[string]any) {
	for k, v := range values {
		c.Set(k, v)
	}
}

// Get returns the value stored under key. Maps and slices are returned as copies.
func (c *Context) Get(key string) (any, bool) {
	if v, ok := c.values[key]; ok {
		return copyValue(v), true
	}

	var current any = c.values
	for _, segment := range strings.Split(key, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[segment]
		if !ok {
			return nil, false
		}
	}
	return copyValue(current), true
}

// Has reports whether key holds a value
func (c *Context) Has(key string) bool {
	_, ok := c.Get(key)
	return ok
}

// Snapshot returns a deep copy of the stored values
func (c *Context) Snapshot() map[string]any {
	return copyMap(c.values)
}

// Flatten returns the stored values keyed by their dotted path. Nested maps
// are expanded; every other value is a leaf.
func (c *Context) Flatten() map[string]any {
	out := make(map[string]any)
	flatten("", c.values, out)
	return out
}

// Keys returns the top-level keys in sorted order
func (c *Context) Keys() []string {
	keys := make([]string, 0, len(c.values))
	for k := range c.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Value returns the value under key asserted to T
func Value[T any](c *Context, key string) (T, bool) {
	var zero T
	v, ok := c.Get(key)
	if !ok {
		return zero, false
	}
	typed, ok := v.(T)
	if !ok {
		return zero, false
	}
	return typed, true
}

func flatten(prefix string, in map[string]any, out map[string]any) {
	for k, v := range in {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := v.(map[string]any); ok && len(nested) > 0 {
			flatten(key, nested, out)
			continue
		}
		out[key] = copyValue(v)
	}
}

func copyMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return copyMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = copyValue(item)
		}
		return out
	default:
		return v
	}
}
