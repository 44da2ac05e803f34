package saga

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContext(t *testing.T) {
	t.Run("set get has", func(t *testing.T) {
		sc := NewContext()
		sc.Set("amount", 100)

		v, ok := sc.Get("amount")
		assert.True(t, ok)
		assert.Equal(t, 100, v)
		assert.True(t, sc.Has("amount"))
		assert.False(t, sc.Has("missing"))
	})

	t.Run("last write wins", func(t *testing.T) {
		sc := NewContext()
		sc.Set("status", "pending")
		sc.Set("status", "confirmed")

		v, _ := sc.Get("status")
		assert.Equal(t, "confirmed", v)
	})

	t.Run("dotted keys address nested maps", func(t *testing.T) {
		sc := NewContext()
		sc.Set("order.id", 7)
		sc.Set("order.status", "pending")

		id, ok := sc.Get("order.id")
		assert.True(t, ok)
		assert.Equal(t, 7, id)

		order, ok := sc.Get("order")
		assert.True(t, ok)
		assert.Equal(t, map[string]any{"id": 7, "status": "pending"}, order)
		assert.False(t, sc.Has("order.missing"))
		assert.False(t, sc.Has("order.id.deeper"))
	})

	t.Run("dotted set replaces scalar parent", func(t *testing.T) {
		sc := NewContext()
		sc.Set("order", "scalar")
		sc.Set("order.id", 1)

		v, ok := sc.Get("order.id")
		assert.True(t, ok)
		assert.Equal(t, 1, v)
	})

	t.Run("stored maps are not aliased", func(t *testing.T) {
		input := map[string]any{"items": []any{"a"}}
		sc := NewContext()
		sc.Set("cart", input)

		input["items"] = []any{"changed"}
		got, _ := sc.Get("cart")
		got.(map[string]any)["extra"] = true

		again, _ := sc.Get("cart")
		assert.Equal(t, map[string]any{"items": []any{"a"}}, again)
	})

	t.Run("snapshot is a deep copy", func(t *testing.T) {
		sc := NewContextFrom(map[string]any{"customer": map[string]any{"name": "Jane"}})

		snapshot := sc.Snapshot()
		snapshot["customer"].(map[string]any)["name"] = "changed"
		sc.Set("customer.email", "jane@example.com")

		name, _ := sc.Get("customer.name")
		assert.Equal(t, "Jane", name)
		assert.NotContains(t, snapshot["customer"], "email")
	})

	t.Run("flatten uses dotted paths", func(t *testing.T) {
		sc := NewContextFrom(map[string]any{
			"customer_name": "Jane",
			"order":         map[string]any{"id": 3, "payment": map[string]any{"amount": 10.5}},
			"empty":         map[string]any{},
		})

		assert.Equal(t, map[string]any{
			"customer_name":        "Jane",
			"order.id":             3,
			"order.payment.amount": 10.5,
			"empty":                map[string]any{},
		}, sc.Flatten())
	})

	t.Run("typed value", func(t *testing.T) {
		sc := NewContextFrom(map[string]any{"quantity": 2})

		q, ok := Value[int](sc, "quantity")
		assert.True(t, ok)
		assert.Equal(t, 2, q)

		_, ok = Value[string](sc, "quantity")
		assert.False(t, ok)
		_, ok = Value[int](sc, "missing")
		assert.False(t, ok)
	})

	t.Run("keys are sorted", func(t *testing.T) {
		sc := NewContextFrom(map[string]any{"b": 1, "a": 2})
		assert.Equal(t, []string{"a", "b"}, sc.Keys())
	})
}

func TestStepRegistry(t *testing.T) {
	t.Run("rejects invalid definitions", func(t *testing.T) {
		r := NewStepRegistry()
		assert.Error(t, r.Register(StepDefinition{New: func() Step { return counterStep{} }}))
		assert.Error(t, r.Register(StepDefinition{ID: "x"}))
		assert.Panics(t, func() { r.MustRegister(StepDefinition{ID: "x"}) })
	})

	t.Run("lookup", func(t *testing.T) {
		r := NewStepRegistry()
		r.MustRegister(StepDefinition{ID: "count", New: func() Step { return counterStep{} }})

		def, err := r.Lookup("count")
		require.NoError(t, err)
		assert.Equal(t, StepID("count"), def.ID)
		assert.False(t, def.EmitsEvent())

		_, err = r.Lookup("nope")
		assert.ErrorIs(t, err, ErrStepNotRegistered)
	})
}

func TestLocalEventBus(t *testing.T) {
	ctx := context.Background()

	t.Run("delivers to listeners of the event name", func(t *testing.T) {
		bus := NewLocalEventBus()
		var got []string
		bus.Subscribe("order.confirmed", ListenerFunc(func(_ context.Context, e Event) error {
			got = append(got, "first:"+e.EventName())
			return nil
		}))
		bus.Subscribe("order.confirmed", ListenerFunc(func(_ context.Context, e Event) error {
			got = append(got, "second:"+e.EventName())
			return nil
		}))
		bus.Subscribe("other", ListenerFunc(func(context.Context, Event) error {
			got = append(got, "other")
			return nil
		}))

		require.NoError(t, bus.Dispatch(ctx, testEvent{name: "order.confirmed"}))
		assert.Equal(t, []string{"first:order.confirmed", "second:order.confirmed"}, got)
	})

	t.Run("runs every listener and joins errors", func(t *testing.T) {
		bus := NewLocalEventBus()
		calls := 0
		bus.Subscribe("e", ListenerFunc(func(context.Context, Event) error {
			calls++
			return errors.New("first failed")
		}))
		bus.Subscribe("e", ListenerFunc(func(context.Context, Event) error {
			calls++
			return nil
		}))

		err := bus.Dispatch(ctx, testEvent{name: "e"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "first failed")
		assert.Equal(t, 2, calls)
	})

	t.Run("no listeners is fine", func(t *testing.T) {
		assert.NoError(t, NewLocalEventBus().Dispatch(ctx, testEvent{name: "nobody"}))
	})
}
