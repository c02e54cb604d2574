package service_test

import (
	"academy_backend/internal/service"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHookBusIsolatesHandlerFailures(t *testing.T) {
	bus := service.NewHookBus()
	var got []string
	bus.Subscribe("x", func(ctx context.Context, e service.HookEvent) error {
		panic("boom")
	})
	bus.Subscribe("x", func(ctx context.Context, e service.HookEvent) error {
		return errors.New("downstream unavailable")
	})
	bus.Subscribe("x", func(ctx context.Context, e service.HookEvent) error {
		got = append(got, e.Name)
		return nil
	})

	assert.NotPanics(t, func() {
		bus.Fire(context.Background(), service.HookEvent{Name: "x", UserID: 1}, service.HookEvent{Name: "y"})
	})
	assert.Equal(t, []string{"x"}, got)
}

func TestHookNilSafety(t *testing.T) {
	var bus *service.HookBus
	assert.NotPanics(t, func() { bus.Fire(context.Background(), service.HookEvent{Name: "x"}) })

	var queue *service.HookQueue
	queue.Add(service.HookEvent{Name: "x"})
	assert.Nil(t, queue.Events())

	q := &service.HookQueue{}
	q.Add(service.HookEvent{Name: "a"})
	q.Add(service.HookEvent{Name: "b"})
	assert.Len(t, q.Events(), 2)
}
