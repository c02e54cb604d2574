package service_test

import (
	"academy_backend/internal/service"
	"academy_backend/internal/util"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func constCounter(key string, n int64) service.Counter {
	return service.NewCounter(key, func(ctx context.Context, db *gorm.DB, userID uint) (int64, error) {
		return n, nil
	})
}

func TestCounterRegistry(t *testing.T) {
	r := service.NewCounterRegistry()
	require.NoError(t, r.Register(constCounter("b", 2)))
	require.NoError(t, r.Register(constCounter("a", 1)))
	require.NoError(t, r.Register(constCounter("A", 3)))

	err := r.Register(constCounter("a", 9))
	require.ErrorIs(t, err, util.ErrDuplicateCounter)

	assert.Equal(t, []string{"A", "a", "b"}, r.Keys())

	c, ok := r.Lookup("a")
	require.True(t, ok)
	n, err := c.Count(context.Background(), nil, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "first registration wins")

	_, ok = r.Lookup("missing")
	assert.False(t, ok)
}

func TestBuiltinCounters(t *testing.T) {
	r := service.NewCounterRegistry()
	require.NoError(t, service.RegisterBuiltinCounters(r, nil))
	assert.NotContains(t, r.Keys(), service.CounterActiveMinutes)
	assert.Contains(t, r.Keys(), service.CounterTotalXP)

	require.ErrorIs(t, service.RegisterBuiltinCounters(r, nil), util.ErrDuplicateCounter)
}
