package service_test

import (
	"academy_backend/internal/model"
	"academy_backend/internal/service"
	"academy_backend/internal/testutil"
	"academy_backend/internal/util"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func levels(xp ...int) []model.Level {
	out := make([]model.Level, len(xp))
	for i, v := range xp {
		out[i] = model.Level{BaseModel: model.BaseModel{ID: uint(i + 1)}, Level: i + 1, XPRequired: v}
	}
	return out
}

func TestResolveLevel(t *testing.T) {
	catalog := levels(0, 100, 250, 500)

	cases := []struct {
		total int
		want  int
	}{
		{0, 1},
		{99, 1},
		{100, 2},
		{249, 2},
		{250, 3},
		{10000, 4},
	}
	for _, tc := range cases {
		level := service.ResolveLevel(catalog, tc.total)
		require.NotNil(t, level, "total=%d", tc.total)
		assert.Equal(t, tc.want, level.Level, "total=%d", tc.total)
	}
}

func TestResolveLevelBelowFirstThreshold(t *testing.T) {
	assert.Nil(t, service.ResolveLevel(levels(50, 100), 10))
	assert.Nil(t, service.ResolveLevel(nil, 10))
}

func TestResolveLevelIgnoresCatalogOrder(t *testing.T) {
	catalog := []model.Level{
		{Level: 3, XPRequired: 250},
		{Level: 1, XPRequired: 0},
		{Level: 2, XPRequired: 100},
	}
	level := service.ResolveLevel(catalog, 180)
	require.NotNil(t, level)
	assert.Equal(t, 2, level.Level)
}

func TestNextLevelXP(t *testing.T) {
	catalog := levels(0, 100, 250)

	next := service.NextLevelXP(catalog, 0)
	require.NotNil(t, next)
	assert.Equal(t, 100, *next)

	next = service.NextLevelXP(catalog, 120)
	require.NotNil(t, next)
	assert.Equal(t, 250, *next)

	assert.Nil(t, service.NextLevelXP(catalog, 250), "top level has no next threshold")
	assert.Nil(t, service.NextLevelXP(nil, 0))
}

func TestNextLevelXPBelowFirstThreshold(t *testing.T) {
	next := service.NextLevelXP(levels(50, 100), 10)
	require.NotNil(t, next)
	assert.Equal(t, 50, *next)
}

func TestValidateLevels(t *testing.T) {
	assert.NoError(t, service.ValidateLevels(levels(0, 100, 250)))
	assert.NoError(t, service.ValidateLevels(nil))

	bad := map[string][]model.Level{
		"level below one":    {{Level: 0, XPRequired: 0}},
		"negative xp":        {{Level: 1, XPRequired: -5}},
		"duplicate level":    {{Level: 1, XPRequired: 0}, {Level: 1, XPRequired: 100}},
		"duplicate required": {{Level: 1, XPRequired: 100}, {Level: 2, XPRequired: 100}},
	}
	for name, catalog := range bad {
		err := service.ValidateLevels(catalog)
		assert.ErrorIs(t, err, util.ErrLevelCatalog, name)
	}
}

func TestLevelServiceValidateCatalog(t *testing.T) {
	db := testutil.NewDB(t)
	svc := testutil.NewServices(t, db)
	testutil.SeedLevels(t, db, 0, 100, 250)

	require.NoError(t, svc.Level.ValidateCatalog(context.Background()))

	got, err := svc.Level.Levels(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []int{0, 100, 250}, []int{got[0].XPRequired, got[1].XPRequired, got[2].XPRequired})
}
