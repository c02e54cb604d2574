package service_test

import (
	"academy_backend/internal/service"
	"academy_backend/internal/testutil"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettingsUpdate(t *testing.T) {
	s := service.NewSettings(testutil.GamificationConfig())
	assert.Equal(t, time.UTC, s.Location())

	bad := testutil.GamificationConfig()
	bad.PassMarkPercent = 120
	require.Error(t, s.Update(bad))
	assert.Equal(t, 60, s.Get().PassMarkPercent, "rejected update keeps the old value")

	good := testutil.GamificationConfig()
	good.PassMarkPercent = 75
	good.WeekTimezone = "Asia/Shanghai"
	require.NoError(t, s.Update(good))
	assert.Equal(t, 75, s.Get().PassMarkPercent)
	assert.Equal(t, "Asia/Shanghai", s.Location().String())
}
