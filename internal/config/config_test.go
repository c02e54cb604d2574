package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(body), 0o644))
	return dir
}

func TestLoadConfigDefaults(t *testing.T) {
	dir := writeConfig(t, `
server:
  mode: debug
jwt:
  secret: short
  expire_hours: 2
gamification:
  pass_mark_percent: 70
`)
	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 2*time.Hour, cfg.JWT.ExpireTime)
	assert.Equal(t, "local", cfg.Storage.Type)
	assert.Equal(t, 70, cfg.Gamification.PassMarkPercent)
	assert.Equal(t, 90, cfg.Gamification.PingRetentionDays)
	assert.Equal(t, "sum", cfg.Gamification.ActiveTimeCombine)
	assert.Equal(t, "5 0 * * 1", cfg.Gamification.AssignCron)
	assert.False(t, cfg.Gamification.IncludeActiveMinutesInTimeSpent)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("INCLUDE_ACTIVE_MINUTES_IN_TIME_SPENT", "true")
	t.Setenv("WEEK_TIMEZONE", "Asia/Shanghai")
	dir := writeConfig(t, "server:\n  mode: debug\n")

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)
	assert.True(t, cfg.Gamification.IncludeActiveMinutesInTimeSpent)
	assert.Equal(t, "Asia/Shanghai", cfg.Gamification.WeekTimezone)
}

func TestLoadConfigRejects(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, "server:\n  mode: release\njwt:\n  secret: short\n"))
	assert.Error(t, err, "weak secret in release mode")

	_, err = LoadConfig(writeConfig(t, "server:\n  mode: debug\ngamification:\n  active_time_combine: avg\n"))
	assert.Error(t, err)
}

func TestGamificationValidate(t *testing.T) {
	assert.NoError(t, DefaultGamification().Validate())

	g := DefaultGamification()
	g.PassMarkPercent = -1
	assert.Error(t, g.Validate())

	g = DefaultGamification()
	g.PingRetentionDays = 0
	assert.Error(t, g.Validate())
}
