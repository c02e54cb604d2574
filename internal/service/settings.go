package service

import (
	"academy_backend/internal/config"
	"academy_backend/internal/util"
	"academy_backend/pkg/logger"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Settings 可热更新的游戏化参数，读多写少
type Settings struct {
	mu  sync.RWMutex
	cfg config.GamificationConfig
	loc *time.Location
}

func NewSettings(cfg config.GamificationConfig) *Settings {
	return &Settings{cfg: cfg, loc: util.LoadLocation(cfg.WeekTimezone)}
}

func (s *Settings) Get() config.GamificationConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Location 计算周边界使用的时区
func (s *Settings) Location() *time.Location {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loc
}

// Update 校验失败时保留旧值
func (s *Settings) Update(cfg config.GamificationConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	loc := util.LoadLocation(cfg.WeekTimezone)

	s.mu.Lock()
	s.cfg = cfg
	s.loc = loc
	s.mu.Unlock()

	logger.Log.Info("Gamification settings updated",
		zap.Int("passMarkPercent", cfg.PassMarkPercent),
		zap.Bool("includeActiveMinutes", cfg.IncludeActiveMinutesInTimeSpent),
		zap.String("weekTimezone", loc.String()),
	)
	return nil
}
