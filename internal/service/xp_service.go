package service

import (
	"academy_backend/internal/model"
	"academy_backend/internal/repository"
	"academy_backend/internal/util"
	"academy_backend/pkg/logger"
	"academy_backend/pkg/monitoring"
	"academy_backend/pkg/tracing"
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// XPService 经验流水与等级状态
type XPService struct {
	DB       *gorm.DB
	XPRepo   *repository.XPRepository
	UserRepo *repository.UserRepository
	Levels   *LevelService
	Now      func() time.Time
}

func NewXPService(
	db *gorm.DB,
	xpRepo *repository.XPRepository,
	userRepo *repository.UserRepository,
	levels *LevelService,
) *XPService {
	return &XPService{
		DB:       db,
		XPRepo:   xpRepo,
		UserRepo: userRepo,
		Levels:   levels,
		Now:      time.Now,
	}
}

// Accrual 一次经验变动，XP 可以为负（修正）
type Accrual struct {
	UserID  uint
	Action  string
	XP      int
	BadgeID *uint
	Related map[string]interface{}
	Source  model.XPSource
}

type XPSummary struct {
	UserID      uint            `json:"userId"`
	TotalXP     int             `json:"totalXp"`
	Level       *model.Level    `json:"level"`
	NextLevelXP *int            `json:"nextLevelXp"`
	Recent      []model.XPEvent `json:"recent"`
}

// ManualAdjustRequest 管理员修正经验
type ManualAdjustRequest struct {
	UserID uint   `json:"userId" binding:"required"`
	XP     int    `json:"xp" binding:"required"`
	Reason string `json:"reason" binding:"required,max=255"`
}

// Accrue 追加流水并在行锁下更新总经验，必须在事务中调用
func (s *XPService) Accrue(ctx context.Context, tx *gorm.DB, a Accrual) (*model.UserLevelState, error) {
	tx = tx.WithContext(ctx)
	repo := s.XPRepo.WithTx(tx)
	now := s.Now().UTC()

	source := a.Source
	if source == "" {
		source = model.XPSourceAction
	}

	event := &model.XPEvent{
		UserID:        a.UserID,
		Action:        a.Action,
		XP:            a.XP,
		BadgeID:       a.BadgeID,
		RelatedObject: datatypes.JSONMap(a.Related),
		Source:        source,
		Timestamp:     now,
	}
	if err := repo.CreateEvent(event); err != nil {
		return nil, fmt.Errorf("append xp event: %w", err)
	}

	if err := repo.EnsureState(a.UserID, now); err != nil {
		return nil, fmt.Errorf("ensure level state: %w", err)
	}
	state, err := repo.LockState(a.UserID)
	if err != nil {
		return nil, fmt.Errorf("lock level state: %w", err)
	}

	total := state.TotalXP + a.XP
	if total < 0 {
		logger.Log.Warn("XP total clamped at zero",
			zap.Uint("userID", a.UserID),
			zap.Int("before", state.TotalXP),
			zap.Int("delta", a.XP),
		)
		total = 0
	}

	levels, err := s.Levels.Levels(ctx, tx)
	if err != nil {
		return nil, err
	}
	state.TotalXP = total
	state.CurrentLevelID = nil
	if level := ResolveLevel(levels, total); level != nil {
		id := level.ID
		state.CurrentLevelID = &id
	}
	state.LastUpdated = now
	if err := repo.SaveState(state); err != nil {
		return nil, fmt.Errorf("save level state: %w", err)
	}

	if a.XP > 0 {
		monitoring.XPAccrued.WithLabelValues(string(source)).Add(float64(a.XP))
	}
	return state, nil
}

// AdjustManual 管理员修正，单独事务
func (s *XPService) AdjustManual(ctx context.Context, adminID uint, req ManualAdjustRequest) (*model.UserLevelState, error) {
	ctx, span := tracing.Tracer.Start(ctx, "XPService.AdjustManual")
	defer span.End()

	if req.XP == 0 {
		return nil, fmt.Errorf("%w: xp must not be zero", util.ErrValidation)
	}
	exists, err := s.UserRepo.WithTx(s.DB.WithContext(ctx)).Exists(req.UserID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, util.ErrUserNotFound
	}

	var state *model.UserLevelState
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		state, err = s.Accrue(ctx, tx, Accrual{
			UserID:  req.UserID,
			Action:  req.Reason,
			XP:      req.XP,
			Related: map[string]interface{}{"adjustedBy": adminID},
			Source:  model.XPSourceManual,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	logger.Log.Info("Manual XP adjustment",
		zap.Uint("adminID", adminID),
		zap.Uint("userID", req.UserID),
		zap.Int("xp", req.XP),
	)
	return state, nil
}

// Summary 用户经验、等级与最近流水
func (s *XPService) Summary(ctx context.Context, userID uint) (*XPSummary, error) {
	db := s.DB.WithContext(ctx)
	state, err := s.XPRepo.WithTx(db).FindState(userID)
	if err != nil {
		return nil, err
	}
	levels, err := s.Levels.Levels(ctx, db)
	if err != nil {
		return nil, err
	}
	events, err := s.XPRepo.WithTx(db).ListEvents(userID, 20)
	if err != nil {
		return nil, err
	}

	summary := &XPSummary{UserID: userID, Recent: events}
	if state != nil {
		summary.TotalXP = state.TotalXP
	}
	summary.Level = ResolveLevel(levels, summary.TotalXP)
	summary.NextLevelXP = NextLevelXP(levels, summary.TotalXP)
	return summary, nil
}

// Leaderboard 经验排行榜
func (s *XPService) Leaderboard(ctx context.Context, limit int) ([]repository.LeaderboardEntry, error) {
	switch {
	case limit <= 0:
		limit = 10
	case limit > 100:
		limit = 100
	}
	return s.XPRepo.WithTx(s.DB.WithContext(ctx)).Leaderboard(limit)
}
