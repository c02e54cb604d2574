package service

import (
	"academy_backend/internal/model"
	"academy_backend/internal/repository"
	"academy_backend/pkg/logger"
	"academy_backend/pkg/monitoring"
	"academy_backend/pkg/tracing"
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// BadgeService 徽章评估：满足条件的徽章每个用户最多颁发一次
type BadgeService struct {
	DB        *gorm.DB
	BadgeRepo *repository.BadgeRepository
	UserRepo  *repository.UserRepository
	XP        *XPService
	Counters  *CounterRegistry
	Hooks     *HookBus
	Now       func() time.Time
}

func NewBadgeService(
	db *gorm.DB,
	badgeRepo *repository.BadgeRepository,
	userRepo *repository.UserRepository,
	xp *XPService,
	counters *CounterRegistry,
	hooks *HookBus,
) *BadgeService {
	return &BadgeService{
		DB:        db,
		BadgeRepo: badgeRepo,
		UserRepo:  userRepo,
		XP:        xp,
		Counters:  counters,
		Hooks:     hooks,
		Now:       time.Now,
	}
}

// UserBadge 用户已获得的徽章
type UserBadge struct {
	model.Badge
	AwardedAt time.Time `json:"awardedAt"`
}

// Evaluate 独立事务中评估，提交后触发 badge_awarded
func (s *BadgeService) Evaluate(ctx context.Context, userID uint) ([]model.Badge, error) {
	var (
		awarded []model.Badge
		queue   HookQueue
	)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		awarded, err = s.EvaluateTx(ctx, tx, userID, &queue)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.Hooks.Fire(ctx, queue.Events()...)
	return awarded, nil
}

// EvaluateTx 在调用方事务中评估，通知写入 queue，由调用方在提交后触发
func (s *BadgeService) EvaluateTx(ctx context.Context, tx *gorm.DB, userID uint, queue *HookQueue) ([]model.Badge, error) {
	ctx, span := tracing.Tracer.Start(ctx, "BadgeService.Evaluate")
	defer span.End()
	defer monitoring.ObserveEvaluation("badge", time.Now())

	tx = tx.WithContext(ctx)
	repo := s.BadgeRepo.WithTx(tx)

	exists, err := s.UserRepo.WithTx(tx).Exists(userID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return []model.Badge{}, nil
	}

	owned, err := repo.AwardedBadgeIDs(userID)
	if err != nil {
		return nil, fmt.Errorf("load awarded badges: %w", err)
	}
	active, err := repo.ListActiveVisible()
	if err != nil {
		return nil, fmt.Errorf("load badges: %w", err)
	}

	now := s.Now().UTC()
	awarded := []model.Badge{}

	// 颁发带经验的徽章会改变 total_xp 等计数，重复到没有新徽章为止
	for progressed := true; progressed; {
		progressed = false
		counts := newCounterCache(s.Counters, tx, userID)

		for i := range active {
			badge := active[i]
			if _, ok := owned[badge.ID]; ok {
				continue
			}
			if !badge.AvailableAt(now) {
				continue
			}

			eligible, snapshot, err := s.meetsCriteria(ctx, counts, &badge)
			if err != nil {
				return nil, err
			}
			if !eligible {
				continue
			}

			newlyAwarded, err := s.award(ctx, tx, userID, &badge, snapshot, now)
			if err != nil {
				return nil, err
			}
			owned[badge.ID] = struct{}{}
			if !newlyAwarded {
				continue
			}
			progressed = progressed || badge.XPReward > 0
			awarded = append(awarded, badge)
			queue.Add(HookEvent{
				Name:   HookBadgeAwarded,
				UserID: userID,
				RefID:  badge.ID,
				At:     now,
				Payload: map[string]interface{}{
					"slug":     badge.Slug,
					"name":     badge.Name,
					"xpReward": badge.XPReward,
				},
			})
		}
	}
	return awarded, nil
}

// meetsCriteria 所有键的计数都不低于阈值；未注册的键视为不满足
func (s *BadgeService) meetsCriteria(ctx context.Context, counts *counterCache, badge *model.Badge) (bool, map[string]int64, error) {
	criteria := badge.CriteriaMap()
	keys := make([]string, 0, len(criteria))
	for k := range criteria {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	snapshot := make(map[string]int64, len(keys))
	for _, key := range keys {
		value, known, err := counts.get(ctx, key)
		if err != nil {
			return false, nil, fmt.Errorf("counter %s: %w", key, err)
		}
		if !known {
			logger.Log.Warn("Badge criteria references unknown counter, badge skipped",
				zap.String("badge", badge.Slug),
				zap.String("counter", key),
			)
			return false, nil, nil
		}
		snapshot[key] = value
		if value < criteria[key] {
			return false, nil, nil
		}
	}
	return true, snapshot, nil
}

// award 以唯一索引为准，插入未生效说明已被并发颁发，跳过经验、日志与通知
func (s *BadgeService) award(ctx context.Context, tx *gorm.DB, userID uint, badge *model.Badge, snapshot map[string]int64, now time.Time) (bool, error) {
	repo := s.BadgeRepo.WithTx(tx)
	created, err := repo.CreateAwardIgnoreDuplicate(&model.AwardedBadge{
		UserID:    userID,
		BadgeID:   badge.ID,
		AwardedAt: now,
	})
	if err != nil {
		return false, fmt.Errorf("insert awarded badge: %w", err)
	}
	if !created {
		return false, nil
	}

	if badge.XPReward > 0 {
		badgeID := badge.ID
		_, err := s.XP.Accrue(ctx, tx, Accrual{
			UserID:  userID,
			Action:  "Badge earned: " + badge.Name,
			XP:      badge.XPReward,
			BadgeID: &badgeID,
			Related: map[string]interface{}{"kind": "badge", "id": badge.ID, "slug": badge.Slug},
			Source:  model.XPSourceSystem,
		})
		if err != nil {
			return false, err
		}
	}

	counters := make(map[string]interface{}, len(snapshot))
	for k, v := range snapshot {
		counters[k] = v
	}
	err = repo.CreateLog(&model.BadgeAwardLog{
		UserID:    userID,
		BadgeID:   badge.ID,
		AwardedAt: now,
		Source:    model.AwardSourceEvaluator,
		Reason:    "criteria met",
		Metadata: datatypes.JSONMap{
			"criteria": map[string]int64(badge.CriteriaMap()),
			"counters": counters,
		},
	})
	if err != nil {
		return false, fmt.Errorf("insert award log: %w", err)
	}

	monitoring.BadgesAwarded.WithLabelValues(badge.Slug).Inc()
	logger.Log.Info("Badge awarded",
		zap.Uint("userID", userID),
		zap.String("badge", badge.Slug),
		zap.Int("xpReward", badge.XPReward),
	)
	return true, nil
}

// ListForUser 用户已获得的徽章
func (s *BadgeService) ListForUser(ctx context.Context, userID uint) ([]UserBadge, error) {
	awarded, err := s.BadgeRepo.WithTx(s.DB.WithContext(ctx)).ListAwarded(userID)
	if err != nil {
		return nil, err
	}
	badges := make([]UserBadge, 0, len(awarded))
	for _, a := range awarded {
		if a.Badge == nil {
			continue
		}
		badges = append(badges, UserBadge{Badge: *a.Badge, AwardedAt: a.AwardedAt})
	}
	return badges, nil
}

// counterCache 单次评估内同一计数器只查询一次
type counterCache struct {
	registry *CounterRegistry
	db       *gorm.DB
	userID   uint
	values   map[string]int64
}

func newCounterCache(registry *CounterRegistry, db *gorm.DB, userID uint) *counterCache {
	return &counterCache{registry: registry, db: db, userID: userID, values: make(map[string]int64)}
}

func (c *counterCache) get(ctx context.Context, key string) (int64, bool, error) {
	if v, ok := c.values[key]; ok {
		return v, true, nil
	}
	counter, ok := c.registry.Lookup(key)
	if !ok {
		return 0, false, nil
	}
	v, err := counter.Count(ctx, c.db, c.userID)
	if err != nil {
		return 0, true, err
	}
	c.values[key] = v
	return v, true, nil
}
