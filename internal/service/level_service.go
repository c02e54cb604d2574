package service

import (
	"academy_backend/internal/model"
	"academy_backend/internal/repository"
	"academy_backend/internal/util"
	"context"
	"fmt"
	"sort"

	"gorm.io/gorm"
)

// LevelService 等级解析，等级表很小，每次直接读取
type LevelService struct {
	DB        *gorm.DB
	LevelRepo *repository.LevelRepository
}

func NewLevelService(db *gorm.DB, levelRepo *repository.LevelRepository) *LevelService {
	return &LevelService{DB: db, LevelRepo: levelRepo}
}

// Levels 按 xp_required 升序
func (s *LevelService) Levels(ctx context.Context, db *gorm.DB) ([]model.Level, error) {
	if db == nil {
		db = s.DB
	}
	return s.LevelRepo.WithTx(db.WithContext(ctx)).ListOrdered()
}

// ValidateCatalog 启动时调用，等级表不合法时返回 ErrLevelCatalog
func (s *LevelService) ValidateCatalog(ctx context.Context) error {
	levels, err := s.Levels(ctx, nil)
	if err != nil {
		return err
	}
	return ValidateLevels(levels)
}

// ValidateLevels 等级编号 ≥1、所需经验 ≥0，且两者都唯一
func ValidateLevels(levels []model.Level) error {
	seenLevel := make(map[int]bool, len(levels))
	seenXP := make(map[int]bool, len(levels))
	for _, l := range levels {
		if l.Level < 1 {
			return fmt.Errorf("%w: level number %d must be >= 1", util.ErrLevelCatalog, l.Level)
		}
		if l.XPRequired < 0 {
			return fmt.Errorf("%w: level %d has negative xp_required", util.ErrLevelCatalog, l.Level)
		}
		if seenLevel[l.Level] {
			return fmt.Errorf("%w: duplicate level number %d", util.ErrLevelCatalog, l.Level)
		}
		if seenXP[l.XPRequired] {
			return fmt.Errorf("%w: duplicate xp_required %d", util.ErrLevelCatalog, l.XPRequired)
		}
		seenLevel[l.Level] = true
		seenXP[l.XPRequired] = true
	}
	return nil
}

// ResolveLevel 所需经验不超过 total 的最高等级，没有则为 nil
func ResolveLevel(levels []model.Level, total int) *model.Level {
	var current *model.Level
	for i := range levels {
		l := &levels[i]
		if l.XPRequired > total {
			continue
		}
		if current == nil || l.XPRequired > current.XPRequired {
			current = l
		}
	}
	return current
}

// NextLevelXP 下一等级所需经验，已是最高级时为 nil
func NextLevelXP(levels []model.Level, total int) *int {
	sorted := append([]model.Level(nil), levels...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].XPRequired < sorted[j].XPRequired })

	floor := -1
	if current := ResolveLevel(sorted, total); current != nil {
		floor = current.XPRequired
	}
	for _, l := range sorted {
		if l.XPRequired > floor {
			next := l.XPRequired
			return &next
		}
	}
	return nil
}
