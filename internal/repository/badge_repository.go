package repository

import (
	"academy_backend/internal/model"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type BadgeRepository struct {
	DB *gorm.DB
}

func NewBadgeRepository(db *gorm.DB) *BadgeRepository {
	return &BadgeRepository{DB: db}
}

func (r *BadgeRepository) WithTx(tx *gorm.DB) *BadgeRepository {
	return &BadgeRepository{DB: tx}
}

// ListActiveVisible 启用且非隐藏的徽章，有效期由调用方判断
func (r *BadgeRepository) ListActiveVisible() ([]model.Badge, error) {
	var badges []model.Badge
	err := r.DB.Where("is_active = ? AND is_hidden = ?", true, false).
		Order("id asc").
		Find(&badges).Error
	return badges, err
}

func (r *BadgeRepository) FindByID(id uint) (*model.Badge, error) {
	var badge model.Badge
	err := r.DB.First(&badge, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &badge, nil
}

func (r *BadgeRepository) FindBySlug(slug string) (*model.Badge, error) {
	var badge model.Badge
	err := r.DB.Where("slug = ?", slug).First(&badge).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &badge, nil
}

func (r *BadgeRepository) Count() (int64, error) {
	var count int64
	err := r.DB.Model(&model.Badge{}).Count(&count).Error
	return count, err
}

// Upsert 以 slug 为键写入徽章定义
func (r *BadgeRepository) Upsert(badge *model.Badge) error {
	return r.DB.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "slug"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"name", "description", "icon", "achievement_type", "rarity", "criteria",
			"xp_reward", "is_active", "is_hidden", "valid_from", "valid_until",
			"module_id", "target_kind", "target_id", "updated_at",
		}),
	}).Create(badge).Error
}

// AwardedBadgeIDs 用户已获得的徽章ID集合
func (r *BadgeRepository) AwardedBadgeIDs(userID uint) (map[uint]struct{}, error) {
	var ids []uint
	err := r.DB.Model(&model.AwardedBadge{}).
		Where("user_id = ?", userID).
		Pluck("badge_id", &ids).Error
	if err != nil {
		return nil, err
	}
	set := make(map[uint]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set, nil
}

// CreateAwardIgnoreDuplicate 依赖 (user_id, badge_id) 唯一索引，返回是否为新颁发
func (r *BadgeRepository) CreateAwardIgnoreDuplicate(award *model.AwardedBadge) (bool, error) {
	result := r.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "badge_id"}},
		DoNothing: true,
	}).Create(award)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *BadgeRepository) CreateLog(log *model.BadgeAwardLog) error {
	return r.DB.Create(log).Error
}

// ListAwarded 用户的徽章（含定义），按获得时间排序
func (r *BadgeRepository) ListAwarded(userID uint) ([]model.AwardedBadge, error) {
	var awarded []model.AwardedBadge
	err := r.DB.Preload("Badge").
		Where("user_id = ?", userID).
		Order("awarded_at asc, id asc").
		Find(&awarded).Error
	return awarded, err
}

func (r *BadgeRepository) CountAwarded(userID, badgeID uint) (int64, error) {
	var count int64
	err := r.DB.Model(&model.AwardedBadge{}).
		Where("user_id = ? AND badge_id = ?", userID, badgeID).
		Count(&count).Error
	return count, err
}

func (r *BadgeRepository) ListLogs(userID uint) ([]model.BadgeAwardLog, error) {
	var logs []model.BadgeAwardLog
	err := r.DB.Where("user_id = ?", userID).Order("id asc").Find(&logs).Error
	return logs, err
}
