package repository

import (
	"academy_backend/internal/model"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type EngagementRepository struct {
	DB *gorm.DB
}

func NewEngagementRepository(db *gorm.DB) *EngagementRepository {
	return &EngagementRepository{DB: db}
}

func (r *EngagementRepository) WithTx(tx *gorm.DB) *EngagementRepository {
	return &EngagementRepository{DB: tx}
}

// CreatePingIgnoreDuplicate 同一分钟重复心跳直接忽略，返回是否新写入
func (r *EngagementRepository) CreatePingIgnoreDuplicate(ping *model.EngagementPing) (bool, error) {
	result := r.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "minute"}},
		DoNothing: true,
	}).Create(ping)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// ListMinutes [from, to) 内的心跳分钟，用于按天分桶
func (r *EngagementRepository) ListMinutes(userID uint, from, to time.Time) ([]time.Time, error) {
	var minutes []time.Time
	err := r.DB.Model(&model.EngagementPing{}).
		Where("user_id = ? AND minute >= ? AND minute < ?", userID, from, to).
		Order("minute asc").
		Pluck("minute", &minutes).Error
	return minutes, err
}

func (r *EngagementRepository) CountBetween(userID uint, from, to time.Time) (int64, error) {
	var count int64
	err := r.DB.Model(&model.EngagementPing{}).
		Where("user_id = ? AND minute >= ? AND minute < ?", userID, from, to).
		Count(&count).Error
	return count, err
}

func (r *EngagementRepository) CountAll(userID uint) (int64, error) {
	var count int64
	err := r.DB.Model(&model.EngagementPing{}).Where("user_id = ?", userID).Count(&count).Error
	return count, err
}

// DeleteBefore 清理早于 cutoff 的心跳
func (r *EngagementRepository) DeleteBefore(cutoff time.Time) (int64, error) {
	result := r.DB.Where("minute < ?", cutoff).Delete(&model.EngagementPing{})
	return result.RowsAffected, result.Error
}
