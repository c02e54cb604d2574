package repository

import (
	"academy_backend/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type LevelRepository struct {
	DB *gorm.DB
}

func NewLevelRepository(db *gorm.DB) *LevelRepository {
	return &LevelRepository{DB: db}
}

func (r *LevelRepository) WithTx(tx *gorm.DB) *LevelRepository {
	return &LevelRepository{DB: tx}
}

// ListOrdered 按所需经验升序返回全部等级
func (r *LevelRepository) ListOrdered() ([]model.Level, error) {
	var levels []model.Level
	err := r.DB.Order("xp_required asc").Find(&levels).Error
	return levels, err
}

func (r *LevelRepository) Count() (int64, error) {
	var count int64
	err := r.DB.Model(&model.Level{}).Count(&count).Error
	return count, err
}

// Upsert 以 level 编号为键写入等级
func (r *LevelRepository) Upsert(level *model.Level) error {
	return r.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "level"}},
		DoUpdates: clause.AssignmentColumns([]string{"title", "xp_required", "updated_at"}),
	}).Create(level).Error
}
