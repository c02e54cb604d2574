package repository

import (
	"academy_backend/internal/model"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type XPRepository struct {
	DB *gorm.DB
}

func NewXPRepository(db *gorm.DB) *XPRepository {
	return &XPRepository{DB: db}
}

func (r *XPRepository) WithTx(tx *gorm.DB) *XPRepository {
	return &XPRepository{DB: tx}
}

// LeaderboardEntry 排行榜条目
type LeaderboardEntry struct {
	Rank       int    `json:"rank"`
	UserID     uint   `json:"userId"`
	Name       string `json:"name"`
	TotalXP    int    `json:"totalXp"`
	Level      *int   `json:"level,omitempty"`
	LevelTitle string `json:"levelTitle,omitempty"`
}

func (r *XPRepository) CreateEvent(event *model.XPEvent) error {
	return r.DB.Create(event).Error
}

// EnsureState 确保用户的等级状态行存在，已存在时不做任何修改
func (r *XPRepository) EnsureState(userID uint, now time.Time) error {
	return r.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoNothing: true,
	}).Create(&model.UserLevelState{UserID: userID, LastUpdated: now}).Error
}

// LockState SELECT ... FOR UPDATE，必须在事务中调用
func (r *XPRepository) LockState(userID uint) (*model.UserLevelState, error) {
	var state model.UserLevelState
	err := r.DB.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		First(&state).Error
	if err != nil {
		return nil, err
	}
	return &state, nil
}

func (r *XPRepository) SaveState(state *model.UserLevelState) error {
	return r.DB.Model(&model.UserLevelState{}).
		Where("id = ?", state.ID).
		Updates(map[string]interface{}{
			"total_xp":         state.TotalXP,
			"current_level_id": state.CurrentLevelID,
			"last_updated":     state.LastUpdated,
		}).Error
}

// FindState 没有记录时返回 (nil, nil)
func (r *XPRepository) FindState(userID uint) (*model.UserLevelState, error) {
	var state model.UserLevelState
	err := r.DB.Preload("CurrentLevel").Where("user_id = ?", userID).First(&state).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}

// SumXP 流水之和，用于对账
func (r *XPRepository) SumXP(userID uint) (int64, error) {
	var total int64
	err := r.DB.Model(&model.XPEvent{}).
		Where("user_id = ?", userID).
		Select("COALESCE(SUM(xp), 0)").
		Scan(&total).Error
	return total, err
}

func (r *XPRepository) ListEvents(userID uint, limit int) ([]model.XPEvent, error) {
	var events []model.XPEvent
	query := r.DB.Where("user_id = ?", userID).Order("timestamp desc, id desc")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&events).Error
	return events, err
}

// Leaderboard 按总经验降序
func (r *XPRepository) Leaderboard(limit int) ([]LeaderboardEntry, error) {
	type row struct {
		UserID     uint
		Name       string
		TotalXP    int
		Level      *int
		LevelTitle *string
	}
	var rows []row
	err := r.DB.Table("user_level_states AS s").
		Select("s.user_id, users.name, s.total_xp, levels.level, levels.title AS level_title").
		Joins("JOIN users ON users.id = s.user_id AND users.deleted_at IS NULL").
		Joins("LEFT JOIN levels ON levels.id = s.current_level_id").
		Order("s.total_xp desc, s.user_id asc").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	entries := make([]LeaderboardEntry, len(rows))
	for i, row := range rows {
		entries[i] = LeaderboardEntry{
			Rank:    i + 1,
			UserID:  row.UserID,
			Name:    row.Name,
			TotalXP: row.TotalXP,
			Level:   row.Level,
		}
		if row.LevelTitle != nil {
			entries[i].LevelTitle = *row.LevelTitle
		}
	}
	return entries, nil
}
