package model

import (
	"time"

	"gorm.io/datatypes"
)

type XPSource string

const (
	XPSourceSystem XPSource = "SYSTEM"
	XPSourceManual XPSource = "MANUAL"
	XPSourceAction XPSource = "ACTION"
)

// XPEvent 经验值流水，只追加；某用户所有记录之和即总经验
type XPEvent struct {
	ID            uint              `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID        uint              `gorm:"index:idx_xp_user_time,priority:1;not null" json:"userId"`
	Action        string            `gorm:"size:255;not null" json:"action"`
	XP            int               `gorm:"column:xp;not null" json:"xp"`
	BadgeID       *uint             `gorm:"index" json:"badgeId,omitempty"`
	RelatedObject datatypes.JSONMap `json:"relatedObject,omitempty"`
	Source        XPSource          `gorm:"size:20;not null;default:'ACTION'" json:"source"`
	Timestamp     time.Time         `gorm:"index:idx_xp_user_time,priority:2;not null" json:"timestamp"`
}

func (XPEvent) TableName() string {
	return "xp_events"
}

// UserLevelState 由 XPEvent 推导出的汇总，累加时加行锁
type UserLevelState struct {
	ID             uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID         uint      `gorm:"uniqueIndex;not null" json:"userId"`
	TotalXP        int       `gorm:"column:total_xp;default:0;not null" json:"totalXp"`
	CurrentLevelID *uint     `json:"currentLevelId,omitempty"`
	CurrentLevel   *Level    `gorm:"foreignKey:CurrentLevelID" json:"currentLevel,omitempty"`
	LastUpdated    time.Time `json:"lastUpdated"`
}

func (UserLevelState) TableName() string {
	return "user_level_states"
}
