package model

import (
	"time"

	"gorm.io/datatypes"
)

// EngagementPing 前端心跳，(user, minute) 唯一，minute 为取整到分钟的 UTC 时间
type EngagementPing struct {
	ID     uint              `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID uint              `gorm:"not null;uniqueIndex:idx_user_minute,priority:1" json:"userId"`
	Minute time.Time         `gorm:"not null;uniqueIndex:idx_user_minute,priority:2;index" json:"minute"`
	Page   *string           `gorm:"size:255" json:"page,omitempty"`
	Meta   datatypes.JSONMap `json:"meta,omitempty"`
}

func (EngagementPing) TableName() string {
	return "engagement_pings"
}
