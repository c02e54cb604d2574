package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// swagger:model
// BaseModel 自增主键 + 时间戳 + 软删除
type BaseModel struct {
	ID        uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// swagger:model
// UUIDBase 用于由外部系统生成、需要全局唯一的记录（如活动事件）
type UUIDBase struct {
	ID        string         `gorm:"primaryKey;type:varchar(36)" json:"id"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (b *UUIDBase) BeforeCreate(tx *gorm.DB) (err error) {
	if b.ID == "" {
		b.ID = GenerateUUID()
	}
	return
}

func GenerateUUID() string {
	return uuid.New().String()
}

// AllModels 需要自动迁移的全部表
func AllModels() []interface{} {
	return []interface{}{
		&User{},
		&Level{},
		&UserLevelState{},
		&XPEvent{},
		&Badge{},
		&AwardedBadge{},
		&BadgeAwardLog{},
		&WeeklyTask{},
		&WeeklyTaskAssignment{},
		&EngagementPing{},
		&ActivityEvent{},
		&LessonAttendance{},
		&LessonWatchLog{},
		&QuizResult{},
		&WorksheetSubmission{},
		&Article{},
	}
}
