package model

import (
	"time"

	"gorm.io/datatypes"
)

type WeeklyTaskType string

const (
	TaskTypeArticle   WeeklyTaskType = "ARTICLE"
	TaskTypeLesson    WeeklyTaskType = "LESSON"
	TaskTypeTimeSpent WeeklyTaskType = "TIME_SPENT"
	TaskTypeQuiz      WeeklyTaskType = "QUIZ"
	TaskTypeWorksheet WeeklyTaskType = "WORKSHEET"
)

type Audience string

const (
	AudienceFree     Audience = "FREE"
	AudienceEnrolled Audience = "ENROLLED"
	AudienceBoth     Audience = "BOTH"
)

// Matches 判断任务受众是否覆盖该角色
func (a Audience) Matches(role UserRole) bool {
	switch role {
	case RoleFree:
		return a == AudienceFree || a == AudienceBoth
	case RoleEnrolled:
		return a == AudienceEnrolled || a == AudienceBoth
	}
	return false
}

type Segment string

const (
	SegmentNewbie  Segment = "NEWBIE"
	SegmentRamping Segment = "RAMPING"
	SegmentEngaged Segment = "ENGAGED"
)

// Rank NEWBIE < RAMPING < ENGAGED
func (s Segment) Rank() int {
	switch s {
	case SegmentRamping:
		return 1
	case SegmentEngaged:
		return 2
	}
	return 0
}

type TaskStatus string

const (
	TaskPending    TaskStatus = "PENDING"
	TaskInProgress TaskStatus = "IN_PROGRESS"
	TaskCompleted  TaskStatus = "COMPLETED"
)

// swagger:model WeeklyTask
type WeeklyTask struct {
	BaseModel
	Code          string         `gorm:"size:100;uniqueIndex;not null" json:"code"`
	Title         string         `gorm:"size:255;not null" json:"title"`
	Description   string         `gorm:"type:text" json:"description"`
	TaskType      WeeklyTaskType `gorm:"size:20;not null" json:"taskType"`
	TargetCount   int            `gorm:"not null;default:1" json:"targetCount"` // TIME_SPENT 时单位为分钟
	CooldownWeeks int            `gorm:"not null;default:0" json:"cooldownWeeks"`
	Audience      Audience       `gorm:"size:20;not null;default:'BOTH'" json:"audience"`
	MinSegment    *Segment       `gorm:"size:20" json:"minSegment,omitempty"`
	IsActive      bool           `gorm:"default:true;index" json:"isActive"`
}

func (WeeklyTask) TableName() string {
	return "weekly_tasks"
}

// WeeklyTaskAssignment 某用户在某周的任务实例，历史周保留用于冷却判断
type WeeklyTaskAssignment struct {
	ID         uint              `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID     uint              `gorm:"not null;uniqueIndex:idx_user_task_week,priority:1" json:"userId"`
	TaskID     uint              `gorm:"not null;uniqueIndex:idx_user_task_week,priority:2;index" json:"taskId"`
	WeekStart  time.Time         `gorm:"not null;uniqueIndex:idx_user_task_week,priority:3;index" json:"weekStart"`
	Current    int               `gorm:"not null;default:0" json:"current"`
	Status     TaskStatus        `gorm:"size:20;not null;default:'PENDING'" json:"status"`
	Progress   datatypes.JSONMap `json:"progress"`
	AssignedAt time.Time         `json:"assignedAt"`
	UpdatedAt  time.Time         `json:"updatedAt"`
	Task       *WeeklyTask       `gorm:"foreignKey:TaskID" json:"task,omitempty"`
}

func (WeeklyTaskAssignment) TableName() string {
	return "weekly_task_assignments"
}
