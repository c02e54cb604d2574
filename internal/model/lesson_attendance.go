package model

import (
	"time"
)

// LessonAttendance 用户的课程出勤/观看记录，(user, lesson) 唯一；不带课程ID的事件按事件各占一行
type LessonAttendance struct {
	BaseModel
	UserID          uint       `gorm:"not null;uniqueIndex:idx_user_lesson,priority:1" json:"userId"`
	LessonID        *uint      `gorm:"uniqueIndex:idx_user_lesson,priority:2" json:"lessonId,omitempty"`
	EventID         *string    `gorm:"size:36;index" json:"eventId,omitempty"`
	ModuleID        *uint      `gorm:"index" json:"moduleId,omitempty"`
	AttendedLive    bool       `gorm:"default:false" json:"attendedLive"`
	WatchedReplay   bool       `gorm:"default:false" json:"watchedReplay"`
	WatchedPercent  float64    `gorm:"default:0" json:"watchedPercent"`
	DurationMinutes int        `gorm:"default:0" json:"durationMinutes"`
	Attended        bool       `gorm:"default:false;index" json:"attended"`
	AttendedAt      *time.Time `gorm:"index" json:"attendedAt,omitempty"`
	LastWatchedAt   time.Time  `gorm:"index" json:"lastWatchedAt"`
}

func (LessonAttendance) TableName() string {
	return "lesson_attendances"
}

// LessonWatchLog 每次上报新增的观看分钟，按上报时间归属到天和周
type LessonWatchLog struct {
	ID           uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID       uint      `gorm:"not null;index:idx_watch_user_at,priority:1" json:"userId"`
	LessonID     *uint     `gorm:"index" json:"lessonId,omitempty"`
	DeltaMinutes int       `gorm:"not null" json:"deltaMinutes"`
	WatchedAt    time.Time `gorm:"not null;index:idx_watch_user_at,priority:2" json:"watchedAt"`
}

func (LessonWatchLog) TableName() string {
	return "lesson_watch_logs"
}
