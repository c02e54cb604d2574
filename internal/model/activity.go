package model

import (
	"time"

	"gorm.io/datatypes"
)

type ActivityKind string

const (
	KindWorksheetSubmitted  ActivityKind = "WORKSHEET_SUBMITTED"
	KindQuizPassed          ActivityKind = "QUIZ_PASSED"
	KindLessonAttended      ActivityKind = "LESSON_ATTENDED"
	KindArticlePublished    ActivityKind = "ARTICLE_PUBLISHED"
	KindLessonWatchProgress ActivityKind = "LESSON_WATCH_PROGRESS"
)

var ActivityKinds = []ActivityKind{
	KindWorksheetSubmitted,
	KindQuizPassed,
	KindLessonAttended,
	KindArticlePublished,
	KindLessonWatchProgress,
}

func (k ActivityKind) Valid() bool {
	for _, v := range ActivityKinds {
		if v == k {
			return true
		}
	}
	return false
}

// ActivityEvent 规范化后的活动事件流水
type ActivityEvent struct {
	UUIDBase
	UserID  uint              `gorm:"index;not null" json:"userId"`
	Kind    ActivityKind      `gorm:"size:40;index;not null" json:"kind"`
	At      time.Time         `gorm:"not null" json:"at"`
	Ref     TargetRef         `gorm:"embedded;embeddedPrefix:ref_" json:"ref"`
	Payload datatypes.JSONMap `json:"payload,omitempty"`
}

func (ActivityEvent) TableName() string {
	return "activity_events"
}
