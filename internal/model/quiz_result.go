package model

import (
	"time"
)

// QuizResult 存储用户的测验结果，(user, quiz) 唯一，保留最好成绩
type QuizResult struct {
	BaseModel
	UserID   uint       `gorm:"not null;uniqueIndex:idx_user_quiz,priority:1" json:"userId"`
	QuizID   *uint      `gorm:"uniqueIndex:idx_user_quiz,priority:2" json:"quizId,omitempty"`
	EventID  *string    `gorm:"size:36;index" json:"eventId,omitempty"`
	Score    int        `gorm:"not null;default:0" json:"score"`
	Total    int        `gorm:"not null;default:0" json:"total"`
	Passed   bool       `gorm:"default:false;index" json:"passed"`
	PassedAt *time.Time `gorm:"index" json:"passedAt,omitempty"`
}

func (QuizResult) TableName() string {
	return "quiz_results"
}
