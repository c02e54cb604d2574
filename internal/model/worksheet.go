package model

import (
	"time"
)

// WorksheetSubmission 作业提交，(user, worksheet) 唯一；不带作业ID的事件按事件各占一行
type WorksheetSubmission struct {
	BaseModel
	UserID      uint      `gorm:"not null;uniqueIndex:idx_user_worksheet,priority:1" json:"userId"`
	WorksheetID *uint     `gorm:"uniqueIndex:idx_user_worksheet,priority:2" json:"worksheetId,omitempty"`
	EventID     *string   `gorm:"size:36;index" json:"eventId,omitempty"`
	SubmittedAt time.Time `gorm:"index;not null" json:"submittedAt"`
}

func (WorksheetSubmission) TableName() string {
	return "worksheet_submissions"
}
