package model

import (
	"time"
)

type ArticleStatus string

const (
	ArticleDraft     ArticleStatus = "DRAFT"
	ArticlePublished ArticleStatus = "PUBLISHED"
)

// Article 博客文章的投影，ExternalID 为内容系统中的文章ID
type Article struct {
	BaseModel
	ExternalID  *uint         `gorm:"uniqueIndex" json:"externalId,omitempty"`
	EventID     *string       `gorm:"size:36;index" json:"eventId,omitempty"`
	AuthorID    uint          `gorm:"index;not null" json:"authorId"`
	Status      ArticleStatus `gorm:"size:20;not null;default:'DRAFT'" json:"status"`
	PublishedAt *time.Time    `gorm:"index" json:"publishedAt,omitempty"`
}

func (Article) TableName() string {
	return "articles"
}
