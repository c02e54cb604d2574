package model

import (
	"time"

	"gorm.io/datatypes"
)

type BadgeRarity string

const (
	RarityCommon    BadgeRarity = "common"
	RarityRare      BadgeRarity = "rare"
	RarityEpic      BadgeRarity = "epic"
	RarityLegendary BadgeRarity = "legendary"
)

// Criteria 计数器键 -> 阈值，例如 {"lessons_attended": 1, "worksheets_submitted": 3}
type Criteria map[string]int64

// TargetRef 徽章可以指向任意实体（模块、课程、活动……）
type TargetRef struct {
	Kind string `gorm:"size:50" json:"kind,omitempty"`
	ID   *uint  `json:"id,omitempty"`
}

func (t TargetRef) IsZero() bool {
	return t.Kind == "" && t.ID == nil
}

// swagger:model Badge
type Badge struct {
	BaseModel
	Slug            string                       `gorm:"size:100;uniqueIndex;not null" json:"slug"`
	Name            string                       `gorm:"size:100;not null" json:"name"`
	Description     string                       `gorm:"type:text" json:"description"`
	Icon            string                       `gorm:"size:255" json:"icon"`
	AchievementType string                       `gorm:"size:50" json:"achievementType"`
	Rarity          BadgeRarity                  `gorm:"size:16;default:'common'" json:"rarity"`
	Criteria        datatypes.JSONType[Criteria] `json:"criteria"`
	XPReward        int                          `gorm:"default:0;check:xp_reward >= 0" json:"xpReward"`
	IsActive        bool                         `gorm:"default:true;index" json:"isActive"`
	IsHidden        bool                         `gorm:"default:false" json:"isHidden"`
	ValidFrom       *time.Time                   `json:"validFrom,omitempty"`
	ValidUntil      *time.Time                   `json:"validUntil,omitempty"`
	ModuleID        *uint                        `gorm:"index" json:"moduleId,omitempty"`
	Target          TargetRef                    `gorm:"embedded;embeddedPrefix:target_" json:"target"`
}

func (Badge) TableName() string {
	return "badges"
}

// CriteriaMap 返回徽章条件，空值视为无条件
func (b *Badge) CriteriaMap() Criteria {
	c := b.Criteria.Data()
	if c == nil {
		return Criteria{}
	}
	return c
}

// AvailableAt 判断徽章在指定时间是否处于有效期内
func (b *Badge) AvailableAt(now time.Time) bool {
	if b.ValidFrom != nil && b.ValidFrom.After(now) {
		return false
	}
	if b.ValidUntil != nil && !b.ValidUntil.After(now) {
		return false
	}
	return true
}

// AwardedBadge (user, badge) 唯一，保证同一徽章最多颁发一次
type AwardedBadge struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_user_badge,priority:1" json:"userId"`
	BadgeID   uint      `gorm:"not null;uniqueIndex:idx_user_badge,priority:2;index" json:"badgeId"`
	AwardedAt time.Time `gorm:"not null" json:"awardedAt"`
	Badge     *Badge    `gorm:"foreignKey:BadgeID" json:"badge,omitempty"`
}

func (AwardedBadge) TableName() string {
	return "awarded_badges"
}

const AwardSourceEvaluator = "evaluator"

// BadgeAwardLog 颁发审计日志，只追加，评估时不读取
type BadgeAwardLog struct {
	ID        uint              `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    uint              `gorm:"index;not null" json:"userId"`
	BadgeID   uint              `gorm:"index;not null" json:"badgeId"`
	AwardedAt time.Time         `gorm:"not null" json:"awardedAt"`
	Source    string            `gorm:"size:50;not null" json:"source"`
	Reason    string            `gorm:"size:255" json:"reason"`
	Metadata  datatypes.JSONMap `json:"metadata"`
}

func (BadgeAwardLog) TableName() string {
	return "badge_award_logs"
}
