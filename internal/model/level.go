package model

// swagger:model Level
// Level 等级表，level 与 xp_required 均唯一
type Level struct {
	BaseModel
	Level      int    `gorm:"uniqueIndex;not null" json:"level"`
	Title      string `gorm:"size:100;not null" json:"title"`
	XPRequired int    `gorm:"column:xp_required;uniqueIndex;not null;default:0" json:"xpRequired"`
}

func (Level) TableName() string {
	return "levels"
}
