package model

type UserRole string

const (
	RoleEnrolled  UserRole = "ENROLLED"
	RoleFree      UserRole = "FREE"
	RoleLecturer  UserRole = "LECTURER"
	RoleVolunteer UserRole = "VOLUNTEER"
	RoleBlogger   UserRole = "BLOGGER"
	RolePartner   UserRole = "PARTNER"
	RoleAdmin     UserRole = "ADMIN"
)

// IsLearner 只有学员（付费/免费）参与每周任务
func (r UserRole) IsLearner() bool {
	return r == RoleEnrolled || r == RoleFree
}

// swagger:model User
// User 身份由外部系统维护，这里只保留游戏化需要的字段
type User struct {
	BaseModel
	Name            string   `gorm:"size:100;not null" json:"name"`
	Email           string   `gorm:"size:100;uniqueIndex;not null" json:"email"`
	Role            UserRole `gorm:"size:20;index;default:'FREE'" json:"role"`
	ProgramCategory *string  `gorm:"size:50" json:"programCategory,omitempty"`
	ProgramLevel    *string  `gorm:"size:50" json:"programLevel,omitempty"`
}

func (User) TableName() string {
	return "users"
}
