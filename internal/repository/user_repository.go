package repository

import (
	"academy_backend/internal/model"
	"errors"
	"time"

	"gorm.io/gorm"
)

type UserRepository struct {
	DB *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{DB: db}
}

// WithTx 绑定到指定事务（或带 context 的会话）
func (r *UserRepository) WithTx(tx *gorm.DB) *UserRepository {
	return &UserRepository{DB: tx}
}

// UserFilter 批量操作的筛选条件，零值表示不过滤
type UserFilter struct {
	Role  model.UserRole
	Email string
}

func (r *UserRepository) Create(user *model.User) error {
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	if user.UpdatedAt.IsZero() {
		user.UpdatedAt = now
	}
	return r.DB.Create(user).Error
}

// FindByID 用户不存在时返回 (nil, nil)
func (r *UserRepository) FindByID(id uint) (*model.User, error) {
	var user model.User
	err := r.DB.First(&user, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) FindByEmail(email string) (*model.User, error) {
	var user model.User
	err := r.DB.Where("email = ?", email).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) Exists(id uint) (bool, error) {
	var count int64
	err := r.DB.Model(&model.User{}).Where("id = ?", id).Count(&count).Error
	return count > 0, err
}

// FindLearners 查询参与每周任务的学员（FREE/ENROLLED）
func (r *UserRepository) FindLearners(filter UserFilter) ([]model.User, error) {
	var users []model.User
	query := r.DB.Model(&model.User{}).
		Where("role IN ?", []model.UserRole{model.RoleFree, model.RoleEnrolled})
	if filter.Role != "" {
		query = query.Where("role = ?", filter.Role)
	}
	if filter.Email != "" {
		query = query.Where("email = ?", filter.Email)
	}
	err := query.Order("id asc").Find(&users).Error
	return users, err
}
