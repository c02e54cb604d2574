package repository

import (
	"academy_backend/internal/model"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type WeeklyTaskRepository struct {
	DB *gorm.DB
}

func NewWeeklyTaskRepository(db *gorm.DB) *WeeklyTaskRepository {
	return &WeeklyTaskRepository{DB: db}
}

func (r *WeeklyTaskRepository) WithTx(tx *gorm.DB) *WeeklyTaskRepository {
	return &WeeklyTaskRepository{DB: tx}
}

func (r *WeeklyTaskRepository) ListActiveTasks() ([]model.WeeklyTask, error) {
	var tasks []model.WeeklyTask
	err := r.DB.Where("is_active = ?", true).Order("id asc").Find(&tasks).Error
	return tasks, err
}

func (r *WeeklyTaskRepository) CountTasks() (int64, error) {
	var count int64
	err := r.DB.Model(&model.WeeklyTask{}).Count(&count).Error
	return count, err
}

// UpsertTask 以 code 为键写入任务定义
func (r *WeeklyTaskRepository) UpsertTask(task *model.WeeklyTask) error {
	return r.DB.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "code"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"title", "description", "task_type", "target_count", "cooldown_weeks",
			"audience", "min_segment", "is_active", "updated_at",
		}),
	}).Create(task).Error
}

// CreateAssignmentIgnoreDuplicate 依赖 (user_id, task_id, week_start) 唯一索引
func (r *WeeklyTaskRepository) CreateAssignmentIgnoreDuplicate(a *model.WeeklyTaskAssignment) (bool, error) {
	result := r.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "task_id"}, {Name: "week_start"}},
		DoNothing: true,
	}).Create(a)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// AssignedBetween 是否在 [from, to] 之间的某周已分配过该任务
func (r *WeeklyTaskRepository) AssignedBetween(userID, taskID uint, from, to time.Time) (bool, error) {
	var count int64
	err := r.DB.Model(&model.WeeklyTaskAssignment{}).
		Where("user_id = ? AND task_id = ? AND week_start >= ? AND week_start <= ?", userID, taskID, from, to).
		Count(&count).Error
	return count > 0, err
}

// ListForWeek 用户某周的全部任务（含任务定义）
func (r *WeeklyTaskRepository) ListForWeek(userID uint, weekStart time.Time) ([]model.WeeklyTaskAssignment, error) {
	var assignments []model.WeeklyTaskAssignment
	err := r.DB.Preload("Task").
		Where("user_id = ? AND week_start = ?", userID, weekStart).
		Order("id asc").
		Find(&assignments).Error
	return assignments, err
}

func (r *WeeklyTaskRepository) UpdateProgress(a *model.WeeklyTaskAssignment) error {
	return r.DB.Model(&model.WeeklyTaskAssignment{}).
		Where("id = ?", a.ID).
		Updates(map[string]interface{}{
			"current":    a.Current,
			"status":     a.Status,
			"progress":   a.Progress,
			"updated_at": a.UpdatedAt,
		}).Error
}

// CountCompleted 历史上完成的每周任务数
func (r *WeeklyTaskRepository) CountCompleted(userID uint) (int64, error) {
	var count int64
	err := r.DB.Model(&model.WeeklyTaskAssignment{}).
		Where("user_id = ? AND status = ?", userID, model.TaskCompleted).
		Count(&count).Error
	return count, err
}
