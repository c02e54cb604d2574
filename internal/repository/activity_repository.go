package repository

import (
	"academy_backend/internal/model"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ActivityRepository 活动事件流水以及计数器读取的领域事实（作业、测验、课程、文章）
type ActivityRepository struct {
	DB *gorm.DB
}

func NewActivityRepository(db *gorm.DB) *ActivityRepository {
	return &ActivityRepository{DB: db}
}

func (r *ActivityRepository) WithTx(tx *gorm.DB) *ActivityRepository {
	return &ActivityRepository{DB: tx}
}

// LessonProgress 一次观看/出勤上报
type LessonProgress struct {
	UserID          uint
	LessonID        uint
	ModuleID        *uint
	AttendedLive    bool
	WatchedReplay   bool
	WatchedPercent  float64
	DurationMinutes int
	At              time.Time
}

// LessonWatch 一次上报新增的观看分钟
type LessonWatch struct {
	WatchedAt time.Time
	Minutes   int
}

func (r *ActivityRepository) CreateEvent(event *model.ActivityEvent) error {
	return r.DB.Create(event).Error
}

func (r *ActivityRepository) ListEvents(userID uint, limit int) ([]model.ActivityEvent, error) {
	var events []model.ActivityEvent
	query := r.DB.Where("user_id = ?", userID).Order("at desc")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&events).Error
	return events, err
}

// CreateWorksheetIgnoreDuplicate 返回是否首次提交
func (r *ActivityRepository) CreateWorksheetIgnoreDuplicate(sub *model.WorksheetSubmission) (bool, error) {
	result := r.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "worksheet_id"}},
		DoNothing: true,
	}).Create(sub)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// RecordQuizScore 写入测验成绩，保留最高分
func (r *ActivityRepository) RecordQuizScore(userID, quizID uint, score, total int) error {
	err := r.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "quiz_id"}},
		DoNothing: true,
	}).Create(&model.QuizResult{UserID: userID, QuizID: &quizID, Score: score, Total: total}).Error
	if err != nil {
		return err
	}
	return r.DB.Model(&model.QuizResult{}).
		Where("user_id = ? AND quiz_id = ? AND score < ?", userID, quizID, score).
		Updates(map[string]interface{}{"score": score, "total": total}).Error
}

// MarkQuizPassed 条件更新，只有第一次通过返回 true
func (r *ActivityRepository) MarkQuizPassed(userID, quizID uint, at time.Time) (bool, error) {
	result := r.DB.Model(&model.QuizResult{}).
		Where("user_id = ? AND quiz_id = ? AND passed = ?", userID, quizID, false).
		Updates(map[string]interface{}{"passed": true, "passed_at": at})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// RecordLessonProgress 合并观看进度：布尔取或，百分比与时长取最大（客户端上报累计值）。
// 时长比已存累计值多出的部分按 p.At 记一条观看流水
func (r *ActivityRepository) RecordLessonProgress(p LessonProgress) (*model.LessonAttendance, error) {
	lessonID := p.LessonID
	err := r.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "lesson_id"}},
		DoNothing: true,
	}).Create(&model.LessonAttendance{
		UserID:        p.UserID,
		LessonID:      &lessonID,
		ModuleID:      p.ModuleID,
		LastWatchedAt: p.At,
	}).Error
	if err != nil {
		return nil, err
	}

	var stored model.LessonAttendance
	err = r.DB.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ? AND lesson_id = ?", p.UserID, p.LessonID).
		First(&stored).Error
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{
		"watched_percent":  gorm.Expr("CASE WHEN watched_percent < ? THEN ? ELSE watched_percent END", p.WatchedPercent, p.WatchedPercent),
		"duration_minutes": gorm.Expr("CASE WHEN duration_minutes < ? THEN ? ELSE duration_minutes END", p.DurationMinutes, p.DurationMinutes),
		"last_watched_at":  p.At,
	}
	if p.AttendedLive {
		updates["attended_live"] = true
	}
	if p.WatchedReplay {
		updates["watched_replay"] = true
	}
	if p.ModuleID != nil {
		updates["module_id"] = *p.ModuleID
	}
	err = r.DB.Model(&model.LessonAttendance{}).
		Where("id = ?", stored.ID).
		Updates(updates).Error
	if err != nil {
		return nil, err
	}

	if delta := p.DurationMinutes - stored.DurationMinutes; delta > 0 {
		if err := r.CreateWatchLog(p.UserID, &lessonID, delta, p.At); err != nil {
			return nil, err
		}
	}

	var row model.LessonAttendance
	if err := r.DB.First(&row, stored.ID).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

// CreateLessonAttendance 不带课程ID的上报，整行由调用方填好，时长即本次新增分钟
func (r *ActivityRepository) CreateLessonAttendance(row *model.LessonAttendance) error {
	if err := r.DB.Create(row).Error; err != nil {
		return err
	}
	if row.DurationMinutes > 0 {
		return r.CreateWatchLog(row.UserID, row.LessonID, row.DurationMinutes, row.LastWatchedAt)
	}
	return nil
}

func (r *ActivityRepository) CreateWatchLog(userID uint, lessonID *uint, minutes int, at time.Time) error {
	return r.DB.Create(&model.LessonWatchLog{
		UserID:       userID,
		LessonID:     lessonID,
		DeltaMinutes: minutes,
		WatchedAt:    at,
	}).Error
}

// CreateQuizResult 不带测验ID的成绩，每个事件一行
func (r *ActivityRepository) CreateQuizResult(row *model.QuizResult) error {
	return r.DB.Create(row).Error
}

// CreateArticle 不带文章ID的发布事件，每个事件一行
func (r *ActivityRepository) CreateArticle(row *model.Article) error {
	return r.DB.Create(row).Error
}

// MarkLessonAttended 条件更新，只有第一次出勤返回 true
func (r *ActivityRepository) MarkLessonAttended(userID, lessonID uint, at time.Time) (bool, error) {
	result := r.DB.Model(&model.LessonAttendance{}).
		Where("user_id = ? AND lesson_id = ? AND attended = ?", userID, lessonID, false).
		Updates(map[string]interface{}{"attended": true, "attended_at": at})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// MarkArticlePublished 首次发布返回 true
func (r *ActivityRepository) MarkArticlePublished(externalID, authorID uint, at time.Time) (bool, error) {
	err := r.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "external_id"}},
		DoNothing: true,
	}).Create(&model.Article{
		ExternalID: &externalID,
		AuthorID:   authorID,
		Status:     model.ArticleDraft,
	}).Error
	if err != nil {
		return false, err
	}

	result := r.DB.Model(&model.Article{}).
		Where("external_id = ? AND status <> ?", externalID, model.ArticlePublished).
		Updates(map[string]interface{}{"status": model.ArticlePublished, "published_at": at, "author_id": authorID})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// 计数器读取

func (r *ActivityRepository) CountQuizzesPassed(userID uint) (int64, error) {
	return r.count(&model.QuizResult{}, "user_id = ? AND passed = ?", userID, true)
}

func (r *ActivityRepository) CountWorksheetsSubmitted(userID uint) (int64, error) {
	return r.count(&model.WorksheetSubmission{}, "user_id = ?", userID)
}

func (r *ActivityRepository) CountLessonsAttended(userID uint) (int64, error) {
	return r.count(&model.LessonAttendance{}, "user_id = ? AND attended = ?", userID, true)
}

func (r *ActivityRepository) CountArticlesPublished(userID uint) (int64, error) {
	return r.count(&model.Article{}, "author_id = ? AND status = ?", userID, model.ArticlePublished)
}

// 以下均为 [from, to) 区间

func (r *ActivityRepository) CountQuizzesPassedBetween(userID uint, from, to time.Time) (int64, error) {
	return r.count(&model.QuizResult{}, "user_id = ? AND passed = ? AND passed_at >= ? AND passed_at < ?", userID, true, from, to)
}

func (r *ActivityRepository) CountWorksheetsSubmittedBetween(userID uint, from, to time.Time) (int64, error) {
	return r.count(&model.WorksheetSubmission{}, "user_id = ? AND submitted_at >= ? AND submitted_at < ?", userID, from, to)
}

func (r *ActivityRepository) CountLessonsAttendedBetween(userID uint, from, to time.Time) (int64, error) {
	return r.count(&model.LessonAttendance{}, "user_id = ? AND attended = ? AND attended_at >= ? AND attended_at < ?", userID, true, from, to)
}

func (r *ActivityRepository) CountArticlesPublishedBetween(userID uint, from, to time.Time) (int64, error) {
	return r.count(&model.Article{}, "author_id = ? AND status = ? AND published_at >= ? AND published_at < ?", userID, model.ArticlePublished, from, to)
}

// ListLessonWatches 观看流水，按上报时间落在 [from, to) 内
func (r *ActivityRepository) ListLessonWatches(userID uint, from, to time.Time) ([]LessonWatch, error) {
	var watches []LessonWatch
	err := r.DB.Model(&model.LessonWatchLog{}).
		Select("watched_at, delta_minutes AS minutes").
		Where("user_id = ? AND watched_at >= ? AND watched_at < ?", userID, from, to).
		Scan(&watches).Error
	return watches, err
}

func (r *ActivityRepository) SumLessonMinutes(userID uint) (int64, error) {
	var total int64
	err := r.DB.Model(&model.LessonWatchLog{}).
		Where("user_id = ?", userID).
		Select("COALESCE(SUM(delta_minutes), 0)").
		Scan(&total).Error
	return total, err
}

// CountModulesInProgress 有观看记录的不同模块数
func (r *ActivityRepository) CountModulesInProgress(userID uint) (int64, error) {
	var count int64
	err := r.DB.Model(&model.LessonAttendance{}).
		Where("user_id = ? AND module_id IS NOT NULL", userID).
		Distinct("module_id").
		Count(&count).Error
	return count, err
}

func (r *ActivityRepository) count(m interface{}, query string, args ...interface{}) (int64, error) {
	var count int64
	err := r.DB.Model(m).Where(query, args...).Count(&count).Error
	return count, err
}
