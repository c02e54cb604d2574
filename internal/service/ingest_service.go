package service

import (
	"academy_backend/internal/model"
	"academy_backend/internal/repository"
	"academy_backend/internal/util"
	"academy_backend/pkg/logger"
	"academy_backend/pkg/monitoring"
	"academy_backend/pkg/tracing"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// 各类事件的经验值
const (
	XPWorksheetSubmitted = 5
	XPQuizPassed         = 10
	XPLessonAttended     = 8

	ActionWorksheetSubmitted = "Worksheet submitted"
	ActionQuizPassed         = "Quiz passed"
	ActionLessonAttended     = "Class attended"

	pingDedupTTL = 2 * time.Minute
	maxPageLen   = 255
)

// IngestService 心跳与领域事件的统一入口
type IngestService struct {
	DB             *gorm.DB
	EngagementRepo *repository.EngagementRepository
	ActivityRepo   *repository.ActivityRepository
	UserRepo       *repository.UserRepository
	XP             *XPService
	Badges         *BadgeService
	WeeklyTasks    *WeeklyTaskService
	Settings       *Settings
	Hooks          *HookBus
	Redis          *redis.Client
	Now            func() time.Time
	validate       *validator.Validate
}

func NewIngestService(
	db *gorm.DB,
	engagementRepo *repository.EngagementRepository,
	activityRepo *repository.ActivityRepository,
	userRepo *repository.UserRepository,
	xp *XPService,
	badges *BadgeService,
	weeklyTasks *WeeklyTaskService,
	settings *Settings,
	hooks *HookBus,
	rdb *redis.Client,
) *IngestService {
	return &IngestService{
		DB:             db,
		EngagementRepo: engagementRepo,
		ActivityRepo:   activityRepo,
		UserRepo:       userRepo,
		XP:             xp,
		Badges:         badges,
		WeeklyTasks:    weeklyTasks,
		Settings:       settings,
		Hooks:          hooks,
		Redis:          rdb,
		Now:            time.Now,
		validate:       validator.New(),
	}
}

// PingInput 前端心跳，客户端时间只做记录
type PingInput struct {
	UserID          uint
	ClientTimestamp *time.Time
	Page            *string
	Meta            map[string]interface{}
}

// EventInput 领域事件
type EventInput struct {
	Kind    model.ActivityKind     `json:"kind" binding:"required"`
	UserID  uint                   `json:"userId"`
	At      *time.Time             `json:"at"`
	Ref     model.TargetRef        `json:"ref"`
	Payload map[string]interface{} `json:"payload"`
}

type IngestResult struct {
	EventID     string           `json:"eventId"`
	Kind        string           `json:"kind"`
	XPAwarded   int              `json:"xpAwarded"`
	Badges      []model.Badge    `json:"badges"`
	WeeklyTasks []WeeklyTaskView `json:"weeklyTasks,omitempty"`
}

type quizPayload struct {
	Score  *int  `json:"score" validate:"omitempty,gte=0"`
	Total  *int  `json:"total" validate:"omitempty,gt=0"`
	Passed *bool `json:"passed"`
}

type lessonPayload struct {
	ModuleID        *uint   `json:"module_id"`
	AttendedLive    bool    `json:"attended_live"`
	WatchedReplay   bool    `json:"watched_replay"`
	WatchedPercent  float64 `json:"watched_percent" validate:"gte=0,lte=100"`
	DurationMinutes int     `json:"duration_minutes" validate:"gte=0"`
}

// IngestPing 按服务器时间取整到分钟写入，同一分钟重复心跳忽略。
// 数据库唯一约束是去重依据，Redis 只缓存已落库的分钟
func (s *IngestService) IngestPing(ctx context.Context, in PingInput) (bool, error) {
	if in.UserID == 0 {
		return false, fmt.Errorf("%w: user is required", util.ErrValidation)
	}
	minute := util.FloorMinute(s.Now())
	key := "ping:" + strconv.FormatUint(uint64(in.UserID), 10) + ":" + strconv.FormatInt(minute.Unix(), 10)

	if s.Redis != nil {
		seen, err := s.Redis.Exists(ctx, key).Result()
		if err != nil {
			logger.Log.Warn("Redis ping cache unavailable, falling back to database", zap.Error(err))
		} else if seen > 0 {
			monitoring.EngagementPings.WithLabelValues("duplicate").Inc()
			return false, nil
		}
	}

	db := s.DB.WithContext(ctx)
	exists, err := s.UserRepo.WithTx(db).Exists(in.UserID)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, util.ErrUserNotFound
	}

	ping := &model.EngagementPing{
		UserID: in.UserID,
		Minute: minute,
		Meta:   datatypes.JSONMap(in.Meta),
	}
	if in.Page != nil && *in.Page != "" {
		page := truncateUTF8(*in.Page, maxPageLen)
		ping.Page = &page
	}
	if in.ClientTimestamp != nil {
		if ping.Meta == nil {
			ping.Meta = datatypes.JSONMap{}
		}
		ping.Meta["client_ts"] = in.ClientTimestamp.UTC().Format(time.RFC3339)
	}

	created, err := s.EngagementRepo.WithTx(db).CreatePingIgnoreDuplicate(ping)
	if err != nil {
		return false, err
	}
	if s.Redis != nil {
		if err := s.Redis.Set(ctx, key, 1, pingDedupTTL).Err(); err != nil {
			logger.Log.Warn("Failed to cache ping minute", zap.Error(err))
		}
	}
	if created {
		monitoring.EngagementPings.WithLabelValues("new").Inc()
	} else {
		monitoring.EngagementPings.WithLabelValues("duplicate").Inc()
	}
	return created, nil
}

// truncateUTF8 截断到不超过 n 字节，不拆开多字节字符
func truncateUTF8(str string, n int) string {
	if len(str) <= n {
		return str
	}
	for n > 0 && !utf8.RuneStart(str[n]) {
		n--
	}
	return str[:n]
}

// Publish 记录事件、更新领域事实、发放经验并评估徽章（必要时评估每周任务），全部在一个事务中
func (s *IngestService) Publish(ctx context.Context, in EventInput) (*IngestResult, error) {
	ctx, span := tracing.Tracer.Start(ctx, "IngestService.Publish")
	defer span.End()

	if !in.Kind.Valid() {
		return nil, fmt.Errorf("%w: %q", util.ErrUnknownEventKind, in.Kind)
	}
	if in.UserID == 0 {
		return nil, fmt.Errorf("%w: user is required", util.ErrValidation)
	}
	if in.Ref.ID != nil && *in.Ref.ID == 0 {
		return nil, fmt.Errorf("%w: ref.id must be positive", util.ErrValidation)
	}

	now := s.Now().UTC()
	at := now
	if in.At != nil && !in.At.IsZero() && !in.At.After(now) {
		at = in.At.UTC()
	}

	var (
		quiz   quizPayload
		lesson lessonPayload
	)
	switch in.Kind {
	case model.KindQuizPassed:
		if err := s.decodePayload(in.Payload, &quiz); err != nil {
			return nil, err
		}
	case model.KindLessonAttended, model.KindLessonWatchProgress:
		if err := s.decodePayload(in.Payload, &lesson); err != nil {
			return nil, err
		}
	}

	result := &IngestResult{Kind: string(in.Kind), Badges: []model.Badge{}}
	var queue HookQueue
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		exists, err := s.UserRepo.WithTx(tx).Exists(in.UserID)
		if err != nil {
			return err
		}
		if !exists {
			return util.ErrUserNotFound
		}

		repo := s.ActivityRepo.WithTx(tx)
		event := &model.ActivityEvent{
			UserID:  in.UserID,
			Kind:    in.Kind,
			At:      at,
			Ref:     in.Ref,
			Payload: datatypes.JSONMap(in.Payload),
		}
		if err := repo.CreateEvent(event); err != nil {
			return fmt.Errorf("record activity event: %w", err)
		}
		result.EventID = event.ID

		// 没有 ref.id 的事件以事件ID作为事实行的键，每个事件计一次
		refID := in.Ref.ID
		eventID := event.ID
		var (
			accrual        *Accrual
			evaluateWeekly bool
		)
		switch in.Kind {
		case model.KindWorksheetSubmitted:
			sub := &model.WorksheetSubmission{
				UserID:      in.UserID,
				WorksheetID: refID,
				SubmittedAt: at,
			}
			if refID == nil {
				sub.EventID = &eventID
			}
			first, err := repo.CreateWorksheetIgnoreDuplicate(sub)
			if err != nil {
				return err
			}
			if first {
				accrual = &Accrual{Action: ActionWorksheetSubmitted, XP: XPWorksheetSubmitted}
			}

		case model.KindQuizPassed:
			passed, err := s.recordQuiz(repo, in.UserID, refID, eventID, quiz, at)
			if err != nil {
				return err
			}
			if passed {
				accrual = &Accrual{Action: ActionQuizPassed, XP: XPQuizPassed}
			}

		case model.KindLessonAttended, model.KindLessonWatchProgress:
			first, err := s.recordLesson(repo, in.Kind, in.UserID, refID, eventID, lesson, at)
			if err != nil {
				return err
			}
			if first {
				accrual = &Accrual{Action: ActionLessonAttended, XP: XPLessonAttended}
			}
			evaluateWeekly = in.Kind == model.KindLessonWatchProgress

		case model.KindArticlePublished:
			if refID == nil {
				err = repo.CreateArticle(&model.Article{
					EventID:     &eventID,
					AuthorID:    in.UserID,
					Status:      model.ArticlePublished,
					PublishedAt: &at,
				})
			} else {
				_, err = repo.MarkArticlePublished(*refID, in.UserID, at)
			}
			if err != nil {
				return err
			}
			evaluateWeekly = true
		}

		if accrual != nil {
			accrual.UserID = in.UserID
			accrual.Source = model.XPSourceAction
			accrual.Related = map[string]interface{}{
				"kind":    in.Ref.Kind,
				"eventId": event.ID,
			}
			if refID != nil {
				accrual.Related["id"] = *refID
			}
			if _, err := s.XP.Accrue(ctx, tx, *accrual); err != nil {
				return err
			}
			result.XPAwarded = accrual.XP
		}

		badges, err := s.Badges.EvaluateTx(ctx, tx, in.UserID, &queue)
		if err != nil {
			return err
		}
		result.Badges = badges

		if evaluateWeekly {
			include := s.Settings.Get().IncludeActiveMinutesInTimeSpent
			tasks, err := s.WeeklyTasks.EvaluateTx(ctx, tx, in.UserID, include, &queue)
			if err != nil {
				return err
			}
			result.WeeklyTasks = tasks
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	monitoring.ActivityEvents.WithLabelValues(string(in.Kind)).Inc()
	s.Hooks.Fire(ctx, queue.Events()...)
	return result, nil
}

// recordQuiz 没有 passed 标记时按 pass_mark_percent 判分，返回是否首次通过
func (s *IngestService) recordQuiz(repo *repository.ActivityRepository, userID uint, quizID *uint, eventID string, p quizPayload, at time.Time) (bool, error) {
	score, total := 0, 0
	if p.Score != nil {
		score = *p.Score
	}
	if p.Total != nil {
		total = *p.Total
	}

	passed := true
	switch {
	case p.Passed != nil:
		passed = *p.Passed
	case total > 0:
		passed = QuizPassed(score, total, s.Settings.Get().PassMarkPercent)
	}

	if quizID == nil {
		row := &model.QuizResult{UserID: userID, EventID: &eventID, Score: score, Total: total, Passed: passed}
		if passed {
			row.PassedAt = &at
		}
		return passed, repo.CreateQuizResult(row)
	}

	if err := repo.RecordQuizScore(userID, *quizID, score, total); err != nil {
		return false, err
	}
	if !passed {
		return false, nil
	}
	return repo.MarkQuizPassed(userID, *quizID, at)
}

// recordLesson 合并观看进度并判定出勤，返回是否首次出勤
func (s *IngestService) recordLesson(repo *repository.ActivityRepository, kind model.ActivityKind, userID uint, lessonID *uint, eventID string, p lessonPayload, at time.Time) (bool, error) {
	if lessonID == nil {
		row := &model.LessonAttendance{
			UserID:          userID,
			EventID:         &eventID,
			ModuleID:        p.ModuleID,
			AttendedLive:    p.AttendedLive,
			WatchedReplay:   p.WatchedReplay,
			WatchedPercent:  p.WatchedPercent,
			DurationMinutes: p.DurationMinutes,
			LastWatchedAt:   at,
		}
		attended := kind == model.KindLessonAttended || isAttended(row)
		if attended {
			row.Attended = true
			row.AttendedAt = &at
		}
		return attended, repo.CreateLessonAttendance(row)
	}

	row, err := repo.RecordLessonProgress(repository.LessonProgress{
		UserID:          userID,
		LessonID:        *lessonID,
		ModuleID:        p.ModuleID,
		AttendedLive:    p.AttendedLive,
		WatchedReplay:   p.WatchedReplay,
		WatchedPercent:  p.WatchedPercent,
		DurationMinutes: p.DurationMinutes,
		At:              at,
	})
	if err != nil {
		return false, err
	}
	if kind != model.KindLessonAttended && !isAttended(row) {
		return false, nil
	}
	return repo.MarkLessonAttended(userID, *lessonID, at)
}

// QuizPassed 得分百分比不低于及格线
func QuizPassed(score, total, passMarkPercent int) bool {
	if total <= 0 {
		return false
	}
	return score*100 >= passMarkPercent*total
}

func isAttended(row *model.LessonAttendance) bool {
	return row.AttendedLive || row.WatchedReplay || row.WatchedPercent >= util.AttendWatchPercent
}

// decodePayload 把事件 payload 转成对应结构并校验
func (s *IngestService) decodePayload(payload map[string]interface{}, out interface{}) error {
	if len(payload) > 0 {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("%w: %v", util.ErrValidation, err)
		}
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("%w: malformed payload: %v", util.ErrValidation, err)
		}
	}
	if err := s.validate.Struct(out); err != nil {
		return fmt.Errorf("%w: %v", util.ErrValidation, err)
	}
	return nil
}
