package service

import (
	"academy_backend/internal/model"
	"academy_backend/internal/repository"
	"academy_backend/internal/util"
	"academy_backend/pkg/logger"
	"academy_backend/pkg/monitoring"
	"academy_backend/pkg/tracing"
	"context"
	"fmt"
	"math"
	"reflect"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// WeeklyTaskService 每周任务的分配与评估
type WeeklyTaskService struct {
	DB           *gorm.DB
	TaskRepo     *repository.WeeklyTaskRepository
	UserRepo     *repository.UserRepository
	ActivityRepo *repository.ActivityRepository
	ActiveTime   *ActiveTimeService
	Settings     *Settings
	Hooks        *HookBus
	Now          func() time.Time
}

func NewWeeklyTaskService(
	db *gorm.DB,
	taskRepo *repository.WeeklyTaskRepository,
	userRepo *repository.UserRepository,
	activityRepo *repository.ActivityRepository,
	activeTime *ActiveTimeService,
	settings *Settings,
	hooks *HookBus,
) *WeeklyTaskService {
	return &WeeklyTaskService{
		DB:           db,
		TaskRepo:     taskRepo,
		UserRepo:     userRepo,
		ActivityRepo: activityRepo,
		ActiveTime:   activeTime,
		Settings:     settings,
		Hooks:        hooks,
		Now:          time.Now,
	}
}

// AssignFilter 批量分配的筛选条件
type AssignFilter struct {
	Role  model.UserRole `json:"role"`
	Email string         `json:"email"`
}

type AssignResult struct {
	Users   int `json:"users"`
	Created int `json:"created"`
}

// WeeklyTaskView 返回给前端的本周任务
type WeeklyTaskView struct {
	AssignmentID uint                   `json:"assignmentId"`
	Code         string                 `json:"code"`
	Title        string                 `json:"title"`
	Description  string                 `json:"description"`
	TaskType     model.WeeklyTaskType   `json:"taskType"`
	TargetCount  int                    `json:"targetCount"`
	Current      int                    `json:"current"`
	Status       model.TaskStatus       `json:"status"`
	Progress     map[string]interface{} `json:"progress"`
	WeekStart    time.Time              `json:"weekStart"`
	WeekEnd      time.Time              `json:"weekEnd"`
}

// CurrentWeek 当前周的 [周一 00:00, 周日 23:59:59]
func (s *WeeklyTaskService) CurrentWeek() (time.Time, time.Time) {
	return util.WeekWindow(s.Now(), s.Settings.Location())
}

// ClassifySegment 按本周与累计活跃分钟分层
func ClassifySegment(weekly, lifetime int64) model.Segment {
	switch {
	case weekly >= util.EngagedWeeklyMinutes || lifetime >= util.EngagedLifetimeMinutes:
		return model.SegmentEngaged
	case weekly >= util.RampingWeeklyMinutes || lifetime >= util.RampingLifetimeMinutes:
		return model.SegmentRamping
	}
	return model.SegmentNewbie
}

// Segment 用户当前所在分层
func (s *WeeklyTaskService) Segment(ctx context.Context, userID uint) (model.Segment, error) {
	weekStart, _ := s.CurrentWeek()
	weekly, err := s.ActiveTime.ActiveMinutesBetween(ctx, s.DB, userID, weekStart, util.ShiftWeeks(weekStart, 1))
	if err != nil {
		return "", err
	}
	lifetime, err := s.ActiveTime.LifetimeActiveMinutes(ctx, userID)
	if err != nil {
		return "", err
	}
	return ClassifySegment(weekly, lifetime), nil
}

// AssignForUser 为用户创建本周任务，已存在或冷却中的任务跳过，返回新建数量
func (s *WeeklyTaskService) AssignForUser(ctx context.Context, user *model.User) (int, error) {
	ctx, span := tracing.Tracer.Start(ctx, "WeeklyTaskService.AssignForUser")
	defer span.End()

	if user == nil || !user.Role.IsLearner() {
		return 0, nil
	}

	db := s.DB.WithContext(ctx)
	tasks, err := s.TaskRepo.WithTx(db).ListActiveTasks()
	if err != nil {
		return 0, err
	}
	if len(tasks) == 0 {
		return 0, nil
	}

	segment, err := s.Segment(ctx, user.ID)
	if err != nil {
		return 0, err
	}

	weekStart, _ := s.CurrentWeek()
	now := s.Now().UTC()
	created := 0
	for _, task := range tasks {
		if !task.Audience.Matches(user.Role) {
			continue
		}
		if task.MinSegment != nil && task.MinSegment.Rank() > segment.Rank() {
			continue
		}

		cooling, err := s.cooldownActive(db, user.ID, task, weekStart)
		if err != nil {
			return created, err
		}
		if cooling {
			continue
		}

		ok, err := s.TaskRepo.WithTx(db).CreateAssignmentIgnoreDuplicate(&model.WeeklyTaskAssignment{
			UserID:     user.ID,
			TaskID:     task.ID,
			WeekStart:  weekStart.UTC(),
			Status:     model.TaskPending,
			Progress:   datatypes.JSONMap{},
			AssignedAt: now,
			UpdatedAt:  now,
		})
		if err != nil {
			return created, fmt.Errorf("assign task %s: %w", task.Code, err)
		}
		if ok {
			created++
			monitoring.WeeklyAssignments.Inc()
		}
	}
	return created, nil
}

// cooldownActive 该任务在 [本周 - k 周, 本周] 内是否分配过；k=0 时只看本周
func (s *WeeklyTaskService) cooldownActive(db *gorm.DB, userID uint, task model.WeeklyTask, weekStart time.Time) (bool, error) {
	from := util.ShiftWeeks(weekStart, -task.CooldownWeeks)
	return s.TaskRepo.WithTx(db).AssignedBetween(userID, task.ID, from.UTC(), weekStart.UTC())
}

// Assign 按筛选条件批量分配，并发度由 assign_concurrency 控制
func (s *WeeklyTaskService) Assign(ctx context.Context, filter AssignFilter) (*AssignResult, error) {
	ctx, span := tracing.Tracer.Start(ctx, "WeeklyTaskService.Assign")
	defer span.End()

	if filter.Role != "" && !filter.Role.IsLearner() {
		return &AssignResult{}, nil
	}
	users, err := s.UserRepo.WithTx(s.DB.WithContext(ctx)).FindLearners(repository.UserFilter{
		Role:  filter.Role,
		Email: filter.Email,
	})
	if err != nil {
		return nil, err
	}

	limit := s.Settings.Get().AssignConcurrency
	if limit < 1 {
		limit = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	counts := make([]int, len(users))
	for i := range users {
		i := i
		g.Go(func() error {
			n, err := s.AssignForUser(gctx, &users[i])
			if err != nil {
				return fmt.Errorf("user %d: %w", users[i].ID, err)
			}
			counts[i] = n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &AssignResult{Users: len(users)}
	for _, n := range counts {
		result.Created += n
	}
	logger.Log.Info("Weekly tasks assigned",
		zap.Int("users", result.Users),
		zap.Int("created", result.Created),
	)
	return result, nil
}

// Evaluate 重新计算本周每个任务的进度，只有 (status, current, progress) 变化时才写库
func (s *WeeklyTaskService) Evaluate(ctx context.Context, userID uint, includeActive bool) ([]WeeklyTaskView, error) {
	var (
		views []WeeklyTaskView
		queue HookQueue
	)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		views, err = s.EvaluateTx(ctx, tx, userID, includeActive, &queue)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.Hooks.Fire(ctx, queue.Events()...)
	return views, nil
}

// EvaluateTx 在调用方事务中评估
func (s *WeeklyTaskService) EvaluateTx(ctx context.Context, tx *gorm.DB, userID uint, includeActive bool, queue *HookQueue) ([]WeeklyTaskView, error) {
	ctx, span := tracing.Tracer.Start(ctx, "WeeklyTaskService.Evaluate")
	defer span.End()
	defer monitoring.ObserveEvaluation("weekly_task", time.Now())

	tx = tx.WithContext(ctx)
	weekStart, weekEnd := s.CurrentWeek()
	from, to := weekStart.UTC(), util.ShiftWeeks(weekStart, 1).UTC()

	assignments, err := s.TaskRepo.WithTx(tx).ListForWeek(userID, from)
	if err != nil {
		return nil, err
	}

	now := s.Now().UTC()
	views := make([]WeeklyTaskView, 0, len(assignments))
	for i := range assignments {
		a := &assignments[i]
		if a.Task == nil {
			continue
		}

		current, progress, err := s.measure(ctx, tx, userID, a.Task.TaskType, from, to, includeActive)
		if err != nil {
			return nil, fmt.Errorf("measure task %s: %w", a.Task.Code, err)
		}
		status := taskStatus(a.Task.TaskType, current, a.Task.TargetCount)

		if status != a.Status || current != a.Current || !sameProgress(a.Progress, progress) {
			becameComplete := status == model.TaskCompleted && a.Status != model.TaskCompleted
			a.Current = current
			a.Status = status
			a.Progress = progress
			a.UpdatedAt = now
			if err := s.TaskRepo.WithTx(tx).UpdateProgress(a); err != nil {
				return nil, err
			}
			if becameComplete {
				queue.Add(HookEvent{
					Name:    HookWeeklyTaskComplete,
					UserID:  userID,
					RefID:   a.TaskID,
					At:      now,
					Payload: map[string]interface{}{"code": a.Task.Code, "weekStart": from},
				})
			}
		}

		views = append(views, WeeklyTaskView{
			AssignmentID: a.ID,
			Code:         a.Task.Code,
			Title:        a.Task.Title,
			Description:  a.Task.Description,
			TaskType:     a.Task.TaskType,
			TargetCount:  a.Task.TargetCount,
			Current:      a.Current,
			Status:       a.Status,
			Progress:     a.Progress,
			WeekStart:    weekStart,
			WeekEnd:      weekEnd,
		})
	}
	return views, nil
}

// measure 计算某类任务在 [from, to) 内的进度
func (s *WeeklyTaskService) measure(ctx context.Context, tx *gorm.DB, userID uint, taskType model.WeeklyTaskType, from, to time.Time, includeActive bool) (int, datatypes.JSONMap, error) {
	repo := s.ActivityRepo.WithTx(tx)
	switch taskType {
	case model.TaskTypeArticle:
		n, err := repo.CountArticlesPublishedBetween(userID, from, to)
		return int(n), datatypes.JSONMap{"published": n}, err
	case model.TaskTypeLesson:
		n, err := repo.CountLessonsAttendedBetween(userID, from, to)
		if err != nil {
			return 0, nil, err
		}
		attended := 0
		if n > 0 {
			attended = 1
		}
		return attended, datatypes.JSONMap{"attended": n}, nil
	case model.TaskTypeQuiz:
		n, err := repo.CountQuizzesPassedBetween(userID, from, to)
		return int(n), datatypes.JSONMap{"passed": n}, err
	case model.TaskTypeWorksheet:
		n, err := repo.CountWorksheetsSubmittedBetween(userID, from, to)
		return int(n), datatypes.JSONMap{"submitted": n}, err
	case model.TaskTypeTimeSpent:
		minutes, err := s.ActiveTime.LessonMinutesBetween(ctx, tx, userID, from, to)
		if err != nil {
			return 0, nil, err
		}
		if includeActive {
			pings, err := s.ActiveTime.PingMinutesBetween(ctx, tx, userID, from, to)
			if err != nil {
				return 0, nil, err
			}
			minutes += pings
		}
		hours := math.Round(float64(minutes)/60*100) / 100
		return int(minutes), datatypes.JSONMap{"minutes": minutes, "hours": hours}, nil
	}
	return 0, datatypes.JSONMap{}, fmt.Errorf("%w: unknown task type %s", util.ErrValidation, taskType)
}

// taskStatus 只有 TIME_SPENT 有 IN_PROGRESS
func taskStatus(taskType model.WeeklyTaskType, current, target int) model.TaskStatus {
	if current >= target {
		return model.TaskCompleted
	}
	if taskType == model.TaskTypeTimeSpent && current > 0 {
		return model.TaskInProgress
	}
	return model.TaskPending
}

// sameProgress 比较时统一数值类型，库里读出的 JSON 数字是 float64
func sameProgress(a, b datatypes.JSONMap) bool {
	return reflect.DeepEqual(normalizeProgress(a), normalizeProgress(b))
}

func normalizeProgress(m datatypes.JSONMap) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		f, _ := util.ToFloat64(v)
		out[k] = f
	}
	return out
}

// ListCurrent 本周任务，不重新计算
func (s *WeeklyTaskService) ListCurrent(ctx context.Context, userID uint) ([]WeeklyTaskView, error) {
	weekStart, weekEnd := s.CurrentWeek()
	assignments, err := s.TaskRepo.WithTx(s.DB.WithContext(ctx)).ListForWeek(userID, weekStart.UTC())
	if err != nil {
		return nil, err
	}
	views := make([]WeeklyTaskView, 0, len(assignments))
	for _, a := range assignments {
		if a.Task == nil {
			continue
		}
		views = append(views, WeeklyTaskView{
			AssignmentID: a.ID,
			Code:         a.Task.Code,
			Title:        a.Task.Title,
			Description:  a.Task.Description,
			TaskType:     a.Task.TaskType,
			TargetCount:  a.Task.TargetCount,
			Current:      a.Current,
			Status:       a.Status,
			Progress:     a.Progress,
			WeekStart:    weekStart,
			WeekEnd:      weekEnd,
		})
	}
	return views, nil
}
