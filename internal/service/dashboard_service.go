package service

import (
	"academy_backend/internal/model"
	"academy_backend/internal/repository"
	"academy_backend/internal/util"
	"academy_backend/pkg/logger"
	"academy_backend/pkg/tracing"
	"context"
	"time"

	"go.uber.org/zap"
)

type DashboardService struct {
	UserRepo     *repository.UserRepository
	ActivityRepo *repository.ActivityRepository
	ActiveTime   *ActiveTimeService
	Badges       *BadgeService
	WeeklyTasks  *WeeklyTaskService
	XP           *XPService
	Settings     *Settings
}

func NewDashboardService(
	userRepo *repository.UserRepository,
	activityRepo *repository.ActivityRepository,
	activeTime *ActiveTimeService,
	badges *BadgeService,
	weeklyTasks *WeeklyTaskService,
	xp *XPService,
	settings *Settings,
) *DashboardService {
	return &DashboardService{
		UserRepo:     userRepo,
		ActivityRepo: activityRepo,
		ActiveTime:   activeTime,
		Badges:       badges,
		WeeklyTasks:  weeklyTasks,
		XP:           xp,
		Settings:     settings,
	}
}

// Overview 仪表盘快照
type Overview struct {
	JoinedDate         time.Time        `json:"joinedDate"`
	TotalActiveMinutes int64            `json:"totalActiveMinutes"`
	CompletedLessons   int64            `json:"completedLessons"`
	ModulesInProgress  int64            `json:"modulesInProgress"`
	WeeklyActivity     *WeeklyActivity  `json:"weeklyActivity"`
	Badges             []UserBadge      `json:"badges"`
	NewBadges          []model.Badge    `json:"newBadges"`
	WeeklyTasks        []WeeklyTaskView `json:"weeklyTasks"`
	Segment            model.Segment    `json:"segment"`
	TotalXP            int              `json:"totalXp"`
	Level              *model.Level     `json:"level"`
	NextLevelXP        *int             `json:"nextLevelXp"`
}

// Overview 访问仪表盘时顺带分配并评估本周任务、评估徽章
func (s *DashboardService) Overview(ctx context.Context, userID uint) (*Overview, error) {
	ctx, span := tracing.Tracer.Start(ctx, "DashboardService.Overview")
	defer span.End()

	user, err := s.UserRepo.WithTx(s.ActiveTime.DB.WithContext(ctx)).FindByID(userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, util.ErrUserNotFound
	}

	if _, err := s.WeeklyTasks.AssignForUser(ctx, user); err != nil {
		return nil, err
	}
	include := s.Settings.Get().IncludeActiveMinutesInTimeSpent
	tasks, err := s.WeeklyTasks.Evaluate(ctx, userID, include)
	if err != nil {
		return nil, err
	}
	newBadges, err := s.Badges.Evaluate(ctx, userID)
	if err != nil {
		return nil, err
	}

	overview := &Overview{
		JoinedDate:  user.CreatedAt,
		WeeklyTasks: tasks,
		NewBadges:   newBadges,
	}

	if overview.TotalActiveMinutes, err = s.ActiveTime.LifetimeActiveMinutes(ctx, userID); err != nil {
		return nil, err
	}
	db := s.ActiveTime.DB.WithContext(ctx)
	if overview.CompletedLessons, err = s.ActivityRepo.WithTx(db).CountLessonsAttended(userID); err != nil {
		return nil, err
	}
	if overview.ModulesInProgress, err = s.ActivityRepo.WithTx(db).CountModulesInProgress(userID); err != nil {
		return nil, err
	}
	if overview.WeeklyActivity, err = s.ActiveTime.WeeklyActiveMinutes(ctx, userID); err != nil {
		return nil, err
	}
	if overview.Badges, err = s.Badges.ListForUser(ctx, userID); err != nil {
		return nil, err
	}
	if overview.Segment, err = s.WeeklyTasks.Segment(ctx, userID); err != nil {
		return nil, err
	}

	summary, err := s.XP.Summary(ctx, userID)
	if err != nil {
		return nil, err
	}
	overview.TotalXP = summary.TotalXP
	overview.Level = summary.Level
	overview.NextLevelXP = summary.NextLevelXP

	logger.Log.Debug("Dashboard overview built",
		zap.Uint("userID", userID),
		zap.Int("newBadges", len(newBadges)),
		zap.Int("weeklyTasks", len(tasks)),
	)
	return overview, nil
}
