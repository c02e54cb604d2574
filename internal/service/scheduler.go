package service

import (
	"academy_backend/pkg/logger"
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

const jobTimeout = 30 * time.Minute

// Scheduler 定时任务：每周一分配任务，每晚清理过期心跳
type Scheduler struct {
	sched       gocron.Scheduler
	weeklyTasks *WeeklyTaskService
	activeTime  *ActiveTimeService
	settings    *Settings
}

func NewScheduler(weeklyTasks *WeeklyTaskService, activeTime *ActiveTimeService, settings *Settings) (*Scheduler, error) {
	sched, err := gocron.NewScheduler(gocron.WithLocation(settings.Location()))
	if err != nil {
		return nil, err
	}
	return &Scheduler{
		sched:       sched,
		weeklyTasks: weeklyTasks,
		activeTime:  activeTime,
		settings:    settings,
	}, nil
}

// Start 注册任务并启动
func (s *Scheduler) Start() error {
	cfg := s.settings.Get()

	if _, err := s.sched.NewJob(
		gocron.CronJob(cfg.AssignCron, false),
		gocron.NewTask(s.RunWeeklyAssignment),
		gocron.WithName("weekly-task-assignment"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	); err != nil {
		return err
	}

	if _, err := s.sched.NewJob(
		gocron.CronJob(cfg.PruneCron, false),
		gocron.NewTask(s.RunPrune),
		gocron.WithName("engagement-ping-prune"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	); err != nil {
		return err
	}

	s.sched.Start()
	logger.Named("scheduler").Info("Scheduler started",
		zap.String("assignCron", cfg.AssignCron),
		zap.String("pruneCron", cfg.PruneCron),
	)
	return nil
}

func (s *Scheduler) Shutdown() error {
	return s.sched.Shutdown()
}

// RunWeeklyAssignment 为全部学员分配本周任务
func (s *Scheduler) RunWeeklyAssignment() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	result, err := s.weeklyTasks.Assign(ctx, AssignFilter{})
	if err != nil {
		logger.Named("scheduler").Error("weekly assignment failed", zap.Error(err))
		return
	}
	logger.Named("scheduler").Info("weekly assignment done",
		zap.Int("users", result.Users),
		zap.Int("created", result.Created),
	)
}

// RunPrune 清理超过保留期的心跳
func (s *Scheduler) RunPrune() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	if _, err := s.activeTime.Prune(ctx); err != nil {
		logger.Named("scheduler").Error("ping prune failed", zap.Error(err))
	}
}
