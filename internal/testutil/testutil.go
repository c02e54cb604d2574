// Package testutil 单元测试共用的内存数据库、数据构造和服务装配
package testutil

import (
	"academy_backend/internal/config"
	"academy_backend/internal/model"
	"academy_backend/internal/repository"
	"academy_backend/internal/service"
	"academy_backend/pkg/database"
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDB 每个测试独立的内存 SQLite，单连接，已迁移
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, database.AutoMigrate(db))
	return db
}

// GamificationConfig 测试用配置，周边界固定为 UTC
func GamificationConfig() config.GamificationConfig {
	cfg := config.DefaultGamification()
	cfg.WeekTimezone = "UTC"
	return cfg
}

// Services 完整装配的服务图
type Services struct {
	DB         *gorm.DB
	Settings   *service.Settings
	Hooks      *service.HookBus
	Recorder   *HookRecorder
	Counters   *service.CounterRegistry
	ActiveTime *service.ActiveTimeService
	Level      *service.LevelService
	XP         *service.XPService
	Badge      *service.BadgeService
	WeeklyTask *service.WeeklyTaskService
	Ingest     *service.IngestService
	Dashboard  *service.DashboardService
	Catalog    *service.CatalogService
}

// NewServices 按 app 的装配方式构造服务，不连接 Redis
func NewServices(t *testing.T, db *gorm.DB) *Services {
	t.Helper()
	userRepo := repository.NewUserRepository(db)
	levelRepo := repository.NewLevelRepository(db)
	xpRepo := repository.NewXPRepository(db)
	badgeRepo := repository.NewBadgeRepository(db)
	taskRepo := repository.NewWeeklyTaskRepository(db)
	engagementRepo := repository.NewEngagementRepository(db)
	activityRepo := repository.NewActivityRepository(db)

	s := &Services{DB: db}
	s.Settings = service.NewSettings(GamificationConfig())
	s.Hooks = service.NewHookBus()
	s.Recorder = NewHookRecorder(s.Hooks, service.HookBadgeAwarded, service.HookWeeklyTaskComplete)

	s.ActiveTime = service.NewActiveTimeService(db, engagementRepo, activityRepo, s.Settings)
	s.Counters = service.NewCounterRegistry()
	require.NoError(t, service.RegisterBuiltinCounters(s.Counters, s.ActiveTime))

	s.Level = service.NewLevelService(db, levelRepo)
	s.XP = service.NewXPService(db, xpRepo, userRepo, s.Level)
	s.Badge = service.NewBadgeService(db, badgeRepo, userRepo, s.XP, s.Counters, s.Hooks)
	s.WeeklyTask = service.NewWeeklyTaskService(db, taskRepo, userRepo, activityRepo, s.ActiveTime, s.Settings, s.Hooks)
	s.Ingest = service.NewIngestService(db, engagementRepo, activityRepo, userRepo, s.XP, s.Badge, s.WeeklyTask, s.Settings, s.Hooks, nil)
	s.Dashboard = service.NewDashboardService(userRepo, activityRepo, s.ActiveTime, s.Badge, s.WeeklyTask, s.XP, s.Settings)
	s.Catalog = service.NewCatalogService(db, levelRepo, badgeRepo, taskRepo, &service.LocalCatalogSource{}, s.Settings)
	return s
}

// SetNow 统一替换各服务的时钟
func (s *Services) SetNow(now func() time.Time) {
	s.ActiveTime.Now = now
	s.XP.Now = now
	s.Badge.Now = now
	s.WeeklyTask.Now = now
	s.Ingest.Now = now
}

// FixedClock 固定时间
func FixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

var seq struct {
	mu sync.Mutex
	n  int
}

func nextSeq() int {
	seq.mu.Lock()
	defer seq.mu.Unlock()
	seq.n++
	return seq.n
}

// SeedUser 创建指定角色的用户
func SeedUser(t *testing.T, db *gorm.DB, role model.UserRole) *model.User {
	t.Helper()
	n := nextSeq()
	user := &model.User{
		Name:  fmt.Sprintf("user-%d", n),
		Email: fmt.Sprintf("user-%d@academy.test", n),
		Role:  role,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

// SeedLevels 写入等级表，参数为 xp_required，等级号按顺序从 1 开始
func SeedLevels(t *testing.T, db *gorm.DB, xpRequired ...int) []model.Level {
	t.Helper()
	levels := make([]model.Level, len(xpRequired))
	for i, xp := range xpRequired {
		levels[i] = model.Level{Level: i + 1, Title: fmt.Sprintf("Level %d", i+1), XPRequired: xp}
	}
	if len(levels) > 0 {
		require.NoError(t, db.Create(&levels).Error)
	}
	return levels
}

// SeedBadge 创建启用中的徽章
func SeedBadge(t *testing.T, db *gorm.DB, slug string, criteria model.Criteria, xpReward int) *model.Badge {
	t.Helper()
	badge := &model.Badge{
		Slug:     slug,
		Name:     slug,
		Rarity:   model.RarityCommon,
		Criteria: datatypes.NewJSONType(criteria),
		XPReward: xpReward,
		IsActive: true,
	}
	require.NoError(t, db.Create(badge).Error)
	return badge
}

// SeedTask 创建每周任务，未指定的字段取默认值
func SeedTask(t *testing.T, db *gorm.DB, task model.WeeklyTask) *model.WeeklyTask {
	t.Helper()
	if task.Code == "" {
		task.Code = fmt.Sprintf("task-%d", nextSeq())
	}
	if task.Title == "" {
		task.Title = task.Code
	}
	if task.Audience == "" {
		task.Audience = model.AudienceBoth
	}
	if task.TargetCount == 0 {
		task.TargetCount = 1
	}
	task.IsActive = true
	require.NoError(t, db.Create(&task).Error)
	return &task
}

// SeedAttendance 写入一条已出勤的课程记录，观看分钟记在 at
func SeedAttendance(t *testing.T, db *gorm.DB, userID, lessonID uint, minutes int, at time.Time) {
	t.Helper()
	at = at.UTC()
	row := &model.LessonAttendance{
		UserID:          userID,
		LessonID:        &lessonID,
		AttendedLive:    true,
		DurationMinutes: minutes,
		Attended:        true,
		AttendedAt:      &at,
		LastWatchedAt:   at,
	}
	require.NoError(t, db.Create(row).Error)
	seedWatchLog(t, db, userID, lessonID, minutes, at)
}

// SeedWatch 写入一条未出勤的观看记录
func SeedWatch(t *testing.T, db *gorm.DB, userID, lessonID uint, minutes int, at time.Time) {
	t.Helper()
	at = at.UTC()
	require.NoError(t, db.Create(&model.LessonAttendance{
		UserID:          userID,
		LessonID:        &lessonID,
		WatchedPercent:  50,
		DurationMinutes: minutes,
		LastWatchedAt:   at,
	}).Error)
	seedWatchLog(t, db, userID, lessonID, minutes, at)
}

func seedWatchLog(t *testing.T, db *gorm.DB, userID, lessonID uint, minutes int, at time.Time) {
	t.Helper()
	if minutes <= 0 {
		return
	}
	require.NoError(t, db.Create(&model.LessonWatchLog{
		UserID:       userID,
		LessonID:     &lessonID,
		DeltaMinutes: minutes,
		WatchedAt:    at,
	}).Error)
}

// SeedWorksheet 写入一条作业提交
func SeedWorksheet(t *testing.T, db *gorm.DB, userID, worksheetID uint, at time.Time) {
	t.Helper()
	require.NoError(t, db.Create(&model.WorksheetSubmission{
		UserID:      userID,
		WorksheetID: &worksheetID,
		SubmittedAt: at.UTC(),
	}).Error)
}

// SeedPings 从 start 开始连续 n 分钟的心跳
func SeedPings(t *testing.T, db *gorm.DB, userID uint, start time.Time, n int) {
	t.Helper()
	if n == 0 {
		return
	}
	pings := make([]model.EngagementPing, n)
	base := start.UTC().Truncate(time.Minute)
	for i := range pings {
		pings[i] = model.EngagementPing{UserID: userID, Minute: base.Add(time.Duration(i) * time.Minute)}
	}
	require.NoError(t, db.CreateInBatches(&pings, 500).Error)
}

// HookRecorder 记录触发的通知
type HookRecorder struct {
	mu     sync.Mutex
	events []service.HookEvent
}

func NewHookRecorder(bus *service.HookBus, names ...string) *HookRecorder {
	r := &HookRecorder{}
	for _, name := range names {
		bus.Subscribe(name, r.handle)
	}
	return r
}

func (r *HookRecorder) handle(ctx context.Context, event service.HookEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

// Events 按名称过滤，name 为空时返回全部
func (r *HookRecorder) Events(name string) []service.HookEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []service.HookEvent
	for _, e := range r.events {
		if name == "" || e.Name == name {
			out = append(out, e)
		}
	}
	return out
}
