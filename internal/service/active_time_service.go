package service

import (
	"academy_backend/internal/repository"
	"academy_backend/internal/util"
	"academy_backend/pkg/logger"
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ActiveTimeService 合并心跳分钟与课程观看时长
type ActiveTimeService struct {
	DB             *gorm.DB
	EngagementRepo *repository.EngagementRepository
	ActivityRepo   *repository.ActivityRepository
	Settings       *Settings
	Now            func() time.Time
}

func NewActiveTimeService(
	db *gorm.DB,
	engagementRepo *repository.EngagementRepository,
	activityRepo *repository.ActivityRepository,
	settings *Settings,
) *ActiveTimeService {
	return &ActiveTimeService{
		DB:             db,
		EngagementRepo: engagementRepo,
		ActivityRepo:   activityRepo,
		Settings:       settings,
		Now:            time.Now,
	}
}

type DayActivity struct {
	Date          string `json:"date"`
	Weekday       string `json:"weekday"`
	PingMinutes   int    `json:"pingMinutes"`
	LessonMinutes int    `json:"lessonMinutes"`
	ActiveMinutes int    `json:"activeMinutes"`
}

// WeeklyActivity 截止今天的 7 天，Days 按日期升序
type WeeklyActivity struct {
	Days         []DayActivity  `json:"days"`
	ByWeekday    map[string]int `json:"byWeekday"`
	TotalMinutes int            `json:"totalMinutes"`
}

// WeeklyActiveMinutes 最近 7 天（含今天）每天的活跃分钟
func (s *ActiveTimeService) WeeklyActiveMinutes(ctx context.Context, userID uint) (*WeeklyActivity, error) {
	loc := s.Settings.Location()
	days := util.LastNDays(s.Now(), 7, loc)
	from := days[0]
	to := days[len(days)-1].AddDate(0, 0, 1)

	db := s.DB.WithContext(ctx)
	minutes, err := s.EngagementRepo.WithTx(db).ListMinutes(userID, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	watches, err := s.ActivityRepo.WithTx(db).ListLessonWatches(userID, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}

	index := make(map[string]int, len(days))
	result := &WeeklyActivity{
		Days:      make([]DayActivity, len(days)),
		ByWeekday: make(map[string]int, len(days)),
	}
	for i, d := range days {
		key := d.Format(util.DateFormat)
		index[key] = i
		result.Days[i] = DayActivity{Date: key, Weekday: d.Weekday().String()[:3]}
	}

	for _, m := range minutes {
		if i, ok := index[m.In(loc).Format(util.DateFormat)]; ok {
			result.Days[i].PingMinutes++
		}
	}
	for _, w := range watches {
		if i, ok := index[w.WatchedAt.In(loc).Format(util.DateFormat)]; ok {
			result.Days[i].LessonMinutes += w.Minutes
		}
	}

	for i := range result.Days {
		day := &result.Days[i]
		day.ActiveMinutes = int(s.combine(int64(day.PingMinutes), int64(day.LessonMinutes)))
		result.ByWeekday[day.Weekday] = day.ActiveMinutes
		result.TotalMinutes += day.ActiveMinutes
	}
	return result, nil
}

func (s *ActiveTimeService) PingMinutesBetween(ctx context.Context, db *gorm.DB, userID uint, from, to time.Time) (int64, error) {
	return s.EngagementRepo.WithTx(db.WithContext(ctx)).CountBetween(userID, from.UTC(), to.UTC())
}

// LessonMinutesBetween 观看流水按上报时间归属时间窗
func (s *ActiveTimeService) LessonMinutesBetween(ctx context.Context, db *gorm.DB, userID uint, from, to time.Time) (int64, error) {
	watches, err := s.ActivityRepo.WithTx(db.WithContext(ctx)).ListLessonWatches(userID, from.UTC(), to.UTC())
	if err != nil {
		return 0, err
	}
	var total int64
	for _, w := range watches {
		total += int64(w.Minutes)
	}
	return total, nil
}

// ActiveMinutesBetween [from, to) 内心跳与课程分钟的合并值
func (s *ActiveTimeService) ActiveMinutesBetween(ctx context.Context, db *gorm.DB, userID uint, from, to time.Time) (int64, error) {
	pings, err := s.PingMinutesBetween(ctx, db, userID, from, to)
	if err != nil {
		return 0, err
	}
	lessons, err := s.LessonMinutesBetween(ctx, db, userID, from, to)
	if err != nil {
		return 0, err
	}
	return s.combine(pings, lessons), nil
}

func (s *ActiveTimeService) LifetimeActiveMinutes(ctx context.Context, userID uint) (int64, error) {
	return s.LifetimeActiveMinutesTx(ctx, s.DB, userID)
}

// LifetimeActiveMinutesTx 累计活跃分钟（受心跳保留期影响）
func (s *ActiveTimeService) LifetimeActiveMinutesTx(ctx context.Context, db *gorm.DB, userID uint) (int64, error) {
	db = db.WithContext(ctx)
	pings, err := s.EngagementRepo.WithTx(db).CountAll(userID)
	if err != nil {
		return 0, err
	}
	lessons, err := s.ActivityRepo.WithTx(db).SumLessonMinutes(userID)
	if err != nil {
		return 0, err
	}
	return s.combine(pings, lessons), nil
}

// Prune 删除超过保留期的心跳
func (s *ActiveTimeService) Prune(ctx context.Context) (int64, error) {
	days := s.Settings.Get().PingRetentionDays
	cutoff := util.FloorMinute(s.Now()).AddDate(0, 0, -days)
	deleted, err := s.EngagementRepo.WithTx(s.DB.WithContext(ctx)).DeleteBefore(cutoff)
	if err != nil {
		return 0, err
	}
	logger.Log.Info("Engagement pings pruned",
		zap.Int64("deleted", deleted),
		zap.Time("cutoff", cutoff),
	)
	return deleted, nil
}

func (s *ActiveTimeService) combine(pings, lessons int64) int64 {
	if s.Settings.Get().ActiveTimeCombine == util.CombineMax {
		if pings > lessons {
			return pings
		}
		return lessons
	}
	return pings + lessons
}
