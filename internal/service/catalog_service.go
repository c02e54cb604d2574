package service

import (
	"academy_backend/internal/model"
	"academy_backend/internal/repository"
	"academy_backend/internal/util"
	"academy_backend/pkg/logger"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/gosimple/slug"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// CatalogFile 目录文件格式
type CatalogFile struct {
	Levels      []LevelSpec `yaml:"levels" json:"levels"`
	Badges      []BadgeSpec `yaml:"badges" json:"badges"`
	WeeklyTasks []TaskSpec  `yaml:"weekly_tasks" json:"weeklyTasks"`
}

type LevelSpec struct {
	Level      int    `yaml:"level" json:"level"`
	Title      string `yaml:"title" json:"title"`
	XPRequired int    `yaml:"xp_required" json:"xpRequired"`
}

type TargetSpec struct {
	Kind string `yaml:"kind" json:"kind"`
	ID   *uint  `yaml:"id" json:"id"`
}

type BadgeSpec struct {
	Slug            string           `yaml:"slug" json:"slug"`
	Name            string           `yaml:"name" json:"name"`
	Description     string           `yaml:"description" json:"description"`
	Icon            string           `yaml:"icon" json:"icon"`
	AchievementType string           `yaml:"achievement_type" json:"achievementType"`
	Rarity          string           `yaml:"rarity" json:"rarity"`
	Criteria        map[string]int64 `yaml:"criteria" json:"criteria"`
	XPReward        int              `yaml:"xp_reward" json:"xpReward"`
	Active          *bool            `yaml:"is_active" json:"isActive"`
	Hidden          bool             `yaml:"is_hidden" json:"isHidden"`
	ValidFrom       *time.Time       `yaml:"valid_from" json:"validFrom"`
	ValidUntil      *time.Time       `yaml:"valid_until" json:"validUntil"`
	ModuleID        *uint            `yaml:"module_id" json:"moduleId"`
	Target          *TargetSpec      `yaml:"target" json:"target"`
}

type TaskSpec struct {
	Code          string  `yaml:"code" json:"code"`
	Title         string  `yaml:"title" json:"title"`
	Description   string  `yaml:"description" json:"description"`
	TaskType      string  `yaml:"task_type" json:"taskType"`
	TargetCount   int     `yaml:"target_count" json:"targetCount"`
	CooldownWeeks int     `yaml:"cooldown_weeks" json:"cooldownWeeks"`
	Audience      string  `yaml:"audience" json:"audience"`
	MinSegment    *string `yaml:"min_segment" json:"minSegment"`
	Active        *bool   `yaml:"is_active" json:"isActive"`
}

type SeedResult struct {
	Source      string `json:"source"`
	Levels      int    `json:"levels"`
	Badges      int    `json:"badges"`
	WeeklyTasks int    `json:"weeklyTasks"`
}

// CatalogService 把目录文件同步到数据库（按 level / slug / code 幂等写入）
type CatalogService struct {
	DB        *gorm.DB
	LevelRepo *repository.LevelRepository
	BadgeRepo *repository.BadgeRepository
	TaskRepo  *repository.WeeklyTaskRepository
	Source    CatalogSource
	Settings  *Settings
}

func NewCatalogService(
	db *gorm.DB,
	levelRepo *repository.LevelRepository,
	badgeRepo *repository.BadgeRepository,
	taskRepo *repository.WeeklyTaskRepository,
	source CatalogSource,
	settings *Settings,
) *CatalogService {
	return &CatalogService{
		DB:        db,
		LevelRepo: levelRepo,
		BadgeRepo: badgeRepo,
		TaskRepo:  taskRepo,
		Source:    source,
		Settings:  settings,
	}
}

// ParseCatalog 解析 YAML 目录
func ParseCatalog(r io.Reader) (*CatalogFile, error) {
	var file CatalogFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: catalog: %v", util.ErrValidation, err)
	}
	return &file, nil
}

// Normalize 规范化 code / slug 并补默认值
func (f *CatalogFile) Normalize() {
	for i := range f.Badges {
		b := &f.Badges[i]
		if b.Slug == "" {
			b.Slug = b.Name
		}
		b.Slug = slug.Make(b.Slug)
		if b.Rarity == "" {
			b.Rarity = string(model.RarityCommon)
		}
	}
	for i := range f.WeeklyTasks {
		t := &f.WeeklyTasks[i]
		if t.Code == "" {
			t.Code = t.Title
		}
		t.Code = slug.Make(t.Code)
		if t.Audience == "" {
			t.Audience = string(model.AudienceBoth)
		}
		if t.TargetCount == 0 {
			t.TargetCount = 1
		}
	}
}

// Validate 目录不合法时整体拒绝
func (f *CatalogFile) Validate() error {
	levels := make([]model.Level, len(f.Levels))
	for i, l := range f.Levels {
		levels[i] = model.Level{Level: l.Level, Title: l.Title, XPRequired: l.XPRequired}
	}
	if err := ValidateLevels(levels); err != nil {
		return err
	}

	slugs := make(map[string]bool, len(f.Badges))
	for _, b := range f.Badges {
		if b.Slug == "" || b.Name == "" {
			return fmt.Errorf("%w: badge requires slug and name", util.ErrValidation)
		}
		if slugs[b.Slug] {
			return fmt.Errorf("%w: duplicate badge slug %s", util.ErrValidation, b.Slug)
		}
		slugs[b.Slug] = true
		if b.XPReward < 0 {
			return fmt.Errorf("%w: badge %s has negative xp_reward", util.ErrValidation, b.Slug)
		}
		for key, threshold := range b.Criteria {
			if threshold < 0 {
				return fmt.Errorf("%w: badge %s criteria %s is negative", util.ErrValidation, b.Slug, key)
			}
		}
	}

	codes := make(map[string]bool, len(f.WeeklyTasks))
	for _, t := range f.WeeklyTasks {
		if t.Code == "" || t.Title == "" {
			return fmt.Errorf("%w: weekly task requires code and title", util.ErrValidation)
		}
		if codes[t.Code] {
			return fmt.Errorf("%w: duplicate weekly task code %s", util.ErrValidation, t.Code)
		}
		codes[t.Code] = true
		switch model.WeeklyTaskType(t.TaskType) {
		case model.TaskTypeArticle, model.TaskTypeLesson, model.TaskTypeTimeSpent, model.TaskTypeQuiz, model.TaskTypeWorksheet:
		default:
			return fmt.Errorf("%w: task %s has unknown type %q", util.ErrValidation, t.Code, t.TaskType)
		}
		switch model.Audience(t.Audience) {
		case model.AudienceFree, model.AudienceEnrolled, model.AudienceBoth:
		default:
			return fmt.Errorf("%w: task %s has unknown audience %q", util.ErrValidation, t.Code, t.Audience)
		}
		if t.TargetCount < 1 || t.CooldownWeeks < 0 {
			return fmt.Errorf("%w: task %s needs target_count >= 1 and cooldown_weeks >= 0", util.ErrValidation, t.Code)
		}
		if t.MinSegment != nil {
			switch model.Segment(*t.MinSegment) {
			case model.SegmentNewbie, model.SegmentRamping, model.SegmentEngaged:
			default:
				return fmt.Errorf("%w: task %s has unknown min_segment %q", util.ErrValidation, t.Code, *t.MinSegment)
			}
		}
	}
	return nil
}

// Seed 在一个事务中写入目录
func (s *CatalogService) Seed(ctx context.Context, file *CatalogFile) (*SeedResult, error) {
	file.Normalize()
	if err := file.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	result := &SeedResult{}
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, l := range file.Levels {
			level := &model.Level{Level: l.Level, Title: l.Title, XPRequired: l.XPRequired}
			if err := s.LevelRepo.WithTx(tx).Upsert(level); err != nil {
				return fmt.Errorf("level %d: %w", l.Level, err)
			}
			result.Levels++
		}
		for _, b := range file.Badges {
			if err := s.BadgeRepo.WithTx(tx).Upsert(badgeFromSpec(b, now)); err != nil {
				return fmt.Errorf("badge %s: %w", b.Slug, err)
			}
			result.Badges++
		}
		for _, t := range file.WeeklyTasks {
			if err := s.TaskRepo.WithTx(tx).UpsertTask(taskFromSpec(t)); err != nil {
				return fmt.Errorf("weekly task %s: %w", t.Code, err)
			}
			result.WeeklyTasks++
		}

		// 写入后再整体校验一次，防止与库中已有等级冲突
		levels, err := s.LevelRepo.WithTx(tx).ListOrdered()
		if err != nil {
			return err
		}
		return ValidateLevels(levels)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// SeedFromSource 从配置的来源读取目录并写入
func (s *CatalogService) SeedFromSource(ctx context.Context) (*SeedResult, error) {
	name := s.catalogName()
	rc, err := s.Source.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	file, err := ParseCatalog(rc)
	if err != nil {
		return nil, err
	}
	result, err := s.Seed(ctx, file)
	if err != nil {
		return nil, err
	}
	result.Source = s.Source.Describe(name)
	logger.Log.Info("Catalog seeded",
		zap.String("source", result.Source),
		zap.Int("levels", result.Levels),
		zap.Int("badges", result.Badges),
		zap.Int("weeklyTasks", result.WeeklyTasks),
	)
	return result, nil
}

// EnsureDefaults 目录表为空时写入：优先使用配置的目录文件，找不到文件时用内置默认目录
func (s *CatalogService) EnsureDefaults(ctx context.Context) error {
	db := s.DB.WithContext(ctx)
	levels, err := s.LevelRepo.WithTx(db).Count()
	if err != nil {
		return err
	}
	badges, err := s.BadgeRepo.WithTx(db).Count()
	if err != nil {
		return err
	}
	tasks, err := s.TaskRepo.WithTx(db).CountTasks()
	if err != nil {
		return err
	}
	if levels > 0 || badges > 0 || tasks > 0 {
		return nil
	}

	if s.Source != nil {
		_, err := s.SeedFromSource(ctx)
		if err == nil {
			return nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		logger.Log.Warn("Catalog file not found, seeding built-in defaults", zap.String("name", s.catalogName()))
	}

	result, err := s.Seed(ctx, DefaultCatalog())
	if err != nil {
		return err
	}
	logger.Log.Info("Default catalog seeded",
		zap.Int("levels", result.Levels),
		zap.Int("badges", result.Badges),
		zap.Int("weeklyTasks", result.WeeklyTasks),
	)
	return nil
}

func (s *CatalogService) catalogName() string {
	cfg := s.Settings.Get()
	if _, local := s.Source.(*LocalCatalogSource); local {
		return cfg.CatalogPath
	}
	if cfg.CatalogObject != "" {
		return cfg.CatalogObject
	}
	return filepath.Base(cfg.CatalogPath)
}

func badgeFromSpec(b BadgeSpec, now time.Time) *model.Badge {
	badge := &model.Badge{
		Slug:            b.Slug,
		Name:            b.Name,
		Description:     b.Description,
		Icon:            b.Icon,
		AchievementType: b.AchievementType,
		Rarity:          model.BadgeRarity(b.Rarity),
		Criteria:        datatypes.NewJSONType(model.Criteria(b.Criteria)),
		XPReward:        b.XPReward,
		IsActive:        b.Active == nil || *b.Active,
		IsHidden:        b.Hidden,
		ModuleID:        b.ModuleID,
	}
	badge.CreatedAt = now
	badge.UpdatedAt = now
	if b.ValidFrom != nil {
		t := b.ValidFrom.UTC()
		badge.ValidFrom = &t
	}
	if b.ValidUntil != nil {
		t := b.ValidUntil.UTC()
		badge.ValidUntil = &t
	}
	if b.Target != nil {
		badge.Target = model.TargetRef{Kind: b.Target.Kind, ID: b.Target.ID}
	}
	return badge
}

func taskFromSpec(t TaskSpec) *model.WeeklyTask {
	task := &model.WeeklyTask{
		Code:          t.Code,
		Title:         t.Title,
		Description:   t.Description,
		TaskType:      model.WeeklyTaskType(t.TaskType),
		TargetCount:   t.TargetCount,
		CooldownWeeks: t.CooldownWeeks,
		Audience:      model.Audience(t.Audience),
		IsActive:      t.Active == nil || *t.Active,
	}
	if t.MinSegment != nil {
		seg := model.Segment(*t.MinSegment)
		task.MinSegment = &seg
	}
	return task
}

// DefaultCatalog 内置默认目录
func DefaultCatalog() *CatalogFile {
	ramping := string(model.SegmentRamping)
	engaged := string(model.SegmentEngaged)
	return &CatalogFile{
		Levels: []LevelSpec{
			{Level: 1, Title: "Newcomer", XPRequired: 0},
			{Level: 2, Title: "Learner", XPRequired: 100},
			{Level: 3, Title: "Explorer", XPRequired: 250},
			{Level: 4, Title: "Achiever", XPRequired: 500},
			{Level: 5, Title: "Scholar", XPRequired: 1000},
			{Level: 6, Title: "Mentor", XPRequired: 2000},
		},
		Badges: []BadgeSpec{
			{Slug: "first-class", Name: "First Class", Description: "Attended your first lesson", AchievementType: "lesson", Criteria: map[string]int64{CounterLessonsAttended: 1}, XPReward: 10},
			{Slug: "first-worksheet", Name: "First Worksheet", Description: "Submitted your first worksheet", AchievementType: "worksheet", Criteria: map[string]int64{CounterWorksheetsSubmitted: 1}, XPReward: 10},
			{Slug: "quiz-whiz", Name: "Quiz Whiz", Description: "Passed five quizzes", AchievementType: "quiz", Rarity: string(model.RarityRare), Criteria: map[string]int64{CounterQuizzesPassed: 5}, XPReward: 30},
			{Slug: "well-rounded", Name: "Well Rounded", Description: "Attended a lesson and submitted a worksheet", AchievementType: "combo", Criteria: map[string]int64{CounterLessonsAttended: 1, CounterWorksheetsSubmitted: 1}, XPReward: 50},
			{Slug: "first-article", Name: "Published Author", Description: "Published your first article", AchievementType: "article", Criteria: map[string]int64{CounterArticlesPublished: 1}, XPReward: 20},
			{Slug: "ten-hours", Name: "Ten Hours In", Description: "Spent ten hours learning", AchievementType: "time", Rarity: string(model.RarityEpic), Criteria: map[string]int64{CounterActiveMinutes: 600}, XPReward: 40},
			{Slug: "weekly-streak", Name: "On A Roll", Description: "Completed four weekly tasks", AchievementType: "weekly", Rarity: string(model.RarityRare), Criteria: map[string]int64{CounterWeeklyTasksCompleted: 4}, XPReward: 25},
		},
		WeeklyTasks: []TaskSpec{
			{Code: "attend-a-class", Title: "Attend a class", TaskType: string(model.TaskTypeLesson), TargetCount: 1, Audience: string(model.AudienceEnrolled)},
			{Code: "watch-two-hours", Title: "Learn for two hours", TaskType: string(model.TaskTypeTimeSpent), TargetCount: 120, Audience: string(model.AudienceBoth)},
			{Code: "submit-a-worksheet", Title: "Submit a worksheet", TaskType: string(model.TaskTypeWorksheet), TargetCount: 1, Audience: string(model.AudienceEnrolled), CooldownWeeks: 1},
			{Code: "pass-two-quizzes", Title: "Pass two quizzes", TaskType: string(model.TaskTypeQuiz), TargetCount: 2, Audience: string(model.AudienceBoth), MinSegment: &ramping},
			{Code: "publish-an-article", Title: "Publish an article", TaskType: string(model.TaskTypeArticle), TargetCount: 1, Audience: string(model.AudienceBoth), MinSegment: &engaged, CooldownWeeks: 2},
			{Code: "deep-work-five-hours", Title: "Learn for five hours", TaskType: string(model.TaskTypeTimeSpent), TargetCount: 300, Audience: string(model.AudienceBoth), MinSegment: &engaged},
		},
	}
}
