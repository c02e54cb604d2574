package service_test

import (
	"academy_backend/internal/config"
	"academy_backend/internal/model"
	"academy_backend/internal/service"
	"academy_backend/internal/testutil"
	"academy_backend/internal/util"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCatalog = `
levels:
  - level: 1
    title: Rookie
    xp_required: 0
  - level: 2
    title: Regular
    xp_required: 50
badges:
  - name: Night Owl
    criteria:
      active_minutes: 60
    xp_reward: 5
weekly_tasks:
  - title: Read Something
    task_type: ARTICLE
`

func TestParseCatalog(t *testing.T) {
	file, err := service.ParseCatalog(strings.NewReader(sampleCatalog))
	require.NoError(t, err)
	require.Len(t, file.Levels, 2)
	require.Len(t, file.Badges, 1)
	require.Len(t, file.WeeklyTasks, 1)

	file.Normalize()
	assert.Equal(t, "night-owl", file.Badges[0].Slug)
	assert.Equal(t, string(model.RarityCommon), file.Badges[0].Rarity)
	assert.Equal(t, "read-something", file.WeeklyTasks[0].Code)
	assert.Equal(t, string(model.AudienceBoth), file.WeeklyTasks[0].Audience)
	assert.Equal(t, 1, file.WeeklyTasks[0].TargetCount)
	require.NoError(t, file.Validate())

	_, err = service.ParseCatalog(strings.NewReader("badges:\n  - slug: x\n    colour: red\n"))
	require.ErrorIs(t, err, util.ErrValidation)

	empty, err := service.ParseCatalog(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, empty.Badges)
}

func TestCatalogValidateRejects(t *testing.T) {
	bogus := "SOMETIMES"
	cases := []struct {
		name string
		file service.CatalogFile
	}{
		{"duplicate level", service.CatalogFile{Levels: []service.LevelSpec{{Level: 1}, {Level: 1, XPRequired: 10}}}},
		{"duplicate badge", service.CatalogFile{Badges: []service.BadgeSpec{{Slug: "a", Name: "A"}, {Slug: "a", Name: "B"}}}},
		{"negative reward", service.CatalogFile{Badges: []service.BadgeSpec{{Slug: "a", Name: "A", XPReward: -1}}}},
		{"negative threshold", service.CatalogFile{Badges: []service.BadgeSpec{{Slug: "a", Name: "A", Criteria: map[string]int64{"x": -1}}}}},
		{"unknown task type", service.CatalogFile{WeeklyTasks: []service.TaskSpec{{Code: "t", Title: "T", TaskType: "DANCE", Audience: "BOTH", TargetCount: 1}}}},
		{"unknown audience", service.CatalogFile{WeeklyTasks: []service.TaskSpec{{Code: "t", Title: "T", TaskType: "QUIZ", Audience: "NOBODY", TargetCount: 1}}}},
		{"negative cooldown", service.CatalogFile{WeeklyTasks: []service.TaskSpec{{Code: "t", Title: "T", TaskType: "QUIZ", Audience: "BOTH", TargetCount: 1, CooldownWeeks: -1}}}},
		{"unknown segment", service.CatalogFile{WeeklyTasks: []service.TaskSpec{{Code: "t", Title: "T", TaskType: "QUIZ", Audience: "BOTH", TargetCount: 1, MinSegment: &bogus}}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Error(t, tc.file.Validate())
		})
	}
}

func TestSeedIsIdempotent(t *testing.T) {
	db := testutil.NewDB(t)
	svc := testutil.NewServices(t, db)
	ctx := context.Background()

	first, err := svc.Catalog.Seed(ctx, service.DefaultCatalog())
	require.NoError(t, err)
	assert.Equal(t, 6, first.Levels)
	assert.Equal(t, 7, first.Badges)
	assert.Equal(t, 6, first.WeeklyTasks)

	edited := service.DefaultCatalog()
	edited.Badges[0].XPReward = 99
	_, err = svc.Catalog.Seed(ctx, edited)
	require.NoError(t, err)

	var badges, tasks, levels int64
	require.NoError(t, db.Model(&model.Badge{}).Count(&badges).Error)
	require.NoError(t, db.Model(&model.WeeklyTask{}).Count(&tasks).Error)
	require.NoError(t, db.Model(&model.Level{}).Count(&levels).Error)
	assert.Equal(t, int64(7), badges)
	assert.Equal(t, int64(6), tasks)
	assert.Equal(t, int64(6), levels)

	var badge model.Badge
	require.NoError(t, db.Where("slug = ?", "first-class").First(&badge).Error)
	assert.Equal(t, 99, badge.XPReward)
	assert.Equal(t, int64(1), badge.Criteria.Data()[service.CounterLessonsAttended])
}

func TestSeedRejectsConflictingLevels(t *testing.T) {
	db := testutil.NewDB(t)
	svc := testutil.NewServices(t, db)
	testutil.SeedLevels(t, db, 0, 100)

	file := &service.CatalogFile{Levels: []service.LevelSpec{{Level: 3, Title: "Dup", XPRequired: 100}}}
	_, err := svc.Catalog.Seed(context.Background(), file)
	require.Error(t, err)

	var levels int64
	require.NoError(t, db.Model(&model.Level{}).Count(&levels).Error)
	assert.Equal(t, int64(2), levels, "transaction rolled back")
}

func useCatalogPath(t *testing.T, svc *testutil.Services, path string) {
	t.Helper()
	cfg := testutil.GamificationConfig()
	cfg.CatalogPath = path
	require.NoError(t, svc.Settings.Update(cfg))
}

func TestEnsureDefaultsFallsBackToBuiltin(t *testing.T) {
	db := testutil.NewDB(t)
	svc := testutil.NewServices(t, db)
	useCatalogPath(t, svc, filepath.Join(t.TempDir(), "missing.yaml"))

	require.NoError(t, svc.Catalog.EnsureDefaults(context.Background()))

	var tasks int64
	require.NoError(t, db.Model(&model.WeeklyTask{}).Count(&tasks).Error)
	assert.Equal(t, int64(len(service.DefaultCatalog().WeeklyTasks)), tasks)
}

func TestEnsureDefaultsReadsCatalogFile(t *testing.T) {
	db := testutil.NewDB(t)
	svc := testutil.NewServices(t, db)
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleCatalog), 0o644))
	useCatalogPath(t, svc, path)
	ctx := context.Background()

	require.NoError(t, svc.Catalog.EnsureDefaults(ctx))

	var badge model.Badge
	require.NoError(t, db.Where("slug = ?", "night-owl").First(&badge).Error)
	assert.Equal(t, 5, badge.XPReward)
	assert.True(t, badge.IsActive)

	// 目录已有数据时不再写入
	require.NoError(t, os.WriteFile(path, []byte("levels: [oops"), 0o644))
	require.NoError(t, svc.Catalog.EnsureDefaults(ctx))

	result, err := svc.Catalog.SeedFromSource(ctx)
	require.Error(t, err)
	assert.Nil(t, result)
}

func TestNewCatalogSource(t *testing.T) {
	src, err := service.NewCatalogSource(&config.StorageConfig{Type: "local"})
	require.NoError(t, err)
	assert.IsType(t, &service.LocalCatalogSource{}, src)

	_, err = service.NewCatalogSource(&config.StorageConfig{Type: "ftp"})
	require.ErrorIs(t, err, util.ErrUnknownCatalogSrc)
}
