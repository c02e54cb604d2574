package service_test

import (
	"academy_backend/internal/model"
	"academy_backend/internal/service"
	"academy_backend/internal/testutil"
	"academy_backend/internal/util"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOverview(t *testing.T) {
	db := testutil.NewDB(t)
	svc := testutil.NewServices(t, db)
	svc.SetNow(testutil.FixedClock(wednesdayNoon))
	testutil.SeedLevels(t, db, 0, 50)
	testutil.SeedBadge(t, db, "first-class", model.Criteria{service.CounterLessonsAttended: 1}, 10)
	testutil.SeedTask(t, db, model.WeeklyTask{TaskType: model.TaskTypeTimeSpent, TargetCount: 60})
	user := testutil.SeedUser(t, db, model.RoleEnrolled)

	moduleID := uint(3)
	testutil.SeedAttendance(t, db, user.ID, 11, 60, wednesdayNoon.Add(-3*time.Hour))
	require.NoError(t, db.Model(&model.LessonAttendance{}).
		Where("user_id = ? AND lesson_id = ?", user.ID, 11).
		Update("module_id", moduleID).Error)

	overview, err := svc.Dashboard.Overview(context.Background(), user.ID)
	require.NoError(t, err)

	require.Len(t, overview.WeeklyTasks, 1, "tasks assigned on first visit")
	assert.Equal(t, model.TaskCompleted, overview.WeeklyTasks[0].Status)
	require.Len(t, overview.NewBadges, 1)
	assert.Equal(t, "first-class", overview.NewBadges[0].Slug)
	assert.Len(t, overview.Badges, 1)

	assert.Equal(t, int64(60), overview.TotalActiveMinutes)
	assert.Equal(t, int64(1), overview.CompletedLessons)
	assert.Equal(t, int64(1), overview.ModulesInProgress)
	assert.Equal(t, 60, overview.WeeklyActivity.TotalMinutes)
	assert.Equal(t, model.SegmentRamping, overview.Segment)

	assert.Equal(t, 10, overview.TotalXP)
	require.NotNil(t, overview.Level)
	assert.Equal(t, 1, overview.Level.Level)
	require.NotNil(t, overview.NextLevelXP)
	assert.Equal(t, 50, *overview.NextLevelXP)

	again, err := svc.Dashboard.Overview(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Empty(t, again.NewBadges)
	assert.Equal(t, 10, again.TotalXP)
	assert.Len(t, svc.Recorder.Events(service.HookWeeklyTaskComplete), 1)
}

func TestOverviewUnknownUser(t *testing.T) {
	db := testutil.NewDB(t)
	svc := testutil.NewServices(t, db)

	_, err := svc.Dashboard.Overview(context.Background(), 404)
	require.ErrorIs(t, err, util.ErrUserNotFound)
}
