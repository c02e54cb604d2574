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

// 2026-10-12 是周一
var mondayW0 = time.Date(2026, 10, 12, 0, 0, 0, 0, time.UTC)

func seedWatch(t *testing.T, svc *testutil.Services, userID, lessonID uint, minutes int, at time.Time) {
	t.Helper()
	testutil.SeedWatch(t, svc.DB, userID, lessonID, minutes, at)
}

func TestWeeklyTimeSpentTransitions(t *testing.T) {
	db := testutil.NewDB(t)
	svc := testutil.NewServices(t, db)
	svc.SetNow(testutil.FixedClock(wednesdayNoon))
	user := testutil.SeedUser(t, db, model.RoleFree)
	task := testutil.SeedTask(t, db, model.WeeklyTask{Code: "deep-work", TaskType: model.TaskTypeTimeSpent, TargetCount: 300})
	ctx := context.Background()

	created, err := svc.WeeklyTask.AssignForUser(ctx, user)
	require.NoError(t, err)
	require.Equal(t, 1, created)

	seedWatch(t, svc, user.ID, 1, 120, mondayW0.Add(10*time.Hour))
	views, err := svc.WeeklyTask.Evaluate(ctx, user.ID, false)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, task.Code, views[0].Code)
	assert.Equal(t, model.TaskInProgress, views[0].Status)
	assert.Equal(t, 120, views[0].Current)
	hours, ok := util.ToFloat64(views[0].Progress["hours"])
	require.True(t, ok)
	assert.InDelta(t, 2.0, hours, 0.001)

	seedWatch(t, svc, user.ID, 2, 180, mondayW0.Add(34*time.Hour))
	views, err = svc.WeeklyTask.Evaluate(ctx, user.ID, false)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, model.TaskCompleted, views[0].Status)
	assert.Equal(t, 300, views[0].Current)

	_, err = svc.WeeklyTask.Evaluate(ctx, user.ID, false)
	require.NoError(t, err)
	completions := svc.Recorder.Events(service.HookWeeklyTaskComplete)
	require.Len(t, completions, 1, "completion fires once")
	assert.Equal(t, task.ID, completions[0].RefID)
}

func TestWeeklyTimeSpentIgnoresOtherWeeksAndOptionallyCountsPings(t *testing.T) {
	db := testutil.NewDB(t)
	svc := testutil.NewServices(t, db)
	svc.SetNow(testutil.FixedClock(wednesdayNoon))
	user := testutil.SeedUser(t, db, model.RoleFree)
	testutil.SeedTask(t, db, model.WeeklyTask{TaskType: model.TaskTypeTimeSpent, TargetCount: 120})
	ctx := context.Background()

	_, err := svc.WeeklyTask.AssignForUser(ctx, user)
	require.NoError(t, err)

	seedWatch(t, svc, user.ID, 1, 500, mondayW0.Add(-time.Hour))
	seedWatch(t, svc, user.ID, 2, 30, mondayW0.Add(time.Hour))
	testutil.SeedPings(t, db, user.ID, mondayW0.Add(2*time.Hour), 20)

	views, err := svc.WeeklyTask.Evaluate(ctx, user.ID, false)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, 30, views[0].Current)

	views, err = svc.WeeklyTask.Evaluate(ctx, user.ID, true)
	require.NoError(t, err)
	assert.Equal(t, 50, views[0].Current)
	assert.Equal(t, model.TaskInProgress, views[0].Status)
}

func TestWeeklyEvaluateIsIdempotent(t *testing.T) {
	db := testutil.NewDB(t)
	svc := testutil.NewServices(t, db)
	svc.SetNow(testutil.FixedClock(wednesdayNoon))
	user := testutil.SeedUser(t, db, model.RoleEnrolled)
	testutil.SeedTask(t, db, model.WeeklyTask{TaskType: model.TaskTypeWorksheet, TargetCount: 2})
	testutil.SeedTask(t, db, model.WeeklyTask{TaskType: model.TaskTypeLesson})
	ctx := context.Background()

	_, err := svc.WeeklyTask.AssignForUser(ctx, user)
	require.NoError(t, err)
	testutil.SeedWorksheet(t, db, user.ID, 1, wednesdayNoon.Add(-time.Hour))
	testutil.SeedAttendance(t, db, user.ID, 9, 40, wednesdayNoon.Add(-2*time.Hour))

	first, err := svc.WeeklyTask.Evaluate(ctx, user.ID, false)
	require.NoError(t, err)
	var before []model.WeeklyTaskAssignment
	require.NoError(t, db.Order("id").Find(&before).Error)

	svc.SetNow(testutil.FixedClock(wednesdayNoon.Add(time.Hour)))
	second, err := svc.WeeklyTask.Evaluate(ctx, user.ID, false)
	require.NoError(t, err)
	var after []model.WeeklyTaskAssignment
	require.NoError(t, db.Order("id").Find(&after).Error)

	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, first[i].Status, second[i].Status)
		assert.Equal(t, first[i].Current, second[i].Current)
		assert.True(t, before[i].UpdatedAt.Equal(after[i].UpdatedAt), "unchanged data is not rewritten")
	}

	assert.Equal(t, model.TaskPending, first[0].Status, "1 of 2 worksheets")
	assert.Equal(t, 1, first[0].Current)
	assert.Equal(t, model.TaskCompleted, first[1].Status)
}

func TestAssignHonoursCooldown(t *testing.T) {
	db := testutil.NewDB(t)
	svc := testutil.NewServices(t, db)
	user := testutil.SeedUser(t, db, model.RoleFree)
	testutil.SeedTask(t, db, model.WeeklyTask{TaskType: model.TaskTypeQuiz, CooldownWeeks: 2})
	ctx := context.Background()

	want := []int{1, 0, 0, 1}
	for week, expected := range want {
		svc.SetNow(testutil.FixedClock(util.ShiftWeeks(mondayW0, week).Add(26 * time.Hour)))
		created, err := svc.WeeklyTask.AssignForUser(ctx, user)
		require.NoError(t, err)
		assert.Equal(t, expected, created, "week W+%d", week)
	}
}

func TestAssignIsIdempotentWithinWeek(t *testing.T) {
	db := testutil.NewDB(t)
	svc := testutil.NewServices(t, db)
	svc.SetNow(testutil.FixedClock(wednesdayNoon))
	user := testutil.SeedUser(t, db, model.RoleFree)
	testutil.SeedTask(t, db, model.WeeklyTask{TaskType: model.TaskTypeQuiz})
	ctx := context.Background()

	created, err := svc.WeeklyTask.AssignForUser(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, 1, created)

	created, err = svc.WeeklyTask.AssignForUser(ctx, user)
	require.NoError(t, err)
	assert.Zero(t, created)
}

func TestAssignFiltersByAudienceAndSegment(t *testing.T) {
	db := testutil.NewDB(t)
	svc := testutil.NewServices(t, db)
	svc.SetNow(testutil.FixedClock(wednesdayNoon))
	engaged := model.SegmentEngaged
	testutil.SeedTask(t, db, model.WeeklyTask{Code: "enrolled-only", TaskType: model.TaskTypeLesson, Audience: model.AudienceEnrolled})
	testutil.SeedTask(t, db, model.WeeklyTask{Code: "free-only", TaskType: model.TaskTypeQuiz, Audience: model.AudienceFree})
	testutil.SeedTask(t, db, model.WeeklyTask{Code: "everyone", TaskType: model.TaskTypeWorksheet, Audience: model.AudienceBoth})
	testutil.SeedTask(t, db, model.WeeklyTask{Code: "engaged-only", TaskType: model.TaskTypeTimeSpent, TargetCount: 300, MinSegment: &engaged})
	ctx := context.Background()

	free := testutil.SeedUser(t, db, model.RoleFree)
	created, err := svc.WeeklyTask.AssignForUser(ctx, free)
	require.NoError(t, err)
	assert.Equal(t, 2, created)

	testutil.SeedPings(t, db, free.ID, mondayW0.Add(time.Hour), util.EngagedWeeklyMinutes)
	segment, err := svc.WeeklyTask.Segment(ctx, free.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SegmentEngaged, segment)

	created, err = svc.WeeklyTask.AssignForUser(ctx, free)
	require.NoError(t, err)
	assert.Equal(t, 1, created, "segment gate opens once engaged")

	lecturer := testutil.SeedUser(t, db, model.RoleLecturer)
	created, err = svc.WeeklyTask.AssignForUser(ctx, lecturer)
	require.NoError(t, err)
	assert.Zero(t, created, "only learners receive weekly tasks")
}

func TestAssignBatch(t *testing.T) {
	db := testutil.NewDB(t)
	svc := testutil.NewServices(t, db)
	svc.SetNow(testutil.FixedClock(wednesdayNoon))
	testutil.SeedTask(t, db, model.WeeklyTask{TaskType: model.TaskTypeQuiz})
	testutil.SeedTask(t, db, model.WeeklyTask{TaskType: model.TaskTypeWorksheet})
	enrolled := testutil.SeedUser(t, db, model.RoleEnrolled)
	testutil.SeedUser(t, db, model.RoleFree)
	testutil.SeedUser(t, db, model.RoleFree)
	testutil.SeedUser(t, db, model.RoleAdmin)
	ctx := context.Background()

	result, err := svc.WeeklyTask.Assign(ctx, service.AssignFilter{Role: model.RoleEnrolled})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Users)
	assert.Equal(t, 2, result.Created)

	result, err = svc.WeeklyTask.Assign(ctx, service.AssignFilter{})
	require.NoError(t, err)
	assert.Equal(t, 3, result.Users)
	assert.Equal(t, 4, result.Created, "enrolled user already has this week's tasks")

	result, err = svc.WeeklyTask.Assign(ctx, service.AssignFilter{Email: enrolled.Email})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Users)
	assert.Zero(t, result.Created)

	result, err = svc.WeeklyTask.Assign(ctx, service.AssignFilter{Role: model.RoleAdmin})
	require.NoError(t, err)
	assert.Zero(t, result.Users)
}

func TestClassifySegment(t *testing.T) {
	assert.Equal(t, model.SegmentNewbie, service.ClassifySegment(0, 0))
	assert.Equal(t, model.SegmentNewbie, service.ClassifySegment(util.RampingWeeklyMinutes-1, util.RampingLifetimeMinutes-1))
	assert.Equal(t, model.SegmentRamping, service.ClassifySegment(util.RampingWeeklyMinutes, 0))
	assert.Equal(t, model.SegmentRamping, service.ClassifySegment(0, util.RampingLifetimeMinutes))
	assert.Equal(t, model.SegmentEngaged, service.ClassifySegment(util.EngagedWeeklyMinutes, 0))
	assert.Equal(t, model.SegmentEngaged, service.ClassifySegment(0, util.EngagedLifetimeMinutes))
}

func TestListCurrentDoesNotRecompute(t *testing.T) {
	db := testutil.NewDB(t)
	svc := testutil.NewServices(t, db)
	svc.SetNow(testutil.FixedClock(wednesdayNoon))
	user := testutil.SeedUser(t, db, model.RoleFree)
	testutil.SeedTask(t, db, model.WeeklyTask{TaskType: model.TaskTypeWorksheet})
	ctx := context.Background()

	_, err := svc.WeeklyTask.AssignForUser(ctx, user)
	require.NoError(t, err)
	testutil.SeedWorksheet(t, db, user.ID, 1, wednesdayNoon)

	views, err := svc.WeeklyTask.ListCurrent(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, model.TaskPending, views[0].Status)
	assert.True(t, views[0].WeekStart.Equal(mondayW0))
}
