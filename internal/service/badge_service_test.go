package service_test

import (
	"academy_backend/internal/model"
	"academy_backend/internal/repository"
	"academy_backend/internal/service"
	"academy_backend/internal/testutil"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestEvaluateSingleCriterionAward(t *testing.T) {
	db := testutil.NewDB(t)
	svc := testutil.NewServices(t, db)
	testutil.SeedLevels(t, db, 0, 100)
	user := testutil.SeedUser(t, db, model.RoleEnrolled)
	badge := testutil.SeedBadge(t, db, "first-class", model.Criteria{service.CounterLessonsAttended: 1}, 10)
	testutil.SeedAttendance(t, db, user.ID, 1, 45, time.Now())
	ctx := context.Background()

	awarded, err := svc.Badge.Evaluate(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, awarded, 1)
	assert.Equal(t, badge.ID, awarded[0].ID)

	badges := repository.NewBadgeRepository(db)
	count, err := badges.CountAwarded(user.ID, badge.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	state, err := repository.NewXPRepository(db).FindState(user.ID)
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, 10, state.TotalXP)

	logs, err := badges.ListLogs(user.ID)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, model.AwardSourceEvaluator, logs[0].Source)
	assert.Contains(t, logs[0].Metadata, "counters")

	again, err := svc.Badge.Evaluate(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, again)

	events, err := repository.NewXPRepository(db).ListEvents(user.ID, 10)
	require.NoError(t, err)
	assert.Len(t, events, 1, "second evaluation writes nothing")
	assert.Len(t, svc.Recorder.Events(service.HookBadgeAwarded), 1)
}

func TestEvaluateMultiCriterionAward(t *testing.T) {
	db := testutil.NewDB(t)
	svc := testutil.NewServices(t, db)
	user := testutil.SeedUser(t, db, model.RoleEnrolled)
	badge := testutil.SeedBadge(t, db, "well-rounded", model.Criteria{
		service.CounterLessonsAttended:     1,
		service.CounterWorksheetsSubmitted: 1,
	}, 50)
	ctx := context.Background()

	testutil.SeedAttendance(t, db, user.ID, 1, 30, time.Now())
	awarded, err := svc.Badge.Evaluate(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, awarded, "one criterion is not enough")

	testutil.SeedWorksheet(t, db, user.ID, 7, time.Now())
	awarded, err = svc.Badge.Evaluate(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, awarded, 1)
	assert.Equal(t, badge.ID, awarded[0].ID)

	state, err := repository.NewXPRepository(db).FindState(user.ID)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, state.TotalXP, 50)
}

func TestEvaluateConcurrentCallersAwardOnce(t *testing.T) {
	db := testutil.NewDB(t)
	svc := testutil.NewServices(t, db)
	user := testutil.SeedUser(t, db, model.RoleFree)
	badge := testutil.SeedBadge(t, db, "first-worksheet", model.Criteria{service.CounterWorksheetsSubmitted: 1}, 10)
	testutil.SeedWorksheet(t, db, user.ID, 1, time.Now())

	const callers = 2
	var (
		wg      sync.WaitGroup
		results [callers][]model.Badge
		errs    [callers]error
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.Badge.Evaluate(context.Background(), user.ID)
		}(i)
	}
	wg.Wait()

	total := 0
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		total += len(results[i])
	}
	assert.Equal(t, 1, total, "exactly one caller sees the award")

	count, err := repository.NewBadgeRepository(db).CountAwarded(user.ID, badge.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	var xpRows int64
	require.NoError(t, db.Model(&model.XPEvent{}).Where("user_id = ? AND badge_id = ?", user.ID, badge.ID).Count(&xpRows).Error)
	assert.EqualValues(t, 1, xpRows)
}

func TestEvaluateSkipsBadgeAwardedAfterSnapshot(t *testing.T) {
	db := testutil.NewDB(t)
	svc := testutil.NewServices(t, db)
	user := testutil.SeedUser(t, db, model.RoleFree)
	badge := testutil.SeedBadge(t, db, "raced", model.Criteria{"raced_award": 1}, 25)

	// 模拟另一个事务在本次快照之后抢先写入了颁发记录
	inserted := false
	require.NoError(t, svc.Counters.Register(service.NewCounter("raced_award", func(ctx context.Context, tx *gorm.DB, userID uint) (int64, error) {
		if !inserted {
			inserted = true
			err := tx.Create(&model.AwardedBadge{UserID: userID, BadgeID: badge.ID, AwardedAt: time.Now().UTC()}).Error
			if err != nil {
				return 0, err
			}
		}
		return 1, nil
	})))

	awarded, err := svc.Badge.Evaluate(context.Background(), user.ID)
	require.NoError(t, err)
	assert.NotNil(t, awarded)
	assert.Empty(t, awarded)
	require.True(t, inserted)

	badges := repository.NewBadgeRepository(db)
	count, err := badges.CountAwarded(user.ID, badge.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	logs, err := badges.ListLogs(user.ID)
	require.NoError(t, err)
	assert.Empty(t, logs)

	var xpRows int64
	require.NoError(t, db.Model(&model.XPEvent{}).Where("user_id = ?", user.ID).Count(&xpRows).Error)
	assert.Zero(t, xpRows)
	assert.Empty(t, svc.Recorder.Events(service.HookBadgeAwarded))
}

func TestEvaluateUnknownCriteriaKeyFailsClosed(t *testing.T) {
	db := testutil.NewDB(t)
	svc := testutil.NewServices(t, db)
	user := testutil.SeedUser(t, db, model.RoleFree)
	testutil.SeedBadge(t, db, "typo", model.Criteria{"lesson_attended": 1}, 10)
	testutil.SeedAttendance(t, db, user.ID, 1, 30, time.Now())

	awarded, err := svc.Badge.Evaluate(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Empty(t, awarded)
}

func TestEvaluateUnknownUserReturnsEmpty(t *testing.T) {
	db := testutil.NewDB(t)
	svc := testutil.NewServices(t, db)
	testutil.SeedBadge(t, db, "free-for-all", model.Criteria{}, 0)

	awarded, err := svc.Badge.Evaluate(context.Background(), 4242)
	require.NoError(t, err)
	assert.Empty(t, awarded)
}

func TestEvaluateSkipsInactiveHiddenAndOutOfWindowBadges(t *testing.T) {
	db := testutil.NewDB(t)
	svc := testutil.NewServices(t, db)
	user := testutil.SeedUser(t, db, model.RoleFree)
	now := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)
	svc.SetNow(testutil.FixedClock(now))

	inactive := testutil.SeedBadge(t, db, "inactive", model.Criteria{}, 0)
	require.NoError(t, db.Model(inactive).Update("is_active", false).Error)
	hidden := testutil.SeedBadge(t, db, "hidden", model.Criteria{}, 0)
	require.NoError(t, db.Model(hidden).Update("is_hidden", true).Error)
	future := testutil.SeedBadge(t, db, "future", model.Criteria{}, 0)
	require.NoError(t, db.Model(future).Update("valid_from", now.Add(24*time.Hour)).Error)
	expired := testutil.SeedBadge(t, db, "expired", model.Criteria{}, 0)
	require.NoError(t, db.Model(expired).Update("valid_until", now).Error)
	open := testutil.SeedBadge(t, db, "open", model.Criteria{}, 0)

	awarded, err := svc.Badge.Evaluate(context.Background(), user.ID)
	require.NoError(t, err)
	require.Len(t, awarded, 1)
	assert.Equal(t, open.ID, awarded[0].ID)
}

func TestEvaluateRepeatsUntilXPRewardsSettle(t *testing.T) {
	db := testutil.NewDB(t)
	svc := testutil.NewServices(t, db)
	user := testutil.SeedUser(t, db, model.RoleFree)

	// 先创建依赖 total_xp 的徽章，它在第一轮时还不满足
	rising := testutil.SeedBadge(t, db, "rising-star", model.Criteria{service.CounterTotalXP: 100}, 0)
	bonus := testutil.SeedBadge(t, db, "bonus", model.Criteria{service.CounterWorksheetsSubmitted: 1}, 100)
	testutil.SeedWorksheet(t, db, user.ID, 1, time.Now())
	ctx := context.Background()

	awarded, err := svc.Badge.Evaluate(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, awarded, 2)
	assert.Equal(t, bonus.ID, awarded[0].ID)
	assert.Equal(t, rising.ID, awarded[1].ID)

	again, err := svc.Badge.Evaluate(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestBadgeHooksFireAfterCommit(t *testing.T) {
	db := testutil.NewDB(t)
	svc := testutil.NewServices(t, db)
	user := testutil.SeedUser(t, db, model.RoleFree)
	badge := testutil.SeedBadge(t, db, "first-worksheet", model.Criteria{service.CounterWorksheetsSubmitted: 1}, 0)
	testutil.SeedWorksheet(t, db, user.ID, 1, time.Now())

	var visible int64 = -1
	svc.Hooks.Subscribe(service.HookBadgeAwarded, func(ctx context.Context, e service.HookEvent) error {
		return db.Model(&model.AwardedBadge{}).Where("user_id = ? AND badge_id = ?", e.UserID, e.RefID).Count(&visible).Error
	})

	_, err := svc.Badge.Evaluate(context.Background(), user.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, visible)

	events := svc.Recorder.Events(service.HookBadgeAwarded)
	require.Len(t, events, 1)
	assert.Equal(t, badge.ID, events[0].RefID)
	assert.Equal(t, "first-worksheet", events[0].Payload["slug"])
}

func TestListForUser(t *testing.T) {
	db := testutil.NewDB(t)
	svc := testutil.NewServices(t, db)
	user := testutil.SeedUser(t, db, model.RoleFree)
	testutil.SeedBadge(t, db, "welcome", model.Criteria{}, 0)
	ctx := context.Background()

	_, err := svc.Badge.Evaluate(ctx, user.ID)
	require.NoError(t, err)

	owned, err := svc.Badge.ListForUser(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, owned, 1)
	assert.Equal(t, "welcome", owned[0].Slug)
	assert.False(t, owned[0].AwardedAt.IsZero())
}
