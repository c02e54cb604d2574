package service_test

import (
	"academy_backend/internal/model"
	"academy_backend/internal/repository"
	"academy_backend/internal/service"
	"academy_backend/internal/testutil"
	"academy_backend/internal/util"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func accrue(t *testing.T, svc *testutil.Services, userID uint, xp int) *model.UserLevelState {
	t.Helper()
	var state *model.UserLevelState
	err := svc.DB.Transaction(func(tx *gorm.DB) error {
		var err error
		state, err = svc.XP.Accrue(context.Background(), tx, service.Accrual{
			UserID: userID,
			Action: "test",
			XP:     xp,
		})
		return err
	})
	require.NoError(t, err)
	return state
}

func TestAccrueKeepsTotalEqualToLedger(t *testing.T) {
	db := testutil.NewDB(t)
	svc := testutil.NewServices(t, db)
	catalog := testutil.SeedLevels(t, db, 0, 50, 100)
	user := testutil.SeedUser(t, db, model.RoleFree)

	for _, delta := range []int{30, 80, -20} {
		accrue(t, svc, user.ID, delta)
	}

	repo := repository.NewXPRepository(db)
	sum, err := repo.SumXP(user.ID)
	require.NoError(t, err)
	state, err := repo.FindState(user.ID)
	require.NoError(t, err)
	require.NotNil(t, state)

	assert.EqualValues(t, 90, sum)
	assert.Equal(t, 90, state.TotalXP)
	require.NotNil(t, state.CurrentLevelID)
	assert.Equal(t, catalog[1].ID, *state.CurrentLevelID)
}

func TestAccrueClampsTotalAtZero(t *testing.T) {
	db := testutil.NewDB(t)
	svc := testutil.NewServices(t, db)
	testutil.SeedLevels(t, db, 0, 100)
	user := testutil.SeedUser(t, db, model.RoleFree)

	accrue(t, svc, user.ID, 10)
	state := accrue(t, svc, user.ID, -50)

	assert.Equal(t, 0, state.TotalXP)

	events, err := repository.NewXPRepository(db).ListEvents(user.ID, 10)
	require.NoError(t, err)
	assert.Len(t, events, 2, "corrections are still recorded in the ledger")
}

func TestAccrueWithoutLevelsLeavesLevelEmpty(t *testing.T) {
	db := testutil.NewDB(t)
	svc := testutil.NewServices(t, db)
	user := testutil.SeedUser(t, db, model.RoleFree)

	state := accrue(t, svc, user.ID, 15)
	assert.Equal(t, 15, state.TotalXP)
	assert.Nil(t, state.CurrentLevelID)
}

func TestAdjustManual(t *testing.T) {
	db := testutil.NewDB(t)
	svc := testutil.NewServices(t, db)
	testutil.SeedLevels(t, db, 0, 100)
	admin := testutil.SeedUser(t, db, model.RoleAdmin)
	user := testutil.SeedUser(t, db, model.RoleEnrolled)
	ctx := context.Background()

	state, err := svc.XP.AdjustManual(ctx, admin.ID, service.ManualAdjustRequest{UserID: user.ID, XP: 120, Reason: "hackathon winner"})
	require.NoError(t, err)
	assert.Equal(t, 120, state.TotalXP)

	events, err := repository.NewXPRepository(db).ListEvents(user.ID, 1)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, model.XPSourceManual, events[0].Source)
	assert.Equal(t, "hackathon winner", events[0].Action)
}

func TestAdjustManualRejectsBadInput(t *testing.T) {
	db := testutil.NewDB(t)
	svc := testutil.NewServices(t, db)
	admin := testutil.SeedUser(t, db, model.RoleAdmin)
	user := testutil.SeedUser(t, db, model.RoleFree)
	ctx := context.Background()

	_, err := svc.XP.AdjustManual(ctx, admin.ID, service.ManualAdjustRequest{UserID: user.ID, XP: 0, Reason: "noop"})
	assert.ErrorIs(t, err, util.ErrValidation)

	_, err = svc.XP.AdjustManual(ctx, admin.ID, service.ManualAdjustRequest{UserID: 9999, XP: 5, Reason: "ghost"})
	assert.ErrorIs(t, err, util.ErrUserNotFound)
}

func TestSummaryAndLeaderboard(t *testing.T) {
	db := testutil.NewDB(t)
	svc := testutil.NewServices(t, db)
	testutil.SeedLevels(t, db, 0, 100, 250)
	alice := testutil.SeedUser(t, db, model.RoleEnrolled)
	bob := testutil.SeedUser(t, db, model.RoleFree)
	carol := testutil.SeedUser(t, db, model.RoleFree)
	ctx := context.Background()

	accrue(t, svc, alice.ID, 260)
	accrue(t, svc, bob.ID, 120)

	summary, err := svc.XP.Summary(ctx, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, 120, summary.TotalXP)
	require.NotNil(t, summary.Level)
	assert.Equal(t, 2, summary.Level.Level)
	require.NotNil(t, summary.NextLevelXP)
	assert.Equal(t, 250, *summary.NextLevelXP)
	assert.Len(t, summary.Recent, 1)

	empty, err := svc.XP.Summary(ctx, carol.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, empty.TotalXP)
	require.NotNil(t, empty.Level)
	assert.Equal(t, 1, empty.Level.Level)

	board, err := svc.XP.Leaderboard(ctx, 0)
	require.NoError(t, err)
	require.Len(t, board, 2)
	assert.Equal(t, alice.ID, board[0].UserID)
	assert.Equal(t, 260, board[0].TotalXP)
	assert.Equal(t, bob.ID, board[1].UserID)
}
