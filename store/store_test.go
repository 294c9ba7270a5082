package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/thomaswakin/SystemAdept-sub000/model"
	"github.com/thomaswakin/SystemAdept-sub000/store"
	"github.com/thomaswakin/SystemAdept-sub000/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setup(t *testing.T) *store.Store {
	t.Helper()
	db := testutil.SetupTestDB(t)
	_, ps := testutil.SetupTestCache(t)
	return store.New(db, ps, zap.NewNop())
}

func newInstance(userID int64, status string) *model.QuestProgress {
	return &model.QuestProgress{
		ID:           uuid.New().String(),
		AssignmentID: uuid.New().String(),
		UserID:       userID,
		QuestID:      "q_test",
		Status:       status,
	}
}

func TestProgress_NotFound(t *testing.T) {
	s := setup(t)
	_, err := s.Progress(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCreateAndReadProgress(t *testing.T) {
	s := setup(t)
	ctx := context.Background()

	p := newInstance(1, model.ProgressAvailable)
	require.NoError(t, s.CreateProgress(ctx, p))

	got, err := s.Progress(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ProgressAvailable, got.Status)

	all, err := s.ProgressByUser(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestUpdateProgressFieldsIf_GuardMiss(t *testing.T) {
	s := setup(t)
	ctx := context.Background()

	p := newInstance(1, model.ProgressCompleted)
	require.NoError(t, s.CreateProgress(ctx, p))

	ok, err := s.UpdateProgressFieldsIf(ctx, p.ID, 1,
		[]string{model.ProgressAvailable},
		map[string]interface{}{"status": model.ProgressFailed})
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := s.Progress(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ProgressCompleted, got.Status)
}

func TestUpdateProgressFieldsIf_GuardHit(t *testing.T) {
	s := setup(t)
	ctx := context.Background()

	p := newInstance(1, model.ProgressAvailable)
	require.NoError(t, s.CreateProgress(ctx, p))

	now := time.Now()
	ok, err := s.UpdateProgressFieldsIf(ctx, p.ID, 1,
		[]string{model.ProgressAvailable},
		map[string]interface{}{
			"status":       model.ProgressFailed,
			"failed_at":    now,
			"failed_count": p.FailedCount + 1,
		})
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := s.Progress(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ProgressFailed, got.Status)
	assert.Equal(t, 1, got.FailedCount)
}

func TestProfile_CreatedOnFirstAccess(t *testing.T) {
	s := setup(t)
	p, err := s.Profile(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, int64(7), p.UserID)
	assert.Equal(t, 22, p.RestStartHour)
	assert.Equal(t, 6, p.RestEndHour)
	assert.Equal(t, 0.0, p.Aura)
}

func TestIncrementAura_Atomic(t *testing.T) {
	s := setup(t)
	ctx := context.Background()

	require.NoError(t, s.IncrementAura(ctx, 1, 50))
	require.NoError(t, s.IncrementAura(ctx, 1, 25))

	p, err := s.Profile(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 75.0, p.Aura)
}

func TestCompleteWithReward_BothOrNeither(t *testing.T) {
	s := setup(t)
	ctx := context.Background()

	p := newInstance(1, model.ProgressAvailable)
	require.NoError(t, s.CreateProgress(ctx, p))
	_, err := s.Profile(ctx, 1) // seed the profile row
	require.NoError(t, err)

	ok, err := s.CompleteWithReward(ctx, p.ID, 1,
		[]string{model.ProgressAvailable, model.ProgressInProgress}, time.Now(), 100)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := s.Progress(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ProgressCompleted, got.Status)
	require.NotNil(t, got.CompletedAt)

	prof, err := s.Profile(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 100.0, prof.Aura)
}

func TestCompleteWithReward_NoProfileRowYet(t *testing.T) {
	s := setup(t)
	ctx := context.Background()

	// The profile row is created lazily; a user can complete their first
	// quest before anything has read their profile. The grant must still
	// land together with the status write.
	p := newInstance(42, model.ProgressAvailable)
	require.NoError(t, s.CreateProgress(ctx, p))

	ok, err := s.CompleteWithReward(ctx, p.ID, 42,
		[]string{model.ProgressAvailable, model.ProgressInProgress}, time.Now(), 100)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := s.Progress(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ProgressCompleted, got.Status)

	prof, err := s.Profile(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, 100.0, prof.Aura)
	assert.Equal(t, 22, prof.RestStartHour)
	assert.Equal(t, 6, prof.RestEndHour)
}

func TestCompleteWithReward_GuardMissGrantsNothing(t *testing.T) {
	s := setup(t)
	ctx := context.Background()

	p := newInstance(1, model.ProgressFailed)
	require.NoError(t, s.CreateProgress(ctx, p))
	_, err := s.Profile(ctx, 1)
	require.NoError(t, err)

	ok, err := s.CompleteWithReward(ctx, p.ID, 1,
		[]string{model.ProgressAvailable, model.ProgressInProgress}, time.Now(), 100)
	require.NoError(t, err)
	assert.False(t, ok)

	prof, err := s.Profile(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 0.0, prof.Aura)
}

func TestWatchProgress_SnapshotOnSubscribeAndChange(t *testing.T) {
	s := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := newInstance(1, model.ProgressAvailable)
	require.NoError(t, s.CreateProgress(ctx, p))

	ch, stop, err := s.WatchProgress(ctx, 1)
	require.NoError(t, err)
	defer stop()

	// Initial snapshot.
	select {
	case snap := <-ch:
		require.Len(t, snap, 1)
		assert.Equal(t, p.ID, snap[0].ID)
	case <-time.After(2 * time.Second):
		t.Fatal("no initial snapshot")
	}

	// Mutation triggers a fresh full snapshot.
	require.NoError(t, s.UpdateProgressFields(ctx, p.ID, 1,
		map[string]interface{}{"status": model.ProgressFailed}))

	select {
	case snap := <-ch:
		require.Len(t, snap, 1)
		assert.Equal(t, model.ProgressFailed, snap[0].Status)
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot after change")
	}
}

func TestWatchAssignments_Cancel(t *testing.T) {
	s := setup(t)
	ctx := context.Background()

	ch, stop, err := s.WatchAssignments(ctx, 1)
	require.NoError(t, err)

	// Drain the initial (empty) snapshot.
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("no initial snapshot")
	}

	stop()
	select {
	case _, open := <-ch:
		assert.False(t, open, "channel should close after cancel")
	case <-time.After(2 * time.Second):
		t.Fatal("channel did not close")
	}
}

func TestUpdateProfileRest(t *testing.T) {
	s := setup(t)
	ctx := context.Background()

	require.NoError(t, s.UpdateProfileRest(ctx, 1, 23, 30, 7, 15))
	p, err := s.Profile(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 23, p.RestStartHour)
	assert.Equal(t, 30, p.RestStartMinute)
	assert.Equal(t, 7, p.RestEndHour)
	assert.Equal(t, 15, p.RestEndMinute)
}
