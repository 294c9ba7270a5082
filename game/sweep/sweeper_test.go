package sweep

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/thomaswakin/SystemAdept-sub000/audit"
	"github.com/thomaswakin/SystemAdept-sub000/game/catalog"
	"github.com/thomaswakin/SystemAdept-sub000/game/lifecycle"
	"github.com/thomaswakin/SystemAdept-sub000/model"
	"github.com/thomaswakin/SystemAdept-sub000/scheduler"
	"github.com/thomaswakin/SystemAdept-sub000/store"
	"github.com/thomaswakin/SystemAdept-sub000/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setup(t *testing.T) (*Sweeper, *store.Store) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	_, ps := testutil.SetupTestCache(t)
	st := store.New(db, ps, zap.NewNop())
	aud := audit.New(db, zap.NewNop())
	t.Cleanup(func() { aud.Stop(context.Background()) })
	cat, err := catalog.New([]*catalog.SystemDef{
		{ID: "sys", Name: "Sys", Quests: []catalog.QuestDef{
			{ID: "q1", Name: "Q1", Rank: 1, Aura: 10},
		}},
	}, time.Hour)
	require.NoError(t, err)
	lc := lifecycle.NewService(st, cat, aud, zap.NewNop())
	return New(st, lc, zap.NewNop()), st
}

func instance(t *testing.T, st *store.Store, status string, exp *time.Time) *model.QuestProgress {
	t.Helper()
	p := &model.QuestProgress{
		ID:             uuid.New().String(),
		AssignmentID:   "assign-1",
		UserID:         1,
		QuestID:        "q1",
		Status:         status,
		ExpirationTime: exp,
	}
	require.NoError(t, st.CreateProgress(context.Background(), p))
	return p
}

func TestSweep_ExpiresOnlyOverdue(t *testing.T) {
	s, st := setup(t)
	ctx := context.Background()

	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)

	overdue := instance(t, st, model.ProgressAvailable, &past)
	pending := instance(t, st, model.ProgressAvailable, &future)
	open := instance(t, st, model.ProgressAvailable, nil)
	done := instance(t, st, model.ProgressCompleted, &past)
	gone := instance(t, st, model.ProgressFailed, &past)

	all, err := st.ProgressByUser(ctx, 1)
	require.NoError(t, err)

	expired, failed := s.Sweep(ctx, all)
	assert.Equal(t, 1, expired)
	assert.Equal(t, 0, failed)

	check := func(id, want string) {
		got, err := st.Progress(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, got.Status, id)
	}
	check(overdue.ID, model.ProgressFailed)
	check(pending.ID, model.ProgressAvailable)
	check(open.ID, model.ProgressAvailable)
	check(done.ID, model.ProgressCompleted)
	check(gone.ID, model.ProgressFailed)
}

func TestSweep_SecondPassIsNoop(t *testing.T) {
	s, st := setup(t)
	ctx := context.Background()

	past := time.Now().Add(-time.Hour)
	p := instance(t, st, model.ProgressAvailable, &past)

	all, _ := st.ProgressByUser(ctx, 1)
	expired, _ := s.Sweep(ctx, all)
	require.Equal(t, 1, expired)

	// Re-fetch (now failed) and sweep again: idempotent.
	all, _ = st.ProgressByUser(ctx, 1)
	expired, failed := s.Sweep(ctx, all)
	assert.Equal(t, 0, expired)
	assert.Equal(t, 0, failed)

	got, err := st.Progress(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.FailedCount)
}

func TestReconcile_ActivatesDueLocked(t *testing.T) {
	s, st := setup(t)
	ctx := context.Background()

	past := time.Now().Add(-time.Minute)
	locked := &model.QuestProgress{
		ID:           uuid.New().String(),
		AssignmentID: "assign-1",
		UserID:       1,
		QuestID:      "q1",
		Status:       model.ProgressLocked,
		AvailableAt:  &past,
	}
	require.NoError(t, st.CreateProgress(ctx, locked))

	all, _ := st.ProgressByUser(ctx, 1)
	s.Reconcile(ctx, all)

	got, err := st.Progress(ctx, locked.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ProgressAvailable, got.Status)
}

func TestRunner_SweepsOnSnapshot(t *testing.T) {
	s, st := setup(t)
	sched := scheduler.New(zap.NewNop())
	defer sched.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := NewRunner(s, sched, zap.NewNop(), 1, time.Hour)
	done := make(chan struct{})
	go func() {
		_ = r.Run(ctx)
		close(done)
	}()

	// Creating an overdue instance pings the watch; the runner should
	// expire it from the delivered snapshot.
	past := time.Now().Add(-time.Hour)
	p := instance(t, st, model.ProgressAvailable, &past)

	require.Eventually(t, func() bool {
		got, err := st.Progress(context.Background(), p.ID)
		return err == nil && got.Status == model.ProgressFailed
	}, 3*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop")
	}
}

type fakeHost struct {
	mu    sync.Mutex
	calls []time.Duration
}

func (f *fakeHost) RequestWake(earliestAfter time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, earliestAfter)
	return nil
}

func (f *fakeHost) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func TestBackground_RequestsNextWakeBeforeSweeping(t *testing.T) {
	s, st := setup(t)
	ctx := context.Background()

	// Seed an active assignment with one overdue instance.
	assignment := &model.ActiveSystemAssignment{
		ID:       "assign-1",
		UserID:   1,
		SystemID: "sys",
		Name:     "Sys",
		Status:   model.AssignmentActive,
	}
	require.NoError(t, st.CreateAssignment(ctx, assignment))
	past := time.Now().Add(-time.Hour)
	p := instance(t, st, model.ProgressAvailable, &past)

	host := &fakeHost{}
	bg := NewBackground(s, host, 15*time.Minute, zap.NewNop())

	var reported bool
	var reportedOK bool
	bg.OnWake(ctx, time.Now().Add(5*time.Second), func(ok bool) {
		reported = true
		reportedOK = ok
	})

	assert.Equal(t, 1, host.count(), "next wake must be requested exactly once")
	assert.True(t, reported, "signalDone must be called")
	assert.True(t, reportedOK)

	got, err := st.Progress(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ProgressFailed, got.Status)
}

func TestBackground_ExpiredDeadlineReportsFailure(t *testing.T) {
	s, st := setup(t)
	ctx := context.Background()

	assignment := &model.ActiveSystemAssignment{
		ID:       "assign-1",
		UserID:   1,
		SystemID: "sys",
		Name:     "Sys",
		Status:   model.AssignmentActive,
	}
	require.NoError(t, st.CreateAssignment(ctx, assignment))

	host := &fakeHost{}
	bg := NewBackground(s, host, time.Minute, zap.NewNop())

	var reportedOK bool
	// Deadline already in the past: the sweep must still request the next
	// wake and report failure.
	bg.OnWake(ctx, time.Now().Add(-time.Second), func(ok bool) { reportedOK = ok })

	assert.Equal(t, 1, host.count())
	assert.False(t, reportedOK)
}
