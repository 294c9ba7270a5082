package route

import (
	"context"
	"strings"
	"sync"
	"time"

	humanize "github.com/dustin/go-humanize"
	"github.com/thomaswakin/SystemAdept-sub000/game/timewin"
	"github.com/thomaswakin/SystemAdept-sub000/model"
	"github.com/thomaswakin/SystemAdept-sub000/store"
	"go.uber.org/zap"
)

// Tab is a top-level destination tab.
type Tab string

const (
	TabQuests  Tab = "quests"
	TabSystems Tab = "systems"
)

// Page is a destination page within the quests tab.
type Page string

const (
	PageDaily   Page = "daily"
	PageActive  Page = "active"
	PageExpired Page = "expired"
)

// BannerWaiting is shown while only locked instances remain and none carry
// an availableAt.
const BannerWaiting = "Waiting on next quest."

// Decision is the read-only routing tuple exposed to the UI layer.
type Decision struct {
	Tab    Tab    `json:"tab"`
	Page   Page   `json:"page"`
	Banner string `json:"banner,omitempty"`
}

// availableNow reports whether the instance is selectable as available:
// status available and availableAt absent or passed.
func availableNow(p *model.QuestProgress, now time.Time) bool {
	if p.Status != model.ProgressAvailable {
		return false
	}
	return p.AvailableAt == nil || !p.AvailableAt.After(now)
}

// Decide computes the one-shot startup decision from a full joined view of
// assignments and instances.
func Decide(instances []model.QuestProgress, now time.Time) Decision {
	var anyAvailable, anyFailed, anyLocked, dueToday bool
	for i := range instances {
		p := &instances[i]
		switch {
		case availableNow(p, now):
			anyAvailable = true
			if p.ExpirationTime != nil && timewin.SameCalendarDay(now, *p.ExpirationTime) {
				dueToday = true
			}
		case p.Status == model.ProgressFailed:
			anyFailed = true
		case p.Status == model.ProgressLocked:
			anyLocked = true
		}
	}

	switch {
	case anyAvailable && dueToday:
		return Decision{Tab: TabQuests, Page: PageDaily}
	case anyAvailable:
		return Decision{Tab: TabQuests, Page: PageActive}
	case anyFailed:
		return Decision{Tab: TabQuests, Page: PageExpired}
	case anyLocked:
		return Decision{Tab: TabQuests, Page: PageDaily, Banner: BannerWaiting}
	default:
		return Decision{Tab: TabQuests, Page: PageDaily}
	}
}

// BannerText computes the continuously-maintained banner: cleared while
// anything is actionable, informative while everything is locked.
func BannerText(assignments []model.ActiveSystemAssignment, instances []model.QuestProgress, now time.Time) string {
	if len(assignments) == 0 {
		return ""
	}

	var anyLocked bool
	var soonest *time.Time
	for i := range instances {
		p := &instances[i]
		if availableNow(p, now) || p.Status == model.ProgressFailed {
			return ""
		}
		if p.Status != model.ProgressLocked {
			continue
		}
		anyLocked = true
		if p.AvailableAt != nil && (soonest == nil || p.AvailableAt.Before(*soonest)) {
			soonest = p.AvailableAt
		}
	}
	if !anyLocked {
		return ""
	}
	if soonest == nil {
		return BannerWaiting
	}
	delta := strings.TrimSpace(humanize.RelTime(*soonest, now, "", ""))
	return "Next quest available in " + delta
}

// Router joins the assignment and progress watch streams into the routing
// tuple. The page decision is made exactly once, after both streams have
// delivered a non-empty batch; only the banner keeps updating afterward.
type Router struct {
	mu     sync.Mutex
	logger *zap.Logger
	now    func() time.Time

	haveAssignments bool
	haveProgress    bool
	assignments     []model.ActiveSystemAssignment
	instances       []model.QuestProgress

	decided  bool
	decision Decision
	banner   string
}

// NewRouter creates a Router.
func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		logger:   logger,
		now:      time.Now,
		decision: Decision{Tab: TabQuests, Page: PageDaily},
	}
}

// SetClock overrides the wall clock, for tests.
func (r *Router) SetClock(now func() time.Time) { r.now = now }

// OnAssignments ingests a full assignment snapshot.
func (r *Router) OnAssignments(batch []model.ActiveSystemAssignment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.assignments = batch
	if len(batch) > 0 {
		r.haveAssignments = true
	}
	r.recompute()
}

// OnProgress ingests a full progress snapshot.
func (r *Router) OnProgress(batch []model.QuestProgress) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.instances = batch
	if len(batch) > 0 {
		r.haveProgress = true
	}
	r.recompute()
}

func (r *Router) recompute() {
	now := r.now()
	if !r.decided && r.haveAssignments && r.haveProgress {
		r.decision = Decide(r.instances, now)
		r.decided = true
		r.logger.Info("initial route decided",
			zap.String("page", string(r.decision.Page)),
			zap.String("banner", r.decision.Banner))
	}
	r.banner = BannerText(r.assignments, r.instances, now)
}

// Current returns the routing tuple: the startup page decision with the live
// banner, and whether the startup decision has been made yet.
func (r *Router) Current() (Decision, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d := r.decision
	d.Banner = r.banner
	return d, r.decided
}

// Run consumes both watch streams until ctx is canceled.
func (r *Router) Run(ctx context.Context, st *store.Store, userID int64) error {
	assignments, cancelA, err := st.WatchAssignments(ctx, userID)
	if err != nil {
		return err
	}
	defer cancelA()

	progress, cancelP, err := st.WatchProgress(ctx, userID)
	if err != nil {
		return err
	}
	defer cancelP()

	for {
		select {
		case batch, ok := <-assignments:
			if !ok {
				return nil
			}
			r.OnAssignments(batch)
		case batch, ok := <-progress:
			if !ok {
				return nil
			}
			r.OnProgress(batch)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
