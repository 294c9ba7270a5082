package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/thomaswakin/SystemAdept-sub000/game/catalog"
	"github.com/thomaswakin/SystemAdept-sub000/game/route"
	"github.com/thomaswakin/SystemAdept-sub000/game/timewin"
	"github.com/thomaswakin/SystemAdept-sub000/model"
	"github.com/thomaswakin/SystemAdept-sub000/scheduler"
	"github.com/thomaswakin/SystemAdept-sub000/store"
	"go.uber.org/zap"
)

// MorningKey is the fixed ID of the single morning reminder.
const MorningKey = "morning-reminder"

const alertPrefix = "expiry:"

// AlertID returns the notification ID of an instance's expiry alert.
func AlertID(instanceID string) string { return alertPrefix + instanceID }

// Morning is a composed morning reminder.
type Morning struct {
	FireAt time.Time
	Title  string
	Body   string
	Tab    route.Tab
	Page   route.Page
}

// ComposeMorning builds the morning reminder: it fires at the next rest-end,
// and its body summarizes the quest situation over a window of 24 hours plus
// the rest duration from that instant. Counts are checked in priority order;
// the empty state points the user at the systems tab instead.
func ComposeMorning(rc timewin.RestCycle, instances []model.QuestProgress, now time.Time) Morning {
	fireAt := rc.NextEnd(now)
	windowEnd := fireAt.Add(24*time.Hour + rc.Duration())

	var daily, outstanding, expired int
	for i := range instances {
		p := &instances[i]
		switch p.Status {
		case model.ProgressAvailable:
			outstanding++
			if p.ExpirationTime != nil && !p.ExpirationTime.After(windowEnd) {
				daily++
			}
		case model.ProgressFailed:
			expired++
		}
	}

	m := Morning{FireAt: fireAt, Title: "Quest reminder", Tab: route.TabQuests, Page: route.PageDaily}
	switch {
	case daily > 0:
		m.Body = fmt.Sprintf("%d quests due today", daily)
	case outstanding > 0:
		m.Body = fmt.Sprintf("%d outstanding quests", outstanding)
	case expired > 0:
		m.Body = fmt.Sprintf("%d expired quests waiting reactivation", expired)
	default:
		m.Body = "No active quests. Enable a Quest System"
		m.Tab = route.TabSystems
		m.Page = ""
	}
	return m
}

// ComposeAlerts builds one expiry alert per available instance with a set
// expirationTime, firing lead before expiry, future firings only. Instances
// referencing unknown quests are skipped.
func ComposeAlerts(cat *catalog.Catalog, userID int64, instances []model.QuestProgress, lead time.Duration, now time.Time) []Notification {
	var alerts []Notification
	for i := range instances {
		p := &instances[i]
		if p.Status != model.ProgressAvailable || p.ExpirationTime == nil {
			continue
		}
		fireAt := p.ExpirationTime.Add(-lead)
		if !fireAt.After(now) {
			continue
		}
		quest, _ := cat.Quest(p.QuestID)
		if quest == nil {
			continue
		}
		alerts = append(alerts, Notification{
			ID:     AlertID(p.ID),
			UserID: userID,
			FireAt: fireAt,
			Title:  "Quest expiring",
			Body:   fmt.Sprintf("%s expires soon", quest.Name),
			Payload: map[string]string{
				"tab":         string(route.TabQuests),
				"page":        string(route.PageDaily),
				"instance_id": p.ID,
			},
		})
	}
	return alerts
}

// Scheduler keeps one user's pending notifications in sync with their rest
// cycle, assignments and quest instances. Recomputation is coalesced behind a
// short re-armed delay so snapshot bursts collapse into one pass.
type Scheduler struct {
	st     *store.Store
	cat    *catalog.Catalog
	host   Host
	sched  *scheduler.Scheduler
	logger *zap.Logger

	userID    int64
	debounce  time.Duration
	alertLead time.Duration
	now       func() time.Time

	mu          sync.Mutex
	profile     *model.UserProfile
	assignments []model.ActiveSystemAssignment
	instances   []model.QuestProgress
	alertIDs    map[string]struct{}
}

// NewScheduler creates a notification Scheduler for one user.
func NewScheduler(st *store.Store, cat *catalog.Catalog, host Host, sched *scheduler.Scheduler,
	userID int64, debounce, alertLead time.Duration, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		st:        st,
		cat:       cat,
		host:      host,
		sched:     sched,
		logger:    logger,
		userID:    userID,
		debounce:  debounce,
		alertLead: alertLead,
		now:       time.Now,
		alertIDs:  make(map[string]struct{}),
	}
}

// SetClock overrides the wall clock, for tests.
func (n *Scheduler) SetClock(now func() time.Time) { n.now = now }

// OnProfile ingests a profile snapshot and arms a recompute.
func (n *Scheduler) OnProfile(p *model.UserProfile) {
	n.mu.Lock()
	n.profile = p
	n.mu.Unlock()
	n.markDirty()
}

// OnAssignments ingests an assignment snapshot and arms a recompute.
func (n *Scheduler) OnAssignments(batch []model.ActiveSystemAssignment) {
	n.mu.Lock()
	n.assignments = batch
	n.mu.Unlock()
	n.markDirty()
}

// OnProgress ingests a progress snapshot and arms a recompute.
func (n *Scheduler) OnProgress(batch []model.QuestProgress) {
	n.mu.Lock()
	n.instances = batch
	n.mu.Unlock()
	n.markDirty()
}

// markDirty arms the debounce delay; re-arming resets it, so a burst of
// snapshots yields a single recompute over the latest values.
func (n *Scheduler) markDirty() {
	n.sched.AddDelay(fmt.Sprintf("notify:recompute:%d", n.userID), n.debounce, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		n.Recompute(ctx)
	})
}

func (n *Scheduler) restCycle() timewin.RestCycle {
	if n.profile == nil {
		return timewin.RestCycle{StartHour: 22, EndHour: 6}
	}
	return timewin.RestCycle{
		StartHour:   n.profile.RestStartHour,
		StartMinute: n.profile.RestStartMinute,
		EndHour:     n.profile.RestEndHour,
		EndMinute:   n.profile.RestEndMinute,
	}
}

// Recompute rebuilds both schedules from the latest snapshots: the morning
// reminder is canceled and rescheduled under its fixed key, and the expiry
// alert set is fully replaced (stale alerts canceled, eligible ones
// scheduled).
func (n *Scheduler) Recompute(ctx context.Context) {
	n.mu.Lock()
	rc := n.restCycle()
	instances := n.instances
	prev := n.alertIDs
	n.mu.Unlock()

	now := n.now()

	m := ComposeMorning(rc, instances, now)
	if err := n.host.Cancel(ctx, MorningKey); err != nil {
		n.logger.Warn("cancel morning reminder failed", zap.Error(err))
	}
	if err := n.host.ScheduleAt(ctx, Notification{
		ID:     MorningKey,
		UserID: n.userID,
		FireAt: m.FireAt,
		Title:  m.Title,
		Body:   m.Body,
		Payload: map[string]string{
			"tab":  string(m.Tab),
			"page": string(m.Page),
		},
	}); err != nil {
		n.logger.Warn("schedule morning reminder failed", zap.Error(err))
	}

	alerts := ComposeAlerts(n.cat, n.userID, instances, n.alertLead, now)
	next := make(map[string]struct{}, len(alerts))
	for _, a := range alerts {
		next[a.ID] = struct{}{}
	}
	var stale []string
	for id := range prev {
		if _, ok := next[id]; !ok {
			stale = append(stale, id)
		}
	}
	if len(stale) > 0 {
		if err := n.host.Cancel(ctx, stale...); err != nil {
			n.logger.Warn("cancel stale expiry alerts failed", zap.Error(err))
		}
	}
	for _, a := range alerts {
		if err := n.host.ScheduleAt(ctx, a); err != nil {
			n.logger.Warn("schedule expiry alert failed", zap.String("id", a.ID), zap.Error(err))
		}
	}

	n.mu.Lock()
	n.alertIDs = next
	n.mu.Unlock()

	n.logger.Debug("notification schedules recomputed",
		zap.Int64("user_id", n.userID),
		zap.Time("morning_at", m.FireAt),
		zap.Int("expiry_alerts", len(alerts)))
}

// Run consumes the profile, assignment and progress watch streams until ctx
// is canceled.
func (n *Scheduler) Run(ctx context.Context) error {
	profiles, cancelPr, err := n.st.WatchProfile(ctx, n.userID)
	if err != nil {
		return err
	}
	defer cancelPr()

	assignments, cancelA, err := n.st.WatchAssignments(ctx, n.userID)
	if err != nil {
		return err
	}
	defer cancelA()

	progress, cancelP, err := n.st.WatchProgress(ctx, n.userID)
	if err != nil {
		return err
	}
	defer cancelP()

	for {
		select {
		case p, ok := <-profiles:
			if !ok {
				return nil
			}
			n.OnProfile(p)
		case batch, ok := <-assignments:
			if !ok {
				return nil
			}
			n.OnAssignments(batch)
		case batch, ok := <-progress:
			if !ok {
				return nil
			}
			n.OnProgress(batch)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
