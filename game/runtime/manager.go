package runtime

import (
	"context"
	"sync"

	"github.com/thomaswakin/SystemAdept-sub000/cache"
	"github.com/thomaswakin/SystemAdept-sub000/config"
	"github.com/thomaswakin/SystemAdept-sub000/game/catalog"
	"github.com/thomaswakin/SystemAdept-sub000/game/notify"
	"github.com/thomaswakin/SystemAdept-sub000/game/route"
	"github.com/thomaswakin/SystemAdept-sub000/game/sweep"
	"github.com/thomaswakin/SystemAdept-sub000/scheduler"
	"github.com/thomaswakin/SystemAdept-sub000/store"
	"go.uber.org/zap"
)

// Session is one user's live engine: their router, notification scheduler
// and foreground sweep runner, all fed by the store watch streams.
type Session struct {
	UserID int64
	Router *route.Router
	Notify *notify.Scheduler
	Host   notify.Host

	cancel context.CancelFunc
}

// Manager lazily starts a Session per authenticated user and tears it down
// on demand. It plays the same role a per-device engine would: everything in
// a Session is derived state that can be rebuilt from the store at any time.
type Manager struct {
	st      *store.Store
	cat     *catalog.Catalog
	sweeper *sweep.Sweeper
	sched   *scheduler.Scheduler
	ps      cache.PubSub
	kv      cache.Cache
	engine  config.EngineConfig
	logger  *zap.Logger

	mu       sync.Mutex
	sessions map[int64]*Session
}

// NewManager creates a Manager.
func NewManager(st *store.Store, cat *catalog.Catalog, sweeper *sweep.Sweeper,
	sched *scheduler.Scheduler, ps cache.PubSub, kv cache.Cache,
	engine config.EngineConfig, logger *zap.Logger) *Manager {
	return &Manager{
		st:       st,
		cat:      cat,
		sweeper:  sweeper,
		sched:    sched,
		ps:       ps,
		kv:       kv,
		engine:   engine,
		logger:   logger,
		sessions: make(map[int64]*Session),
	}
}

// Ensure returns the user's Session, starting one if none is live.
func (m *Manager) Ensure(userID int64) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[userID]; ok {
		return s
	}

	ctx, cancel := context.WithCancel(context.Background())
	host := notify.NewLocalHost(userID, m.sched, m.ps, m.kv, m.logger)
	s := &Session{
		UserID: userID,
		Router: route.NewRouter(m.logger),
		Notify: notify.NewScheduler(m.st, m.cat, host, m.sched, userID,
			m.engine.NotifyDebounce, m.engine.ExpiryAlertLead, m.logger),
		Host:   host,
		cancel: cancel,
	}
	m.sessions[userID] = s

	runner := sweep.NewRunner(m.sweeper, m.sched, m.logger, userID, m.engine.SweepInterval)
	go func() {
		if err := runner.Run(ctx); err != nil && ctx.Err() == nil {
			m.logger.Warn("sweep runner exited", zap.Int64("user_id", userID), zap.Error(err))
		}
	}()
	go func() {
		if err := s.Router.Run(ctx, m.st, userID); err != nil && ctx.Err() == nil {
			m.logger.Warn("router exited", zap.Int64("user_id", userID), zap.Error(err))
		}
	}()
	go func() {
		if err := s.Notify.Run(ctx); err != nil && ctx.Err() == nil {
			m.logger.Warn("notify scheduler exited", zap.Int64("user_id", userID), zap.Error(err))
		}
	}()

	m.logger.Info("engine session started", zap.Int64("user_id", userID))
	return s
}

// Get returns the user's Session if one is live.
func (m *Manager) Get(userID int64) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[userID]
}

// Stop tears down the user's Session if one is live.
func (m *Manager) Stop(userID int64) {
	m.mu.Lock()
	s, ok := m.sessions[userID]
	if ok {
		delete(m.sessions, userID)
	}
	m.mu.Unlock()
	if ok {
		s.cancel()
		m.logger.Info("engine session stopped", zap.Int64("user_id", userID))
	}
}

// StopAll tears down every live Session.
func (m *Manager) StopAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[int64]*Session)
	m.mu.Unlock()
	for _, s := range sessions {
		s.cancel()
	}
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
