package store

import (
	"context"
	"sync"

	"github.com/thomaswakin/SystemAdept-sub000/model"
	"go.uber.org/zap"
)

// WatchProgress subscribes to the user's quest instances. The channel
// delivers the full current set on subscribe and again after every change
// ping; each delivery is an authoritative replacement, never a delta.
// Duplicate deliveries are possible and harmless. The cancel func tears the
// subscription down and closes the channel.
func (s *Store) WatchProgress(ctx context.Context, userID int64) (<-chan []model.QuestProgress, func(), error) {
	fetch := func(ctx context.Context) (interface{}, error) {
		return s.ProgressByUser(ctx, userID)
	}
	raw, cancel, err := s.watch(ctx, progressChannel(userID), fetch)
	if err != nil {
		return nil, nil, err
	}
	out := make(chan []model.QuestProgress, 8)
	go func() {
		defer close(out)
		for v := range raw {
			out <- v.([]model.QuestProgress)
		}
	}()
	return out, cancel, nil
}

// WatchAssignments subscribes to the user's assignment set with the same
// full-snapshot semantics as WatchProgress.
func (s *Store) WatchAssignments(ctx context.Context, userID int64) (<-chan []model.ActiveSystemAssignment, func(), error) {
	fetch := func(ctx context.Context) (interface{}, error) {
		return s.AssignmentsByUser(ctx, userID)
	}
	raw, cancel, err := s.watch(ctx, assignmentChannel(userID), fetch)
	if err != nil {
		return nil, nil, err
	}
	out := make(chan []model.ActiveSystemAssignment, 8)
	go func() {
		defer close(out)
		for v := range raw {
			out <- v.([]model.ActiveSystemAssignment)
		}
	}()
	return out, cancel, nil
}

// WatchProfile subscribes to the user's profile record.
func (s *Store) WatchProfile(ctx context.Context, userID int64) (<-chan *model.UserProfile, func(), error) {
	fetch := func(ctx context.Context) (interface{}, error) {
		return s.Profile(ctx, userID)
	}
	raw, cancel, err := s.watch(ctx, profileChannel(userID), fetch)
	if err != nil {
		return nil, nil, err
	}
	out := make(chan *model.UserProfile, 8)
	go func() {
		defer close(out)
		for v := range raw {
			out <- v.(*model.UserProfile)
		}
	}()
	return out, cancel, nil
}

// watch is the generic subscription loop: emit one snapshot up front, then
// re-fetch on every ping. Fetch failures are logged and skipped; the next
// ping retries naturally.
func (s *Store) watch(ctx context.Context, channel string, fetch func(context.Context) (interface{}, error)) (<-chan interface{}, func(), error) {
	pings, cancelSub, err := s.ps.Subscribe(ctx, channel)
	if err != nil {
		return nil, nil, err
	}

	out := make(chan interface{}, 8)
	done := make(chan struct{})

	emit := func() {
		snap, err := fetch(ctx)
		if err != nil {
			s.logger.Warn("store watch fetch failed", zap.String("channel", channel), zap.Error(err))
			return
		}
		select {
		case out <- snap:
		case <-done:
		case <-ctx.Done():
		}
	}

	go func() {
		defer close(out)
		emit()
		for {
			select {
			case _, ok := <-pings:
				if !ok {
					return
				}
				emit()
			case <-done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			cancelSub()
			close(done)
		})
	}
	return out, cancel, nil
}
