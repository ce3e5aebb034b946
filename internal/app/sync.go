package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/lu-zhengda/termcix/internal/events"
	"github.com/lu-zhengda/termcix/internal/provider"
)

// pass runs one reconciliation pass over every collection.
func (s *Service) pass(fast bool) error {
	s.stateMu.Lock()
	if s.state == Offline {
		s.stateMu.Unlock()
		return provider.ErrOffline
	}
	ctx, cancel := context.WithCancel(s.ctx)
	s.passGen++
	gen := s.passGen
	s.cancelPass = cancel
	s.state = OnlineSyncing
	s.running.Add(1)
	s.stateMu.Unlock()

	defer func() {
		cancel()
		s.stateMu.Lock()
		// A cancelled pass may finish after a newer one started.
		if s.passGen == gen {
			s.cancelPass = nil
			if s.state == OnlineSyncing {
				s.state = OnlineIdle
			}
		}
		s.stateMu.Unlock()
		s.running.Done()
	}()

	ctx, span := s.tracer.Start(ctx, "sync.pass", trace.WithAttributes(attribute.Bool("sync.fast", fast)))
	defer span.End()

	started := s.now()
	s.bus.Publish(events.Event{Kind: events.SyncStarted})
	log := s.log.WithField("fast", fast)
	log.Debug("Sync pass started")

	err := s.run(ctx, fast)
	if err == nil {
		err = s.recordSync(ctx, started)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.WithError(err).Warn("Sync pass failed")
	} else {
		log.WithField("took", s.now().Sub(started)).Info("Sync pass done")
	}
	s.bus.Publish(events.Event{Kind: events.SyncCompleted, Err: err})
	return err
}

// run refreshes each collection in turn. An offline, busy or cancelled
// step ends the pass; other failures are logged and the pass moves on.
func (s *Service) run(ctx context.Context, fast bool) error {
	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"folders", func(ctx context.Context) error { return s.Folders.Refresh(ctx, fast) }},
		{"mail", s.Mail.Sync},
		{"directory", s.Directory.Sync},
		{"profiles", s.Profiles.Sync},
		{"listing", func(ctx context.Context) error {
			if fast || s.Directory.Len() > 0 {
				return nil
			}
			return s.Directory.Refresh(ctx)
		}},
	}

	var errs []error
	for _, step := range steps {
		err := step.fn(ctx)
		if err == nil {
			continue
		}
		if provider.IsRetryable(err) || ctx.Err() != nil {
			return err
		}
		s.log.WithError(err).WithField("step", step.name).Warn("Sync step failed")
		errs = append(errs, fmt.Errorf("%s: %w", step.name, err))
	}
	return errors.Join(errs...)
}

// recordSync persists the start time of a successful pass. The next pass
// asks the server for changes since then.
func (s *Service) recordSync(ctx context.Context, started time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	global, err := s.store.GetGlobal(ctx)
	if err != nil {
		return fmt.Errorf("failed to read sync cursor: %w", err)
	}
	global.LastSync = started
	if err := s.store.SetGlobal(ctx, global); err != nil {
		return fmt.Errorf("failed to save sync cursor: %w", err)
	}
	return nil
}

// LastSync returns the start time of the last successful pass.
func (s *Service) LastSync(ctx context.Context) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	global, err := s.store.GetGlobal(ctx)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read sync cursor: %w", err)
	}
	return global.LastSync, nil
}

// StartTask runs a full pass every interval while online and idle. The
// timer is re-armed after each pass, so passes never overlap. Calling it
// again while a task runs does nothing.
func (s *Service) StartTask(interval time.Duration) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	if s.stopTask != nil {
		return
	}
	stop, done := make(chan struct{}), make(chan struct{})
	s.stopTask, s.taskDone = stop, done

	go func() {
		defer close(done)
		t := time.NewTimer(interval)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-t.C:
				if s.State() == OnlineIdle {
					if err := s.Sync(s.ctx, false); err != nil {
						s.log.WithError(err).Warn("Scheduled sync failed")
					}
				}
				t.Reset(interval)
			}
		}
	}()
}

// StopTask stops the periodic task and waits for it to exit.
func (s *Service) StopTask() {
	s.stateMu.Lock()
	stop, done := s.stopTask, s.taskDone
	s.stopTask, s.taskDone = nil, nil
	s.stateMu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}

// Status is a snapshot of the unread counts and sync state.
type Status struct {
	State              State
	Unread             int
	UnreadPriority     int
	MailUnread         int
	MailUnreadPriority int
	LastSync           time.Time
}

func (s *Service) Status(ctx context.Context) (Status, error) {
	last, err := s.LastSync(ctx)
	if err != nil {
		return Status{}, err
	}
	return Status{
		State:              s.State(),
		Unread:             s.Folders.TotalUnread(),
		UnreadPriority:     s.Folders.TotalUnreadPriority(),
		MailUnread:         s.Mail.TotalUnread(),
		MailUnreadPriority: s.Mail.TotalUnreadPriority(),
		LastSync:           last,
	}, nil
}
