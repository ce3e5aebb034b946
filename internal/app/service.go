// Package app wires the cache collections together and drives
// synchronization with the service.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/lu-zhengda/termcix/internal/directory"
	"github.com/lu-zhengda/termcix/internal/events"
	"github.com/lu-zhengda/termcix/internal/folders"
	"github.com/lu-zhengda/termcix/internal/mail"
	"github.com/lu-zhengda/termcix/internal/profiles"
	"github.com/lu-zhengda/termcix/internal/provider"
	"github.com/lu-zhengda/termcix/internal/rules"
	"github.com/lu-zhengda/termcix/internal/store"
)

// ErrInit means the local cache could not be opened. It is not retried.
var ErrInit = errors.New("failed to initialize cache")

type State int

const (
	Offline State = iota
	OnlineIdle
	OnlineSyncing
)

func (s State) String() string {
	switch s {
	case Offline:
		return "offline"
	case OnlineIdle:
		return "online"
	case OnlineSyncing:
		return "syncing"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

type Options struct {
	Username string
	Now      func() time.Time
}

// Service owns the store, the cache lock and the collections. The cache
// lock is held for each unit of store work and never across a network call.
type Service struct {
	store  store.Store
	remote provider.Provider
	mu     sync.Mutex
	bus    *events.Bus
	now    func() time.Time
	log    *logrus.Entry
	tracer trace.Tracer

	Folders   *folders.Collection
	Mail      *mail.Collection
	Rules     *rules.Collection
	Directory *directory.Collection
	Profiles  *profiles.Collection

	// ctx lives until Close. Passes derive their context from it.
	ctx      context.Context
	shutdown context.CancelFunc
	passes   singleflight.Group
	wg       sync.WaitGroup
	// running counts passes, including ones dropped from passes after
	// going offline that are still unwinding.
	running sync.WaitGroup

	stateMu    sync.Mutex
	state      State
	cancelPass context.CancelFunc
	passGen    uint64
	stopTask   chan struct{}
	taskDone   chan struct{}
}

func New(st store.Store, remote provider.Provider, opts Options) *Service {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	s := &Service{
		store:  st,
		remote: remote,
		bus:    events.NewBus(),
		now:    now,
		log:    logrus.WithField("pkg", "app"),
		tracer: otel.Tracer("github.com/lu-zhengda/termcix/internal/app"),
	}
	s.ctx, s.shutdown = context.WithCancel(context.Background())

	s.Rules = rules.New(st, &s.mu, rules.Options{Sink: s.bus, Username: opts.Username, Now: now})
	s.Folders = folders.New(st, remote, &s.mu, folders.Options{
		Sink:     s.bus,
		Rules:    s.Rules,
		Username: opts.Username,
		Now:      now,
	})
	s.Mail = mail.New(st, remote, &s.mu, mail.Options{Sink: s.bus, Username: opts.Username, Now: now})
	s.Directory = directory.New(st, remote, &s.mu, s.bus)
	s.Profiles = profiles.New(st, remote, &s.mu, profiles.Options{Sink: s.bus, Username: opts.Username, Now: now})
	return s
}

// Events returns the bus every collection publishes to.
func (s *Service) Events() *events.Bus {
	return s.bus
}

// Open reads the cache metadata and loads every collection.
func (s *Service) Open(ctx context.Context) error {
	s.mu.Lock()
	global, err := s.store.GetGlobal(ctx)
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInit, err)
	}

	loaders := []struct {
		name string
		load func(context.Context) error
	}{
		{"rules", s.Rules.Load},
		{"folders", s.Folders.Load},
		{"mail", s.Mail.Load},
		{"directory", s.Directory.Load},
		{"profiles", s.Profiles.Load},
	}
	for _, l := range loaders {
		if err := l.load(ctx); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrInit, l.name, err)
		}
	}
	s.log.WithField("version", global.Version).WithField("last-sync", global.LastSync).Info("Cache opened")
	return nil
}

// Close stops the periodic task, makes one last attempt to push pending
// changes when online, and waits for background passes to finish. The
// store is closed last.
func (s *Service) Close(ctx context.Context) error {
	s.StopTask()

	var errs []error
	if s.State() != Offline {
		if err := s.closeSync(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	s.SetOnline(false)
	s.shutdown()
	s.wg.Wait()
	s.running.Wait()

	if err := s.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close store: %w", err))
	}
	return errors.Join(errs...)
}

func (s *Service) closeSync(ctx context.Context) error {
	steps := []func(context.Context) error{s.Folders.CloseSync, s.Mail.CloseSync, s.Directory.Sync, s.Profiles.CloseSync}
	for _, step := range steps {
		if err := step(ctx); err != nil {
			s.log.WithError(err).Warn("Pending changes left for next session")
			return err
		}
	}
	return nil
}

func (s *Service) State() State {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.state
}

// SetOnline switches between online and offline. Going online starts a
// pass in the background. Going offline cancels the running pass and
// forgets it, so going online again starts a fresh pass instead of joining
// the cancelled one. Pending local changes stay pending.
func (s *Service) SetOnline(online bool) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	switch {
	case online && s.state == Offline:
		s.state = OnlineIdle
		s.log.Info("Online")
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.Sync(s.ctx, false); err != nil {
				s.log.WithError(err).Warn("Sync failed")
			}
		}()

	case !online && s.state != Offline:
		s.state = Offline
		if s.cancelPass != nil {
			s.cancelPass()
			s.cancelPass = nil
		}
		s.passes.Forget("sync")
		s.log.Info("Offline")
	}
}

// Sync runs a reconciliation pass. A call made while a pass is running
// waits for that pass instead of starting another. A fast pass skips the
// forum listing unless a folder asks for it.
func (s *Service) Sync(ctx context.Context, fast bool) error {
	if s.State() == Offline {
		return provider.ErrOffline
	}
	ch := s.passes.DoChan("sync", func() (any, error) {
		return nil, s.pass(fast)
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}
