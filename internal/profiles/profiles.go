// Package profiles caches users' public profiles and pushes edits of the
// signed-in user's own profile.
package profiles

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lu-zhengda/termcix/internal/domain"
	"github.com/lu-zhengda/termcix/internal/events"
	"github.com/lu-zhengda/termcix/internal/provider"
	"github.com/lu-zhengda/termcix/internal/store"
)

// DefaultMaxAge is how long Lookup trusts a cached profile.
const DefaultMaxAge = 24 * time.Hour

// ErrNoUsername is returned for a profile without a username.
var ErrNoUsername = errors.New("profile has no username")

type Options struct {
	Sink     events.Sink
	Username string
	Now      func() time.Time
	MaxAge   time.Duration
}

type Collection struct {
	store    store.Store
	remote   provider.Provider
	mu       sync.Locker
	sink     events.Sink
	username string
	now      func() time.Time
	maxAge   time.Duration
	log      *logrus.Entry

	profiles map[string]*domain.Profile
}

func New(st store.Store, remote provider.Provider, mu sync.Locker, opts Options) *Collection {
	c := &Collection{
		store:    st,
		remote:   remote,
		mu:       mu,
		sink:     opts.Sink,
		username: opts.Username,
		now:      opts.Now,
		maxAge:   opts.MaxAge,
		log:      logrus.WithField("pkg", "profiles"),
		profiles: make(map[string]*domain.Profile),
	}
	if c.sink == nil {
		c.sink = events.Discard{}
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.maxAge <= 0 {
		c.maxAge = DefaultMaxAge
	}
	return c
}

func key(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// Load reads the cached profiles from the store.
func (c *Collection) Load(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	profiles, err := c.store.ListProfiles(ctx)
	if err != nil {
		return fmt.Errorf("failed to load profiles: %w", err)
	}
	c.profiles = make(map[string]*domain.Profile, len(profiles))
	for i := range profiles {
		c.profiles[key(profiles[i].Username)] = &profiles[i]
	}
	c.log.WithField("profiles", len(c.profiles)).Debug("Loaded profiles")
	return nil
}

// Get returns the cached profile of username.
func (c *Collection) Get(username string) (domain.Profile, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.profiles[key(username)]; ok {
		return *p, true
	}
	return domain.Profile{}, false
}

// Own returns the cached profile of the signed-in user.
func (c *Collection) Own() (domain.Profile, bool) {
	return c.Get(c.username)
}

// All returns every cached profile ordered by username.
func (c *Collection) All() []domain.Profile {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.Profile, 0, len(c.profiles))
	for _, p := range c.profiles {
		out = append(out, *p)
	}
	slices.SortFunc(out, func(a, b domain.Profile) int { return strings.Compare(key(a.Username), key(b.Username)) })
	return out
}

// Add stores a profile as given, replacing any cached one.
func (c *Collection) Add(ctx context.Context, p domain.Profile) error {
	if key(p.Username) == "" {
		return ErrNoUsername
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saveLocked(ctx, &p)
}

// Refresh fetches a profile from the server and caches it. Editable fields
// of a pending own-profile edit keep their local values.
func (c *Collection) Refresh(ctx context.Context, username string) (domain.Profile, error) {
	if key(username) == "" {
		return domain.Profile{}, ErrNoUsername
	}
	e, err := c.remote.Profile(ctx, username)
	if err != nil {
		return domain.Profile{}, fmt.Errorf("failed to fetch profile of %s: %w", username, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	p := domain.Profile{Username: e.Username}
	if old, ok := c.profiles[key(username)]; ok {
		p = *old
	}
	if p.Username == "" {
		p.Username = username
	}
	p.About, p.FirstOn, p.LastOn, p.LastPost = e.About, e.FirstOn, e.LastOn, e.LastPost
	if !p.Pending {
		p.FullName, p.Email, p.Location, p.Sex, p.Flags = e.FullName, e.Email, e.Location, e.Sex, e.Flags
	}
	p.Fetched = c.now()
	if err := c.saveLocked(ctx, &p); err != nil {
		return domain.Profile{}, err
	}
	return p, nil
}

// Lookup returns the profile of username, fetching it when it is not
// cached or older than the maximum age. A stale cached copy is returned
// when the service cannot be reached.
func (c *Collection) Lookup(ctx context.Context, username string) (domain.Profile, error) {
	cached, ok := c.Get(username)
	if ok && !cached.Fetched.IsZero() && c.now().Sub(cached.Fetched) < c.maxAge {
		return cached, nil
	}
	p, err := c.Refresh(ctx, username)
	if err != nil && ok && provider.IsRetryable(err) {
		return cached, nil
	}
	return p, err
}

// Who lists the users seen online recently and records their last-on
// time in any cached profile.
func (c *Collection) Who(ctx context.Context) ([]provider.WhoEntry, error) {
	entries, err := c.remote.Who(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list online users: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range entries {
		p, ok := c.profiles[key(e.Username)]
		if !ok || !e.LastOn.After(p.LastOn) {
			continue
		}
		updated := *p
		updated.LastOn = e.LastOn
		if err := c.saveLocked(ctx, &updated); err != nil {
			return nil, err
		}
	}
	return entries, nil
}

func (c *Collection) saveLocked(ctx context.Context, p *domain.Profile) error {
	if err := c.store.SaveProfile(ctx, p); err != nil {
		return fmt.Errorf("failed to save profile of %s: %w", p.Username, err)
	}
	c.profiles[key(p.Username)] = p
	c.sink.Publish(events.Event{Kind: events.ProfileChanged, ID: p.ID, Name: p.Username})
	return nil
}
