package profiles

import (
	"context"
	"fmt"
	"time"

	"github.com/lu-zhengda/termcix/internal/domain"
	"github.com/lu-zhengda/termcix/internal/pending"
	"github.com/lu-zhengda/termcix/internal/provider"
)

// Edit names the own-profile fields to change. Nil fields keep their
// value.
type Edit struct {
	FullName *string
	Email    *string
	Location *string
	Sex      *string
	Flags    *int
}

func (e Edit) empty() bool {
	return e.FullName == nil && e.Email == nil && e.Location == nil && e.Sex == nil && e.Flags == nil
}

// Update edits the signed-in user's profile locally and marks it for push.
// A later edit before the push replaces the token, so only the newest
// intent is confirmed.
func (c *Collection) Update(ctx context.Context, e Edit) (domain.Profile, error) {
	if key(c.username) == "" {
		return domain.Profile{}, ErrNoUsername
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	p := domain.Profile{Username: c.username}
	if old, ok := c.profiles[key(c.username)]; ok {
		p = *old
	}
	if e.empty() {
		return p, nil
	}
	for _, f := range []struct {
		src *string
		dst *string
	}{{e.FullName, &p.FullName}, {e.Email, &p.Email}, {e.Location, &p.Location}, {e.Sex, &p.Sex}} {
		if f.src != nil {
			*f.dst = *f.src
		}
	}
	if e.Flags != nil {
		p.Flags = *e.Flags
	}
	p.Pending = true
	p.PendingToken = pending.NewToken()
	if err := c.saveLocked(ctx, &p); err != nil {
		return domain.Profile{}, err
	}
	return p, nil
}

// Sync pushes a pending own-profile edit, then fetches the own profile if
// it has never been fetched.
func (c *Collection) Sync(ctx context.Context) error {
	if err := c.CloseSync(ctx); err != nil {
		return err
	}
	if key(c.username) == "" {
		return nil
	}
	if own, ok := c.Own(); ok && !own.Fetched.IsZero() {
		return nil
	}
	_, err := c.Refresh(ctx, c.username)
	if provider.IsGone(err) {
		c.log.WithError(err).Info("Own profile not found on the server")
		return nil
	}
	return err
}

// CloseSync pushes a pending own-profile edit. A failed push stays
// pending.
func (c *Collection) CloseSync(ctx context.Context) error {
	if _, err := pending.Run(ctx, c.mu, "profile", c.updateHandler()); err != nil {
		return fmt.Errorf("failed to push profile changes: %w", err)
	}
	return nil
}

func (c *Collection) updateHandler() pending.Funcs[domain.Profile] {
	return pending.Funcs[domain.Profile]{
		PendingFunc: func(context.Context) ([]domain.Profile, error) {
			p, ok := c.profiles[key(c.username)]
			if !ok || !p.Pending {
				return nil, nil
			}
			return []domain.Profile{*p}, nil
		},
		PushFunc: func(ctx context.Context, p domain.Profile) (provider.Receipt, error) {
			return c.remote.UpdateProfile(ctx, provider.ProfileUpdate{
				FullName: p.FullName,
				Email:    p.Email,
				Location: p.Location,
				Sex:      p.Sex,
				Flags:    p.Flags,
				Token:    p.PendingToken,
			})
		},
		ConfirmFunc: func(ctx context.Context, it domain.Profile, r provider.Receipt) error {
			p, ok := c.profiles[key(it.Username)]
			if !ok || !pending.Matches(p.PendingToken, r) {
				return nil
			}
			updated := *p
			updated.Pending = false
			updated.PendingToken = ""
			return c.saveLocked(ctx, &updated)
		},
		// The old values are not kept. Forgetting the fetch time makes the
		// next sync replace the refused edit with the server's copy.
		RollbackFunc: func(ctx context.Context, it domain.Profile, cause error) error {
			c.log.WithError(cause).Warn("Profile change refused")
			p, ok := c.profiles[key(it.Username)]
			if !ok {
				return nil
			}
			updated := *p
			updated.Pending = false
			updated.PendingToken = ""
			updated.Fetched = time.Time{}
			return c.saveLocked(ctx, &updated)
		},
	}
}
