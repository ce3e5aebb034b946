package directory

import (
	"context"
	"fmt"

	"github.com/lu-zhengda/termcix/internal/domain"
	"github.com/lu-zhengda/termcix/internal/pending"
	"github.com/lu-zhengda/termcix/internal/provider"
)

func (c *Collection) AddModerators(ctx context.Context, forum string, users ...string) error {
	return c.editMembers(ctx, forum, func(f *domain.DirForum, u string) {
		f.Moderators = applyDelta(f.Moderators, []string{u}, nil)
		f.RemovedMods = without(f.RemovedMods, u)
		f.AddedMods = applyDelta(f.AddedMods, []string{u}, nil)
	}, users)
}

func (c *Collection) RemoveModerators(ctx context.Context, forum string, users ...string) error {
	return c.editMembers(ctx, forum, func(f *domain.DirForum, u string) {
		f.Moderators = without(f.Moderators, u)
		f.AddedMods = without(f.AddedMods, u)
		f.RemovedMods = applyDelta(f.RemovedMods, []string{u}, nil)
	}, users)
}

func (c *Collection) AddParticipants(ctx context.Context, forum string, users ...string) error {
	return c.editMembers(ctx, forum, func(f *domain.DirForum, u string) {
		f.Participants = applyDelta(f.Participants, []string{u}, nil)
		f.RemovedParts = without(f.RemovedParts, u)
		f.AddedParts = applyDelta(f.AddedParts, []string{u}, nil)
	}, users)
}

func (c *Collection) RemoveParticipants(ctx context.Context, forum string, users ...string) error {
	return c.editMembers(ctx, forum, func(f *domain.DirForum, u string) {
		f.Participants = without(f.Participants, u)
		f.AddedParts = without(f.AddedParts, u)
		f.RemovedParts = applyDelta(f.RemovedParts, []string{u}, nil)
	}, users)
}

// editMembers applies a member edit locally and marks the forum for push.
func (c *Collection) editMembers(ctx context.Context, forum string, fn func(*domain.DirForum, string), users []string) error {
	if len(users) == 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	f, ok := c.forums[key(forum)]
	if !ok {
		return fmt.Errorf("failed to edit members of %s: %w", forum, domain.ErrNotFound)
	}
	updated := cloneForum(f)
	for _, u := range users {
		fn(&updated, u)
	}
	updated.DetailsPending = true
	updated.PendingToken = pending.NewToken()
	return c.saveLocked(ctx, &updated)
}

// Sync pushes pending member edits.
func (c *Collection) Sync(ctx context.Context) error {
	if _, err := pending.Run(ctx, c.mu, "members", c.membersHandler()); err != nil {
		return fmt.Errorf("failed to push member changes: %w", err)
	}
	return nil
}

func (c *Collection) membersHandler() pending.Funcs[domain.DirForum] {
	return pending.Funcs[domain.DirForum]{
		PendingFunc: func(context.Context) ([]domain.DirForum, error) {
			return c.collectLocked(func(f *domain.DirForum) bool { return f.DetailsPending }), nil
		},
		PushFunc: func(ctx context.Context, f domain.DirForum) (provider.Receipt, error) {
			return c.remote.UpdateForumMembers(ctx, f.Name, provider.MemberChange{
				AddedMods:    f.AddedMods,
				RemovedMods:  f.RemovedMods,
				AddedParts:   f.AddedParts,
				RemovedParts: f.RemovedParts,
				Token:        f.PendingToken,
			})
		},
		// A newer edit keeps its deltas. The pushed part is applied again
		// on the next pass, which the server treats as a no-op.
		ConfirmFunc: func(ctx context.Context, it domain.DirForum, r provider.Receipt) error {
			f, ok := c.forums[key(it.Name)]
			if !ok || !pending.Matches(f.PendingToken, r) {
				return nil
			}
			updated := cloneForum(f)
			clearDeltas(&updated)
			return c.saveLocked(ctx, &updated)
		},
		RollbackFunc: func(ctx context.Context, it domain.DirForum, cause error) error {
			c.log.WithError(cause).WithField("forum", it.Name).Warn("Member change refused")
			f, ok := c.forums[key(it.Name)]
			if !ok {
				return nil
			}
			updated := cloneForum(f)
			updated.Moderators = applyDelta(updated.Moderators, updated.RemovedMods, updated.AddedMods)
			updated.Participants = applyDelta(updated.Participants, updated.RemovedParts, updated.AddedParts)
			clearDeltas(&updated)
			return c.saveLocked(ctx, &updated)
		},
	}
}

func clearDeltas(f *domain.DirForum) {
	f.AddedMods, f.RemovedMods, f.AddedParts, f.RemovedParts = nil, nil, nil, nil
	f.DetailsPending = false
	f.PendingToken = ""
}
