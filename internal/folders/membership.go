package folders

import (
	"context"
	"fmt"

	"github.com/lu-zhengda/termcix/internal/domain"
	"github.com/lu-zhengda/termcix/internal/events"
)

// Join adds a provisional forum that is confirmed on the next sync. Joining
// a resigned forum reinstates it; joining a joined forum does nothing.
func (c *Collection) Join(ctx context.Context, forum string) (domain.Folder, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if f := c.childByNameLocked(domain.RootID, forum); f != nil {
		if !f.Has(domain.FolderResigned) {
			return *f, nil
		}
		f.Set(domain.FolderResigned, false)
		f.Set(domain.FolderJoinFailed, false)
		f.ResignPending = false
		f.JoinPending = true
		if err := c.store.SaveFolder(ctx, f); err != nil {
			return domain.Folder{}, fmt.Errorf("failed to rejoin %s: %w", forum, err)
		}
		c.sink.Publish(events.Event{Kind: events.FolderChanged, ID: f.ID, Name: f.Name})
		return *f, nil
	}

	f, err := c.addLocked(ctx, domain.Folder{Name: forum, JoinPending: true, RefreshRequired: true}, domain.RootID)
	if err != nil {
		return domain.Folder{}, fmt.Errorf("failed to join %s: %w", forum, err)
	}
	return *f, nil
}

// Resign leaves a forum or topic. The folder is marked resigned at once and
// removed when the server confirms.
func (c *Collection) Resign(ctx context.Context, id int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	f, ok := c.folders[id]
	if !ok {
		return fmt.Errorf("failed to resign folder %d: %w", id, domain.ErrNotFound)
	}
	if f.Has(domain.FolderCannotResign) {
		return fmt.Errorf("failed to resign %s: %w", c.pathLocked(f), domain.ErrCannotResign)
	}
	if f.Has(domain.FolderResigned) {
		return nil
	}
	if f.JoinPending {
		// The server never heard of it.
		return c.removeLocked(ctx, id)
	}

	f.Set(domain.FolderResigned, true)
	f.ResignPending = true
	if err := c.store.SaveFolder(ctx, f); err != nil {
		return fmt.Errorf("failed to resign %s: %w", c.pathLocked(f), err)
	}
	c.sink.Publish(events.Event{Kind: events.FolderChanged, ID: f.ID, Name: c.pathLocked(f)})
	return nil
}

// MarkAllRead marks every message below a folder read and asks the server
// to do the same for each topic in one range request.
func (c *Collection) MarkAllRead(ctx context.Context, id int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.folders[id]; !ok {
		return fmt.Errorf("failed to mark folder %d read: %w", id, domain.ErrNotFound)
	}

	for _, fid := range c.subtreeLocked(id) {
		f := c.folders[fid]
		t := c.threads[fid]
		if t == nil || f.IsTopLevel() {
			continue
		}
		var touched bool
		for _, m := range t.Messages() {
			if !m.Unread || m.ReadLocked {
				continue
			}
			updated := *m
			updated.Unread = false
			if err := c.store.SaveMessage(ctx, &updated); err != nil {
				return fmt.Errorf("failed to mark message %d read: %w", m.ID, err)
			}
			if err := c.replaceLocked(ctx, fid, m, updated); err != nil {
				return err
			}
			touched = true
		}
		if touched && !f.Has(domain.FolderResigned) {
			f.MarkReadRangePending = true
			if err := c.store.SaveFolder(ctx, f); err != nil {
				return fmt.Errorf("failed to save folder %s: %w", f.Name, err)
			}
		}
	}
	return nil
}
