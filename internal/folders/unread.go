package folders

import (
	"context"
	"fmt"

	"github.com/lu-zhengda/termcix/internal/domain"
	"github.com/lu-zhengda/termcix/internal/events"
)

// rollupLocked recomputes every folder's unread totals bottom-up: a
// folder's counts are its own messages plus the sum over its children.
// Folders whose counts changed are persisted and announced.
func (c *Collection) rollupLocked(ctx context.Context) ([]int64, error) {
	var changed []*domain.Folder

	var visit func(id int64) (int, int)
	visit = func(id int64) (int, int) {
		var unread, priority int
		if t := c.threads[id]; t != nil {
			unread, priority = t.Unread()
		}
		for _, child := range c.children[id] {
			u, p := visit(child)
			unread += u
			priority += p
		}
		if f, ok := c.folders[id]; ok && (f.Unread != unread || f.UnreadPriority != priority) {
			f.Unread = unread
			f.UnreadPriority = priority
			changed = append(changed, f)
		}
		return unread, priority
	}
	visit(domain.RootID)

	ids := make([]int64, 0, len(changed))
	for _, f := range changed {
		if err := c.store.SaveFolder(ctx, f); err != nil {
			return nil, fmt.Errorf("failed to save unread counts: %w", err)
		}
		ids = append(ids, f.ID)
		c.sink.Publish(events.Event{Kind: events.FolderChanged, ID: f.ID, Name: c.pathLocked(f)})
	}
	return ids, nil
}

// adjustChainLocked applies an unread delta to a folder and each of its
// ancestors.
func (c *Collection) adjustChainLocked(ctx context.Context, id int64, unread, priority int) error {
	if unread == 0 && priority == 0 {
		return nil
	}
	for id != domain.RootID {
		f, ok := c.folders[id]
		if !ok {
			return nil
		}
		f.Unread += unread
		f.UnreadPriority += priority
		if err := c.store.SaveFolder(ctx, f); err != nil {
			return fmt.Errorf("failed to save unread counts: %w", err)
		}
		c.sink.Publish(events.Event{Kind: events.FolderChanged, ID: f.ID, Name: c.pathLocked(f)})
		id = f.ParentID
	}
	return nil
}

func contribution(m *domain.Message) (unread, priority int) {
	if m.CountsUnread() {
		unread = 1
	}
	if m.CountsPriority() {
		priority = 1
	}
	return unread, priority
}
