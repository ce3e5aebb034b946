package folders

import (
	"context"
	"fmt"

	"github.com/lu-zhengda/termcix/internal/domain"
	"github.com/lu-zhengda/termcix/internal/events"
	"github.com/lu-zhengda/termcix/internal/pending"
	"github.com/lu-zhengda/termcix/internal/provider"
)

// messageItem is a snapshot of a pending message and its location.
type messageItem struct {
	msg   domain.Message
	forum string
	topic string
}

// messageHandler adapts one kind of pending message change to the
// reconciliation protocol.
type messageHandler struct {
	c       *Collection
	flagged func(*domain.Message) bool
	push    func(ctx context.Context, p provider.Provider, it messageItem) (provider.Receipt, error)
	// confirm updates the message for a successful push and reports
	// whether anything changed.
	confirm func(m *domain.Message, r provider.Receipt) bool
	// clear drops the pending flag after a terminal failure. A nil clear
	// deletes the message.
	clear func(m *domain.Message)
}

func (h messageHandler) Pending(_ context.Context) ([]messageItem, error) {
	c := h.c
	var out []messageItem
	for _, fid := range c.subtreeLocked(domain.RootID) {
		f := c.folders[fid]
		t := c.threads[fid]
		if t == nil || f.IsTopLevel() {
			continue
		}
		if parent := c.folders[f.ParentID]; parent != nil && parent.JoinPending {
			continue
		}
		forum, topic := c.locationLocked(fid)
		for _, m := range t.Messages() {
			if h.flagged(m) {
				out = append(out, messageItem{msg: *m, forum: forum, topic: topic})
			}
		}
	}
	return out, nil
}

func (h messageHandler) Push(ctx context.Context, it messageItem) (provider.Receipt, error) {
	return h.push(ctx, h.c.remote, it)
}

func (h messageHandler) Confirm(ctx context.Context, it messageItem, r provider.Receipt) error {
	live, topicID := h.c.messageLocked(it.msg.ID)
	if live == nil {
		return nil
	}
	updated := *live
	if !h.confirm(&updated, r) {
		return nil
	}
	if err := h.c.store.SaveMessage(ctx, &updated); err != nil {
		return fmt.Errorf("failed to confirm message %d: %w", it.msg.ID, err)
	}
	return h.c.replaceLocked(ctx, topicID, live, updated)
}

func (h messageHandler) Rollback(ctx context.Context, it messageItem, cause error) error {
	live, topicID := h.c.messageLocked(it.msg.ID)
	if live == nil {
		return nil
	}
	if h.clear == nil || provider.IsGone(cause) {
		return h.c.deleteMessageLocked(ctx, it.msg.ID)
	}
	updated := *live
	h.clear(&updated)
	if err := h.c.store.SaveMessage(ctx, &updated); err != nil {
		return fmt.Errorf("failed to roll back message %d: %w", it.msg.ID, err)
	}
	return h.c.replaceLocked(ctx, topicID, live, updated)
}

func (c *Collection) postHandler() messageHandler {
	return messageHandler{
		c:       c,
		flagged: func(m *domain.Message) bool { return m.PostPending },
		push: func(ctx context.Context, p provider.Provider, it messageItem) (provider.Receipt, error) {
			return p.PostMessage(ctx, provider.Post{
				Forum:   it.forum,
				Topic:   it.topic,
				Body:    it.msg.Body,
				ReplyTo: it.msg.CommentID,
				Token:   it.msg.PendingToken,
			})
		},
		// The server created the message whatever happened locally since,
		// so the post is always confirmed.
		confirm: func(m *domain.Message, r provider.Receipt) bool {
			m.PostPending = false
			if r.RemoteID != 0 {
				m.RemoteID = r.RemoteID
				if m.RootID == 0 {
					m.RootID = r.RemoteID
				}
			}
			return true
		},
	}
}

func (c *Collection) readHandler() messageHandler {
	return messageHandler{
		c:       c,
		flagged: func(m *domain.Message) bool { return m.ReadPending && !m.IsDraft() },
		push: func(ctx context.Context, p provider.Provider, it messageItem) (provider.Receipt, error) {
			receipts, err := p.MarkRead(ctx, []provider.ReadChange{{
				Forum:    it.forum,
				Topic:    it.topic,
				RemoteID: it.msg.RemoteID,
				Read:     !it.msg.Unread,
				Token:    it.msg.PendingToken,
			}})
			if err != nil {
				return provider.Receipt{}, err
			}
			if len(receipts) == 0 {
				return provider.Receipt{}, fmt.Errorf("no receipt for message %d: %w", it.msg.RemoteID, provider.ErrServer)
			}
			return receipts[0], nil
		},
		confirm: func(m *domain.Message, r provider.Receipt) bool {
			if !pending.Matches(m.PendingToken, r) {
				return false
			}
			m.ReadPending = false
			return true
		},
		clear: func(m *domain.Message) { m.ReadPending = false },
	}
}

func (c *Collection) starHandler() messageHandler {
	return messageHandler{
		c:       c,
		flagged: func(m *domain.Message) bool { return m.StarPending && !m.IsDraft() },
		push: func(ctx context.Context, p provider.Provider, it messageItem) (provider.Receipt, error) {
			return p.SetStar(ctx, it.forum, it.topic, it.msg.RemoteID, it.msg.Starred, it.msg.PendingToken)
		},
		confirm: func(m *domain.Message, r provider.Receipt) bool {
			if !pending.Matches(m.PendingToken, r) {
				return false
			}
			m.StarPending = false
			return true
		},
		clear: func(m *domain.Message) { m.StarPending = false },
	}
}

func (c *Collection) withdrawHandler() messageHandler {
	return messageHandler{
		c:       c,
		flagged: func(m *domain.Message) bool { return m.WithdrawPending && !m.IsDraft() },
		push: func(ctx context.Context, p provider.Provider, it messageItem) (provider.Receipt, error) {
			return p.Withdraw(ctx, it.forum, it.topic, it.msg.RemoteID, it.msg.PendingToken)
		},
		confirm: func(m *domain.Message, r provider.Receipt) bool {
			if !pending.Matches(m.PendingToken, r) {
				return false
			}
			m.WithdrawPending = false
			return true
		},
		clear: func(m *domain.Message) {
			m.WithdrawPending = false
			m.Withdrawn = false
		},
	}
}

// folderItem is a snapshot of a pending folder and its location.
type folderItem struct {
	folder domain.Folder
	forum  string
	topic  string
}

// folderHandler adapts one kind of pending folder change. Folder changes
// are idempotent on the server so they carry no token.
type folderHandler struct {
	c        *Collection
	flagged  func(c *Collection, f *domain.Folder) bool
	push     func(ctx context.Context, p provider.Provider, it folderItem) error
	confirm  func(ctx context.Context, c *Collection, f *domain.Folder) error
	rollback func(ctx context.Context, c *Collection, f *domain.Folder, cause error) error
}

func (h folderHandler) Pending(_ context.Context) ([]folderItem, error) {
	var out []folderItem
	for _, fid := range h.c.subtreeLocked(domain.RootID) {
		f := h.c.folders[fid]
		if h.flagged(h.c, f) {
			forum, topic := h.c.locationLocked(fid)
			out = append(out, folderItem{folder: *f, forum: forum, topic: topic})
		}
	}
	return out, nil
}

func (h folderHandler) Push(ctx context.Context, it folderItem) (provider.Receipt, error) {
	return provider.Receipt{}, h.push(ctx, h.c.remote, it)
}

func (h folderHandler) Confirm(ctx context.Context, it folderItem, _ provider.Receipt) error {
	f, ok := h.c.folders[it.folder.ID]
	if !ok {
		return nil
	}
	return h.confirm(ctx, h.c, f)
}

func (h folderHandler) Rollback(ctx context.Context, it folderItem, cause error) error {
	f, ok := h.c.folders[it.folder.ID]
	if !ok {
		return nil
	}
	if provider.IsGone(cause) && !f.JoinPending {
		return h.c.removeLocked(ctx, f.ID)
	}
	return h.rollback(ctx, h.c, f, cause)
}

func (c *Collection) saveFolderLocked(ctx context.Context, f *domain.Folder) error {
	if err := c.store.SaveFolder(ctx, f); err != nil {
		return fmt.Errorf("failed to save folder %s: %w", f.Name, err)
	}
	c.sink.Publish(events.Event{Kind: events.FolderChanged, ID: f.ID, Name: c.pathLocked(f)})
	return nil
}

func (c *Collection) joinHandler() folderHandler {
	return folderHandler{
		c: c,
		flagged: func(_ *Collection, f *domain.Folder) bool {
			return f.JoinPending && f.IsTopLevel()
		},
		push: func(ctx context.Context, p provider.Provider, it folderItem) error {
			return p.JoinForum(ctx, it.forum)
		},
		confirm: func(ctx context.Context, c *Collection, f *domain.Folder) error {
			f.JoinPending = false
			f.RefreshRequired = true
			return c.saveFolderLocked(ctx, f)
		},
		// A provisional folder goes away. A rejoined forum that still has
		// topics returns to the resigned state.
		rollback: func(ctx context.Context, c *Collection, f *domain.Folder, _ error) error {
			if len(c.children[f.ID]) == 0 {
				return c.removeLocked(ctx, f.ID)
			}
			f.JoinPending = false
			f.Set(domain.FolderResigned, true)
			f.Set(domain.FolderJoinFailed, true)
			return c.saveFolderLocked(ctx, f)
		},
	}
}

func (c *Collection) markReadRangeHandler() folderHandler {
	return folderHandler{
		c: c,
		flagged: func(c *Collection, f *domain.Folder) bool {
			if !f.MarkReadRangePending || f.IsTopLevel() {
				return false
			}
			parent := c.folders[f.ParentID]
			return parent == nil || !parent.JoinPending
		},
		push: func(ctx context.Context, p provider.Provider, it folderItem) error {
			return p.MarkReadRange(ctx, it.forum, it.topic)
		},
		confirm: func(ctx context.Context, c *Collection, f *domain.Folder) error {
			f.MarkReadRangePending = false
			return c.saveFolderLocked(ctx, f)
		},
		rollback: func(ctx context.Context, c *Collection, f *domain.Folder, _ error) error {
			f.MarkReadRangePending = false
			return c.saveFolderLocked(ctx, f)
		},
	}
}

func (c *Collection) resignHandler() folderHandler {
	return folderHandler{
		c: c,
		flagged: func(_ *Collection, f *domain.Folder) bool {
			return f.ResignPending
		},
		push: func(ctx context.Context, p provider.Provider, it folderItem) error {
			return p.ResignForum(ctx, it.forum, it.topic)
		},
		confirm: func(ctx context.Context, c *Collection, f *domain.Folder) error {
			return c.removeLocked(ctx, f.ID)
		},
		rollback: func(ctx context.Context, c *Collection, f *domain.Folder, _ error) error {
			f.ResignPending = false
			f.Set(domain.FolderResigned, false)
			return c.saveFolderLocked(ctx, f)
		},
	}
}
