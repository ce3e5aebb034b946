package folders

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/bradenaw/juniper/xslices"

	"github.com/lu-zhengda/termcix/internal/domain"
	"github.com/lu-zhengda/termcix/internal/events"
	"github.com/lu-zhengda/termcix/internal/pending"
	"github.com/lu-zhengda/termcix/internal/thread"
)

// Line is one row of a threaded topic view.
type Line struct {
	Message domain.Message
	Level   int
}

func deref(m *domain.Message) domain.Message { return *m }

// Message returns a copy of a message by local ID.
func (c *Collection) Message(id int64) (domain.Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if m, _ := c.messageLocked(id); m != nil {
		return *m, true
	}
	return domain.Message{}, false
}

// Messages returns the messages of a topic in ID order.
func (c *Collection) Messages(topicID int64) []domain.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t := c.threads[topicID]; t != nil {
		return xslices.Map(t.Messages(), deref)
	}
	return nil
}

// Thread returns a topic in threaded order with indentation levels.
func (c *Collection) Thread(topicID int64) []Line {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.threads[topicID]
	if t == nil {
		return nil
	}
	out := make([]Line, 0, t.Len())
	for m, level := range t.Threaded() {
		out = append(out, Line{Message: *m, Level: level})
	}
	return out
}

// Roots returns the thread roots of a topic, pseudo-roots included.
func (c *Collection) Roots(topicID int64) []domain.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t := c.threads[topicID]; t != nil {
		return xslices.Map(t.Roots(), deref)
	}
	return nil
}

// ChildrenOf returns the direct replies to a message.
func (c *Collection) ChildrenOf(id int64) []domain.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t := c.threads[c.topicOf[id]]; t != nil {
		return xslices.Map(t.ChildrenOf(id), deref)
	}
	return nil
}

// UnreadChildren counts the unread replies below a message.
func (c *Collection) UnreadChildren(id int64) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t := c.threads[c.topicOf[id]]; t != nil {
		return t.UnreadChildren(id)
	}
	return 0
}

// Search returns messages whose author or body contains query, ignoring
// case, in ID order.
func (c *Collection) Search(query string) []domain.Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil
	}
	var out []domain.Message
	for _, t := range c.threads {
		for _, m := range t.Messages() {
			if strings.Contains(strings.ToLower(m.Author), query) || strings.Contains(strings.ToLower(m.Body), query) {
				out = append(out, *m)
			}
		}
	}
	slices.SortFunc(out, func(a, b domain.Message) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

func (c *Collection) MarkRead(ctx context.Context, id int64) error {
	return c.mutate(ctx, id, setUnread(false))
}

func (c *Collection) MarkUnread(ctx context.Context, id int64) error {
	return c.mutate(ctx, id, setUnread(true))
}

// MarkThreadRead marks a message and every reply below it read, skipping
// read-locked messages.
func (c *Collection) MarkThreadRead(ctx context.Context, id int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	m, topicID := c.messageLocked(id)
	if m == nil {
		return fmt.Errorf("failed to mark thread %d read: %w", id, domain.ErrNotFound)
	}
	var ids []int64
	for sub := range c.threads[topicID].Subtree(id) {
		if sub.Unread && !sub.ReadLocked {
			ids = append(ids, sub.ID)
		}
	}
	for _, mid := range ids {
		if err := c.mutateLocked(ctx, mid, setUnread(false)); err != nil {
			return err
		}
	}
	return nil
}

// SetStar stars or unstars a message. The change is pushed on the next
// sync.
func (c *Collection) SetStar(ctx context.Context, id int64, starred bool) error {
	return c.mutate(ctx, id, func(m *domain.Message) bool {
		if m.Starred == starred {
			return false
		}
		m.Starred = starred
		if !m.IsDraft() {
			m.StarPending = true
			m.PendingToken = pending.NewToken()
		}
		return true
	})
}

// SetPriority changes the local priority classification.
func (c *Collection) SetPriority(ctx context.Context, id int64, priority bool) error {
	return c.mutate(ctx, id, func(m *domain.Message) bool {
		if m.Priority == priority {
			return false
		}
		m.Priority = priority
		return true
	})
}

// SetIgnored changes the local ignore flag. Ignored messages do not count
// as unread.
func (c *Collection) SetIgnored(ctx context.Context, id int64, ignored bool) error {
	return c.mutate(ctx, id, func(m *domain.Message) bool {
		if m.Ignored == ignored {
			return false
		}
		m.Ignored = ignored
		return true
	})
}

// SetReadLock keeps a message unread through bulk read operations.
// Locking a read message marks it unread.
func (c *Collection) SetReadLock(ctx context.Context, id int64, locked bool) error {
	return c.mutate(ctx, id, func(m *domain.Message) bool {
		if m.ReadLocked == locked {
			return false
		}
		m.ReadLocked = locked
		if locked {
			setUnread(true)(m)
		}
		return true
	})
}

// Withdraw clears a message's body and marks it withdrawn. The message
// stays in its thread so replies keep their parent. A draft that never
// reached the server is deleted instead.
func (c *Collection) Withdraw(ctx context.Context, id int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	m, _ := c.messageLocked(id)
	if m == nil {
		return fmt.Errorf("failed to withdraw message %d: %w", id, domain.ErrNotFound)
	}
	if m.IsDraft() && m.PostPending {
		return c.deleteMessageLocked(ctx, id)
	}
	return c.mutateLocked(ctx, id, func(m *domain.Message) bool {
		if m.Withdrawn {
			return false
		}
		m.Body = ""
		m.Withdrawn = true
		m.WithdrawPending = true
		m.PendingToken = pending.NewToken()
		return true
	})
}

// Post adds a locally written message to a topic. replyTo is the local ID
// of the parent message, or 0 to start a thread. The message is sent on
// the next sync.
func (c *Collection) Post(ctx context.Context, topicID, replyTo int64, body string) (domain.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	f, ok := c.folders[topicID]
	if !ok || f.IsTopLevel() {
		return domain.Message{}, fmt.Errorf("failed to post to folder %d: %w", topicID, domain.ErrNotFound)
	}
	if f.Has(domain.FolderReadOnly) || f.Has(domain.FolderResigned) {
		return domain.Message{}, fmt.Errorf("failed to post to %s: %w", c.pathLocked(f), domain.ErrReadOnly)
	}

	m := domain.Message{
		TopicID:      topicID,
		Author:       c.username,
		Body:         body,
		Date:         c.now(),
		PostPending:  true,
		PendingToken: pending.NewToken(),
	}
	if replyTo != 0 {
		parent, parentTopic := c.messageLocked(replyTo)
		if parent == nil || parentTopic != topicID {
			return domain.Message{}, fmt.Errorf("failed to reply to message %d: %w", replyTo, domain.ErrNotFound)
		}
		if parent.IsDraft() {
			return domain.Message{}, fmt.Errorf("failed to reply to message %d: %w", replyTo, domain.ErrNotPersisted)
		}
		m.CommentID = parent.RemoteID
		m.RootID = parent.RootID
		if m.RootID == 0 {
			m.RootID = parent.RemoteID
		}
	} else if f.Has(domain.FolderOwnerCommentsOnly) {
		return domain.Message{}, fmt.Errorf("failed to start a thread in %s: %w", c.pathLocked(f), domain.ErrReadOnly)
	}

	if err := c.store.SaveMessage(ctx, &m); err != nil {
		return domain.Message{}, fmt.Errorf("failed to save post: %w", err)
	}
	stored := m
	if _, err := c.threadLocked(topicID).Add(&stored); err != nil {
		return domain.Message{}, err
	}
	c.topicOf[m.ID] = topicID
	c.sink.Publish(events.Event{Kind: events.MessageAdded, ID: m.ID, Name: c.pathLocked(f)})
	return m, nil
}

func setUnread(unread bool) func(*domain.Message) bool {
	return func(m *domain.Message) bool {
		if m.Unread == unread {
			return false
		}
		m.Unread = unread
		if !m.IsDraft() {
			m.ReadPending = true
			m.PendingToken = pending.NewToken()
		}
		return true
	}
}

func (c *Collection) mutate(ctx context.Context, id int64, fn func(*domain.Message) bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mutateLocked(ctx, id, fn)
}

// mutateLocked applies fn to a copy of the message, persists the copy and
// only then updates the cached message and the unread totals of the
// folder chain.
func (c *Collection) mutateLocked(ctx context.Context, id int64, fn func(*domain.Message) bool) error {
	m, topicID := c.messageLocked(id)
	if m == nil {
		return fmt.Errorf("failed to update message %d: %w", id, domain.ErrNotFound)
	}
	updated := *m
	if !fn(&updated) {
		return nil
	}
	if err := c.store.SaveMessage(ctx, &updated); err != nil {
		return fmt.Errorf("failed to update message %d: %w", id, err)
	}
	return c.replaceLocked(ctx, topicID, m, updated)
}

// replaceLocked stores an already persisted message state in the cache.
func (c *Collection) replaceLocked(ctx context.Context, topicID int64, m *domain.Message, updated domain.Message) error {
	beforeU, beforeP := contribution(m)
	if _, err := c.threads[topicID].Add(&updated); err != nil {
		return err
	}
	afterU, afterP := contribution(m)
	c.sink.Publish(events.Event{Kind: events.MessageChanged, ID: m.ID})
	return c.adjustChainLocked(ctx, topicID, afterU-beforeU, afterP-beforeP)
}

func (c *Collection) deleteMessageLocked(ctx context.Context, id int64) error {
	m, topicID := c.messageLocked(id)
	if m == nil {
		return nil
	}
	if err := c.store.DeleteMessage(ctx, id); err != nil {
		return fmt.Errorf("failed to delete message %d: %w", id, err)
	}
	u, p := contribution(m)
	c.threads[topicID].Delete(id)
	delete(c.topicOf, id)
	c.sink.Publish(events.Event{Kind: events.MessageDeleted, ID: id})
	return c.adjustChainLocked(ctx, topicID, -u, -p)
}

func (c *Collection) messageLocked(id int64) (*domain.Message, int64) {
	topicID, ok := c.topicOf[id]
	if !ok {
		return nil, 0
	}
	return c.threads[topicID].Get(id), topicID
}

func (c *Collection) threadLocked(topicID int64) *thread.Collection {
	t := c.threads[topicID]
	if t == nil {
		t = thread.New()
		c.threads[topicID] = t
	}
	return t
}
