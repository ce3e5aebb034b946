// Package mail mirrors private conversations. Unlike forums the
// collection is flat: conversations ordered by date, each owning its
// messages in date order.
package mail

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/bradenaw/juniper/xslices"
	"github.com/sirupsen/logrus"

	"github.com/lu-zhengda/termcix/internal/domain"
	"github.com/lu-zhengda/termcix/internal/events"
	"github.com/lu-zhengda/termcix/internal/pending"
	"github.com/lu-zhengda/termcix/internal/provider"
	"github.com/lu-zhengda/termcix/internal/store"
)

type Options struct {
	Sink     events.Sink
	Username string
	Now      func() time.Time
}

type Collection struct {
	store    store.Store
	remote   provider.Provider
	mu       sync.Locker
	sink     events.Sink
	username string
	now      func() time.Time
	log      *logrus.Entry

	convs    map[int64]*domain.Conversation
	messages map[int64][]*domain.MailMessage
	byRemote map[int]int64
}

func New(st store.Store, remote provider.Provider, mu sync.Locker, opts Options) *Collection {
	c := &Collection{
		store:    st,
		remote:   remote,
		mu:       mu,
		sink:     opts.Sink,
		username: opts.Username,
		now:      opts.Now,
		log:      logrus.WithField("pkg", "mail"),
	}
	if c.sink == nil {
		c.sink = events.Discard{}
	}
	if c.now == nil {
		c.now = time.Now
	}
	c.reset()
	return c
}

func (c *Collection) reset() {
	c.convs = make(map[int64]*domain.Conversation)
	c.messages = make(map[int64][]*domain.MailMessage)
	c.byRemote = make(map[int]int64)
}

// Load reads every conversation and its messages from the store.
func (c *Collection) Load(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	convs, err := c.store.ListConversations(ctx)
	if err != nil {
		return fmt.Errorf("failed to load conversations: %w", err)
	}
	c.reset()
	for i := range convs {
		conv := convs[i]
		msgs, err := c.store.ListMail(ctx, conv.ID)
		if err != nil {
			return fmt.Errorf("failed to load mail of conversation %d: %w", conv.ID, err)
		}
		c.insertLocked(&conv, xslices.Map(msgs, func(m domain.MailMessage) *domain.MailMessage { return &m }))
	}
	c.log.WithField("conversations", len(c.convs)).Debug("Loaded mail")
	return nil
}

func (c *Collection) insertLocked(conv *domain.Conversation, msgs []*domain.MailMessage) {
	c.convs[conv.ID] = conv
	if conv.RemoteID != 0 {
		c.byRemote[conv.RemoteID] = conv.ID
	}
	c.messages[conv.ID] = msgs
	sortByDate(msgs)
}

func sortByDate(msgs []*domain.MailMessage) {
	slices.SortStableFunc(msgs, func(a, b *domain.MailMessage) int {
		if n := a.Date.Compare(b.Date); n != 0 {
			return n
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

// All returns the visible conversations, newest first. Conversations
// waiting to be deleted are hidden.
func (c *Collection) All() []domain.Conversation {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.Conversation, 0, len(c.convs))
	for _, conv := range c.convs {
		if !conv.DeletePending {
			out = append(out, *conv)
		}
	}
	slices.SortFunc(out, func(a, b domain.Conversation) int {
		if n := b.Date.Compare(a.Date); n != 0 {
			return n
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return out
}

func (c *Collection) Conversation(id int64) (domain.Conversation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if conv, ok := c.convs[id]; ok {
		return *conv, true
	}
	return domain.Conversation{}, false
}

// Messages returns the messages of a conversation in date order.
func (c *Collection) Messages(id int64) []domain.MailMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return xslices.Map(c.messages[id], func(m *domain.MailMessage) domain.MailMessage { return *m })
}

func (c *Collection) TotalUnread() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, conv := range c.convs {
		if conv.Unread && !conv.DeletePending {
			n++
		}
	}
	return n
}

func (c *Collection) TotalUnreadPriority() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, conv := range c.convs {
		if conv.Unread && conv.Priority && !conv.DeletePending {
			n++
		}
	}
	return n
}

// Add creates a conversation together with its first message. Either both
// are stored or neither is. A first message without a server number is
// sent on the next sync.
func (c *Collection) Add(ctx context.Context, conv *domain.Conversation, first *domain.MailMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if conv.ID != 0 {
		if _, ok := c.convs[conv.ID]; ok {
			return fmt.Errorf("failed to add conversation %d: %w", conv.ID, domain.ErrDuplicateEntity)
		}
	}
	if conv.RemoteID != 0 {
		if _, ok := c.byRemote[conv.RemoteID]; ok {
			return fmt.Errorf("failed to add conversation %d: %w", conv.RemoteID, domain.ErrDuplicateEntity)
		}
	}

	newConv, newFirst := *conv, *first
	if newFirst.Author == "" {
		newFirst.Author = c.username
	}
	if newFirst.Date.IsZero() {
		newFirst.Date = c.now()
	}
	if newFirst.RemoteID == 0 {
		newFirst.SendPending = true
	}
	if newConv.Date.IsZero() {
		newConv.Date = newFirst.Date
	}

	err := c.store.WithTx(ctx, func(tx store.Store) error {
		if err := tx.SaveConversation(ctx, &newConv); err != nil {
			return err
		}
		newFirst.ConversationID = newConv.ID
		return tx.SaveMail(ctx, &newFirst)
	})
	if err != nil {
		return fmt.Errorf("failed to add conversation: %w", err)
	}

	c.insertLocked(&newConv, []*domain.MailMessage{&newFirst})
	*conv, *first = newConv, newFirst
	c.sink.Publish(events.Event{Kind: events.ConversationAdded, ID: newConv.ID, Name: newConv.Subject})
	return nil
}

// Compose starts a new conversation with recipient.
func (c *Collection) Compose(ctx context.Context, recipient, subject, body string) (domain.Conversation, error) {
	conv := domain.Conversation{Author: recipient, Subject: subject}
	first := domain.MailMessage{Body: body}
	if err := c.Add(ctx, &conv, &first); err != nil {
		return domain.Conversation{}, err
	}
	return conv, nil
}

// Reply appends a locally written message to a conversation.
func (c *Collection) Reply(ctx context.Context, id int64, body string) (domain.MailMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	conv, ok := c.convs[id]
	if !ok || conv.DeletePending {
		return domain.MailMessage{}, fmt.Errorf("failed to reply to conversation %d: %w", id, domain.ErrNotFound)
	}

	msg := &domain.MailMessage{
		ConversationID: id,
		Author:         c.username,
		Body:           body,
		Date:           c.now(),
		SendPending:    true,
	}
	updated := *conv
	updated.Date = msg.Date
	updated.LastError = false
	err := c.store.WithTx(ctx, func(tx store.Store) error {
		if err := tx.SaveMail(ctx, msg); err != nil {
			return err
		}
		return tx.SaveConversation(ctx, &updated)
	})
	if err != nil {
		return domain.MailMessage{}, fmt.Errorf("failed to save reply: %w", err)
	}

	*conv = updated
	c.messages[id] = append(c.messages[id], msg)
	sortByDate(c.messages[id])
	c.sink.Publish(events.Event{Kind: events.ConversationChanged, ID: id})
	return *msg, nil
}

func (c *Collection) MarkRead(ctx context.Context, id int64) error {
	return c.setUnread(ctx, id, false)
}

func (c *Collection) MarkUnread(ctx context.Context, id int64) error {
	return c.setUnread(ctx, id, true)
}

func (c *Collection) setUnread(ctx context.Context, id int64, unread bool) error {
	return c.mutate(ctx, id, func(conv *domain.Conversation) bool {
		if conv.Unread == unread {
			return false
		}
		conv.Unread = unread
		if conv.RemoteID != 0 {
			conv.ReadPending = true
			conv.PendingToken = pending.NewToken()
		}
		return true
	})
}

// SetPriority changes the local priority classification.
func (c *Collection) SetPriority(ctx context.Context, id int64, priority bool) error {
	return c.mutate(ctx, id, func(conv *domain.Conversation) bool {
		if conv.Priority == priority {
			return false
		}
		conv.Priority = priority
		return true
	})
}

// Delete hides a conversation and deletes it on the server on the next
// sync. A conversation the server never saw is deleted at once.
func (c *Collection) Delete(ctx context.Context, id int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	conv, ok := c.convs[id]
	if !ok {
		return fmt.Errorf("failed to delete conversation %d: %w", id, domain.ErrNotFound)
	}
	if conv.RemoteID == 0 {
		return c.deleteLocked(ctx, id)
	}
	updated := *conv
	updated.DeletePending = true
	if err := c.store.SaveConversation(ctx, &updated); err != nil {
		return fmt.Errorf("failed to delete conversation %d: %w", id, err)
	}
	*conv = updated
	c.sink.Publish(events.Event{Kind: events.ConversationDeleted, ID: id})
	return nil
}

func (c *Collection) mutate(ctx context.Context, id int64, fn func(*domain.Conversation) bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	conv, ok := c.convs[id]
	if !ok {
		return fmt.Errorf("failed to update conversation %d: %w", id, domain.ErrNotFound)
	}
	updated := *conv
	if !fn(&updated) {
		return nil
	}
	if err := c.store.SaveConversation(ctx, &updated); err != nil {
		return fmt.Errorf("failed to update conversation %d: %w", id, err)
	}
	*conv = updated
	c.sink.Publish(events.Event{Kind: events.ConversationChanged, ID: id})
	return nil
}

func (c *Collection) deleteLocked(ctx context.Context, id int64) error {
	conv, ok := c.convs[id]
	if !ok {
		return nil
	}
	if err := c.store.DeleteConversation(ctx, id); err != nil {
		return fmt.Errorf("failed to delete conversation %d: %w", id, err)
	}
	if conv.RemoteID != 0 && c.byRemote[conv.RemoteID] == id {
		delete(c.byRemote, conv.RemoteID)
	}
	delete(c.convs, id)
	delete(c.messages, id)
	c.sink.Publish(events.Event{Kind: events.ConversationDeleted, ID: id})
	return nil
}
