package mail

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/lu-zhengda/termcix/internal/domain"
	"github.com/lu-zhengda/termcix/internal/events"
	"github.com/lu-zhengda/termcix/internal/pending"
	"github.com/lu-zhengda/termcix/internal/provider"
	"github.com/lu-zhengda/termcix/internal/store"
)

// newConv is a conversation created locally and not yet sent.
type newConv struct {
	conv  domain.Conversation
	first domain.MailMessage
}

// reply is an unsent message in a conversation the server knows.
type reply struct {
	msg      domain.MailMessage
	remoteID int
}

// Sync pushes pending sends, replies, read changes and deletions, then
// fetches the inbox and outbox and merges them.
func (c *Collection) Sync(ctx context.Context) error {
	if err := c.push(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	global, err := c.store.GetGlobal(ctx)
	c.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to read sync cursor: %w", err)
	}

	var inbox, outbox []provider.ConversationEntry
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		inbox, err = c.remote.Inbox(gctx, global.LastSync)
		return err
	})
	g.Go(func() error {
		var err error
		outbox, err = c.remote.Outbox(gctx, global.LastSync)
		return err
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("failed to fetch mail: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range inbox {
		if err := c.mergeLocked(ctx, e, false); err != nil {
			return err
		}
	}
	for _, e := range outbox {
		if err := c.mergeLocked(ctx, e, true); err != nil {
			return err
		}
	}
	c.log.WithField("inbox", len(inbox)).WithField("outbox", len(outbox)).Debug("Mail synced")
	return nil
}

// CloseSync makes one last attempt to push pending changes.
func (c *Collection) CloseSync(ctx context.Context) error {
	return c.push(ctx)
}

func (c *Collection) push(ctx context.Context) error {
	if _, err := pending.Run(ctx, c.mu, "send", c.sendHandler()); err != nil {
		return fmt.Errorf("failed to push new mail: %w", err)
	}
	if _, err := pending.Run(ctx, c.mu, "reply", c.replyHandler()); err != nil {
		return fmt.Errorf("failed to push replies: %w", err)
	}
	if _, err := pending.Run(ctx, c.mu, "mail-read", c.readHandler()); err != nil {
		return fmt.Errorf("failed to push read changes: %w", err)
	}
	if _, err := pending.Run(ctx, c.mu, "mail-delete", c.deleteHandler()); err != nil {
		return fmt.Errorf("failed to push deletions: %w", err)
	}
	return nil
}

// mergeLocked folds one server conversation into the mirror. Inbox
// entries arrive with the server's unread state; outbox entries are ours
// and always read. Conversations waiting to be deleted are left alone.
func (c *Collection) mergeLocked(ctx context.Context, e provider.ConversationEntry, outbox bool) error {
	unread := e.Unread && !outbox

	id, known := c.byRemote[e.RemoteID]
	if !known {
		conv := &domain.Conversation{
			RemoteID: e.RemoteID,
			Author:   e.Author,
			Subject:  e.Subject,
			Date:     e.Date,
			Unread:   unread,
		}
		msgs := make([]*domain.MailMessage, 0, len(e.Messages))
		for _, me := range e.Messages {
			msgs = append(msgs, &domain.MailMessage{RemoteID: me.RemoteID, Author: me.Author, Body: me.Body, Date: me.Date})
		}
		err := c.store.WithTx(ctx, func(tx store.Store) error {
			if err := tx.SaveConversation(ctx, conv); err != nil {
				return err
			}
			for _, m := range msgs {
				m.ConversationID = conv.ID
				if err := tx.SaveMail(ctx, m); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to store conversation %d: %w", e.RemoteID, err)
		}
		c.insertLocked(conv, msgs)
		c.sink.Publish(events.Event{Kind: events.ConversationAdded, ID: conv.ID, Name: conv.Subject})
		return nil
	}

	conv := c.convs[id]
	if conv.DeletePending {
		return nil
	}
	updated := *conv
	updated.Author = e.Author
	updated.Subject = e.Subject
	if e.Date.After(updated.Date) {
		updated.Date = e.Date
	}
	if !updated.ReadPending {
		updated.Unread = unread
	}

	have := make(map[int]bool, len(c.messages[id]))
	for _, m := range c.messages[id] {
		if m.RemoteID != 0 {
			have[m.RemoteID] = true
		}
	}
	var added []*domain.MailMessage
	for _, me := range e.Messages {
		if !have[me.RemoteID] {
			added = append(added, &domain.MailMessage{ConversationID: id, RemoteID: me.RemoteID, Author: me.Author, Body: me.Body, Date: me.Date})
		}
	}
	if updated == *conv && len(added) == 0 {
		return nil
	}

	err := c.store.WithTx(ctx, func(tx store.Store) error {
		if err := tx.SaveConversation(ctx, &updated); err != nil {
			return err
		}
		for _, m := range added {
			if err := tx.SaveMail(ctx, m); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to update conversation %d: %w", e.RemoteID, err)
	}
	*conv = updated
	c.messages[id] = append(c.messages[id], added...)
	sortByDate(c.messages[id])
	c.sink.Publish(events.Event{Kind: events.ConversationChanged, ID: id})
	return nil
}

func (c *Collection) sendHandler() pending.Funcs[newConv] {
	return pending.Funcs[newConv]{
		PendingFunc: func(context.Context) ([]newConv, error) {
			var out []newConv
			for _, conv := range c.sortedLocked() {
				if conv.RemoteID != 0 || conv.LastError {
					continue
				}
				for _, m := range c.messages[conv.ID] {
					if m.SendPending {
						out = append(out, newConv{conv: *conv, first: *m})
						break
					}
				}
			}
			return out, nil
		},
		PushFunc: func(ctx context.Context, it newConv) (provider.Receipt, error) {
			return c.remote.SendMail(ctx, it.conv.Author, it.conv.Subject, it.first.Body)
		},
		ConfirmFunc: func(ctx context.Context, it newConv, r provider.Receipt) error {
			conv, first := c.convs[it.conv.ID], c.findLocked(it.conv.ID, it.first.ID)
			if conv == nil || first == nil {
				return nil
			}
			updConv, updFirst := *conv, *first
			updConv.RemoteID = r.RemoteID
			updFirst.RemoteID = r.Secondary
			updFirst.SendPending = false
			err := c.store.WithTx(ctx, func(tx store.Store) error {
				if err := tx.SaveConversation(ctx, &updConv); err != nil {
					return err
				}
				return tx.SaveMail(ctx, &updFirst)
			})
			if err != nil {
				return fmt.Errorf("failed to confirm conversation %d: %w", conv.ID, err)
			}
			*conv, *first = updConv, updFirst
			if conv.RemoteID != 0 {
				c.byRemote[conv.RemoteID] = conv.ID
			}
			c.sink.Publish(events.Event{Kind: events.ConversationChanged, ID: conv.ID})
			return nil
		},
		RollbackFunc: func(ctx context.Context, it newConv, cause error) error {
			return c.failLocked(ctx, it.conv.ID, it.first.ID, cause)
		},
	}
}

func (c *Collection) replyHandler() pending.Funcs[reply] {
	return pending.Funcs[reply]{
		PendingFunc: func(context.Context) ([]reply, error) {
			var out []reply
			for _, conv := range c.sortedLocked() {
				if conv.RemoteID == 0 || conv.DeletePending {
					continue
				}
				for _, m := range c.messages[conv.ID] {
					if m.SendPending {
						out = append(out, reply{msg: *m, remoteID: conv.RemoteID})
					}
				}
			}
			return out, nil
		},
		PushFunc: func(ctx context.Context, it reply) (provider.Receipt, error) {
			return c.remote.ReplyMail(ctx, it.remoteID, it.msg.Body)
		},
		ConfirmFunc: func(ctx context.Context, it reply, r provider.Receipt) error {
			m := c.findLocked(it.msg.ConversationID, it.msg.ID)
			if m == nil {
				return nil
			}
			updated := *m
			updated.RemoteID = r.RemoteID
			updated.SendPending = false
			if err := c.store.SaveMail(ctx, &updated); err != nil {
				return fmt.Errorf("failed to confirm reply %d: %w", m.ID, err)
			}
			*m = updated
			c.sink.Publish(events.Event{Kind: events.ConversationChanged, ID: m.ConversationID})
			return nil
		},
		RollbackFunc: func(ctx context.Context, it reply, cause error) error {
			return c.failLocked(ctx, it.msg.ConversationID, it.msg.ID, cause)
		},
	}
}

func (c *Collection) readHandler() pending.Funcs[domain.Conversation] {
	return pending.Funcs[domain.Conversation]{
		PendingFunc: c.pendingLocked(func(conv *domain.Conversation) bool {
			return conv.ReadPending && conv.RemoteID != 0 && !conv.DeletePending
		}),
		PushFunc: func(ctx context.Context, conv domain.Conversation) (provider.Receipt, error) {
			return c.remote.MarkConversationRead(ctx, conv.RemoteID, !conv.Unread, conv.PendingToken)
		},
		ConfirmFunc: func(ctx context.Context, it domain.Conversation, r provider.Receipt) error {
			conv := c.convs[it.ID]
			if conv == nil || !pending.Matches(conv.PendingToken, r) {
				return nil
			}
			return c.saveLocked(ctx, conv, func(u *domain.Conversation) { u.ReadPending = false })
		},
		RollbackFunc: func(ctx context.Context, it domain.Conversation, cause error) error {
			if provider.IsGone(cause) {
				return c.deleteLocked(ctx, it.ID)
			}
			if conv := c.convs[it.ID]; conv != nil {
				return c.saveLocked(ctx, conv, func(u *domain.Conversation) { u.ReadPending = false })
			}
			return nil
		},
	}
}

func (c *Collection) deleteHandler() pending.Funcs[domain.Conversation] {
	return pending.Funcs[domain.Conversation]{
		PendingFunc: c.pendingLocked(func(conv *domain.Conversation) bool {
			return conv.DeletePending && conv.RemoteID != 0
		}),
		PushFunc: func(ctx context.Context, conv domain.Conversation) (provider.Receipt, error) {
			return provider.Receipt{}, c.remote.DeleteConversation(ctx, conv.RemoteID)
		},
		ConfirmFunc: func(ctx context.Context, it domain.Conversation, _ provider.Receipt) error {
			return c.deleteLocked(ctx, it.ID)
		},
		// The conversation is already gone on the server.
		RollbackFunc: func(ctx context.Context, it domain.Conversation, _ error) error {
			return c.deleteLocked(ctx, it.ID)
		},
	}
}

// failLocked records a refused send. The message stays so its text is not
// lost, but it is no longer pushed.
func (c *Collection) failLocked(ctx context.Context, convID, msgID int64, cause error) error {
	c.log.WithError(cause).WithField("conversation", convID).Warn("Server refused message")
	conv, m := c.convs[convID], c.findLocked(convID, msgID)
	if conv == nil || m == nil {
		return nil
	}
	updConv, updMsg := *conv, *m
	updConv.LastError = true
	updMsg.SendPending = false
	err := c.store.WithTx(ctx, func(tx store.Store) error {
		if err := tx.SaveConversation(ctx, &updConv); err != nil {
			return err
		}
		return tx.SaveMail(ctx, &updMsg)
	})
	if err != nil {
		return fmt.Errorf("failed to record send failure: %w", err)
	}
	*conv, *m = updConv, updMsg
	c.sink.Publish(events.Event{Kind: events.ConversationChanged, ID: convID})
	return nil
}

func (c *Collection) saveLocked(ctx context.Context, conv *domain.Conversation, fn func(*domain.Conversation)) error {
	updated := *conv
	fn(&updated)
	if err := c.store.SaveConversation(ctx, &updated); err != nil {
		return fmt.Errorf("failed to save conversation %d: %w", conv.ID, err)
	}
	*conv = updated
	c.sink.Publish(events.Event{Kind: events.ConversationChanged, ID: conv.ID})
	return nil
}

func (c *Collection) pendingLocked(keep func(*domain.Conversation) bool) func(context.Context) ([]domain.Conversation, error) {
	return func(context.Context) ([]domain.Conversation, error) {
		var out []domain.Conversation
		for _, conv := range c.sortedLocked() {
			if keep(conv) {
				out = append(out, *conv)
			}
		}
		return out, nil
	}
}

// sortedLocked returns the conversations in ID order.
func (c *Collection) sortedLocked() []*domain.Conversation {
	out := make([]*domain.Conversation, 0, len(c.convs))
	for _, conv := range c.convs {
		out = append(out, conv)
	}
	slices.SortFunc(out, func(a, b *domain.Conversation) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

func (c *Collection) findLocked(convID, msgID int64) *domain.MailMessage {
	for _, m := range c.messages[convID] {
		if m.ID == msgID {
			return m
		}
	}
	return nil
}
