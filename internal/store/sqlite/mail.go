package sqlite

import (
	"context"
	"fmt"

	"github.com/lu-zhengda/termcix/internal/domain"
)

// ListConversations returns every conversation, newest first.
func (s *DB) ListConversations(ctx context.Context) ([]domain.Conversation, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, remote_id, author, subject, date, unread, priority,
			read_pending, delete_pending, last_error, pending_token
		FROM conversations ORDER BY date DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	var convs []domain.Conversation
	for rows.Next() {
		var (
			c       domain.Conversation
			dateStr string
		)
		if err := rows.Scan(&c.ID, &c.RemoteID, &c.Author, &c.Subject, &dateStr, &c.Unread, &c.Priority,
			&c.ReadPending, &c.DeletePending, &c.LastError, &c.PendingToken); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		if c.Date, err = parseTime(dateStr); err != nil {
			return nil, fmt.Errorf("failed to parse conversation date: %w", err)
		}
		convs = append(convs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate conversations: %w", err)
	}
	return convs, nil
}

// SaveConversation inserts or updates a conversation.
func (s *DB) SaveConversation(ctx context.Context, c *domain.Conversation) error {
	args := []any{
		c.RemoteID, c.Author, c.Subject, formatTime(c.Date), c.Unread, c.Priority,
		c.ReadPending, c.DeletePending, c.LastError, c.PendingToken,
	}
	if c.ID == 0 {
		id, err := s.insertID(ctx, `
			INSERT INTO conversations (remote_id, author, subject, date, unread, priority,
				read_pending, delete_pending, last_error, pending_token)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...)
		if err != nil {
			return fmt.Errorf("failed to insert conversation: %w", err)
		}
		c.ID = id
		return nil
	}

	_, err := s.q.ExecContext(ctx, `
		INSERT INTO conversations (id, remote_id, author, subject, date, unread, priority,
			read_pending, delete_pending, last_error, pending_token)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			remote_id      = excluded.remote_id,
			author         = excluded.author,
			subject        = excluded.subject,
			date           = excluded.date,
			unread         = excluded.unread,
			priority       = excluded.priority,
			read_pending   = excluded.read_pending,
			delete_pending = excluded.delete_pending,
			last_error     = excluded.last_error,
			pending_token  = excluded.pending_token`,
		append([]any{c.ID}, args...)...,
	)
	if err != nil {
		return fmt.Errorf("failed to save conversation %d: %w", c.ID, err)
	}
	return nil
}

// DeleteConversation removes a conversation and, by cascade, its messages.
func (s *DB) DeleteConversation(ctx context.Context, id int64) error {
	if _, err := s.q.ExecContext(ctx, `DELETE FROM mail WHERE conversation_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete mail of conversation %d: %w", id, err)
	}
	if _, err := s.q.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete conversation %d: %w", id, err)
	}
	return nil
}

// ListMail returns the messages of a conversation in date order.
func (s *DB) ListMail(ctx context.Context, conversationID int64) ([]domain.MailMessage, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, remote_id, conversation_id, author, body, date, send_pending
		FROM mail WHERE conversation_id = ? ORDER BY date, id`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list mail: %w", err)
	}
	defer rows.Close()

	var msgs []domain.MailMessage
	for rows.Next() {
		var (
			m       domain.MailMessage
			dateStr string
		)
		if err := rows.Scan(&m.ID, &m.RemoteID, &m.ConversationID, &m.Author, &m.Body, &dateStr, &m.SendPending); err != nil {
			return nil, fmt.Errorf("failed to scan mail: %w", err)
		}
		if m.Date, err = parseTime(dateStr); err != nil {
			return nil, fmt.Errorf("failed to parse mail date: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate mail: %w", err)
	}
	return msgs, nil
}

// SaveMail inserts or updates a mail message. The parent conversation must
// already be saved.
func (s *DB) SaveMail(ctx context.Context, m *domain.MailMessage) error {
	if m.ConversationID == 0 {
		return fmt.Errorf("failed to save mail: %w", domain.ErrNotPersisted)
	}
	args := []any{m.RemoteID, m.ConversationID, m.Author, m.Body, formatTime(m.Date), m.SendPending}
	if m.ID == 0 {
		id, err := s.insertID(ctx, `
			INSERT INTO mail (remote_id, conversation_id, author, body, date, send_pending)
			VALUES (?, ?, ?, ?, ?, ?)`, args...)
		if err != nil {
			return fmt.Errorf("failed to insert mail: %w", err)
		}
		m.ID = id
		return nil
	}

	_, err := s.q.ExecContext(ctx, `
		INSERT INTO mail (id, remote_id, conversation_id, author, body, date, send_pending)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			remote_id       = excluded.remote_id,
			conversation_id = excluded.conversation_id,
			author          = excluded.author,
			body            = excluded.body,
			date            = excluded.date,
			send_pending    = excluded.send_pending`,
		append([]any{m.ID}, args...)...,
	)
	if err != nil {
		return fmt.Errorf("failed to save mail %d: %w", m.ID, err)
	}
	return nil
}
