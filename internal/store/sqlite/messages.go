package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lu-zhengda/termcix/internal/domain"
)

const messageColumns = `id, remote_id, topic_id, comment_id, root_id, author, body, date,
	unread, priority, starred, read_locked, ignored, withdrawn,
	read_pending, post_pending, star_pending, withdraw_pending, pending_token`

// ListMessages returns every cached forum message.
func (s *DB) ListMessages(ctx context.Context) ([]domain.Message, error) {
	return s.queryMessages(ctx, `SELECT `+messageColumns+` FROM messages ORDER BY topic_id, id`)
}

// ListTopicMessages returns the messages of one topic in ID order.
func (s *DB) ListTopicMessages(ctx context.Context, topicID int64) ([]domain.Message, error) {
	return s.queryMessages(ctx, `SELECT `+messageColumns+` FROM messages WHERE topic_id = ? ORDER BY id`, topicID)
}

// ListPendingMessages returns messages with at least one pending flag set.
func (s *DB) ListPendingMessages(ctx context.Context) ([]domain.Message, error) {
	return s.queryMessages(ctx, `SELECT `+messageColumns+` FROM messages
		WHERE read_pending OR post_pending OR star_pending OR withdraw_pending
		ORDER BY id`)
}

func (s *DB) queryMessages(ctx context.Context, query string, args ...any) ([]domain.Message, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var msgs []domain.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}
	return msgs, nil
}

func scanMessage(rows *sql.Rows) (domain.Message, error) {
	var (
		m       domain.Message
		dateStr string
	)
	if err := rows.Scan(&m.ID, &m.RemoteID, &m.TopicID, &m.CommentID, &m.RootID, &m.Author, &m.Body, &dateStr,
		&m.Unread, &m.Priority, &m.Starred, &m.ReadLocked, &m.Ignored, &m.Withdrawn,
		&m.ReadPending, &m.PostPending, &m.StarPending, &m.WithdrawPending, &m.PendingToken); err != nil {
		return m, fmt.Errorf("failed to scan message: %w", err)
	}
	date, err := parseTime(dateStr)
	if err != nil {
		return m, fmt.Errorf("failed to parse message date: %w", err)
	}
	m.Date = date
	return m, nil
}

// SaveMessage inserts or updates a message. A zero ID is replaced by a
// newly assigned one; assigned IDs increase monotonically.
func (s *DB) SaveMessage(ctx context.Context, m *domain.Message) error {
	args := []any{
		m.RemoteID, m.TopicID, m.CommentID, m.RootID, m.Author, m.Body, formatTime(m.Date),
		m.Unread, m.Priority, m.Starred, m.ReadLocked, m.Ignored, m.Withdrawn,
		m.ReadPending, m.PostPending, m.StarPending, m.WithdrawPending, m.PendingToken,
	}

	if m.ID == 0 {
		id, err := s.insertID(ctx, `
			INSERT INTO messages (remote_id, topic_id, comment_id, root_id, author, body, date,
				unread, priority, starred, read_locked, ignored, withdrawn,
				read_pending, post_pending, star_pending, withdraw_pending, pending_token)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...)
		if err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
		m.ID = id
		return nil
	}

	_, err := s.q.ExecContext(ctx, `
		INSERT INTO messages (id, remote_id, topic_id, comment_id, root_id, author, body, date,
			unread, priority, starred, read_locked, ignored, withdrawn,
			read_pending, post_pending, star_pending, withdraw_pending, pending_token)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			remote_id   = excluded.remote_id,
			topic_id    = excluded.topic_id,
			comment_id  = excluded.comment_id,
			root_id     = excluded.root_id,
			author      = excluded.author,
			body        = excluded.body,
			date        = excluded.date,
			unread      = excluded.unread,
			priority    = excluded.priority,
			starred     = excluded.starred,
			read_locked = excluded.read_locked,
			ignored     = excluded.ignored,
			withdrawn   = excluded.withdrawn,
			read_pending     = excluded.read_pending,
			post_pending     = excluded.post_pending,
			star_pending     = excluded.star_pending,
			withdraw_pending = excluded.withdraw_pending,
			pending_token    = excluded.pending_token`,
		append([]any{m.ID}, args...)...,
	)
	if err != nil {
		return fmt.Errorf("failed to save message %d: %w", m.ID, err)
	}
	return nil
}

// DeleteMessage removes a single message.
func (s *DB) DeleteMessage(ctx context.Context, id int64) error {
	if _, err := s.q.ExecContext(ctx, `DELETE FROM messages WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete message %d: %w", id, err)
	}
	return nil
}

// DeleteTopicMessages removes every message of a topic.
func (s *DB) DeleteTopicMessages(ctx context.Context, topicID int64) error {
	if _, err := s.q.ExecContext(ctx, `DELETE FROM messages WHERE topic_id = ?`, topicID); err != nil {
		return fmt.Errorf("failed to delete messages of topic %d: %w", topicID, err)
	}
	return nil
}
