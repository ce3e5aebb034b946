package domain

import (
	"strings"
	"time"
)

// Message is a forum message. Thread linkage uses server numbers:
// CommentID is the RemoteID of the parent within the same topic, or 0 for
// a thread root. Locally posted messages have RemoteID 0 until confirmed.
type Message struct {
	ID        int64
	RemoteID  int
	TopicID   int64
	CommentID int
	RootID    int
	Author    string
	Body      string
	Date      time.Time

	Unread     bool
	Priority   bool
	Starred    bool
	ReadLocked bool
	Ignored    bool
	Withdrawn  bool

	ReadPending     bool
	PostPending     bool
	StarPending     bool
	WithdrawPending bool

	// PendingToken identifies the newest unconfirmed local intent.
	PendingToken string
}

// IsDraft reports whether the message was posted locally and not yet
// accepted by the server.
func (m *Message) IsDraft() bool {
	return m.RemoteID == 0
}

// IsRoot reports whether the message starts a thread.
func (m *Message) IsRoot() bool {
	return m.CommentID == 0
}

func (m *Message) HasPending() bool {
	return m.ReadPending || m.PostPending || m.StarPending || m.WithdrawPending
}

// Subject is the first non-empty line of the body.
func (m *Message) Subject() string {
	for _, line := range strings.Split(m.Body, "\n") {
		if s := strings.TrimSpace(line); s != "" {
			return s
		}
	}
	return ""
}

// IsMine reports whether the message was written by the given user.
func (m *Message) IsMine(username string) bool {
	return username != "" && strings.EqualFold(m.Author, username)
}

// CountsUnread reports whether the message contributes to unread totals.
func (m *Message) CountsUnread() bool {
	return m.Unread && !m.Ignored
}

// CountsPriority reports whether the message contributes to unread-priority totals.
func (m *Message) CountsPriority() bool {
	return m.CountsUnread() && m.Priority
}
