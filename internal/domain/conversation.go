package domain

import "time"

// Conversation is a private one-to-one mail thread.
type Conversation struct {
	ID       int64
	RemoteID int
	Author   string
	Subject  string
	Date     time.Time
	Unread   bool
	Priority bool

	ReadPending   bool
	DeletePending bool
	LastError     bool
	PendingToken  string
}

func (c *Conversation) HasPending() bool {
	return c.ReadPending || c.DeletePending
}

// MailMessage is a single message within a Conversation.
type MailMessage struct {
	ID             int64
	RemoteID       int
	ConversationID int64
	Author         string
	Body           string
	Date           time.Time
	SendPending    bool
}

func (m *MailMessage) IsDraft() bool {
	return m.RemoteID == 0
}
