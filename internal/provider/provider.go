package provider

import (
	"context"
	"time"
)

// Provider is the remote side of the cache. Implementations translate these
// calls into service requests; the core never builds requests itself.
type Provider interface {
	// Forums
	ListForums(ctx context.Context) ([]ForumEntry, error)
	TopicMessages(ctx context.Context, forum, topic string, since time.Time) ([]MessageEntry, error)
	PostMessage(ctx context.Context, post Post) (Receipt, error)
	MarkRead(ctx context.Context, changes []ReadChange) ([]Receipt, error)
	SetStar(ctx context.Context, forum, topic string, remoteID int, starred bool, token string) (Receipt, error)
	Withdraw(ctx context.Context, forum, topic string, remoteID int, token string) (Receipt, error)
	MarkReadRange(ctx context.Context, forum, topic string) error
	JoinForum(ctx context.Context, forum string) error
	ResignForum(ctx context.Context, forum, topic string) error

	// Mail
	Inbox(ctx context.Context, since time.Time) ([]ConversationEntry, error)
	Outbox(ctx context.Context, since time.Time) ([]ConversationEntry, error)
	SendMail(ctx context.Context, recipient, subject, body string) (Receipt, error)
	ReplyMail(ctx context.Context, conversationRemoteID int, body string) (Receipt, error)
	MarkConversationRead(ctx context.Context, conversationRemoteID int, read bool, token string) (Receipt, error)
	DeleteConversation(ctx context.Context, conversationRemoteID int) error

	// Directory
	ListDirectory(ctx context.Context) ([]DirForumEntry, error)
	ForumDetails(ctx context.Context, forum string) (*DirForumEntry, error)
	UpdateForumMembers(ctx context.Context, forum string, change MemberChange) (Receipt, error)

	// Users
	Profile(ctx context.Context, username string) (*ProfileEntry, error)
	UpdateProfile(ctx context.Context, update ProfileUpdate) (Receipt, error)
	Who(ctx context.Context) ([]WhoEntry, error)
	InterestingThreads(ctx context.Context) ([]ThreadEntry, error)
}

// ForumEntry is a joined forum and its topics.
type ForumEntry struct {
	Name   string
	Title  string
	Flags  uint32
	Topics []TopicEntry
}

type TopicEntry struct {
	Name   string
	Title  string
	Flags  uint32
	Unread int
}

// MessageEntry is a forum message as returned by the server.
type MessageEntry struct {
	RemoteID  int
	CommentID int
	RootID    int
	Author    string
	Body      string
	Date      time.Time
	Unread    bool
	Priority  bool
	Starred   bool
	Withdrawn bool
}

// Post is a new forum message or reply.
type Post struct {
	Forum   string
	Topic   string
	Body    string
	ReplyTo int
	Token   string
}

// ReadChange asks the server to set the read state of one message.
type ReadChange struct {
	Forum    string
	Topic    string
	RemoteID int
	Read     bool
	Token    string
}

// Receipt confirms a pushed change. Token echoes the token sent with the
// change; RemoteID carries a newly assigned server number where relevant.
type Receipt struct {
	Token    string
	RemoteID int
	// Secondary carries a second assigned number, such as the first
	// message of a newly created conversation.
	Secondary int
}

type ConversationEntry struct {
	RemoteID int
	Author   string
	Subject  string
	Date     time.Time
	Unread   bool
	Messages []MailEntry
}

type MailEntry struct {
	RemoteID int
	Author   string
	Body     string
	Date     time.Time
}

type DirForumEntry struct {
	Name         string
	Title        string
	Desc         string
	Type         string
	Cat          string
	Sub          string
	Recent       int
	Moderators   []string
	Participants []string
}

// MemberChange is a moderator/participant delta for a forum.
type MemberChange struct {
	AddedMods    []string
	RemovedMods  []string
	AddedParts   []string
	RemovedParts []string
	Token        string
}

type ProfileEntry struct {
	Username string
	FullName string
	Email    string
	Location string
	Sex      string
	About    string
	Flags    int
	FirstOn  time.Time
	LastOn   time.Time
	LastPost time.Time
}

// ProfileUpdate replaces the editable fields of the signed-in user's
// profile.
type ProfileUpdate struct {
	FullName string
	Email    string
	Location string
	Sex      string
	Flags    int
	Token    string
}

// WhoEntry is a user seen online recently.
type WhoEntry struct {
	Username string
	LastOn   time.Time
}

// ThreadEntry is the root message of a thread the server currently rates
// as active.
type ThreadEntry struct {
	Forum    string
	Topic    string
	RemoteID int
	Author   string
	Body     string
	Date     time.Time
}
