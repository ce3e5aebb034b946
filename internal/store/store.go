package store

import (
	"context"

	"github.com/lu-zhengda/termcix/internal/domain"
)

// Store defines the persistence interface for the local cache. Rows are
// keyed by a 64-bit identifier within one table per entity kind; Save
// methods assign a fresh ID when the entity's ID is zero.
type Store interface {
	// Folders
	ListFolders(ctx context.Context) ([]domain.Folder, error)
	SaveFolder(ctx context.Context, folder *domain.Folder) error
	DeleteFolder(ctx context.Context, id int64) error

	// Messages
	ListMessages(ctx context.Context) ([]domain.Message, error)
	ListTopicMessages(ctx context.Context, topicID int64) ([]domain.Message, error)
	ListPendingMessages(ctx context.Context) ([]domain.Message, error)
	SaveMessage(ctx context.Context, msg *domain.Message) error
	DeleteMessage(ctx context.Context, id int64) error
	DeleteTopicMessages(ctx context.Context, topicID int64) error

	// Conversations
	ListConversations(ctx context.Context) ([]domain.Conversation, error)
	SaveConversation(ctx context.Context, conv *domain.Conversation) error
	DeleteConversation(ctx context.Context, id int64) error
	ListMail(ctx context.Context, conversationID int64) ([]domain.MailMessage, error)
	SaveMail(ctx context.Context, msg *domain.MailMessage) error

	// Directory
	ListDirCategories(ctx context.Context) ([]domain.DirCategory, error)
	SaveDirCategory(ctx context.Context, cat *domain.DirCategory) error
	ListDirForums(ctx context.Context) ([]domain.DirForum, error)
	SaveDirForum(ctx context.Context, forum *domain.DirForum) error

	// Profiles are keyed by username.
	ListProfiles(ctx context.Context) ([]domain.Profile, error)
	SaveProfile(ctx context.Context, profile *domain.Profile) error

	// Rules are stored as one opaque blob.
	LoadRules(ctx context.Context) ([]byte, error)
	SaveRules(ctx context.Context, blob []byte) error

	// Metadata
	GetGlobal(ctx context.Context) (*domain.Global, error)
	SetGlobal(ctx context.Context, global *domain.Global) error

	// WithTx runs fn against a store bound to a single transaction. The
	// transaction commits when fn returns nil and rolls back otherwise.
	WithTx(ctx context.Context, fn func(tx Store) error) error

	// Lifecycle
	Close() error
}
