package folders

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lu-zhengda/termcix/internal/domain"
	"github.com/lu-zhengda/termcix/internal/events"
	"github.com/lu-zhengda/termcix/internal/provider"
	"github.com/lu-zhengda/termcix/internal/provider/providertest"
	"github.com/lu-zhengda/termcix/internal/store"
	"github.com/lu-zhengda/termcix/internal/store/sqlite"
)

var day = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	ctx    context.Context
	db     *sqlite.DB
	remote *providertest.Fake
	sink   *events.Recorder
	c      *Collection
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	f := &fixture{
		ctx:    context.Background(),
		db:     db,
		remote: providertest.New("alice"),
		sink:   &events.Recorder{},
	}
	f.c = f.collection(f.remote, nil)
	return f
}

func (f *fixture) collection(remote provider.Provider, rules RuleApplier) *Collection {
	return New(f.db, remote, &sync.Mutex{}, Options{
		Sink:     f.sink,
		Rules:    rules,
		Username: "alice",
		Now:      func() time.Time { return day },
	})
}

func (f *fixture) seedFolder(t *testing.T, id, parent int64, name string) {
	t.Helper()
	require.NoError(t, f.db.SaveFolder(f.ctx, &domain.Folder{ID: id, ParentID: parent, Name: name}))
}

func (f *fixture) seedMessage(t *testing.T, m domain.Message) {
	t.Helper()
	if m.Date.IsZero() {
		m.Date = day
	}
	require.NoError(t, f.db.SaveMessage(f.ctx, &m))
}

// requireRollup checks that every folder's counts equal its own unread
// messages plus the sum over its children.
func requireRollup(t *testing.T, c *Collection) {
	t.Helper()
	for _, f := range c.All() {
		var unread, priority int
		for _, m := range c.Messages(f.ID) {
			if m.CountsUnread() {
				unread++
			}
			if m.CountsPriority() {
				priority++
			}
		}
		for _, child := range c.Children(f.ID) {
			unread += child.Unread
			priority += child.UnreadPriority
		}
		require.Equal(t, unread, f.Unread, "unread of %s", f.Name)
		require.Equal(t, priority, f.UnreadPriority, "priority of %s", f.Name)
	}
}

func folderNames(folders []domain.Folder) []string {
	out := make([]string, 0, len(folders))
	for _, f := range folders {
		out = append(out, f.Name)
	}
	return out
}

func TestLoadRollsUpUnread(t *testing.T) {
	f := newFixture(t)
	f.seedFolder(t, 1, domain.RootID, "tech")
	f.seedFolder(t, 2, 1, "general")
	f.seedFolder(t, 3, 1, "help")
	for i := 1; i <= 3; i++ {
		f.seedMessage(t, domain.Message{RemoteID: i, TopicID: 2, Unread: true})
	}
	for i := 4; i <= 5; i++ {
		f.seedMessage(t, domain.Message{RemoteID: i, TopicID: 3, Unread: true})
	}
	f.seedMessage(t, domain.Message{RemoteID: 6, TopicID: 3})

	require.NoError(t, f.c.Load(f.ctx))

	tech, ok := f.c.Folder(1)
	require.True(t, ok)
	require.Equal(t, 5, tech.Unread)
	require.Equal(t, 5, f.c.TotalUnread())
	requireRollup(t, f.c)

	// Counts are persisted.
	stored, err := f.db.ListFolders(f.ctx)
	require.NoError(t, err)
	require.Equal(t, 5, stored[0].Unread)
}

func TestAddAssignsIndexAndRejectsDuplicates(t *testing.T) {
	f := newFixture(t)
	forum := &domain.Folder{Name: "tech"}
	require.NoError(t, f.c.Add(f.ctx, forum, domain.RootID))
	require.NotZero(t, forum.ID)

	for i, name := range []string{"general", "help", "news"} {
		topic := &domain.Folder{Name: name}
		require.NoError(t, f.c.Add(f.ctx, topic, forum.ID))
		require.Equal(t, i, topic.Index)
	}

	require.ErrorIs(t, f.c.Add(f.ctx, &domain.Folder{Name: "HELP"}, forum.ID), domain.ErrDuplicateEntity)
	require.ErrorIs(t, f.c.Add(f.ctx, &domain.Folder{ID: forum.ID, Name: "other"}, domain.RootID), domain.ErrDuplicateEntity)
	require.ErrorIs(t, f.c.Add(f.ctx, &domain.Folder{Name: "orphan"}, 999), domain.ErrNotFound)
	require.Equal(t, 4, f.sink.Count(events.FolderAdded))

	help, ok := f.c.FolderByName("tech/help")
	require.True(t, ok)
	require.Equal(t, 1, help.Index)
	require.Equal(t, "tech/help", f.c.Path(help.ID))
}

func TestMoveAndReindex(t *testing.T) {
	f := newFixture(t)
	f.seedFolder(t, 1, domain.RootID, "tech")
	f.seedFolder(t, 2, 1, "a")
	f.seedFolder(t, 3, 1, "b")
	f.seedFolder(t, 4, 1, "c")
	require.NoError(t, f.c.Load(f.ctx))

	require.NoError(t, f.c.Move(f.ctx, 4, 0))
	children := f.c.Children(1)
	require.Equal(t, []string{"c", "a", "b"}, folderNames(children))
	for i, child := range children {
		require.Equal(t, i, child.Index)
	}

	require.NoError(t, f.c.Remove(f.ctx, 2))
	children = f.c.Children(1)
	require.Equal(t, []string{"c", "b"}, folderNames(children))
	require.Equal(t, 1, children[1].Index)
	require.NoError(t, f.c.Reindex(f.ctx))

	// Order survives a reload.
	reloaded := f.collection(f.remote, nil)
	require.NoError(t, reloaded.Load(f.ctx))
	require.Equal(t, []string{"tech", "c", "b"}, folderNames(reloaded.All()))
}

func TestRemoveSubtractsSubtree(t *testing.T) {
	f := newFixture(t)
	f.seedFolder(t, 1, domain.RootID, "tech")
	f.seedFolder(t, 2, 1, "general")
	f.seedFolder(t, 3, 1, "help")
	f.seedMessage(t, domain.Message{ID: 10, RemoteID: 1, TopicID: 2, Unread: true})
	f.seedMessage(t, domain.Message{ID: 11, RemoteID: 2, TopicID: 3, Unread: true, Priority: true})
	require.NoError(t, f.c.Load(f.ctx))

	require.NoError(t, f.c.Remove(f.ctx, 3))
	tech, _ := f.c.Folder(1)
	require.Equal(t, 1, tech.Unread)
	require.Equal(t, 0, tech.UnreadPriority)
	_, ok := f.c.Message(11)
	require.False(t, ok)

	msgs, err := f.db.ListTopicMessages(f.ctx, 3)
	require.NoError(t, err)
	require.Empty(t, msgs)

	require.NoError(t, f.c.Remove(f.ctx, 1))
	require.Empty(t, f.c.All())
	require.Zero(t, f.c.TotalUnread())
	require.ErrorIs(t, f.c.Remove(f.ctx, 1), domain.ErrNotFound)
}

// failingDeletes refuses to delete folders, inside transactions too.
type failingDeletes struct {
	store.Store
}

func (failingDeletes) DeleteFolder(context.Context, int64) error {
	return errors.New("disk full")
}

func (s failingDeletes) WithTx(ctx context.Context, fn func(tx store.Store) error) error {
	return s.Store.WithTx(ctx, func(tx store.Store) error { return fn(failingDeletes{tx}) })
}

func TestFailedRemoveKeepsCounts(t *testing.T) {
	f := newFixture(t)
	f.seedFolder(t, 1, domain.RootID, "tech")
	f.seedFolder(t, 2, 1, "general")
	f.seedFolder(t, 3, 1, "help")
	f.seedMessage(t, domain.Message{ID: 10, RemoteID: 1, TopicID: 2, Unread: true})
	f.seedMessage(t, domain.Message{ID: 11, RemoteID: 2, TopicID: 3, Unread: true, Priority: true})

	c := New(failingDeletes{f.db}, f.remote, &sync.Mutex{}, Options{Now: func() time.Time { return day }})
	require.NoError(t, c.Load(f.ctx))

	require.Error(t, c.Remove(f.ctx, 3))
	tech, _ := c.Folder(1)
	require.Equal(t, 2, tech.Unread)
	require.Equal(t, 1, tech.UnreadPriority)
	_, ok := c.Folder(3)
	require.True(t, ok)
	_, ok = c.Message(11)
	require.True(t, ok)
	requireRollup(t, c)

	// Nothing was written either.
	stored, err := f.db.ListFolders(f.ctx)
	require.NoError(t, err)
	for _, sf := range stored {
		if sf.ID == 1 {
			require.Equal(t, 2, sf.Unread)
		}
	}
}

func TestRequestRefreshMarksSubtree(t *testing.T) {
	f := newFixture(t)
	f.seedFolder(t, 1, domain.RootID, "tech")
	f.seedFolder(t, 2, 1, "general")
	require.NoError(t, f.c.Load(f.ctx))

	require.True(t, f.c.RequestRefresh(1))
	topic, _ := f.c.Folder(2)
	require.True(t, topic.RefreshRequired)
	require.False(t, f.c.RequestRefresh(99))
}

func TestResignRules(t *testing.T) {
	f := newFixture(t)
	f.seedFolder(t, 1, domain.RootID, "tech")
	require.NoError(t, f.db.SaveFolder(f.ctx, &domain.Folder{ID: 2, ParentID: 1, Name: "announce", Flags: domain.FolderCannotResign}))
	require.NoError(t, f.c.Load(f.ctx))

	require.ErrorIs(t, f.c.Resign(f.ctx, 2), domain.ErrCannotResign)
	require.NoError(t, f.c.Resign(f.ctx, 1))

	tech, _ := f.c.Folder(1)
	require.True(t, tech.Has(domain.FolderResigned))
	require.True(t, tech.ResignPending)
}
