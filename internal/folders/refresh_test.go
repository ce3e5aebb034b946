package folders

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lu-zhengda/termcix/internal/domain"
	"github.com/lu-zhengda/termcix/internal/events"
	"github.com/lu-zhengda/termcix/internal/provider"
)

// seedTech creates tech/general locally and on the server with message 42
// (server number 500) unread.
func seedTech(t *testing.T, f *fixture) {
	t.Helper()
	f.remote.AddForum("tech", true, "general")
	f.remote.AddMessage("tech", "general", provider.MessageEntry{RemoteID: 500, Author: "bob", Body: "hello", Unread: true, Date: day})

	f.seedFolder(t, 1, domain.RootID, "tech")
	f.seedFolder(t, 2, 1, "general")
	f.seedMessage(t, domain.Message{ID: 42, RemoteID: 500, TopicID: 2, Author: "bob", Body: "hello", Unread: true})
	require.NoError(t, f.c.Load(f.ctx))
}

func TestMarkReadOfflineThenSync(t *testing.T) {
	f := newFixture(t)
	seedTech(t, f)
	f.remote.SetOffline(true)

	require.NoError(t, f.c.MarkRead(f.ctx, 42))

	m, ok := f.c.Message(42)
	require.True(t, ok)
	require.False(t, m.Unread)
	require.True(t, m.ReadPending)
	topic, _ := f.c.Folder(2)
	require.Zero(t, topic.Unread)
	forum, _ := f.c.Folder(1)
	require.Zero(t, forum.Unread)

	err := f.c.Refresh(f.ctx, false)
	require.ErrorIs(t, err, provider.ErrOffline)
	m, _ = f.c.Message(42)
	require.True(t, m.ReadPending)

	f.remote.SetOffline(false)
	require.NoError(t, f.c.Refresh(f.ctx, false))

	m, _ = f.c.Message(42)
	require.False(t, m.ReadPending)
	require.False(t, m.Unread)
	server, _ := f.remote.Message("tech", "general", 500)
	require.False(t, server.Unread)
	requireRollup(t, f.c)

	// The flag is cleared in the store too.
	pendingMsgs, err := f.db.ListPendingMessages(f.ctx)
	require.NoError(t, err)
	require.Empty(t, pendingMsgs)
}

// racingProvider makes a new local change while a read push is in flight.
type racingProvider struct {
	provider.Provider
	during func()
}

func (p *racingProvider) MarkRead(ctx context.Context, changes []provider.ReadChange) ([]provider.Receipt, error) {
	if p.during != nil {
		p.during()
		p.during = nil
	}
	return p.Provider.MarkRead(ctx, changes)
}

func TestNewerIntentSurvivesConfirmation(t *testing.T) {
	f := newFixture(t)
	seedTech(t, f)

	racer := &racingProvider{Provider: f.remote}
	f.c = f.collection(racer, nil)
	require.NoError(t, f.c.Load(f.ctx))
	racer.during = func() {
		require.NoError(t, f.c.MarkUnread(f.ctx, 42))
	}

	require.NoError(t, f.c.MarkRead(f.ctx, 42))
	require.NoError(t, f.c.Refresh(f.ctx, false))

	// The server saw "read" but the user has since marked it unread.
	m, _ := f.c.Message(42)
	require.True(t, m.Unread)
	require.True(t, m.ReadPending)
	server, _ := f.remote.Message("tech", "general", 500)
	require.False(t, server.Unread)

	require.NoError(t, f.c.Refresh(f.ctx, false))
	m, _ = f.c.Message(42)
	require.True(t, m.Unread)
	require.False(t, m.ReadPending)
	server, _ = f.remote.Message("tech", "general", 500)
	require.True(t, server.Unread)
	requireRollup(t, f.c)
}

func TestRefreshFetchesListingAndMessages(t *testing.T) {
	f := newFixture(t)
	f.remote.AddForum("tech", true, "general", "help")
	f.remote.AddForum("cooking", false, "recipes")
	root := f.remote.AddMessage("tech", "general", provider.MessageEntry{Author: "bob", Body: "q", Unread: true})
	f.remote.AddMessage("tech", "general", provider.MessageEntry{Author: "carol", Body: "a", CommentID: root, RootID: root, Unread: true})
	f.remote.AddMessage("tech", "help", provider.MessageEntry{Author: "dave", Body: "help", Unread: true})

	require.NoError(t, f.c.Refresh(f.ctx, false))

	require.Equal(t, []string{"tech", "general", "help"}, folderNames(f.c.All()))
	general, ok := f.c.Topic("tech", "general")
	require.True(t, ok)
	require.Equal(t, 2, general.Unread)
	require.Equal(t, 3, f.c.TotalUnread())
	require.False(t, general.RefreshRequired)

	lines := f.c.Thread(general.ID)
	require.Len(t, lines, 2)
	require.Equal(t, "bob", lines[0].Message.Author)
	require.Equal(t, 1, lines[1].Level)
	require.Equal(t, 2, f.sink.Count(events.FolderRefreshed))
	requireRollup(t, f.c)
}

func TestRefreshIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.remote.AddForum("tech", true, "general")
	root := f.remote.AddMessage("tech", "general", provider.MessageEntry{Author: "bob", Body: "q", Unread: true})
	f.remote.AddMessage("tech", "general", provider.MessageEntry{Author: "carol", Body: "a", CommentID: root, Unread: true})

	require.NoError(t, f.c.Refresh(f.ctx, false))
	folders := f.c.All()
	general, _ := f.c.Topic("tech", "general")
	msgs := f.c.Messages(general.ID)
	added := f.sink.Count(events.MessageAdded)

	require.NoError(t, f.c.Refresh(f.ctx, false))
	require.Equal(t, folders, f.c.All())
	require.Equal(t, msgs, f.c.Messages(general.ID))
	require.Equal(t, added, f.sink.Count(events.MessageAdded))

	// Merging the same delta again directly changes nothing either.
	entries, err := f.remote.TopicMessages(f.ctx, "tech", "general", time.Time{})
	require.NoError(t, err)
	f.c.mu.Lock()
	require.NoError(t, f.c.mergeTopicLocked(f.ctx, general.ID, entries))
	require.NoError(t, f.c.mergeTopicLocked(f.ctx, general.ID, append(entries, entries...)))
	f.c.mu.Unlock()
	require.Equal(t, msgs, f.c.Messages(general.ID))
	requireRollup(t, f.c)
}

func TestPostIsConfirmedWithoutDuplicate(t *testing.T) {
	f := newFixture(t)
	seedTech(t, f)

	draft, err := f.c.Post(f.ctx, 2, 42, "reply")
	require.NoError(t, err)
	require.True(t, draft.PostPending)
	require.Equal(t, 500, draft.CommentID)
	require.Equal(t, "alice", draft.Author)

	// Read your own writes before any sync.
	got, ok := f.c.Message(draft.ID)
	require.True(t, ok)
	require.Equal(t, "reply", got.Body)
	require.Equal(t, []int64{draft.ID}, messageIDs(f.c.ChildrenOf(42)))

	require.NoError(t, f.c.Refresh(f.ctx, false))

	got, _ = f.c.Message(draft.ID)
	require.False(t, got.PostPending)
	require.NotZero(t, got.RemoteID)
	require.Len(t, f.c.Messages(2), 2)
	require.Equal(t, []int64{draft.ID}, messageIDs(f.c.ChildrenOf(42)))
}

func TestPostChecks(t *testing.T) {
	f := newFixture(t)
	seedTech(t, f)

	_, err := f.c.Post(f.ctx, 1, 0, "forum level")
	require.ErrorIs(t, err, domain.ErrNotFound)

	draft, err := f.c.Post(f.ctx, 2, 0, "new thread")
	require.NoError(t, err)
	_, err = f.c.Post(f.ctx, 2, draft.ID, "reply to draft")
	require.ErrorIs(t, err, domain.ErrNotPersisted)

	// Withdrawing an unsent draft just deletes it.
	require.NoError(t, f.c.Withdraw(f.ctx, draft.ID))
	_, ok := f.c.Message(draft.ID)
	require.False(t, ok)
}

func TestWithdrawKeepsReplies(t *testing.T) {
	f := newFixture(t)
	f.seedFolder(t, 1, domain.RootID, "tech")
	f.seedFolder(t, 2, 1, "general")
	f.seedMessage(t, domain.Message{ID: 10, RemoteID: 100, TopicID: 2, Author: "alice", Body: "oops"})
	f.seedMessage(t, domain.Message{ID: 11, RemoteID: 101, CommentID: 100, TopicID: 2, Body: "a"})
	f.seedMessage(t, domain.Message{ID: 12, RemoteID: 102, CommentID: 100, TopicID: 2, Body: "b"})
	require.NoError(t, f.c.Load(f.ctx))

	require.NoError(t, f.c.Withdraw(f.ctx, 10))

	m, _ := f.c.Message(10)
	require.Empty(t, m.Body)
	require.True(t, m.WithdrawPending)
	require.True(t, m.Withdrawn)
	require.Equal(t, []int64{11, 12}, messageIDs(f.c.ChildrenOf(10)))
}

func TestStarPushedAndMergedServerStateKeptWhilePending(t *testing.T) {
	f := newFixture(t)
	seedTech(t, f)
	f.remote.Fail("SetStar", provider.ErrServer)

	require.NoError(t, f.c.SetStar(f.ctx, 42, true))
	require.NoError(t, f.c.Refresh(f.ctx, false))

	// The push failed and the server still says unstarred, but the local
	// intent wins until confirmed.
	m, _ := f.c.Message(42)
	require.True(t, m.Starred)
	require.True(t, m.StarPending)

	require.NoError(t, f.c.Refresh(f.ctx, false))
	m, _ = f.c.Message(42)
	require.True(t, m.Starred)
	require.False(t, m.StarPending)
	server, _ := f.remote.Message("tech", "general", 500)
	require.True(t, server.Starred)
}

func TestTerminalFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	seedTech(t, f)
	f.remote.Fail("MarkRead", provider.ErrNotFound)

	require.NoError(t, f.c.MarkRead(f.ctx, 42))
	require.NoError(t, f.c.Refresh(f.ctx, true))

	// The server says the message is gone.
	_, ok := f.c.Message(42)
	require.False(t, ok)
	requireRollup(t, f.c)
}

func TestOutOfOrderMergeRepairs(t *testing.T) {
	f := newFixture(t)
	seedTech(t, f)

	f.c.mu.Lock()
	defer f.c.mu.Unlock()
	require.NoError(t, f.c.mergeTopicLocked(f.ctx, 2, []provider.MessageEntry{
		{RemoteID: 601, CommentID: 600, Author: "bob", Date: day},
	}))
	child := f.c.threads[2].ByRemoteID(601)
	require.True(t, f.c.threads[2].IsPseudoRoot(child.ID))

	require.NoError(t, f.c.mergeTopicLocked(f.ctx, 2, []provider.MessageEntry{
		{RemoteID: 600, Author: "carol", Date: day},
	}))
	parent := f.c.threads[2].ByRemoteID(600)
	require.False(t, f.c.threads[2].IsPseudoRoot(child.ID))
	require.Equal(t, parent.ID, f.c.threads[2].Parent(child.ID).ID)
}

func TestJoinAndResignRoundTrip(t *testing.T) {
	f := newFixture(t)
	f.remote.AddForum("cooking", false, "recipes")
	f.remote.AddMessage("cooking", "recipes", provider.MessageEntry{Author: "bob", Body: "soup", Unread: true})

	forum, err := f.c.Join(f.ctx, "cooking")
	require.NoError(t, err)
	require.True(t, forum.JoinPending)

	require.NoError(t, f.c.Refresh(f.ctx, true))

	forum, ok := f.c.FolderByName("cooking")
	require.True(t, ok)
	require.False(t, forum.JoinPending)
	recipes, ok := f.c.Topic("cooking", "recipes")
	require.True(t, ok)
	require.Equal(t, 1, recipes.Unread)
	require.Equal(t, 1, f.c.TotalUnread())

	require.NoError(t, f.c.Resign(f.ctx, forum.ID))
	require.NoError(t, f.c.CloseSync(f.ctx))
	_, ok = f.c.FolderByName("cooking")
	require.False(t, ok)
	require.Zero(t, f.c.TotalUnread())
}

func TestFailedJoinRemovesProvisionalFolder(t *testing.T) {
	f := newFixture(t)

	_, err := f.c.Join(f.ctx, "nosuch")
	require.NoError(t, err)
	require.NoError(t, f.c.Refresh(f.ctx, true))

	_, ok := f.c.FolderByName("nosuch")
	require.False(t, ok)
	require.Equal(t, 1, f.sink.Count(events.FolderDeleted))
}

func TestMarkAllReadUsesRange(t *testing.T) {
	f := newFixture(t)
	seedTech(t, f)
	f.seedMessage(t, domain.Message{ID: 43, RemoteID: 501, TopicID: 2, Unread: true, ReadLocked: true})
	require.NoError(t, f.c.Load(f.ctx))

	require.NoError(t, f.c.MarkAllRead(f.ctx, 1))
	m, _ := f.c.Message(42)
	require.False(t, m.Unread)
	locked, _ := f.c.Message(43)
	require.True(t, locked.Unread)
	topic, _ := f.c.Folder(2)
	require.True(t, topic.MarkReadRangePending)
	require.Equal(t, 1, topic.Unread)

	require.NoError(t, f.c.CloseSync(f.ctx))
	topic, _ = f.c.Folder(2)
	require.False(t, topic.MarkReadRangePending)
	require.Equal(t, 1, f.remote.CallCount("MarkReadRange"))
	requireRollup(t, f.c)
}

func TestGoneTopicIsRemoved(t *testing.T) {
	f := newFixture(t)
	seedTech(t, f)
	f.remote.Fail("TopicMessages", provider.ErrNoSuchForum)

	require.NoError(t, f.c.Refresh(f.ctx, false))
	_, ok := f.c.Folder(2)
	require.False(t, ok)
}

func TestServerErrorSkipsTopic(t *testing.T) {
	f := newFixture(t)
	f.remote.AddForum("tech", true, "general", "help")
	f.remote.AddMessage("tech", "help", provider.MessageEntry{Author: "dave", Unread: true})
	f.remote.Fail("TopicMessages", provider.ErrServer)

	require.ErrorIs(t, f.c.Refresh(f.ctx, false), provider.ErrServer)
	help, _ := f.c.Topic("tech", "help")
	require.Equal(t, 1, help.Unread)
	general, _ := f.c.Topic("tech", "general")
	require.True(t, general.RefreshRequired)
}

func TestServerErrorRefetchesCachedTopic(t *testing.T) {
	f := newFixture(t)
	seedTech(t, f)
	f.remote.AddMessage("tech", "general", provider.MessageEntry{Author: "carol", Body: "late", Unread: true, Date: day.Add(time.Hour)})
	f.remote.Fail("TopicMessages", provider.ErrServer)

	require.ErrorIs(t, f.c.Refresh(f.ctx, false), provider.ErrServer)
	general, _ := f.c.Folder(2)
	require.True(t, general.RefreshRequired)
	require.Len(t, f.c.Messages(2), 1)

	// A fast pass picks the topic up again from the beginning.
	require.NoError(t, f.c.Refresh(f.ctx, true))
	require.Len(t, f.c.Messages(2), 2)
	general, _ = f.c.Folder(2)
	require.False(t, general.RefreshRequired)
	requireRollup(t, f.c)
}

type priorityFor string

func (p priorityFor) ApplyRules(m *domain.Message, _, _ string) bool {
	if m.Author != string(p) {
		return false
	}
	m.Priority = true
	return true
}

func TestNewMessagesRunThroughRules(t *testing.T) {
	f := newFixture(t)
	f.c = f.collection(f.remote, priorityFor("bob"))
	f.remote.AddForum("tech", true, "general")
	f.remote.AddMessage("tech", "general", provider.MessageEntry{Author: "bob", Unread: true})
	f.remote.AddMessage("tech", "general", provider.MessageEntry{Author: "carol", Unread: true})

	require.NoError(t, f.c.Refresh(f.ctx, false))
	require.Equal(t, 2, f.c.TotalUnread())
	require.Equal(t, 1, f.c.TotalUnreadPriority())
	requireRollup(t, f.c)
}

func TestSearchAndLocalFlags(t *testing.T) {
	f := newFixture(t)
	seedTech(t, f)

	require.Len(t, f.c.Search("HELLO"), 1)
	require.Len(t, f.c.Search("bob"), 1)
	require.Empty(t, f.c.Search("nothing"))

	require.NoError(t, f.c.SetPriority(f.ctx, 42, true))
	require.Equal(t, 1, f.c.TotalUnreadPriority())
	require.NoError(t, f.c.SetIgnored(f.ctx, 42, true))
	require.Zero(t, f.c.TotalUnread())
	require.NoError(t, f.c.SetIgnored(f.ctx, 42, false))
	require.NoError(t, f.c.MarkThreadRead(f.ctx, 42))
	require.Zero(t, f.c.TotalUnread())
	require.NoError(t, f.c.SetReadLock(f.ctx, 42, true))
	m, _ := f.c.Message(42)
	require.True(t, m.Unread)
	require.True(t, m.ReadLocked)
	requireRollup(t, f.c)
}

func messageIDs(msgs []domain.Message) []int64 {
	out := make([]int64, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.ID)
	}
	return out
}

func TestActiveThreadsMatchCache(t *testing.T) {
	f := newFixture(t)
	seedTech(t, f)
	f.remote.AddInteresting(provider.ThreadEntry{Forum: "tech", Topic: "general", RemoteID: 500, Author: "bob", Date: day})
	f.remote.AddInteresting(provider.ThreadEntry{Forum: "tech", Topic: "general", RemoteID: 777, Author: "carol", Date: day})
	f.remote.AddInteresting(provider.ThreadEntry{Forum: "music", Topic: "chat", RemoteID: 3, Author: "dan", Date: day})

	threads, err := f.c.ActiveThreads(f.ctx)
	require.NoError(t, err)
	require.Len(t, threads, 3)
	require.Equal(t, int64(2), threads[0].TopicID)
	require.Equal(t, int64(42), threads[0].MessageID)
	require.Equal(t, int64(2), threads[1].TopicID)
	require.Zero(t, threads[1].MessageID)
	require.Zero(t, threads[2].TopicID)

	f.remote.SetOffline(true)
	_, err = f.c.ActiveThreads(f.ctx)
	require.ErrorIs(t, err, provider.ErrOffline)
}
