package mail

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lu-zhengda/termcix/internal/domain"
	"github.com/lu-zhengda/termcix/internal/events"
	"github.com/lu-zhengda/termcix/internal/provider"
	"github.com/lu-zhengda/termcix/internal/provider/providertest"
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
	f.c = f.reload(t)
	return f
}

// reload builds a fresh collection over the same store.
func (f *fixture) reload(t *testing.T) *Collection {
	t.Helper()
	c := New(f.db, f.remote, &sync.Mutex{}, Options{
		Sink:     f.sink,
		Username: "alice",
		Now:      func() time.Time { return day },
	})
	require.NoError(t, c.Load(f.ctx))
	return c
}

func TestAddStoresConversationAndFirstMessage(t *testing.T) {
	f := newFixture(t)

	conv, err := f.c.Compose(f.ctx, "bob", "Lunch", "Noon?")
	require.NoError(t, err)
	require.NotZero(t, conv.ID)

	msgs := f.c.Messages(conv.ID)
	require.Len(t, msgs, 1)
	assert.Equal(t, "alice", msgs[0].Author)
	assert.True(t, msgs[0].SendPending)
	assert.Equal(t, day, conv.Date)
	assert.Equal(t, 1, f.sink.Count(events.ConversationAdded))

	reloaded := f.reload(t)
	got, ok := reloaded.Conversation(conv.ID)
	require.True(t, ok)
	assert.Equal(t, "Lunch", got.Subject)
	require.Len(t, reloaded.Messages(conv.ID), 1)
}

func TestAddRejectsDuplicateRemoteID(t *testing.T) {
	f := newFixture(t)

	conv := &domain.Conversation{RemoteID: 7, Author: "bob", Subject: "One"}
	require.NoError(t, f.c.Add(f.ctx, conv, &domain.MailMessage{RemoteID: 70, Body: "hi"}))

	dup := &domain.Conversation{RemoteID: 7, Author: "bob", Subject: "Two"}
	err := f.c.Add(f.ctx, dup, &domain.MailMessage{RemoteID: 71, Body: "again"})
	require.ErrorIs(t, err, domain.ErrDuplicateEntity)
	assert.Len(t, f.c.All(), 1)
}

func TestSendConfirmAssignsServerNumbers(t *testing.T) {
	f := newFixture(t)

	conv, err := f.c.Compose(f.ctx, "bob", "Lunch", "Noon?")
	require.NoError(t, err)
	require.NoError(t, f.c.Sync(f.ctx))
	assert.Equal(t, 1, f.remote.CallCount("SendMail"))

	got, _ := f.c.Conversation(conv.ID)
	require.NotZero(t, got.RemoteID)
	msgs := f.c.Messages(conv.ID)
	require.Len(t, msgs, 1, "outbox merge must not duplicate the sent message")
	assert.False(t, msgs[0].SendPending)
	assert.NotZero(t, msgs[0].RemoteID)

	// A second pass has nothing to push.
	require.NoError(t, f.c.Sync(f.ctx))
	assert.Equal(t, 1, f.remote.CallCount("SendMail"))
	assert.Len(t, f.c.All(), 1)
}

func TestSendRefusedRecordsError(t *testing.T) {
	f := newFixture(t)

	conv, err := f.c.Compose(f.ctx, "", "Nobody", "Hello?")
	require.NoError(t, err)
	require.NoError(t, f.c.Sync(f.ctx))

	got, ok := f.c.Conversation(conv.ID)
	require.True(t, ok, "a refused message is kept")
	assert.True(t, got.LastError)
	assert.False(t, f.c.Messages(conv.ID)[0].SendPending)

	require.NoError(t, f.c.Sync(f.ctx))
	assert.Equal(t, 1, f.remote.CallCount("SendMail"))
}

func TestSendStaysPendingWhileOffline(t *testing.T) {
	f := newFixture(t)

	conv, err := f.c.Compose(f.ctx, "bob", "Lunch", "Noon?")
	require.NoError(t, err)

	f.remote.SetOffline(true)
	require.ErrorIs(t, f.c.Sync(f.ctx), provider.ErrOffline)
	assert.True(t, f.c.Messages(conv.ID)[0].SendPending)

	f.remote.SetOffline(false)
	require.NoError(t, f.c.Sync(f.ctx))
	assert.False(t, f.c.Messages(conv.ID)[0].SendPending)
}

func TestInboxMergeAndReply(t *testing.T) {
	f := newFixture(t)
	remoteID := f.remote.AddConversation(provider.ConversationEntry{
		Author:   "bob",
		Subject:  "Question",
		Unread:   true,
		Messages: []provider.MailEntry{{Author: "bob", Body: "Are you there?", Date: day}},
	}, false)

	require.NoError(t, f.c.Sync(f.ctx))
	all := f.c.All()
	require.Len(t, all, 1)
	assert.Equal(t, remoteID, all[0].RemoteID)
	assert.True(t, all[0].Unread)
	assert.Equal(t, 1, f.c.TotalUnread())

	_, err := f.c.Reply(f.ctx, all[0].ID, "Yes")
	require.NoError(t, err)
	require.NoError(t, f.c.Sync(f.ctx))

	msgs := f.c.Messages(all[0].ID)
	require.Len(t, msgs, 2)
	for _, m := range msgs {
		assert.False(t, m.SendPending)
		assert.NotZero(t, m.RemoteID)
	}
	server, _ := f.remote.Conversation(remoteID)
	assert.Len(t, server.Messages, 2)
}

func TestMarkReadSurvivesMerge(t *testing.T) {
	f := newFixture(t)
	remoteID := f.remote.AddConversation(provider.ConversationEntry{
		Author:   "bob",
		Subject:  "Question",
		Unread:   true,
		Messages: []provider.MailEntry{{Author: "bob", Body: "Hi", Date: day}},
	}, false)
	require.NoError(t, f.c.Sync(f.ctx))
	id := f.c.All()[0].ID

	require.NoError(t, f.c.MarkRead(f.ctx, id))
	got, _ := f.c.Conversation(id)
	assert.True(t, got.ReadPending)
	assert.Zero(t, f.c.TotalUnread())

	// The push fails, so the merge sees the server still unread.
	f.remote.Fail("MarkConversationRead", provider.ErrServer)
	require.NoError(t, f.c.Sync(f.ctx))
	got, _ = f.c.Conversation(id)
	assert.False(t, got.Unread)
	assert.True(t, got.ReadPending)

	require.NoError(t, f.c.Sync(f.ctx))
	got, _ = f.c.Conversation(id)
	assert.False(t, got.ReadPending)
	server, _ := f.remote.Conversation(remoteID)
	assert.False(t, server.Unread)
}

func TestDelete(t *testing.T) {
	f := newFixture(t)

	t.Run("unsent is removed at once", func(t *testing.T) {
		conv, err := f.c.Compose(f.ctx, "bob", "Draft", "...")
		require.NoError(t, err)
		require.NoError(t, f.c.Delete(f.ctx, conv.ID))
		_, ok := f.c.Conversation(conv.ID)
		assert.False(t, ok)
	})

	t.Run("sent is hidden until confirmed", func(t *testing.T) {
		remoteID := f.remote.AddConversation(provider.ConversationEntry{
			Author:   "bob",
			Subject:  "Old",
			Messages: []provider.MailEntry{{Author: "bob", Body: "x", Date: day}},
		}, false)
		require.NoError(t, f.c.Sync(f.ctx))
		id := f.c.All()[0].ID

		require.NoError(t, f.c.Delete(f.ctx, id))
		assert.Empty(t, f.c.All())
		got, ok := f.c.Conversation(id)
		require.True(t, ok)
		assert.True(t, got.DeletePending)

		require.NoError(t, f.c.Sync(f.ctx))
		_, ok = f.c.Conversation(id)
		assert.False(t, ok)
		_, ok = f.remote.Conversation(remoteID)
		assert.False(t, ok)
	})

	t.Run("missing", func(t *testing.T) {
		require.ErrorIs(t, f.c.Delete(f.ctx, 999), domain.ErrNotFound)
	})
}

func TestDeleteGoneOnServer(t *testing.T) {
	f := newFixture(t)
	f.remote.AddConversation(provider.ConversationEntry{
		Author:   "bob",
		Subject:  "Old",
		Messages: []provider.MailEntry{{Author: "bob", Body: "x", Date: day}},
	}, false)
	require.NoError(t, f.c.Sync(f.ctx))
	id := f.c.All()[0].ID

	require.NoError(t, f.c.Delete(f.ctx, id))
	f.remote.Fail("DeleteConversation", provider.ErrNotFound)
	require.NoError(t, f.c.CloseSync(f.ctx))
	_, ok := f.c.Conversation(id)
	assert.False(t, ok)
}

func TestUnreadTotals(t *testing.T) {
	f := newFixture(t)
	for i, subject := range []string{"a", "b", "c"} {
		conv := &domain.Conversation{RemoteID: 10 + i, Author: "bob", Subject: subject, Unread: true, Date: day}
		require.NoError(t, f.c.Add(f.ctx, conv, &domain.MailMessage{RemoteID: 100 + i, Body: subject}))
		if subject == "b" {
			require.NoError(t, f.c.SetPriority(f.ctx, conv.ID, true))
		}
		if subject == "c" {
			require.NoError(t, f.c.MarkRead(f.ctx, conv.ID))
		}
	}
	assert.Equal(t, 2, f.c.TotalUnread())
	assert.Equal(t, 1, f.c.TotalUnreadPriority())
}
