package profiles

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
	now    time.Time
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
		now:    day,
	}
	f.remote.AddProfile(provider.ProfileEntry{Username: "alice", FullName: "Alice Smith", Location: "Leeds", About: "Hi"})
	f.remote.AddProfile(provider.ProfileEntry{Username: "bob", FullName: "Bob Jones", LastOn: day.Add(-time.Hour)})
	f.c = f.collection(db)
	return f
}

func (f *fixture) collection(db *sqlite.DB) *Collection {
	return New(db, f.remote, &sync.Mutex{}, Options{
		Sink:     f.sink,
		Username: "alice",
		Now:      func() time.Time { return f.now },
		MaxAge:   time.Hour,
	})
}

func ptr[T any](v T) *T { return &v }

func TestFriendlyName(t *testing.T) {
	tests := []struct {
		p    domain.Profile
		want string
	}{
		{domain.Profile{Username: "bob", FullName: "Bob Jones"}, "Bob Jones (bob)"},
		{domain.Profile{Username: "bob"}, "bob"},
		{domain.Profile{Username: "bob", FullName: " BOB "}, "bob"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.p.FriendlyName())
	}
}

func TestRefreshCachesProfile(t *testing.T) {
	f := newFixture(t)

	p, err := f.c.Refresh(f.ctx, "Bob")
	require.NoError(t, err)
	assert.Equal(t, "Bob Jones", p.FullName)
	assert.True(t, p.Fetched.Equal(day))
	assert.Equal(t, 1, f.sink.Count(events.ProfileChanged))

	reloaded := f.collection(f.db)
	require.NoError(t, reloaded.Load(f.ctx))
	got, ok := reloaded.Get("bob")
	require.True(t, ok)
	assert.Equal(t, "Bob Jones (bob)", got.FriendlyName())

	_, err = f.c.Refresh(f.ctx, "nobody")
	require.ErrorIs(t, err, provider.ErrNoSuchUser)
	_, err = f.c.Refresh(f.ctx, " ")
	require.ErrorIs(t, err, ErrNoUsername)
}

func TestLookupUsesCacheUntilStale(t *testing.T) {
	f := newFixture(t)

	_, err := f.c.Lookup(f.ctx, "bob")
	require.NoError(t, err)
	_, err = f.c.Lookup(f.ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, 1, f.remote.CallCount("Profile"))

	f.now = day.Add(2 * time.Hour)
	f.remote.SetOffline(true)
	p, err := f.c.Lookup(f.ctx, "bob")
	require.NoError(t, err, "a stale copy is served while offline")
	assert.Equal(t, "Bob Jones", p.FullName)
	assert.Equal(t, 2, f.remote.CallCount("Profile"))

	_, err = f.c.Lookup(f.ctx, "carol")
	require.ErrorIs(t, err, provider.ErrOffline)
}

func TestUpdateOfflineThenSync(t *testing.T) {
	f := newFixture(t)
	_, err := f.c.Refresh(f.ctx, "alice")
	require.NoError(t, err)

	f.remote.SetOffline(true)
	p, err := f.c.Update(f.ctx, Edit{Location: ptr("York")})
	require.NoError(t, err)
	assert.True(t, p.Pending)
	assert.Equal(t, "York", p.Location)
	assert.Equal(t, "Alice Smith", p.FullName)

	require.ErrorIs(t, f.c.Sync(f.ctx), provider.ErrOffline)
	own, _ := f.c.Own()
	assert.True(t, own.Pending)

	// A refresh while pending keeps the local edit.
	f.remote.SetOffline(false)
	f.remote.AddProfile(provider.ProfileEntry{Username: "alice", FullName: "Alice Smith", Location: "Leeds", About: "Updated"})
	own, err = f.c.Refresh(f.ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "York", own.Location)
	assert.Equal(t, "Updated", own.About)

	require.NoError(t, f.c.Sync(f.ctx))
	own, _ = f.c.Own()
	assert.False(t, own.Pending)
	assert.Empty(t, own.PendingToken)
	server, _ := f.remote.ProfileOf("alice")
	assert.Equal(t, "York", server.Location)

	stored, err := f.db.ListProfiles(f.ctx)
	require.NoError(t, err)
	for _, sp := range stored {
		assert.False(t, sp.Pending, sp.Username)
	}
}

// racingProvider makes a second edit while the first push is in flight.
type racingProvider struct {
	*providertest.Fake
	during func()
}

func (p *racingProvider) UpdateProfile(ctx context.Context, u provider.ProfileUpdate) (provider.Receipt, error) {
	if p.during != nil {
		p.during()
		p.during = nil
	}
	return p.Fake.UpdateProfile(ctx, u)
}

func TestNewerEditSurvivesConfirmation(t *testing.T) {
	f := newFixture(t)
	remote := &racingProvider{Fake: f.remote}
	c := New(f.db, remote, &sync.Mutex{}, Options{Username: "alice", Now: func() time.Time { return day }})

	_, err := c.Update(f.ctx, Edit{FullName: ptr("Alice A")})
	require.NoError(t, err)
	remote.during = func() {
		_, err := c.Update(f.ctx, Edit{FullName: ptr("Alice B")})
		require.NoError(t, err)
	}

	require.NoError(t, c.CloseSync(f.ctx))
	own, _ := c.Own()
	assert.True(t, own.Pending, "the newer edit is still pending")
	assert.Equal(t, "Alice B", own.FullName)

	require.NoError(t, c.CloseSync(f.ctx))
	own, _ = c.Own()
	assert.False(t, own.Pending)
	server, _ := f.remote.ProfileOf("alice")
	assert.Equal(t, "Alice B", server.FullName)
}

func TestRefusedEditIsReplacedByServerCopy(t *testing.T) {
	f := newFixture(t)
	_, err := f.c.Refresh(f.ctx, "alice")
	require.NoError(t, err)
	_, err = f.c.Update(f.ctx, Edit{Sex: ptr("x"), Flags: ptr(3)})
	require.NoError(t, err)

	f.remote.Fail("UpdateProfile", provider.ErrNoSuchUser)
	require.NoError(t, f.c.Sync(f.ctx))

	own, _ := f.c.Own()
	assert.False(t, own.Pending)
	assert.Empty(t, own.Sex)
	assert.Zero(t, own.Flags)
	assert.False(t, own.Fetched.IsZero())
	assert.Equal(t, 2, f.remote.CallCount("Profile"))
}

func TestServerErrorKeepsEditPending(t *testing.T) {
	f := newFixture(t)
	_, err := f.c.Update(f.ctx, Edit{Location: ptr("York")})
	require.NoError(t, err)

	f.remote.Fail("UpdateProfile", provider.ErrServer)
	require.NoError(t, f.c.CloseSync(f.ctx))
	own, _ := f.c.Own()
	assert.True(t, own.Pending)
}

func TestWhoUpdatesLastOn(t *testing.T) {
	f := newFixture(t)
	_, err := f.c.Refresh(f.ctx, "bob")
	require.NoError(t, err)

	f.remote.AddWho(provider.WhoEntry{Username: "bob", LastOn: day})
	f.remote.AddWho(provider.WhoEntry{Username: "carol", LastOn: day})
	who, err := f.c.Who(f.ctx)
	require.NoError(t, err)
	assert.Len(t, who, 2)

	bob, _ := f.c.Get("bob")
	assert.True(t, bob.LastOn.Equal(day))
	_, ok := f.c.Get("carol")
	assert.False(t, ok, "Who does not create profiles")
}

func TestAddAndAll(t *testing.T) {
	f := newFixture(t)
	require.ErrorIs(t, f.c.Add(f.ctx, domain.Profile{}), ErrNoUsername)
	require.NoError(t, f.c.Add(f.ctx, domain.Profile{Username: "zed"}))
	require.NoError(t, f.c.Add(f.ctx, domain.Profile{Username: "Amy"}))

	var names []string
	for _, p := range f.c.All() {
		names = append(names, p.Username)
	}
	assert.Equal(t, []string{"Amy", "zed"}, names)
}
