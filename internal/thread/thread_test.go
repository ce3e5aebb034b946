package thread

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lu-zhengda/termcix/internal/domain"
)

func msg(id int64, remote, comment int) *domain.Message {
	return &domain.Message{ID: id, RemoteID: remote, CommentID: comment, TopicID: 2, Author: "alice", Body: "body"}
}

func ids(msgs []*domain.Message) []int64 {
	out := make([]int64, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.ID)
	}
	return out
}

func walk(c *Collection) ([]int64, []int) {
	var order []int64
	var levels []int
	for m, level := range c.Threaded() {
		order = append(order, m.ID)
		levels = append(levels, level)
	}
	return order, levels
}

func add(t *testing.T, c *Collection, msgs ...*domain.Message) {
	t.Helper()
	for _, m := range msgs {
		_, err := c.Add(m)
		require.NoError(t, err)
	}
}

func TestThreadedOrder(t *testing.T) {
	c := New()
	add(t, c,
		msg(1, 100, 0),
		msg(2, 101, 100),
		msg(3, 102, 101),
		msg(4, 103, 100),
		msg(5, 104, 0),
	)

	order, levels := walk(c)
	require.Equal(t, []int64{1, 2, 3, 4, 5}, order)
	require.Equal(t, []int{0, 1, 2, 1, 0}, levels)
	require.Equal(t, []int64{1, 5}, ids(c.Roots()))
	require.Equal(t, []int64{2, 4}, ids(c.ChildrenOf(1)))
	require.Equal(t, 2, c.Level(3))
	require.Equal(t, int64(1), c.Root(3).ID)
	require.Equal(t, int64(2), c.Parent(3).ID)
	require.Nil(t, c.Parent(1))
}

func TestThreadedIsRestartableAndStable(t *testing.T) {
	c := New()
	add(t, c, msg(3, 12, 10), msg(1, 10, 0), msg(2, 11, 10), msg(4, 13, 11))

	first, _ := walk(c)
	second, _ := walk(c)
	require.Equal(t, first, second)
	require.Equal(t, []int64{1, 2, 4, 3}, first)
}

func TestThreadedStopsEarly(t *testing.T) {
	c := New()
	add(t, c, msg(1, 10, 0), msg(2, 11, 10), msg(3, 12, 0))

	var seen []int64
	for m := range c.Threaded() {
		seen = append(seen, m.ID)
		if len(seen) == 2 {
			break
		}
	}
	require.Equal(t, []int64{1, 2}, seen)
}

func TestAddIsIdempotent(t *testing.T) {
	c := New()
	m := msg(1, 10, 0)
	changed, err := c.Add(m)
	require.NoError(t, err)
	require.True(t, changed)

	changed, err = c.Add(msg(1, 10, 0))
	require.NoError(t, err)
	require.False(t, changed)
	require.Equal(t, 1, c.Len())
	require.Same(t, m, c.Get(1))
}

func TestAddUpdatesInPlace(t *testing.T) {
	c := New()
	m := msg(1, 10, 0)
	add(t, c, m)

	update := msg(1, 10, 0)
	update.Body = "edited"
	changed, err := c.Add(update)
	require.NoError(t, err)
	require.False(t, changed)
	require.Equal(t, "edited", m.Body)
}

func TestAddRejectsUnsaved(t *testing.T) {
	c := New()
	_, err := c.Add(msg(0, 10, 0))
	require.ErrorIs(t, err, domain.ErrNotPersisted)
}

func TestOutOfOrderParentRepairs(t *testing.T) {
	c := New()
	add(t, c, msg(5, 21, 20))
	require.True(t, c.IsPseudoRoot(5))
	require.Equal(t, []int64{5}, ids(c.Roots()))

	add(t, c, msg(4, 20, 0))
	require.False(t, c.IsPseudoRoot(5))
	require.Equal(t, []int64{4}, ids(c.Roots()))
	require.Equal(t, []int64{5}, ids(c.ChildrenOf(4)))
	require.Equal(t, 0, c.Repair())
}

func TestRepairAfterBatch(t *testing.T) {
	msgs := []domain.Message{
		{ID: 3, RemoteID: 12, CommentID: 11},
		{ID: 2, RemoteID: 11, CommentID: 10},
		{ID: 1, RemoteID: 10},
	}
	c, err := FromMessages(msgs)
	require.NoError(t, err)
	require.Empty(t, c.PseudoRoots())

	order, levels := walk(c)
	require.Equal(t, []int64{1, 2, 3}, order)
	require.Equal(t, []int{0, 1, 2}, levels)
}

func TestDeleteOrphansChildren(t *testing.T) {
	c := New()
	add(t, c, msg(1, 10, 0), msg(2, 11, 10), msg(3, 12, 10))

	require.True(t, c.Delete(1))
	require.Nil(t, c.Get(1))
	require.Nil(t, c.ByRemoteID(10))
	require.Equal(t, []int64{2, 3}, ids(c.Roots()))
	require.Equal(t, []int64{2, 3}, c.PseudoRoots())

	// The parent coming back re-attaches its replies.
	add(t, c, msg(6, 10, 0))
	require.Equal(t, []int64{2, 3}, ids(c.ChildrenOf(6)))
	require.Empty(t, c.PseudoRoots())
}

func TestWithdrawKeepsChildren(t *testing.T) {
	c := New()
	parent := msg(10, 500, 0)
	add(t, c, parent, msg(11, 501, 500), msg(12, 502, 500))

	parent.Body = ""
	parent.Withdrawn = true
	parent.WithdrawPending = true
	changed, err := c.Add(parent)
	require.NoError(t, err)
	require.False(t, changed)

	require.Equal(t, []int64{11, 12}, ids(c.ChildrenOf(10)))
	require.Empty(t, c.Get(10).Body)
	require.True(t, c.Get(10).WithdrawPending)
}

func TestConfirmMovesIntoRemoteSpace(t *testing.T) {
	c := New()
	draft := &domain.Message{ID: 7, CommentID: 10, PostPending: true}
	add(t, c, msg(1, 10, 0), draft)
	require.Equal(t, []int64{7}, ids(c.ChildrenOf(1)))

	// A reply to the draft that the server delivered before we confirmed.
	add(t, c, msg(8, 31, 30))
	require.True(t, c.IsPseudoRoot(8))

	require.True(t, c.Confirm(7, 30))
	require.Same(t, draft, c.ByRemoteID(30))
	require.Equal(t, []int64{8}, ids(c.ChildrenOf(7)))
	require.Empty(t, c.PseudoRoots())
}

func TestCycleIsBroken(t *testing.T) {
	c := New()
	add(t, c, msg(1, 10, 11), msg(2, 11, 10))

	order, _ := walk(c)
	require.ElementsMatch(t, []int64{1, 2}, order)
	require.Len(t, c.Roots(), 1)
}

func TestSelfReferenceIsRoot(t *testing.T) {
	c := New()
	add(t, c, msg(1, 10, 10))
	require.Equal(t, []int64{1}, ids(c.Roots()))
	require.False(t, c.IsPseudoRoot(1))
}

func TestUnreadCounts(t *testing.T) {
	c := New()
	root := msg(1, 10, 0)
	a := msg(2, 11, 10)
	a.Unread = true
	b := msg(3, 12, 11)
	b.Unread = true
	b.Priority = true
	ignored := msg(4, 13, 10)
	ignored.Unread = true
	ignored.Ignored = true
	add(t, c, root, a, b, ignored)

	require.Equal(t, 2, c.UnreadChildren(1))
	require.Equal(t, 1, c.UnreadChildren(2))
	unread, priority := c.Unread()
	require.Equal(t, 2, unread)
	require.Equal(t, 1, priority)

	var sub []int64
	for m := range c.Subtree(2) {
		sub = append(sub, m.ID)
	}
	require.Equal(t, []int64{2, 3}, sub)
}

func TestMessagesInIDOrder(t *testing.T) {
	c := New()
	add(t, c, msg(3, 12, 0), msg(1, 10, 0), msg(2, 11, 0))
	require.Equal(t, []int64{1, 2, 3}, ids(c.Messages()))
	require.Equal(t, []int64{1, 2, 3}, ids(c.Ordered()))
}
