package pending

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lu-zhengda/termcix/internal/provider"
)

type item struct {
	id    int
	token string
}

type fakeHandler struct {
	items      []item
	pushErr    map[int]error
	current    map[int]string
	confirmed  []int
	rolledBack []int
	pushed     []int
	locked     *bool
}

func (h *fakeHandler) Pending(context.Context) ([]item, error) {
	if !*h.locked {
		return nil, errors.New("Pending called without lock")
	}
	return h.items, nil
}

func (h *fakeHandler) Push(_ context.Context, it item) (provider.Receipt, error) {
	if *h.locked {
		return provider.Receipt{}, errors.New("Push called with lock held")
	}
	h.pushed = append(h.pushed, it.id)
	if err := h.pushErr[it.id]; err != nil {
		return provider.Receipt{}, err
	}
	return provider.Receipt{Token: it.token}, nil
}

func (h *fakeHandler) Confirm(_ context.Context, it item, r provider.Receipt) error {
	if Matches(h.current[it.id], r) {
		h.confirmed = append(h.confirmed, it.id)
	}
	return nil
}

func (h *fakeHandler) Rollback(_ context.Context, it item, _ error) error {
	h.rolledBack = append(h.rolledBack, it.id)
	return nil
}

type trackingLock struct {
	mu     sync.Mutex
	locked bool
}

func (l *trackingLock) Lock()   { l.mu.Lock(); l.locked = true }
func (l *trackingLock) Unlock() { l.locked = false; l.mu.Unlock() }

func newHandler(lock *trackingLock, n int) *fakeHandler {
	h := &fakeHandler{pushErr: map[int]error{}, current: map[int]string{}, locked: &lock.locked}
	for i := 1; i <= n; i++ {
		tok := fmt.Sprintf("t%d", i)
		h.items = append(h.items, item{id: i, token: tok})
		h.current[i] = tok
	}
	return h
}

func TestRun_ConfirmsAll(t *testing.T) {
	lock := &trackingLock{}
	h := newHandler(lock, 3)

	res, err := Run[item](context.Background(), lock, "test", h)
	require.NoError(t, err)
	require.Equal(t, Result{Pushed: 3, Confirmed: 3}, res)
	require.Equal(t, []int{1, 2, 3}, h.confirmed)
}

func TestRun_NewerIntentStaysPending(t *testing.T) {
	lock := &trackingLock{}
	h := newHandler(lock, 1)
	// The user changed the entity again while the push was in flight.
	h.current[1] = "newer"

	_, err := Run[item](context.Background(), lock, "test", h)
	require.NoError(t, err)
	require.Empty(t, h.confirmed)
}

func TestRun_OfflineStopsPass(t *testing.T) {
	lock := &trackingLock{}
	h := newHandler(lock, 3)
	h.pushErr[2] = fmt.Errorf("mark read: %w", provider.ErrOffline)

	res, err := Run[item](context.Background(), lock, "test", h)
	require.ErrorIs(t, err, provider.ErrOffline)
	require.Equal(t, []int{1, 2}, h.pushed)
	require.Equal(t, 1, res.Confirmed)
}

func TestRun_ServerErrorContinues(t *testing.T) {
	lock := &trackingLock{}
	h := newHandler(lock, 3)
	h.pushErr[1] = provider.ErrServer

	res, err := Run[item](context.Background(), lock, "test", h)
	require.NoError(t, err)
	require.Equal(t, 1, res.Failed)
	require.Equal(t, []int{2, 3}, h.confirmed)
}

func TestRun_TerminalRollsBack(t *testing.T) {
	lock := &trackingLock{}
	h := newHandler(lock, 2)
	h.pushErr[1] = provider.ErrNoSuchForum

	res, err := Run[item](context.Background(), lock, "test", h)
	require.NoError(t, err)
	require.Equal(t, []int{1}, h.rolledBack)
	require.Equal(t, 1, res.RolledBack)
	require.Equal(t, []int{2}, h.confirmed)
}

func TestRun_CanceledContext(t *testing.T) {
	lock := &trackingLock{}
	h := newHandler(lock, 2)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Run[item](ctx, lock, "test", h)
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, h.pushed)
}

func TestMatches(t *testing.T) {
	require.True(t, Matches("a", provider.Receipt{Token: "a"}))
	require.False(t, Matches("a", provider.Receipt{Token: "b"}))
	require.False(t, Matches("", provider.Receipt{}))
}
