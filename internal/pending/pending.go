// Package pending drives the push half of the offline-first protocol.
//
// A local mutation sets a pending flag and a fresh confirmation token on the
// entity and persists it at once. A reconciliation pass collects pending
// entities under the cache lock, pushes each one without the lock, and
// re-acquires the lock to confirm or roll back. A confirmation only clears
// the flag when the token echoed by the server is still the entity's
// current token, so a newer local intent made while the push was in flight
// stays pending and is pushed on the next pass.
package pending

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/lu-zhengda/termcix/internal/provider"
)

// Handler adapts one entity kind to the protocol. Pending, Confirm and
// Rollback run with the cache lock held; Push runs without it. Items are
// snapshots, so handlers must look the live entity up again in Confirm and
// Rollback.
type Handler[T any] interface {
	Pending(ctx context.Context) ([]T, error)
	Push(ctx context.Context, item T) (provider.Receipt, error)
	Confirm(ctx context.Context, item T, receipt provider.Receipt) error
	Rollback(ctx context.Context, item T, cause error) error
}

// Funcs adapts four functions to a Handler.
type Funcs[T any] struct {
	PendingFunc  func(ctx context.Context) ([]T, error)
	PushFunc     func(ctx context.Context, item T) (provider.Receipt, error)
	ConfirmFunc  func(ctx context.Context, item T, receipt provider.Receipt) error
	RollbackFunc func(ctx context.Context, item T, cause error) error
}

func (f Funcs[T]) Pending(ctx context.Context) ([]T, error) { return f.PendingFunc(ctx) }

func (f Funcs[T]) Push(ctx context.Context, item T) (provider.Receipt, error) {
	return f.PushFunc(ctx, item)
}

func (f Funcs[T]) Confirm(ctx context.Context, item T, receipt provider.Receipt) error {
	return f.ConfirmFunc(ctx, item, receipt)
}

func (f Funcs[T]) Rollback(ctx context.Context, item T, cause error) error {
	return f.RollbackFunc(ctx, item, cause)
}

// Result summarizes one pass over a handler.
type Result struct {
	Pushed     int
	Confirmed  int
	RolledBack int
	Failed     int
}

// NewToken returns a fresh confirmation token.
func NewToken() string {
	return uuid.NewString()
}

// Matches reports whether a receipt confirms the entity's current intent.
func Matches(current string, receipt provider.Receipt) bool {
	return current != "" && receipt.Token == current
}

// Run pushes every pending item of one kind. It stops early and returns
// the error when the service is offline or busy or ctx is done; the items
// not yet pushed keep their flags. Server errors leave the item pending and
// the pass moves on. Terminal refusals are rolled back.
func Run[T any](ctx context.Context, mu sync.Locker, kind string, h Handler[T]) (Result, error) {
	log := logrus.WithField("pkg", "pending").WithField("kind", kind)

	var res Result

	mu.Lock()
	items, err := h.Pending(ctx)
	mu.Unlock()
	if err != nil {
		return res, err
	}

	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		receipt, err := h.Push(ctx, item)
		res.Pushed++

		switch {
		case err == nil:
			mu.Lock()
			err = h.Confirm(ctx, item, receipt)
			mu.Unlock()
			if err != nil {
				return res, err
			}
			res.Confirmed++

		case provider.IsTerminal(err):
			log.WithError(err).Warn("Remote refused pending change, rolling back")
			mu.Lock()
			rbErr := h.Rollback(ctx, item, err)
			mu.Unlock()
			if rbErr != nil {
				return res, rbErr
			}
			res.RolledBack++

		case provider.IsRetryable(err), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return res, err

		default:
			log.WithError(err).Warn("Failed to push pending change, will retry")
			res.Failed++
		}
	}

	if res.Pushed > 0 {
		log.WithField("pushed", res.Pushed).
			WithField("confirmed", res.Confirmed).
			WithField("rolled-back", res.RolledBack).
			Debug("Pending pass done")
	}
	return res, nil
}
