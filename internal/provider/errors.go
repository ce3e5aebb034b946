package provider

import "errors"

var (
	// ErrOffline means the service could not be reached. The pass is
	// deferred and pending state kept.
	ErrOffline = errors.New("service offline")
	// ErrServer is a server-side failure. The resource is retried on the
	// next pass.
	ErrServer = errors.New("server error")
	// ErrBusy means the client is rate limited.
	ErrBusy = errors.New("service busy")

	ErrNotFound     = errors.New("not found")
	ErrNoSuchForum  = errors.New("no such forum")
	ErrNoSuchUser   = errors.New("no such user")
	ErrJoinFailed   = errors.New("join failed")
	ErrResignFailed = errors.New("resign failed")
)

// IsRetryable reports whether err should end the current pass and be
// retried on the next one.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrOffline) || errors.Is(err, ErrBusy)
}

// IsTerminal reports whether err is a final answer from the server: the
// pending change can never succeed and must be rolled back locally.
func IsTerminal(err error) bool {
	return IsGone(err) || errors.Is(err, ErrJoinFailed) || errors.Is(err, ErrResignFailed)
}

// IsGone reports whether err says the remote entity no longer exists.
func IsGone(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrNoSuchForum) || errors.Is(err, ErrNoSuchUser)
}
