package provider

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
		terminal  bool
	}{
		{"offline", ErrOffline, true, false},
		{"wrapped busy", fmt.Errorf("list forums: %w", ErrBusy), true, false},
		{"server", ErrServer, false, false},
		{"not found", ErrNotFound, false, true},
		{"no such forum", fmt.Errorf("join: %w", ErrNoSuchForum), false, true},
		{"resign failed", ErrResignFailed, false, true},
		{"canceled", context.Canceled, false, false},
		{"other", errors.New("boom"), false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.retryable {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.retryable)
			}
			if got := IsTerminal(tt.err); got != tt.terminal {
				t.Errorf("IsTerminal() = %v, want %v", got, tt.terminal)
			}
		})
	}
}
