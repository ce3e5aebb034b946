package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/lu-zhengda/termcix/internal/domain"
)

func TestSaveProfile_UpsertByUsername(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	lastOn := time.Date(2025, 2, 3, 9, 30, 0, 0, time.UTC)
	p := &domain.Profile{Username: "alice", FullName: "Alice Smith", Location: "Leeds", LastOn: lastOn}
	if err := db.SaveProfile(ctx, p); err != nil {
		t.Fatalf("SaveProfile() error: %v", err)
	}
	id := p.ID

	update := &domain.Profile{Username: "ALICE", FullName: "Alice Jones", LastOn: lastOn, Pending: true, PendingToken: "t1"}
	if err := db.SaveProfile(ctx, update); err != nil {
		t.Fatalf("SaveProfile() update error: %v", err)
	}
	if update.ID != id {
		t.Errorf("ID = %d, want %d (same row)", update.ID, id)
	}

	profiles, err := db.ListProfiles(ctx)
	if err != nil {
		t.Fatalf("ListProfiles() error: %v", err)
	}
	if len(profiles) != 1 {
		t.Fatalf("ListProfiles() = %d, want 1", len(profiles))
	}
	got := profiles[0]
	if got.Username != "alice" {
		t.Errorf("Username = %q, want the first spelling kept", got.Username)
	}
	if got.FullName != "Alice Jones" || got.Location != "" || !got.Pending || got.PendingToken != "t1" {
		t.Errorf("profile = %+v", got)
	}
	if !got.LastOn.Equal(lastOn) {
		t.Errorf("LastOn = %v, want %v", got.LastOn, lastOn)
	}
	if !got.FirstOn.IsZero() || !got.Fetched.IsZero() {
		t.Errorf("unset times came back as %v and %v", got.FirstOn, got.Fetched)
	}
}
