package domain

import "testing"

func TestFolder_Flags(t *testing.T) {
	f := &Folder{ParentID: RootID}
	if !f.IsTopLevel() {
		t.Error("expected IsTopLevel() = true for parent -1")
	}
	f.Set(FolderResigned, true)
	f.Set(FolderReadOnly, true)
	if !f.Has(FolderResigned) || !f.Has(FolderReadOnly) {
		t.Errorf("flags = %b, want resigned and read-only", f.Flags)
	}
	f.Set(FolderResigned, false)
	if f.Has(FolderResigned) {
		t.Error("expected resigned flag cleared")
	}
}

func TestFolder_Title(t *testing.T) {
	tests := []struct {
		name   string
		folder Folder
		want   string
	}{
		{"display name", Folder{Name: "cix", DisplayName: "CIX"}, "CIX"},
		{"name only", Folder{Name: "cix"}, "cix"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.folder.Title(); got != tt.want {
				t.Errorf("Title() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMessage_Subject(t *testing.T) {
	tests := []struct {
		body string
		want string
	}{
		{"hello\nworld", "hello"},
		{"\n\n  first  \nsecond", "first"},
		{"", ""},
	}
	for _, tt := range tests {
		m := &Message{Body: tt.body}
		if got := m.Subject(); got != tt.want {
			t.Errorf("Subject(%q) = %q, want %q", tt.body, got, tt.want)
		}
	}
}

func TestMessage_Counts(t *testing.T) {
	m := &Message{Unread: true, Priority: true}
	if !m.CountsUnread() || !m.CountsPriority() {
		t.Error("expected unread priority message to count in both totals")
	}
	m.Ignored = true
	if m.CountsUnread() || m.CountsPriority() {
		t.Error("expected ignored message to be excluded from totals")
	}
}

func TestMessage_IsMine(t *testing.T) {
	m := &Message{Author: "Bob"}
	if !m.IsMine("bob") {
		t.Error("expected IsMine to be case-insensitive")
	}
	if m.IsMine("") {
		t.Error("expected IsMine(\"\") = false")
	}
}

func TestAction_Has(t *testing.T) {
	a := ActionClear | ActionPriority
	if !a.Has(ActionClear) || !a.Has(ActionPriority) || a.Has(ActionIgnored) {
		t.Errorf("Action(%#x).Has mismatch", a)
	}
}
