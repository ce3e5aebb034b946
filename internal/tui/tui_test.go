package tui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/lu-zhengda/termcix/internal/domain"
	"github.com/lu-zhengda/termcix/internal/folders"
)

func testFolders() []domain.Folder {
	return []domain.Folder{
		{ID: 1, ParentID: domain.RootID, Name: "cix", Unread: 3},
		{ID: 2, ParentID: 1, Name: "general", Unread: 2},
		{ID: 3, ParentID: 1, Name: "chatter", Unread: 1, UnreadPriority: 1},
		{ID: 4, ParentID: domain.RootID, Name: "go"},
		{ID: 5, ParentID: 4, Name: "help"},
	}
}

func TestSidebarItemsCollapse(t *testing.T) {
	s := newSidebar()
	s.SetFolders(testFolders(), 4)

	items := s.items()
	if len(items) != 6 {
		t.Fatalf("got %d items, want 6", len(items))
	}
	if items[0].id != mailFolderID || items[0].unread != 4 {
		t.Errorf("first item = %+v, want the mail entry with 4 unread", items[0])
	}

	s.focused = true
	s.cursor = 1
	s, cmd := s.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd != nil {
		t.Error("enter on a forum should not open anything")
	}
	if got := len(s.items()); got != 4 {
		t.Errorf("got %d items after collapsing cix, want 4", got)
	}
}

func TestSidebarSelectTopic(t *testing.T) {
	s := newSidebar()
	s.SetFolders(testFolders(), 0)
	s.focused = true
	s.cursor = 2

	s, cmd := s.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd == nil {
		t.Fatal("expected a command")
	}
	msg, ok := cmd().(topicSelectedMsg)
	if !ok || msg.id != 2 {
		t.Errorf("got %#v, want topicSelectedMsg{id: 2}", cmd())
	}
	if s.active != 2 {
		t.Errorf("active = %d, want 2", s.active)
	}
}

func TestSidebarClampsCursor(t *testing.T) {
	s := newSidebar()
	s.SetFolders(testFolders(), 0)
	s.cursor = 5
	s.SetFolders(testFolders()[:2], 0)
	if s.cursor != 2 {
		t.Errorf("cursor = %d, want 2", s.cursor)
	}
}

func TestInboxKeepsSelection(t *testing.T) {
	lines := []folders.Line{
		{Message: domain.Message{ID: 10, RemoteID: 1, Body: "root"}},
		{Message: domain.Message{ID: 11, RemoteID: 2, CommentID: 1, Body: "reply"}, Level: 1},
	}
	var m inboxModel
	m.SetSize(80, 10)
	m.SetThread(lines)
	m.cursor = 1

	// A new message arrives above the selected one.
	grown := append([]folders.Line{{Message: domain.Message{ID: 9, RemoteID: 3, Body: "new"}}}, lines...)
	m.SetThread(grown)
	if got := m.SelectedID(); got != 11 {
		t.Errorf("selected %d after reload, want 11", got)
	}

	m.SetConversations([]domain.Conversation{{ID: 1, Author: "bob"}})
	if got := m.SelectedID(); got != 1 {
		t.Errorf("selected %d, want conversation 1", got)
	}
}

func TestInboxActions(t *testing.T) {
	var m inboxModel
	m.focused = true
	m.SetSize(80, 10)
	m.SetConversations([]domain.Conversation{{ID: 7, Author: "bob"}})

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'p'}})
	if cmd == nil {
		t.Fatal("expected a command")
	}
	got, ok := cmd().(messageActionMsg)
	if !ok || got.id != 7 || !got.mail || got.action != "priority" {
		t.Errorf("got %#v", cmd())
	}
}

func TestComposerDraft(t *testing.T) {
	c := newComposer()
	parent := &domain.Message{ID: 5, TopicID: 2, RemoteID: 40, Author: "alice", Body: "line one\nline two\n"}
	c.ReplyTo(parent, "cix/general")

	if !c.IsVisible() {
		t.Fatal("composer should be visible")
	}
	d := c.Draft()
	if d.mode != modeReply || d.topicID != 2 || d.replyTo != 5 {
		t.Errorf("got draft %+v", d)
	}
	if d.body != "> line one\n> line two\n\n" {
		t.Errorf("got body %q", d.body)
	}

	c.NewMail()
	c.toInput.SetValue(" bob ")
	c.subjectInput.SetValue("Hello")
	d = c.Draft()
	if d.mode != modeMail || d.to != "bob" || d.subject != "Hello" || d.body != "" {
		t.Errorf("got draft %+v", d)
	}
}

func TestRenderMessage(t *testing.T) {
	m := &domain.Message{RemoteID: 12, CommentID: 9, Author: "alice", Body: "Hello there", Starred: true}
	out := renderMessage(m, "cix/general", 40)
	for _, want := range []string{"cix/general:12", "alice", "Hello there", "starred"} {
		if !strings.Contains(out, want) {
			t.Errorf("rendered message missing %q:\n%s", want, out)
		}
	}

	m.Withdrawn = true
	if out := renderMessage(m, "cix/general", 40); strings.Contains(out, "Hello there") {
		t.Error("withdrawn message body should not be shown")
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"hello", 10, "hello"},
		{"hello world", 5, "hell…"},
		{"hello", 0, ""},
		{"hello", 1, "h"},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.n); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}

func TestReaderShowsAuthorProfile(t *testing.T) {
	r := newReader()
	r.SetSize(60, 20)
	r.focused = true
	r.ShowMessage(domain.Message{ID: 5, RemoteID: 12, Author: "bob", Body: "Hello there"}, "cix/general")

	_, cmd := r.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'a'}})
	if cmd == nil {
		t.Fatal("expected a command")
	}
	if got, ok := cmd().(authorMsg); !ok || got.username != "bob" {
		t.Errorf("got %#v, want authorMsg{username: bob}", cmd())
	}

	r.ShowProfile(domain.Profile{Username: "carol", FullName: "Carol King"})
	if strings.Contains(r.View(), "Carol King") {
		t.Error("a profile for another user should be ignored")
	}

	r.ShowProfile(domain.Profile{Username: "Bob", FullName: "Bob Jones", Location: "Leeds"})
	out := r.View()
	for _, want := range []string{"Bob Jones (Bob)", "Leeds", "Hello there"} {
		if !strings.Contains(out, want) {
			t.Errorf("reader missing %q:\n%s", want, out)
		}
	}

	r.ShowMessage(domain.Message{ID: 6, RemoteID: 13, Author: "bob", Body: "Second"}, "cix/general")
	if strings.Contains(r.View(), "Leeds") {
		t.Error("opening another message should drop the profile")
	}
}
