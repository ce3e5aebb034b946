package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/lu-zhengda/termcix/internal/domain"
)

// mailFolderID stands for the mail entry in the sidebar. Real folder IDs
// are positive.
const mailFolderID int64 = 0

// topicSelectedMsg is sent when the user opens a topic or the mail entry.
type topicSelectedMsg struct {
	id int64
}

type sidebarItem struct {
	id             int64
	label          string
	forum          bool
	unread         int
	unreadPriority int
}

// sidebarModel lists the mail entry followed by forums and their topics.
// Enter on a forum collapses or expands it.
type sidebarModel struct {
	folders   []domain.Folder
	mail      int
	collapsed map[int64]bool
	cursor    int
	active    int64
	username  string
	width     int
	height    int
	focused   bool
}

func newSidebar() sidebarModel {
	return sidebarModel{collapsed: make(map[int64]bool), active: -1}
}

// SetFolders replaces the folder tree. folders must be in tree order.
func (s *sidebarModel) SetFolders(folders []domain.Folder, mailUnread int) {
	s.folders = folders
	s.mail = mailUnread
	if n := len(s.items()); s.cursor >= n {
		s.cursor = max(n-1, 0)
	}
}

func (s *sidebarModel) SetSize(w, h int) {
	s.width = w
	s.height = h
}

func (s sidebarModel) Update(msg tea.Msg) (sidebarModel, tea.Cmd) {
	if !s.focused {
		return s, nil
	}
	items := s.items()
	if len(items) == 0 {
		return s, nil
	}

	if msg, ok := msg.(tea.KeyMsg); ok {
		switch {
		case key.Matches(msg, keys.Up):
			s.cursor--
			if s.cursor < 0 {
				s.cursor = len(items) - 1
			}
		case key.Matches(msg, keys.Down):
			s.cursor++
			if s.cursor >= len(items) {
				s.cursor = 0
			}
		case key.Matches(msg, keys.Enter):
			it := items[s.cursor]
			if it.forum {
				s.collapsed[it.id] = !s.collapsed[it.id]
				return s, nil
			}
			s.active = it.id
			return s, func() tea.Msg { return topicSelectedMsg{id: it.id} }
		}
	}
	return s, nil
}

func (s sidebarModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("termcix"))
	b.WriteString("\n")
	if s.username != "" {
		b.WriteString(mutedTextStyle.Render(truncate(s.username, max(s.width, 10))))
	}
	b.WriteString("\n")

	items := s.items()
	start := 0
	if rows := s.height - 2; rows > 0 && s.cursor >= rows {
		start = s.cursor - rows + 1
	}
	for i := start; i < len(items); i++ {
		b.WriteString(s.renderLine(items[i], i))
		b.WriteString("\n")
	}
	if len(s.folders) == 0 {
		b.WriteString(mutedTextStyle.Render("No forums joined yet"))
	}
	return b.String()
}

func (s sidebarModel) renderLine(it sidebarItem, idx int) string {
	prefix := "  "
	switch {
	case it.forum && s.collapsed[it.id]:
		prefix = "▸ "
	case it.forum:
		prefix = "▾ "
	case it.id == s.active:
		prefix = "▶ "
	}
	if !it.forum && it.id != mailFolderID {
		prefix = "  " + prefix
	}

	count := ""
	if it.unread > 0 {
		count = fmt.Sprintf(" %d", it.unread)
	}
	width := max(s.width, 10)
	name := truncate(it.label, width-lipgloss.Width(prefix)-len(count))
	line := prefix + name
	if it.unread > 0 {
		line = unreadStyle.Render(line)
	}
	if it.unreadPriority > 0 {
		count = priorityStyle.Render(count)
	}
	gap := width - lipgloss.Width(line) - lipgloss.Width(count)
	line += strings.Repeat(" ", max(gap, 0)) + count

	if s.focused && idx == s.cursor {
		return selectedStyle.Render(line)
	}
	return line
}

// items flattens the tree into navigable rows, skipping topics of
// collapsed forums.
func (s sidebarModel) items() []sidebarItem {
	out := []sidebarItem{{id: mailFolderID, label: "Mail", unread: s.mail}}
	for _, f := range s.folders {
		if !f.IsTopLevel() && s.collapsed[f.ParentID] {
			continue
		}
		label := f.Title()
		if f.Has(domain.FolderResigned) {
			label += " (resigned)"
		}
		out = append(out, sidebarItem{
			id:             f.ID,
			label:          label,
			forum:          f.IsTopLevel(),
			unread:         f.Unread,
			unreadPriority: f.UnreadPriority,
		})
	}
	return out
}
