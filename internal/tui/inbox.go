package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/lu-zhengda/termcix/internal/domain"
	"github.com/lu-zhengda/termcix/internal/folders"
)

// Messages emitted by inboxModel.

type messageSelectedMsg struct {
	id int64
}

type conversationSelectedMsg struct {
	id int64
}

// messageActionMsg asks the root model to change a message, or a
// conversation when mail is set.
type messageActionMsg struct {
	id     int64
	mail   bool
	action string
}

// inboxModel lists the messages of a topic, threaded or flat, or the
// mail conversations.
type inboxModel struct {
	lines    []folders.Line
	convs    []domain.Conversation
	mail     bool
	cursor   int
	offset   int
	viewMode viewMode
	width    int
	height   int
	focused  bool
}

func newInbox() inboxModel {
	return inboxModel{viewMode: viewThread}
}

func (m inboxModel) Update(msg tea.Msg) (inboxModel, tea.Cmd) {
	if !m.focused {
		return m, nil
	}

	if msg, ok := msg.(tea.KeyMsg); ok {
		switch {
		case key.Matches(msg, keys.Up):
			if m.cursor > 0 {
				m.cursor--
				m.adjustScroll()
			}
		case key.Matches(msg, keys.Down):
			if m.cursor < m.itemCount()-1 {
				m.cursor++
				m.adjustScroll()
			}
		case key.Matches(msg, keys.Enter):
			return m, m.selectItem()
		case key.Matches(msg, keys.Star):
			return m, m.actionCmd("star")
		case key.Matches(msg, keys.Unread):
			return m, m.actionCmd("unread")
		case key.Matches(msg, keys.Priority):
			return m, m.actionCmd("priority")
		case key.Matches(msg, keys.Ignore):
			return m, m.actionCmd("ignore")
		case key.Matches(msg, keys.ThreadRead):
			return m, m.actionCmd("thread-read")
		case key.Matches(msg, keys.Withdraw):
			return m, m.actionCmd("withdraw")
		}
	}
	return m, nil
}

func (m inboxModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}
	count := m.itemCount()
	if count == 0 {
		if m.mail {
			return mutedTextStyle.Render("No mail")
		}
		return mutedTextStyle.Render("No messages")
	}

	var b strings.Builder
	end := min(m.offset+m.visibleRows(), count)
	for i := m.offset; i < end; i++ {
		if i > m.offset {
			b.WriteByte('\n')
		}
		line := m.renderRow(i)
		if i == m.cursor && m.focused {
			line = selectedStyle.Width(m.width).Render(line)
		}
		b.WriteString(line)
	}
	return b.String()
}

// SetThread shows the lines of a topic. The cursor stays on the same
// message when it is still present.
func (m *inboxModel) SetThread(lines []folders.Line) {
	keep := m.SelectedID()
	m.mail = false
	m.convs = nil
	m.lines = lines
	m.restoreCursor(keep)
}

// SetConversations shows the mail conversations.
func (m *inboxModel) SetConversations(convs []domain.Conversation) {
	keep := m.SelectedID()
	m.mail = true
	m.lines = nil
	m.convs = convs
	m.restoreCursor(keep)
}

func (m *inboxModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	m.adjustScroll()
}

func (m *inboxModel) SetViewMode(vm viewMode) {
	m.viewMode = vm
	m.cursor = 0
	m.offset = 0
}

func (m *inboxModel) Reset() {
	m.cursor = 0
	m.offset = 0
}

// SelectedID returns the local ID of the highlighted message or
// conversation, or 0.
func (m inboxModel) SelectedID() int64 {
	if m.mail {
		if m.cursor < len(m.convs) {
			return m.convs[m.cursor].ID
		}
		return 0
	}
	if m.cursor < len(m.lines) {
		return m.lines[m.cursor].Message.ID
	}
	return 0
}

// --- internal helpers ---

func (m inboxModel) itemCount() int {
	if m.mail {
		return len(m.convs)
	}
	return len(m.lines)
}

func (m inboxModel) visibleRows() int {
	return max(m.height, 1)
}

func (m *inboxModel) adjustScroll() {
	visible := m.visibleRows()
	if m.cursor < m.offset {
		m.offset = m.cursor
	}
	if m.cursor >= m.offset+visible {
		m.offset = m.cursor - visible + 1
	}
}

func (m *inboxModel) restoreCursor(id int64) {
	for i := 0; i < m.itemCount(); i++ {
		m.cursor = i
		if m.SelectedID() == id {
			m.adjustScroll()
			return
		}
	}
	m.cursor = 0
	m.offset = 0
}

func (m inboxModel) selectItem() tea.Cmd {
	id := m.SelectedID()
	if id == 0 {
		return nil
	}
	if m.mail {
		return func() tea.Msg { return conversationSelectedMsg{id: id} }
	}
	return func() tea.Msg { return messageSelectedMsg{id: id} }
}

func (m inboxModel) actionCmd(action string) tea.Cmd {
	id := m.SelectedID()
	if id == 0 {
		return nil
	}
	mail := m.mail
	return func() tea.Msg { return messageActionMsg{id: id, mail: mail, action: action} }
}

func (m inboxModel) renderRow(idx int) string {
	if m.mail {
		return m.renderConversationRow(m.convs[idx])
	}
	l := m.lines[idx]
	if m.viewMode == viewFlat {
		l.Level = 0
	}
	return m.renderMessageRow(l)
}

func (m inboxModel) renderMessageRow(l folders.Line) string {
	msg := l.Message

	mark := "  "
	switch {
	case msg.Starred:
		mark = starStyle.Render("★ ")
	case msg.Priority:
		mark = priorityStyle.Render("! ")
	}

	num := "draft"
	if !msg.IsDraft() {
		num = fmt.Sprintf("%d", msg.RemoteID)
	}
	if msg.HasPending() {
		num += "~"
	}
	date := relativeDate(msg.Date)

	const numWidth, authorWidth = 7, 14
	indent := strings.Repeat("  ", min(l.Level, 8))
	subjectWidth := max(m.width-numWidth-authorWidth-len(date)-8-len(indent), 10)

	numCol := mutedTextStyle.Width(numWidth).Render(num)
	authorCol := lipgloss.NewStyle().Width(authorWidth).Render(truncate(msg.Author, authorWidth))
	subjectCol := lipgloss.NewStyle().Width(subjectWidth).Render(truncate(msg.Subject(), subjectWidth))
	dateCol := mutedTextStyle.Render(date)

	line := mark + numCol + " " + authorCol + "  " + indent + subjectCol + "  " + dateCol
	switch {
	case msg.Ignored || msg.Withdrawn:
		line = mutedTextStyle.Render(line)
	case msg.Unread:
		line = unreadStyle.Render(line)
	}
	return line
}

func (m inboxModel) renderConversationRow(c domain.Conversation) string {
	mark := "  "
	switch {
	case c.LastError:
		mark = lipgloss.NewStyle().Foreground(errorColor).Render("✗ ")
	case c.Priority:
		mark = priorityStyle.Render("! ")
	}

	const authorWidth = 16
	date := relativeDate(c.Date)
	subjectWidth := max(m.width-authorWidth-len(date)-6, 10)

	authorCol := lipgloss.NewStyle().Width(authorWidth).Render(truncate(c.Author, authorWidth))
	subjectCol := lipgloss.NewStyle().Width(subjectWidth).Render(truncate(c.Subject, subjectWidth))

	line := mark + authorCol + "  " + subjectCol + "  " + mutedTextStyle.Render(date)
	if c.Unread {
		line = unreadStyle.Render(line)
	}
	return line
}

// --- utility functions ---

func truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	if maxLen <= 1 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-1]) + "…"
}

func relativeDate(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "now"
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	default:
		return t.Format("Jan 2")
	}
}
