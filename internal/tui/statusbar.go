package tui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/lu-zhengda/termcix/internal/app"
)

type statusBar struct {
	message        string
	width          int
	isError        bool
	readerVisible  bool
	mailView       bool
	state          app.State
	unread         int
	unreadPriority int
	mailUnread     int
}

func newStatusBar() statusBar {
	return statusBar{message: "Ready"}
}

func (s *statusBar) setMessage(msg string) {
	s.message = msg
	s.isError = false
}

func (s *statusBar) setError(msg string) {
	s.message = msg
	s.isError = true
}

func (s statusBar) View() string {
	msgStyle := statusBarStyle
	if s.isError {
		msgStyle = msgStyle.Foreground(errorColor)
	}

	left := s.indicator() + " " + s.message
	right := s.counts() + "  " + mutedTextStyle.Render(s.shortcuts())

	gap := s.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if gap < 0 {
		gap = 0
	}

	content := left + lipgloss.NewStyle().Width(gap).Render("") + right
	return msgStyle.Width(s.width).Render(content)
}

func (s statusBar) indicator() string {
	switch s.state {
	case app.OnlineSyncing:
		return lipgloss.NewStyle().Foreground(accentColor).Render("↻")
	case app.OnlineIdle:
		return lipgloss.NewStyle().Foreground(onlineColor).Render("●")
	default:
		return mutedTextStyle.Render("○")
	}
}

func (s statusBar) counts() string {
	out := fmt.Sprintf("%d unread", s.unread)
	if s.unreadPriority > 0 {
		out += priorityStyle.Render(fmt.Sprintf(" %d!", s.unreadPriority))
	}
	if s.mailUnread > 0 {
		out += fmt.Sprintf("  %d mail", s.mailUnread)
	}
	return out
}

func (s statusBar) shortcuts() string {
	switch {
	case s.readerVisible && s.mailView:
		return "r:reply  u:unread  p:priority  esc:back"
	case s.readerVisible:
		return "r:reply  s:star  u:unread  m:thread read  esc:back"
	default:
		return "j/k:nav  enter:open  c:new  /:search  o:online"
	}
}
