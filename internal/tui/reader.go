package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/lu-zhengda/termcix/internal/domain"
)

// Messages emitted by readerModel.

type replyMsg struct {
	message *domain.Message
	conv    *domain.Conversation
}

type closeReaderMsg struct{}

type authorMsg struct {
	username string
}

// readerModel shows a forum message or a whole mail conversation in a
// scrollable pane.
type readerModel struct {
	message      *domain.Message
	path         string
	conv         *domain.Conversation
	mails        []domain.MailMessage
	profile      *domain.Profile
	content      string
	scrollOffset int
	maxScroll    int
	width        int
	height       int
	focused      bool
	visible      bool
}

func newReader() readerModel {
	return readerModel{}
}

func (r readerModel) Update(msg tea.Msg) (readerModel, tea.Cmd) {
	if !r.focused || !r.visible {
		return r, nil
	}

	k, ok := msg.(tea.KeyMsg)
	if !ok {
		return r, nil
	}
	switch {
	case key.Matches(k, keys.Up):
		if r.scrollOffset > 0 {
			r.scrollOffset--
		}
	case key.Matches(k, keys.Down):
		if r.scrollOffset < r.maxScroll {
			r.scrollOffset++
		}
	case key.Matches(k, keys.Back):
		return r, func() tea.Msg { return closeReaderMsg{} }
	case key.Matches(k, keys.Reply):
		reply := replyMsg{message: r.message, conv: r.conv}
		return r, func() tea.Msg { return reply }
	case key.Matches(k, keys.Star):
		return r, r.actionCmd("star")
	case key.Matches(k, keys.Unread):
		return r, r.actionCmd("unread")
	case key.Matches(k, keys.Priority):
		return r, r.actionCmd("priority")
	case key.Matches(k, keys.ThreadRead):
		return r, r.actionCmd("thread-read")
	case key.Matches(k, keys.Withdraw):
		return r, r.actionCmd("withdraw")
	case key.Matches(k, keys.Author):
		if name := r.author(); name != "" {
			return r, func() tea.Msg { return authorMsg{username: name} }
		}
	}
	return r, nil
}

func (r readerModel) actionCmd(action string) tea.Cmd {
	switch {
	case r.conv != nil:
		id := r.conv.ID
		return func() tea.Msg { return messageActionMsg{id: id, mail: true, action: action} }
	case r.message != nil:
		id := r.message.ID
		return func() tea.Msg { return messageActionMsg{id: id, action: action} }
	}
	return nil
}

// author is the user behind the shown item.
func (r readerModel) author() string {
	switch {
	case r.message != nil:
		return r.message.Author
	case r.conv != nil:
		return r.conv.Author
	}
	return ""
}

func (r readerModel) View() string {
	if !r.visible || r.width == 0 || r.height == 0 {
		return ""
	}
	if r.content == "" {
		return mutedTextStyle.Render("Nothing selected")
	}

	lines := strings.Split(r.content, "\n")
	start := min(r.scrollOffset, len(lines))
	end := min(start+max(r.height, 1), len(lines))
	return strings.Join(lines[start:end], "\n")
}

// ShowMessage displays a forum message. path names its forum and topic.
func (r *readerModel) ShowMessage(m domain.Message, path string) {
	r.message, r.path = &m, path
	r.conv, r.mails = nil, nil
	r.profile = nil
	r.visible = true
	r.scrollOffset = 0
	r.render()
}

// ShowConversation displays every message of a conversation.
func (r *readerModel) ShowConversation(c domain.Conversation, msgs []domain.MailMessage) {
	r.conv, r.mails = &c, msgs
	r.message, r.path = nil, ""
	r.profile = nil
	r.visible = true
	r.scrollOffset = 0
	r.render()
}

// ShowProfile adds the author's details above the shown item. A profile
// for someone else is ignored.
func (r *readerModel) ShowProfile(p domain.Profile) {
	if !r.visible || !strings.EqualFold(p.Username, r.author()) {
		return
	}
	r.profile = &p
	r.scrollOffset = 0
	r.render()
}

// Refresh re-renders the shown item after a local change, keeping the
// scroll position.
func (r *readerModel) Refresh(m *domain.Message, c *domain.Conversation, msgs []domain.MailMessage) {
	switch {
	case m != nil && r.message != nil && m.ID == r.message.ID:
		r.message = m
	case c != nil && r.conv != nil && c.ID == r.conv.ID:
		r.conv, r.mails = c, msgs
	default:
		return
	}
	r.render()
}

func (r *readerModel) Close() {
	r.visible = false
	r.message, r.conv, r.mails = nil, nil, nil
	r.profile = nil
	r.content = ""
	r.scrollOffset = 0
	r.maxScroll = 0
}

func (r *readerModel) SetSize(w, h int) {
	r.width = w
	r.height = h
	r.render()
}

func (r readerModel) IsVisible() bool {
	return r.visible
}

// ShowsMail reports whether a conversation is on display.
func (r readerModel) ShowsMail() bool {
	return r.conv != nil
}

// --- internal helpers ---

func (r *readerModel) render() {
	switch {
	case r.message != nil:
		r.content = renderMessage(r.message, r.path, r.width)
	case r.conv != nil:
		r.content = renderConversation(r.conv, r.mails, r.width)
	default:
		r.content = ""
	}
	if r.profile != nil && r.content != "" {
		r.content = renderProfile(r.profile, r.width) + r.content
	}
	r.recalcMaxScroll()
}

func (r *readerModel) recalcMaxScroll() {
	if r.content == "" {
		r.maxScroll = 0
		r.scrollOffset = 0
		return
	}
	lines := strings.Count(r.content, "\n") + 1
	r.maxScroll = max(lines-max(r.height, 1), 0)
	r.scrollOffset = min(r.scrollOffset, r.maxScroll)
}

func separator(width int) string {
	return mutedTextStyle.Render(strings.Repeat("─", max(width, 20)))
}

func header(label, value string) string {
	return mutedTextStyle.Render(fmt.Sprintf("%-9s", label)) + value + "\n"
}

func renderMessage(m *domain.Message, path string, width int) string {
	var b strings.Builder

	num := "draft, not yet posted"
	if !m.IsDraft() {
		num = fmt.Sprintf("%s:%d", path, m.RemoteID)
	}
	b.WriteString(header("Message:", num))
	b.WriteString(header("From:", m.Author))
	b.WriteString(header("Date:", m.Date.Local().Format("Jan 2, 2006 3:04 PM")))
	if m.CommentID != 0 {
		b.WriteString(header("Reply to:", fmt.Sprintf("%d", m.CommentID)))
	}

	var flags []string
	if m.Starred {
		flags = append(flags, starStyle.Render("starred"))
	}
	if m.Priority {
		flags = append(flags, priorityStyle.Render("priority"))
	}
	if m.Ignored {
		flags = append(flags, "ignored")
	}
	if m.ReadLocked {
		flags = append(flags, "read-locked")
	}
	if m.HasPending() {
		flags = append(flags, "pending")
	}
	if len(flags) > 0 {
		b.WriteString(header("Flags:", strings.Join(flags, ", ")))
	}

	b.WriteString(separator(width))
	b.WriteString("\n\n")
	if m.Withdrawn {
		b.WriteString(mutedTextStyle.Render("[withdrawn]"))
	} else {
		b.WriteString(m.Body)
	}
	return b.String()
}

func renderConversation(c *domain.Conversation, msgs []domain.MailMessage, width int) string {
	var b strings.Builder
	b.WriteString(header("With:", c.Author))
	b.WriteString(header("Subject:", c.Subject))
	if c.LastError {
		b.WriteString(header("Error:", "the server refused this message"))
	}

	for _, m := range msgs {
		b.WriteString(separator(width))
		b.WriteString("\n")
		who := m.Author + ", " + m.Date.Local().Format("Jan 2, 2006 3:04 PM")
		if m.SendPending {
			who += mutedTextStyle.Render(" (not sent)")
		}
		b.WriteString(titleStyle.Render(who))
		b.WriteString("\n\n")
		b.WriteString(m.Body)
		b.WriteString("\n")
	}
	return b.String()
}

func renderProfile(p *domain.Profile, width int) string {
	var b strings.Builder
	b.WriteString(header("Author:", titleStyle.Render(p.FriendlyName())))
	if p.Location != "" {
		b.WriteString(header("Location:", p.Location))
	}
	if p.Email != "" {
		b.WriteString(header("Email:", p.Email))
	}
	if !p.LastOn.IsZero() {
		b.WriteString(header("Last on:", p.LastOn.Local().Format("Jan 2, 2006 3:04 PM")))
	}
	if p.About != "" {
		b.WriteString("\n")
		b.WriteString(p.About)
		b.WriteString("\n")
	}
	b.WriteString(separator(width))
	b.WriteString("\n")
	return b.String()
}
