package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/lu-zhengda/termcix/internal/domain"
)

// composerMode describes the kind of composition taking place.
type composerMode int

const (
	modeThread composerMode = iota
	modeReply
	modeMail
	modeMailReply
)

// draft is what the composer hands back when the user sends.
type draft struct {
	mode    composerMode
	topicID int64
	replyTo int64
	convID  int64
	to      string
	subject string
	body    string
}

// Messages emitted by composerModel.

type sendMsg struct {
	draft draft
}

type cancelComposeMsg struct{}

// Field indices within the composer form. Only new mail uses the
// recipient and subject fields.
const (
	fieldTo = iota
	fieldSubject
	fieldBody
)

// composerModel writes new threads, replies and private mail.
type composerModel struct {
	toInput      textinput.Model
	subjectInput textinput.Model
	bodyInput    textarea.Model

	activeField int
	mode        composerMode
	context     string
	target      draft

	width   int
	height  int
	visible bool
}

func newComposer() composerModel {
	to := textinput.New()
	to.Placeholder = "user name"
	to.CharLimit = 64
	to.Prompt = ""

	subject := textinput.New()
	subject.Placeholder = "Subject"
	subject.CharLimit = 200
	subject.Prompt = ""

	body := textarea.New()
	body.Placeholder = "Write your message..."
	body.SetWidth(40)
	body.SetHeight(6)
	body.CharLimit = 0

	return composerModel{
		toInput:      to,
		subjectInput: subject,
		bodyInput:    body,
	}
}

func (c composerModel) Update(msg tea.Msg) (composerModel, tea.Cmd) {
	if !c.visible {
		return c, nil
	}

	if k, ok := msg.(tea.KeyMsg); ok {
		switch k.String() {
		case "tab":
			if c.mode == modeMail {
				c.activeField = (c.activeField + 1) % (fieldBody + 1)
				c.updateFocus()
			}
			return c, nil
		case "esc":
			return c, func() tea.Msg { return cancelComposeMsg{} }
		case "ctrl+s":
			d := c.Draft()
			return c, func() tea.Msg { return sendMsg{draft: d} }
		}
	}

	var cmd tea.Cmd
	switch c.activeField {
	case fieldTo:
		c.toInput, cmd = c.toInput.Update(msg)
	case fieldSubject:
		c.subjectInput, cmd = c.subjectInput.Update(msg)
	case fieldBody:
		c.bodyInput, cmd = c.bodyInput.Update(msg)
	}
	return c, cmd
}

func (c composerModel) View() string {
	if !c.visible {
		return ""
	}

	innerWidth := max(c.width-4, 20)
	inputWidth := max(innerWidth-10, 10)
	c.toInput.Width = inputWidth
	c.subjectInput.Width = inputWidth
	c.bodyInput.SetWidth(innerWidth)

	var rows []string
	if c.context != "" {
		rows = append(rows, mutedTextStyle.Render(truncate(c.context, innerWidth)))
	}
	if c.mode == modeMail {
		rows = append(rows, mutedTextStyle.Render(fmt.Sprintf("%-9s", "To:"))+c.toInput.View())
		rows = append(rows, mutedTextStyle.Render(fmt.Sprintf("%-9s", "Subject:"))+c.subjectInput.View())
	}
	c.bodyInput.SetHeight(max(c.height-6-len(rows), 3))

	help := "Ctrl+S:send  Esc:cancel"
	if c.mode == modeMail {
		help = "Tab:fields  " + help
	}
	rows = append(rows,
		mutedTextStyle.Render(strings.Repeat("─", innerWidth)),
		c.bodyInput.View(),
		"",
		mutedTextStyle.Render(help),
	)

	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(primaryColor).
		Padding(0, 1).
		Width(c.width - 2)

	return titleStyle.Render(" "+c.modeTitle()+" ") + "\n" + box.Render(strings.Join(rows, "\n"))
}

// NewThread opens the composer for a new thread in a topic.
func (c *composerModel) NewThread(topicID int64, path string) {
	c.open(modeThread, draft{topicID: topicID}, "New thread in "+path)
}

// ReplyTo opens the composer for a comment on a forum message.
func (c *composerModel) ReplyTo(m *domain.Message, path string) {
	c.open(modeReply, draft{topicID: m.TopicID, replyTo: m.ID}, fmt.Sprintf("Comment to %s:%d by %s", path, m.RemoteID, m.Author))
	c.bodyInput.SetValue(quote(m.Body))
}

// NewMail opens the composer for a new conversation.
func (c *composerModel) NewMail() {
	c.open(modeMail, draft{}, "")
	c.activeField = fieldTo
	c.updateFocus()
}

// ReplyMail opens the composer for a reply in a conversation.
func (c *composerModel) ReplyMail(conv *domain.Conversation) {
	c.open(modeMailReply, draft{convID: conv.ID}, fmt.Sprintf("Reply to %s: %s", conv.Author, conv.Subject))
}

func (c *composerModel) open(mode composerMode, target draft, context string) {
	c.clearFields()
	c.mode = mode
	c.target = target
	c.context = context
	c.visible = true
	c.activeField = fieldBody
	c.updateFocus()
}

func (c *composerModel) Close() {
	c.visible = false
	c.clearFields()
}

func (c *composerModel) SetSize(w, h int) {
	c.width = w
	c.height = h
}

func (c composerModel) IsVisible() bool {
	return c.visible
}

// Draft collects the entered values.
func (c composerModel) Draft() draft {
	d := c.target
	d.mode = c.mode
	d.to = strings.TrimSpace(c.toInput.Value())
	d.subject = strings.TrimSpace(c.subjectInput.Value())
	d.body = c.bodyInput.Value()
	return d
}

// --- internal helpers ---

func (c *composerModel) clearFields() {
	c.toInput.SetValue("")
	c.subjectInput.SetValue("")
	c.bodyInput.SetValue("")
}

func (c *composerModel) updateFocus() {
	c.toInput.Blur()
	c.subjectInput.Blur()
	c.bodyInput.Blur()

	switch c.activeField {
	case fieldTo:
		c.toInput.Focus()
	case fieldSubject:
		c.subjectInput.Focus()
	case fieldBody:
		c.bodyInput.Focus()
	}
}

func (c composerModel) modeTitle() string {
	switch c.mode {
	case modeReply:
		return "Comment"
	case modeMail:
		return "New Mail"
	case modeMailReply:
		return "Reply"
	default:
		return "New Thread"
	}
}

// quote prefixes each line of body with "> " and leaves a blank line
// below for the reply.
func quote(body string) string {
	var b strings.Builder
	for _, line := range strings.Split(strings.TrimRight(body, "\n"), "\n") {
		b.WriteString("> ")
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString("\n")
	return b.String()
}
