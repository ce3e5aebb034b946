package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/lu-zhengda/termcix/internal/domain"
)

// Messages emitted by searchModel.

type searchQueryMsg struct {
	query string
}

type searchResultSelectedMsg struct {
	id int64
}

type closeSearchMsg struct{}

// searchResult is a matching message with the path of its topic.
type searchResult struct {
	message domain.Message
	path    string
}

// searchModel finds cached forum messages by author or text.
type searchModel struct {
	input     textinput.Model
	results   []searchResult
	cursor    int
	searching bool
	inputMode bool
	width     int
	height    int
}

func newSearch() searchModel {
	ti := textinput.New()
	ti.Placeholder = "Search messages..."
	ti.Prompt = "/ "
	ti.CharLimit = 256
	return searchModel{
		input:     ti,
		inputMode: true,
	}
}

func (s searchModel) Update(msg tea.Msg) (searchModel, tea.Cmd) {
	if !s.searching {
		return s, nil
	}

	if k, ok := msg.(tea.KeyMsg); ok {
		switch {
		case key.Matches(k, keys.Back):
			return s, func() tea.Msg { return closeSearchMsg{} }

		case key.Matches(k, keys.Enter):
			if s.inputMode {
				q := strings.TrimSpace(s.input.Value())
				if q == "" {
					return s, nil
				}
				s.inputMode = false
				s.input.Blur()
				s.cursor = 0
				return s, func() tea.Msg { return searchQueryMsg{query: q} }
			}
			if s.cursor >= len(s.results) {
				return s, nil
			}
			id := s.results[s.cursor].message.ID
			return s, func() tea.Msg { return searchResultSelectedMsg{id: id} }

		case !s.inputMode && key.Matches(k, keys.Up):
			if s.cursor > 0 {
				s.cursor--
			}
			return s, nil

		case !s.inputMode && key.Matches(k, keys.Down):
			if s.cursor < len(s.results)-1 {
				s.cursor++
			}
			return s, nil

		case !s.inputMode && k.String() == "/":
			s.inputMode = true
			s.input.Focus()
			return s, nil
		}
	}

	if s.inputMode {
		var cmd tea.Cmd
		s.input, cmd = s.input.Update(msg)
		return s, cmd
	}
	return s, nil
}

func (s searchModel) View() string {
	if !s.searching || s.width == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString(s.input.View())
	b.WriteByte('\n')

	if len(s.results) == 0 {
		if !s.inputMode {
			b.WriteByte('\n')
			b.WriteString(mutedTextStyle.Render("No results"))
		}
		return b.String()
	}

	b.WriteByte('\n')
	b.WriteString(titleStyle.Render(fmt.Sprintf("Results (%d):", len(s.results))))
	b.WriteByte('\n')

	rows := max(s.height-4, 1)
	start := 0
	if s.cursor >= rows {
		start = s.cursor - rows + 1
	}
	end := min(start+rows, len(s.results))
	for i := start; i < end; i++ {
		if i > start {
			b.WriteByte('\n')
		}
		line := s.renderResultRow(s.results[i])
		if !s.inputMode && i == s.cursor {
			line = selectedStyle.Width(s.width).Render(line)
		}
		b.WriteString(line)
	}
	return b.String()
}

func (s *searchModel) Open() {
	s.searching = true
	s.inputMode = true
	s.input.Focus()
}

func (s *searchModel) Close() {
	s.searching = false
	s.inputMode = true
	s.input.SetValue("")
	s.input.Blur()
	s.results = nil
	s.cursor = 0
}

func (s *searchModel) SetResults(results []searchResult) {
	s.results = results
	s.cursor = 0
}

func (s *searchModel) SetSize(w, h int) {
	s.width = w
	s.height = h
	s.input.Width = w - 4
}

func (s searchModel) IsActive() bool {
	return s.searching
}

// --- internal helpers ---

func (s searchModel) renderResultRow(r searchResult) string {
	const pathWidth, authorWidth = 24, 14
	date := relativeDate(r.message.Date)
	subjectWidth := max(s.width-pathWidth-authorWidth-len(date)-4, 10)

	pathCol := mutedTextStyle.Width(pathWidth).Render(truncate(r.path, pathWidth))
	authorCol := lipgloss.NewStyle().Width(authorWidth).Render(truncate(r.message.Author, authorWidth))
	subjectCol := lipgloss.NewStyle().Width(subjectWidth).Render(truncate(r.message.Subject(), subjectWidth))

	line := pathCol + authorCol + "  " + subjectCol + "  " + mutedTextStyle.Render(date)
	if r.message.Unread {
		line = unreadStyle.Render(line)
	}
	return line
}
