package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Up         key.Binding
	Down       key.Binding
	Enter      key.Binding
	Back       key.Binding
	Post       key.Binding
	Reply      key.Binding
	Star       key.Binding
	Unread     key.Binding
	Priority   key.Binding
	Ignore     key.Binding
	ThreadRead key.Binding
	Withdraw   key.Binding
	Author     key.Binding
	Search     key.Binding
	Tab        key.Binding
	Toggle     key.Binding
	Online     key.Binding
	Sync       key.Binding
	Quit       key.Binding
}

var keys = keyMap{
	Up:         key.NewBinding(key.WithKeys("k", "up"), key.WithHelp("k/↑", "up")),
	Down:       key.NewBinding(key.WithKeys("j", "down"), key.WithHelp("j/↓", "down")),
	Enter:      key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "open")),
	Back:       key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
	Post:       key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "new thread/mail")),
	Reply:      key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reply")),
	Star:       key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "star")),
	Unread:     key.NewBinding(key.WithKeys("u"), key.WithHelp("u", "read/unread")),
	Priority:   key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "priority")),
	Ignore:     key.NewBinding(key.WithKeys("i"), key.WithHelp("i", "ignore")),
	ThreadRead: key.NewBinding(key.WithKeys("m"), key.WithHelp("m", "mark thread read")),
	Withdraw:   key.NewBinding(key.WithKeys("W"), key.WithHelp("W", "withdraw")),
	Author:     key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "about author")),
	Search:     key.NewBinding(key.WithKeys("/"), key.WithHelp("/", "search")),
	Tab:        key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "switch pane")),
	Toggle:     key.NewBinding(key.WithKeys("t"), key.WithHelp("t", "threaded/flat")),
	Online:     key.NewBinding(key.WithKeys("o"), key.WithHelp("o", "online/offline")),
	Sync:       key.NewBinding(key.WithKeys("ctrl+r"), key.WithHelp("ctrl+r", "sync now")),
	Quit:       key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}
