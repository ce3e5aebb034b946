package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/lu-zhengda/termcix/internal/app"
	"github.com/lu-zhengda/termcix/internal/domain"
	"github.com/lu-zhengda/termcix/internal/events"
	"github.com/lu-zhengda/termcix/internal/provider"
)

type pane int

const (
	paneSidebar pane = iota
	paneList
	paneReader
)

type viewMode int

const (
	viewThread viewMode = iota
	viewFlat
)

// noFolder means nothing is open in the list pane.
const noFolder int64 = -1

// reloadDelay coalesces bursts of change events into one redraw.
const reloadDelay = 150 * time.Millisecond

// Options configures the interactive client.
type Options struct {
	// Interval between background syncs. Zero disables them.
	Interval time.Duration
	// Online starts the client online.
	Online bool
	// DefaultView is "threaded" or "flat".
	DefaultView string
}

// --- async result messages ---

type eventMsg events.Event

type reloadMsg struct{}

type actionDoneMsg struct {
	text string
}

type sentMsg struct {
	text string
}

type profileMsg struct {
	profile domain.Profile
}

type errMsg struct {
	err error
}

// --- root model ---

type model struct {
	svc    *app.Service
	events <-chan events.Event

	sidebar  sidebarModel
	inbox    inboxModel
	reader   readerModel
	composer composerModel
	search   searchModel

	current       int64
	activePane    pane
	viewMode      viewMode
	statusBar     statusBar
	reloadPending bool

	width  int
	height int
}

func newModel(svc *app.Service, ch <-chan events.Event, opts Options) model {
	m := model{
		svc:        svc,
		events:     ch,
		sidebar:    newSidebar(),
		inbox:      newInbox(),
		reader:     newReader(),
		composer:   newComposer(),
		search:     newSearch(),
		current:    noFolder,
		activePane: paneSidebar,
		statusBar:  newStatusBar(),
	}
	if strings.EqualFold(opts.DefaultView, "flat") {
		m.viewMode = viewFlat
		m.inbox.SetViewMode(viewFlat)
	}
	m.sidebar.focused = true
	m.reload()
	return m
}

func (m model) Init() tea.Cmd {
	return waitForEvent(m.events)
}

func waitForEvent(ch <-chan events.Event) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return nil
		}
		return eventMsg(ev)
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.statusBar.width = msg.Width
		m.resizeSubModels()
		return m, nil

	// --- cache notifications ---
	case eventMsg:
		cmds := []tea.Cmd{waitForEvent(m.events)}
		switch msg.Kind {
		case events.SyncStarted:
			m.statusBar.setMessage("Syncing...")
		case events.SyncCompleted:
			if msg.Err != nil {
				m.statusBar.setError(fmt.Sprintf("Sync failed: %v", msg.Err))
			} else {
				m.statusBar.setMessage("Up to date")
			}
		}
		m.statusBar.state = m.svc.State()
		if !m.reloadPending {
			m.reloadPending = true
			cmds = append(cmds, tea.Tick(reloadDelay, func(time.Time) tea.Msg { return reloadMsg{} }))
		}
		return m, tea.Batch(cmds...)

	case reloadMsg:
		m.reloadPending = false
		m.reload()
		return m, nil

	// --- async results ---
	case actionDoneMsg:
		if msg.text != "" {
			m.statusBar.setMessage(msg.text)
		}
		m.reload()
		return m, nil

	case sentMsg:
		m.composer.Close()
		m.setFocus(paneList)
		m.statusBar.setMessage(msg.text)
		m.reload()
		return m, m.syncCmd(true)

	case errMsg:
		if errors.Is(msg.err, provider.ErrOffline) {
			m.statusBar.setError("Offline: press o to go online")
		} else {
			m.statusBar.setError(fmt.Sprintf("Error: %v", msg.err))
		}
		return m, nil

	// --- sub-model emitted messages ---
	case topicSelectedMsg:
		m.openFolder(msg.id)
		m.setFocus(paneList)
		return m, nil

	case messageSelectedMsg:
		return m, m.showMessage(msg.id)

	case conversationSelectedMsg:
		conv, ok := m.svc.Mail.Conversation(msg.id)
		if !ok {
			return m, nil
		}
		m.reader.ShowConversation(conv, m.svc.Mail.Messages(conv.ID))
		m.openReader()
		if conv.Unread {
			return m, m.actionCmd(messageActionMsg{id: conv.ID, mail: true, action: "read"})
		}
		return m, nil

	case messageActionMsg:
		return m, m.actionCmd(msg)

	case replyMsg:
		switch {
		case msg.conv != nil:
			m.composer.ReplyMail(msg.conv)
		case msg.message != nil:
			if msg.message.IsDraft() {
				m.statusBar.setError("Cannot comment on a message that has not been posted yet")
				return m, nil
			}
			m.composer.ReplyTo(msg.message, m.svc.Folders.Path(msg.message.TopicID))
		}
		m.resizeComposer()
		return m, nil

	case authorMsg:
		return m, m.profileCmd(msg.username)

	case profileMsg:
		m.reader.ShowProfile(msg.profile)
		return m, nil

	case closeReaderMsg:
		m.reader.Close()
		m.statusBar.readerVisible = false
		m.setFocus(paneList)
		m.resizeSubModels()
		return m, nil

	case sendMsg:
		m.statusBar.setMessage("Saving...")
		return m, m.sendCmd(msg.draft)

	case cancelComposeMsg:
		m.composer.Close()
		m.setFocus(paneList)
		return m, nil

	case searchQueryMsg:
		found := m.svc.Folders.Search(msg.query)
		results := make([]searchResult, 0, len(found))
		for _, f := range found {
			results = append(results, searchResult{message: f, path: m.svc.Folders.Path(f.TopicID)})
		}
		m.search.SetResults(results)
		m.statusBar.setMessage(fmt.Sprintf("Found %d messages", len(results)))
		return m, nil

	case searchResultSelectedMsg:
		m.search.Close()
		if found, ok := m.svc.Folders.Message(msg.id); ok {
			m.sidebar.active = found.TopicID
			m.openFolder(found.TopicID)
		}
		return m, m.showMessage(msg.id)

	case closeSearchMsg:
		m.search.Close()
		m.setFocus(paneList)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.composer.IsVisible() {
		var cmd tea.Cmd
		m.composer, cmd = m.composer.Update(msg)
		return m, cmd
	}
	if m.search.IsActive() {
		var cmd tea.Cmd
		m.search, cmd = m.search.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, keys.Post):
		switch {
		case m.current == mailFolderID:
			m.composer.NewMail()
		case m.current != noFolder:
			m.composer.NewThread(m.current, m.svc.Folders.Path(m.current))
		default:
			m.statusBar.setMessage("Open a topic or Mail first")
			return m, nil
		}
		m.resizeComposer()
		return m, nil

	case key.Matches(msg, keys.Search):
		m.search.Open()
		m.resizeSearch()
		return m, nil

	case key.Matches(msg, keys.Online):
		online := m.svc.State() == app.Offline
		m.svc.SetOnline(online)
		m.statusBar.state = m.svc.State()
		if online {
			m.statusBar.setMessage("Online")
		} else {
			m.statusBar.setMessage("Offline")
		}
		return m, nil

	case key.Matches(msg, keys.Sync):
		return m, m.syncCmd(false)

	case key.Matches(msg, keys.Tab):
		switch {
		case m.reader.IsVisible() && m.activePane == paneList:
			m.setFocus(paneReader)
		case m.reader.IsVisible():
			m.setFocus(paneList)
		case m.activePane == paneSidebar:
			m.setFocus(paneList)
		default:
			m.setFocus(paneSidebar)
		}
		return m, nil

	case key.Matches(msg, keys.Toggle):
		if m.viewMode == viewThread {
			m.viewMode = viewFlat
			m.statusBar.setMessage("Flat view")
		} else {
			m.viewMode = viewThread
			m.statusBar.setMessage("Threaded view")
		}
		m.inbox.SetViewMode(m.viewMode)
		m.reload()
		return m, nil
	}

	var cmd tea.Cmd
	switch m.activePane {
	case paneSidebar:
		m.sidebar, cmd = m.sidebar.Update(msg)
	case paneList:
		m.inbox, cmd = m.inbox.Update(msg)
	case paneReader:
		m.reader, cmd = m.reader.Update(msg)
	}
	return m, cmd
}

func (m model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	sidebarWidth, contentWidth := m.layoutWidths()
	contentHeight := m.height - 3

	sidebarView := sidebarStyle.
		Width(sidebarWidth).
		Height(contentHeight).
		Render(m.sidebar.View())

	var contentView string
	switch {
	case m.composer.IsVisible():
		contentView = lipgloss.NewStyle().
			Width(contentWidth).
			Height(contentHeight).
			Render(m.composer.View())

	case m.search.IsActive():
		contentView = lipgloss.NewStyle().
			Width(contentWidth).
			Height(contentHeight).
			Render(m.search.View())

	case m.reader.IsVisible():
		listHeight := contentHeight / 2
		listView := listStyle.
			Width(contentWidth).
			Height(listHeight).
			Render(m.inbox.View())
		readerView := readerStyle.
			Width(contentWidth).
			Height(contentHeight - listHeight).
			Render(m.reader.View())
		contentView = lipgloss.JoinVertical(lipgloss.Left, listView, readerView)

	default:
		contentView = listStyle.
			Width(contentWidth).
			Height(contentHeight).
			Render(m.inbox.View())
	}

	main := lipgloss.JoinHorizontal(lipgloss.Top, sidebarView, contentView)
	return lipgloss.JoinVertical(lipgloss.Left, main, m.statusBar.View())
}

// --- state helpers ---

// reload copies the current cache state into the sub-models.
func (m *model) reload() {
	m.sidebar.SetFolders(m.svc.Folders.All(), m.svc.Mail.TotalUnread())
	m.statusBar.state = m.svc.State()
	m.statusBar.unread = m.svc.Folders.TotalUnread()
	m.statusBar.unreadPriority = m.svc.Folders.TotalUnreadPriority()
	m.statusBar.mailUnread = m.svc.Mail.TotalUnread()

	switch m.current {
	case noFolder:
	case mailFolderID:
		m.inbox.SetConversations(m.svc.Mail.All())
	default:
		if _, ok := m.svc.Folders.Folder(m.current); !ok {
			m.current = noFolder
			m.inbox.SetThread(nil)
			break
		}
		m.inbox.SetThread(m.svc.Folders.Thread(m.current))
	}

	switch {
	case m.reader.message != nil:
		if msg, ok := m.svc.Folders.Message(m.reader.message.ID); ok {
			m.reader.Refresh(&msg, nil, nil)
		} else {
			m.reader.Close()
			m.statusBar.readerVisible = false
		}
	case m.reader.conv != nil:
		if conv, ok := m.svc.Mail.Conversation(m.reader.conv.ID); ok {
			m.reader.Refresh(nil, &conv, m.svc.Mail.Messages(conv.ID))
		} else {
			m.reader.Close()
			m.statusBar.readerVisible = false
		}
	}
}

// openFolder shows a topic, or the mail conversations for mailFolderID.
// Opening a topic asks the next fast sync to fetch it.
func (m *model) openFolder(id int64) {
	m.reader.Close()
	m.statusBar.readerVisible = false
	m.statusBar.mailView = id == mailFolderID
	m.inbox.Reset()
	m.current = id
	if id != mailFolderID {
		m.svc.Folders.RequestRefresh(id)
	}
	m.reload()
	m.resizeSubModels()
}

func (m *model) showMessage(id int64) tea.Cmd {
	msg, ok := m.svc.Folders.Message(id)
	if !ok {
		return nil
	}
	m.reader.ShowMessage(msg, m.svc.Folders.Path(msg.TopicID))
	m.openReader()
	if msg.Unread && !msg.ReadLocked {
		return m.actionCmd(messageActionMsg{id: id, action: "read"})
	}
	return nil
}

func (m *model) openReader() {
	m.statusBar.readerVisible = true
	m.statusBar.mailView = m.reader.ShowsMail()
	m.setFocus(paneReader)
	m.resizeSubModels()
}

func (m *model) setFocus(p pane) {
	m.activePane = p
	m.sidebar.focused = p == paneSidebar
	m.inbox.focused = p == paneList
	m.reader.focused = p == paneReader
}

// --- layout helpers ---

func (m model) layoutWidths() (sidebarWidth, contentWidth int) {
	sidebarWidth = max(m.width/4, 24)
	contentWidth = m.width - sidebarWidth - 2
	return
}

func (m *model) resizeSubModels() {
	sidebarWidth, contentWidth := m.layoutWidths()
	contentHeight := m.height - 3

	// sidebarStyle: border 2 + padding 2 each way.
	m.sidebar.SetSize(sidebarWidth-4, contentHeight-4)

	if m.reader.IsVisible() {
		listHeight := contentHeight / 2
		m.inbox.SetSize(contentWidth-4, listHeight-2)
		m.reader.SetSize(contentWidth-6, contentHeight-listHeight-4)
	} else {
		m.inbox.SetSize(contentWidth-4, contentHeight-2)
	}

	m.resizeComposer()
	m.resizeSearch()
}

func (m *model) resizeComposer() {
	_, contentWidth := m.layoutWidths()
	m.composer.SetSize(contentWidth, m.height-3)
}

func (m *model) resizeSearch() {
	_, contentWidth := m.layoutWidths()
	m.search.SetSize(contentWidth, m.height-3)
}

// --- async commands ---

func (m model) syncCmd(fast bool) tea.Cmd {
	if m.svc.State() == app.Offline {
		return nil
	}
	svc := m.svc
	return func() tea.Msg {
		if err := svc.Sync(context.Background(), fast); err != nil {
			return errMsg{err: err}
		}
		return nil
	}
}

// profileCmd looks up a user's profile, from the cache alone when offline.
func (m model) profileCmd(username string) tea.Cmd {
	svc := m.svc
	offline := svc.State() == app.Offline
	return func() tea.Msg {
		if offline {
			if p, ok := svc.Profiles.Get(username); ok {
				return profileMsg{profile: p}
			}
			return errMsg{err: fmt.Errorf("profile of %s: %w", username, provider.ErrOffline)}
		}
		p, err := svc.Profiles.Lookup(context.Background(), username)
		if err != nil {
			return errMsg{err: err}
		}
		return profileMsg{profile: p}
	}
}

func (m model) actionCmd(a messageActionMsg) tea.Cmd {
	svc := m.svc
	return func() tea.Msg {
		var (
			text string
			err  error
		)
		if a.mail {
			text, err = mailAction(svc, a)
		} else {
			text, err = messageAction(svc, a)
		}
		if err != nil {
			return errMsg{err: fmt.Errorf("failed to %s: %w", a.action, err)}
		}
		return actionDoneMsg{text: text}
	}
}

func messageAction(svc *app.Service, a messageActionMsg) (string, error) {
	ctx := context.Background()
	msg, ok := svc.Folders.Message(a.id)
	if !ok {
		return "", domain.ErrNotFound
	}

	switch a.action {
	case "read":
		return "", svc.Folders.MarkRead(ctx, a.id)
	case "unread":
		if msg.Unread {
			return "Marked read", svc.Folders.MarkRead(ctx, a.id)
		}
		return "Marked unread", svc.Folders.MarkUnread(ctx, a.id)
	case "star":
		return toggled("Star", !msg.Starred), svc.Folders.SetStar(ctx, a.id, !msg.Starred)
	case "priority":
		return toggled("Priority", !msg.Priority), svc.Folders.SetPriority(ctx, a.id, !msg.Priority)
	case "ignore":
		return toggled("Ignore", !msg.Ignored), svc.Folders.SetIgnored(ctx, a.id, !msg.Ignored)
	case "thread-read":
		return "Thread marked read", svc.Folders.MarkThreadRead(ctx, a.id)
	case "withdraw":
		return "Message withdrawn", svc.Folders.Withdraw(ctx, a.id)
	}
	return "", fmt.Errorf("unknown action %q", a.action)
}

func mailAction(svc *app.Service, a messageActionMsg) (string, error) {
	ctx := context.Background()
	conv, ok := svc.Mail.Conversation(a.id)
	if !ok {
		return "", domain.ErrNotFound
	}

	switch a.action {
	case "read":
		return "", svc.Mail.MarkRead(ctx, a.id)
	case "unread":
		if conv.Unread {
			return "Marked read", svc.Mail.MarkRead(ctx, a.id)
		}
		return "Marked unread", svc.Mail.MarkUnread(ctx, a.id)
	case "priority":
		return toggled("Priority", !conv.Priority), svc.Mail.SetPriority(ctx, a.id, !conv.Priority)
	}
	return "", fmt.Errorf("%s is not available for mail", a.action)
}

func toggled(what string, on bool) string {
	if on {
		return what + " set"
	}
	return what + " cleared"
}

func (m model) sendCmd(d draft) tea.Cmd {
	svc := m.svc
	return func() tea.Msg {
		if strings.TrimSpace(d.body) == "" {
			return errMsg{err: errors.New("message is empty")}
		}
		ctx := context.Background()
		var err error
		switch d.mode {
		case modeThread:
			_, err = svc.Folders.Post(ctx, d.topicID, 0, d.body)
		case modeReply:
			_, err = svc.Folders.Post(ctx, d.topicID, d.replyTo, d.body)
		case modeMail:
			if d.to == "" || d.subject == "" {
				return errMsg{err: errors.New("recipient and subject are required")}
			}
			_, err = svc.Mail.Compose(ctx, d.to, d.subject, d.body)
		case modeMailReply:
			_, err = svc.Mail.Reply(ctx, d.convID, d.body)
		}
		if err != nil {
			return errMsg{err: err}
		}
		return sentMsg{text: "Queued; it is sent on the next sync"}
	}
}

// Run starts the interactive client on svc and closes svc when the user
// quits.
func Run(svc *app.Service, opts Options) error {
	ch, unsubscribe := svc.Events().Subscribe(256)
	m := newModel(svc, ch, opts)

	if opts.Online {
		svc.SetOnline(true)
	}
	if opts.Interval > 0 {
		svc.StartTask(opts.Interval)
	}

	_, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	unsubscribe()
	return errors.Join(err, svc.Close(context.Background()))
}
