package feed

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/teamdesk/internal/api"
	"github.com/nhle/teamdesk/internal/chatsync"
	"github.com/nhle/teamdesk/internal/keys"
	"github.com/nhle/teamdesk/internal/model"
	"github.com/nhle/teamdesk/internal/notify"
	"github.com/nhle/teamdesk/internal/reminder"
	"github.com/nhle/teamdesk/internal/theme"
	"github.com/nhle/teamdesk/internal/ui"
)

// requestTimeout bounds the network work started by a key press.
const requestTimeout = 30 * time.Second

// ChatEngine is the chat surface the view drives.
type ChatEngine interface {
	State() chatsync.State
	Subscribe(fn func(chatsync.State)) func()
	FetchChats(ctx context.Context) []model.Chat
	SetSelectedChat(ctx context.Context, chatID int64)
	InitializeWebSocket(ctx context.Context, chatID, userID int64) (*chatsync.Conn, error)
	HandleSendMessage(ctx context.Context, chatID int64, content string, userID int64, uploads ...api.Upload) error
}

// TaskScheduler is the reminder surface the view drives.
type TaskScheduler interface {
	Refresh()
	Status() reminder.Status
}

// chatStateMsg carries a new engine snapshot into the update loop.
type chatStateMsg struct {
	state chatsync.State
}

// notificationsMsg carries a new feed snapshot into the update loop.
type notificationsMsg struct {
	items []model.Notification
}

// errMsg reports a failed user action in the status bar.
type errMsg struct {
	err error
}

// sentMsg is returned after a message was handed to the socket.
type sentMsg struct{}

type pane int

const (
	paneChats pane = iota
	paneNotifications
)

// Model is the root Bubble Tea model: chat list, open conversation and
// notification feed.
type Model struct {
	engine    ChatEngine
	feed      *notify.Feed
	scheduler TaskScheduler
	focus     *notify.FocusTracker
	userID    int64
	keys      *keys.KeyMap

	layout  ui.Layout
	chats   list.Model
	input   textinput.Model
	help    help.Model
	state   chatsync.State
	notes   []model.Notification
	noteIdx int
	active  pane
	compose bool
	errText string
	ready   bool
	updates *mailbox
	unsub   []func()
}

// New creates the view and subscribes it to the engine and the feed.
// Close releases the subscriptions.
func New(
	engine ChatEngine,
	feed *notify.Feed,
	scheduler TaskScheduler,
	focus *notify.FocusTracker,
	userID int64,
) *Model {
	k := keys.DefaultKeyMap()

	l := list.New([]list.Item{}, chatDelegate{now: time.Now}, 30, 20)
	l.Title = "Chats"
	l.SetShowStatusBar(false)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)
	l.DisableQuitKeybindings()
	l.Styles.Title = theme.PaneTitleStyle

	in := textinput.New()
	in.Placeholder = "write a message..."
	in.Prompt = "> "
	in.CharLimit = 4000

	m := &Model{
		engine:    engine,
		feed:      feed,
		scheduler: scheduler,
		focus:     focus,
		userID:    userID,
		keys:      k,
		chats:     l,
		input:     in,
		help:      help.New(),
		updates:   newMailbox(),
	}

	m.unsub = append(m.unsub,
		engine.Subscribe(m.updates.putState),
		feed.Subscribe(m.updates.putNotes),
	)

	m.applyState(engine.State())
	m.notes = feed.List()
	return m
}

// Close unsubscribes from the engine and the feed.
func (m *Model) Close() {
	for _, fn := range m.unsub {
		fn()
	}
	m.unsub = nil
}

// waitForUpdate returns a command that blocks until the next snapshot.
func (m *Model) waitForUpdate() tea.Cmd {
	return m.updates.take
}

// Init starts listening for snapshots and loads the chat list.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.waitForUpdate(), m.fetchChats())
}

// Update handles messages for the feed view.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.layout = ui.NewLayout(msg.Width, msg.Height)
		m.ready = true
		m.resize()
		return m, nil

	case tea.FocusMsg:
		m.focus.SetFocused(true)
		return m, nil

	case tea.BlurMsg:
		m.focus.SetFocused(false)
		return m, nil

	case chatStateMsg:
		m.applyState(msg.state)
		return m, m.waitForUpdate()

	case notificationsMsg:
		m.notes = msg.items
		if m.noteIdx >= len(m.notes) {
			m.noteIdx = max(0, len(m.notes)-1)
		}
		return m, m.waitForUpdate()

	case errMsg:
		m.errText = msg.err.Error()
		return m, nil

	case sentMsg:
		m.errText = ""
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
		if m.compose {
			return m.handleComposeKeys(msg)
		}
		return m.handleNormalKeys(msg)
	}

	return m, nil
}

// handleComposeKeys processes key input while writing a message.
func (m *Model) handleComposeKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Send):
		content := strings.TrimSpace(m.input.Value())
		m.input.Reset()
		m.compose = false
		m.input.Blur()
		if content == "" || m.state.SelectedChat == 0 {
			return m, nil
		}
		return m, m.send(m.state.SelectedChat, content)

	case key.Matches(msg, m.keys.Back):
		m.compose = false
		m.input.Reset()
		m.input.Blur()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// handleNormalKeys processes key input outside of compose mode.
func (m *Model) handleNormalKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil

	case key.Matches(msg, m.keys.Pane):
		if m.active == paneChats {
			m.active = paneNotifications
		} else {
			m.active = paneChats
		}
		return m, nil

	case key.Matches(msg, m.keys.Refresh):
		if m.scheduler != nil {
			m.scheduler.Refresh()
		}
		return m, m.fetchChats()

	case key.Matches(msg, m.keys.Compose):
		if m.state.SelectedChat == 0 {
			m.errText = "open a chat first"
			return m, nil
		}
		m.compose = true
		return m, m.input.Focus()

	case key.Matches(msg, m.keys.MarkAllRead):
		m.feed.MarkAllAsRead()
		return m, nil

	case key.Matches(msg, m.keys.ClearAll):
		m.feed.Clear()
		return m, nil

	case key.Matches(msg, m.keys.Back):
		if m.state.SelectedChat != 0 {
			return m, m.selectChat(0)
		}
		return m, nil
	}

	if m.active == paneNotifications {
		return m.handleNotificationKeys(msg)
	}

	if key.Matches(msg, m.keys.Select) {
		item, ok := m.chats.SelectedItem().(chatItem)
		if !ok {
			return m, nil
		}
		return m, m.openChat(item.chat.ID)
	}

	var cmd tea.Cmd
	m.chats, cmd = m.chats.Update(msg)
	return m, cmd
}

// handleNotificationKeys moves through and dismisses notifications.
func (m *Model) handleNotificationKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Down):
		if m.noteIdx < len(m.notes)-1 {
			m.noteIdx++
		}
	case key.Matches(msg, m.keys.Up):
		if m.noteIdx > 0 {
			m.noteIdx--
		}
	case key.Matches(msg, m.keys.Dismiss):
		if m.noteIdx < len(m.notes) {
			m.feed.Remove(m.notes[m.noteIdx].ID)
		}
	case key.Matches(msg, m.keys.Select):
		if m.noteIdx < len(m.notes) && m.notes[m.noteIdx].ChatID != 0 {
			chatID := m.notes[m.noteIdx].ChatID
			m.feed.Remove(m.notes[m.noteIdx].ID)
			m.active = paneChats
			return m, m.openChat(chatID)
		}
	}
	return m, nil
}

// applyState copies a snapshot into the view, keeping the list cursor on
// the same chat when it moved.
func (m *Model) applyState(s chatsync.State) {
	var cursorID int64
	if item, ok := m.chats.SelectedItem().(chatItem); ok {
		cursorID = item.chat.ID
	}

	m.state = s
	items := make([]list.Item, len(s.Chats))
	cursor := 0
	for i, c := range s.Chats {
		items[i] = chatItem{chat: c, userID: m.userID}
		if c.ID == cursorID {
			cursor = i
		}
	}
	m.chats.SetItems(items)
	m.chats.Select(cursor)
}

func (m *Model) resize() {
	sidebar, _ := m.layout.SplitWidths()
	m.chats.SetSize(sidebar-4, m.layout.ContentHeight()-2)
	_, main := m.layout.SplitWidths()
	m.input.Width = max(10, main-8)
	m.help.Width = m.layout.Width
}

// fetchChats reloads the chat list; the result arrives as a snapshot.
func (m *Model) fetchChats() tea.Cmd {
	engine := m.engine
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		engine.FetchChats(ctx)
		return nil
	}
}

// openChat connects the chat socket and selects the chat.
func (m *Model) openChat(chatID int64) tea.Cmd {
	engine, userID := m.engine, m.userID
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		if _, err := engine.InitializeWebSocket(ctx, chatID, userID); err != nil {
			return errMsg{err: err}
		}
		engine.SetSelectedChat(ctx, chatID)
		return nil
	}
}

// selectChat changes the selection without touching sockets.
func (m *Model) selectChat(chatID int64) tea.Cmd {
	engine := m.engine
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		engine.SetSelectedChat(ctx, chatID)
		return nil
	}
}

// send writes content to the chat socket.
func (m *Model) send(chatID int64, content string) tea.Cmd {
	engine, userID := m.engine, m.userID
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		if err := engine.HandleSendMessage(ctx, chatID, content, userID); err != nil {
			return errMsg{err: err}
		}
		return sentMsg{}
	}
}

// View renders the full terminal UI using the layout manager.
func (m *Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	title := "teamdesk"
	if n := m.feed.UnreadCount(); n > 0 {
		title = fmt.Sprintf("teamdesk [%d new]", n)
	}
	header := m.layout.RenderHeader(title, m.taskStatus())

	sidebar, main := m.layout.SplitWidths()
	height := m.layout.ContentHeight()

	chatPane := theme.PaneStyle
	notePane := theme.PaneStyle
	if m.active == paneChats {
		chatPane = theme.ActivePaneStyle
	} else {
		notePane = theme.ActivePaneStyle
	}

	noteHeight := min(len(m.notes)+1, height/3) + 1
	convHeight := height - noteHeight - 4

	left := chatPane.Width(sidebar - 2).Height(height - 2).Render(m.chats.View())
	right := lipgloss.JoinVertical(lipgloss.Left,
		theme.PaneStyle.Width(main-2).Height(convHeight).Render(m.renderConversation(convHeight, main-4)),
		notePane.Width(main-2).Height(noteHeight).Render(m.renderNotifications(noteHeight, main-4)),
	)

	content := m.layout.RenderColumns(left, right)
	return m.layout.RenderWithFrame(header, content, m.layout.RenderStatusBar(m.statusLine()))
}

// renderConversation shows the tail of the selected chat and the input.
func (m *Model) renderConversation(height, width int) string {
	if m.state.SelectedChat == 0 {
		return theme.HelpStyle.Render("select a chat and press enter")
	}

	var name string
	for _, c := range m.state.Chats {
		if c.ID == m.state.SelectedChat {
			name = c.DisplayName(m.userID)
			break
		}
	}

	lines := []string{theme.PaneTitleStyle.Render(name)}
	messages := m.state.Messages[m.state.SelectedChat]

	room := height - 3
	if room < 0 {
		room = 0
	}
	if len(messages) > room {
		messages = messages[len(messages)-room:]
	}
	for _, msg := range messages {
		content := msg.Content
		if len(msg.Attachments) > 0 {
			names := make([]string, len(msg.Attachments))
			for i, a := range msg.Attachments {
				names[i] = a.FileName
			}
			content = strings.TrimSpace(content + " [" + strings.Join(names, ", ") + "]")
		}
		line := fmt.Sprintf("%s %s %s",
			theme.TimestampStyle.Render(msg.Timestamp.Local().Format("15:04")),
			theme.SenderStyle.Render(msg.Sender.Name),
			content,
		)
		lines = append(lines, truncate(line, width+40))
	}

	if m.compose {
		lines = append(lines, m.input.View())
	}
	return strings.Join(lines, "\n")
}

// renderNotifications lists the feed, newest first.
func (m *Model) renderNotifications(height, width int) string {
	lines := []string{theme.PaneTitleStyle.Render(fmt.Sprintf("Notifications (%d)", len(m.notes)))}
	if len(m.notes) == 0 {
		return strings.Join(append(lines, theme.HelpStyle.Render("nothing yet")), "\n")
	}

	for i, n := range m.notes {
		if len(lines) >= height {
			break
		}
		label := theme.NotificationStyle(n.Type).Render(n.Type)
		text := truncate(n.Message, width-lipgloss.Width(label)-4)
		if !n.Read {
			text = theme.UnreadStyle.Render(text)
		}
		style := theme.ListItemStyle
		if m.active == paneNotifications && i == m.noteIdx {
			style = theme.SelectedItemStyle
		}
		lines = append(lines, style.Render(label+" "+text))
	}
	return strings.Join(lines, "\n")
}

// taskStatus summarizes the reminder scheduler for the header.
func (m *Model) taskStatus() string {
	if m.scheduler == nil {
		return ""
	}
	st := m.scheduler.Status()
	switch {
	case st.Error != nil && api.IsAuthError(st.Error):
		return "⚠ session expired"
	case st.Error != nil:
		return "⚠ tasks unreachable"
	case st.LastFetch.IsZero():
		return "syncing tasks"
	default:
		return fmt.Sprintf("%d tasks · %s", st.TaskCount, st.LastFetch.Local().Format("15:04"))
	}
}

// statusLine returns the error or the key hints for the status bar.
func (m *Model) statusLine() string {
	if m.errText != "" {
		return theme.ErrorStyle.Render(m.errText)
	}
	if m.compose {
		return "enter send | esc cancel"
	}
	return m.help.View(m.keys)
}
