// Package tui renders the support chat widget in the terminal.
package tui

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/vadim/tutor-support/internal/domain/chatclient/policy"
	"github.com/vadim/tutor-support/internal/domain/support/entity"
)

const (
	refreshInterval = 500 * time.Millisecond
	toastTTL        = 4 * time.Second
	listWidth       = 30
)

// Widget defines the chat widget operations driven by key presses
type Widget interface {
	State() policy.State
	Toggle(ctx context.Context) error
	Select(ctx context.Context, conversationID string) error
	Deselect()
	StartChatWithAdmin(ctx context.Context, adminID string) error
	Search(ctx context.Context, query string) ([]entity.AdminUser, error)
	Compose(text string)
	ComposeText() string
	Send(ctx context.Context) error
	Conversations() []entity.Conversation
	Selected() string
	Messages() []entity.Message
	Admins() []entity.AdminUser
}

// Toasts collects notifications raised by chat actions for the status line
type Toasts struct {
	mu   sync.Mutex
	text string
	at   time.Time
}

// Notify records a notification
func (t *Toasts) Notify(message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.text = message
	t.at = time.Now()
}

// Current returns the latest notification if it is younger than ttl
func (t *Toasts) Current(now time.Time, ttl time.Duration) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.text == "" || now.Sub(t.at) > ttl {
		return ""
	}
	return t.text
}

type mode int

const (
	modeChat mode = iota
	modeSearch
)

type (
	tickMsg   time.Time
	actionMsg struct {
		kind string
		err  error
	}
)

// Model is the bubbletea model of the chat widget
type Model struct {
	ctx    context.Context
	widget Widget
	toasts *Toasts
	selfID string

	input    textinput.Model
	viewport viewport.Model

	mode        mode
	adminCursor int
	width       int
	height      int
	ready       bool
}

// New creates the model
func New(ctx context.Context, widget Widget, toasts *Toasts, selfID string) Model {
	ti := textinput.New()
	ti.Placeholder = "Type a message..."
	ti.CharLimit = entity.MaxMessageLength
	ti.Focus()

	if toasts == nil {
		toasts = &Toasts{}
	}

	return Model{
		ctx:      ctx,
		widget:   widget,
		toasts:   toasts,
		selfID:   selfID,
		input:    ti,
		viewport: viewport.New(80, 20),
	}
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Init starts the refresh tick
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, tick())
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = max(msg.Width-listWidth-4, 20)
		m.viewport.Height = max(msg.Height-6, 5)
		m.input.Width = max(msg.Width-listWidth-8, 10)
		m.ready = true
		m.refresh()

	case tickMsg:
		m.refresh()
		return m, tick()

	case actionMsg:
		if msg.err != nil && msg.kind == "send" && m.input.Value() == "" {
			m.input.SetValue(m.widget.ComposeText())
			m.input.CursorEnd()
		}
		m.refresh()
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "ctrl+o":
		return m, m.action("toggle", m.widget.Toggle)
	}

	if m.widget.State() == policy.StateClosed {
		return m, nil
	}

	if m.mode == modeSearch {
		return m.handleSearchKey(msg)
	}

	switch msg.String() {
	case "tab":
		if id := nextConversation(m.widget.Conversations(), m.widget.Selected()); id != "" {
			return m, m.action("select", func(ctx context.Context) error {
				return m.widget.Select(ctx, id)
			})
		}
		return m, nil

	case "esc":
		m.widget.Deselect()
		m.input.Reset()
		m.refresh()
		return m, nil

	case "/":
		if m.input.Value() == "" {
			m.mode = modeSearch
			m.adminCursor = 0
			m.input.Placeholder = "Search administrators (2+ characters)..."
			return m, nil
		}

	case "enter":
		text := m.input.Value()
		if text == "" {
			return m, nil
		}
		m.widget.Compose(text)
		m.input.Reset()
		return m, m.action("send", m.widget.Send)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleSearchKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.leaveSearch()
		return m, nil

	case "up":
		if m.adminCursor > 0 {
			m.adminCursor--
		}
		return m, nil

	case "down":
		if m.adminCursor < len(m.widget.Admins())-1 {
			m.adminCursor++
		}
		return m, nil

	case "enter":
		admins := m.widget.Admins()
		if m.adminCursor >= len(admins) {
			return m, nil
		}
		adminID := admins[m.adminCursor].ID
		m.leaveSearch()
		return m, m.action("start", func(ctx context.Context) error {
			return m.widget.StartChatWithAdmin(ctx, adminID)
		})
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	query := m.input.Value()
	m.adminCursor = 0
	search := m.action("search", func(ctx context.Context) error {
		_, err := m.widget.Search(ctx, query)
		return err
	})
	return m, tea.Batch(cmd, search)
}

func (m *Model) leaveSearch() {
	m.mode = modeChat
	m.input.Reset()
	m.input.Placeholder = "Type a message..."
}

// action runs fn off the update loop and reports its result as an actionMsg
func (m Model) action(kind string, fn func(ctx context.Context) error) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		return actionMsg{kind: kind, err: fn(ctx)}
	}
}

func (m *Model) refresh() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(renderMessages(m.widget.Messages(), m.selfID, m.viewport.Width))
	m.viewport.GotoBottom()
}

func nextConversation(convs []entity.Conversation, selected string) string {
	if len(convs) == 0 {
		return ""
	}
	for i, c := range convs {
		if c.ID == selected {
			return convs[(i+1)%len(convs)].ID
		}
	}
	return convs[0].ID
}
