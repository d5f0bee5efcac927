package policy

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/vadim/tutor-support/internal/domain/support/entity"
)

var (
	ErrClosed         = errors.New("chat widget is closed")
	ErrNoConversation = errors.New("no conversation selected")
)

// State is the top-level state of the chat widget
type State string

const (
	StateClosed      State = "closed"
	StateNoSelection State = "open/no-conversation-selected"
	StateActive      State = "open/conversation-active"
)

// ChatManager defines the client cache and actions the widget drives
type ChatManager interface {
	LoadConversations(ctx context.Context) error
	StartConversation(ctx context.Context, adminID string) (*entity.Conversation, error)
	SearchAdmins(ctx context.Context, query string) ([]entity.AdminUser, error)
	LoadMessages(ctx context.Context, conversationID string) error
	Send(ctx context.Context, conversationID, text string) (*entity.Message, error)
	TakeFailedDraft(conversationID string) string
	MarkViewed(conversationID string)
	Select(conversationID string)
	ClearSelection()
	Selected() string
	Conversations() []entity.Conversation
	Messages(conversationID string) []entity.Message
	Admins() []entity.AdminUser
}

// Poller defines the polling loops owned by the widget
type Poller interface {
	Start(ctx context.Context)
	Stop()
	Watch(conversationID string)
	Unwatch()
}

// Widget is the chat widget: closed, or open with or without an active conversation
type Widget struct {
	chat   ChatManager
	poller Poller
	logger *slog.Logger

	mu      sync.Mutex
	open    bool
	compose string
}

// New creates a new closed Widget
func New(chat ChatManager, poller Poller, logger *slog.Logger) *Widget {
	return &Widget{
		chat:   chat,
		poller: poller,
		logger: logger,
	}
}

// State returns the current widget state
func (w *Widget) State() State {
	w.mu.Lock()
	open := w.open
	w.mu.Unlock()

	switch {
	case !open:
		return StateClosed
	case w.chat.Selected() == "":
		return StateNoSelection
	default:
		return StateActive
	}
}

// Open opens the widget, loads the conversation list and starts polling.
// A failed initial load leaves the widget open; the poller retries.
func (w *Widget) Open(ctx context.Context) error {
	w.mu.Lock()
	if w.open {
		w.mu.Unlock()
		return nil
	}
	w.open = true
	w.mu.Unlock()

	w.logger.Info("chat widget opened")
	w.poller.Start(ctx)

	if id := w.chat.Selected(); id != "" {
		w.poller.Watch(id)
	}
	return w.chat.LoadConversations(ctx)
}

// Close stops all polling. The selection is kept for the next Open.
func (w *Widget) Close() {
	w.mu.Lock()
	if !w.open {
		w.mu.Unlock()
		return
	}
	w.open = false
	w.mu.Unlock()

	w.poller.Stop()
	w.logger.Info("chat widget closed")
}

// Toggle opens a closed widget and closes an open one
func (w *Widget) Toggle(ctx context.Context) error {
	if w.State() == StateClosed {
		return w.Open(ctx)
	}
	w.Close()
	return nil
}

// Select activates a conversation, resets its unread count and starts polling its messages
func (w *Widget) Select(ctx context.Context, conversationID string) error {
	if err := w.requireOpen(); err != nil {
		return err
	}

	if w.chat.Selected() != conversationID {
		w.setCompose("")
	}
	w.chat.Select(conversationID)
	w.chat.MarkViewed(conversationID)
	w.poller.Watch(conversationID)

	return w.chat.LoadMessages(ctx, conversationID)
}

// Deselect returns to the conversation list and stops message polling
func (w *Widget) Deselect() {
	w.poller.Unwatch()
	w.chat.ClearSelection()
	w.setCompose("")
}

// StartChatWithAdmin opens (or reopens) the conversation with an administrator and selects it
func (w *Widget) StartChatWithAdmin(ctx context.Context, adminID string) error {
	if err := w.requireOpen(); err != nil {
		return err
	}

	conv, err := w.chat.StartConversation(ctx, adminID)
	if err != nil {
		return err
	}
	return w.Select(ctx, conv.ID)
}

// Search looks up administrators for the "start new chat" picker
func (w *Widget) Search(ctx context.Context, query string) ([]entity.AdminUser, error) {
	if err := w.requireOpen(); err != nil {
		return nil, err
	}
	return w.chat.SearchAdmins(ctx, query)
}

// Compose replaces the compose-box text
func (w *Widget) Compose(text string) {
	w.setCompose(text)
}

// ComposeText returns the compose-box text
func (w *Widget) ComposeText() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.compose
}

// Send sends the compose-box text to the active conversation.
// The box is cleared immediately and refilled if the send fails.
func (w *Widget) Send(ctx context.Context) error {
	if err := w.requireOpen(); err != nil {
		return err
	}
	id := w.chat.Selected()
	if id == "" {
		return ErrNoConversation
	}

	w.mu.Lock()
	text := w.compose
	w.compose = ""
	w.mu.Unlock()

	if _, err := w.chat.Send(ctx, id, text); err != nil {
		if draft := w.chat.TakeFailedDraft(id); draft != "" {
			text = draft
		}
		w.mu.Lock()
		if w.compose == "" {
			w.compose = text
		}
		w.mu.Unlock()
		return err
	}
	return nil
}

// Conversations returns the cached conversation list
func (w *Widget) Conversations() []entity.Conversation {
	return w.chat.Conversations()
}

// Selected returns the active conversation id
func (w *Widget) Selected() string {
	return w.chat.Selected()
}

// Messages returns the cached history of the active conversation
func (w *Widget) Messages() []entity.Message {
	id := w.chat.Selected()
	if id == "" {
		return nil
	}
	return w.chat.Messages(id)
}

// Admins returns the last admin search results
func (w *Widget) Admins() []entity.AdminUser {
	return w.chat.Admins()
}

func (w *Widget) requireOpen() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.open {
		return ErrClosed
	}
	return nil
}

func (w *Widget) setCompose(text string) {
	w.mu.Lock()
	w.compose = text
	w.mu.Unlock()
}
