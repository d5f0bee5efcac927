package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/vadim/tutor-support/internal/domain/support/entity"
)

// SupportAPI defines the support-messaging endpoints used by the chat client
type SupportAPI interface {
	ListAdmins(ctx context.Context, query string) ([]entity.AdminUser, error)
	ListConversations(ctx context.Context) ([]entity.Conversation, error)
	ListMessages(ctx context.Context, conversationID string) ([]entity.Message, error)
	StartWithAdmin(ctx context.Context, adminID string) (*entity.Conversation, error)
	SendMessage(ctx context.Context, conversationID, body string) (*entity.Message, error)
}

// Notifier surfaces transient notifications for user-initiated actions
type Notifier interface {
	Notify(message string)
}

// NotifierFunc adapts a function to Notifier
type NotifierFunc func(message string)

// Notify calls f(message)
func (f NotifierFunc) Notify(message string) { f(message) }

// Self identifies the signed-in user; it is stamped on optimistic messages
type Self struct {
	ID   string
	Name string
	Role entity.Role
}

const (
	keyConversations = "conversations"
	keyAdmins        = "admins"
)

func messagesKey(conversationID string) string {
	return "messages:" + conversationID
}

// Manager caches conversations, admin search results and message history for the chat client
type Manager struct {
	api      SupportAPI
	self     Self
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time

	mu            sync.Mutex
	conversations []entity.Conversation
	admins        []entity.AdminUser
	messages      map[string][]entity.Message
	pending       map[string][]entity.Message
	drafts        map[string]string
	selected      string
	seq           uint64
	applied       map[string]uint64
	lastTemp      int64
}

// Option configures the Manager
type Option func(*Manager)

// WithNotifier sets the notifier used for failed user actions
func WithNotifier(n Notifier) Option {
	return func(m *Manager) {
		m.notifier = n
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// New creates a new Manager
func New(api SupportAPI, self Self, logger *slog.Logger, opts ...Option) *Manager {
	m := &Manager{
		api:      api,
		self:     self,
		notifier: NotifierFunc(func(string) {}),
		logger:   logger,
		now:      time.Now,
		messages: make(map[string][]entity.Message),
		pending:  make(map[string][]entity.Message),
		drafts:   make(map[string]string),
		applied:  make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// LoadConversations replaces the cached conversation list with the server's.
// On failure the previous list is kept.
func (m *Manager) LoadConversations(ctx context.Context) error {
	seq := m.begin()

	list, err := m.api.ListConversations(ctx)
	if err != nil {
		m.logger.Warn("failed to load conversations", "error", err)
		return fmt.Errorf("loading conversations: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.acceptLocked(keyConversations, seq) {
		m.logger.Debug("discarding stale conversation list", "seq", seq)
		return nil
	}

	m.conversations = append(make([]entity.Conversation, 0, len(list)), list...)
	for i := range m.conversations {
		if m.conversations[i].ID == m.selected {
			m.conversations[i].UnreadCount = 0
		}
	}
	return nil
}

// StartConversation creates or fetches the conversation with an administrator and selects it
func (m *Manager) StartConversation(ctx context.Context, adminID string) (*entity.Conversation, error) {
	conv, err := m.api.StartWithAdmin(ctx, adminID)
	if err != nil {
		m.logger.Error("failed to start conversation", "admin_id", adminID, "error", err)
		m.notifier.Notify("Could not start a chat with this administrator")
		return nil, fmt.Errorf("starting conversation: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	idx := m.indexLocked(func(c *entity.Conversation) bool {
		return c.ID == conv.ID || (conv.AdminID != "" && c.AdminID == conv.AdminID)
	})
	if idx >= 0 {
		m.conversations[idx] = *conv
	} else {
		m.conversations = append([]entity.Conversation{*conv}, m.conversations...)
	}
	m.selected = conv.ID
	// a list load issued before the start must not drop the new conversation
	m.invalidateLocked(keyConversations)

	out := *conv
	return &out, nil
}

// SearchAdmins queries the administrator directory.
// Queries shorter than MinAdminSearchLength clear the results without a request.
func (m *Manager) SearchAdmins(ctx context.Context, query string) ([]entity.AdminUser, error) {
	query = strings.TrimSpace(query)
	if utf8.RuneCountInString(query) < entity.MinAdminSearchLength {
		m.mu.Lock()
		m.admins = nil
		m.invalidateLocked(keyAdmins)
		m.mu.Unlock()
		return nil, nil
	}

	seq := m.begin()

	admins, err := m.api.ListAdmins(ctx, query)
	if err != nil {
		m.logger.Warn("failed to search admins", "query", query, "error", err)
		return nil, fmt.Errorf("searching admins: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.acceptLocked(keyAdmins, seq) {
		m.admins = append(make([]entity.AdminUser, 0, len(admins)), admins...)
	}
	return append([]entity.AdminUser(nil), m.admins...), nil
}

// LoadMessages replaces the cached history of a conversation with the server's.
// Optimistic messages still in flight are kept at the end.
func (m *Manager) LoadMessages(ctx context.Context, conversationID string) error {
	seq := m.begin()

	msgs, err := m.api.ListMessages(ctx, conversationID)
	if err != nil {
		m.logger.Warn("failed to load messages", "conversation_id", conversationID, "error", err)
		return fmt.Errorf("loading messages: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.acceptLocked(messagesKey(conversationID), seq) {
		m.logger.Debug("discarding stale messages", "conversation_id", conversationID, "seq", seq)
		return nil
	}

	next := make([]entity.Message, 0, len(msgs)+len(m.pending[conversationID]))
	next = append(next, msgs...)
	next = append(next, m.pending[conversationID]...)
	m.messages[conversationID] = next
	return nil
}

// Send posts a message with an optimistic insert.
// On success the temporary message is replaced by the server's; on failure it is removed
// and the text is kept as the conversation's failed draft.
func (m *Manager) Send(ctx context.Context, conversationID, text string) (*entity.Message, error) {
	if err := entity.ValidateMessageBody(text); err != nil {
		return nil, err
	}

	m.mu.Lock()
	temp := entity.Message{
		ID:             m.tempIDLocked(),
		ConversationID: conversationID,
		SenderID:       m.self.ID,
		SenderName:     m.self.Name,
		SenderRole:     m.self.Role,
		Body:           text,
		MessageType:    entity.MessageTypeText,
		CreatedAt:      m.now(),
	}
	m.messages[conversationID] = append(m.messages[conversationID], temp)
	m.pending[conversationID] = append(m.pending[conversationID], temp)
	m.mu.Unlock()

	msg, err := m.api.SendMessage(ctx, conversationID, text)
	if err != nil {
		m.mu.Lock()
		m.messages[conversationID] = removeMessage(m.messages[conversationID], temp.ID)
		m.dropPendingLocked(conversationID, temp.ID)
		m.drafts[conversationID] = text
		m.mu.Unlock()

		m.logger.Error("failed to send message", "conversation_id", conversationID, "error", err)
		m.notifier.Notify("Message was not sent")
		return nil, fmt.Errorf("sending message: %w", err)
	}

	if msg.ConversationID == "" {
		msg.ConversationID = conversationID
	}

	m.mu.Lock()
	m.dropPendingLocked(conversationID, temp.ID)
	m.messages[conversationID] = reconcile(m.messages[conversationID], temp.ID, *msg)
	m.invalidateLocked(messagesKey(conversationID))
	if idx := m.indexLocked(func(c *entity.Conversation) bool { return c.ID == conversationID }); idx >= 0 {
		m.conversations[idx].LastMessagePreview = entity.Preview(msg.Body)
		m.conversations[idx].UpdatedAt = msg.CreatedAt
	}
	m.mu.Unlock()

	// The list error is already logged; the send itself succeeded.
	_ = m.LoadConversations(ctx)

	out := *msg
	return &out, nil
}

// TakeFailedDraft returns and clears the text of the last failed send in a conversation
func (m *Manager) TakeFailedDraft(conversationID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	draft := m.drafts[conversationID]
	delete(m.drafts, conversationID)
	return draft
}

// MarkViewed resets the local unread count of a conversation
func (m *Manager) MarkViewed(conversationID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if idx := m.indexLocked(func(c *entity.Conversation) bool { return c.ID == conversationID }); idx >= 0 {
		m.conversations[idx].UnreadCount = 0
	}
}

// Select makes conversationID the active conversation
func (m *Manager) Select(conversationID string) {
	m.mu.Lock()
	m.selected = conversationID
	m.mu.Unlock()
}

// ClearSelection leaves no conversation active
func (m *Manager) ClearSelection() {
	m.Select("")
}

// Selected returns the active conversation id, or "" when none is selected
func (m *Manager) Selected() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.selected
}

// Conversations returns a copy of the cached conversation list
func (m *Manager) Conversations() []entity.Conversation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]entity.Conversation(nil), m.conversations...)
}

// Messages returns a copy of the cached history of a conversation
func (m *Manager) Messages(conversationID string) []entity.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]entity.Message(nil), m.messages[conversationID]...)
}

// Admins returns a copy of the last admin search results
func (m *Manager) Admins() []entity.AdminUser {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]entity.AdminUser(nil), m.admins...)
}

// begin issues the sequence number for a load
func (m *Manager) begin() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	return m.seq
}

// acceptLocked applies a response only if it was issued after the last applied one for key
func (m *Manager) acceptLocked(key string, seq uint64) bool {
	if seq <= m.applied[key] {
		return false
	}
	m.applied[key] = seq
	return true
}

// invalidateLocked makes every load of key issued so far stale
func (m *Manager) invalidateLocked(key string) {
	m.seq++
	m.applied[key] = m.seq
}

func (m *Manager) indexLocked(match func(*entity.Conversation) bool) int {
	for i := range m.conversations {
		if match(&m.conversations[i]) {
			return i
		}
	}
	return -1
}

func (m *Manager) dropPendingLocked(conversationID, tempID string) {
	rest := removeMessage(m.pending[conversationID], tempID)
	if len(rest) == 0 {
		delete(m.pending, conversationID)
		return
	}
	m.pending[conversationID] = rest
}

// tempIDLocked returns a temporary id that is unique even when the clock does not advance
func (m *Manager) tempIDLocked() string {
	ts := m.now()
	if ts.UnixNano() <= m.lastTemp {
		ts = time.Unix(0, m.lastTemp+1)
	}
	m.lastTemp = ts.UnixNano()
	return entity.NewTempID(ts)
}

func removeMessage(msgs []entity.Message, id string) []entity.Message {
	out := msgs[:0:0]
	for _, msg := range msgs {
		if msg.ID != id {
			out = append(out, msg)
		}
	}
	return out
}

// reconcile swaps the temporary message for the canonical one, or drops it when a poll
// already delivered the canonical message
func reconcile(msgs []entity.Message, tempID string, canonical entity.Message) []entity.Message {
	for _, msg := range msgs {
		if msg.ID == canonical.ID {
			return removeMessage(msgs, tempID)
		}
	}

	out := make([]entity.Message, 0, len(msgs))
	replaced := false
	for _, msg := range msgs {
		if msg.ID == tempID {
			out = append(out, canonical)
			replaced = true
			continue
		}
		out = append(out, msg)
	}
	if !replaced {
		out = append(out, canonical)
	}
	return out
}
