package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vadim/tutor-support/internal/domain/support/entity"
)

// UserRepository defines the interface for user lookups
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*entity.User, error)
	SearchStaff(ctx context.Context, query string, limit int) ([]entity.User, error)
}

// ConversationRepository defines the interface for conversation storage
type ConversationRepository interface {
	CreateOrGet(ctx context.Context, conv *entity.Conversation) (*entity.Conversation, bool, error)
	GetByID(ctx context.Context, id, viewerID string) (*entity.Conversation, error)
	ListForParticipant(ctx context.Context, userID string) ([]entity.Conversation, error)
	Touch(ctx context.Context, id, preview string, at time.Time) error
}

// MessageRepository defines the interface for message storage
type MessageRepository interface {
	Create(ctx context.Context, msg *entity.Message) error
	ListByConversation(ctx context.Context, conversationID string) ([]entity.Message, error)
	MarkRead(ctx context.Context, conversationID, readerID string) (int64, error)
}

// EventPublisher publishes domain events to the message bus
type EventPublisher interface {
	Publish(ctx context.Context, key string, event any) error
}

// TranscriptStore archives conversation transcripts
type TranscriptStore interface {
	PutTranscript(ctx context.Context, conversationID string, body []byte) (key, url string, err error)
}

// Recorder counts domain activity
type Recorder interface {
	MessageSent(role entity.Role)
	ConversationStarted()
	TranscriptArchived()
}

// Event names published on the bus
const (
	EventConversationStarted = "support.conversation.started"
	EventMessageCreated      = "support.message.created"
)

// Event is the envelope written to the bus
type Event struct {
	Type         string               `json:"type"`
	OccurredAt   time.Time            `json:"occurredAt"`
	Conversation *entity.Conversation `json:"conversation,omitempty"`
	Message      *entity.Message      `json:"message,omitempty"`
}

// maxAdminResults caps a directory lookup
const maxAdminResults = 50

// Service handles support messaging business logic
type Service struct {
	users       UserRepository
	convRepo    ConversationRepository
	msgRepo     MessageRepository
	publisher   EventPublisher
	transcripts TranscriptStore
	recorder    Recorder
	logger      *slog.Logger
	now         func() time.Time
}

// Option configures optional collaborators of the Service
type Option func(*Service)

// WithPublisher sets the event publisher
func WithPublisher(p EventPublisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithTranscriptStore enables transcript archiving
func WithTranscriptStore(t TranscriptStore) Option {
	return func(s *Service) { s.transcripts = t }
}

// WithRecorder sets the metrics recorder
func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New creates a new support messaging service
func New(users UserRepository, convRepo ConversationRepository, msgRepo MessageRepository, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		users:    users,
		convRepo: convRepo,
		msgRepo:  msgRepo,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListAdmins returns the administrator directory filtered by query
func (s *Service) ListAdmins(ctx context.Context, query string) ([]entity.AdminUser, error) {
	users, err := s.users.SearchStaff(ctx, strings.TrimSpace(query), maxAdminResults)
	if err != nil {
		return nil, fmt.Errorf("searching admins: %w", err)
	}

	admins := make([]entity.AdminUser, 0, len(users))
	for i := range users {
		admins = append(admins, users[i].AsAdmin())
	}
	return admins, nil
}

// ListConversations returns every conversation of the viewer
func (s *Service) ListConversations(ctx context.Context, viewerID string) ([]entity.Conversation, error) {
	conversations, err := s.convRepo.ListForParticipant(ctx, viewerID)
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}
	return conversations, nil
}

// StartConversationInput represents input for starting a conversation
type StartConversationInput struct {
	UserID  string
	AdminID string
}

// StartConversation creates the conversation between a user and an administrator, or returns the existing one
func (s *Service) StartConversation(ctx context.Context, in StartConversationInput) (*entity.Conversation, error) {
	if in.AdminID == "" || in.AdminID == in.UserID {
		return nil, entity.ErrInvalidRecipient
	}

	admin, err := s.users.GetByID(ctx, in.AdminID)
	if err != nil {
		return nil, fmt.Errorf("getting admin: %w", err)
	}
	if admin == nil {
		return nil, entity.ErrAdminNotFound
	}
	if !admin.Role.IsStaff() {
		return nil, entity.ErrNotAdmin
	}

	created, inserted, err := s.convRepo.CreateOrGet(ctx, &entity.Conversation{
		ID:      uuid.New().String(),
		Name:    admin.FullName,
		Type:    entity.ConversationTypeDirect,
		UserID:  in.UserID,
		AdminID: admin.ID,
	})
	if err != nil {
		return nil, err
	}

	conv, err := s.convRepo.GetByID(ctx, created.ID, in.UserID)
	if err != nil {
		return nil, fmt.Errorf("reloading conversation: %w", err)
	}
	if conv == nil {
		conv = created
	}

	if inserted {
		s.emit(ctx, conv.ID, Event{Type: EventConversationStarted, Conversation: conv})
		if s.recorder != nil {
			s.recorder.ConversationStarted()
		}
	}

	return conv, nil
}

// GetMessagesInput represents input for reading a conversation
type GetMessagesInput struct {
	ViewerID       string
	ConversationID string
}

// GetMessages returns the full history and marks the counterpart's messages as read
func (s *Service) GetMessages(ctx context.Context, in GetMessagesInput) ([]entity.Message, error) {
	if _, err := s.participantConversation(ctx, in.ConversationID, in.ViewerID); err != nil {
		return nil, err
	}

	messages, err := s.msgRepo.ListByConversation(ctx, in.ConversationID)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}

	if _, err := s.msgRepo.MarkRead(ctx, in.ConversationID, in.ViewerID); err != nil {
		// unread counters lag until the next read; history is still valid
		s.logger.Warn("failed to mark messages read", "conversation_id", in.ConversationID, "error", err)
		return messages, nil
	}

	for i := range messages {
		if messages[i].SenderID != in.ViewerID {
			messages[i].IsRead = true
		}
	}
	return messages, nil
}

// SendMessageInput represents input for sending a message
type SendMessageInput struct {
	SenderID       string
	ConversationID string
	Body           string
	MessageType    entity.MessageType
}

// SendMessage validates and stores a message and returns its canonical form
func (s *Service) SendMessage(ctx context.Context, in SendMessageInput) (*entity.Message, error) {
	if err := entity.ValidateMessageBody(in.Body); err != nil {
		return nil, err
	}
	if err := entity.ValidateMessageType(in.MessageType); err != nil {
		return nil, err
	}

	if _, err := s.participantConversation(ctx, in.ConversationID, in.SenderID); err != nil {
		return nil, err
	}

	sender, err := s.users.GetByID(ctx, in.SenderID)
	if err != nil {
		return nil, fmt.Errorf("getting sender: %w", err)
	}
	if sender == nil {
		return nil, entity.ErrUserNotFound
	}

	msg := &entity.Message{
		ID:             uuid.New().String(),
		ConversationID: in.ConversationID,
		SenderID:       sender.ID,
		SenderName:     sender.FullName,
		SenderRole:     sender.Role,
		Body:           in.Body,
		MessageType:    entity.MessageTypeText,
		CreatedAt:      s.now().UTC(),
	}

	if err := s.msgRepo.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("storing message: %w", err)
	}

	if err := s.convRepo.Touch(ctx, in.ConversationID, entity.Preview(msg.Body), msg.CreatedAt); err != nil {
		s.logger.Warn("failed to update conversation preview", "conversation_id", in.ConversationID, "error", err)
	}

	s.emit(ctx, in.ConversationID, Event{Type: EventMessageCreated, Message: msg})
	if s.recorder != nil {
		s.recorder.MessageSent(msg.SenderRole)
	}

	return msg, nil
}

// ArchiveTranscriptInput represents input for archiving a conversation transcript
type ArchiveTranscriptInput struct {
	ViewerID       string
	ConversationID string
}

// ArchiveTranscriptOutput represents output from archiving a transcript
type ArchiveTranscriptOutput struct {
	Key string `json:"key"`
	URL string `json:"url"`
}

// ArchiveTranscript uploads the full conversation history to object storage
func (s *Service) ArchiveTranscript(ctx context.Context, in ArchiveTranscriptInput) (*ArchiveTranscriptOutput, error) {
	if s.transcripts == nil {
		return nil, entity.ErrArchiveDisabled
	}

	conv, err := s.participantConversation(ctx, in.ConversationID, in.ViewerID)
	if err != nil {
		return nil, err
	}

	messages, err := s.msgRepo.ListByConversation(ctx, in.ConversationID)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}

	body, err := json.MarshalIndent(entity.Transcript{
		Conversation: *conv,
		Messages:     messages,
		ArchivedBy:   in.ViewerID,
		ArchivedAt:   s.now().UTC(),
	}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding transcript: %w", err)
	}

	key, url, err := s.transcripts.PutTranscript(ctx, conv.ID, body)
	if err != nil {
		return nil, fmt.Errorf("archiving transcript: %w", err)
	}

	if s.recorder != nil {
		s.recorder.TranscriptArchived()
	}
	return &ArchiveTranscriptOutput{Key: key, URL: url}, nil
}

// participantConversation loads a conversation and ensures viewerID takes part in it
func (s *Service) participantConversation(ctx context.Context, conversationID, viewerID string) (*entity.Conversation, error) {
	conv, err := s.convRepo.GetByID(ctx, conversationID, viewerID)
	if err != nil {
		return nil, fmt.Errorf("getting conversation: %w", err)
	}
	if conv == nil {
		return nil, entity.ErrConversationNotFound
	}
	if !conv.HasParticipant(viewerID) {
		return nil, entity.ErrForbidden
	}
	return conv, nil
}

// emit publishes best-effort; delivery problems never fail the request
func (s *Service) emit(ctx context.Context, key string, ev Event) {
	if s.publisher == nil {
		return
	}
	ev.OccurredAt = s.now().UTC()
	if err := s.publisher.Publish(ctx, key, ev); err != nil {
		s.logger.Warn("failed to publish event", "type", ev.Type, "key", key, "error", err)
	}
}
