package policy

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vadim/tutor-support/internal/domain/support/entity"
	"github.com/vadim/tutor-support/internal/domain/support/service"
)

// SupportService defines the interface for the support messaging service
type SupportService interface {
	ListAdmins(ctx context.Context, query string) ([]entity.AdminUser, error)
	ListConversations(ctx context.Context, viewerID string) ([]entity.Conversation, error)
	StartConversation(ctx context.Context, in service.StartConversationInput) (*entity.Conversation, error)
	GetMessages(ctx context.Context, in service.GetMessagesInput) ([]entity.Message, error)
	SendMessage(ctx context.Context, in service.SendMessageInput) (*entity.Message, error)
	ArchiveTranscript(ctx context.Context, in service.ArchiveTranscriptInput) (*service.ArchiveTranscriptOutput, error)
}

// RateLimiter decides whether a caller may perform another send
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Caller is the authenticated user behind a request
type Caller struct {
	UserID string
	Role   entity.Role
}

func (c Caller) validate() error {
	if c.UserID == "" || !c.Role.Valid() {
		return entity.ErrUnauthorized
	}
	return nil
}

// Policy enforces who may do what in support messaging
type Policy struct {
	svc     SupportService
	limiter RateLimiter
	logger  *slog.Logger
}

// New creates a new support policy. limiter may be nil.
func New(svc SupportService, limiter RateLimiter, logger *slog.Logger) *Policy {
	return &Policy{
		svc:     svc,
		limiter: limiter,
		logger:  logger,
	}
}

// ListAdmins returns the administrator directory
func (p *Policy) ListAdmins(ctx context.Context, caller Caller, query string) ([]entity.AdminUser, error) {
	if err := caller.validate(); err != nil {
		return nil, err
	}
	return p.svc.ListAdmins(ctx, query)
}

// ListConversations returns the caller's conversations
func (p *Policy) ListConversations(ctx context.Context, caller Caller) ([]entity.Conversation, error) {
	if err := caller.validate(); err != nil {
		return nil, err
	}
	return p.svc.ListConversations(ctx, caller.UserID)
}

// StartConversation opens (or reopens) the caller's chat with an administrator.
// Only students and tutors start chats; staff answer them.
func (p *Policy) StartConversation(ctx context.Context, caller Caller, adminID string) (*entity.Conversation, error) {
	if err := caller.validate(); err != nil {
		return nil, err
	}
	if !caller.Role.CanStartConversation() {
		return nil, entity.ErrForbidden
	}
	return p.svc.StartConversation(ctx, service.StartConversationInput{
		UserID:  caller.UserID,
		AdminID: adminID,
	})
}

// GetMessages returns the history of a conversation the caller takes part in
func (p *Policy) GetMessages(ctx context.Context, caller Caller, conversationID string) ([]entity.Message, error) {
	if err := caller.validate(); err != nil {
		return nil, err
	}
	return p.svc.GetMessages(ctx, service.GetMessagesInput{
		ViewerID:       caller.UserID,
		ConversationID: conversationID,
	})
}

// SendMessageInput represents input for sending a message
type SendMessageInput struct {
	ConversationID string
	Body           string
	MessageType    entity.MessageType
}

// SendMessage sends a message on behalf of the caller
func (p *Policy) SendMessage(ctx context.Context, caller Caller, in SendMessageInput) (*entity.Message, error) {
	if err := caller.validate(); err != nil {
		return nil, err
	}

	if p.limiter != nil {
		ok, err := p.limiter.Allow(ctx, "send:"+caller.UserID)
		switch {
		case err != nil:
			// limiter outage must not take support chat down
			p.logger.Warn("rate limiter unavailable", "user_id", caller.UserID, "error", err)
		case !ok:
			return nil, entity.ErrRateLimited
		}
	}

	return p.svc.SendMessage(ctx, service.SendMessageInput{
		SenderID:       caller.UserID,
		ConversationID: in.ConversationID,
		Body:           in.Body,
		MessageType:    in.MessageType,
	})
}

// ArchiveTranscript stores a transcript of the conversation. Staff only.
func (p *Policy) ArchiveTranscript(ctx context.Context, caller Caller, conversationID string) (*service.ArchiveTranscriptOutput, error) {
	if err := caller.validate(); err != nil {
		return nil, err
	}
	if !caller.Role.IsStaff() {
		return nil, fmt.Errorf("archiving transcript as %s: %w", caller.Role, entity.ErrForbidden)
	}
	return p.svc.ArchiveTranscript(ctx, service.ArchiveTranscriptInput{
		ViewerID:       caller.UserID,
		ConversationID: conversationID,
	})
}
