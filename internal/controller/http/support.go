package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vadim/tutor-support/internal/domain/support/entity"
	"github.com/vadim/tutor-support/internal/domain/support/policy"
	"github.com/vadim/tutor-support/internal/domain/support/service"
	"github.com/vadim/tutor-support/internal/httpx/middleware"
	"github.com/vadim/tutor-support/internal/httpx/response"
)

// SupportPolicy defines the interface for support messaging operations
type SupportPolicy interface {
	ListAdmins(ctx context.Context, caller policy.Caller, query string) ([]entity.AdminUser, error)
	ListConversations(ctx context.Context, caller policy.Caller) ([]entity.Conversation, error)
	StartConversation(ctx context.Context, caller policy.Caller, adminID string) (*entity.Conversation, error)
	GetMessages(ctx context.Context, caller policy.Caller, conversationID string) ([]entity.Message, error)
	SendMessage(ctx context.Context, caller policy.Caller, in policy.SendMessageInput) (*entity.Message, error)
	ArchiveTranscript(ctx context.Context, caller policy.Caller, conversationID string) (*service.ArchiveTranscriptOutput, error)
}

// SupportHandler handles HTTP requests for admin-moderated support chat
type SupportHandler struct {
	policy SupportPolicy
	auth   func(http.Handler) http.Handler
}

// NewSupportHandler creates a new support chat handler. auth authenticates every route.
func NewSupportHandler(p SupportPolicy, auth func(http.Handler) http.Handler) *SupportHandler {
	return &SupportHandler{policy: p, auth: auth}
}

// RegisterRoutes registers support messaging routes
func (h *SupportHandler) RegisterRoutes(r chi.Router) {
	r.Route("/support-messaging", func(r chi.Router) {
		r.Use(h.auth)

		// Administrator directory
		r.Get("/admins", h.ListAdmins())

		r.Route("/chats", func(r chi.Router) {
			r.Get("/", h.ListConversations())
			r.Post("/start-with-admin", h.StartWithAdmin())
			r.Get("/{chatId}/messages", h.GetMessages())
			r.Post("/{chatId}/messages", h.SendMessage())
			r.Post("/{chatId}/transcript", h.ArchiveTranscript())
		})
	})
}

// ListAdminsResponse represents the response for the administrator directory
type ListAdminsResponse struct {
	Admins []entity.AdminUser `json:"admins"`
}

// ListAdmins handles GET /support-messaging/admins?search=
func (h *SupportHandler) ListAdmins() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		admins, err := h.policy.ListAdmins(r.Context(), callerFrom(r), r.URL.Query().Get("search"))
		if err != nil {
			handleSupportError(w, err)
			return
		}
		response.OK(w, ListAdminsResponse{Admins: admins})
	}
}

// ListConversationsResponse represents the response for listing conversations
type ListConversationsResponse struct {
	Chats []entity.Conversation `json:"chats"`
}

// ListConversations handles GET /support-messaging/chats
func (h *SupportHandler) ListConversations() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		chats, err := h.policy.ListConversations(r.Context(), callerFrom(r))
		if err != nil {
			handleSupportError(w, err)
			return
		}
		response.OK(w, ListConversationsResponse{Chats: chats})
	}
}

// StartWithAdminRequest represents the request body for starting a conversation
type StartWithAdminRequest struct {
	AdminID string `json:"adminId"`
}

// StartWithAdmin handles POST /support-messaging/chats/start-with-admin
func (h *SupportHandler) StartWithAdmin() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req StartWithAdminRequest
		if err := response.DecodeJSON(r, &req); err != nil {
			response.BadRequest(w, err.Error())
			return
		}
		if req.AdminID == "" {
			response.BadRequest(w, "adminId is required")
			return
		}

		conv, err := h.policy.StartConversation(r.Context(), callerFrom(r), req.AdminID)
		if err != nil {
			handleSupportError(w, err)
			return
		}
		response.OK(w, conv)
	}
}

// GetMessagesResponse represents the response for a conversation history
type GetMessagesResponse struct {
	Messages []entity.Message `json:"messages"`
}

// GetMessages handles GET /support-messaging/chats/{chatId}/messages
func (h *SupportHandler) GetMessages() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		messages, err := h.policy.GetMessages(r.Context(), callerFrom(r), chi.URLParam(r, "chatId"))
		if err != nil {
			handleSupportError(w, err)
			return
		}
		response.OK(w, GetMessagesResponse{Messages: messages})
	}
}

// SendMessageRequest represents the request body for sending a message
type SendMessageRequest struct {
	Body        string             `json:"body"`
	MessageType entity.MessageType `json:"messageType,omitempty"`
}

// SendMessage handles POST /support-messaging/chats/{chatId}/messages
func (h *SupportHandler) SendMessage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SendMessageRequest
		if err := response.DecodeJSON(r, &req); err != nil {
			response.BadRequest(w, err.Error())
			return
		}

		msg, err := h.policy.SendMessage(r.Context(), callerFrom(r), policy.SendMessageInput{
			ConversationID: chi.URLParam(r, "chatId"),
			Body:           req.Body,
			MessageType:    req.MessageType,
		})
		if err != nil {
			handleSupportError(w, err)
			return
		}
		response.Created(w, msg)
	}
}

// ArchiveTranscript handles POST /support-messaging/chats/{chatId}/transcript
func (h *SupportHandler) ArchiveTranscript() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := h.policy.ArchiveTranscript(r.Context(), callerFrom(r), chi.URLParam(r, "chatId"))
		if err != nil {
			handleSupportError(w, err)
			return
		}
		response.Created(w, out)
	}
}

func callerFrom(r *http.Request) policy.Caller {
	id, _ := middleware.IdentityFrom(r.Context())
	return policy.Caller{UserID: id.UserID, Role: id.Role}
}

func handleSupportError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, entity.ErrConversationNotFound),
		errors.Is(err, entity.ErrAdminNotFound),
		errors.Is(err, entity.ErrUserNotFound):
		response.NotFound(w, rootMessage(err))
	case errors.Is(err, entity.ErrEmptyMessage),
		errors.Is(err, entity.ErrMessageTooLong),
		errors.Is(err, entity.ErrUnsupportedMessageType),
		errors.Is(err, entity.ErrInvalidRecipient),
		errors.Is(err, entity.ErrNotAdmin):
		response.BadRequest(w, rootMessage(err))
	case errors.Is(err, entity.ErrUnauthorized):
		response.Unauthorized(w, rootMessage(err))
	case errors.Is(err, entity.ErrForbidden):
		response.Forbidden(w, rootMessage(err))
	case errors.Is(err, entity.ErrRateLimited):
		response.TooManyRequests(w, rootMessage(err))
	case errors.Is(err, entity.ErrArchiveDisabled):
		response.ServiceUnavailable(w, rootMessage(err))
	default:
		response.InternalError(w, "internal server error")
	}
}

// rootMessage returns the innermost error text so wrapping context never leaks to clients
func rootMessage(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err.Error()
		}
		err = next
	}
}
