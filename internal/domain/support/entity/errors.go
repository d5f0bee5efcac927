package entity

import "errors"

// Domain errors for support messaging
var (
	ErrConversationNotFound   = errors.New("conversation not found")
	ErrAdminNotFound          = errors.New("administrator not found")
	ErrUserNotFound           = errors.New("user not found")
	ErrNotAdmin               = errors.New("counterpart must be an administrator")
	ErrForbidden              = errors.New("not allowed to perform this action")
	ErrUnauthorized           = errors.New("unauthorized")
	ErrEmptyMessage           = errors.New("message body cannot be empty")
	ErrMessageTooLong         = errors.New("message exceeds maximum length")
	ErrUnsupportedMessageType = errors.New("unsupported message type")
	ErrInvalidRecipient       = errors.New("invalid recipient")
	ErrRateLimited            = errors.New("rate limit exceeded")
	ErrArchiveDisabled        = errors.New("transcript archive is not configured")
)
