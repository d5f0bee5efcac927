package entity

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// MessageType represents the type of a support message
type MessageType string

const MessageTypeText MessageType = "text"

// TempIDPrefix marks ids synthesized by the client for optimistic inserts
const TempIDPrefix = "temp_"

// Message is a single chat message
type Message struct {
	ID             string      `json:"id"`
	ConversationID string      `json:"conversationId,omitempty"`
	SenderID       string      `json:"senderId"`
	SenderName     string      `json:"senderName"`
	SenderRole     Role        `json:"senderRole"`
	Body           string      `json:"body"`
	MessageType    MessageType `json:"messageType"`
	CreatedAt      time.Time   `json:"createdAt"`
	IsRead         bool        `json:"isRead"`
}

// IsTemporary reports whether the message is an unacknowledged optimistic insert
func (m *Message) IsTemporary() bool {
	return strings.HasPrefix(m.ID, TempIDPrefix)
}

// NewTempID returns a client-side id for an optimistic message
func NewTempID(now time.Time) string {
	return fmt.Sprintf("%s%d", TempIDPrefix, now.UnixNano())
}

// MaxMessageLength is the maximum length of a message body in characters
const MaxMessageLength = 1000

// ValidateMessageBody validates the body for a message
func ValidateMessageBody(body string) error {
	if strings.TrimSpace(body) == "" {
		return ErrEmptyMessage
	}
	if utf8.RuneCountInString(body) > MaxMessageLength {
		return ErrMessageTooLong
	}
	return nil
}

// ValidateMessageType accepts only text messages
func ValidateMessageType(t MessageType) error {
	if t != "" && t != MessageTypeText {
		return ErrUnsupportedMessageType
	}
	return nil
}
