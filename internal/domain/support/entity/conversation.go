package entity

import "time"

// ConversationType is the kind of conversation; support chats are always direct
type ConversationType string

const ConversationTypeDirect ConversationType = "direct"

// Conversation is a 1:1 support thread between a student/tutor and one administrator
type Conversation struct {
	ID                 string           `json:"id"`
	Name               string           `json:"name"`
	Type               ConversationType `json:"type"`
	UserID             string           `json:"userId"`
	AdminID            string           `json:"adminId"`
	LastMessagePreview string           `json:"lastMessagePreview"`
	UnreadCount        int              `json:"unreadCount"`
	CreatedAt          time.Time        `json:"createdAt"`
	UpdatedAt          time.Time        `json:"updatedAt"`
}

// HasParticipant reports whether userID is one of the two sides of the conversation
func (c *Conversation) HasParticipant(userID string) bool {
	return c.UserID == userID || c.AdminID == userID
}

// MaxPreviewLength bounds lastMessagePreview
const MaxPreviewLength = 120

// Preview shortens a message body for conversation list rendering
func Preview(body string) string {
	r := []rune(body)
	if len(r) <= MaxPreviewLength {
		return body
	}
	return string(r[:MaxPreviewLength-1]) + "…"
}
