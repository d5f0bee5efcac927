package entity

import "time"

// Transcript is the archived form of a conversation
type Transcript struct {
	Conversation Conversation `json:"conversation"`
	Messages     []Message    `json:"messages"`
	ArchivedBy   string       `json:"archivedBy"`
	ArchivedAt   time.Time    `json:"archivedAt"`
}
