package dao

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vadim/tutor-support/internal/domain/support/entity"
)

// MessagePostgres implements message repository for PostgreSQL
type MessagePostgres struct {
	pool *pgxpool.Pool
}

// NewMessagePostgres creates a new PostgreSQL message repository
func NewMessagePostgres(pool *pgxpool.Pool) *MessagePostgres {
	return &MessagePostgres{pool: pool}
}

// Create inserts a message
func (r *MessagePostgres) Create(ctx context.Context, msg *entity.Message) error {
	query := `
		INSERT INTO support_messages (
			id, conversation_id, sender_id, sender_name, sender_role,
			body, message_type, is_read, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.pool.Exec(ctx, query,
		msg.ID,
		msg.ConversationID,
		msg.SenderID,
		msg.SenderName,
		msg.SenderRole,
		msg.Body,
		msg.MessageType,
		msg.IsRead,
		msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}

	return nil
}

// ListByConversation returns the full history of a conversation, oldest first
func (r *MessagePostgres) ListByConversation(ctx context.Context, conversationID string) ([]entity.Message, error) {
	query := `
		SELECT id, conversation_id, sender_id, sender_name, sender_role,
		       body, message_type, is_read, created_at
		FROM support_messages
		WHERE conversation_id = $1
		ORDER BY created_at ASC, id ASC
	`

	rows, err := r.pool.Query(ctx, query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	messages := make([]entity.Message, 0)
	for rows.Next() {
		var msg entity.Message
		if err := rows.Scan(
			&msg.ID,
			&msg.ConversationID,
			&msg.SenderID,
			&msg.SenderName,
			&msg.SenderRole,
			&msg.Body,
			&msg.MessageType,
			&msg.IsRead,
			&msg.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning message row: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating messages: %w", err)
	}

	return messages, nil
}

// MarkRead flags every message in the conversation not sent by readerID as read
func (r *MessagePostgres) MarkRead(ctx context.Context, conversationID, readerID string) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE support_messages SET is_read = TRUE
		 WHERE conversation_id = $1 AND sender_id <> $2 AND NOT is_read`,
		conversationID, readerID,
	)
	if err != nil {
		return 0, fmt.Errorf("marking messages read: %w", err)
	}
	return tag.RowsAffected(), nil
}
