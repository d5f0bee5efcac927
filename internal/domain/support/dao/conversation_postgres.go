package dao

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vadim/tutor-support/internal/domain/support/entity"
)

// ConversationPostgres implements conversation repository for PostgreSQL
type ConversationPostgres struct {
	pool *pgxpool.Pool
}

// NewConversationPostgres creates a new PostgreSQL conversation repository
func NewConversationPostgres(pool *pgxpool.Pool) *ConversationPostgres {
	return &ConversationPostgres{pool: pool}
}

// viewerProjection selects a conversation as seen by $1: staff see the requester's name,
// everybody else sees the admin name snapshot. Unread counts only the other side's messages.
const viewerProjection = `
	SELECT c.id,
	       CASE WHEN c.admin_id = $1 THEN u.full_name ELSE c.name END,
	       c.user_id, c.admin_id, c.last_message_preview,
	       (SELECT COUNT(*) FROM support_messages m
	         WHERE m.conversation_id = c.id AND m.sender_id <> $1 AND NOT m.is_read),
	       c.created_at, c.updated_at
	FROM support_conversations c
	JOIN users u ON u.id = c.user_id
`

// CreateOrGet inserts the conversation or returns the existing one for the same user/admin pair.
// The boolean reports whether a new row was inserted.
func (r *ConversationPostgres) CreateOrGet(ctx context.Context, conv *entity.Conversation) (*entity.Conversation, bool, error) {
	query := `
		INSERT INTO support_conversations (id, user_id, admin_id, name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (user_id, admin_id)
		DO UPDATE SET updated_at = support_conversations.updated_at
		RETURNING id, name, user_id, admin_id, last_message_preview, created_at, updated_at, (xmax = 0)
	`

	var out entity.Conversation
	var inserted bool
	err := r.pool.QueryRow(ctx, query,
		conv.ID,
		conv.UserID,
		conv.AdminID,
		conv.Name,
		time.Now(),
	).Scan(
		&out.ID,
		&out.Name,
		&out.UserID,
		&out.AdminID,
		&out.LastMessagePreview,
		&out.CreatedAt,
		&out.UpdatedAt,
		&inserted,
	)
	if err != nil {
		return nil, false, fmt.Errorf("creating conversation: %w", err)
	}

	out.Type = entity.ConversationTypeDirect
	return &out, inserted, nil
}

// GetByID retrieves a conversation as seen by viewerID. Returns nil when absent.
func (r *ConversationPostgres) GetByID(ctx context.Context, id, viewerID string) (*entity.Conversation, error) {
	query := viewerProjection + ` WHERE c.id = $2`

	row := r.pool.QueryRow(ctx, query, viewerID, id)
	conv, err := scanConversation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning conversation: %w", err)
	}
	return conv, nil
}

// ListForParticipant returns every conversation where userID is either side, most recent activity first
func (r *ConversationPostgres) ListForParticipant(ctx context.Context, userID string) ([]entity.Conversation, error) {
	query := viewerProjection + `
		WHERE c.user_id = $1 OR c.admin_id = $1
		ORDER BY c.updated_at DESC, c.id
	`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("querying conversations: %w", err)
	}
	defer rows.Close()

	conversations := make([]entity.Conversation, 0)
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning conversation row: %w", err)
		}
		conversations = append(conversations, *conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating conversations: %w", err)
	}

	return conversations, nil
}

// Touch records the latest message preview and bumps updated_at
func (r *ConversationPostgres) Touch(ctx context.Context, id, preview string, at time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE support_conversations SET last_message_preview = $2, updated_at = $3 WHERE id = $1`,
		id, preview, at,
	)
	if err != nil {
		return fmt.Errorf("touching conversation: %w", err)
	}
	return nil
}

func scanConversation(row pgx.Row) (*entity.Conversation, error) {
	var conv entity.Conversation
	err := row.Scan(
		&conv.ID,
		&conv.Name,
		&conv.UserID,
		&conv.AdminID,
		&conv.LastMessagePreview,
		&conv.UnreadCount,
		&conv.CreatedAt,
		&conv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	conv.Type = entity.ConversationTypeDirect
	return &conv, nil
}
