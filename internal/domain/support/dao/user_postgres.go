package dao

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vadim/tutor-support/internal/domain/support/entity"
)

// staffRoles lists the roles that appear in the administrator directory
var staffRoles = []string{
	string(entity.RoleAdmin),
	string(entity.RoleSuperAdmin),
	string(entity.RoleManager),
}

// UserPostgres reads marketplace users for the support backend
type UserPostgres struct {
	pool *pgxpool.Pool
}

// NewUserPostgres creates a new PostgreSQL user repository
func NewUserPostgres(pool *pgxpool.Pool) *UserPostgres {
	return &UserPostgres{pool: pool}
}

// GetByID retrieves a user by ID. Returns nil when absent.
func (r *UserPostgres) GetByID(ctx context.Context, id string) (*entity.User, error) {
	query := `
		SELECT id, full_name, email, role, avatar_url, status, created_at
		FROM users
		WHERE id = $1
	`

	var u entity.User
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&u.ID,
		&u.FullName,
		&u.Email,
		&u.Role,
		&u.AvatarURL,
		&u.Status,
		&u.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting user: %w", err)
	}

	return &u, nil
}

// SearchStaff lists active staff whose name or email matches query. An empty query lists all.
func (r *UserPostgres) SearchStaff(ctx context.Context, query string, limit int) ([]entity.User, error) {
	sqlQuery := `
		SELECT id, full_name, email, role, avatar_url, status, created_at
		FROM users
		WHERE role = ANY($1)
		  AND status = 'active'
		  AND ($2 = '' OR full_name ILIKE '%' || $2 || '%' OR email ILIKE '%' || $2 || '%')
		ORDER BY full_name ASC
		LIMIT $3
	`

	rows, err := r.pool.Query(ctx, sqlQuery, staffRoles, query, limit)
	if err != nil {
		return nil, fmt.Errorf("searching staff: %w", err)
	}
	defer rows.Close()

	users := make([]entity.User, 0)
	for rows.Next() {
		var u entity.User
		if err := rows.Scan(
			&u.ID,
			&u.FullName,
			&u.Email,
			&u.Role,
			&u.AvatarURL,
			&u.Status,
			&u.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning user row: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating users: %w", err)
	}

	return users, nil
}
