package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/smarttransit/rail-ticket-engine/internal/models"
)

// UserRepository handles user database operations
type UserRepository struct {
	db sqlx.ExtContext
}

// NewUserRepository creates a new user repository. db may be a pool or a
// transaction.
func NewUserRepository(db sqlx.ExtContext) *UserRepository {
	return &UserRepository{
		db: db,
	}
}

// Create inserts a new user
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (
			username, password_hash, name, mail, privilege, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.ExecContext(ctx, query,
		user.Username,
		user.PasswordHash,
		user.Name,
		user.Mail,
		user.Privilege,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// Update overwrites the mutable profile fields
func (r *UserRepository) Update(ctx context.Context, user *models.User) error {
	query := `
		UPDATE users
		SET password_hash = $2, name = $3, mail = $4, privilege = $5, updated_at = $6
		WHERE username = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		user.Username,
		user.PasswordHash,
		user.Name,
		user.Mail,
		user.Privilege,
		user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}

	return expectRows(result, 1, "user "+user.Username)
}

// List returns every user
func (r *UserRepository) List(ctx context.Context) ([]models.User, error) {
	var users []models.User
	query := `
		SELECT username, password_hash, name, mail, privilege, created_at, updated_at
		FROM users
		ORDER BY created_at, username
	`
	if err := sqlx.SelectContext(ctx, r.db, &users, query); err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}
