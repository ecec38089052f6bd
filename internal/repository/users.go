package repository

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"studypal/internal/models"
)

var userColumns = []string{"id", "email", "password_hash", "name", "image", "role", "created_at"}

func (r *Postgres) CreateUser(ctx context.Context, u *models.User) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	q := r.psql.Insert("users").
		Columns("id", "email", "password_hash", "name", "image", "role").
		Values(u.ID, u.Email, u.PasswordHash, u.Name, u.Image, u.Role).
		Suffix("RETURNING created_at")
	if err := r.get(ctx, &u.CreatedAt, q); err != nil {
		return fmt.Errorf("create user (email: %s): %w", u.Email, err)
	}
	return nil
}

func (r *Postgres) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	q := r.psql.Select(userColumns...).From("users").Where(squirrel.Eq{"email": email})
	if err := r.get(ctx, &u, q); err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return &u, nil
}

func (r *Postgres) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var u models.User
	q := r.psql.Select(userColumns...).From("users").Where(squirrel.Eq{"id": id})
	if err := r.get(ctx, &u, q); err != nil {
		return nil, fmt.Errorf("get user (id: %s): %w", id, err)
	}
	return &u, nil
}

func (r *Postgres) UserExists(ctx context.Context, email string) (bool, error) {
	var exists bool
	q := r.psql.Select().Column(squirrel.Expr("EXISTS (SELECT 1 FROM users WHERE email = ?)", email))
	if err := r.get(ctx, &exists, q); err != nil {
		return false, fmt.Errorf("check user exists: %w", err)
	}
	return exists, nil
}
