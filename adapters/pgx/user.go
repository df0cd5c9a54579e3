package pgx

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/lborres/bhvr/core"
)

const userColumns = `id, email, email_verified, name, image, created_at, updated_at`

func scanUser(row pgx.Row) (*core.User, error) {
	user := &core.User{}
	err := row.Scan(&user.ID, &user.Email, &user.EmailVerified, &user.Name, &user.Image, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, core.ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

func (a *Adapter) CreateUser(ctx context.Context, user *core.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}

	query := `INSERT INTO users (id, email, email_verified, name, image) VALUES ($1, $2, $3, $4, $5) RETURNING created_at, updated_at`
	err := a.pool.QueryRow(ctx, query, user.ID, user.Email, user.EmailVerified, user.Name, user.Image).Scan(&user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if pgErrorCode(err) == codeUniqueViolation {
			return core.ErrUserExists
		}
		return err
	}
	return nil
}

func (a *Adapter) GetUserByID(ctx context.Context, id string) (*core.User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(a.pool.QueryRow(ctx, q, id))
}

func (a *Adapter) GetUserByEmail(ctx context.Context, email string) (*core.User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE lower(email) = lower($1)`
	return scanUser(a.pool.QueryRow(ctx, q, email))
}

func (a *Adapter) UpdateUser(ctx context.Context, user *core.User) error {
	q := `UPDATE users SET email = $1, email_verified = $2, name = $3, image = $4, updated_at = now() WHERE id = $5 RETURNING created_at, updated_at`
	err := a.pool.QueryRow(ctx, q, user.Email, user.EmailVerified, user.Name, user.Image, user.ID).Scan(&user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return core.ErrUserNotFound
		}
		if pgErrorCode(err) == codeUniqueViolation {
			return core.ErrUserExists
		}
		return err
	}
	return nil
}

// DeleteUser removes the user; accounts and sessions go with it.
func (a *Adapter) DeleteUser(ctx context.Context, id string) error {
	tag, err := a.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return core.ErrUserNotFound
	}
	return nil
}
