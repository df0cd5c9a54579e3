package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/lborres/bhvr/core"
)

const userColumns = `id, email, email_verified, name, image, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (*core.User, error) {
	var (
		u                    core.User
		createdAt, updatedAt int64
	)
	err := row.Scan(&u.ID, &u.Email, &u.EmailVerified, &u.Name, &u.Image, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrUserNotFound
		}
		return nil, err
	}
	u.CreatedAt, u.UpdatedAt = fromMillis(createdAt), fromMillis(updatedAt)
	return &u, nil
}

func (s *Store) CreateUser(ctx context.Context, u *core.User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	now := s.now().UTC().Truncate(time.Millisecond)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.EmailVerified, u.Name, u.Image, toMillis(now), toMillis(now),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return core.ErrUserExists
		}
		return err
	}
	u.CreatedAt, u.UpdatedAt = now, now
	return nil
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*core.User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*core.User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = ? COLLATE NOCASE`, email))
}

func (s *Store) UpdateUser(ctx context.Context, u *core.User) error {
	now := s.now().UTC().Truncate(time.Millisecond)
	var createdAt int64
	err := s.db.QueryRowContext(ctx,
		`UPDATE users SET email = ?, email_verified = ?, name = ?, image = ?, updated_at = ? WHERE id = ? RETURNING created_at`,
		u.Email, u.EmailVerified, u.Name, u.Image, toMillis(now), u.ID,
	).Scan(&createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.ErrUserNotFound
		}
		if isUniqueViolation(err) {
			return core.ErrUserExists
		}
		return err
	}
	u.CreatedAt, u.UpdatedAt = fromMillis(createdAt), now
	return nil
}

// DeleteUser removes the user; accounts and sessions go with it.
func (s *Store) DeleteUser(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	return deleted(res, err, core.ErrUserNotFound)
}
