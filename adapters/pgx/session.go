package pgx

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/lborres/bhvr/core"
)

const sessionColumns = `id, user_id, token_hash, ip_address, user_agent, expires_at, created_at, updated_at`

func scanSession(row pgx.Row) (*core.Session, error) {
	s := &core.Session{}
	err := row.Scan(&s.ID, &s.UserID, &s.TokenHash, &s.IPAddress, &s.UserAgent, &s.ExpiresAt, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (a *Adapter) getSession(ctx context.Context, column, value string) (*core.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE ` + column + ` = $1`
	s, err := scanSession(a.pool.QueryRow(ctx, query, value))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, core.ErrSessionNotFound
		}
		return nil, err
	}
	return s, nil
}

func (a *Adapter) CreateSession(ctx context.Context, session *core.Session) error {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	now := a.now()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	if session.UpdatedAt.IsZero() {
		session.UpdatedAt = now
	}

	query := `INSERT INTO sessions (id, user_id, token_hash, ip_address, user_agent, expires_at, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := a.pool.Exec(ctx, query,
		session.ID, session.UserID, session.TokenHash, session.IPAddress, session.UserAgent,
		session.ExpiresAt, session.CreatedAt, session.UpdatedAt,
	)
	if err != nil {
		if pgErrorCode(err) == codeForeignKeyViolation {
			return core.ErrUserNotFound
		}
		return err
	}
	return nil
}

func (a *Adapter) GetSessionByHash(ctx context.Context, tokenHash string) (*core.Session, error) {
	return a.getSession(ctx, "token_hash", tokenHash)
}

func (a *Adapter) GetSessionByID(ctx context.Context, id string) (*core.Session, error) {
	return a.getSession(ctx, "id", id)
}

func (a *Adapter) GetUserSessions(ctx context.Context, userID string) ([]*core.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE user_id = $1 ORDER BY created_at`

	rows, err := a.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*core.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

func (a *Adapter) UpdateSession(ctx context.Context, session *core.Session) error {
	query := `UPDATE sessions SET token_hash = $1, ip_address = $2, user_agent = $3, expires_at = $4, updated_at = $5
	          WHERE id = $6`
	tag, err := a.pool.Exec(ctx, query,
		session.TokenHash, session.IPAddress, session.UserAgent, session.ExpiresAt, session.UpdatedAt, session.ID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return core.ErrSessionNotFound
	}
	return nil
}

func (a *Adapter) DeleteSessionByID(ctx context.Context, id string) error {
	return a.deleteSession(ctx, `DELETE FROM sessions WHERE id = $1`, id)
}

func (a *Adapter) DeleteSessionByHash(ctx context.Context, tokenHash string) error {
	return a.deleteSession(ctx, `DELETE FROM sessions WHERE token_hash = $1`, tokenHash)
}

func (a *Adapter) deleteSession(ctx context.Context, query, arg string) error {
	tag, err := a.pool.Exec(ctx, query, arg)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return core.ErrSessionNotFound
	}
	return nil
}

func (a *Adapter) DeleteUserSessions(ctx context.Context, userID string) (int, error) {
	tag, err := a.pool.Exec(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (a *Adapter) DeleteExpiredSessions(ctx context.Context) (int, error) {
	tag, err := a.pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, a.now())
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
