package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"github.com/lborres/bhvr/core"
)

const sessionColumns = `id, user_id, token_hash, ip_address, user_agent, expires_at, created_at, updated_at`

func scanSession(row scanner) (*core.Session, error) {
	var (
		sess                            core.Session
		expiresAt, createdAt, updatedAt int64
	)
	err := row.Scan(&sess.ID, &sess.UserID, &sess.TokenHash, &sess.IPAddress, &sess.UserAgent, &expiresAt, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	sess.ExpiresAt = fromMillis(expiresAt)
	sess.CreatedAt = fromMillis(createdAt)
	sess.UpdatedAt = fromMillis(updatedAt)
	return &sess, nil
}

func (s *Store) getSession(ctx context.Context, column, value string) (*core.Session, error) {
	sess, err := scanSession(s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE `+column+` = ?`, value))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrSessionNotFound
	}
	return sess, err
}

func (s *Store) CreateSession(ctx context.Context, session *core.Session) error {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	now := s.now()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	if session.UpdatedAt.IsZero() {
		session.UpdatedAt = now
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (`+sessionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		session.ID, session.UserID, session.TokenHash, session.IPAddress, session.UserAgent,
		toMillis(session.ExpiresAt), toMillis(session.CreatedAt), toMillis(session.UpdatedAt),
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return core.ErrUserNotFound
		}
		return err
	}
	return nil
}

func (s *Store) GetSessionByHash(ctx context.Context, tokenHash string) (*core.Session, error) {
	return s.getSession(ctx, "token_hash", tokenHash)
}

func (s *Store) GetSessionByID(ctx context.Context, id string) (*core.Session, error) {
	return s.getSession(ctx, "id", id)
}

func (s *Store) GetUserSessions(ctx context.Context, userID string) ([]*core.Session, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE user_id = ? ORDER BY created_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*core.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

func (s *Store) UpdateSession(ctx context.Context, session *core.Session) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET token_hash = ?, ip_address = ?, user_agent = ?, expires_at = ?, updated_at = ? WHERE id = ?`,
		session.TokenHash, session.IPAddress, session.UserAgent,
		toMillis(session.ExpiresAt), toMillis(session.UpdatedAt), session.ID,
	)
	return deleted(res, err, core.ErrSessionNotFound)
}

func (s *Store) DeleteSessionByID(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	return deleted(res, err, core.ErrSessionNotFound)
}

func (s *Store) DeleteSessionByHash(ctx context.Context, tokenHash string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE token_hash = ?`, tokenHash)
	return deleted(res, err, core.ErrSessionNotFound)
}

func (s *Store) DeleteUserSessions(ctx context.Context, userID string) (int, error) {
	return s.deleteCount(ctx, `DELETE FROM sessions WHERE user_id = ?`, userID)
}

func (s *Store) DeleteExpiredSessions(ctx context.Context) (int, error) {
	return s.deleteCount(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, toMillis(s.now()))
}

func (s *Store) deleteCount(ctx context.Context, query string, arg any) (int, error) {
	res, err := s.db.ExecContext(ctx, query, arg)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}
