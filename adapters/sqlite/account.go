package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/lborres/bhvr/core"
)

const accountColumns = `id, user_id, provider_id, account_id, password, created_at, updated_at`

func scanAccount(row scanner) (*core.Account, error) {
	var (
		a                    core.Account
		createdAt, updatedAt int64
	)
	if err := row.Scan(&a.ID, &a.UserID, &a.ProviderID, &a.AccountID, &a.Password, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	a.CreatedAt, a.UpdatedAt = fromMillis(createdAt), fromMillis(updatedAt)
	return &a, nil
}

func (s *Store) CreateAccount(ctx context.Context, a *core.Account) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	now := s.now().UTC().Truncate(time.Millisecond)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts (`+accountColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.UserID, a.ProviderID, a.AccountID, a.Password, toMillis(now), toMillis(now),
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return core.ErrUserNotFound
		}
		return err
	}
	a.CreatedAt, a.UpdatedAt = now, now
	return nil
}

func (s *Store) GetAccountByID(ctx context.Context, id string) (*core.Account, error) {
	a, err := scanAccount(s.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrAccountNotFound
	}
	return a, err
}

func (s *Store) GetAccountByUserAndProvider(ctx context.Context, userID, providerID string) ([]*core.Account, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE user_id = ? AND provider_id = ? ORDER BY created_at`,
		userID, providerID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []*core.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (s *Store) UpdateAccount(ctx context.Context, a *core.Account) error {
	now := s.now().UTC().Truncate(time.Millisecond)
	var createdAt int64
	err := s.db.QueryRowContext(ctx,
		`UPDATE accounts SET account_id = ?, password = ?, updated_at = ? WHERE id = ? RETURNING created_at`,
		a.AccountID, a.Password, toMillis(now), a.ID,
	).Scan(&createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.ErrAccountNotFound
		}
		return err
	}
	a.CreatedAt, a.UpdatedAt = fromMillis(createdAt), now
	return nil
}

func (s *Store) DeleteAccount(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = ?`, id)
	return deleted(res, err, core.ErrAccountNotFound)
}
