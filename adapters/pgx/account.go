package pgx

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/lborres/bhvr/core"
)

const accountColumns = `id, user_id, provider_id, account_id, password, created_at, updated_at`

func scanAccount(row pgx.Row) (*core.Account, error) {
	acc := &core.Account{}
	err := row.Scan(&acc.ID, &acc.UserID, &acc.ProviderID, &acc.AccountID, &acc.Password, &acc.CreatedAt, &acc.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return acc, nil
}

func (a *Adapter) CreateAccount(ctx context.Context, acc *core.Account) error {
	if acc.ID == "" {
		acc.ID = uuid.NewString()
	}

	query := `INSERT INTO accounts (id, user_id, provider_id, account_id, password)
	          VALUES ($1, $2, $3, $4, $5)
	          RETURNING created_at, updated_at`

	err := a.pool.QueryRow(ctx, query,
		acc.ID, acc.UserID, acc.ProviderID, acc.AccountID, acc.Password,
	).Scan(&acc.CreatedAt, &acc.UpdatedAt)
	if err != nil {
		if pgErrorCode(err) == codeForeignKeyViolation {
			return core.ErrUserNotFound
		}
		return err
	}
	return nil
}

func (a *Adapter) GetAccountByID(ctx context.Context, id string) (*core.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`

	acc, err := scanAccount(a.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, core.ErrAccountNotFound
		}
		return nil, err
	}
	return acc, nil
}

func (a *Adapter) GetAccountByUserAndProvider(ctx context.Context, userID, providerID string) ([]*core.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE user_id = $1 AND provider_id = $2 ORDER BY created_at`

	rows, err := a.pool.Query(ctx, query, userID, providerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []*core.Account
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, acc)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return accounts, nil
}

func (a *Adapter) UpdateAccount(ctx context.Context, acc *core.Account) error {
	query := `UPDATE accounts SET account_id = $1, password = $2, updated_at = now()
	          WHERE id = $3 RETURNING created_at, updated_at`

	err := a.pool.QueryRow(ctx, query, acc.AccountID, acc.Password, acc.ID).Scan(&acc.CreatedAt, &acc.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return core.ErrAccountNotFound
		}
		return err
	}
	return nil
}

func (a *Adapter) DeleteAccount(ctx context.Context, id string) error {
	tag, err := a.pool.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return core.ErrAccountNotFound
	}
	return nil
}
