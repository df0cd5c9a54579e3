// Package pgx stores users, accounts and sessions in PostgreSQL through a
// pgx connection pool.
package pgx

import (
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lborres/bhvr/core"
)

// PostgreSQL error codes the adapter translates.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

type Adapter struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

var _ core.AuthStorage = (*Adapter)(nil)

func New(pool *pgxpool.Pool) *Adapter {
	return &Adapter{
		pool: pool,
		now:  time.Now,
	}
}

// Close releases the pool.
func (a *Adapter) Close() error {
	a.pool.Close()
	return nil
}

func pgErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}
