package database

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is the common surface of a pgxpool.Pool and a pgx.Tx, so repository
// internals can serve both transactional and plain reads.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TransactionManager starts database transactions for the domain layer
// without leaking pool construction into it.
type TransactionManager interface {
	BeginTx(ctx context.Context) (pgx.Tx, error)
}
