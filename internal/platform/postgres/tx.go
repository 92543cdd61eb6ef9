// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is satisfied by both [*pgxpool.Pool] and [pgx.Tx].
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TxBeginner starts transactions. [*pgxpool.Pool] implements it.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// WithTx runs fn inside a transaction, committing when fn returns nil.
//
// The deferred rollback is a no-op after a successful commit.
func WithTx(context context.Context, beginner TxBeginner, fn func(tx pgx.Tx) error) error {
	transaction, err := beginner.Begin(context)
	if err != nil {
		return fmt.Errorf("postgres_tx_begin_failed: %w", err)
	}
	defer func() { _ = transaction.Rollback(context) }()

	if err := fn(transaction); err != nil {
		return err
	}

	if err := transaction.Commit(context); err != nil {
		return fmt.Errorf("postgres_tx_commit_failed: %w", err)
	}

	return nil
}
