package main

import (
	"context"
	"database/sql"
	"time"

	dErrors "refhub/pkg/domain-errors"
	txcontext "refhub/pkg/platform/tx"
)

const defaultSignupTxTimeout = 5 * time.Second

// signupPostgresTx runs engine operations inside a database transaction. The
// *sql.Tx rides the context so stores and the audit outbox share it.
type signupPostgresTx struct {
	db      *sql.DB
	timeout time.Duration
}

func newSignupPostgresTx(db *sql.DB) *signupPostgresTx {
	return &signupPostgresTx{db: db}
}

func (t *signupPostgresTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	timeout := t.timeout
	if timeout == 0 {
		timeout = defaultSignupTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(txcontext.WithTx(ctx, tx)); err != nil {
		return err
	}

	return tx.Commit()
}
