package tx

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	dErrors "transitpass/pkg/domain-errors"
	"transitpass/pkg/platform/sentinel"
)

const defaultTxTimeout = 5 * time.Second

// Postgres error codes for transactions that lost a race.
const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

// Runner opens a database transaction per unit of work and carries it in the
// context, so every store call inside fn shares the connection and its row locks.
type Runner struct {
	db      *sql.DB
	timeout time.Duration
}

func NewRunner(db *sql.DB) *Runner {
	return &Runner{db: db, timeout: defaultTxTimeout}
}

// RunInTx commits when fn returns nil and rolls back otherwise. A call made with a
// context that already carries a transaction joins it.
func (r *Runner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if InTx(ctx) {
		return fn(ctx)
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(WithTx(ctx, tx)); err != nil {
		return translateTxErr(err)
	}
	if err := tx.Commit(); err != nil {
		return translateTxErr(fmt.Errorf("commit: %w", err))
	}
	return nil
}

func translateTxErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && (pgErr.Code == pgSerializationFailure || pgErr.Code == pgDeadlockDetected) {
		return fmt.Errorf("%w: %s", sentinel.ErrConflict, pgErr.Message)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction timed out")
	}
	return err
}
