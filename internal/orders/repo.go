package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrNotFound          = errors.New("order confirmation not found")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// DB is the subset of *pgxpool.Pool the repo needs.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

type Repo struct{ DB DB }

const selectConfirmation = `
	SELECT id, session_id, cart_id, email, payment_method, status, placeholder,
	       backend_order_id, total, currency_code, created_at, updated_at
	FROM order_confirmations WHERE id=$1`

// Insert stores c with the timestamps it carries. Idempotent via id: an
// existing row is left untouched and existed=true is returned.
func (r *Repo) Insert(ctx context.Context, c Confirmation) (existed bool, err error) {
	tag, err := r.DB.Exec(ctx, `
		INSERT INTO order_confirmations(id, session_id, cart_id, email, payment_method, status,
		                                placeholder, backend_order_id, total, currency_code,
		                                created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (id) DO NOTHING
	`, c.ID, c.SessionID, c.CartID, c.Email, c.PaymentMethod, string(c.Status),
		c.Placeholder, c.BackendOrderID, c.Total, c.CurrencyCode, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return false, fmt.Errorf("insert confirmation %s: %w", c.ID, err)
	}
	return tag.RowsAffected() == 0, nil
}

func scanConfirmation(row pgx.Row) (Confirmation, error) {
	var (
		c      Confirmation
		status string
	)
	err := row.Scan(&c.ID, &c.SessionID, &c.CartID, &c.Email, &c.PaymentMethod, &status, &c.Placeholder,
		&c.BackendOrderID, &c.Total, &c.CurrencyCode, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Confirmation{}, ErrNotFound
	}
	if err != nil {
		return Confirmation{}, err
	}
	c.Status = Status(status)
	return c, nil
}

func (r *Repo) Get(ctx context.Context, id string) (Confirmation, error) {
	return scanConfirmation(r.DB.QueryRow(ctx, selectConfirmation, id))
}

// Transition moves a confirmation to status to. Repeating the transition the
// row already went through is a no-op, so redelivered events are harmless.
func (r *Repo) Transition(ctx context.Context, id string, to Status, backendOrderID string) error {
	tx, err := r.DB.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var from string
	err = tx.QueryRow(ctx, `SELECT status FROM order_confirmations WHERE id=$1 FOR UPDATE`, id).Scan(&from)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if Status(from) == to {
		return nil
	}
	if Status(from).Final() {
		return fmt.Errorf("%w: %s is final", ErrInvalidTransition, from)
	}
	if !CanTransition(Status(from), to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE order_confirmations
		SET status=$2, backend_order_id=COALESCE(NULLIF($3, ''), backend_order_id), updated_at=now()
		WHERE id=$1
	`, id, string(to), backendOrderID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
