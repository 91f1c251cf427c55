package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/forumly/forumcore/internal/domain/faults"
	"github.com/forumly/forumcore/internal/domain/model"
)

var ErrPendingReconciliationNotFound = fmt.Errorf("pending reconciliation: %w", faults.ErrIntentNotFound)

// ReconcileOutboxRepo is the durable list of captured payments whose
// entitlement write has not landed yet.
type ReconcileOutboxRepo struct {
	pool *pgxpool.Pool
}

func NewReconcileOutboxRepo(pool *pgxpool.Pool) *ReconcileOutboxRepo {
	return &ReconcileOutboxRepo{pool: pool}
}

const pendingColumns = `
	intent_id,
	user_id,
	amount::text,
	payment_id,
	confirmed_at,
	verify_payment,
	client_secret,
	attempts,
	last_error,
	next_attempt_at,
	created_at`

// claimLockTimeout bounds how long ClaimDue waits on rows another writer holds.
const claimLockTimeout = 2 * time.Second

// Enqueue is a no-op when the intent is already queued, except that a
// verified capture replaces the unverified row it settles and is due at once.
func (r *ReconcileOutboxRepo) Enqueue(ctx context.Context, item model.PendingReconciliation) error {
	if r.pool == nil {
		return errNilPool
	}
	if strings.TrimSpace(item.IntentID) == "" || strings.TrimSpace(item.UserID) == "" || !item.Amount.IsPositive() {
		return fmt.Errorf("invalid pending reconciliation payload")
	}
	if item.NextAttemptAt.IsZero() {
		item.NextAttemptAt = item.ConfirmedAt
	}

	_, err := r.pool.Exec(ctx, `
INSERT INTO pending_reconciliations (
	intent_id,
	user_id,
	amount,
	payment_id,
	confirmed_at,
	verify_payment,
	client_secret,
	next_attempt_at,
	created_at,
	updated_at
) VALUES ($1, $2, $3::numeric, $4, $5, $6, $7, $8, NOW(), NOW())
ON CONFLICT (intent_id) DO UPDATE
SET payment_id = EXCLUDED.payment_id,
	confirmed_at = EXCLUDED.confirmed_at,
	verify_payment = FALSE,
	client_secret = '',
	attempts = 0,
	last_error = '',
	next_attempt_at = EXCLUDED.next_attempt_at,
	updated_at = NOW()
WHERE pending_reconciliations.verify_payment AND NOT EXCLUDED.verify_payment
`, item.IntentID, item.UserID, item.Amount.String(), item.PaymentID, item.ConfirmedAt.UTC(),
		item.VerifyPayment, item.GatewaySecret, item.NextAttemptAt.UTC())
	if err != nil {
		return fmt.Errorf("enqueue pending reconciliation: %w", err)
	}
	return nil
}

func (r *ReconcileOutboxRepo) Complete(ctx context.Context, intentID string) error {
	if r.pool == nil {
		return errNilPool
	}
	if _, err := r.pool.Exec(ctx, `DELETE FROM pending_reconciliations WHERE intent_id = $1`, intentID); err != nil {
		return fmt.Errorf("complete pending reconciliation: %w", err)
	}
	return nil
}

func (r *ReconcileOutboxRepo) RecordFailure(ctx context.Context, intentID string, lastError string, nextAttemptAt time.Time) error {
	if r.pool == nil {
		return errNilPool
	}
	tag, err := r.pool.Exec(ctx, `
UPDATE pending_reconciliations
SET attempts = attempts + 1,
	last_error = $2,
	next_attempt_at = $3,
	updated_at = NOW()
WHERE intent_id = $1
`, intentID, truncate(lastError, 1000), nextAttemptAt.UTC())
	if err != nil {
		return fmt.Errorf("record reconciliation failure: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPendingReconciliationNotFound
	}
	return nil
}

func (r *ReconcileOutboxRepo) Get(ctx context.Context, intentID string) (model.PendingReconciliation, error) {
	if r.pool == nil {
		return model.PendingReconciliation{}, errNilPool
	}
	item, err := scanPending(r.pool.QueryRow(ctx, `SELECT`+pendingColumns+` FROM pending_reconciliations WHERE intent_id = $1`, intentID))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.PendingReconciliation{}, ErrPendingReconciliationNotFound
	}
	if err != nil {
		return model.PendingReconciliation{}, fmt.Errorf("get pending reconciliation: %w", err)
	}
	return item, nil
}

// ClaimDue leases up to limit due items so concurrent workers skip them.
func (r *ReconcileOutboxRepo) ClaimDue(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]model.PendingReconciliation, error) {
	if limit <= 0 {
		limit = 50
	}
	if lease <= 0 {
		lease = time.Minute
	}

	var items []model.PendingReconciliation
	err := claimTx(ctx, r.pool, claimLockTimeout, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `SELECT`+pendingColumns+`
FROM pending_reconciliations
WHERE next_attempt_at <= $1
ORDER BY next_attempt_at ASC
LIMIT $2
FOR UPDATE SKIP LOCKED
`, now.UTC(), limit)
		if err != nil {
			return fmt.Errorf("select due reconciliations: %w", err)
		}
		items, err = collectPending(rows)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return nil
		}

		ids := make([]string, 0, len(items))
		for _, item := range items {
			ids = append(ids, item.IntentID)
		}
		if _, err := tx.Exec(ctx, `
UPDATE pending_reconciliations
SET next_attempt_at = $2, updated_at = NOW()
WHERE intent_id = ANY($1)
`, ids, now.Add(lease).UTC()); err != nil {
			return fmt.Errorf("lease due reconciliations: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *ReconcileOutboxRepo) ListByUser(ctx context.Context, userID string) ([]model.PendingReconciliation, error) {
	if r.pool == nil {
		return nil, errNilPool
	}
	rows, err := r.pool.Query(ctx, `SELECT`+pendingColumns+`
FROM pending_reconciliations
WHERE lower(user_id) = lower($1)
ORDER BY confirmed_at DESC
`, strings.TrimSpace(userID))
	if err != nil {
		return nil, fmt.Errorf("list user reconciliations: %w", err)
	}
	return collectPending(rows)
}

func (r *ReconcileOutboxRepo) List(ctx context.Context, limit int) ([]model.PendingReconciliation, error) {
	if r.pool == nil {
		return nil, errNilPool
	}
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `SELECT`+pendingColumns+`
FROM pending_reconciliations
ORDER BY confirmed_at ASC
LIMIT $1
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list reconciliations: %w", err)
	}
	return collectPending(rows)
}

func (r *ReconcileOutboxRepo) Count(ctx context.Context) (int64, error) {
	if r.pool == nil {
		return 0, errNilPool
	}
	var count int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM pending_reconciliations`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count reconciliations: %w", err)
	}
	return count, nil
}

func collectPending(rows pgx.Rows) ([]model.PendingReconciliation, error) {
	defer rows.Close()

	items := make([]model.PendingReconciliation, 0)
	for rows.Next() {
		item, err := scanPending(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pending reconciliation: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending reconciliations: %w", err)
	}
	return items, nil
}

func scanPending(row pgx.Row) (model.PendingReconciliation, error) {
	var (
		item      model.PendingReconciliation
		amountRaw string
	)
	if err := row.Scan(
		&item.IntentID,
		&item.UserID,
		&amountRaw,
		&item.PaymentID,
		&item.ConfirmedAt,
		&item.VerifyPayment,
		&item.GatewaySecret,
		&item.Attempts,
		&item.LastError,
		&item.NextAttemptAt,
		&item.CreatedAt,
	); err != nil {
		return model.PendingReconciliation{}, err
	}

	amount, err := decimal.NewFromString(amountRaw)
	if err != nil {
		return model.PendingReconciliation{}, fmt.Errorf("parse amount %q: %w", amountRaw, err)
	}
	item.Amount = amount
	return item, nil
}

func truncate(value string, max int) string {
	if len(value) <= max {
		return value
	}
	return value[:max]
}
