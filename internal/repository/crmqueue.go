package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carlosSepher/ninja-payments-reconciler/internal/domain"
)

// CRMQueueRepo owns payments.crm_push_queue and payments.crm_event_log,
// grounded on original_source/src/repositories/crm_repo.py.
type CRMQueueRepo struct {
	pool *pgxpool.Pool
}

func NewCRMQueueRepo(pool *pgxpool.Pool) *CRMQueueRepo {
	return &CRMQueueRepo{pool: pool}
}

// Enqueue inserts or idempotently refreshes the (payment_id, operation)
// row: a repeat enqueue for the same pair resets it to PENDING/attempts=0
// and replaces the payload, matching
// crm_repo.enqueue_crm_operation's ON CONFLICT ... DO UPDATE.
func (r *CRMQueueRepo) Enqueue(ctx context.Context, tx pgx.Tx, paymentID int64, operation string, payload json.RawMessage) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO payments.crm_push_queue (
			payment_id, operation, status, attempts, payload
		) VALUES ($1, $2, 'PENDING', 0, $3)
		ON CONFLICT (payment_id, operation)
		DO UPDATE SET
			status = 'PENDING',
			attempts = 0,
			next_attempt_at = NULL,
			last_attempt_at = NULL,
			response_code = NULL,
			crm_id = NULL,
			last_error = NULL,
			payload = EXCLUDED.payload,
			updated_at = NOW()
	`, paymentID, operation, payload)
	return err
}

// FetchPending claims due PENDING items with FOR UPDATE SKIP LOCKED.
func (r *CRMQueueRepo) FetchPending(ctx context.Context, tx pgx.Tx, limit int) ([]domain.CRMQueueItem, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, payment_id, operation, status, attempts, next_attempt_at, payload
		FROM payments.crm_push_queue
		WHERE status = 'PENDING' AND (next_attempt_at IS NULL OR next_attempt_at <= NOW())
		ORDER BY created_at ASC
		FOR UPDATE SKIP LOCKED
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.CRMQueueItem
	for rows.Next() {
		var item domain.CRMQueueItem
		if err := rows.Scan(
			&item.ID, &item.PaymentID, &item.Operation, &item.Status,
			&item.Attempts, &item.NextAttemptAt, &item.Payload,
		); err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// MarkSent records a successful CRM push.
func (r *CRMQueueRepo) MarkSent(ctx context.Context, tx pgx.Tx, itemID int64, responseCode int, crmID *string) error {
	_, err := tx.Exec(ctx, `
		UPDATE payments.crm_push_queue
		SET status = 'SENT', response_code = $1, crm_id = $2, last_error = NULL, updated_at = NOW()
		WHERE id = $3
	`, responseCode, crmID, itemID)
	return err
}

// MarkFailed records a failed CRM push attempt with the next backoff
// deadline the caller computed, or nil if attempts are exhausted.
func (r *CRMQueueRepo) MarkFailed(ctx context.Context, tx pgx.Tx, itemID int64, attempts int, nextAttemptAt *time.Time, responseCode *int, errMessage string) error {
	_, err := tx.Exec(ctx, `
		UPDATE payments.crm_push_queue
		SET status = 'FAILED', attempts = $1, next_attempt_at = $2,
		    last_attempt_at = NOW(), response_code = $3, last_error = $4, updated_at = NOW()
		WHERE id = $5
	`, attempts, nextAttemptAt, responseCode, errMessage, itemID)
	return err
}

// ReactivateFailedItems moves due FAILED rows back to PENDING and
// returns how many it reactivated, mirroring
// crm_repo.reactivate_failed_items's CTE.
func (r *CRMQueueRepo) ReactivateFailedItems(ctx context.Context, tx pgx.Tx, limit int) (int, error) {
	rows, err := tx.Query(ctx, `
		WITH moved AS (
			SELECT id
			FROM payments.crm_push_queue
			WHERE status = 'FAILED' AND next_attempt_at IS NOT NULL AND next_attempt_at <= NOW()
			ORDER BY next_attempt_at ASC
			FOR UPDATE SKIP LOCKED
			LIMIT $1
		)
		UPDATE payments.crm_push_queue AS q
		SET status = 'PENDING'
		FROM moved
		WHERE q.id = moved.id
		RETURNING q.id
	`, limit)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		count++
	}
	return count, rows.Err()
}

// RecordCRMEvent appends one crm_event_log row.
func (r *CRMQueueRepo) RecordCRMEvent(ctx context.Context, tx pgx.Tx, ev domain.CRMEvent) error {
	reqHeaders, err := json.Marshal(ev.RequestHeaders)
	if err != nil {
		return err
	}
	var respHeaders []byte
	if ev.ResponseHeaders != nil {
		if respHeaders, err = json.Marshal(ev.ResponseHeaders); err != nil {
			return err
		}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO payments.crm_event_log (
			payment_id, operation, request_url, request_headers, request_body,
			response_status, response_headers, response_body, error_message, latency_ms
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		ev.PaymentID, ev.Operation, ev.RequestURL, reqHeaders, nullableJSON(ev.RequestBody),
		ev.ResponseStatus, nullableBytes(respHeaders), nullableJSON(ev.ResponseBody), ev.ErrorMessage, ev.LatencyMS,
	)
	return err
}
