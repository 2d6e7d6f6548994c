// Package repository implements every SQL operation the poller and
// sender loops need, grounded on
// original_source/src/repositories/payments_repo.py and crm_repo.py's
// query shapes, ported from psycopg2 cursors to pgx's Query/Exec/
// transaction API the way
// illenko-transactional-outbox/payments/db.go drives pgxpool.
package repository

import (
	"context"
	"encoding/json"
	"os"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carlosSepher/ninja-payments-reconciler/internal/domain"
)

// PaymentsRepo reads and mutates payments.payment and its append-only
// audit tables.
type PaymentsRepo struct {
	pool *pgxpool.Pool
}

func NewPaymentsRepo(pool *pgxpool.Pool) *PaymentsRepo {
	return &PaymentsRepo{pool: pool}
}

// SelectForReconciliation claims up to batchSize PENDING/TO_CONFIRM
// payments for the given providers with FOR UPDATE OF p SKIP LOCKED so
// concurrent poller instances never contend on the same row.
func (r *PaymentsRepo) SelectForReconciliation(ctx context.Context, tx pgx.Tx, providers []string, batchSize int) ([]domain.Payment, error) {
	rows, err := tx.Query(ctx, `
		WITH payment_attempts AS (
			SELECT payment_id, COUNT(*) AS attempts
			FROM payments.status_check
			GROUP BY payment_id
		)
		SELECT
			p.id, p.status, p.provider, p.token, p.created_at, p.updated_at,
			p.amount_minor, p.context, p.provider_metadata, p.product_id,
			p.authorization_code, p.status_reason,
			COALESCE(pa.attempts, 0) AS attempts,
			po.id AS payment_order_id, po.customer_rut AS order_customer_rut
		FROM payments.payment AS p
		LEFT JOIN payment_attempts pa ON pa.payment_id = p.id
		LEFT JOIN payments.payment_order AS po ON po.id = p.payment_order_id
		WHERE p.status IN ('PENDING', 'TO_CONFIRM')
		  AND p.token IS NOT NULL
		  AND p.provider = ANY($1)
		ORDER BY p.created_at ASC
		LIMIT $2
		FOR UPDATE OF p SKIP LOCKED
	`, providers, batchSize)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanPayments(rows)
}

// FindAbandoned returns PENDING payments older than cutoff regardless of
// their attempt count, feeding the abandoned-timeout sweep that runs
// independently of retry-offset exhaustion.
func (r *PaymentsRepo) FindAbandoned(ctx context.Context, tx pgx.Tx, cutoff time.Time, limit int) ([]domain.Payment, error) {
	rows, err := tx.Query(ctx, `
		SELECT
			p.id, p.status, p.provider, p.token, p.created_at, p.updated_at,
			p.amount_minor, p.context, p.provider_metadata, p.product_id,
			p.authorization_code, p.status_reason,
			0 AS attempts,
			po.id AS payment_order_id, po.customer_rut AS order_customer_rut
		FROM payments.payment AS p
		LEFT JOIN payments.payment_order AS po ON po.id = p.payment_order_id
		WHERE p.status = 'PENDING' AND p.created_at <= $1
		ORDER BY p.created_at ASC
		FOR UPDATE OF p SKIP LOCKED
		LIMIT $2
	`, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanPayments(rows)
}

func scanPayments(rows pgx.Rows) ([]domain.Payment, error) {
	var out []domain.Payment
	for rows.Next() {
		var p domain.Payment
		var token *string
		if err := rows.Scan(
			&p.ID, &p.Status, &p.Provider, &token, &p.CreatedAt, &p.UpdatedAt,
			&p.AmountMinor, &p.Context, &p.ProviderMetadata, &p.ProductID,
			&p.AuthorizationCode, &p.StatusReason,
			&p.Attempts, &p.PaymentOrderID, &p.OrderCustomerRUT,
		); err != nil {
			return nil, err
		}
		if token != nil {
			p.Token = *token
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// RecordProviderEvent appends one provider_event_log row. Headers are
// stored as given; any masking is done by the adapter that built them.
func (r *PaymentsRepo) RecordProviderEvent(ctx context.Context, tx pgx.Tx, ev domain.ProviderEvent) error {
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
		INSERT INTO payments.provider_event_log (
			payment_id, provider, request_url, request_headers, request_body,
			response_status, response_headers, response_body, error_message, latency_ms
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		ev.PaymentID, ev.Provider, ev.RequestURL, reqHeaders, nullableJSON(ev.RequestBody),
		ev.ResponseStatus, nullableBytes(respHeaders), nullableJSON(ev.ResponseBody), ev.ErrorMessage, ev.LatencyMS,
	)
	return err
}

// RecordStatusCheck appends one status_check row — the source of truth
// for attempt counting via SelectForReconciliation's aggregate.
func (r *PaymentsRepo) RecordStatusCheck(ctx context.Context, tx pgx.Tx, sc domain.StatusCheck) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO payments.status_check (
			payment_id, provider, success, provider_status, mapped_status,
			response_code, raw_payload, error_message, requested_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
	`,
		sc.PaymentID, sc.Provider, sc.Success, sc.ProviderStatus, statusOrNil(sc.MappedStatus),
		sc.ResponseCode, nullableJSON(sc.RawPayload), sc.ErrorMessage,
	)
	return err
}

var terminalTimestampField = map[domain.Status]string{
	domain.StatusAuthorized: "first_authorized_at",
	domain.StatusFailed:     "failed_at",
	domain.StatusCanceled:   "canceled_at",
	domain.StatusRefunded:   "refunded_at",
}

// UpdatePaymentStatus transitions a payment's status, stamping the
// matching terminal timestamp column (first write wins, via COALESCE)
// and the status_reason if one was supplied.
func (r *PaymentsRepo) UpdatePaymentStatus(ctx context.Context, tx pgx.Tx, paymentID int64, newStatus domain.Status, statusReason *string) error {
	setClauses := "status = $1, updated_at = NOW()"
	args := []any{string(newStatus)}
	argN := 2

	if statusReason != nil {
		setClauses += ", status_reason = $" + strconv.Itoa(argN)
		args = append(args, *statusReason)
		argN++
	}
	if field, ok := terminalTimestampField[newStatus]; ok {
		setClauses += ", " + field + " = COALESCE(" + field + ", NOW())"
	}
	if newStatus == domain.StatusAbandoned {
		setClauses += ", abandoned_at = COALESCE(abandoned_at, NOW())"
	}

	args = append(args, paymentID)
	_, err := tx.Exec(ctx, `UPDATE payments.payment SET `+setClauses+` WHERE id = $`+strconv.Itoa(argN), args...)
	return err
}

// MarkAttemptsExhausted transitions a payment to ABANDONED with the fixed
// "reconcile attempts exhausted" reason.
func (r *PaymentsRepo) MarkAttemptsExhausted(ctx context.Context, tx pgx.Tx, paymentID int64) error {
	reason := "reconcile attempts exhausted"
	return r.UpdatePaymentStatus(ctx, tx, paymentID, domain.StatusAbandoned, &reason)
}

// GetPaymentsMetrics aggregates the whole ledger for the /health surface.
func (r *PaymentsRepo) GetPaymentsMetrics(ctx context.Context) (domain.PaymentsMetrics, error) {
	var m domain.PaymentsMetrics
	err := r.pool.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'AUTHORIZED'),
			COALESCE(SUM(amount_minor), 0),
			MAX(created_at)
		FROM payments.payment
	`).Scan(&m.TotalPayments, &m.AuthorizedPayments, &m.TotalAmountMinor, &m.LastPaymentAt)
	if err != nil {
		return domain.PaymentsMetrics{}, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT context ->> 'currency'
		FROM payments.payment
		WHERE context IS NOT NULL AND context ->> 'currency' IS NOT NULL
	`)
	if err != nil {
		return domain.PaymentsMetrics{}, err
	}
	defer rows.Close()

	var currencies []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return domain.PaymentsMetrics{}, err
		}
		currencies = append(currencies, c)
	}
	if err := rows.Err(); err != nil {
		return domain.PaymentsMetrics{}, err
	}

	switch len(currencies) {
	case 0:
		// leave TotalAmountCurrency nil
	case 1:
		m.TotalAmountCurrency = &currencies[0]
	default:
		mixed := "MIXED"
		m.TotalAmountCurrency = &mixed
	}

	return m, nil
}

// LogServiceRuntimeEvent appends one row to service_runtime_log, keyed
// by this process's hostname and pid the way
// payments_repo.log_service_runtime_event does.
func (r *PaymentsRepo) LogServiceRuntimeEvent(ctx context.Context, tx pgx.Tx, instanceID, eventType string, payload any) error {
	var payloadJSON []byte
	if payload != nil {
		var err error
		if payloadJSON, err = json.Marshal(payload); err != nil {
			return err
		}
	}

	host, _ := os.Hostname()

	query := `
		INSERT INTO payments.service_runtime_log (
			instance_id, host_name, process_id, event_type, payload
		) VALUES ($1, $2, $3, $4, $5)
	`
	args := []any{instanceID, host, os.Getpid(), eventType, nullableBytes(payloadJSON)}

	if tx != nil {
		_, err := tx.Exec(ctx, query, args...)
		return err
	}
	_, err := r.pool.Exec(ctx, query, args...)
	return err
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return raw
}

func nullableBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}

func statusOrNil(s *domain.Status) any {
	if s == nil {
		return nil
	}
	return string(*s)
}

// ErrNoRows mirrors pgx.ErrNoRows for callers that don't want to import
// pgx directly.
var ErrNoRows = pgx.ErrNoRows
