// Package poller implements the PSP reconciliation loop, grounded on
// original_source/src/loops/psp_poller.py's PspPoller, ported from its
// asyncio.to_thread-wrapped per-cycle method to a plain Go loop run as
// its own goroutine by internal/runtime.
package poller

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carlosSepher/ninja-payments-reconciler/internal/crmpayload"
	"github.com/carlosSepher/ninja-payments-reconciler/internal/domain"
	"github.com/carlosSepher/ninja-payments-reconciler/internal/eventbus"
	"github.com/carlosSepher/ninja-payments-reconciler/internal/logging"
	"github.com/carlosSepher/ninja-payments-reconciler/internal/metrics"
	"github.com/carlosSepher/ninja-payments-reconciler/internal/providers"
)

const reasonProviderReconciliation = "provider reconciliation update"
const reasonAbandonedTimeout = "abandoned timeout"

var terminalReasonStatuses = map[domain.Status]bool{
	domain.StatusAuthorized: true,
	domain.StatusFailed:     true,
	domain.StatusCanceled:   true,
	domain.StatusRefunded:   true,
}

// PaymentsStore is the slice of *repository.PaymentsRepo the poller
// needs, narrowed to an interface so the reconciliation logic can be
// exercised against a fake in tests.
type PaymentsStore interface {
	SelectForReconciliation(ctx context.Context, tx pgx.Tx, providers []string, batchSize int) ([]domain.Payment, error)
	FindAbandoned(ctx context.Context, tx pgx.Tx, cutoff time.Time, limit int) ([]domain.Payment, error)
	RecordProviderEvent(ctx context.Context, tx pgx.Tx, ev domain.ProviderEvent) error
	RecordStatusCheck(ctx context.Context, tx pgx.Tx, sc domain.StatusCheck) error
	UpdatePaymentStatus(ctx context.Context, tx pgx.Tx, paymentID int64, newStatus domain.Status, statusReason *string) error
	MarkAttemptsExhausted(ctx context.Context, tx pgx.Tx, paymentID int64) error
	LogServiceRuntimeEvent(ctx context.Context, tx pgx.Tx, instanceID, eventType string, payload any) error
}

// CRMQueueStore is the slice of *repository.CRMQueueRepo the poller needs.
type CRMQueueStore interface {
	Enqueue(ctx context.Context, tx pgx.Tx, paymentID int64, operation string, payload json.RawMessage) error
}

// Config mirrors the slice of Settings psp_poller.py reads.
type Config struct {
	Enabled              bool
	IntervalSeconds      int
	AttemptOffsets       []int
	BatchSize            int
	PollingProviders     []string
	AbandonedTimeoutMins int
	InstanceID           string
	HeartbeatInterval    time.Duration
}

// Stats mirrors the per-cycle dict psp_poller.py accumulates, surfaced
// in the HEARTBEAT runtime log entry.
type Stats struct {
	Payments  int `json:"payments"`
	Updated   int `json:"updated"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
	Abandoned int `json:"abandoned"`
}

// Loop owns one PSP reconciliation cycle.
type Loop struct {
	pool          *pgxpool.Pool
	cfg           Config
	payments      PaymentsStore
	crmQueue      CRMQueueStore
	adapters      map[string]providers.Adapter
	log           *logging.Logger
	metrics       *metrics.Metrics
	events        eventbus.Publisher
	lastHeartbeat time.Time
}

func New(
	pool *pgxpool.Pool,
	cfg Config,
	payments PaymentsStore,
	crmQueue CRMQueueStore,
	adapters map[string]providers.Adapter,
	log *logging.Logger,
	m *metrics.Metrics,
	events eventbus.Publisher,
) *Loop {
	return &Loop{
		pool:     pool,
		cfg:      cfg,
		payments: payments,
		crmQueue: crmQueue,
		adapters: adapters,
		log:      log,
		metrics:  m,
		events:   events,
	}
}

// Run blocks until ctx is cancelled, sleeping IntervalSeconds between
// cycles exactly as PspPoller.run's while-True/asyncio.sleep does.
func (l *Loop) Run(ctx context.Context) {
	l.log.Infof("PSP poller loop started, providers=%v", l.cfg.PollingProviders)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if !l.cfg.Enabled {
			if !sleep(ctx, l.interval()) {
				return
			}
			continue
		}

		start := time.Now()
		if err := l.processOnce(ctx); err != nil {
			l.log.Errorf("error in PSP poller loop: %v", err)
		}
		if l.metrics != nil {
			l.metrics.PollerCycleDuration.Observe(time.Since(start).Seconds())
		}

		if !sleep(ctx, l.interval()) {
			return
		}
	}
}

func (l *Loop) interval() time.Duration {
	return time.Duration(l.cfg.IntervalSeconds) * time.Second
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (l *Loop) processOnce(ctx context.Context) error {
	stats := Stats{}

	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	pmts, err := l.payments.SelectForReconciliation(ctx, tx, l.cfg.PollingProviders, l.cfg.BatchSize)
	if err != nil {
		return err
	}
	l.log.Infof("PSP poller: found %d payments to reconcile", len(pmts))

	now := time.Now().UTC()
	for _, payment := range pmts {
		stats.Payments++
		if err := l.reconcileOne(ctx, tx, payment, now, &stats); err != nil {
			return err
		}
	}

	cutoff := now.Add(-time.Duration(l.cfg.AbandonedTimeoutMins) * time.Minute)
	abandoned, err := l.payments.FindAbandoned(ctx, tx, cutoff, l.cfg.BatchSize)
	if err != nil {
		return err
	}
	for _, payment := range abandoned {
		if err := l.abandon(ctx, tx, payment, reasonAbandonedTimeout); err != nil {
			return err
		}
		stats.Abandoned++
	}

	if err := l.emitHeartbeat(ctx, tx, stats); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	l.log.Infof(
		"PSP poller: cycle completed - payments=%d updated=%d failed=%d skipped=%d abandoned=%d",
		stats.Payments, stats.Updated, stats.Failed, stats.Skipped, stats.Abandoned,
	)
	return nil
}

func (l *Loop) reconcileOne(ctx context.Context, tx pgx.Tx, payment domain.Payment, now time.Time, stats *Stats) error {
	adapter, ok := l.adapters[payment.Provider]
	if !ok {
		l.log.Warnf("PSP poller: no provider client configured for %s, payment_id=%d", payment.Provider, payment.ID)
		stats.Skipped++
		return nil
	}

	attemptIndex := payment.Attempts
	if attemptIndex >= len(l.cfg.AttemptOffsets) {
		return l.exhaust(ctx, tx, payment, stats)
	}

	dueAt := payment.CreatedAt.Add(time.Duration(l.cfg.AttemptOffsets[attemptIndex]) * time.Second)
	if now.Before(dueAt) {
		stats.Skipped++
		return nil
	}

	callStart := time.Now()
	result, callLog := adapter.Status(ctx, payment.Token, payment.Context)
	latency := time.Since(callStart)

	if err := l.payments.RecordProviderEvent(ctx, tx, domain.ProviderEvent{
		PaymentID:       payment.ID,
		Provider:        payment.Provider,
		RequestURL:      callLog.RequestURL,
		RequestHeaders:  callLog.RequestHeaders,
		RequestBody:     callLog.RequestBody,
		ResponseStatus:  callLog.ResponseStatus,
		ResponseHeaders: callLog.ResponseHeaders,
		ResponseBody:    callLog.ResponseBody,
		ErrorMessage:    callLog.ErrorMessage,
		LatencyMS:       &callLog.LatencyMS,
	}); err != nil {
		return err
	}

	success := callLog.ErrorMessage == nil && result.ProviderStatus != nil
	if err := l.payments.RecordStatusCheck(ctx, tx, domain.StatusCheck{
		PaymentID:      payment.ID,
		Provider:       payment.Provider,
		Success:        success,
		ProviderStatus: result.ProviderStatus,
		MappedStatus:   result.MappedStatus,
		ResponseCode:   result.ResponseCode,
		RawPayload:     result.RawPayload,
		ErrorMessage:   callLog.ErrorMessage,
	}); err != nil {
		return err
	}

	outcome := "ok"
	if callLog.ErrorMessage != nil {
		outcome = "error"
		l.log.Errorf("PSP poller: error checking payment_id=%d, provider=%s, error=%s", payment.ID, payment.Provider, *callLog.ErrorMessage)
	}
	if l.metrics != nil {
		l.metrics.RecordStatusCheck(payment.Provider, outcome, latency)
	}

	if result.MappedStatus == nil {
		if attemptIndex+1 >= len(l.cfg.AttemptOffsets) {
			return l.exhaust(ctx, tx, payment, stats)
		}
		return nil
	}

	if *result.MappedStatus == payment.Status {
		return nil
	}

	statusReason := payment.StatusReason
	if terminalReasonStatuses[*result.MappedStatus] {
		reason := reasonProviderReconciliation
		statusReason = &reason
	}

	if err := l.payments.UpdatePaymentStatus(ctx, tx, payment.ID, *result.MappedStatus, statusReason); err != nil {
		return err
	}
	stats.Updated++
	if l.metrics != nil {
		l.metrics.RecordTransition(string(*result.MappedStatus))
	}
	l.events.PublishTransition(ctx, eventbus.TransitionEvent{
		PaymentID:  payment.ID,
		Provider:   payment.Provider,
		FromStatus: string(payment.Status),
		ToStatus:   string(*result.MappedStatus),
		Reason:     derefString(statusReason),
		OccurredAt: now.Format(time.RFC3339),
	})

	if *result.MappedStatus == domain.StatusAuthorized {
		if err := l.enqueueCRM(ctx, tx, payment, domain.OperationPaymentApproved); err != nil {
			return err
		}
	}

	return nil
}

// exhaust marks a payment ABANDONED once its retry-offset schedule runs
// out, without a CRM enqueue: unlike the abandoned-timeout sweep, this
// terminal transition is not AUTHORIZED and is not configured to push.
func (l *Loop) exhaust(ctx context.Context, tx pgx.Tx, payment domain.Payment, stats *Stats) error {
	if err := l.payments.MarkAttemptsExhausted(ctx, tx, payment.ID); err != nil {
		return err
	}
	stats.Abandoned++
	stats.Failed++
	if l.metrics != nil {
		l.metrics.RecordAbandoned("attempts_exhausted")
	}
	l.log.Warnf("PSP poller: attempts exhausted for payment_id=%d, provider=%s", payment.ID, payment.Provider)
	return nil
}

func (l *Loop) abandon(ctx context.Context, tx pgx.Tx, payment domain.Payment, reason string) error {
	r := reason
	if err := l.payments.UpdatePaymentStatus(ctx, tx, payment.ID, domain.StatusAbandoned, &r); err != nil {
		return err
	}
	if err := l.enqueueCRM(ctx, tx, payment, domain.OperationAbandonedCart); err != nil {
		return err
	}
	if l.metrics != nil {
		l.metrics.RecordAbandoned("timeout")
	}
	l.log.Infof("PSP poller: marked payment_id=%d as ABANDONED, enqueued CRM notification", payment.ID)
	return nil
}

func (l *Loop) enqueueCRM(ctx context.Context, tx pgx.Tx, payment domain.Payment, operation string) error {
	payload, err := crmpayload.Marshal(payment, operation)
	if err != nil {
		return err
	}
	return l.crmQueue.Enqueue(ctx, tx, payment.ID, operation, payload)
}

func (l *Loop) emitHeartbeat(ctx context.Context, tx pgx.Tx, stats Stats) error {
	now := time.Now()
	if !l.lastHeartbeat.IsZero() && now.Before(l.lastHeartbeat) {
		return nil
	}
	l.lastHeartbeat = now.Add(l.cfg.HeartbeatInterval)
	return l.payments.LogServiceRuntimeEvent(ctx, tx, l.cfg.InstanceID, domain.RuntimeEventHeartbeat, map[string]Stats{"psp_poller": stats})
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
