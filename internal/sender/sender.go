// Package sender implements the CRM push loop, grounded on
// original_source/src/loops/crm_sender.py's CrmSender.
package sender

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carlosSepher/ninja-payments-reconciler/internal/crmclient"
	"github.com/carlosSepher/ninja-payments-reconciler/internal/domain"
	"github.com/carlosSepher/ninja-payments-reconciler/internal/logging"
	"github.com/carlosSepher/ninja-payments-reconciler/internal/metrics"
)

// PaymentsStore is the slice of *repository.PaymentsRepo the sender
// needs, narrowed to an interface so the push logic can be exercised
// against a fake in tests.
type PaymentsStore interface {
	LogServiceRuntimeEvent(ctx context.Context, tx pgx.Tx, instanceID, eventType string, payload any) error
}

// CRMQueueStore is the slice of *repository.CRMQueueRepo the sender needs.
type CRMQueueStore interface {
	ReactivateFailedItems(ctx context.Context, tx pgx.Tx, limit int) (int, error)
	FetchPending(ctx context.Context, tx pgx.Tx, limit int) ([]domain.CRMQueueItem, error)
	MarkSent(ctx context.Context, tx pgx.Tx, itemID int64, responseCode int, crmID *string) error
	MarkFailed(ctx context.Context, tx pgx.Tx, itemID int64, attempts int, nextAttemptAt *time.Time, responseCode *int, errMessage string) error
	RecordCRMEvent(ctx context.Context, tx pgx.Tx, ev domain.CRMEvent) error
}

// Config mirrors the Settings fields crm_sender.py reads.
type Config struct {
	Enabled           bool
	IntervalSeconds   int
	BatchSize         int
	RetryBackoff      []int
	InstanceID        string
	HeartbeatInterval time.Duration
}

// Stats mirrors the per-cycle dict CrmSender._process_once accumulates.
type Stats struct {
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
	Retried int `json:"retried"`
}

// Loop owns one CRM push cycle.
type Loop struct {
	pool          *pgxpool.Pool
	cfg           Config
	payments      PaymentsStore
	crmQueue      CRMQueueStore
	client        *crmclient.Client
	log           *logging.Logger
	metrics       *metrics.Metrics
	lastHeartbeat time.Time
}

func New(
	pool *pgxpool.Pool,
	cfg Config,
	payments PaymentsStore,
	crmQueue CRMQueueStore,
	client *crmclient.Client,
	log *logging.Logger,
	m *metrics.Metrics,
) *Loop {
	return &Loop{
		pool:     pool,
		cfg:      cfg,
		payments: payments,
		crmQueue: crmQueue,
		client:   client,
		log:      log,
		metrics:  m,
	}
}

// Run blocks until ctx is cancelled, mirroring CrmSender.run's
// while-True/asyncio.sleep loop.
func (l *Loop) Run(ctx context.Context) {
	l.log.Infof("CRM sender loop started")
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
			l.log.Errorf("error in CRM sender loop: %v", err)
		}
		if l.metrics != nil {
			l.metrics.SenderCycleDuration.Observe(time.Since(start).Seconds())
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

	reactivated, err := l.crmQueue.ReactivateFailedItems(ctx, tx, l.cfg.BatchSize)
	if err != nil {
		return err
	}
	stats.Retried += reactivated

	items, err := l.crmQueue.FetchPending(ctx, tx, l.cfg.BatchSize)
	if err != nil {
		return err
	}
	if l.metrics != nil {
		l.metrics.CRMQueueDepth.Set(float64(len(items)))
		if l.client.BreakerOpen() {
			l.metrics.CRMBreakerOpen.Set(1)
		} else {
			l.metrics.CRMBreakerOpen.Set(0)
		}
	}

	now := time.Now().UTC()
	for _, item := range items {
		if err := l.sendOne(ctx, tx, item, now, &stats); err != nil {
			return err
		}
	}

	if err := l.emitHeartbeat(ctx, tx, stats); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (l *Loop) sendOne(ctx context.Context, tx pgx.Tx, item domain.CRMQueueItem, now time.Time, stats *Stats) error {
	resp, callLog := l.client.Send(ctx, item.Payload)

	if err := l.crmQueue.RecordCRMEvent(ctx, tx, domain.CRMEvent{
		PaymentID:       item.PaymentID,
		Operation:       item.Operation,
		RequestURL:      l.client.Endpoint(),
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

	success := resp.StatusCode >= 200 && resp.StatusCode < 300 && callLog.ErrorMessage == nil
	if l.metrics != nil {
		outcome := "sent"
		if !success {
			outcome = "failed"
		}
		l.metrics.RecordCRMPush(outcome, time.Duration(callLog.LatencyMS)*time.Millisecond)
	}

	if success {
		if err := l.crmQueue.MarkSent(ctx, tx, item.ID, resp.StatusCode, resp.CRMID); err != nil {
			return err
		}
		stats.Sent++
		return nil
	}

	attempts := item.Attempts + 1

	// once attempts reaches len(RetryBackoff) the item is permanently
	// FAILED: next_attempt_at stays nil and ReactivateFailedItems never
	// picks this row back up again.
	var nextAttempt *time.Time
	if attempts < len(l.cfg.RetryBackoff) {
		t := now.Add(time.Duration(l.cfg.RetryBackoff[attempts-1]) * time.Second)
		nextAttempt = &t
	}

	var responseCode *int
	if resp.StatusCode != 0 {
		code := resp.StatusCode
		responseCode = &code
	}
	errMessage := "CRM send failed"
	if callLog.ErrorMessage != nil {
		errMessage = *callLog.ErrorMessage
	}

	if err := l.crmQueue.MarkFailed(ctx, tx, item.ID, attempts, nextAttempt, responseCode, errMessage); err != nil {
		return err
	}
	stats.Failed++
	return nil
}

func (l *Loop) emitHeartbeat(ctx context.Context, tx pgx.Tx, stats Stats) error {
	now := time.Now()
	if !l.lastHeartbeat.IsZero() && now.Before(l.lastHeartbeat) {
		return nil
	}
	l.lastHeartbeat = now.Add(l.cfg.HeartbeatInterval)
	return l.payments.LogServiceRuntimeEvent(ctx, tx, l.cfg.InstanceID, domain.RuntimeEventHeartbeat, map[string]Stats{"crm_sender": stats})
}
