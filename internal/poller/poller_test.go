package poller

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carlosSepher/ninja-payments-reconciler/internal/domain"
	"github.com/carlosSepher/ninja-payments-reconciler/internal/eventbus"
	"github.com/carlosSepher/ninja-payments-reconciler/internal/logging"
	"github.com/carlosSepher/ninja-payments-reconciler/internal/providers"
)

type fakePaymentsStore struct {
	updated     []domain.Status
	exhausted   []int64
	statusChecks int
	events       int
}

func (f *fakePaymentsStore) SelectForReconciliation(context.Context, pgx.Tx, []string, int) ([]domain.Payment, error) {
	return nil, nil
}
func (f *fakePaymentsStore) FindAbandoned(context.Context, pgx.Tx, time.Time, int) ([]domain.Payment, error) {
	return nil, nil
}
func (f *fakePaymentsStore) RecordProviderEvent(context.Context, pgx.Tx, domain.ProviderEvent) error {
	f.events++
	return nil
}
func (f *fakePaymentsStore) RecordStatusCheck(context.Context, pgx.Tx, domain.StatusCheck) error {
	f.statusChecks++
	return nil
}
func (f *fakePaymentsStore) UpdatePaymentStatus(_ context.Context, _ pgx.Tx, _ int64, newStatus domain.Status, _ *string) error {
	f.updated = append(f.updated, newStatus)
	return nil
}
func (f *fakePaymentsStore) MarkAttemptsExhausted(_ context.Context, _ pgx.Tx, paymentID int64) error {
	f.exhausted = append(f.exhausted, paymentID)
	return nil
}
func (f *fakePaymentsStore) LogServiceRuntimeEvent(context.Context, pgx.Tx, string, string, any) error {
	return nil
}

type fakeCRMQueueStore struct {
	enqueued []string
}

func (f *fakeCRMQueueStore) Enqueue(_ context.Context, _ pgx.Tx, _ int64, operation string, _ json.RawMessage) error {
	f.enqueued = append(f.enqueued, operation)
	return nil
}

type fakeAdapter struct {
	mapped *domain.Status
	err    *string
}

func (a fakeAdapter) Name() string { return "fake" }
func (a fakeAdapter) Status(context.Context, string, json.RawMessage) (providers.StatusResult, providers.CallLog) {
	if a.err != nil {
		return providers.StatusResult{Success: false, ErrorMessage: a.err}, providers.CallLog{ErrorMessage: a.err}
	}
	status := "whatever"
	return providers.StatusResult{Success: true, ProviderStatus: &status, MappedStatus: a.mapped}, providers.CallLog{}
}

func newLoop(payments *fakePaymentsStore, crmQueue *fakeCRMQueueStore, adapter providers.Adapter, offsets []int) *Loop {
	log, err := logging.New(logging.DevelopmentMode)
	if err != nil {
		panic(err)
	}
	return &Loop{
		cfg: Config{
			AttemptOffsets: offsets,
		},
		payments: payments,
		crmQueue: crmQueue,
		adapters: map[string]providers.Adapter{"fake-psp": adapter},
		log:      log,
		events:   eventbus.NoopPublisher{},
	}
}

func TestReconcileOne(t *testing.T) {
	t.Run("skips a payment not yet due for its next attempt", func(t *testing.T) {
		payments := &fakePaymentsStore{}
		crmQueue := &fakeCRMQueueStore{}
		loop := newLoop(payments, crmQueue, fakeAdapter{}, []int{60, 180})

		now := time.Now()
		payment := domain.Payment{ID: 1, Provider: "fake-psp", Status: domain.StatusPending, CreatedAt: now, Attempts: 0}

		stats := Stats{}
		err := loop.reconcileOne(context.Background(), nil, payment, now, &stats)

		require.NoError(t, err)
		assert.Equal(t, 1, stats.Skipped)
		assert.Empty(t, payments.updated)
	})

	t.Run("transitions to AUTHORIZED and enqueues a CRM push", func(t *testing.T) {
		payments := &fakePaymentsStore{}
		crmQueue := &fakeCRMQueueStore{}
		authorized := domain.StatusAuthorized
		loop := newLoop(payments, crmQueue, fakeAdapter{mapped: &authorized}, []int{0})

		now := time.Now()
		payment := domain.Payment{ID: 1, Provider: "fake-psp", Status: domain.StatusPending, CreatedAt: now.Add(-time.Minute), Attempts: 0}

		stats := Stats{}
		err := loop.reconcileOne(context.Background(), nil, payment, now, &stats)

		require.NoError(t, err)
		assert.Equal(t, 1, stats.Updated)
		assert.Equal(t, []domain.Status{domain.StatusAuthorized}, payments.updated)
		assert.Equal(t, []string{domain.OperationPaymentApproved}, crmQueue.enqueued)
	})

	t.Run("does not enqueue a CRM push for a FAILED transition", func(t *testing.T) {
		payments := &fakePaymentsStore{}
		crmQueue := &fakeCRMQueueStore{}
		failed := domain.StatusFailed
		loop := newLoop(payments, crmQueue, fakeAdapter{mapped: &failed}, []int{0})

		now := time.Now()
		payment := domain.Payment{ID: 1, Provider: "fake-psp", Status: domain.StatusPending, CreatedAt: now.Add(-time.Minute), Attempts: 0}

		stats := Stats{}
		err := loop.reconcileOne(context.Background(), nil, payment, now, &stats)

		require.NoError(t, err)
		assert.Equal(t, []domain.Status{domain.StatusFailed}, payments.updated)
		assert.Empty(t, crmQueue.enqueued)
	})

	t.Run("marks ABANDONED with no CRM enqueue once attempts reach the offset count", func(t *testing.T) {
		payments := &fakePaymentsStore{}
		crmQueue := &fakeCRMQueueStore{}
		loop := newLoop(payments, crmQueue, fakeAdapter{}, []int{60, 180})

		now := time.Now()
		payment := domain.Payment{ID: 7, Provider: "fake-psp", Status: domain.StatusPending, CreatedAt: now, Attempts: 2}

		stats := Stats{}
		err := loop.reconcileOne(context.Background(), nil, payment, now, &stats)

		require.NoError(t, err)
		assert.Equal(t, []int64{7}, payments.exhausted)
		assert.Empty(t, crmQueue.enqueued)
		assert.Equal(t, 1, stats.Abandoned)
		assert.Equal(t, 1, stats.Failed)
	})

	t.Run("skips a payment whose provider has no configured adapter", func(t *testing.T) {
		payments := &fakePaymentsStore{}
		crmQueue := &fakeCRMQueueStore{}
		loop := newLoop(payments, crmQueue, fakeAdapter{}, []int{60})

		payment := domain.Payment{ID: 1, Provider: "unknown-psp", Status: domain.StatusPending, CreatedAt: time.Now()}

		stats := Stats{}
		err := loop.reconcileOne(context.Background(), nil, payment, time.Now(), &stats)

		require.NoError(t, err)
		assert.Equal(t, 1, stats.Skipped)
	})

	t.Run("leaves the payment untouched when the mapped status is unchanged", func(t *testing.T) {
		payments := &fakePaymentsStore{}
		crmQueue := &fakeCRMQueueStore{}
		pending := domain.StatusPending
		loop := newLoop(payments, crmQueue, fakeAdapter{mapped: &pending}, []int{0})

		now := time.Now()
		payment := domain.Payment{ID: 1, Provider: "fake-psp", Status: domain.StatusPending, CreatedAt: now.Add(-time.Minute)}

		stats := Stats{}
		err := loop.reconcileOne(context.Background(), nil, payment, now, &stats)

		require.NoError(t, err)
		assert.Empty(t, payments.updated)
		assert.Equal(t, 0, stats.Updated)
	})
}

func TestAbandon(t *testing.T) {
	t.Run("marks the payment ABANDONED and enqueues ABANDONED_CART", func(t *testing.T) {
		payments := &fakePaymentsStore{}
		crmQueue := &fakeCRMQueueStore{}
		loop := newLoop(payments, crmQueue, fakeAdapter{}, nil)

		payment := domain.Payment{ID: 3, Provider: "fake-psp"}
		err := loop.abandon(context.Background(), nil, payment, reasonAbandonedTimeout)

		require.NoError(t, err)
		assert.Equal(t, []domain.Status{domain.StatusAbandoned}, payments.updated)
		assert.Equal(t, []string{domain.OperationAbandonedCart}, crmQueue.enqueued)
	})
}
