package sender

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carlosSepher/ninja-payments-reconciler/internal/crmclient"
	"github.com/carlosSepher/ninja-payments-reconciler/internal/domain"
)

type fakePaymentsStore struct{}

func (fakePaymentsStore) LogServiceRuntimeEvent(context.Context, pgx.Tx, string, string, any) error {
	return nil
}

type fakeCRMQueueStore struct {
	events          []domain.CRMEvent
	sent            []int64
	failedAttempts  []int
	failedNextAt    []*time.Time
}

func (f *fakeCRMQueueStore) ReactivateFailedItems(context.Context, pgx.Tx, int) (int, error) { return 0, nil }
func (f *fakeCRMQueueStore) FetchPending(context.Context, pgx.Tx, int) ([]domain.CRMQueueItem, error) {
	return nil, nil
}
func (f *fakeCRMQueueStore) MarkSent(_ context.Context, _ pgx.Tx, itemID int64, _ int, _ *string) error {
	f.sent = append(f.sent, itemID)
	return nil
}
func (f *fakeCRMQueueStore) MarkFailed(_ context.Context, _ pgx.Tx, _ int64, attempts int, nextAttemptAt *time.Time, _ *int, _ string) error {
	f.failedAttempts = append(f.failedAttempts, attempts)
	f.failedNextAt = append(f.failedNextAt, nextAttemptAt)
	return nil
}
func (f *fakeCRMQueueStore) RecordCRMEvent(_ context.Context, _ pgx.Tx, ev domain.CRMEvent) error {
	f.events = append(f.events, ev)
	return nil
}

func newTestLoop(t *testing.T, serverURL string, retryBackoff []int) (*Loop, *fakeCRMQueueStore) {
	client := crmclient.New(crmclient.Config{
		BaseURL:        serverURL,
		PagarPath:      "/pagar",
		TimeoutSeconds: 5,
	})
	crmQueue := &fakeCRMQueueStore{}
	return &Loop{
		cfg:      Config{RetryBackoff: retryBackoff},
		payments: fakePaymentsStore{},
		crmQueue: crmQueue,
		client:   client,
	}, crmQueue
}

func TestSendOne(t *testing.T) {
	t.Run("marks the item SENT on a 200 response", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"id":"crm-123"}`))
		}))
		defer server.Close()

		loop, crmQueue := newTestLoop(t, server.URL, []int{60, 300})
		item := domain.CRMQueueItem{ID: 1, PaymentID: 10, Operation: domain.OperationPaymentApproved, Attempts: 0}

		stats := Stats{}
		err := loop.sendOne(context.Background(), nil, item, time.Now(), &stats)

		require.NoError(t, err)
		assert.Equal(t, []int64{1}, crmQueue.sent)
		assert.Equal(t, 1, stats.Sent)
		assert.Len(t, crmQueue.events, 1)
	})

	t.Run("schedules the next backoff attempt on a 500 response", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		loop, crmQueue := newTestLoop(t, server.URL, []int{60, 300})
		item := domain.CRMQueueItem{ID: 2, PaymentID: 11, Operation: domain.OperationAbandonedCart, Attempts: 0}

		stats := Stats{}
		err := loop.sendOne(context.Background(), nil, item, time.Now(), &stats)

		require.NoError(t, err)
		require.Len(t, crmQueue.failedAttempts, 1)
		assert.Equal(t, 1, crmQueue.failedAttempts[0])
		require.NotNil(t, crmQueue.failedNextAt[0])
		assert.Equal(t, 1, stats.Failed)
	})

	t.Run("leaves next_attempt_at nil once the backoff schedule is exhausted", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		loop, crmQueue := newTestLoop(t, server.URL, []int{60, 300})
		// attempts is already at len(RetryBackoff): a further failure keeps
		// the schedule exhausted.
		item := domain.CRMQueueItem{ID: 3, PaymentID: 12, Operation: domain.OperationAbandonedCart, Attempts: 2}

		stats := Stats{}
		err := loop.sendOne(context.Background(), nil, item, time.Now(), &stats)

		require.NoError(t, err)
		require.Len(t, crmQueue.failedAttempts, 1)
		assert.Equal(t, 3, crmQueue.failedAttempts[0])
		assert.Nil(t, crmQueue.failedNextAt[0])
	})
}
