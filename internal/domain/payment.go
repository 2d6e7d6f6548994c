package domain

import (
	"encoding/json"
	"time"
)

// Payment is one attempted financial transaction, as read back from the
// ledger for reconciliation.
type Payment struct {
	ID                int64
	Status            Status
	Provider          string
	Token             string
	CreatedAt         time.Time
	UpdatedAt         time.Time
	AmountMinor       int64
	Context           json.RawMessage
	ProviderMetadata  json.RawMessage
	ProductID         *int64
	AuthorizationCode *string
	StatusReason      *string
	Attempts          int
	PaymentOrderID    *int64
	OrderCustomerRUT  *string
}

// StatusCheck is one append-only record of a PSP poll attempt.
type StatusCheck struct {
	ID             int64
	PaymentID      int64
	Provider       string
	Success        bool
	ProviderStatus *string
	MappedStatus   *Status
	ResponseCode   *int
	RawPayload     json.RawMessage
	ErrorMessage   *string
	RequestedAt    time.Time
}

// ProviderEvent is one append-only record of an outbound HTTP call to a
// PSP, audit trail for §3 "Provider event log".
type ProviderEvent struct {
	PaymentID       int64
	Provider        string
	RequestURL      string
	RequestHeaders  map[string]string
	RequestBody     json.RawMessage
	ResponseStatus  *int
	ResponseHeaders map[string]string
	ResponseBody    json.RawMessage
	ErrorMessage    *string
	LatencyMS       *int
}

// CRMQueueItem is one row of the at-most-once-per-(payment,operation) CRM
// push queue.
type CRMQueueItem struct {
	ID            int64
	PaymentID     int64
	Operation     string
	Status        string
	Attempts      int
	NextAttemptAt *time.Time
	LastAttemptAt *time.Time
	ResponseCode  *int
	CRMID         *string
	LastError     *string
	Payload       json.RawMessage
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// CRMEvent mirrors ProviderEvent for CRM-side HTTP calls.
type CRMEvent struct {
	PaymentID       int64
	Operation       string
	RequestURL      string
	RequestHeaders  map[string]string
	RequestBody     json.RawMessage
	ResponseStatus  *int
	ResponseHeaders map[string]string
	ResponseBody    json.RawMessage
	ErrorMessage    *string
	LatencyMS       *int
}

// PaymentsMetrics backs the health/metrics surface.
type PaymentsMetrics struct {
	TotalPayments       int64
	AuthorizedPayments  int64
	TotalAmountMinor    int64
	TotalAmountCurrency *string
	LastPaymentAt       *time.Time
}
