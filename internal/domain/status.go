// Package domain holds the canonical vocabulary shared by every component:
// payment status, the payments themselves, and the value objects adapters
// exchange with the poller loop.
package domain

// Status is the canonical payment status. It is the ledger's own
// vocabulary — adapters translate provider-specific strings into this
// closed set.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusToConfirm  Status = "TO_CONFIRM"
	StatusAuthorized Status = "AUTHORIZED"
	StatusFailed     Status = "FAILED"
	StatusCanceled   Status = "CANCELED"
	StatusRefunded   Status = "REFUNDED"
	StatusAbandoned  Status = "ABANDONED"
)

// NonTerminal lists the statuses eligible for polling.
var NonTerminal = map[Status]bool{
	StatusPending:   true,
	StatusToConfirm: true,
}

// IsTerminal reports whether a status is a sink the poller never
// re-evaluates.
func IsTerminal(s Status) bool {
	return !NonTerminal[s]
}

// setsReconciliationReason lists the terminal transitions that stamp a generic
// reconciliation reason when no more specific reason was supplied.
var setsReconciliationReason = map[Status]bool{
	StatusAuthorized: true,
	StatusFailed:     true,
	StatusCanceled:   true,
	StatusRefunded:   true,
}

// DefaultReasonFor returns the status_reason to apply on a transition into
// new status, unless a more specific reason is already known.
func DefaultReasonFor(s Status) string {
	if setsReconciliationReason[s] {
		return "provider reconciliation update"
	}
	return ""
}

// TimestampFieldFor returns the payment column name that should receive
// now() on a provider-driven transition into s (AUTHORIZED, FAILED,
// CANCELED, REFUNDED), or "" for PENDING, TO_CONFIRM and ABANDONED.
// PENDING and TO_CONFIRM have no timestamp column; ABANDONED's
// abandoned_at is not returned here.
func TimestampFieldFor(s Status) string {
	switch s {
	case StatusAuthorized:
		return "first_authorized_at"
	case StatusFailed:
		return "failed_at"
	case StatusCanceled:
		return "canceled_at"
	case StatusRefunded:
		return "refunded_at"
	default:
		return ""
	}
}

// CRM operation discriminators enqueued by the poller.
const (
	OperationPaymentApproved = "PAYMENT_APPROVED"
	OperationAbandonedCart   = "ABANDONED_CART"
)

// CRM push queue item statuses.
const (
	QueueStatusPending = "PENDING"
	QueueStatusFailed  = "FAILED"
	QueueStatusSent    = "SENT"
)

// Runtime log event types.
const (
	RuntimeEventStartup  = "STARTUP"
	RuntimeEventShutdown = "SHUTDOWN"
	RuntimeEventHeartbeat = "HEARTBEAT"
	RuntimeEventLoopError = "LOOP_ERROR"
)
