// Package providers defines the narrow capability every PSP adapter must
// implement, plus the header-masking helper shared by every adapter and
// the CRM client.
package providers

import (
	"context"
	"encoding/json"

	"github.com/carlosSepher/ninja-payments-reconciler/internal/domain"
)

// StatusResult is the normalized outcome of one status(token) call.
// Success is false only for a transport/parse failure; an unrecognized
// provider status is still success=true with MappedStatus=nil.
type StatusResult struct {
	Success           bool
	ProviderStatus    *string
	MappedStatus      *domain.Status
	ResponseCode      *int
	RawPayload        json.RawMessage
	ErrorMessage      *string
	AuthorizationCode *string
	StatusReason      *string
}

// CallLog captures everything needed for a provider_event_log row,
// independent of whether the call succeeded.
type CallLog struct {
	RequestURL      string
	RequestHeaders  map[string]string
	RequestBody     json.RawMessage
	ResponseStatus  *int
	ResponseHeaders map[string]string
	ResponseBody    json.RawMessage
	ErrorMessage    *string
	LatencyMS       int
}

// Adapter is the uniform contract every concrete PSP client satisfies.
// Implementations must never panic or return a Go error from Status —
// all failure modes are encoded into StatusResult.Success and
// ErrorMessage so the poller loop can persist them and move on.
type Adapter interface {
	Name() string
	Status(ctx context.Context, token string, paymentContext json.RawMessage) (StatusResult, CallLog)
}

var sensitiveHeaders = map[string]bool{
	"authorization":       true,
	"x-api-key":           true,
	"api-key":             true,
	"tbk-api-key-secret":  true,
}

const maskedHeaderValue = "***"

// MaskHeaders returns a copy of headers with secret header values
// replaced by a fixed mask. The card-PSP adapter and the CRM client call
// it on the headers they put into a CallLog; the event-log writers in
// internal/repository store headers as they receive them and do not mask.
func MaskHeaders(headers map[string]string) map[string]string {
	masked := make(map[string]string, len(headers))
	for k, v := range headers {
		lower := toLower(k)
		if sensitiveHeaders[lower] {
			masked[k] = maskedHeaderValue
			continue
		}
		masked[k] = v
	}
	return masked
}

func toLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + 32
		}
	}
	return string(b)
}
