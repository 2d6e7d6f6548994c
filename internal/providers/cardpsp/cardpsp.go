// Package cardpsp implements the card-PSP adapter on top of Stripe's Go
// SDK. Grounded on LittleSquirrel00-uniedit-server's stripe.go provider,
// generalized from account/subscription management down to the single
// status(token) operation spec.md's adapter contract requires.
package cardpsp

import (
	"context"
	"encoding/json"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"

	"github.com/carlosSepher/ninja-payments-reconciler/internal/domain"
	"github.com/carlosSepher/ninja-payments-reconciler/internal/providers"
)

const ProviderKey = "card-psp"

var statusMapping = map[stripe.PaymentIntentStatus]domain.Status{
	stripe.PaymentIntentStatusSucceeded:             domain.StatusAuthorized,
	stripe.PaymentIntentStatusProcessing:             domain.StatusToConfirm,
	stripe.PaymentIntentStatusRequiresPaymentMethod: domain.StatusFailed,
	stripe.PaymentIntentStatusRequiresAction:        domain.StatusToConfirm,
	stripe.PaymentIntentStatusRequiresCapture:       domain.StatusAuthorized,
	stripe.PaymentIntentStatusCanceled:              domain.StatusCanceled,
}

// Adapter polls Stripe payment intents for their current status.
type Adapter struct {
	apiKey string
}

func New(apiKey string) *Adapter {
	return &Adapter{apiKey: apiKey}
}

func (a *Adapter) Name() string { return ProviderKey }

func (a *Adapter) Status(ctx context.Context, token string, _ json.RawMessage) (providers.StatusResult, providers.CallLog) {
	url := "/v1/payment_intents/" + token
	reqHeaders := map[string]string{"Content-Type": "application/x-www-form-urlencoded"}

	if a.apiKey == "" {
		errMsg := "stripe API key is not configured"
		return providers.StatusResult{Success: false, ErrorMessage: &errMsg},
			providers.CallLog{RequestURL: url, RequestHeaders: providers.MaskHeaders(reqHeaders), ErrorMessage: &errMsg}
	}
	reqHeaders["Authorization"] = "Basic " + a.apiKey

	start := time.Now()
	sc := &client.API{}
	sc.Init(a.apiKey, nil)
	pi, err := sc.PaymentIntents.Get(token, &stripe.PaymentIntentParams{
		Params: stripe.Params{
			Context: ctx,
		},
	})
	latency := int(time.Since(start).Milliseconds())

	if err != nil {
		msg := err.Error()
		return providers.StatusResult{Success: false, ErrorMessage: &msg},
			providers.CallLog{
				RequestURL:     url,
				RequestHeaders: providers.MaskHeaders(reqHeaders),
				ErrorMessage:   &msg,
				LatencyMS:      latency,
			}
	}

	providerStatus := string(pi.Status)
	mapped, ok := statusMapping[pi.Status]

	result := providers.StatusResult{
		Success:        true,
		ProviderStatus: &providerStatus,
	}
	if ok {
		m := mapped
		result.MappedStatus = &m
	}
	code := 200
	result.ResponseCode = &code
	if raw, err := json.Marshal(pi); err == nil {
		result.RawPayload = raw
	}

	return result, providers.CallLog{
		RequestURL:     url,
		RequestHeaders: providers.MaskHeaders(reqHeaders),
		ResponseStatus: &code,
		ResponseBody:   result.RawPayload,
		LatencyMS:      latency,
	}
}
