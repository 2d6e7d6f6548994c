// Package localpsp implements the local-redirect-PSP adapter on top of
// Mercado Pago's Go SDK, grounded on
// fiap-grupo95-billing-service's mercadopago_gateway.go (which wires the
// same SDK for payment creation; this adapter uses its read-side
// equivalent for status polling instead).
package localpsp

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/mercadopago/sdk-go/pkg/config"
	"github.com/mercadopago/sdk-go/pkg/payment"

	"github.com/carlosSepher/ninja-payments-reconciler/internal/domain"
	"github.com/carlosSepher/ninja-payments-reconciler/internal/providers"
)

const ProviderKey = "local-redirect-psp"

var statusMapping = map[string]domain.Status{
	"AUTHORIZED":  domain.StatusAuthorized,
	"FAILED":      domain.StatusFailed,
	"REJECTED":    domain.StatusFailed,
	"REVERSED":    domain.StatusCanceled,
	"NULLIFIED":   domain.StatusCanceled,
	"PENDING":     domain.StatusPending,
	"INITIALIZED": domain.StatusPending,
}

// Adapter polls a local bank-redirect checkout transaction's status.
type Adapter struct {
	client payment.Client
}

func New(accessToken string) (*Adapter, error) {
	if accessToken == "" {
		return &Adapter{}, nil
	}
	cfg, err := config.New(accessToken)
	if err != nil {
		return nil, err
	}
	return &Adapter{client: payment.NewClient(cfg)}, nil
}

func (a *Adapter) Name() string { return ProviderKey }

func (a *Adapter) Status(ctx context.Context, token string, _ json.RawMessage) (providers.StatusResult, providers.CallLog) {
	url := "/v1/payments/" + token
	reqHeaders := map[string]string{"Content-Type": "application/json"}

	if a.client == nil {
		errMsg := "local-redirect PSP client is not configured"
		return providers.StatusResult{Success: false, ErrorMessage: &errMsg},
			providers.CallLog{RequestURL: url, RequestHeaders: reqHeaders, ErrorMessage: &errMsg}
	}

	id, convErr := strconv.ParseInt(token, 10, 64)
	if convErr != nil {
		errMsg := "invalid local-redirect PSP token: " + convErr.Error()
		return providers.StatusResult{Success: false, ErrorMessage: &errMsg},
			providers.CallLog{RequestURL: url, RequestHeaders: reqHeaders, ErrorMessage: &errMsg}
	}

	start := time.Now()
	resp, err := a.client.Get(ctx, int(id))
	latency := int(time.Since(start).Milliseconds())

	if err != nil {
		msg := err.Error()
		return providers.StatusResult{Success: false, ErrorMessage: &msg},
			providers.CallLog{RequestURL: url, RequestHeaders: reqHeaders, ErrorMessage: &msg, LatencyMS: latency}
	}

	providerStatus := resp.Status
	mapped, ok := statusMapping[providerStatus]

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
	if raw, err := json.Marshal(resp); err == nil {
		result.RawPayload = raw
	}

	return result, providers.CallLog{
		RequestURL:     url,
		RequestHeaders: reqHeaders,
		ResponseStatus: &code,
		ResponseBody:   result.RawPayload,
		LatencyMS:      latency,
	}
}
