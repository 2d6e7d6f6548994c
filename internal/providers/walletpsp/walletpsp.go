// Package walletpsp implements the wallet-PSP adapter on top of
// go-pay/gopay's Alipay client, used here purely as a redirect-wallet
// status query, grounded on
// LittleSquirrel00-uniedit-server's alipay.go provider (its
// QueryPayment/TradeQuery call).
package walletpsp

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/go-pay/gopay"
	"github.com/go-pay/gopay/alipay"

	"github.com/carlosSepher/ninja-payments-reconciler/internal/domain"
	"github.com/carlosSepher/ninja-payments-reconciler/internal/providers"
)

const ProviderKey = "wallet-psp"

var statusMapping = map[string]domain.Status{
	"COMPLETED":             domain.StatusAuthorized,
	"APPROVED":              domain.StatusToConfirm,
	"CREATED":               domain.StatusPending,
	"VOIDED":                domain.StatusCanceled,
	"PAYER_ACTION_REQUIRED": domain.StatusToConfirm,
}

// Adapter polls a wallet checkout order's status via the Alipay trade
// query endpoint, used here as a generic redirect-wallet provider rather
// than tied to Alipay specifically.
type Adapter struct {
	client *alipay.Client
}

func New(appID, privateKey string, isProd bool) (*Adapter, error) {
	client, err := alipay.NewClient(appID, privateKey, isProd)
	if err != nil {
		return nil, err
	}
	return &Adapter{client: client}, nil
}

func (a *Adapter) Name() string { return ProviderKey }

func (a *Adapter) Status(ctx context.Context, token string, _ json.RawMessage) (providers.StatusResult, providers.CallLog) {
	url := "alipay.trade.query"
	reqHeaders := map[string]string{"Content-Type": "application/json"}

	if a.client == nil {
		errMsg := "wallet PSP client is not configured"
		return providers.StatusResult{Success: false, ErrorMessage: &errMsg},
			providers.CallLog{RequestURL: url, RequestHeaders: reqHeaders, ErrorMessage: &errMsg}
	}

	bm := make(gopay.BodyMap)
	bm.Set("out_trade_no", token)

	start := time.Now()
	resp, err := a.client.TradeQuery(ctx, bm)
	latency := int(time.Since(start).Milliseconds())

	if err != nil {
		msg := err.Error()
		return providers.StatusResult{Success: false, ErrorMessage: &msg},
			providers.CallLog{RequestURL: url, RequestHeaders: reqHeaders, ErrorMessage: &msg, LatencyMS: latency}
	}

	if resp.Response.Code != "10000" {
		msg := resp.Response.Code + ": " + resp.Response.Msg
		code, _ := strconv.Atoi(resp.Response.Code)
		return providers.StatusResult{Success: false, ErrorMessage: &msg, ResponseCode: &code},
			providers.CallLog{RequestURL: url, RequestHeaders: reqHeaders, ErrorMessage: &msg, LatencyMS: latency}
	}

	providerStatus := resp.Response.TradeStatus
	mapped, ok := statusMapping[providerStatus]

	result := providers.StatusResult{
		Success:        true,
		ProviderStatus: &providerStatus,
	}
	if ok {
		m := mapped
		result.MappedStatus = &m
	}
	okCode := 200
	result.ResponseCode = &okCode
	if raw, err := json.Marshal(resp.Response); err == nil {
		result.RawPayload = raw
	}

	return result, providers.CallLog{
		RequestURL:     url,
		RequestHeaders: reqHeaders,
		ResponseStatus: &okCode,
		ResponseBody:   result.RawPayload,
		LatencyMS:      latency,
	}
}
