// Package crmclient POSTs CRM push-queue payloads over HTTP, grounded
// on original_source/src/integrations/crm_client.py's CRMClient.send,
// wrapped in a sony/gobreaker/v2 circuit breaker the way
// LittleSquirrel00-uniedit-server's provider/health.go wraps outbound
// provider calls — generalized from a per-provider breaker map to the
// single CRM endpoint this service talks to.
package crmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/carlosSepher/ninja-payments-reconciler/internal/providers"
)

// Response is the normalized outcome of one CRM push.
type Response struct {
	StatusCode int
	CRMID      *string
	Body       json.RawMessage
}

// CallLog mirrors providers.CallLog for the CRM-side audit trail.
type CallLog struct {
	RequestHeaders  map[string]string
	RequestBody     json.RawMessage
	ResponseStatus  *int
	ResponseHeaders map[string]string
	ResponseBody    json.RawMessage
	ErrorMessage    *string
	LatencyMS       int
}

// Client posts CRM push payloads to the configured endpoint.
type Client struct {
	baseURL     string
	pagarPath   string
	bearerToken string
	httpClient  *http.Client
	breaker     *gobreaker.CircuitBreaker[*http.Response]
}

type Config struct {
	BaseURL                 string
	PagarPath               string
	BearerToken             string
	TimeoutSeconds          int
	BreakerFailureThreshold uint32
	BreakerOpenSeconds      int
}

func New(cfg Config) *Client {
	breakerSettings := gobreaker.Settings{
		Name:        "crm-client",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     time.Duration(cfg.BreakerOpenSeconds) * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailureThreshold
		},
	}

	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		pagarPath:   cfg.PagarPath,
		bearerToken: cfg.BearerToken,
		httpClient:  &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second},
		breaker:     gobreaker.NewCircuitBreaker[*http.Response](breakerSettings),
	}
}

// Endpoint is the full CRM push URL.
func (c *Client) Endpoint() string {
	return c.baseURL + c.pagarPath
}

// BreakerOpen reports whether the circuit breaker is currently open,
// for the sender loop to surface as a gauge.
func (c *Client) BreakerOpen() bool {
	return c.breaker.State() == gobreaker.StateOpen
}

// Send posts payload to the CRM endpoint through the circuit breaker.
// It never returns a Go error for a transport/breaker failure — that
// failure is encoded into CallLog.ErrorMessage so the sender loop can
// persist it and move on, mirroring CRMClient.send's tuple return.
func (c *Client) Send(ctx context.Context, payload json.RawMessage) (Response, CallLog) {
	url := c.Endpoint()
	headers := map[string]string{"Content-Type": "application/json"}
	if c.bearerToken != "" {
		headers["Authorization"] = "Bearer " + c.bearerToken
	}

	start := time.Now()
	httpResp, err := c.breaker.Execute(func() (*http.Response, error) {
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if reqErr != nil {
			return nil, reqErr
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		return c.httpClient.Do(req)
	})
	latency := int(time.Since(start).Milliseconds())

	maskedReqHeaders := providers.MaskHeaders(headers)

	if err != nil {
		msg := err.Error()
		return Response{}, CallLog{
			RequestHeaders: maskedReqHeaders,
			RequestBody:    payload,
			ErrorMessage:   &msg,
			LatencyMS:      latency,
		}
	}
	defer httpResp.Body.Close()

	bodyBytes, _ := io.ReadAll(httpResp.Body)
	respHeaders := flattenHeaders(httpResp.Header)
	maskedRespHeaders := providers.MaskHeaders(respHeaders)

	var respBody json.RawMessage
	var crmID *string
	contentType := httpResp.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "application/json") && json.Valid(bodyBytes) {
		respBody = bodyBytes
		var parsed map[string]any
		if json.Unmarshal(bodyBytes, &parsed) == nil {
			if id, ok := parsed["id"].(string); ok {
				crmID = &id
			}
		}
	} else {
		raw, _ := json.Marshal(map[string]string{"raw": string(bodyBytes)})
		respBody = raw
	}

	status := httpResp.StatusCode
	return Response{StatusCode: status, CRMID: crmID, Body: respBody},
		CallLog{
			RequestHeaders:  maskedReqHeaders,
			RequestBody:     payload,
			ResponseStatus:  &status,
			ResponseHeaders: maskedRespHeaders,
			ResponseBody:    respBody,
			LatencyMS:       latency,
		}
}

func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}
