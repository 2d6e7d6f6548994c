// Package crmpayload builds the JSON body sent to the CRM, grounded on
// original_source/src/services/crm_payloads.py field-for-field.
package crmpayload

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/carlosSepher/ninja-payments-reconciler/internal/domain"
)

// Payload is the exact CRM request body shape.
type Payload struct {
	RUTDepositante    *string `json:"rutDepositante"`
	NombreDepositante *string `json:"nombreDepositante"`
	PaymentMethod     string  `json:"paymentMethod"`
	TransactionID     *string `json:"transactionId"`
	Monto             string  `json:"monto"`
	ListContrato      []int   `json:"listContrato"`
	ListCuota         *int    `json:"listCuota"`
}

// Build constructs the CRM payload for a given (payment, operation)
// pair. operation does not currently affect the body shape — it only
// labels the crm_push_queue row — but is kept as a parameter to mirror
// build_payload(payment, operation)'s signature.
func Build(payment domain.Payment, operation string) Payload {
	context := decodeMap(payment.Context)
	providerMetadata := decodeMap(payment.ProviderMetadata)

	rut := firstNonEmpty(
		payment.OrderCustomerRUT,
		extractString(context, "customer_rut"),
		extractString(providerMetadata, "rut"),
	)
	rut = sanitizeRUT(rut)

	name := firstNonEmpty(
		extractString(context, "customer_name"),
		extractString(providerMetadata, "name"),
	)
	if name == nil {
		provider := payment.Provider
		name = &provider
	}

	transactionID := transactionIDFor(payment)

	return Payload{
		RUTDepositante:    rut,
		NombreDepositante: name,
		PaymentMethod:     payment.Provider,
		TransactionID:     transactionID,
		Monto:             truncateAmount(payment.AmountMinor),
		ListContrato:      []int{1},
		ListCuota:         nil,
	}
}

// Marshal builds and serializes the payload in one step, the shape the
// CRM queue repository's Enqueue expects.
func Marshal(payment domain.Payment, operation string) (json.RawMessage, error) {
	return json.Marshal(Build(payment, operation))
}

func transactionIDFor(payment domain.Payment) *string {
	if payment.PaymentOrderID != nil {
		s := strconv.FormatInt(*payment.PaymentOrderID, 10)
		return &s
	}
	if payment.AuthorizationCode != nil && *payment.AuthorizationCode != "" {
		return payment.AuthorizationCode
	}
	if payment.Token != "" {
		return &payment.Token
	}
	s := strconv.FormatInt(payment.ID, 10)
	return &s
}

func truncateAmount(amountMinor int64) string {
	return strconv.FormatInt(amountMinor, 10)
}

func sanitizeRUT(value *string) *string {
	if value == nil {
		return nil
	}
	cleaned := strings.NewReplacer(".", "", "-", "").Replace(*value)
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		return nil
	}
	return &cleaned
}

func firstNonEmpty(values ...*string) *string {
	for _, v := range values {
		if v != nil && *v != "" {
			return v
		}
	}
	return nil
}

func decodeMap(raw json.RawMessage) map[string]any {
	if len(raw) == 0 {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	return m
}

func extractString(data map[string]any, key string) *string {
	if data == nil {
		return nil
	}
	v, ok := data[key]
	if !ok || v == nil {
		return nil
	}
	switch t := v.(type) {
	case string:
		return &t
	default:
		s := toString(t)
		return &s
	}
}

func toString(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return strings.Trim(string(b), `"`)
}
