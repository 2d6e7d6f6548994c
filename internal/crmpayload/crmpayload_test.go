package crmpayload

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/carlosSepher/ninja-payments-reconciler/internal/domain"
)

func TestBuild(t *testing.T) {
	t.Run("prefers order customer RUT and sanitizes it", func(t *testing.T) {
		rut := "12.345.678-9"
		payment := domain.Payment{
			ID:              1,
			Provider:        "card-psp",
			AmountMinor:     15000,
			OrderCustomerRUT: &rut,
		}

		payload := Build(payment, domain.OperationPaymentApproved)

		assert.NotNil(t, payload.RUTDepositante)
		assert.Equal(t, "123456789", *payload.RUTDepositante)
	})

	t.Run("falls back to context customer_rut when order RUT is absent", func(t *testing.T) {
		payment := domain.Payment{
			ID:          2,
			Provider:    "wallet-psp",
			AmountMinor: 5000,
			Context:     json.RawMessage(`{"customer_rut": "9.876.543-2", "customer_name": "Jane Doe"}`),
		}

		payload := Build(payment, domain.OperationAbandonedCart)

		assert.Equal(t, "98765432", *payload.RUTDepositante)
		assert.Equal(t, "Jane Doe", *payload.NombreDepositante)
	})

	t.Run("falls back to provider name when no customer name is known", func(t *testing.T) {
		payment := domain.Payment{
			ID:          3,
			Provider:    "local-redirect-psp",
			AmountMinor: 2500,
		}

		payload := Build(payment, domain.OperationPaymentApproved)

		assert.Nil(t, payload.RUTDepositante)
		assert.NotNil(t, payload.NombreDepositante)
		assert.Equal(t, "local-redirect-psp", *payload.NombreDepositante)
	})

	t.Run("derives transaction id from payment order id first", func(t *testing.T) {
		orderID := int64(42)
		payment := domain.Payment{
			ID:             3,
			Provider:       "card-psp",
			AmountMinor:    1000,
			PaymentOrderID: &orderID,
			Token:          "tok_123",
		}

		payload := Build(payment, domain.OperationPaymentApproved)

		assert.Equal(t, "42", *payload.TransactionID)
	})

	t.Run("falls back to payment id when no other identifier exists", func(t *testing.T) {
		payment := domain.Payment{ID: 99, Provider: "card-psp", AmountMinor: 1000}

		payload := Build(payment, domain.OperationPaymentApproved)

		assert.Equal(t, "99", *payload.TransactionID)
	})

	t.Run("formats amount as a plain integer string", func(t *testing.T) {
		payment := domain.Payment{ID: 1, Provider: "card-psp", AmountMinor: 123456}

		payload := Build(payment, domain.OperationPaymentApproved)

		assert.Equal(t, "123456", payload.Monto)
	})
}

func TestMarshal(t *testing.T) {
	payment := domain.Payment{ID: 1, Provider: "card-psp", AmountMinor: 1000}

	raw, err := Marshal(payment, domain.OperationPaymentApproved)
	assert.NoError(t, err)

	var decoded map[string]any
	assert.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "card-psp", decoded["paymentMethod"])
}
