package crmclient

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEndpoint(t *testing.T) {
	t.Run("joins base URL and pagar path", func(t *testing.T) {
		c := New(Config{BaseURL: "https://crm.example.com/", PagarPath: "/pagar"})

		assert.Equal(t, "https://crm.example.com/pagar", c.Endpoint())
	})

	t.Run("tolerates a base URL with no trailing slash", func(t *testing.T) {
		c := New(Config{BaseURL: "https://crm.example.com", PagarPath: "/pagar"})

		assert.Equal(t, "https://crm.example.com/pagar", c.Endpoint())
	})
}

func TestFlattenHeaders(t *testing.T) {
	t.Run("keeps the first value of each header", func(t *testing.T) {
		h := http.Header{}
		h.Add("Content-Type", "application/json")
		h.Add("X-Multi", "first")
		h.Add("X-Multi", "second")

		flat := flattenHeaders(h)

		assert.Equal(t, "application/json", flat["Content-Type"])
		assert.Equal(t, "first", flat["X-Multi"])
	})

	t.Run("returns an empty map for no headers", func(t *testing.T) {
		flat := flattenHeaders(http.Header{})

		assert.Empty(t, flat)
	})
}
