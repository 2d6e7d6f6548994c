package providers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskHeaders(t *testing.T) {
	t.Run("masks known sensitive headers case-insensitively", func(t *testing.T) {
		headers := map[string]string{
			"Authorization": "Bearer secret-token",
			"X-Api-Key":     "abc123",
			"Content-Type":  "application/json",
		}

		masked := MaskHeaders(headers)

		assert.Equal(t, maskedHeaderValue, masked["Authorization"])
		assert.Equal(t, maskedHeaderValue, masked["X-Api-Key"])
		assert.Equal(t, "application/json", masked["Content-Type"])
	})

	t.Run("leaves non-sensitive headers untouched", func(t *testing.T) {
		headers := map[string]string{"Accept": "application/json"}

		masked := MaskHeaders(headers)

		assert.Equal(t, "application/json", masked["Accept"])
	})

	t.Run("does not mutate the input map", func(t *testing.T) {
		headers := map[string]string{"Authorization": "Bearer secret"}

		_ = MaskHeaders(headers)

		assert.Equal(t, "Bearer secret", headers["Authorization"])
	})
}
