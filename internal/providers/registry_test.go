package providers

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

type stubAdapter struct{ name string }

func (s stubAdapter) Name() string { return s.name }
func (s stubAdapter) Status(context.Context, string, json.RawMessage) (StatusResult, CallLog) {
	return StatusResult{}, CallLog{}
}

func TestBuildRegistry(t *testing.T) {
	all := map[string]Adapter{
		"card-psp":           stubAdapter{name: "card-psp"},
		"wallet-psp":         stubAdapter{name: "wallet-psp"},
		"local-redirect-psp": stubAdapter{name: "local-redirect-psp"},
	}

	t.Run("keeps only the configured polling providers", func(t *testing.T) {
		registry := BuildRegistry(all, []string{"card-psp", "wallet-psp"})

		assert.Len(t, registry, 2)
		assert.Contains(t, registry, "card-psp")
		assert.Contains(t, registry, "wallet-psp")
		assert.NotContains(t, registry, "local-redirect-psp")
	})

	t.Run("returns empty registry for no configured providers", func(t *testing.T) {
		registry := BuildRegistry(all, nil)

		assert.Empty(t, registry)
	})

	t.Run("ignores polling provider names with no matching adapter", func(t *testing.T) {
		registry := BuildRegistry(all, []string{"card-psp", "unknown-psp"})

		assert.Len(t, registry, 1)
		assert.Contains(t, registry, "card-psp")
	})
}
