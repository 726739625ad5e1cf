package idempotency

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateKeyIsDeterministic(t *testing.T) {
	g := NewGenerator()
	params := map[string]interface{}{
		"remote_id":  "I-ABC123",
		"status":     "ACTIVE",
		"period_end": "2025-07-15T00:00:00Z",
	}

	first := g.GenerateKey(ScopeSync, params)
	second := g.GenerateKey(ScopeSync, params)
	assert.Equal(t, first, second)
	assert.True(t, strings.HasPrefix(first, "sync-"))
}

func TestGenerateKeyIgnoresParamOrder(t *testing.T) {
	g := NewGenerator()
	a := g.GenerateKey(ScopeLocalExpiry, map[string]interface{}{
		"subscription_id": "sub_1",
		"target":          "EXPIRED",
	})
	b := g.GenerateKey(ScopeLocalExpiry, map[string]interface{}{
		"target":          "EXPIRED",
		"subscription_id": "sub_1",
	})
	assert.Equal(t, a, b)
}

func TestGenerateKeyVariesWithInputs(t *testing.T) {
	g := NewGenerator()
	base := map[string]interface{}{"remote_id": "I-ABC123", "status": "ACTIVE"}

	changedValue := g.GenerateKey(ScopeSync, map[string]interface{}{"remote_id": "I-ABC123", "status": "EXPIRED"})
	changedScope := g.GenerateKey(ScopeLocalExpiry, base)
	original := g.GenerateKey(ScopeSync, base)

	assert.NotEqual(t, original, changedValue)
	assert.NotEqual(t, original, changedScope)
}

func TestValidateKey(t *testing.T) {
	g := NewGenerator()
	params := map[string]interface{}{"subscription_id": "sub_1", "target": "EXPIRED"}

	key := g.GenerateKey(ScopeLocalExpiry, params)
	assert.True(t, g.ValidateKey(ScopeLocalExpiry, params, key))
	assert.False(t, g.ValidateKey(ScopeSync, params, key))
	assert.False(t, g.ValidateKey(ScopeLocalExpiry, map[string]interface{}{"subscription_id": "sub_2", "target": "EXPIRED"}, key))
}
