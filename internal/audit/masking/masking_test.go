package masking

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskSecret_KeepsPrefixAndSuffix(t *testing.T) {
	assert.Equal(t, "sk_****3456", MaskSecret("sk_abc123456"))
	assert.Equal(t, "****", MaskSecret("abcd"))
	assert.Equal(t, "", MaskSecret("  "))
}

func TestMaskJSON_RedactsOnlySensitiveKeys(t *testing.T) {
	masked := MaskJSON(map[string]any{
		"customer_id": "1234",
		"api_key":     "sk_live_abcdef1234",
		"nested": map[string]any{
			"token":  "tok_zzz999888",
			"amount": int64(500),
		},
	})

	assert.Equal(t, "1234", masked["customer_id"])
	assert.Equal(t, "sk_live_****1234", masked["api_key"])
	nested := masked["nested"].(map[string]any)
	assert.Equal(t, "tok_****9888", nested["token"])
	assert.Equal(t, int64(500), nested["amount"])
}

func TestMaskJSON_EmptyInput(t *testing.T) {
	assert.Nil(t, MaskJSON(nil))
	assert.Nil(t, MaskJSON(map[string]any{"": "x"}))
}
