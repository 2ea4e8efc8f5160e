package config

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecretRedaction(t *testing.T) {
	tests := []struct {
		name   string
		secret Secret
		want   string
	}{
		{name: "non-empty secret", secret: Secret("super-secret-password"), want: "***"},
		{name: "empty secret", secret: Secret(""), want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.secret.String())
			assert.Equal(t, "value: "+tt.want, fmt.Sprintf("value: %s", tt.secret))
			if tt.secret != "" {
				assert.NotContains(t, fmt.Sprintf("%v", tt.secret), string(tt.secret))
				assert.NotContains(t, fmt.Sprintf("%#v", tt.secret), string(tt.secret))
			}
		})
	}
}

func TestSecretJSONMarshal(t *testing.T) {
	cfg := ProviderConfig{
		Kind:          ProviderKindCloud,
		ClientID:      "desk",
		ClientSecret:  Secret("super-secret-password"),
		EncryptionKey: Secret("sk-1234567890abcdef"),
	}

	data, err := json.Marshal(cfg)
	require.NoError(t, err)

	assert.NotContains(t, string(data), "super-secret-password")
	assert.NotContains(t, string(data), "sk-1234567890abcdef")
	assert.Contains(t, string(data), `"clientId":"desk"`)
	assert.Contains(t, string(data), `"clientSecret":"***"`)
}

func TestSecretInStruct(t *testing.T) {
	bridge := BridgeConfig{
		Addr:  "127.0.0.1:8765",
		Token: Secret("token-12345"),
	}

	assert.NotContains(t, fmt.Sprintf("%+v", bridge), "token-12345")
	assert.Equal(t, "***", bridge.Token.String())
}
