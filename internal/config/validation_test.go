package config

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateFile(t *testing.T) {
	tests := []struct {
		name          string
		file          string
		config        string
		wantErrors    []string
		wantWarnings  []string
		wantErrCount  int
		wantWarnCount int
	}{
		{
			name: "valid_cloud_config",
			config: `{
				"version": "v1",
				"environmentId": "prod-env",
				"provider": {
					"kind": "cloud",
					"baseUrl": "https://api.example.com",
					"clientId": "desk",
					"encryptionKey": {"$env": "RD_KEY"}
				},
				"bridge": {
					"addr": "127.0.0.1:8765",
					"token": {"$env": "RD_BRIDGE_TOKEN"}
				}
			}`,
		},
		{
			name: "valid_toml_config",
			file: "config.toml",
			config: `
version = "v1"
environmentId = "prod-env"

[provider]
kind = "memory"

[bridge]
token = { "$env" = "RD_BRIDGE_TOKEN" }
`,
		},
		{
			name:         "missing_version_and_environment",
			config:       `{"provider": {"kind": "memory"}, "bridge": {"token": {"$env": "T"}}}`,
			wantErrors:   []string{"version field is required", "environmentId is required"},
			wantErrCount: 2,
		},
		{
			name:         "placeholder_environment",
			config:       `{"version": "v1", "environmentId": "your-env-id", "provider": {"kind": "memory"}, "bridge": {"token": {"$env": "T"}}}`,
			wantErrors:   []string{"placeholder"},
			wantErrCount: 1,
		},
		{
			name: "plain_text_secret",
			config: `{
				"version": "v1",
				"environmentId": "env",
				"provider": {
					"kind": "cloud",
					"baseUrl": "https://api.example.com",
					"clientId": "desk",
					"encryptionKey": "literal-key"
				},
				"bridge": {"token": {"$env": "T"}}
			}`,
			wantErrors:   []string{"encryptionKey must use environment variable reference"},
			wantErrCount: 1,
		},
		{
			name: "bash_style_secret",
			config: `{
				"version": "v1",
				"environmentId": "env",
				"provider": {"kind": "memory"},
				"bridge": {"token": "$BRIDGE_TOKEN"}
			}`,
			wantErrors:    []string{"found bash-style syntax"},
			wantWarnings:  []string{"found bash-style syntax '$BRIDGE_TOKEN'"},
			wantErrCount:  1,
			wantWarnCount: 1,
		},
		{
			name: "cloud_missing_fields",
			config: `{
				"version": "v1",
				"environmentId": "env",
				"provider": {"kind": "cloud", "baseUrl": "ftp://example.com"},
				"bridge": {"token": {"$env": "T"}}
			}`,
			wantErrors:   []string{"clientId is required", "baseUrl must be an http(s) URL", "encryptionKey is required"},
			wantErrCount: 3,
		},
		{
			name: "unknown_kinds",
			config: `{
				"version": "v1",
				"environmentId": "env",
				"storage": {"kind": "redis"},
				"provider": {"kind": "ldap"},
				"bridge": {"token": {"$env": "T"}}
			}`,
			wantErrors:   []string{"unsupported storage kind 'redis'", "unsupported provider kind 'ldap'"},
			wantErrCount: 2,
		},
		{
			name: "bad_durations_and_numbers",
			config: `{
				"version": "v1",
				"environmentId": "env",
				"sessionTtlMinutes": 0,
				"watchInterval": "10ms",
				"logLevel": "chatty",
				"provider": {"kind": "memory"},
				"bridge": {"token": {"$env": "T"}, "loginRatePerMinute": -2}
			}`,
			wantErrors: []string{
				"sessionTtlMinutes must be positive",
				"watchInterval must be at least 1s",
				"invalid logLevel 'chatty'",
				"loginRatePerMinute must be a non-negative number",
			},
			wantErrCount: 4,
		},
		{
			name: "ttl_beyond_one_year",
			config: `{
				"version": "v1",
				"environmentId": "env",
				"sessionTtlMinutes": 1e15,
				"provider": {"kind": "memory"},
				"bridge": {"token": {"$env": "T"}}
			}`,
			wantErrors:   []string{"sessionTtlMinutes must be at most 527040 (one year)"},
			wantErrCount: 1,
		},
		{
			name: "warnings_only",
			config: `{
				"version": "v1",
				"environmentId": "env",
				"sessionTtlMinutes": 2,
				"storage": {"kind": "memory"},
				"provider": {"kind": "memory"},
				"bridge": {"addr": "0.0.0.0:8765"}
			}`,
			wantWarnings: []string{
				"will log users out very quickly",
				"memory storage loses the session",
				"bridge.token is not set",
				"reachable from other hosts",
			},
			wantWarnCount: 4,
		},
		{
			name:         "invalid_json",
			config:       `{"version": "v1",`,
			wantErrors:   []string{"invalid JSON"},
			wantErrCount: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name := tt.file
			if name == "" {
				name = "config.json"
			}
			result, err := ValidateFile(writeConfig(t, name, tt.config))
			require.NoError(t, err)

			assert.Len(t, result.Errors, tt.wantErrCount, "errors: %+v", result.Errors)
			assert.Len(t, result.Warnings, tt.wantWarnCount, "warnings: %+v", result.Warnings)
			assert.Equal(t, tt.wantErrCount == 0, result.IsValid())

			for _, want := range tt.wantErrors {
				assert.True(t, containsMessage(result.Errors, want), "missing error %q in %+v", want, result.Errors)
			}
			for _, want := range tt.wantWarnings {
				assert.True(t, containsMessage(result.Warnings, want), "missing warning %q in %+v", want, result.Warnings)
			}
		})
	}
}

func TestValidateFileMissing(t *testing.T) {
	_, err := ValidateFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestCheckBashStyleSyntaxPaths(t *testing.T) {
	result := &ValidationResult{}
	checkBashStyleSyntax(map[string]any{
		"bridge": map[string]any{
			"allowedOrigins": []any{"http://${HOST}:5173"},
			"token":          map[string]any{"$env": "$IGNORED"},
		},
	}, "", result)

	require.Len(t, result.Warnings, 1)
	assert.Equal(t, "bridge.allowedOrigins[0]", result.Warnings[0].Path)
	assert.Contains(t, result.Warnings[0].Message, `{"$env": "HOST"}`)
}

func containsMessage(issues []ValidationError, want string) bool {
	for _, issue := range issues {
		if strings.Contains(issue.Message, want) {
			return true
		}
	}
	return false
}
