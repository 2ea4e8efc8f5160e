package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Secret is a string type that redacts itself when printed
type Secret string

// String implements fmt.Stringer to redact the secret
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "***"
}

// GoString covers %#v, which bypasses String
func (s Secret) GoString() string {
	return `"` + s.String() + `"`
}

// MarshalJSON implements json.Marshaler to prevent secrets in JSON logs
func (s Secret) MarshalJSON() ([]byte, error) {
	if s == "" {
		return json.Marshal("")
	}
	return json.Marshal("***")
}

// StorageKind selects where session state is persisted
type StorageKind string

const (
	StorageKindSQLite StorageKind = "sqlite"
	StorageKindMemory StorageKind = "memory"
)

// ProviderKind selects the backend behind the auth manager
type ProviderKind string

const (
	ProviderKindCloud  ProviderKind = "cloud"
	ProviderKindMemory ProviderKind = "memory"
)

// SupportedVersion is the prefix every config file version must carry
const SupportedVersion = "v1"

// Defaults applied by Load when a key is absent
const (
	DefaultRegion             = "ap-shanghai"
	DefaultWatchInterval      = 15 * time.Second
	DefaultResourceCollection = "resources"
	DefaultBridgeAddr         = "127.0.0.1:8765"
	DefaultLoginRatePerMinute = 10
)

// Config is the top-level configuration
type Config struct {
	Version            string        `json:"version"`
	EnvironmentID      string        `json:"environmentId"`
	Region             string        `json:"region,omitempty"`
	SessionTTLMinutes  float64       `json:"sessionTtlMinutes,omitempty"`
	WatchInterval      time.Duration `json:"watchInterval,omitempty"`
	ResourceCollection string        `json:"resourceCollection,omitempty"`
	LogLevel           string        `json:"logLevel,omitempty"`
	LogFormat          string        `json:"logFormat,omitempty"`

	Storage  StorageConfig  `json:"storage"`
	Provider ProviderConfig `json:"provider"`
	Bridge   BridgeConfig   `json:"bridge"`
}

// StorageConfig configures the local key/value store
type StorageConfig struct {
	Kind StorageKind `json:"kind"`
	Path string      `json:"path,omitempty"`
}

// ProviderConfig configures the cloud backend client
type ProviderConfig struct {
	Kind              ProviderKind `json:"kind"`
	BaseURL           string       `json:"baseUrl,omitempty"`
	ClientID          string       `json:"clientId,omitempty"`
	ClientSecret      Secret       `json:"clientSecret,omitempty"`
	EncryptionKey     Secret       `json:"encryptionKey,omitempty"`
	FirestoreProject  string       `json:"firestoreProject,omitempty"`
	FirestoreDatabase string       `json:"firestoreDatabase,omitempty"`
}

// BridgeConfig configures the local HTTP bridge used by the UI
type BridgeConfig struct {
	Addr               string   `json:"addr"`
	Token              Secret   `json:"token,omitempty"`
	AllowedOrigins     []string `json:"allowedOrigins,omitempty"`
	LoginRatePerMinute int      `json:"loginRatePerMinute,omitempty"`
}

// ParseConfigValue resolves a value that is either a plain string or an
// {"$env": "VAR"} reference
func ParseConfigValue(raw json.RawMessage) (string, error) {
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return str, nil
	}

	var ref map[string]string
	if err := json.Unmarshal(raw, &ref); err != nil {
		return "", fmt.Errorf("config value must be string or reference object")
	}

	envVar, ok := ref["$env"]
	if !ok {
		return "", fmt.Errorf("unknown reference type in config value")
	}
	value := os.Getenv(envVar)
	if value == "" {
		return "", fmt.Errorf("environment variable %s not set", envVar)
	}
	// Strip surrounding quotes if present (only matching pairs)
	if len(value) >= 2 {
		if (value[0] == '"' && value[len(value)-1] == '"') ||
			(value[0] == '\'' && value[len(value)-1] == '\'') {
			value = value[1 : len(value)-1]
		}
	}
	return value, nil
}

// parseOptional resolves raw into dst when the key was present
func parseOptional(raw json.RawMessage, field string, dst *string) error {
	if raw == nil {
		return nil
	}
	value, err := ParseConfigValue(raw)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", field, err)
	}
	*dst = value
	return nil
}
