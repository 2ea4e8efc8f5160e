package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/dgellow/resource-desk/internal/envutil"
	"github.com/dgellow/resource-desk/internal/log"
	"github.com/dgellow/resource-desk/internal/session"
)

// PlaceholderEnvironmentID is the value shipped in example configs
const PlaceholderEnvironmentID = "your-env-id"

var environmentIDPattern = regexp.MustCompile(`^[A-Za-z0-9-]+$`)

// Load loads and processes the config with immediate env var resolution
func Load(path string) (Config, error) {
	data, err := readConfigFile(path)
	if err != nil {
		return Config{}, err
	}

	var rawConfig map[string]any
	if err := json.Unmarshal(data, &rawConfig); err != nil {
		return Config{}, fmt.Errorf("parsing config JSON: %w", err)
	}

	version, ok := rawConfig["version"].(string)
	if !ok {
		return Config{}, fmt.Errorf("config version is required")
	}
	if !strings.HasPrefix(version, SupportedVersion) {
		return Config{}, fmt.Errorf("unsupported config version: %s", version)
	}

	if err := validateRawConfig(rawConfig); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}

	// The custom UnmarshalJSON methods resolve env vars here
	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}

	if err := applyDefaults(&config); err != nil {
		return Config{}, err
	}

	if err := ValidateConfig(&config); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// readConfigFile returns the file as JSON. TOML files are decoded and
// re-encoded so the rest of the loader only deals with one format.
func readConfigFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if !isTOML(path) {
		return data, nil
	}

	var doc map[string]any
	if _, err := toml.Decode(string(data), &doc); err != nil {
		return nil, fmt.Errorf("parsing config TOML: %w", err)
	}
	converted, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("converting TOML config: %w", err)
	}
	return converted, nil
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

// secretFields lists the keys that must never hold a literal value
var secretFields = []struct {
	section string
	name    string
}{
	{"provider", "clientSecret"},
	{"provider", "encryptionKey"},
	{"bridge", "token"},
}

// validateRawConfig validates the config structure before environment resolution
func validateRawConfig(rawConfig map[string]any) error {
	for _, field := range secretFields {
		section, ok := rawConfig[field.section].(map[string]any)
		if !ok {
			continue
		}
		value, exists := section[field.name]
		if !exists {
			continue
		}
		if _, isString := value.(string); isString {
			return fmt.Errorf("%s.%s must use environment variable reference for security", field.section, field.name)
		}
		refMap, isMap := value.(map[string]any)
		if !isMap {
			return fmt.Errorf("%s.%s must use {\"$env\": \"VAR_NAME\"} format", field.section, field.name)
		}
		if _, hasEnv := refMap["$env"]; !hasEnv {
			return fmt.Errorf("%s.%s must use {\"$env\": \"VAR_NAME\"} format", field.section, field.name)
		}
	}
	return nil
}

// applyDefaults fills in everything a minimal config leaves out. In
// development mode the in-memory backends are the default.
func applyDefaults(config *Config) error {
	if config.Region == "" {
		config.Region = DefaultRegion
	}
	if config.WatchInterval == 0 {
		config.WatchInterval = DefaultWatchInterval
	}
	if config.ResourceCollection == "" {
		config.ResourceCollection = DefaultResourceCollection
	}

	if config.Storage.Kind == "" {
		config.Storage.Kind = StorageKindSQLite
		if envutil.IsDev() {
			config.Storage.Kind = StorageKindMemory
		}
	}
	if config.Storage.Kind == StorageKindSQLite && config.Storage.Path == "" {
		path, err := DefaultStoragePath()
		if err != nil {
			return err
		}
		config.Storage.Path = path
	}

	if config.Provider.Kind == "" {
		config.Provider.Kind = ProviderKindCloud
		if envutil.IsDev() {
			config.Provider.Kind = ProviderKindMemory
		}
	}
	if config.Provider.Kind == ProviderKindCloud && config.Provider.FirestoreProject != "" && config.Provider.FirestoreDatabase == "" {
		config.Provider.FirestoreDatabase = "(default)"
	}

	if config.Bridge.Addr == "" {
		config.Bridge.Addr = DefaultBridgeAddr
	}
	if config.Bridge.LoginRatePerMinute == 0 {
		config.Bridge.LoginRatePerMinute = DefaultLoginRatePerMinute
	}
	return nil
}

// DefaultStoragePath is the SQLite file used when storage.path is not set
func DefaultStoragePath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locating user config directory: %w", err)
	}
	return filepath.Join(dir, "resource-desk", "state.db"), nil
}

// ValidateConfig validates the resolved configuration
func ValidateConfig(config *Config) error {
	id := strings.TrimSpace(config.EnvironmentID)
	if id == "" {
		return fmt.Errorf("environmentId is required")
	}
	if id == PlaceholderEnvironmentID {
		return fmt.Errorf("environmentId is still the placeholder %q", PlaceholderEnvironmentID)
	}
	if !environmentIDPattern.MatchString(id) {
		return fmt.Errorf("environmentId may only contain letters, digits and hyphens")
	}

	if config.SessionTTLMinutes < 0 {
		return fmt.Errorf("sessionTtlMinutes must be positive")
	}
	if config.SessionTTLMinutes > session.MaxTTLMinutes {
		return fmt.Errorf("sessionTtlMinutes must be at most %d (one year)", session.MaxTTLMinutes)
	}
	if config.WatchInterval < time.Second {
		return fmt.Errorf("watchInterval must be at least 1s")
	}

	if config.LogLevel != "" {
		switch strings.ToUpper(config.LogLevel) {
		case "ERROR", "WARN", "WARNING", "INFO", "DEBUG", "TRACE":
		default:
			return fmt.Errorf("invalid logLevel: %s", config.LogLevel)
		}
	}
	if config.LogFormat != "" {
		switch strings.ToUpper(config.LogFormat) {
		case "JSON", "TEXT":
		default:
			return fmt.Errorf("invalid logFormat: %s", config.LogFormat)
		}
	}

	switch config.Storage.Kind {
	case StorageKindMemory:
	case StorageKindSQLite:
		if config.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for sqlite storage")
		}
	default:
		return fmt.Errorf("unsupported storage.kind: %s", config.Storage.Kind)
	}

	if err := validateProviderConfig(&config.Provider); err != nil {
		return fmt.Errorf("provider config: %w", err)
	}

	if config.Bridge.Addr == "" {
		return fmt.Errorf("bridge.addr is required")
	}
	if config.Bridge.LoginRatePerMinute < 0 {
		return fmt.Errorf("bridge.loginRatePerMinute must not be negative")
	}

	if config.Storage.Kind == StorageKindMemory && !envutil.IsDev() {
		log.LogWarnWithFields("config", "Memory storage selected outside development; sessions will not survive a restart", nil)
	}
	return nil
}

func validateProviderConfig(p *ProviderConfig) error {
	switch p.Kind {
	case ProviderKindMemory:
		return nil
	case ProviderKindCloud:
	default:
		return fmt.Errorf("unsupported kind: %s", p.Kind)
	}

	if p.BaseURL == "" {
		return fmt.Errorf("baseUrl is required")
	}
	if !strings.HasPrefix(p.BaseURL, "http://") && !strings.HasPrefix(p.BaseURL, "https://") {
		return fmt.Errorf("baseUrl must be an http(s) URL")
	}
	if p.ClientID == "" {
		return fmt.Errorf("clientId is required")
	}
	if p.EncryptionKey == "" {
		return fmt.Errorf("encryptionKey is required")
	}
	if len(p.EncryptionKey) < 32 {
		return fmt.Errorf("encryptionKey must be at least 32 characters")
	}
	return nil
}
