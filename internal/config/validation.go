package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/dgellow/resource-desk/internal/session"
)

// ValidationResult holds validation errors and warnings
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// ValidationError represents a validation issue
type ValidationError struct {
	Path    string
	Message string
}

// IsValid returns true if there are no errors
func (v *ValidationResult) IsValid() bool {
	return len(v.Errors) == 0
}

func (v *ValidationResult) addError(path, format string, args ...any) {
	v.Errors = append(v.Errors, ValidationError{Path: path, Message: fmt.Sprintf(format, args...)})
}

func (v *ValidationResult) addWarning(path, format string, args ...any) {
	v.Warnings = append(v.Warnings, ValidationError{Path: path, Message: fmt.Sprintf(format, args...)})
}

var bashStyleRegex = regexp.MustCompile(`\$\{?[A-Z_][A-Z0-9_]*\}?`)

// ValidateFile validates a config file structure without requiring env vars
func ValidateFile(path string) (*ValidationResult, error) {
	result := &ValidationResult{}

	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	data, err := readConfigFile(path)
	if err != nil {
		result.addError("", "%v", err)
		return result, nil
	}

	var rawConfig map[string]any
	if err := json.Unmarshal(data, &rawConfig); err != nil {
		result.addError("", "invalid JSON: %v", err)
		return result, nil
	}

	checkBashStyleSyntax(rawConfig, "", result)

	version, ok := rawConfig["version"].(string)
	if !ok {
		result.addError("version", "version field is required. Hint: Add \"version\": \"%s\"", SupportedVersion)
	} else if !strings.HasPrefix(version, SupportedVersion) {
		result.addError("version", "unsupported version '%s' - use '%s' or '%s.<minor>'", version, SupportedVersion, SupportedVersion)
	}

	validateTopLevel(rawConfig, result)
	validateStorageStructure(rawConfig, result)
	validateProviderStructure(rawConfig, result)
	validateBridgeStructure(rawConfig, result)

	return result, nil
}

func validateTopLevel(rawConfig map[string]any, result *ValidationResult) {
	switch id := rawConfig["environmentId"].(type) {
	case nil:
		result.addError("environmentId", "environmentId is required")
	case string:
		if strings.TrimSpace(id) == PlaceholderEnvironmentID {
			result.addError("environmentId", "environmentId is still the placeholder '%s'. Hint: copy the ID from the provider console", PlaceholderEnvironmentID)
		} else if !environmentIDPattern.MatchString(strings.TrimSpace(id)) {
			result.addError("environmentId", "environmentId may only contain letters, digits and hyphens")
		}
	case map[string]any:
		if _, ok := id["$env"]; !ok {
			result.addError("environmentId", "environmentId must be a string or {\"$env\": \"VAR\"} reference")
		}
	default:
		result.addError("environmentId", "environmentId must be a string, not %T", id)
	}

	if ttl, exists := rawConfig["sessionTtlMinutes"]; exists {
		n, ok := ttl.(float64)
		if !ok {
			result.addError("sessionTtlMinutes", "sessionTtlMinutes must be a number")
		} else if n <= 0 {
			result.addError("sessionTtlMinutes", "sessionTtlMinutes must be positive")
		} else if n > session.MaxTTLMinutes {
			result.addError("sessionTtlMinutes", "sessionTtlMinutes must be at most %d (one year)", session.MaxTTLMinutes)
		} else if n < 5 {
			result.addWarning("sessionTtlMinutes", "sessionTtlMinutes of %v will log users out very quickly", n)
		}
	}

	if interval, exists := rawConfig["watchInterval"]; exists {
		s, ok := interval.(string)
		if !ok {
			result.addError("watchInterval", "watchInterval must be a duration string such as \"15s\"")
		} else if d, err := time.ParseDuration(s); err != nil {
			result.addError("watchInterval", "invalid watchInterval: %v", err)
		} else if d < time.Second {
			result.addError("watchInterval", "watchInterval must be at least 1s")
		}
	}

	if level, ok := rawConfig["logLevel"].(string); ok {
		switch strings.ToUpper(level) {
		case "ERROR", "WARN", "WARNING", "INFO", "DEBUG", "TRACE":
		default:
			result.addError("logLevel", "invalid logLevel '%s' - use error, warn, info, debug or trace", level)
		}
	}
}

func validateStorageStructure(rawConfig map[string]any, result *ValidationResult) {
	storage, ok := rawConfig["storage"].(map[string]any)
	if !ok {
		return
	}
	switch kind, _ := storage["kind"].(string); StorageKind(kind) {
	case StorageKindSQLite, "":
	case StorageKindMemory:
		result.addWarning("storage.kind", "memory storage loses the session on restart")
	default:
		result.addError("storage.kind", "unsupported storage kind '%s' - use 'sqlite' or 'memory'", kind)
	}
}

func validateProviderStructure(rawConfig map[string]any, result *ValidationResult) {
	provider, ok := rawConfig["provider"].(map[string]any)
	if !ok {
		return
	}

	kind, _ := provider["kind"].(string)
	switch ProviderKind(kind) {
	case ProviderKindMemory:
		return
	case ProviderKindCloud, "":
	default:
		result.addError("provider.kind", "unsupported provider kind '%s' - use 'cloud' or 'memory'", kind)
		return
	}

	for _, field := range []string{"baseUrl", "clientId"} {
		if _, exists := provider[field]; !exists {
			result.addError("provider."+field, "%s is required for the cloud provider", field)
		}
	}
	if baseURL, ok := provider["baseUrl"].(string); ok && !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		result.addError("provider.baseUrl", "baseUrl must be an http(s) URL, got '%s'", baseURL)
	}

	if value, exists := provider["encryptionKey"]; !exists {
		result.addError("provider.encryptionKey", "encryptionKey is required for the cloud provider")
	} else if err := validateEnvVarReference(value, "encryptionKey", "provider.encryptionKey"); err != nil {
		result.Errors = append(result.Errors, *err)
	}
	if value, exists := provider["clientSecret"]; exists {
		if err := validateEnvVarReference(value, "clientSecret", "provider.clientSecret"); err != nil {
			result.Errors = append(result.Errors, *err)
		}
	}
}

func validateBridgeStructure(rawConfig map[string]any, result *ValidationResult) {
	bridge, ok := rawConfig["bridge"].(map[string]any)
	if !ok {
		result.addWarning("bridge", "no bridge section; the UI bridge listens on %s without a token", DefaultBridgeAddr)
		return
	}

	if value, exists := bridge["token"]; !exists {
		result.addWarning("bridge.token", "bridge.token is not set; any local process can drive the session")
	} else if err := validateEnvVarReference(value, "token", "bridge.token"); err != nil {
		result.Errors = append(result.Errors, *err)
	}

	if addr, ok := bridge["addr"].(string); ok && !strings.HasPrefix(addr, "127.0.0.1:") && !strings.HasPrefix(addr, "localhost:") && !strings.HasPrefix(addr, "[::1]:") {
		result.addWarning("bridge.addr", "bridge.addr '%s' is reachable from other hosts", addr)
	}

	if rate, exists := bridge["loginRatePerMinute"]; exists {
		if n, ok := rate.(float64); !ok || n < 0 {
			result.addError("bridge.loginRatePerMinute", "loginRatePerMinute must be a non-negative number")
		}
	}
}

// validateEnvVarReference validates that a field uses proper env var reference format
func validateEnvVarReference(value any, fieldName, path string) *ValidationError {
	switch v := value.(type) {
	case string:
		if match := bashStyleRegex.FindString(v); match != "" {
			return &ValidationError{
				Path:    path,
				Message: fmt.Sprintf("found bash-style syntax '%s' - use {\"$env\": \"%s\"} instead", v, strings.Trim(match, "${}")),
			}
		}
		return &ValidationError{
			Path:    path,
			Message: fmt.Sprintf("%s must use environment variable reference {\"$env\": \"YOUR_ENV_VAR\"} instead of plain text. Hint: This prevents secrets from being stored in config files", fieldName),
		}
	case map[string]any:
		if _, hasEnv := v["$env"]; !hasEnv {
			return &ValidationError{
				Path:    path,
				Message: fmt.Sprintf("%s must use {\"$env\": \"YOUR_ENV_VAR\"} format", fieldName),
			}
		}
		return nil
	default:
		return &ValidationError{
			Path:    path,
			Message: fmt.Sprintf("%s must be an environment variable reference {\"$env\": \"YOUR_ENV_VAR\"}, not %T", fieldName, value),
		}
	}
}

// checkBashStyleSyntax recursively checks for bash-style env var syntax
func checkBashStyleSyntax(value any, path string, result *ValidationResult) {
	switch v := value.(type) {
	case string:
		for _, match := range bashStyleRegex.FindAllString(v, -1) {
			varName := strings.Trim(match, "${}")
			result.addWarning(path, "found bash-style syntax '%s' - use {\"$env\": \"%s\"} instead. Hint: JSON syntax prevents accidental shell expansion in scripts/CI and ensures unambiguous parsing", match, varName)
		}
	case map[string]any:
		if _, hasEnv := v["$env"]; hasEnv {
			return
		}
		for key, val := range v {
			newPath := key
			if path != "" {
				newPath = path + "." + key
			}
			checkBashStyleSyntax(val, newPath, result)
		}
	case []any:
		for i, item := range v {
			checkBashStyleSyntax(item, fmt.Sprintf("%s[%d]", path, i), result)
		}
	}
}
