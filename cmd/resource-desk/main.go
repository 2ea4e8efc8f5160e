package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/BurntSushi/toml"
	"github.com/dgellow/resource-desk/internal"
	"github.com/dgellow/resource-desk/internal/config"
	"github.com/dgellow/resource-desk/internal/crypto"
	"github.com/dgellow/resource-desk/internal/log"
)

var BuildVersion = "dev"

func defaultConfig() map[string]any {
	return map[string]any{
		"version":           config.SupportedVersion,
		"environmentId":     config.PlaceholderEnvironmentID,
		"region":            config.DefaultRegion,
		"sessionTtlMinutes": 240,
		"watchInterval":     config.DefaultWatchInterval.String(),
		"logLevel":          "info",
		"storage": map[string]any{
			"kind": string(config.StorageKindSQLite),
		},
		"provider": map[string]any{
			"kind":          string(config.ProviderKindCloud),
			"baseUrl":       "https://api.example.com",
			"clientId":      "resource-desk",
			"clientSecret":  map[string]string{"$env": "RESOURCE_DESK_CLIENT_SECRET"},
			"encryptionKey": map[string]string{"$env": "RESOURCE_DESK_ENCRYPTION_KEY"},
		},
		"bridge": map[string]any{
			"addr":               config.DefaultBridgeAddr,
			"token":              map[string]string{"$env": "RESOURCE_DESK_BRIDGE_TOKEN"},
			"allowedOrigins":     []string{"http://localhost:5173"},
			"loginRatePerMinute": config.DefaultLoginRatePerMinute,
		},
	}
}

// generateDefaultConfig writes a starter config, as TOML when path ends in .toml
func generateDefaultConfig(path string) error {
	var data []byte
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		var b strings.Builder
		if err := toml.NewEncoder(&b).Encode(defaultConfig()); err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
		data = []byte(b.String())
	} else {
		var err error
		data, err = json.MarshalIndent(defaultConfig(), "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func validateConfig(path string) error {
	result, err := config.ValidateFile(path)
	if err != nil {
		return fmt.Errorf("error during validation: %w", err)
	}

	fmt.Printf("Validating: %s\n", path)

	printIssues := func(title string, issues []config.ValidationError) {
		if len(issues) == 0 {
			return
		}
		fmt.Printf("\n%s (%d):\n", title, len(issues))
		for _, issue := range issues {
			if issue.Path != "" {
				fmt.Printf("  - %s: %s\n", issue.Path, issue.Message)
			} else {
				fmt.Printf("  - %s\n", issue.Message)
			}
		}
	}
	printIssues("Errors", result.Errors)
	printIssues("Warnings", result.Warnings)

	fmt.Println()
	switch {
	case len(result.Errors) == 0 && len(result.Warnings) == 0:
		fmt.Println("Result: PASS")
	case len(result.Errors) == 0:
		fmt.Println("Result: FAIL (warnings present)")
	default:
		fmt.Println("Result: FAIL")
	}

	if len(result.Errors) > 0 || len(result.Warnings) > 0 {
		return fmt.Errorf("validation failed: %d error(s), %d warning(s)", len(result.Errors), len(result.Warnings))
	}
	return nil
}

func main() {
	conf := flag.String("config", "", "path to config file, JSON or TOML (required)")
	version := flag.Bool("version", false, "print version and exit")
	help := flag.Bool("help", false, "print help and exit")
	configInit := flag.String("config-init", "", "generate default config file at specified path")
	validate := flag.Bool("validate", false, "validate config file and exit")
	flag.Parse()
	if *help {
		flag.Usage()
		return
	}
	if *version {
		fmt.Println(BuildVersion)
		return
	}
	if *configInit != "" {
		if err := generateDefaultConfig(*configInit); err != nil {
			log.LogError("Failed to generate config: %v", err)
			os.Exit(1)
		}
		fmt.Printf("Generated default config at: %s\n", *configInit)
		token, err := crypto.GenerateSecureToken()
		if err != nil {
			log.LogError("Failed to generate bridge token: %v", err)
			os.Exit(1)
		}
		fmt.Printf("Bridge token (share with the UI):\n  export RESOURCE_DESK_BRIDGE_TOKEN=%s\n", token)
		return
	}

	if *validate {
		if *conf == "" {
			fmt.Fprintf(os.Stderr, "Error: -config flag is required for validation\n")
			os.Exit(1)
		}
		if err := validateConfig(*conf); err != nil {
			os.Exit(1)
		}
		return
	}

	if *conf == "" {
		fmt.Fprintf(os.Stderr, "Error: -config flag is required\n")
		fmt.Fprintf(os.Stderr, "Run with -help for usage information\n")
		os.Exit(1)
	}

	cfg, err := config.Load(*conf)
	if err != nil {
		log.LogError("Failed to load config: %v", err)
		os.Exit(1)
	}
	if err := log.Configure(cfg.LogLevel, cfg.LogFormat); err != nil {
		log.LogError("Invalid logging config: %v", err)
		os.Exit(1)
	}

	log.LogInfoWithFields("main", "Starting resource-desk", map[string]any{
		"version": BuildVersion,
		"config":  *conf,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	desk, err := internal.New(ctx, cfg, *conf)
	if err != nil {
		log.LogError("Failed to start resource-desk: %v", err)
		os.Exit(1)
	}

	if err := desk.Run(ctx); err != nil {
		log.LogError("Server stopped with error: %v", err)
		os.Exit(1)
	}
}
