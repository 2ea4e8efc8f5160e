package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// UnmarshalJSON resolves env references and parses the watch interval
func (c *Config) UnmarshalJSON(data []byte) error {
	type rawConfig struct {
		Version            string          `json:"version"`
		EnvironmentID      json.RawMessage `json:"environmentId"`
		Region             json.RawMessage `json:"region"`
		SessionTTLMinutes  float64         `json:"sessionTtlMinutes"`
		WatchInterval      string          `json:"watchInterval"`
		ResourceCollection string          `json:"resourceCollection"`
		LogLevel           json.RawMessage `json:"logLevel"`
		LogFormat          string          `json:"logFormat"`
		Storage            StorageConfig   `json:"storage"`
		Provider           ProviderConfig  `json:"provider"`
		Bridge             BridgeConfig    `json:"bridge"`
	}

	var raw rawConfig
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	c.Version = raw.Version
	c.SessionTTLMinutes = raw.SessionTTLMinutes
	c.ResourceCollection = raw.ResourceCollection
	c.LogFormat = raw.LogFormat
	c.Storage = raw.Storage
	c.Provider = raw.Provider
	c.Bridge = raw.Bridge

	if raw.WatchInterval != "" {
		interval, err := time.ParseDuration(raw.WatchInterval)
		if err != nil {
			return fmt.Errorf("parsing watchInterval: %w", err)
		}
		c.WatchInterval = interval
	}

	if err := parseOptional(raw.EnvironmentID, "environmentId", &c.EnvironmentID); err != nil {
		return err
	}
	if err := parseOptional(raw.Region, "region", &c.Region); err != nil {
		return err
	}
	return parseOptional(raw.LogLevel, "logLevel", &c.LogLevel)
}

// UnmarshalJSON resolves the storage path, which may come from the environment
func (s *StorageConfig) UnmarshalJSON(data []byte) error {
	var raw struct {
		Kind StorageKind     `json:"kind"`
		Path json.RawMessage `json:"path"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	s.Kind = raw.Kind
	return parseOptional(raw.Path, "storage.path", &s.Path)
}

// UnmarshalJSON resolves provider settings and secrets
func (p *ProviderConfig) UnmarshalJSON(data []byte) error {
	var raw struct {
		Kind              ProviderKind    `json:"kind"`
		BaseURL           json.RawMessage `json:"baseUrl"`
		ClientID          json.RawMessage `json:"clientId"`
		ClientSecret      json.RawMessage `json:"clientSecret"`
		EncryptionKey     json.RawMessage `json:"encryptionKey"`
		FirestoreProject  json.RawMessage `json:"firestoreProject"`
		FirestoreDatabase string          `json:"firestoreDatabase"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	p.Kind = raw.Kind
	p.FirestoreDatabase = raw.FirestoreDatabase

	if err := parseOptional(raw.BaseURL, "provider.baseUrl", &p.BaseURL); err != nil {
		return err
	}
	if err := parseOptional(raw.ClientID, "provider.clientId", &p.ClientID); err != nil {
		return err
	}
	if err := parseOptional(raw.FirestoreProject, "provider.firestoreProject", &p.FirestoreProject); err != nil {
		return err
	}

	var secret string
	if err := parseOptional(raw.ClientSecret, "provider.clientSecret", &secret); err != nil {
		return err
	}
	p.ClientSecret = Secret(secret)

	var key string
	if err := parseOptional(raw.EncryptionKey, "provider.encryptionKey", &key); err != nil {
		return err
	}
	p.EncryptionKey = Secret(key)
	return nil
}

// UnmarshalJSON resolves the bridge token
func (b *BridgeConfig) UnmarshalJSON(data []byte) error {
	var raw struct {
		Addr               json.RawMessage `json:"addr"`
		Token              json.RawMessage `json:"token"`
		AllowedOrigins     []string        `json:"allowedOrigins"`
		LoginRatePerMinute int             `json:"loginRatePerMinute"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	b.AllowedOrigins = raw.AllowedOrigins
	b.LoginRatePerMinute = raw.LoginRatePerMinute

	if err := parseOptional(raw.Addr, "bridge.addr", &b.Addr); err != nil {
		return err
	}
	var token string
	if err := parseOptional(raw.Token, "bridge.token", &token); err != nil {
		return err
	}
	b.Token = Secret(token)
	return nil
}
