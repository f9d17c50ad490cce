package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	yaml "gopkg.in/yaml.v3"
)

// AppConfig holds everything the client core needs to talk to the contract
// bridge gateway and its local stores. Values come from the environment, with
// an optional YAML file (ONCHESS_CONFIG_FILE) supplying defaults that env vars
// override.
type AppConfig struct {
	GatewayBaseURL string `yaml:"gateway_base_url"`
	GatewayWSURL   string `yaml:"gateway_ws_url"`

	WalletAddress string `yaml:"wallet_address"`

	RedisURL    string `yaml:"redis_url"`
	DatabaseURL string `yaml:"database_url"`

	GatewayTimeoutSec int `yaml:"gateway_timeout_sec"`
	GatewayRetryMax   int `yaml:"gateway_retry_max"`

	ReconnectAttempts int `yaml:"reconnect_attempts"`

	MetadataRefreshSec int `yaml:"metadata_refresh_sec"`
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		GatewayTimeoutSec:  10,
		GatewayRetryMax:    3,
		ReconnectAttempts:  5,
		MetadataRefreshSec: 30,
	}

	if path := strings.TrimSpace(os.Getenv("ONCHESS_CONFIG_FILE")); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}

	if v := strings.TrimSpace(os.Getenv("GATEWAY_BASE_URL")); v != "" {
		cfg.GatewayBaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("GATEWAY_WS_URL")); v != "" {
		cfg.GatewayWSURL = v
	}
	if v := strings.TrimSpace(os.Getenv("WALLET_ADDRESS")); v != "" {
		cfg.WalletAddress = v
	}
	if v := strings.TrimSpace(os.Getenv("REDIS_URL")); v != "" {
		cfg.RedisURL = v
	}
	if v := strings.TrimSpace(os.Getenv("DATABASE_URL")); v != "" {
		cfg.DatabaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("GATEWAY_TIMEOUT")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.GatewayTimeoutSec = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("GATEWAY_RETRY_MAX")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.GatewayRetryMax = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("WS_RECONNECT_ATTEMPTS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.ReconnectAttempts = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("METADATA_REFRESH_SEC")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MetadataRefreshSec = n
		}
	}

	if cfg.GatewayBaseURL == "" {
		return nil, errors.New("GATEWAY_BASE_URL is required")
	}
	if cfg.GatewayWSURL == "" {
		return nil, errors.New("GATEWAY_WS_URL is required")
	}
	if cfg.WalletAddress == "" {
		return nil, errors.New("WALLET_ADDRESS is required")
	}

	return cfg, nil
}

func (c *AppConfig) applyFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}
