// Package config loads application settings from a YAML file with
// environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variable overrides.
const (
	EnvConfigPath      = "CONFIG_PATH"
	EnvDataDir         = "DATA_DIR"
	EnvJWTSecret       = "JWT_SECRET"
	EnvJWTExpiry       = "JWT_EXPIRY"
	EnvOpenAIAPIKey    = "OPENAI_API_KEY"
	EnvStripeSecretKey = "STRIPE_SECRET_KEY"
)

// defaultJWTExpiry is used when the config omits or invalidates the session
// expiry.
const defaultJWTExpiry = 30 * 24 * time.Hour

// JWTConfig holds session token settings.
type JWTConfig struct {
	Secret string        `yaml:"secret"`
	Expiry time.Duration `yaml:"expiry"`
}

// OpenAIConfig holds the server-side provider credential and endpoint.
type OpenAIConfig struct {
	APIKey  string `yaml:"api-key"`
	BaseURL string `yaml:"base-url"`
}

// SMTPConfig holds outbound mail settings. An empty host disables SMTP and
// codes are logged instead.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

// StripeConfig holds checkout settings. An empty secret key disables
// payments.
type StripeConfig struct {
	SecretKey  string `yaml:"secret-key"`
	SuccessURL string `yaml:"success-url"`
	CancelURL  string `yaml:"cancel-url"`
}

// Config is the full application configuration.
type Config struct {
	Port        int          `yaml:"port"`
	DataDir     string       `yaml:"data-dir"`
	AllowOrigin string       `yaml:"allow-origin"`
	JWT         JWTConfig    `yaml:"jwt"`
	OpenAI      OpenAIConfig `yaml:"openai"`
	SMTP        SMTPConfig   `yaml:"smtp"`
	Stripe      StripeConfig `yaml:"stripe"`
}

// ResolveConfigPath normalizes the config path and applies defaults.
func ResolveConfigPath(p string) string {
	trimmed := strings.TrimSpace(p)
	if trimmed == "" {
		trimmed = "./config.yaml"
	}
	if abs, err := filepath.Abs(trimmed); err == nil {
		return abs
	}
	return trimmed
}

// Load reads the YAML config file and applies env overrides and defaults.
// A missing file is not an error; env and defaults still apply.
func Load(path string) (Config, error) {
	cfg := Config{
		Port:    8318,
		DataDir: "./data",
	}

	data, errRead := os.ReadFile(path)
	if errRead == nil {
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, errUnmarshal)
		}
	} else if !os.IsNotExist(errRead) {
		return Config{}, fmt.Errorf("config: read %s: %w", path, errRead)
	}

	if dir := strings.TrimSpace(os.Getenv(EnvDataDir)); dir != "" {
		cfg.DataDir = dir
	}
	if secret := strings.TrimSpace(os.Getenv(EnvJWTSecret)); secret != "" {
		cfg.JWT.Secret = secret
	}
	if expiryRaw := strings.TrimSpace(os.Getenv(EnvJWTExpiry)); expiryRaw != "" {
		if expiry, errParse := time.ParseDuration(expiryRaw); errParse == nil && expiry > 0 {
			cfg.JWT.Expiry = expiry
		}
	}
	if key := strings.TrimSpace(os.Getenv(EnvOpenAIAPIKey)); key != "" {
		cfg.OpenAI.APIKey = key
	}
	if key := strings.TrimSpace(os.Getenv(EnvStripeSecretKey)); key != "" {
		cfg.Stripe.SecretKey = key
	}

	if cfg.JWT.Expiry <= 0 {
		cfg.JWT.Expiry = defaultJWTExpiry
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		cfg.Port = 8318
	}
	return cfg, nil
}
