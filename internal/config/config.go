// Package config loads application configuration from environment
// variables and applies guardrails to the loaded values.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// AppConfig is the main application configuration struct. Every value is
// bound to an environment variable; secrets are never read from files.
type AppConfig struct {
	// Port is the HTTP listen port for the webhook gateway.
	Port int `env:"PORT" envDefault:"5004"`

	// DatabaseURL is the Postgres connection string for the processing ledger.
	// Optional: without it the service runs but records nothing.
	DatabaseURL string `env:"DATABASE_URL"`

	// GeminiAPIKey authenticates calls to the Gemini API. Required.
	GeminiAPIKey string `env:"GEMINI_API_KEY"`

	// WebhookAPIKey is the shared secret callers must present on
	// authenticated endpoints. Required.
	WebhookAPIKey string `env:"WEBHOOK_API_KEY"`

	// MaxQueueSize bounds the in-memory job queue. Webhooks beyond this
	// depth are rejected with 503.
	MaxQueueSize int `env:"MAX_QUEUE_SIZE" envDefault:"100"`

	// Workers is the number of concurrent pipeline workers.
	Workers int `env:"MAX_WORKERS" envDefault:"4"`

	// Airtable result-store configuration
	Airtable AirtableConfig `envPrefix:"AIRTABLE_"`

	// Forum posting configuration
	ForumPost ForumPostConfig `envPrefix:"FORUM_POST_"`

	// Teams notification relay configuration
	Teams TeamsConfig `envPrefix:"TEAMS_"`

	// Payload lookup service configuration
	Lookup LookupConfig `envPrefix:"LOOKUP_"`
}

// AirtableConfig holds the Airtable result store settings. The store is
// disabled when the API key is empty.
type AirtableConfig struct {
	APIKey       string `env:"API_KEY"`
	BaseID       string `env:"BASE_ID"`
	Table        string `env:"TABLE_NAME" envDefault:"Forum Posts"`
	OutputsTable string `env:"OUTPUTS_TABLE_NAME" envDefault:"Tool Outputs"`
}

// Enabled reports whether results should be written to Airtable.
func (a AirtableConfig) Enabled() bool {
	return a.APIKey != "" && a.BaseID != ""
}

// ForumPostConfig holds the forum reply endpoint settings. Posting is
// disabled when the base URL is empty.
type ForumPostConfig struct {
	BaseURL string `env:"URL"`
	APIKey  string `env:"API_KEY"`
}

// Enabled reports whether completed responses should be posted back.
func (f ForumPostConfig) Enabled() bool {
	return f.BaseURL != ""
}

// TeamsConfig holds the notification relay settings. Notifications are
// disabled when the webhook URL is empty.
type TeamsConfig struct {
	WebhookURL string `env:"WEBHOOK_URL"`
	ChatID     string `env:"CHAT_ID"`
	Email      string `env:"EMAIL"`
}

// Enabled reports whether per-job notifications should be sent.
func (t TeamsConfig) Enabled() bool {
	return t.WebhookURL != ""
}

// LookupConfig holds the payload lookup service settings, used when a
// webhook carries only a correlation id.
type LookupConfig struct {
	BaseURL string `env:"URL"`
	APIKey  string `env:"API_KEY"`
}

// Enabled reports whether id-only webhooks can be resolved.
func (l LookupConfig) Enabled() bool {
	return l.BaseURL != ""
}

// Load parses the environment into an AppConfig and applies guardrails.
func Load() (*AppConfig, error) {
	var cfg AppConfig
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration from environment: %w", err)
	}
	cfg.Sanitize()
	return &cfg, nil
}

// Sanitize applies guardrails to configuration values loaded from env.
func (c *AppConfig) Sanitize() {
	if c.Port < 1 || c.Port > 65535 {
		c.Port = 5004
	}
	if c.MaxQueueSize < 1 {
		c.MaxQueueSize = 100
	}
	if c.Workers < 1 {
		c.Workers = 1
	}
	if c.Workers > 64 {
		c.Workers = 64
	}
}

// Validate checks that the values required to process jobs are present.
func (c *AppConfig) Validate() error {
	if c.GeminiAPIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is required")
	}
	if c.WebhookAPIKey == "" {
		return fmt.Errorf("WEBHOOK_API_KEY is required")
	}
	return nil
}
