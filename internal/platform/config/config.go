package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

const (
	defaultPort         = "8080"
	defaultReadTimeout  = 15 * time.Second
	defaultWriteTimeout = 30 * time.Second
	defaultIdleTimeout  = 120 * time.Second
	defaultCurrency     = "ZAR"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server   ServerConfig
	Paystack PaystackConfig
	Email    EmailConfig
	CORS     CORSConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// PaystackConfig collects gateway credentials and settings.
type PaystackConfig struct {
	SecretKey string
	BaseURL   string
	Currency  string
}

// EmailConfig collects transactional email provider settings.
type EmailConfig struct {
	APIToken   string
	Sender     string
	SenderName string
	TemplateID string
	OpsMailbox string
	BaseURL    string
}

// CORSConfig restricts which browser origin may call the API.
type CORSConfig struct {
	AllowedOrigin string
}

// Lookup resolves a configuration key, mirroring os.LookupEnv.
type Lookup func(key string) (string, bool)

// Option customises configuration loading.
type Option func(*loader)

type loader struct {
	lookup Lookup
}

// WithLookup overrides the environment lookup, primarily for tests.
func WithLookup(lookup Lookup) Option {
	return func(l *loader) {
		if lookup != nil {
			l.lookup = lookup
		}
	}
}

// Load reads configuration from the environment and validates required
// secrets. Call godotenv.Load first when a .env file should seed the
// environment.
func Load(opts ...Option) (Config, error) {
	l := loader{lookup: os.LookupEnv}
	for _, opt := range opts {
		opt(&l)
	}

	cfg := Config{
		Server: ServerConfig{
			Port:         stringWithDefault(l.lookup, "PORT", defaultPort),
			ReadTimeout:  durationWithDefault(l.lookup, "SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: durationWithDefault(l.lookup, "SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  durationWithDefault(l.lookup, "SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		Paystack: PaystackConfig{
			SecretKey: stringWithDefault(l.lookup, "PAYSTACK_SECRET_KEY", ""),
			BaseURL:   stringWithDefault(l.lookup, "PAYSTACK_BASE_URL", ""),
			Currency:  stringWithDefault(l.lookup, "PAYSTACK_CURRENCY", defaultCurrency),
		},
		Email: EmailConfig{
			APIToken:   stringWithDefault(l.lookup, "EMAIL_API_TOKEN", ""),
			Sender:     stringWithDefault(l.lookup, "EMAIL_SENDER", ""),
			SenderName: stringWithDefault(l.lookup, "EMAIL_SENDER_NAME", ""),
			TemplateID: stringWithDefault(l.lookup, "EMAIL_RECEIPT_TEMPLATE_ID", ""),
			OpsMailbox: stringWithDefault(l.lookup, "EMAIL_OPS_MAILBOX", ""),
			BaseURL:    stringWithDefault(l.lookup, "EMAIL_BASE_URL", ""),
		},
		CORS: CORSConfig{
			AllowedOrigin: stringWithDefault(l.lookup, "ALLOWED_ORIGIN", ""),
		},
	}

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validate(cfg Config) error {
	required := []struct {
		key   string
		value string
	}{
		{"PAYSTACK_SECRET_KEY", cfg.Paystack.SecretKey},
		{"EMAIL_API_TOKEN", cfg.Email.APIToken},
		{"EMAIL_SENDER", cfg.Email.Sender},
		{"EMAIL_RECEIPT_TEMPLATE_ID", cfg.Email.TemplateID},
		{"ALLOWED_ORIGIN", cfg.CORS.AllowedOrigin},
	}

	missing := make([]string, 0, len(required))
	for _, entry := range required {
		if strings.TrimSpace(entry.value) == "" {
			missing = append(missing, entry.key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("config: missing required settings: %s", strings.Join(missing, ", "))
	}
	return nil
}

func stringWithDefault(lookup Lookup, key, fallback string) string {
	if value, ok := lookup(key); ok {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func durationWithDefault(lookup Lookup, key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok {
		if parsed, err := time.ParseDuration(strings.TrimSpace(value)); err == nil && parsed > 0 {
			return parsed
		}
	}
	return fallback
}
