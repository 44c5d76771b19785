package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is built once at startup and handed to every component constructor.
type Config struct {
	HTTPAddr string

	Stream   StreamConfig
	HubSpot  HubSpotConfig
	Support  SupportConfig
	AMQP     AMQPConfig
	Telegram TelegramConfig

	// LedgerDSN selects the processed-message ledger: postgres://..., sqlite://path or empty to disable.
	LedgerDSN string

	RegistrationRate  float64 // requests per second per client IP
	RegistrationBurst int

	// TrustedProxies may set X-Forwarded-For. Empty means the TCP peer is the client.
	TrustedProxies []string

	LogLevel  string
	LogFormat string
}

type StreamConfig struct {
	APIKey        string
	APISecret     string
	BaseURL       string
	TokenTTL      time.Duration // 0 = tokens without exp claim
	VerifyWebhook bool
}

type HubSpotConfig struct {
	APIKey             string
	BaseURL            string
	TranscriptProperty string
}

type SupportConfig struct {
	AdminID   string
	AdminName string
}

type AMQPConfig struct {
	URL      string
	Exchange string
}

type TelegramConfig struct {
	BotToken    string
	AgentChatID int64
}

// SetDefaults registers every key with its default so AutomaticEnv can resolve it.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("http_addr", ":8080")
	v.SetDefault("stream_api_key", "")
	v.SetDefault("stream_api_secret", "")
	v.SetDefault("stream_base_url", "https://chat.stream-io-api.com")
	v.SetDefault("stream_token_ttl", "0s")
	v.SetDefault("stream_verify_webhook", true)
	v.SetDefault("hubspot_api_key", "")
	v.SetDefault("hubspot_base_url", "https://api.hubapi.com")
	v.SetDefault("transcript_property", "chat_transcript")
	v.SetDefault("support_admin_id", "admin-id")
	v.SetDefault("support_admin_name", "Support Admin")
	v.SetDefault("ledger_dsn", "")
	v.SetDefault("amqp_url", "")
	v.SetDefault("amqp_exchange", "support")
	v.SetDefault("telegram_bot_token", "")
	v.SetDefault("telegram_agent_chat_id", 0)
	v.SetDefault("registration_rate", 1.0)
	v.SetDefault("registration_burst", 5)
	v.SetDefault("trusted_proxies", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
}

// Load reads envFile (if present) into the process environment, then
// resolves every key through v. A missing envFile is not an error.
func Load(v *viper.Viper, envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	SetDefaults(v)
	v.AutomaticEnv()

	cfg := &Config{
		HTTPAddr: v.GetString("http_addr"),
		Stream: StreamConfig{
			APIKey:        strings.TrimSpace(v.GetString("stream_api_key")),
			APISecret:     strings.TrimSpace(v.GetString("stream_api_secret")),
			BaseURL:       v.GetString("stream_base_url"),
			TokenTTL:      v.GetDuration("stream_token_ttl"),
			VerifyWebhook: v.GetBool("stream_verify_webhook"),
		},
		HubSpot: HubSpotConfig{
			APIKey:             strings.TrimSpace(v.GetString("hubspot_api_key")),
			BaseURL:            v.GetString("hubspot_base_url"),
			TranscriptProperty: v.GetString("transcript_property"),
		},
		Support: SupportConfig{
			AdminID:   v.GetString("support_admin_id"),
			AdminName: v.GetString("support_admin_name"),
		},
		AMQP: AMQPConfig{
			URL:      v.GetString("amqp_url"),
			Exchange: v.GetString("amqp_exchange"),
		},
		Telegram: TelegramConfig{
			BotToken:    v.GetString("telegram_bot_token"),
			AgentChatID: v.GetInt64("telegram_agent_chat_id"),
		},
		LedgerDSN:         v.GetString("ledger_dsn"),
		RegistrationRate:  v.GetFloat64("registration_rate"),
		RegistrationBurst: v.GetInt("registration_burst"),
		TrustedProxies:    splitList(v.GetString("trusted_proxies")),
		LogLevel:          v.GetString("log_level"),
		LogFormat:         v.GetString("log_format"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate fails when a collaborator credential is missing.
func (c *Config) Validate() error {
	var missing []string
	if c.Stream.APIKey == "" {
		missing = append(missing, "STREAM_API_KEY")
	}
	if c.Stream.APISecret == "" {
		missing = append(missing, "STREAM_API_SECRET")
	}
	if c.HubSpot.APIKey == "" {
		missing = append(missing, "HUBSPOT_API_KEY")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	if c.HubSpot.TranscriptProperty == "" {
		return fmt.Errorf("transcript_property must not be empty")
	}
	if c.Support.AdminID == "" {
		return fmt.Errorf("support_admin_id must not be empty")
	}
	if c.RegistrationRate <= 0 || c.RegistrationBurst <= 0 {
		return fmt.Errorf("registration rate and burst must be positive")
	}
	return nil
}

// splitList turns "a, b,,c" into [a b c]; an empty string yields nil.
func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
