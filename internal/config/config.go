// Package config loads process-wide configuration once at startup.
// The resulting struct is passed by reference to every component that
// needs it and is read-only after Load returns.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// TwilioConfig holds credentials for the outbound call collaborator.
// All four fields must be set for call placement to be enabled.
type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	From       string
	To         string
}

// Enabled reports whether call placement is configured.
func (t TwilioConfig) Enabled() bool {
	return t.AccountSID != "" && t.AuthToken != "" && t.From != "" && t.To != ""
}

// Config is the process-wide configuration for the alertx server.
type Config struct {
	GeminiAPIKey string
	Model        string

	ListenPort int

	OverpassURL     string
	OverpassTimeout time.Duration

	Twilio TwilioConfig

	AllowedOrigins []string
}

const (
	// DefaultModel is the Gemini model used when none is configured.
	DefaultModel = "gemini-2.5-flash"

	// DefaultOverpassURL is the public Overpass API interpreter endpoint.
	DefaultOverpassURL = "https://overpass-api.de/api/interpreter"

	defaultListenPort      = 8080
	defaultOverpassTimeout = 20 * time.Second
)

// Load reads configuration from the environment (ALERTX_* plus the
// conventional GEMINI_API_KEY and TWILIO_* names) and an optional
// alertx.yaml in the working directory.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("model", DefaultModel)
	v.SetDefault("port", defaultListenPort)
	v.SetDefault("overpass.url", DefaultOverpassURL)
	v.SetDefault("overpass.timeout", defaultOverpassTimeout)
	v.SetDefault("origins", []string{"http://localhost:5173", "http://127.0.0.1:5173"})

	v.SetEnvPrefix("ALERTX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Credentials keep their conventional names rather than the ALERTX prefix.
	_ = v.BindEnv("gemini_api_key", "GEMINI_API_KEY")
	_ = v.BindEnv("twilio.account_sid", "TWILIO_ACCOUNT_SID")
	_ = v.BindEnv("twilio.auth_token", "TWILIO_AUTH_TOKEN")
	_ = v.BindEnv("twilio.from", "TWILIO_FROM_NUMBER")
	_ = v.BindEnv("twilio.to", "TWILIO_TO_NUMBER")

	v.SetConfigName("alertx")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := &Config{
		GeminiAPIKey: v.GetString("gemini_api_key"),
		Model:        v.GetString("model"),
		ListenPort:   v.GetInt("port"),

		OverpassURL:     v.GetString("overpass.url"),
		OverpassTimeout: v.GetDuration("overpass.timeout"),

		Twilio: TwilioConfig{
			AccountSID: v.GetString("twilio.account_sid"),
			AuthToken:  v.GetString("twilio.auth_token"),
			From:       v.GetString("twilio.from"),
			To:         v.GetString("twilio.to"),
		},

		AllowedOrigins: v.GetStringSlice("origins"),
	}

	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is not set")
	}

	return cfg, nil
}
