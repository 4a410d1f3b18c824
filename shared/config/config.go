package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	YouTube    YouTubeConfig    `yaml:"youtube"`
	Responder  ResponderConfig  `yaml:"responder"`
	AI         AIConfig         `yaml:"ai"`
	Email      EmailConfig      `yaml:"email"`
	Storage    StorageConfig    `yaml:"storage"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Schedule   string           `yaml:"schedule"`
}

type YouTubeConfig struct {
	ClientSecretsFile string   `yaml:"client_secrets_file" env:"GOOGLE_CLIENT_SECRETS_FILE"`
	TokenFile         string   `yaml:"token_file"`
	APIName           string   `yaml:"api_name"`
	APIVersion        string   `yaml:"api_version"`
	Scopes            []string `yaml:"scopes"`
	// AuthFlow is "local" (loopback redirect) or "device".
	AuthFlow string `yaml:"auth_flow"`
	// VideoID switches the responder to single-video mode.
	VideoID string `yaml:"video_id" env:"YOUTUBE_VIDEO_ID"`
}

type ResponderConfig struct {
	Tone                string  `yaml:"tone"`
	MaxComments         int     `yaml:"max_comments"`
	MaxVideos           int     `yaml:"max_videos"`
	RequestDelaySeconds float64 `yaml:"request_delay"`
	MaxRetries          int     `yaml:"max_retries"`
}

// RequestDelay is the pause inserted between remote calls.
func (r ResponderConfig) RequestDelay() time.Duration {
	return time.Duration(r.RequestDelaySeconds * float64(time.Second))
}

type AIConfig struct {
	GeminiAPIKey string `yaml:"gemini_api_key" env:"GEMINI_API_KEY"`
	Model        string `yaml:"model"`
}

type EmailConfig struct {
	SMTPServer string `yaml:"smtp_server"`
	SMTPPort   int    `yaml:"smtp_port"`
	Username   string `yaml:"username" env:"EMAIL_USERNAME"`
	Password   string `yaml:"password" env:"EMAIL_PASSWORD"`
	FromEmail  string `yaml:"from_email"`
	ToEmail    string `yaml:"to_email"`
}

// Enabled reports whether run digests should be emailed.
func (e EmailConfig) Enabled() bool {
	return e.SMTPServer != ""
}

type StorageConfig struct {
	DataDir       string `yaml:"data_dir"`
	RetentionDays int    `yaml:"retention_days"`
}

type MonitoringConfig struct {
	HealthPort int `yaml:"health_port"`
}

const (
	ScopeForceSSL = "https://www.googleapis.com/auth/youtube.force-ssl"
	ScopeReadOnly = "https://www.googleapis.com/auth/youtube.readonly"
)

// Default returns the configuration used when no file or environment
// overrides are present.
func Default() *Config {
	cfg := newConfig()
	cfg.applyDefaults()
	return cfg
}

// newConfig seeds the numeric settings before the file is decoded, so an
// explicit zero in YAML (no request delay, an empty budget) is kept.
func newConfig() *Config {
	return &Config{
		Responder: ResponderConfig{
			MaxComments:         30,
			MaxVideos:           10,
			RequestDelaySeconds: 1.5,
			MaxRetries:          3,
		},
		Email:      EmailConfig{SMTPPort: 587},
		Storage:    StorageConfig{RetentionDays: 30},
		Monitoring: MonitoringConfig{HealthPort: 8080},
	}
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	configFile, explicit := os.LookupEnv("CONFIG_FILE")
	if configFile == "" {
		configFile = "config.yaml"
	}

	cfg := newConfig()
	data, err := os.ReadFile(configFile)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", configFile, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
		// No config file; defaults and environment only
	default:
		return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) applyEnv() {
	if c.YouTube.ClientSecretsFile == "" {
		c.YouTube.ClientSecretsFile = os.Getenv("GOOGLE_CLIENT_SECRETS_FILE")
	}
	if c.YouTube.VideoID == "" {
		c.YouTube.VideoID = os.Getenv("YOUTUBE_VIDEO_ID")
	}
	if c.AI.GeminiAPIKey == "" {
		c.AI.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	}
	if c.Email.Username == "" {
		c.Email.Username = os.Getenv("EMAIL_USERNAME")
	}
	if c.Email.Password == "" {
		c.Email.Password = os.Getenv("EMAIL_PASSWORD")
	}
}

func (c *Config) applyDefaults() {
	if c.YouTube.ClientSecretsFile == "" {
		c.YouTube.ClientSecretsFile = "client_secrets.json"
	}
	if c.YouTube.TokenFile == "" {
		c.YouTube.TokenFile = "youtube_token.json"
	}
	if c.YouTube.APIName == "" {
		c.YouTube.APIName = "youtube"
	}
	if c.YouTube.APIVersion == "" {
		c.YouTube.APIVersion = "v3"
	}
	if len(c.YouTube.Scopes) == 0 {
		c.YouTube.Scopes = []string{ScopeForceSSL, ScopeReadOnly}
	}
	if c.YouTube.AuthFlow == "" {
		c.YouTube.AuthFlow = "local"
	}

	if c.Responder.Tone == "" {
		c.Responder.Tone = "friendly and professional"
	}

	if c.AI.Model == "" {
		c.AI.Model = "gemini-2.5-flash"
	}
	if c.Storage.DataDir == "" {
		c.Storage.DataDir = "data"
	}
	if c.Schedule == "" {
		c.Schedule = "0 0 9 * * *" // Daily at 9 AM
	}
}

func (c *Config) validate() error {
	if c.YouTube.APIName != "youtube" || c.YouTube.APIVersion != "v3" {
		return fmt.Errorf("unsupported API %s/%s (only youtube/v3 is available)", c.YouTube.APIName, c.YouTube.APIVersion)
	}
	if c.YouTube.AuthFlow != "local" && c.YouTube.AuthFlow != "device" {
		return fmt.Errorf("youtube.auth_flow must be \"local\" or \"device\", got %q", c.YouTube.AuthFlow)
	}
	if c.AI.GeminiAPIKey == "" {
		return fmt.Errorf("Gemini API key is required (set GEMINI_API_KEY or ai.gemini_api_key)")
	}
	if c.Responder.MaxComments < 0 {
		return fmt.Errorf("responder.max_comments cannot be negative")
	}
	if c.Responder.MaxVideos < 0 {
		return fmt.Errorf("responder.max_videos cannot be negative")
	}
	if c.Responder.RequestDelaySeconds < 0 {
		return fmt.Errorf("responder.request_delay cannot be negative")
	}
	if c.Responder.MaxRetries < 1 {
		return fmt.Errorf("responder.max_retries must be at least 1")
	}
	if c.Email.Enabled() {
		if c.Email.Username == "" {
			return fmt.Errorf("Email username is required (set EMAIL_USERNAME or email.username)")
		}
		if c.Email.Password == "" {
			return fmt.Errorf("Email password is required (set EMAIL_PASSWORD or email.password)")
		}
		if c.Email.ToEmail == "" {
			return fmt.Errorf("email.to_email is required when email.smtp_server is set")
		}
	}
	return nil
}
