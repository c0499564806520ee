// Package config provides application configuration with multi-source
// priority: environment variables over the config file over defaults.
// The config file is ~/.gen-bionic/config.yaml or ./config.yaml.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/viper"
)

var (
	// ErrInvalidProvider indicates the model provider is not supported.
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidAddr indicates the server listen address is empty.
	ErrInvalidAddr = errors.New("invalid listen address")
)

// Model provider identifiers.
const (
	ProviderOpenAI   = "openai"
	ProviderGoogleAI = "googleai"
)

// Config stores application configuration.
type Config struct {
	// Model configuration
	Provider  string `mapstructure:"provider"`
	ModelName string `mapstructure:"model_name"`

	// System prompt for the assistant.
	SystemPrompt string `mapstructure:"system_prompt"`

	// HTTP server
	Addr string `mapstructure:"addr"`

	// Model call rate limiting (requests per second; 0 disables).
	RateLimit float64 `mapstructure:"rate_limit"`
	RateBurst int     `mapstructure:"rate_burst"`

	// PostgreSQL
	PostgresHost     string `mapstructure:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password"` // never logged
	PostgresDBName   string `mapstructure:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode"`

	// API keys, environment only.
	OpenAIAPIKey string `mapstructure:"openai_api_key"` // never logged
	GeminiAPIKey string `mapstructure:"gemini_api_key"` // never logged

	// Logging
	LogLevel string `mapstructure:"log_level"`
	LogJSON  bool   `mapstructure:"log_json"`
}

// Load loads configuration with environment > file > defaults priority.
func Load() (*Config, error) {
	v := viper.New()

	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}
	configDir := filepath.Join(home, ".gen-bionic")

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	v.AddConfigPath(".")

	setDefaults(v)
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("provider", ProviderOpenAI)
	v.SetDefault("model_name", "gpt-4o")
	v.SetDefault("system_prompt", "You are a helpful assistant with access to tools for web search, academic papers, Wikipedia, image generation, slide decks, and research reports. Use a tool when it would answer the question better than you can alone.")
	v.SetDefault("addr", ":8080")
	v.SetDefault("rate_limit", 0.0)
	v.SetDefault("rate_burst", 1)

	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "bionic")
	v.SetDefault("postgres_password", "bionic_dev_password")
	v.SetDefault("postgres_db_name", "bionic")
	v.SetDefault("postgres_ssl_mode", "disable")

	v.SetDefault("log_level", "info")
	v.SetDefault("log_json", false)
}

// bindEnvVariables binds secrets and operational overrides explicitly.
func bindEnvVariables(v *viper.Viper) {
	_ = v.BindEnv("openai_api_key", "OPENAI_API_KEY")
	_ = v.BindEnv("gemini_api_key", "GEMINI_API_KEY")
	_ = v.BindEnv("postgres_password", "POSTGRES_PASSWORD")
	_ = v.BindEnv("addr", "BIONIC_ADDR")
	_ = v.BindEnv("provider", "BIONIC_PROVIDER")
	_ = v.BindEnv("model_name", "BIONIC_MODEL")
	_ = v.BindEnv("log_level", "BIONIC_LOG_LEVEL")
}

// Validate checks the configuration, failing fast on bad values.
func (c *Config) Validate() error {
	switch c.Provider {
	case ProviderOpenAI, ProviderGoogleAI:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidProvider, c.Provider)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if c.Addr == "" {
		return ErrInvalidAddr
	}
	return nil
}

// FullModelName returns the provider-qualified model identifier.
func (c *Config) FullModelName() string {
	return c.Provider + "/" + c.ModelName
}

// PostgresURL builds the postgres:// connection URL.
func (c *Config) PostgresURL() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.PostgresUser, c.PostgresPassword),
		Host:   c.PostgresHost + ":" + strconv.Itoa(c.PostgresPort),
		Path:   "/" + c.PostgresDBName,
	}
	q := url.Values{}
	q.Set("sslmode", c.PostgresSSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// parseDatabaseURL overrides the PostgreSQL fields from DATABASE_URL when
// it is set, the common deployment convention.
func (c *Config) parseDatabaseURL() error {
	raw := os.Getenv("DATABASE_URL")
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	c.PostgresHost = u.Hostname()
	if port := u.Port(); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid port %q", port)
		}
		c.PostgresPort = p
	}
	if u.User != nil {
		c.PostgresUser = u.User.Username()
		if pw, ok := u.User.Password(); ok {
			c.PostgresPassword = pw
		}
	}
	if len(u.Path) > 1 {
		c.PostgresDBName = u.Path[1:]
	}
	if mode := u.Query().Get("sslmode"); mode != "" {
		c.PostgresSSLMode = mode
	}
	return nil
}
