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

// EnvPrefix is prepended to every environment override, e.g.
// THREAT_SCORE_VIRUSTOTAL_API_KEY for virustotal.api_key
const EnvPrefix = "THREAT_SCORE"

// Config represents the application configuration
type Config struct {
	v *viper.Viper
}

// New creates a new configuration instance, searching the standard locations
func New() (*Config, error) {
	return NewFromFile("")
}

// NewFromFile creates a configuration from an explicit file. An empty path
// searches the standard locations instead.
func NewFromFile(path string) (*Config, error) {
	loadDotEnv()

	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/threat-scorer/")
		v.AddConfigPath("$HOME/.threat-scorer")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	setDefaults(v)
	bindEnv(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, using defaults
	}

	return &Config{v: v}, nil
}

// NewFromViper creates a new configuration instance from an existing Viper instance
func NewFromViper(v *viper.Viper) *Config {
	return &Config{v: v}
}

// NewEmptyViper creates a new Viper instance with defaults and environment overrides
func NewEmptyViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	bindEnv(v)
	return v
}

// loadDotEnv reads a .env file from the working directory when one exists.
// Variables already set in the environment win.
func loadDotEnv() {
	if _, err := os.Stat(".env"); err == nil {
		_ = godotenv.Load()
	}
}

func bindEnv(v *viper.Viper) {
	v.AutomaticEnv()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
}

// setDefaults sets the default configuration values
func setDefaults(v *viper.Viper) {
	// Content classifier
	v.SetDefault("classifier.provider", "none")

	// Server defaults
	v.SetDefault("server.filter_type", "postfix")
	v.SetDefault("server.listen_address", "0.0.0.0:10025")
	v.SetDefault("server.reject_malicious", false)
	v.SetDefault("server.max_message_bytes", 10*1024*1024)
	v.SetDefault("server.headers.score", "X-Threat-Score")
	v.SetDefault("server.headers.verdict", "X-Threat-Verdict")
	v.SetDefault("server.headers.reasons", "X-Threat-Reasons")
	v.SetDefault("postfix.address", "localhost")
	v.SetDefault("postfix.port", 10026)

	// HTTP API defaults
	v.SetDefault("api.enabled", true)
	v.SetDefault("api.listen_address", "127.0.0.1:8080")

	// Bedrock defaults
	v.SetDefault("bedrock.region", "us-east-1")
	v.SetDefault("bedrock.model_id", "anthropic.claude-v2")
	v.SetDefault("bedrock.max_tokens", 400)
	v.SetDefault("bedrock.temperature", 0.1)
	v.SetDefault("bedrock.top_p", 0.9)

	// Gemini defaults
	v.SetDefault("gemini.api_key", "")
	v.SetDefault("gemini.model_name", "gemini-1.5-flash")
	v.SetDefault("gemini.max_tokens", 400)
	v.SetDefault("gemini.temperature", 0.1)
	v.SetDefault("gemini.top_p", 0.9)

	// OpenAI defaults
	v.SetDefault("openai.api_key", "")
	v.SetDefault("openai.model_name", "gpt-4o-mini")
	v.SetDefault("openai.base_url", "")
	v.SetDefault("openai.max_tokens", 400)
	v.SetDefault("openai.temperature", 0.1)
	v.SetDefault("openai.top_p", 0.9)

	// Reputation providers
	v.SetDefault("reputation.timeout", "10s")
	v.SetDefault("virustotal.api_key", "")
	v.SetDefault("virustotal.base_url", "https://www.virustotal.com/api/v3")
	v.SetDefault("virustotal.requests_per_minute", 4)
	v.SetDefault("abuseipdb.api_key", "")
	v.SetDefault("abuseipdb.base_url", "https://api.abuseipdb.com/api/v2")
	v.SetDefault("abuseipdb.requests_per_minute", 30)
	v.SetDefault("abuseipdb.max_age_days", 90)
	v.SetDefault("ipqualityscore.api_key", "")
	v.SetDefault("ipqualityscore.base_url", "https://ipqualityscore.com/api/json")
	v.SetDefault("ipqualityscore.requests_per_minute", 30)
	v.SetDefault("ipqualityscore.whois_fallback", true)
	v.SetDefault("safebrowsing.api_key", "")
	v.SetDefault("safebrowsing.base_url", "https://safebrowsing.googleapis.com/v4")
	v.SetDefault("safebrowsing.requests_per_minute", 30)
	v.SetDefault("safebrowsing.client_id", "threat-scorer")

	// Store defaults
	v.SetDefault("store.type", "memory")
	v.SetDefault("store.history_limit", 20)
	v.SetDefault("store.sqlite_path", "/data/threat_scorer.db")
	v.SetDefault("store.mysql_dsn", "user:password@tcp(localhost:3306)/threat_scorer")
	v.SetDefault("store.redis_addr", "localhost:6379")
	v.SetDefault("store.redis_password", "")
	v.SetDefault("store.redis_db", 0)
	v.SetDefault("store.redis_prefix", "threat_scorer:")
	v.SetDefault("blacklist.seed", []string{})

	// CLI defaults
	v.SetDefault("cli.format", "text")
	v.SetDefault("cli.verbose", false)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// GetString gets a string value from the configuration
func (c *Config) GetString(key string) string {
	return c.v.GetString(key)
}

// GetInt gets an integer value from the configuration
func (c *Config) GetInt(key string) int {
	return c.v.GetInt(key)
}

// GetFloat64 gets a float64 value from the configuration
func (c *Config) GetFloat64(key string) float64 {
	return c.v.GetFloat64(key)
}

// GetBool gets a boolean value from the configuration
func (c *Config) GetBool(key string) bool {
	return c.v.GetBool(key)
}

// GetStringSlice gets a string slice value from the configuration
func (c *Config) GetStringSlice(key string) []string {
	return c.v.GetStringSlice(key)
}

// GetDuration gets a duration value from the configuration
func (c *Config) GetDuration(key string) (time.Duration, error) {
	return time.ParseDuration(c.GetString(key))
}

// GetViper returns the underlying Viper instance
func (c *Config) GetViper() *viper.Viper {
	return c.v
}
