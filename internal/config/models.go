package config

import (
	"fmt"
	"time"
)

// ClassifierConfig selects the content-intent backend
type ClassifierConfig struct {
	Provider string
}

// BedrockConfig represents the configuration for Amazon Bedrock
type BedrockConfig struct {
	Region      string
	ModelID     string
	MaxTokens   int
	Temperature float32
	TopP        float32
}

// GeminiConfig represents the configuration for Google Gemini
type GeminiConfig struct {
	APIKey      string
	ModelName   string
	MaxTokens   int
	Temperature float32
	TopP        float32
}

// OpenAIConfig represents the configuration for OpenAI
type OpenAIConfig struct {
	APIKey      string
	ModelName   string
	BaseURL     string
	MaxTokens   int
	Temperature float32
	TopP        float32
}

// ProviderConfig holds the settings shared by every reputation provider
type ProviderConfig struct {
	BaseURL           string
	RequestsPerMinute int
}

// ReputationConfig represents the configuration of the reputation providers
type ReputationConfig struct {
	Timeout          time.Duration
	VirusTotal       ProviderConfig
	AbuseIPDB        ProviderConfig
	AbuseMaxAgeDays  int
	IPQualityScore   ProviderConfig
	WhoisFallback    bool
	SafeBrowsing     ProviderConfig
	SafeBrowsingName string
}

// StoreConfig represents the configuration of the blacklist/settings/history store
type StoreConfig struct {
	Type          string
	HistoryLimit  int
	SQLitePath    string
	MySQLDSN      string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
}

// ServerConfig represents the configuration of the mail filter
type ServerConfig struct {
	FilterType      string
	ListenAddress   string
	RejectMalicious bool
	MaxMessageBytes int64
	ScoreHeader     string
	VerdictHeader   string
	ReasonsHeader   string
	PostfixAddress  string
	PostfixPort     int
}

// APIConfig represents the configuration of the HTTP API
type APIConfig struct {
	Enabled       bool
	ListenAddress string
}

// GetClassifier returns the classifier configuration
func (c *Config) GetClassifier() ClassifierConfig {
	return ClassifierConfig{
		Provider: c.GetString("classifier.provider"),
	}
}

// GetBedrock returns the Bedrock configuration
func (c *Config) GetBedrock() BedrockConfig {
	return BedrockConfig{
		Region:      c.GetString("bedrock.region"),
		ModelID:     c.GetString("bedrock.model_id"),
		MaxTokens:   c.GetInt("bedrock.max_tokens"),
		Temperature: float32(c.GetFloat64("bedrock.temperature")),
		TopP:        float32(c.GetFloat64("bedrock.top_p")),
	}
}

// GetGemini returns the Gemini configuration
func (c *Config) GetGemini() GeminiConfig {
	return GeminiConfig{
		APIKey:      c.GetString("gemini.api_key"),
		ModelName:   c.GetString("gemini.model_name"),
		MaxTokens:   c.GetInt("gemini.max_tokens"),
		Temperature: float32(c.GetFloat64("gemini.temperature")),
		TopP:        float32(c.GetFloat64("gemini.top_p")),
	}
}

// GetOpenAI returns the OpenAI configuration
func (c *Config) GetOpenAI() OpenAIConfig {
	return OpenAIConfig{
		APIKey:      c.GetString("openai.api_key"),
		ModelName:   c.GetString("openai.model_name"),
		BaseURL:     c.GetString("openai.base_url"),
		MaxTokens:   c.GetInt("openai.max_tokens"),
		Temperature: float32(c.GetFloat64("openai.temperature")),
		TopP:        float32(c.GetFloat64("openai.top_p")),
	}
}

// GetReputation returns the reputation provider configuration
func (c *Config) GetReputation() (ReputationConfig, error) {
	timeout, err := c.GetDuration("reputation.timeout")
	if err != nil {
		return ReputationConfig{}, fmt.Errorf("invalid reputation.timeout: %w", err)
	}
	return ReputationConfig{
		Timeout:          timeout,
		VirusTotal:       c.provider("virustotal"),
		AbuseIPDB:        c.provider("abuseipdb"),
		AbuseMaxAgeDays:  c.GetInt("abuseipdb.max_age_days"),
		IPQualityScore:   c.provider("ipqualityscore"),
		WhoisFallback:    c.GetBool("ipqualityscore.whois_fallback"),
		SafeBrowsing:     c.provider("safebrowsing"),
		SafeBrowsingName: c.GetString("safebrowsing.client_id"),
	}, nil
}

func (c *Config) provider(name string) ProviderConfig {
	return ProviderConfig{
		BaseURL:           c.GetString(name + ".base_url"),
		RequestsPerMinute: c.GetInt(name + ".requests_per_minute"),
	}
}

// GetStore returns the store configuration
func (c *Config) GetStore() StoreConfig {
	return StoreConfig{
		Type:          c.GetString("store.type"),
		HistoryLimit:  c.GetInt("store.history_limit"),
		SQLitePath:    c.GetString("store.sqlite_path"),
		MySQLDSN:      c.GetString("store.mysql_dsn"),
		RedisAddr:     c.GetString("store.redis_addr"),
		RedisPassword: c.GetString("store.redis_password"),
		RedisDB:       c.GetInt("store.redis_db"),
		RedisPrefix:   c.GetString("store.redis_prefix"),
	}
}

// GetServer returns the mail filter configuration
func (c *Config) GetServer() ServerConfig {
	return ServerConfig{
		FilterType:      c.GetString("server.filter_type"),
		ListenAddress:   c.GetString("server.listen_address"),
		RejectMalicious: c.GetBool("server.reject_malicious"),
		MaxMessageBytes: c.v.GetInt64("server.max_message_bytes"),
		ScoreHeader:     c.GetString("server.headers.score"),
		VerdictHeader:   c.GetString("server.headers.verdict"),
		ReasonsHeader:   c.GetString("server.headers.reasons"),
		PostfixAddress:  c.GetString("postfix.address"),
		PostfixPort:     c.GetInt("postfix.port"),
	}
}

// GetAPI returns the HTTP API configuration
func (c *Config) GetAPI() APIConfig {
	return APIConfig{
		Enabled:       c.GetBool("api.enabled"),
		ListenAddress: c.GetString("api.listen_address"),
	}
}

// GetSignalOverrides returns the signals.<key> booleans from the configuration
func (c *Config) GetSignalOverrides() map[string]bool {
	overrides := make(map[string]bool)
	for key := range c.v.GetStringMap("signals") {
		overrides[key] = c.v.GetBool("signals." + key)
	}
	return overrides
}

// GetBlacklistSeed returns the entries added to the blacklist at startup
func (c *Config) GetBlacklistSeed() []string {
	return c.GetStringSlice("blacklist.seed")
}
