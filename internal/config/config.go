package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"docmind/internal/models"
)

// Provider adapter types.
const (
	ProviderTypeOpenAI    = "openai"
	ProviderTypeReasoning = "reasoning"
	ProviderTypeClaude    = "claude"
	ProviderTypeOllama    = "ollama"
)

// Search provider types.
const (
	SearchTypeSearXNG = "searxng"
	SearchTypeBrave   = "brave"
)

// Store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
	DriverMemory   = "memory"
)

const (
	defaultPort          = 8080
	defaultLogLevel      = "info"
	defaultResetSchedule = "0 0 1 * *"
	defaultCacheTTL      = 5 * time.Minute
	defaultCacheSize     = 100
	defaultMaxTokens     = 4096
	minThinkingBudget    = 1024
)

// Config represents the application configuration parsed from YAML.
type Config struct {
	Server    ServerConfig     `yaml:"server"`
	Log       LogConfig        `yaml:"log"`
	Providers []ProviderConfig `yaml:"providers"`
	Quota     QuotaConfig      `yaml:"quota"`
	Store     StoreConfig      `yaml:"store"`
	Auth      AuthConfig       `yaml:"auth"`
	Search    SearchConfig     `yaml:"search"`
	Skills    SkillsConfig     `yaml:"skills"`
}

// ServerConfig defines listener configuration.
type ServerConfig struct {
	Port int `yaml:"port"`
	// RateLimit is the per-account request rate in requests per second; zero disables it.
	RateLimit float64 `yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ProviderConfig captures authentication and routing info for one backend.
// Registration order in the file is the failover order.
type ProviderConfig struct {
	ID          string  `yaml:"id"`
	Type        string  `yaml:"type"`
	DisplayName string  `yaml:"display_name"`
	BaseURL     string  `yaml:"base_url"`
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model"`
	MaxTokens   int     `yaml:"max_tokens"`
	Headers     Headers `yaml:"headers"`

	// ThinkingBudget enables Claude extended thinking with the given token
	// budget. Zero leaves it off.
	ThinkingBudget int `yaml:"thinking_budget"`
}

// Headers contains additional HTTP headers to send with a provider request.
type Headers map[string]string

// QuotaConfig defines allowances per tier and the rolling reset period.
type QuotaConfig struct {
	// ResetSchedule is a standard five-field cron expression; the next
	// activation after a reset is the start of the next period.
	ResetSchedule string                `yaml:"reset_schedule"`
	Tiers         map[string]TierConfig `yaml:"tiers"`
}

// TierConfig is the allowance for one subscription tier.
type TierConfig struct {
	AICalls   int `yaml:"ai_calls"`
	StorageMB int `yaml:"storage_mb"`
}

// StoreConfig selects the usage ledger backend.
type StoreConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// AuthConfig configures the account resolver.
type AuthConfig struct {
	JWTSecret string                  `yaml:"jwt_secret"`
	Issuer    string                  `yaml:"issuer"`
	APIKeys   map[string]APIKeyConfig `yaml:"api_keys"`
}

// APIKeyConfig maps a static API key to an account.
type APIKeyConfig struct {
	Account string `yaml:"account"`
	Tier    string `yaml:"tier"`
}

// SearchConfig configures the search aggregator.
type SearchConfig struct {
	CacheTTL  time.Duration          `yaml:"cache_ttl"`
	CacheSize int                    `yaml:"cache_size"`
	Providers []SearchProviderConfig `yaml:"providers"`
}

// SearchProviderConfig describes one search backend; order is priority.
type SearchProviderConfig struct {
	ID      string `yaml:"id"`
	Type    string `yaml:"type"`
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
}

// SkillsConfig locates skill manifests on disk.
type SkillsConfig struct {
	Dir string `yaml:"dir"`
}

// Load reads YAML configuration from disk, expands ${VAR} references from
// the environment, applies defaults and validates the result.
func Load(path string) (Config, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return Config{}, fmt.Errorf("resolve config path: %w", err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return Config{}, fmt.Errorf("read config file %q: %w", absPath, err)
	}

	return Parse(data)
}

// Parse decodes, defaults and validates raw YAML.
func Parse(data []byte) (Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = defaultPort
	}
	if c.Server.RateLimit > 0 && c.Server.RateBurst == 0 {
		c.Server.RateBurst = int(c.Server.RateLimit*2) + 1
	}
	if c.Log.Level == "" {
		c.Log.Level = defaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	for i := range c.Providers {
		p := &c.Providers[i]
		p.Type = strings.ToLower(strings.TrimSpace(p.Type))
		if p.DisplayName == "" {
			p.DisplayName = p.ID
		}
		if p.MaxTokens == 0 {
			p.MaxTokens = defaultMaxTokens
		}
	}
	if c.Quota.ResetSchedule == "" {
		c.Quota.ResetSchedule = defaultResetSchedule
	}
	if len(c.Quota.Tiers) == 0 {
		c.Quota.Tiers = DefaultTiers()
	}
	if c.Store.Driver == "" {
		c.Store.Driver = DriverSQLite
	}
	if c.Store.DSN == "" && c.Store.Driver == DriverSQLite {
		c.Store.DSN = "file:docmind.db?_pragma=busy_timeout(5000)"
	}
	if c.Search.CacheTTL == 0 {
		c.Search.CacheTTL = defaultCacheTTL
	}
	if c.Search.CacheSize == 0 {
		c.Search.CacheSize = defaultCacheSize
	}
}

// DefaultTiers returns the built-in allowances.
func DefaultTiers() map[string]TierConfig {
	return map[string]TierConfig{
		string(models.TierFree):       {AICalls: 50, StorageMB: 100},
		string(models.TierPro):        {AICalls: 1000, StorageMB: 10 * 1024},
		string(models.TierEnterprise): {AICalls: 10000, StorageMB: 100 * 1024},
	}
}

// Validate performs strict sanity checks on the configuration.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be a valid TCP port, got %d", c.Server.Port)
	}
	if c.Server.RateLimit < 0 {
		return fmt.Errorf("server.rate_limit must not be negative, got %v", c.Server.RateLimit)
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q must be one of debug, info, warn, error", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format %q must be text or json", c.Log.Format)
	}

	if len(c.Providers) == 0 {
		return fmt.Errorf("at least one provider must be configured")
	}
	seen := make(map[string]struct{}, len(c.Providers))
	for _, p := range c.Providers {
		if err := validateProvider(p); err != nil {
			return err
		}
		if _, dup := seen[p.ID]; dup {
			return fmt.Errorf("provider %s: id is configured more than once", p.ID)
		}
		seen[p.ID] = struct{}{}
	}

	for name, tier := range c.Quota.Tiers {
		if !models.Tier(name).Valid() {
			return fmt.Errorf("quota.tiers: unknown tier %q", name)
		}
		if tier.AICalls < 0 || tier.StorageMB < 0 {
			return fmt.Errorf("quota.tiers.%s: allowances must not be negative", name)
		}
	}

	switch c.Store.Driver {
	case DriverSQLite, DriverPostgres, DriverMySQL:
		if strings.TrimSpace(c.Store.DSN) == "" {
			return fmt.Errorf("store.dsn must be provided for driver %s", c.Store.Driver)
		}
	case DriverMemory:
	default:
		return fmt.Errorf("store.driver %q is not supported", c.Store.Driver)
	}

	for key, ak := range c.Auth.APIKeys {
		if strings.TrimSpace(key) == "" {
			return fmt.Errorf("auth.api_keys: key must not be empty")
		}
		if strings.TrimSpace(ak.Account) == "" {
			return fmt.Errorf("auth.api_keys: account must be provided")
		}
		if !models.Tier(ak.Tier).Valid() {
			return fmt.Errorf("auth.api_keys: account %s has unknown tier %q", ak.Account, ak.Tier)
		}
	}

	if c.Search.CacheTTL < 0 || c.Search.CacheSize < 0 {
		return fmt.Errorf("search cache settings must not be negative")
	}
	for _, sp := range c.Search.Providers {
		if strings.TrimSpace(sp.ID) == "" {
			return fmt.Errorf("search provider id must not be empty")
		}
		switch sp.Type {
		case SearchTypeSearXNG:
			if strings.TrimSpace(sp.BaseURL) == "" {
				return fmt.Errorf("search provider %s: base_url must be provided", sp.ID)
			}
		case SearchTypeBrave:
		default:
			return fmt.Errorf("search provider %s: type %q must be %q or %q", sp.ID, sp.Type, SearchTypeSearXNG, SearchTypeBrave)
		}
	}

	return nil
}

func validateProvider(p ProviderConfig) error {
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("provider id must not be empty")
	}
	switch p.Type {
	case ProviderTypeOpenAI, ProviderTypeReasoning, ProviderTypeClaude, ProviderTypeOllama:
	default:
		return fmt.Errorf("provider %s: type %q must be one of openai, reasoning, claude, ollama", p.ID, p.Type)
	}
	if strings.TrimSpace(p.BaseURL) == "" {
		return fmt.Errorf("provider %s: base_url must be provided", p.ID)
	}
	if p.Type != ProviderTypeOllama && strings.TrimSpace(p.APIKey) == "" {
		return fmt.Errorf("provider %s: api_key must be provided", p.ID)
	}
	if strings.TrimSpace(p.Model) == "" {
		return fmt.Errorf("provider %s: model must be provided", p.ID)
	}
	if p.MaxTokens < 0 {
		return fmt.Errorf("provider %s: max_tokens must not be negative", p.ID)
	}
	if p.ThinkingBudget != 0 {
		if p.Type != ProviderTypeClaude {
			return fmt.Errorf("provider %s: thinking_budget is only supported by claude providers", p.ID)
		}
		if p.ThinkingBudget < minThinkingBudget {
			return fmt.Errorf("provider %s: thinking_budget must be at least %d", p.ID, minThinkingBudget)
		}
	}
	for headerKey := range p.Headers {
		if !isCanonicalHTTPHeader(headerKey) {
			return fmt.Errorf("provider %s: header %q is not a valid canonical HTTP header", p.ID, headerKey)
		}
	}
	return nil
}

func isCanonicalHTTPHeader(header string) bool {
	if header == "" {
		return false
	}

	for _, r := range header {
		if !(r == '-' || (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z')) {
			return false
		}
	}
	return true
}
