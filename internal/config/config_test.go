package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimal = `
providers:
  - id: main
    type: OpenAI
    base_url: https://api.example.com/v1
    api_key: ${DOCMIND_TEST_KEY}
    model: gpt-test
`

func TestParseAppliesDefaults(t *testing.T) {
	t.Setenv("DOCMIND_TEST_KEY", "sk-from-env")

	cfg, err := Parse([]byte(minimal))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)

	require.Len(t, cfg.Providers, 1)
	p := cfg.Providers[0]
	assert.Equal(t, ProviderTypeOpenAI, p.Type)
	assert.Equal(t, "sk-from-env", p.APIKey)
	assert.Equal(t, "main", p.DisplayName)
	assert.Equal(t, 4096, p.MaxTokens)

	assert.Equal(t, "0 0 1 * *", cfg.Quota.ResetSchedule)
	assert.Equal(t, DefaultTiers(), cfg.Quota.Tiers)
	assert.Equal(t, DriverSQLite, cfg.Store.Driver)
	assert.NotEmpty(t, cfg.Store.DSN)
	assert.Equal(t, 5*time.Minute, cfg.Search.CacheTTL)
	assert.Equal(t, 100, cfg.Search.CacheSize)
}

func TestParseFullConfig(t *testing.T) {
	data := `
server:
  port: 9090
  rate_limit: 2
log:
  level: debug
  format: json
providers:
  - id: local
    type: ollama
    base_url: http://127.0.0.1:11434
    model: qwen3
quota:
  reset_schedule: "0 0 * * 1"
  tiers:
    free: {ai_calls: 5, storage_mb: 1}
store:
  driver: memory
auth:
  api_keys:
    k1: {account: alice, tier: pro}
search:
  cache_ttl: 30s
  providers:
    - {id: brave, type: brave, api_key: x}
skills:
  dir: ./skills
`
	cfg, err := Parse([]byte(data))
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 5, cfg.Server.RateBurst)
	assert.Equal(t, 5, cfg.Quota.Tiers["free"].AICalls)
	assert.Equal(t, DriverMemory, cfg.Store.Driver)
	assert.Equal(t, "alice", cfg.Auth.APIKeys["k1"].Account)
	assert.Equal(t, 30*time.Second, cfg.Search.CacheTTL)
	assert.Equal(t, "./skills", cfg.Skills.Dir)
}

func TestValidateRejects(t *testing.T) {
	base := func() Config {
		cfg, err := Parse([]byte(`
providers:
  - {id: a, type: openai, base_url: http://x, api_key: k, model: m}
`))
		require.NoError(t, err)
		return cfg
	}

	cases := map[string]func(c *Config){
		"bad port":         func(c *Config) { c.Server.Port = 70000 },
		"bad log level":    func(c *Config) { c.Log.Level = "loud" },
		"no providers":     func(c *Config) { c.Providers = nil },
		"duplicate id":     func(c *Config) { c.Providers = append(c.Providers, c.Providers[0]) },
		"unknown type":     func(c *Config) { c.Providers[0].Type = "nvidia" },
		"missing key":      func(c *Config) { c.Providers[0].APIKey = "" },
		"missing model":    func(c *Config) { c.Providers[0].Model = "" },
		"bad header":       func(c *Config) { c.Providers[0].Headers = Headers{"X Bad": "1"} },
		"unknown tier":     func(c *Config) { c.Quota.Tiers["gold"] = TierConfig{} },
		"negative quota":   func(c *Config) { c.Quota.Tiers["free"] = TierConfig{AICalls: -1} },
		"unknown driver":   func(c *Config) { c.Store.Driver = "mongo" },
		"postgres no dsn":  func(c *Config) { c.Store.Driver, c.Store.DSN = DriverPostgres, "" },
		"api key bad tier": func(c *Config) { c.Auth.APIKeys = map[string]APIKeyConfig{"k": {Account: "a", Tier: "gold"}} },
		"searxng no url":   func(c *Config) { c.Search.Providers = []SearchProviderConfig{{ID: "s", Type: SearchTypeSearXNG}} },
		"unknown search":   func(c *Config) { c.Search.Providers = []SearchProviderConfig{{ID: "s", Type: "bing"}} },
		"negative rate":    func(c *Config) { c.Server.RateLimit = -1 },
		"thinking openai":  func(c *Config) { c.Providers[0].ThinkingBudget = 2048 },
		"thinking too low": func(c *Config) { c.Providers[0].Type, c.Providers[0].ThinkingBudget = ProviderTypeClaude, 100 },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := base()
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestOllamaNeedsNoKey(t *testing.T) {
	_, err := Parse([]byte(`
providers:
  - {id: a, type: ollama, base_url: http://x, model: m}
`))
	assert.NoError(t, err)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
providers:
  - {id: a, type: claude, base_url: http://x, api_key: k, model: m}
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ProviderTypeClaude, cfg.Providers[0].Type)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
