package factory

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"docmind/internal/config"
	"docmind/internal/provider"
	claudeProvider "docmind/internal/provider/claude"
	ollamaProvider "docmind/internal/provider/ollama"
	openaiProvider "docmind/internal/provider/openai"
)

const (
	defaultHeaderTimeout   = 60 * time.Second
	defaultDialTimeout     = 10 * time.Second
	defaultKeepAlive       = 30 * time.Second
	defaultIdleConnTimeout = 90 * time.Second
)

// Build constructs one provider from its configuration entry.
func Build(cfg config.ProviderConfig, client *http.Client) (provider.Provider, error) {
	switch cfg.Type {
	case config.ProviderTypeOpenAI, config.ProviderTypeReasoning:
		return openaiProvider.New(cfg, client)
	case config.ProviderTypeClaude:
		return claudeProvider.New(cfg, client)
	case config.ProviderTypeOllama:
		return ollamaProvider.New(cfg, client)
	default:
		return nil, fmt.Errorf("unsupported provider type %q", cfg.Type)
	}
}

// RegisterConfiguredProviders constructs providers from configuration and
// adds them to the manager in file order, which is the failover order.
func RegisterConfiguredProviders(cfg config.Config, manager *provider.Manager) error {
	if manager == nil {
		return errors.New("manager must not be nil")
	}

	for _, pc := range cfg.Providers {
		p, err := Build(pc, NewHTTPClient())
		if err != nil {
			return fmt.Errorf("initialise %s provider: %w", pc.ID, err)
		}
		if err := manager.AddProvider(p); err != nil {
			return fmt.Errorf("register %s provider: %w", pc.ID, err)
		}
	}
	return nil
}

// NewHTTPClient returns a client tuned for long-lived upstream calls. There
// is no overall client timeout because streamed bodies stay open for the
// length of a generation; only connection setup and headers are bounded.
func NewHTTPClient() *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: defaultDialTimeout, KeepAlive: defaultKeepAlive}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          50,
		IdleConnTimeout:       defaultIdleConnTimeout,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: defaultHeaderTimeout,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{Transport: transport}
}
