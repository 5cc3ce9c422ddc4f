// Package container wires core docmind services using go.uber.org/dig.
package container

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"go.uber.org/dig"

	"docmind/internal/auth"
	"docmind/internal/cache"
	"docmind/internal/config"
	"docmind/internal/provider"
	providerfactory "docmind/internal/provider/factory"
	"docmind/internal/quota"
	"docmind/internal/router"
	"docmind/internal/search"
	"docmind/internal/search/brave"
	"docmind/internal/search/searxng"
	"docmind/internal/server"
	"docmind/internal/skill"
	"docmind/internal/skill/builtin"
	"docmind/internal/store"
	"docmind/internal/store/db/memory"
	"docmind/internal/store/db/sqldb"
)

// Container holds the resolved service singletons. Callers use the typed
// getters and never import dig directly.
type Container struct {
	store   *store.Store
	manager *provider.Manager
	router  *router.Router
	skills  *skill.Registry
	quota   *quota.Client
	search  *search.Aggregator
	server  *server.Server
}

func (c *Container) Store() *store.Store        { return c.store }
func (c *Container) Manager() *provider.Manager { return c.manager }
func (c *Container) Router() *router.Router     { return c.router }
func (c *Container) Skills() *skill.Registry    { return c.skills }
func (c *Container) Quota() *quota.Client       { return c.quota }
func (c *Container) Search() *search.Aggregator { return c.search }
func (c *Container) Server() *server.Server     { return c.server }
func (c *Container) Close() error               { return c.store.Close() }

// New builds and wires all services from cfg. The store is migrated before
// anything that reads it is constructed.
func New(ctx context.Context, cfg config.Config) (*Container, error) {
	d := dig.New()

	providers := []any{
		func() config.Config { return cfg },
		func() context.Context { return ctx },
		providerfactory.NewHTTPClient,
		newStore,
		newQuota,
		newManager,
		router.New,
		newSkills,
		newSearch,
		newResolver,
		newServer,
	}
	for _, p := range providers {
		if err := d.Provide(p); err != nil {
			return nil, err
		}
	}

	var result *Container
	err := d.Invoke(func(
		st *store.Store,
		manager *provider.Manager,
		rt *router.Router,
		skills *skill.Registry,
		quotaClient *quota.Client,
		agg *search.Aggregator,
		srv *server.Server,
	) {
		result = &Container{
			store:   st,
			manager: manager,
			router:  rt,
			skills:  skills,
			quota:   quotaClient,
			search:  agg,
			server:  srv,
		}
	})
	if err != nil {
		return nil, dig.RootCause(err)
	}
	return result, nil
}

func newStore(ctx context.Context, cfg config.Config) (*store.Store, error) {
	var driver store.Driver
	switch cfg.Store.Driver {
	case config.DriverMemory:
		driver = memory.New()
	default:
		db, err := sqldb.Open(cfg.Store.Driver, cfg.Store.DSN)
		if err != nil {
			return nil, err
		}
		driver = db
	}

	st := store.New(driver)
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("migrate %s store: %w", cfg.Store.Driver, err)
	}
	slog.Info("store ready", "driver", cfg.Store.Driver)
	return st, nil
}

func newQuota(st *store.Store, cfg config.Config) (*quota.Client, error) {
	return quota.New(st, cfg.Quota)
}

func newManager(cfg config.Config) (*provider.Manager, error) {
	manager := provider.NewManager()
	if err := providerfactory.RegisterConfiguredProviders(cfg, manager); err != nil {
		return nil, err
	}
	return manager, nil
}

func newSkills(cfg config.Config, rt *router.Router, quotaClient *quota.Client) (*skill.Registry, error) {
	registry := skill.NewRegistry(rt, quotaClient)
	if err := builtin.Register(registry); err != nil {
		return nil, err
	}
	if cfg.Skills.Dir != "" {
		n, err := registry.RegisterDir(cfg.Skills.Dir)
		if err != nil {
			return nil, err
		}
		slog.Info("loaded skills from disk", "dir", cfg.Skills.Dir, "count", n)
	}
	return registry, nil
}

func newSearch(cfg config.Config, client *http.Client) (*search.Aggregator, error) {
	var backends []search.Provider
	for _, sp := range cfg.Search.Providers {
		var (
			p   search.Provider
			err error
		)
		switch sp.Type {
		case config.SearchTypeSearXNG:
			p, err = searxng.New(sp.ID, sp.BaseURL, client)
		case config.SearchTypeBrave:
			p, err = brave.New(sp.ID, sp.APIKey, sp.BaseURL, client)
		default:
			err = fmt.Errorf("unsupported search provider type %q", sp.Type)
		}
		if err != nil {
			return nil, fmt.Errorf("search provider %s: %w", sp.ID, err)
		}
		backends = append(backends, p)
	}

	c := cache.NewMemory[search.Response](cfg.Search.CacheTTL, cfg.Search.CacheSize)
	return search.NewAggregator(c, backends...), nil
}

func newResolver(cfg config.Config) auth.Resolver {
	return auth.FromConfig(cfg.Auth)
}

func newServer(
	cfg config.Config,
	rt *router.Router,
	skills *skill.Registry,
	quotaClient *quota.Client,
	agg *search.Aggregator,
	resolver auth.Resolver,
) (*server.Server, error) {
	return server.New(cfg, server.Deps{
		Router:   rt,
		Skills:   skills,
		Quota:    quotaClient,
		Search:   agg,
		Resolver: resolver,
	})
}
