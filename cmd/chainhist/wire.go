package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/chainhist/chainhist/internal/aggregate"
	"github.com/chainhist/chainhist/internal/cache"
	"github.com/chainhist/chainhist/internal/config"
	"github.com/chainhist/chainhist/internal/health"
	"github.com/chainhist/chainhist/internal/history"
	"github.com/chainhist/chainhist/internal/logging"
	"github.com/chainhist/chainhist/internal/metrics"
	"github.com/chainhist/chainhist/internal/normalize"
	"github.com/chainhist/chainhist/internal/ratelimit"
	"github.com/chainhist/chainhist/internal/source"
	"github.com/chainhist/chainhist/internal/source/indexed"
	"github.com/chainhist/chainhist/internal/source/rpcscan"
	"github.com/chainhist/chainhist/internal/storage"
)

// app bundles the constructed components a command needs.
type app struct {
	cfg     *config.Config
	log     *slog.Logger
	store   *storage.Store
	service *history.Service
	pingers map[string]health.Pinger
	cache   *cache.Cache
}

func (a *app) close() {
	if a.cache != nil {
		a.cache.Close()
	}
	if a.store != nil {
		_ = a.store.Close()
	}
}

// buildApp loads the config and wires the full engine: limiter, one
// source per network (indexed API when configured, RPC scan otherwise),
// aggregator, cache, store, and facade.
func buildApp() (*app, error) {
	log := logging.NewWithLevel(os.Getenv("LOG_LEVEL"))

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	store, err := storage.Open(cfg.Global.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	mtr := metrics.Init()

	limits := map[string]ratelimit.Limit{}
	for family, rl := range cfg.RateLimits {
		limits[family] = ratelimit.Limit{MaxRequests: rl.MaxRequests, Window: rl.Window.Std()}
	}
	families := map[string]string{}
	for _, n := range cfg.Networks {
		families[n.ID] = n.Family
	}
	limiter := ratelimit.New(limits, families)
	limiter.OnWait(func(string, time.Duration) { mtr.RateLimitWait() })

	sources := map[string]source.Source{}
	networks := map[string]normalize.Network{}
	pingers := map[string]health.Pinger{}

	for _, n := range cfg.Networks {
		networks[n.ID] = normalize.Network{
			Name:        n.Name,
			Symbol:      n.Symbol,
			Decimals:    n.Decimals,
			ExplorerURL: n.ExplorerURL,
		}

		if n.Indexed() {
			cli, err := indexed.NewClient(indexed.Config{
				Network: n.ID,
				BaseURL: n.APIURL,
				APIKey:  n.APIKey,
				Timeout: cfg.Global.RequestTimeout.Std(),
			}, limiter)
			if err != nil {
				store.Close()
				return nil, fmt.Errorf("network %s: %w", n.ID, err)
			}
			sources[n.ID] = cli
			pingers[n.ID] = cli
			continue
		}

		rpc, err := rpcscan.NewRPCClient(n.RPCURL)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("network %s: %w", n.ID, err)
		}
		sc, err := rpcscan.NewScanner(rpc, rpcscan.Config{
			Network:   n.ID,
			ChainID:   n.ChainID,
			MaxBlocks: cfg.Global.ScanBlocks,
			Timeout:   cfg.Global.RequestTimeout.Std(),
		}, limiter, log)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("network %s: %w", n.ID, err)
		}
		sources[n.ID] = sc
		pingers[n.ID] = sc
	}

	agg, err := aggregate.New(sources, networks, store, log, mtr)
	if err != nil {
		store.Close()
		return nil, err
	}

	resultCache := cache.New(cfg.Global.CacheTTL.Std(), cfg.Global.CacheSweep.Std())

	svc, err := history.NewService(agg, store, resultCache, log, mtr)
	if err != nil {
		store.Close()
		return nil, err
	}

	return &app{
		cfg:     cfg,
		log:     log,
		store:   store,
		service: svc,
		pingers: pingers,
		cache:   resultCache,
	}, nil
}
