package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"listory/internal/catalog"
	"listory/internal/config"
	"listory/internal/llm"
	"listory/internal/logging"
	"listory/internal/pipeline"
)

// Runtime is everything a command needs to generate listings.
type Runtime struct {
	Config    *config.Config
	Paths     *config.Paths
	Store     *catalog.Store
	Logger    *logging.Logger
	Generator *pipeline.Generator
	closer    io.Closer
}

func (r *Runtime) Close() error {
	if r == nil || r.closer == nil {
		return nil
	}
	return r.closer.Close()
}

// Bootstrap loads config, catalog, logger and model client. opts.Client, when
// set, replaces the configured provider.
func Bootstrap(ctx context.Context, opts Options) (*Runtime, error) {
	cwd, err := resolveCWD(opts.CWD)
	if err != nil {
		return nil, err
	}
	cfg, paths, err := config.Load(opts.ConfigPath, cwd)
	if err != nil {
		return nil, err
	}
	overrideConfig(cfg, opts)

	providerCfg, ok := cfg.Providers[cfg.Provider]
	if !ok {
		return nil, fmt.Errorf("配置中不存在 provider：%s", cfg.Provider)
	}

	stdout := opts.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	logger, closer, err := logging.New(stdout, opts.LogFile, opts.Verbose)
	if err != nil {
		return nil, fmt.Errorf("初始化日志失败：%w", err)
	}
	rt := &Runtime{Config: cfg, Paths: paths, Logger: logger, closer: closer}

	logger.Emit(logging.Event{Event: "startup", Provider: cfg.Provider, Model: providerCfg.Model})
	logger.Emit(logging.Event{Event: "config_loaded", Input: paths.ConfigSource})

	if cfg.CatalogCenter.Enabled {
		res, err := config.SyncCatalogFromCenter(ctx, cfg, paths, nil)
		if err != nil {
			rt.Close()
			return nil, err
		}
		if res.Warning != "" {
			logger.Emit(logging.Event{Level: "warn", Event: "catalog_sync_warning", Error: res.Warning})
		} else if res.Message != "" {
			logger.Emit(logging.Event{Event: "catalog_sync", Step: res.Message})
		}
	}

	store, err := catalog.Load(paths.ResolvedCatalog)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.Store = store

	client := opts.Client
	if client == nil {
		apiKey, err := config.ResolveAPIKey(paths, cfg.APIKeyEnv)
		if err != nil {
			rt.Close()
			return nil, err
		}
		client, err = llm.NewClient(ctx, llm.Settings{
			Provider: cfg.Provider,
			BaseURL:  providerCfg.BaseURL,
			APIKey:   apiKey,
			Model:    providerCfg.Model,
			Timeout:  time.Duration(cfg.RequestTimeoutSec) * time.Second,
		})
		if err != nil {
			rt.Close()
			return nil, err
		}
	}

	gen := pipeline.New(store, client, logger)
	gen.Retry.MaxRetries = cfg.MaxRetries
	gen.Provider = cfg.Provider
	gen.Model = providerCfg.Model
	gen.Temperature = providerCfg.Temperature
	gen.JSONMode = providerCfg.JSONModeEnabled()
	gen.Timeout = time.Duration(cfg.RequestTimeoutSec) * time.Second
	rt.Generator = gen
	return rt, nil
}

func resolveCWD(cwd string) (string, error) {
	if strings.TrimSpace(cwd) != "" {
		return cwd, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("读取当前目录失败：%w", err)
	}
	return wd, nil
}

func overrideConfig(cfg *config.Config, opts Options) {
	if strings.TrimSpace(opts.OutputDir) != "" {
		cfg.Output.Dir = opts.OutputDir
	}
	if strings.TrimSpace(opts.Format) != "" {
		cfg.Output.Format = strings.ToLower(strings.TrimSpace(opts.Format))
	}
	if opts.Concurrency > 0 {
		cfg.Concurrency = opts.Concurrency
	}
	if opts.MaxRetries > 0 {
		cfg.MaxRetries = opts.MaxRetries
	}
	if p := strings.ToLower(strings.TrimSpace(opts.Provider)); p != "" {
		if p != cfg.Provider && strings.TrimSpace(opts.APIKeyEnv) == "" {
			cfg.APIKeyEnv = config.DefaultAPIKeyEnv(p)
		}
		cfg.Provider = p
	}
	if strings.TrimSpace(opts.APIKeyEnv) != "" {
		cfg.APIKeyEnv = strings.TrimSpace(opts.APIKeyEnv)
	}
	if len(opts.Marketplaces) > 0 {
		cfg.Defaults.Marketplaces = opts.Marketplaces
	}
	if strings.TrimSpace(opts.Platform) != "" {
		cfg.Defaults.Platform = opts.Platform
	}
	if strings.TrimSpace(opts.BrandTone) != "" {
		cfg.Defaults.BrandTone = opts.BrandTone
	}
	if strings.TrimSpace(opts.Occasion) != "" {
		cfg.Defaults.Occasion = opts.Occasion
	}
}
