package app

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"

	"listory/internal/discovery"
	"listory/internal/listing"
	"listory/internal/llm"
	"listory/internal/logging"
	"listory/internal/output"
)

type Options struct {
	Inputs       []string
	ConfigPath   string
	OutputDir    string
	Format       string
	Marketplaces []string
	Platform     string
	BrandTone    string
	Occasion     string
	Concurrency  int
	MaxRetries   int
	Provider     string
	APIKeyEnv    string
	LogFile      string
	Verbose      bool
	CWD          string
	Stdout       io.Writer
	Stderr       io.Writer
	Client       llm.ModelClient
}

type Result struct {
	Succeeded int
	Failed    int
	Files     []string
}

type job struct {
	Product     listing.Product
	Marketplace string
}

// Run generates one listing per product sheet and marketplace and writes each
// to the output directory. Per-listing failures are logged and counted; only
// setup problems return an error.
func Run(ctx context.Context, opts Options) (Result, error) {
	cwd, err := resolveCWD(opts.CWD)
	if err != nil {
		return Result{}, err
	}
	opts.CWD = cwd
	rt, err := Bootstrap(ctx, opts)
	if err != nil {
		return Result{}, err
	}
	defer rt.Close()
	cfg, logger := rt.Config, rt.Logger

	inputPaths := make([]string, 0, len(opts.Inputs))
	for _, in := range opts.Inputs {
		inputPaths = append(inputPaths, absPath(cwd, in))
	}
	discoverRes, err := discovery.Discover(inputPaths)
	if err != nil {
		return Result{}, err
	}
	for _, w := range discoverRes.Warnings {
		logger.Emit(logging.Event{Level: "warn", Event: "scan_warning", Error: w})
	}

	result := Result{}
	for _, f := range discoverRes.Failures {
		result.Failed++
		logger.Emit(logging.Event{Level: "error", Event: "parse_failed", Input: f.Path, Error: f.Err.Error()})
	}
	for _, src := range discoverRes.Sources {
		for _, w := range src.Sheet.Warnings {
			logger.Emit(logging.Event{Level: "warn", Event: "validation_warning", Input: src.Path, Error: w})
		}
	}
	products := discoverRes.Products()
	if len(products) == 0 {
		if result.Failed > 0 {
			return result, nil
		}
		return result, fmt.Errorf("没有可生成的产品资料")
	}

	outDir := cfg.Output.Dir
	if !filepath.IsAbs(outDir) {
		outDir = filepath.Join(cwd, outDir)
	}
	store, err := output.NewFileStore(outDir, cfg.Output.Format)
	if err != nil {
		return result, err
	}

	jobs := make([]job, 0, len(products)*len(cfg.Defaults.Marketplaces))
	for _, p := range products {
		for _, mp := range cfg.Defaults.Marketplaces {
			jobs = append(jobs, job{Product: p, Marketplace: mp})
		}
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Concurrency)
	for _, j := range jobs {
		g.Go(func() error {
			path, ok := rt.process(gctx, store, j)
			mu.Lock()
			defer mu.Unlock()
			if ok {
				result.Succeeded++
				result.Files = append(result.Files, path)
			} else {
				result.Failed++
			}
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return result, err
	}

	logger.Emit(logging.Event{Event: "finished", Attempt: result.Succeeded + result.Failed, Error: fmt.Sprintf("success=%d failed=%d", result.Succeeded, result.Failed)})
	return result, nil
}

func (rt *Runtime) process(ctx context.Context, store *output.FileStore, j job) (string, bool) {
	d := rt.Config.Defaults
	src := j.Product.SourcePath
	res, err := rt.Generator.GenerateProduct(ctx, j.Product, listing.Selectors{
		Marketplace: j.Marketplace,
		Platform:    d.Platform,
		BrandTone:   d.BrandTone,
		Occasion:    d.Occasion,
	})
	if err != nil {
		rt.Logger.Emit(logging.Event{Level: "error", Event: "generate_failed", Input: src, Marketplace: j.Marketplace, Error: err.Error()})
		return "", false
	}
	path, err := store.Write(ctx, res.Content)
	if err != nil {
		rt.Logger.Emit(logging.Event{Level: "error", Event: "write_failed", Input: src, Marketplace: j.Marketplace, RequestID: res.Content.RequestID, Error: err.Error()})
		return "", false
	}
	rt.Logger.Emit(logging.Event{Event: "write_ok", Input: src, Marketplace: j.Marketplace, RequestID: res.Content.RequestID, OutputFile: path})
	return path, true
}

func absPath(cwd, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(cwd, p)
}
