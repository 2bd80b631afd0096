// Package pipeline runs one generation end to end: prompt, model call,
// extraction, validation and assembly, with bounded retries.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/metric"

	"listory/internal/assemble"
	"listory/internal/catalog"
	"listory/internal/extract"
	"listory/internal/listing"
	"listory/internal/llm"
	"listory/internal/logging"
	"listory/internal/prompt"
	"listory/internal/validate"
)

// errDegraded marks an attempt that only yielded regex-recovered fields.
var errDegraded = errors.New("仅通过正则恢复部分字段")

type Result struct {
	Content listing.ListingContent   `json:"listing"`
	Report  listing.ValidationReport `json:"report"`
}

type Generator struct {
	Store     *catalog.Store
	Client    llm.ModelClient
	Logger    *logging.Logger
	Retry     RetryOptions
	Assembler *assemble.Assembler

	Provider    string
	Model       string
	Temperature float64
	JSONMode    bool
	Timeout     time.Duration

	metrics    *metrics
	metricsErr error
	sleep      sleepFunc
}

type Option func(*Generator)

// WithMeter records metrics to m instead of the global meter provider.
func WithMeter(m metric.Meter) Option {
	return func(g *Generator) { g.metrics, g.metricsErr = newMetrics(m) }
}

func withSleep(s sleepFunc) Option {
	return func(g *Generator) { g.sleep = s }
}

func New(store *catalog.Store, client llm.ModelClient, logger *logging.Logger, opts ...Option) *Generator {
	g := &Generator{
		Store:       store,
		Client:      client,
		Logger:      logger,
		Retry:       DefaultRetry(),
		Assembler:   assemble.New(),
		Temperature: 0.7,
		JSONMode:    true,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.metrics == nil {
		g.metrics, g.metricsErr = newMetrics(nil)
	}
	if g.metricsErr != nil {
		g.Logger.Emit(logging.Event{Level: "warn", Event: "metrics_unavailable", Error: g.metricsErr.Error()})
	}
	return g
}

// GenerateProduct resolves product and selectors against the catalog, then generates.
func (g *Generator) GenerateProduct(ctx context.Context, product listing.Product, sel listing.Selectors) (Result, error) {
	if g.Store == nil {
		return Result{}, &GenerationError{Kind: KindConfiguration, Err: fmt.Errorf("未加载 catalog")}
	}
	req, err := listing.BuildRequest(g.Store, product, sel)
	if err != nil {
		g.metrics.failure(ctx, KindConfiguration)
		return Result{}, &GenerationError{Kind: KindConfiguration, Err: err}
	}
	return g.Generate(ctx, req)
}

type candidate struct {
	outcome extract.Outcome
	resp    llm.RawModelResponse
}

func better(a *candidate, b extract.Outcome) bool {
	if a == nil {
		return true
	}
	if (a.outcome.Step == extract.StepRegex) != (b.Step == extract.StepRegex) {
		return a.outcome.Step == extract.StepRegex
	}
	return len(b.Found) > len(a.outcome.Found)
}

// Generate produces a validated listing for req. Model failures are retried;
// refusal and authentication errors are not. When at least one attempt
// recovered a mandatory field, the best attempt is used and every missing
// field is synthesized.
func (g *Generator) Generate(ctx context.Context, req listing.GenerationRequest) (Result, error) {
	if g.Client == nil {
		return Result{}, &GenerationError{Kind: KindConfiguration, Err: fmt.Errorf("未配置模型客户端")}
	}
	if g.metrics == nil {
		var err error
		if g.metrics, err = newMetrics(nil); err != nil {
			g.Logger.Emit(logging.Event{Level: "warn", Event: "metrics_unavailable", Error: err.Error()})
		}
	}
	ev := logging.Event{
		Input:       req.Product.Name,
		Marketplace: req.Marketplace.Code,
		Platform:    req.Platform.Name,
		Provider:    g.Provider,
		Model:       g.Model,
		RequestID:   req.RequestID,
	}
	emit := func(e logging.Event) {
		e.Input, e.Marketplace, e.Platform = ev.Input, ev.Marketplace, ev.Platform
		e.Provider, e.Model, e.RequestID = ev.Provider, ev.Model, ev.RequestID
		g.Logger.Emit(e)
	}

	retry := g.Retry
	retry.Retryable = func(err error) bool {
		var pf *extract.ParseFailure
		return llm.IsTransient(err) || errors.As(err, &pf) || errors.Is(err, errDegraded)
	}
	retry.OnRetry = func(attempt int, wait time.Duration, err error) {
		emit(logging.Event{Level: "warn", Event: "retry_scheduled", Attempt: attempt, WaitMS: wait.Milliseconds(), Error: err.Error()})
	}

	var best *candidate
	attempts, err := withExponentialBackoff(ctx, retry, g.sleep, func(attempt int) error {
		hint := prompt.HintForAttempt(attempt)
		bundle := prompt.Compose(req, hint)
		opts := llm.Options{
			Model:       g.Model,
			Temperature: g.temperature(attempt),
			FormatHint:  string(hint),
			JSONMode:    g.JSONMode,
			Attempt:     attempt,
			RequestID:   req.RequestID,
			Timeout:     g.Timeout,
		}
		emit(logging.Event{Event: "api_request", Attempt: attempt, Step: string(hint)})
		start := time.Now()
		resp, err := g.Client.Send(ctx, llm.Prompt{System: bundle.System, User: bundle.Text}, opts)
		g.metrics.attempt(ctx, req.Marketplace.Code, req.Platform.Name, time.Since(start), err)
		if err != nil {
			emit(logging.Event{Level: "warn", Event: "api_error", Attempt: attempt, Error: err.Error()})
			if body := llm.ResponseBody(err); body != "" {
				emit(logging.Event{Level: "debug", Event: "api_error_body", Attempt: attempt, Step: fmt.Sprintf("bytes=%d", len(body)), Error: body})
			}
			return err
		}
		emit(logging.Event{Event: "api_response", Attempt: attempt, LatencyMS: resp.Latency.Milliseconds(), Step: fmt.Sprintf("chars=%d", len(resp.Text))})

		outcome, perr := extract.Extract(resp.Text)
		if perr != nil {
			emit(logging.Event{Level: "warn", Event: "parse_failed", Attempt: attempt, Step: string(outcome.Step), Error: perr.Error()})
			return perr
		}
		if better(best, outcome) {
			best = &candidate{outcome: outcome, resp: resp}
		}
		emit(logging.Event{Event: "extract_ok", Attempt: attempt, Step: string(outcome.Step)})
		if outcome.Step == extract.StepRegex {
			return errDegraded
		}
		return nil
	})

	if err != nil {
		kind := classify(ctx, err)
		stop := kind == KindRefusal || kind == KindAuth || kind == KindCanceled
		if best == nil || stop {
			ge := wrap(ctx, err, attempts)
			g.metrics.failure(ctx, ge.Kind)
			emit(logging.Event{Level: "error", Event: "generate_failed", Attempt: attempts, Error: ge.Error()})
			return Result{}, ge
		}
		emit(logging.Event{Level: "warn", Event: "best_effort", Attempt: attempts, Step: string(best.outcome.Step), Error: err.Error()})
	}

	plan, report := validate.Normalize(req, best.outcome.Plan)
	report.ExtractionStep = string(best.outcome.Step)
	report.Repairs = best.outcome.Repairs
	report.Attempts = attempts

	for _, f := range report.WithStatus(listing.StatusOutOfBand) {
		emit(logging.Event{Level: "warn", Event: "validation_warning", Step: f})
	}
	g.metrics.fallback(ctx, req.Marketplace.Code, req.Platform.Name, len(report.WithStatus(listing.StatusFallbackSynthesized)))

	assembler := g.Assembler
	if assembler == nil {
		assembler = assemble.New()
	}
	content, err := assembler.Assemble(req, plan)
	if err != nil {
		g.metrics.failure(ctx, KindExhausted)
		return Result{}, &GenerationError{Kind: KindExhausted, Attempts: attempts, Err: err}
	}
	emit(logging.Event{Event: "generate_ok", Attempt: attempts, LatencyMS: best.resp.Latency.Milliseconds()})
	return Result{Content: content, Report: report}, nil
}

// temperature lowers the sampling temperature on the final format hint.
func (g *Generator) temperature(attempt int) float64 {
	if prompt.HintForAttempt(attempt) == prompt.HintMinimalJSON {
		return g.Temperature / 2
	}
	return g.Temperature
}
