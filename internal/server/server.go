// Package server exposes listing generation over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"listory/internal/catalog"
	"listory/internal/listing"
	"listory/internal/logging"
	"listory/internal/output"
	"listory/internal/pipeline"
)

const maxBodyBytes = 1 << 20

// Generator is satisfied by both the pipeline and the cache in front of it.
type Generator interface {
	Generate(ctx context.Context, req listing.GenerationRequest) (pipeline.Result, error)
}

type Config struct {
	Addr      string
	Store     *catalog.Store
	Generator Generator
	// Saver is optional; when set every successful listing is also persisted.
	Saver   output.Saver
	Logger  *logging.Logger
	Timeout time.Duration
}

type generateRequest struct {
	Product listing.Product `json:"product"`
	listing.Selectors
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// New returns an http.Server ready for ListenAndServe.
func New(cfg Config) *http.Server {
	return &http.Server{
		Addr:         cfg.Addr,
		Handler:      Router(cfg),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: timeout(cfg) + 10*time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// Router builds the chi handler tree.
func Router(cfg Config) http.Handler {
	h := &handlers{cfg: cfg}
	router := chi.NewRouter()
	router.Use(chimw.RequestID)
	router.Use(chimw.RealIP)
	router.Use(h.logRequests)
	router.Use(chimw.Recoverer)
	router.Use(chimw.Timeout(timeout(cfg)))

	router.Get("/healthz", h.health)
	router.Get("/v1/catalog", h.catalog)
	router.Post("/v1/listings/generate", h.generate)
	return router
}

func timeout(cfg Config) time.Duration {
	if cfg.Timeout > 0 {
		return cfg.Timeout
	}
	return 3 * time.Minute
}

type handlers struct {
	cfg Config
}

func (h *handlers) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type marketplaceInfo struct {
	Code     string `json:"code"`
	Name     string `json:"name"`
	Language string `json:"language"`
	Currency string `json:"currency"`
}

func (h *handlers) catalog(w http.ResponseWriter, _ *http.Request) {
	store := h.cfg.Store
	if store == nil {
		writeError(w, http.StatusServiceUnavailable, string(pipeline.KindConfiguration), "目录未加载")
		return
	}
	markets := []marketplaceInfo{}
	for _, code := range store.MarketplaceCodes() {
		m, err := store.Marketplace(code)
		if err != nil {
			continue
		}
		markets = append(markets, marketplaceInfo{Code: m.Code, Name: m.Name, Language: m.Language, Currency: m.Currency})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"marketplaces": markets,
		"platforms":    store.PlatformNames(),
		"brand_tones":  store.BrandToneNames(),
		"occasions":    store.OccasionKeys(),
	})
}

func (h *handlers) generate(w http.ResponseWriter, r *http.Request) {
	if h.cfg.Store == nil || h.cfg.Generator == nil {
		writeError(w, http.StatusServiceUnavailable, string(pipeline.KindConfiguration), "服务未初始化")
		return
	}
	var body generateRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Sprintf("请求体格式错误：%v", err))
		return
	}
	req, err := listing.BuildRequest(h.cfg.Store, body.Product, body.Selectors)
	if err != nil {
		writeError(w, http.StatusBadRequest, string(pipeline.KindConfiguration), err.Error())
		return
	}
	res, err := h.cfg.Generator.Generate(r.Context(), req)
	if err != nil {
		kind := pipeline.KindOf(err)
		h.cfg.Logger.Emit(logging.Event{Level: "warn", Event: "generate_failed", RequestID: req.RequestID, Marketplace: req.Marketplace.Code, Step: string(kind), Error: err.Error()})
		writeError(w, statusFor(kind), string(kind), messageFor(kind, err))
		return
	}
	if h.cfg.Saver != nil {
		if err := h.cfg.Saver.Save(r.Context(), res.Content); err != nil {
			h.cfg.Logger.Emit(logging.Event{Level: "warn", Event: "write_failed", RequestID: res.Content.RequestID, Marketplace: res.Content.Marketplace, Error: err.Error()})
		}
	}
	writeJSON(w, http.StatusOK, res)
}

func statusFor(kind pipeline.Kind) int {
	switch kind {
	case pipeline.KindConfiguration:
		return http.StatusBadRequest
	case pipeline.KindRefusal:
		return http.StatusUnprocessableEntity
	case pipeline.KindCanceled:
		return http.StatusGatewayTimeout
	case pipeline.KindExhausted:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

var kindMessages = map[pipeline.Kind]string{
	pipeline.KindExhausted: "模型暂时不可用，重试后仍未成功，请稍后再试",
	pipeline.KindRefusal:   "模型拒绝生成该产品的内容",
	pipeline.KindAuth:      "模型服务鉴权失败，请检查 API Key",
	pipeline.KindParse:     "无法从模型响应中提取内容",
	pipeline.KindCanceled:  "请求已取消或超时",
}

// messageFor is the client-facing text for a failed generation. Only
// configuration errors are echoed; the rest may carry upstream text.
func messageFor(kind pipeline.Kind, err error) string {
	if kind == pipeline.KindConfiguration {
		return err.Error()
	}
	if msg, ok := kindMessages[kind]; ok {
		return msg
	}
	return "生成失败"
}

func (h *handlers) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		level := "info"
		if ww.Status() >= http.StatusInternalServerError {
			level = "warn"
		}
		h.cfg.Logger.Emit(logging.Event{
			Level:     level,
			Event:     "http_request",
			RequestID: chimw.GetReqID(r.Context()),
			Step:      fmt.Sprintf("%s %s %d", r.Method, r.URL.Path, ww.Status()),
			LatencyMS: time.Since(start).Milliseconds(),
		})
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, kind, message string) {
	writeJSON(w, status, errorBody{Error: errorDetail{Kind: kind, Message: message}})
}

// ListenAndServe runs srv until ctx is done, then shuts it down gracefully.
func ListenAndServe(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
