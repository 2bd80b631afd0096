package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"listory/internal/app"
	"listory/internal/listing"
	"listory/internal/llm"
)

func writeHomeConfig(t *testing.T, home, baseURL string) string {
	t.Helper()
	cfgRoot := filepath.Join(home, ".listory")
	if err := os.MkdirAll(cfgRoot, 0o755); err != nil {
		t.Fatal(err)
	}
	cfgPath := filepath.Join(cfgRoot, "config.yaml")
	cfg := fmt.Sprintf(`provider: deepseek
concurrency: 2
max_retries: 0
request_timeout_sec: 20
providers:
  deepseek:
    base_url: %s
    model: deepseek-chat
    temperature: 0.7
    json_mode: true
`, baseURL)
	if err := os.WriteFile(cfgPath, []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(cfgRoot, ".env"), []byte("DEEPSEEK_API_KEY=test\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return cfgPath
}

func TestRootCmdRunGenSuccessPath(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer test" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		var req struct {
			Messages []struct {
				Content string `json:"content"`
			} `json:"messages"`
			ResponseFormat map[string]string `json:"response_format"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if len(req.Messages) == 0 || req.ResponseFormat["type"] != "json_object" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		calls.Add(1)
		content := `{"title":"BrandX Thermosflasche","bullets":["Edelstahl","Auslaufsicher"]}`
		fmt.Fprintf(w, `{"choices":[{"finish_reason":"stop","message":{"content":%q}}]}`, content)
	}))
	defer server.Close()

	home := t.TempDir()
	t.Setenv("HOME", home)
	cfgPath := writeHomeConfig(t, home, server.URL)

	work := t.TempDir()
	reqPath := filepath.Join(work, "flask.md")
	sheet := strings.Join([]string{
		listing.Marker,
		"Name: Thermosflasche",
		"Brand: BrandX",
		"# Features",
		"- Edelstahl",
		"- 1 Liter",
	}, "\n")
	if err := os.WriteFile(reqPath, []byte(sheet), 0o644); err != nil {
		t.Fatal(err)
	}

	var out, errb bytes.Buffer
	root := NewRootCmd(&out, &errb)
	root.SetArgs(normalizeArgs([]string{reqPath, "--config", cfgPath, "-o", work, "-m", "de,fr", "--format", "json"}))
	if err := root.Execute(); err != nil {
		t.Fatalf("root execute failed: %v (stderr: %s)", err, errb.String())
	}
	if !strings.Contains(out.String(), "任务完成：成功 2，失败 0") {
		t.Fatalf("unexpected stdout: %s", out.String())
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 model calls, got %d", calls.Load())
	}
	for _, mp := range []string{"de", "fr"} {
		matches, _ := filepath.Glob(filepath.Join(work, "listing_*_"+mp+".json"))
		if len(matches) != 1 {
			t.Fatalf("expected one %s listing, got %v", mp, matches)
		}
	}
}

func TestRootCmdRunGenReportsFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"invalid key"}}`, http.StatusUnauthorized)
	}))
	defer server.Close()

	home := t.TempDir()
	t.Setenv("HOME", home)
	cfgPath := writeHomeConfig(t, home, server.URL)

	work := t.TempDir()
	reqPath := filepath.Join(work, "flask.md")
	if err := os.WriteFile(reqPath, []byte(listing.Marker+"\nName: Flask\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	var out, errb bytes.Buffer
	root := NewRootCmd(&out, &errb)
	root.SetArgs([]string{"gen", reqPath, "--config", cfgPath, "-o", work, "-m", "de"})
	err := root.Execute()
	if err == nil || !strings.Contains(err.Error(), "失败 1") {
		t.Fatalf("expected failure summary, got %v", err)
	}
}

func TestCatalogCommandListsSelectors(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	var out bytes.Buffer
	root := NewRootCmd(&out, &out)
	root.SetArgs([]string{"catalog"})
	if err := root.Execute(); err != nil {
		t.Fatalf("catalog failed: %v", err)
	}
	text := out.String()
	for _, want := range []string{"站点", "de", "EUR", "平台：", "amazon", "品牌语气：", "professional", "节日："} {
		if !strings.Contains(text, want) {
			t.Fatalf("catalog output missing %q:\n%s", want, text)
		}
	}
}

func TestNewServerUsesRuntime(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	client := llm.NewScriptedClient(llm.Step{Text: `{"title":"Y X"}`})
	rt, err := app.Bootstrap(context.Background(), app.Options{CWD: t.TempDir(), Client: client})
	if err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}
	defer rt.Close()

	saveDir := t.TempDir()
	srv, err := newServer(rt, ":0", saveDir)
	if err != nil {
		t.Fatalf("newServer failed: %v", err)
	}
	if srv.Addr != ":0" {
		t.Fatalf("unexpected addr: %s", srv.Addr)
	}

	ts := httptest.NewServer(srv.Handler)
	defer ts.Close()
	body := `{"product":{"name":"X","brand":"Y"},"marketplace":"de"}`
	for i := 0; i < 2; i++ {
		resp, err := http.Post(ts.URL+"/v1/listings/generate", "application/json", strings.NewReader(body))
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("unexpected status: %d", resp.StatusCode)
		}
	}
	if n := len(client.Calls()); n != 1 {
		t.Fatalf("second request should be served from cache, model calls = %d", n)
	}
	matches, _ := filepath.Glob(filepath.Join(saveDir, "listing_*_de.md"))
	if len(matches) != 2 {
		t.Fatalf("expected both responses saved, got %v", matches)
	}
}

func TestNewServerDefaultAddr(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	rt, err := app.Bootstrap(context.Background(), app.Options{CWD: t.TempDir(), Client: llm.NewScriptedClient()})
	if err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}
	defer rt.Close()
	srv, err := newServer(rt, "", "")
	if err != nil {
		t.Fatal(err)
	}
	if srv.Addr != ":8080" {
		t.Fatalf("unexpected default addr: %s", srv.Addr)
	}
}
