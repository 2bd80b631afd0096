package cmd

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"listory/internal/config"
)

func TestSetKeyCommandCreateAndUpdateEnv(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	var out, errb bytes.Buffer
	root := NewRootCmd(&out, &errb)
	root.SetArgs([]string{"set", "key", "first-key"})
	if err := root.Execute(); err != nil {
		t.Fatalf("set key create failed: %v", err)
	}
	envPath := filepath.Join(home, ".listory", ".env")
	env, err := config.LoadEnvFile(envPath)
	if err != nil {
		t.Fatalf("read env failed: %v", err)
	}
	if env["OPENAI_API_KEY"] != "first-key" {
		t.Fatalf("missing key after create: %v", env)
	}

	root = NewRootCmd(&out, &errb)
	root.SetArgs([]string{"set", "key", "second-key"})
	if err := root.Execute(); err != nil {
		t.Fatalf("set key update failed: %v", err)
	}
	env, err = config.LoadEnvFile(envPath)
	if err != nil {
		t.Fatalf("read env failed: %v", err)
	}
	if env["OPENAI_API_KEY"] != "second-key" {
		t.Fatalf("key not updated correctly: %v", env)
	}

	if strings.TrimSpace(out.String()) != "" {
		t.Fatalf("expected empty stdout, got: %q", out.String())
	}
	if strings.TrimSpace(errb.String()) != "" {
		t.Fatalf("expected empty stderr, got: %q", errb.String())
	}
}

func TestSetKeyCommandForProvider(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	var out bytes.Buffer
	root := NewRootCmd(&out, &out)
	root.SetArgs([]string{"set", "key", "gem-key", "--provider", "gemini"})
	if err := root.Execute(); err != nil {
		t.Fatalf("set key failed: %v", err)
	}
	env, err := config.LoadEnvFile(filepath.Join(home, ".listory", ".env"))
	if err != nil {
		t.Fatal(err)
	}
	if env["GEMINI_API_KEY"] != "gem-key" {
		t.Fatalf("unexpected env: %v", env)
	}
}

func TestSetKeyCommandEmptyKey(t *testing.T) {
	var out bytes.Buffer
	root := NewRootCmd(&out, &out)
	root.SetArgs([]string{"set", "key", "   "})
	err := root.Execute()
	if err == nil || !strings.Contains(err.Error(), "API Key 不能为空") {
		t.Fatalf("expected empty key error, got %v", err)
	}
}
