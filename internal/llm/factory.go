package llm

import (
	"context"
	"fmt"
	"strings"
	"time"
)

type Settings struct {
	Provider string
	BaseURL  string
	APIKey   string
	Model    string
	Timeout  time.Duration
}

// NewClient returns the ModelClient for s.Provider.
func NewClient(ctx context.Context, s Settings) (ModelClient, error) {
	provider := strings.ToLower(strings.TrimSpace(s.Provider))
	if strings.TrimSpace(s.APIKey) == "" {
		return nil, &AuthError{Provider: provider, Err: fmt.Errorf("API KEY 为空")}
	}
	switch provider {
	case "openai":
		return NewOpenAIClient(s.APIKey, s.BaseURL, s.Model, s.Timeout), nil
	case "gemini":
		return NewGeminiClient(ctx, s.APIKey, s.Model)
	case "deepseek", "compatible", "claude":
		return NewHTTPClient(provider, s.BaseURL, s.APIKey, s.Model, s.Timeout), nil
	default:
		return nil, fmt.Errorf("不支持的 provider：%s", s.Provider)
	}
}
