package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Prompt is the rendered model input.
type Prompt struct {
	System string
	User   string
}

// Options vary per attempt.
type Options struct {
	Model       string
	Temperature float64
	FormatHint  string
	JSONMode    bool
	Attempt     int
	RequestID   string
	Timeout     time.Duration
}

// RawModelResponse is the unprocessed text of one model call. It travels
// explicitly from the client to the extractor and is never logged verbatim.
type RawModelResponse struct {
	Text      string
	Attempt   int
	Latency   time.Duration
	Model     string
	Provider  string
	RequestID string
}

// ModelClient sends one prompt to a text generation model.
type ModelClient interface {
	Send(ctx context.Context, prompt Prompt, opts Options) (RawModelResponse, error)
}

// HTTPClient talks to chat endpoints over plain JSON HTTP: DeepSeek,
// OpenAI compatible gateways and the Anthropic messages API.
type HTTPClient struct {
	Provider   string
	BaseURL    string
	APIKey     string
	Model      string
	httpClient *http.Client
}

func NewHTTPClient(provider, baseURL, apiKey, model string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &HTTPClient{
		Provider:   strings.ToLower(strings.TrimSpace(provider)),
		BaseURL:    baseURL,
		APIKey:     apiKey,
		Model:      model,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) Send(ctx context.Context, prompt Prompt, opts Options) (RawModelResponse, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}
	model := opts.Model
	if strings.TrimSpace(model) == "" {
		model = c.Model
	}
	start := time.Now()
	var (
		text string
		err  error
	)
	switch c.Provider {
	case "deepseek":
		text, err = c.chatCompletions(ctx, joinURL(c.BaseURL, "/chat/completions"), model, prompt, opts)
	case "compatible", "openai":
		text, err = c.chatCompletions(ctx, joinURL(c.BaseURL, "/v1/chat/completions"), model, prompt, opts)
	case "claude":
		text, err = c.claudeMessages(ctx, model, prompt, opts)
	default:
		err = fmt.Errorf("不支持的 provider：%s", c.Provider)
	}
	if err != nil {
		return RawModelResponse{}, err
	}
	return RawModelResponse{
		Text:      strings.TrimSpace(text),
		Attempt:   opts.Attempt,
		Latency:   time.Since(start),
		Model:     model,
		Provider:  c.Provider,
		RequestID: opts.RequestID,
	}, nil
}

func (c *HTTPClient) chatCompletions(ctx context.Context, endpoint, model string, prompt Prompt, opts Options) (string, error) {
	payload := map[string]any{
		"model": model,
		"messages": []map[string]string{
			{"role": "system", "content": prompt.System},
			{"role": "user", "content": prompt.User},
		},
		"stream": false,
	}
	if opts.Temperature > 0 {
		payload["temperature"] = opts.Temperature
	}
	if opts.JSONMode {
		payload["response_format"] = map[string]string{"type": "json_object"}
	}
	var resp struct {
		Choices []struct {
			FinishReason string `json:"finish_reason"`
			Message      struct {
				Content string `json:"content"`
				Refusal string `json:"refusal"`
			} `json:"message"`
		} `json:"choices"`
		Error *struct {
			Message string `json:"message"`
			Code    any    `json:"code"`
		} `json:"error"`
	}
	if err := c.doJSON(ctx, endpoint, c.APIKey, nil, payload, &resp); err != nil {
		return "", err
	}
	if resp.Error != nil {
		return "", fmt.Errorf("%s chat completions 错误：%s", c.Provider, resp.Error.Message)
	}
	if len(resp.Choices) == 0 {
		return "", &TransientError{Provider: c.Provider, Err: errors.New("chat completions 返回为空")}
	}
	choice := resp.Choices[0]
	if strings.TrimSpace(choice.Message.Refusal) != "" {
		return "", &RefusalError{Provider: c.Provider, Reason: choice.Message.Refusal}
	}
	if choice.FinishReason == "content_filter" {
		return "", &RefusalError{Provider: c.Provider, Reason: "content_filter"}
	}
	text := strings.TrimSpace(choice.Message.Content)
	if text == "" {
		return "", &TransientError{Provider: c.Provider, Err: errors.New("chat completions 内容为空")}
	}
	return text, nil
}

func (c *HTTPClient) claudeMessages(ctx context.Context, model string, prompt Prompt, opts Options) (string, error) {
	payload := map[string]any{
		"model":      model,
		"max_tokens": 8192,
		"system":     prompt.System,
		"messages": []map[string]string{
			{"role": "user", "content": prompt.User},
		},
	}
	if opts.Temperature > 0 {
		payload["temperature"] = opts.Temperature
	}
	var resp struct {
		StopReason string `json:"stop_reason"`
		Content    []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	headers := map[string]string{
		"x-api-key":         c.APIKey,
		"anthropic-version": "2023-06-01",
	}
	if err := c.doJSON(ctx, joinURL(c.BaseURL, "/v1/messages"), "", headers, payload, &resp); err != nil {
		return "", err
	}
	if resp.Error != nil {
		return "", fmt.Errorf("claude API 错误：%s", resp.Error.Message)
	}
	if resp.StopReason == "refusal" {
		return "", &RefusalError{Provider: c.Provider, Reason: "refusal"}
	}
	for _, ctn := range resp.Content {
		if strings.TrimSpace(ctn.Text) != "" {
			return ctn.Text, nil
		}
	}
	return "", &TransientError{Provider: c.Provider, Err: errors.New("claude 返回文本为空")}
}

func (c *HTTPClient) doJSON(ctx context.Context, endpoint, bearer string, extraHeaders map[string]string, in any, out any) error {
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(in); err != nil {
		return fmt.Errorf("编码请求失败：%w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, buf)
	if err != nil {
		return fmt.Errorf("创建请求失败：%w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if strings.TrimSpace(bearer) != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	for k, v := range extraHeaders {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classifyTransport(c.Provider, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransientError{Provider: c.Provider, Err: fmt.Errorf("读取响应失败：%w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw := strings.TrimSpace(string(body))
		return classifyStatus(c.Provider, resp.StatusCode, providerMessage(raw), raw)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &ResponseError{StatusCode: resp.StatusCode, Body: string(body), Err: fmt.Errorf("解析响应失败：%w", err)}
	}
	return nil
}

func joinURL(base, path string) string {
	base = strings.TrimSpace(base)
	if base == "" {
		base = "https://api.openai.com"
	}
	base = strings.TrimSuffix(base, "/")
	if strings.HasSuffix(base, "/v1") && strings.HasPrefix(path, "/v1/") {
		path = strings.TrimPrefix(path, "/v1")
	}
	if strings.HasPrefix(path, "/") {
		return base + path
	}
	return base + "/" + path
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
