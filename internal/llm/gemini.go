package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"
)

// GeminiClient sends prompts through the Google Gen AI SDK.
type GeminiClient struct {
	client *genai.Client
	model  string
}

func NewGeminiClient(ctx context.Context, apiKey, model string) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("创建 gemini 客户端失败：%w", err)
	}
	return &GeminiClient{client: client, model: model}, nil
}

func (c *GeminiClient) Send(ctx context.Context, prompt Prompt, opts Options) (RawModelResponse, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}
	model := opts.Model
	if strings.TrimSpace(model) == "" {
		model = c.model
	}
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: prompt.System}},
		},
	}
	if opts.JSONMode {
		cfg.ResponseMIMEType = "application/json"
	}
	if opts.Temperature > 0 {
		cfg.Temperature = genai.Ptr[float32](float32(opts.Temperature))
	}

	start := time.Now()
	resp, err := c.client.Models.GenerateContent(ctx, model, genai.Text(prompt.User), cfg)
	if err != nil {
		return RawModelResponse{}, classifyGeminiError(err)
	}
	if reason := geminiRefusal(resp); reason != "" {
		return RawModelResponse{}, &RefusalError{Provider: "gemini", Reason: reason}
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return RawModelResponse{}, &TransientError{Provider: "gemini", Err: errors.New("gemini 返回为空")}
	}
	return RawModelResponse{
		Text:      text,
		Attempt:   opts.Attempt,
		Latency:   time.Since(start),
		Model:     model,
		Provider:  "gemini",
		RequestID: opts.RequestID,
	}, nil
}

func geminiRefusal(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return string(resp.PromptFeedback.BlockReason)
	}
	if len(resp.Candidates) == 0 {
		return ""
	}
	switch resp.Candidates[0].FinishReason {
	case genai.FinishReasonSafety, genai.FinishReasonProhibitedContent, genai.FinishReasonBlocklist, genai.FinishReasonSPII:
		return string(resp.Candidates[0].FinishReason)
	}
	return ""
}

func classifyGeminiError(err error) error {
	var apiErr *genai.APIError
	if errors.As(err, &apiErr) {
		return classifyStatus("gemini", apiErr.Code, apiErr.Message, "")
	}
	var apiVal genai.APIError
	if errors.As(err, &apiVal) {
		return classifyStatus("gemini", apiVal.Code, apiVal.Message, "")
	}
	return classifyTransport("gemini", err)
}
