package llm

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// OpenAIClient sends prompts through the official OpenAI SDK. Retries are
// left to the pipeline, so the SDK's own retry loop is disabled.
type OpenAIClient struct {
	client openai.Client
	model  string
}

func NewOpenAIClient(apiKey, baseURL, model string, timeout time.Duration) *OpenAIClient {
	opts := []option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}
	if strings.TrimSpace(baseURL) != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(timeout))
	}
	return &OpenAIClient{client: openai.NewClient(opts...), model: model}
}

func (c *OpenAIClient) Send(ctx context.Context, prompt Prompt, opts Options) (RawModelResponse, error) {
	model := opts.Model
	if strings.TrimSpace(model) == "" {
		model = c.model
	}
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(prompt.System),
			openai.UserMessage(prompt.User),
		},
	}
	if opts.Temperature > 0 {
		params.Temperature = openai.Float(opts.Temperature)
	}
	if opts.JSONMode {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}

	start := time.Now()
	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return RawModelResponse{}, classifyOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return RawModelResponse{}, &TransientError{Provider: "openai", Err: errors.New("chat completions 返回为空")}
	}
	choice := resp.Choices[0]
	if strings.TrimSpace(choice.Message.Refusal) != "" {
		return RawModelResponse{}, &RefusalError{Provider: "openai", Reason: choice.Message.Refusal}
	}
	if choice.FinishReason == "content_filter" {
		return RawModelResponse{}, &RefusalError{Provider: "openai", Reason: "content_filter"}
	}
	text := strings.TrimSpace(choice.Message.Content)
	if text == "" {
		return RawModelResponse{}, &TransientError{Provider: "openai", Err: errors.New("chat completions 内容为空")}
	}
	return RawModelResponse{
		Text:      text,
		Attempt:   opts.Attempt,
		Latency:   time.Since(start),
		Model:     model,
		Provider:  "openai",
		RequestID: opts.RequestID,
	}, nil
}

func classifyOpenAIError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return classifyStatus("openai", apiErr.StatusCode, apiErr.Message, apiErr.RawJSON())
	}
	return classifyTransport("openai", err)
}
