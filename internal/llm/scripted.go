package llm

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Step is one scripted reply: either Text or Err.
type Step struct {
	Text string
	Err  error
}

// ScriptedClient replays a fixed sequence of replies. When the script runs
// out the last step repeats. It records every call it receives.
type ScriptedClient struct {
	mu    sync.Mutex
	steps []Step
	calls []Options
}

func NewScriptedClient(steps ...Step) *ScriptedClient {
	return &ScriptedClient{steps: steps}
}

func (c *ScriptedClient) Send(ctx context.Context, prompt Prompt, opts Options) (RawModelResponse, error) {
	if err := ctx.Err(); err != nil {
		return RawModelResponse{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, opts)
	if len(c.steps) == 0 {
		return RawModelResponse{}, errors.New("scripted client 没有预设回复")
	}
	i := len(c.calls) - 1
	if i >= len(c.steps) {
		i = len(c.steps) - 1
	}
	step := c.steps[i]
	if step.Err != nil {
		return RawModelResponse{}, step.Err
	}
	return RawModelResponse{
		Text:      step.Text,
		Attempt:   opts.Attempt,
		Latency:   time.Millisecond,
		Model:     opts.Model,
		Provider:  "scripted",
		RequestID: opts.RequestID,
	}, nil
}

// Calls returns the options of every call so far.
func (c *ScriptedClient) Calls() []Options {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Options(nil), c.calls...)
}
