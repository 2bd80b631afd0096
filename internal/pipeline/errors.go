package pipeline

import (
	"context"
	"errors"
	"fmt"

	"listory/internal/catalog"
	"listory/internal/extract"
	"listory/internal/llm"
)

type Kind string

const (
	KindConfiguration Kind = "configuration"
	KindExhausted     Kind = "exhausted"
	KindRefusal       Kind = "refusal"
	KindAuth          Kind = "auth"
	KindParse         Kind = "parse"
	KindCanceled      Kind = "canceled"
)

// GenerationError is the only error Generate returns. Err never carries raw
// model text.
type GenerationError struct {
	Kind     Kind
	Attempts int
	Err      error
}

func (e *GenerationError) Error() string {
	if e.Attempts > 0 {
		return fmt.Sprintf("生成失败（%s，已尝试 %d 次）：%v", e.Kind, e.Attempts, e.Err)
	}
	return fmt.Sprintf("生成失败（%s）：%v", e.Kind, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// KindOf returns the kind of a *GenerationError in err's chain, or "".
func KindOf(err error) Kind {
	var ge *GenerationError
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return ""
}

// classify maps err to a Kind. Only the caller's own context makes a
// failure canceled; a per-call timeout is a transient model error.
func classify(ctx context.Context, err error) Kind {
	var cfgErr *catalog.ConfigurationError
	var pf *extract.ParseFailure
	switch {
	case ctx.Err() != nil:
		return KindCanceled
	case llm.IsTransient(err):
		return KindExhausted
	case errors.As(err, &cfgErr):
		return KindConfiguration
	case llm.IsRefusal(err):
		return KindRefusal
	case llm.IsAuth(err):
		return KindAuth
	case errors.As(err, &pf):
		return KindParse
	default:
		return KindExhausted
	}
}

func wrap(ctx context.Context, err error, attempts int) *GenerationError {
	var ge *GenerationError
	if errors.As(err, &ge) {
		return ge
	}
	return &GenerationError{Kind: classify(ctx, err), Attempts: attempts, Err: err}
}
