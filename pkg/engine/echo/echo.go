// Package echo provides a deterministic engine that answers with the last user
// message. It needs no model weights or upstream and is used for local
// development and end-to-end tests of the serving pipeline.
package echo

import (
	"context"
	"strings"
	"time"

	"github.com/papercomputeco/chatserve/pkg/engine"
	"github.com/papercomputeco/chatserve/pkg/llm"
)

// Engine echoes the last user message, truncated to MaxTokens words.
type Engine struct {
	// Delay is slept before each streamed fragment to mimic token latency.
	Delay time.Duration
}

// New creates an echo Engine.
func New(delay time.Duration) *Engine {
	return &Engine{Delay: delay}
}

// Name identifies the engine in logs.
func (e *Engine) Name() string {
	return "echo"
}

// Generate returns the echoed completion.
func (e *Engine) Generate(ctx context.Context, req engine.Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return strings.Join(words(req), " "), nil
}

// GenerateStream emits the echoed completion one word at a time. The
// concatenated fragments equal the result of Generate.
func (e *Engine) GenerateStream(ctx context.Context, req engine.Request, emit engine.StreamHandler) error {
	ws := words(req)
	for i, w := range ws {
		if e.Delay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(e.Delay):
			}
		}

		if i < len(ws)-1 {
			w += " "
		}
		if err := emit(w); err != nil {
			return err
		}
	}
	return nil
}

func words(req engine.Request) []string {
	var last string
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == llm.RoleUser {
			last = req.Messages[i].Content
			break
		}
	}

	ws := strings.Fields(last)
	if req.MaxTokens > 0 && len(ws) > req.MaxTokens {
		ws = ws[:req.MaxTokens]
	}
	return ws
}
