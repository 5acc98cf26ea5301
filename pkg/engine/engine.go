// Package engine defines the boundary through which chatserve obtains generated
// text. Implementations wrap a concrete generation engine (a local model, an
// Ollama server, an OpenAI-compatible upstream); the serving pipeline only
// ever talks to the Engine interface.
package engine

import (
	"context"

	"github.com/papercomputeco/chatserve/pkg/llm"
)

// Request is the generation input derived from a validated chat completion request.
type Request struct {
	// Model requested by the client. Engines may ignore it in favour of a
	// configured model.
	Model string

	// Messages is the full conversation history, oldest first.
	Messages []llm.Message

	// MaxTokens is the generation budget.
	MaxTokens int

	// Temperature is the sampling temperature in [0, 2].
	Temperature float64
}

// NewRequest builds an engine Request from a validated chat completion request.
func NewRequest(req *llm.ChatCompletionRequest) Request {
	return Request{
		Model:       req.Model,
		Messages:    req.Messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
}

// StreamHandler receives generated fragments in generation order. Returning a
// non-nil error asks the engine to stop generating and return that error.
type StreamHandler func(fragment string) error

// Engine is a text-generation engine.
//
// One Engine value is constructed at startup and shared by every request.
// The serving pipeline never runs more than one generation per request
// against it, but concurrent requests do call it concurrently.
type Engine interface {
	// Generate blocks until the whole completion is available and returns it.
	Generate(ctx context.Context, req Request) (string, error)

	// GenerateStream blocks while pushing fragments into emit as soon as
	// they are produced, and returns once generation completes. Errors from
	// the engine or from emit are returned, never swallowed.
	GenerateStream(ctx context.Context, req Request, emit StreamHandler) error

	// Name identifies the engine in logs.
	Name() string
}
