// Package completion builds chat completion responses from engine output:
// the single-shot response with its token accounting, and the SSE frames of
// a streamed response.
package completion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/papercomputeco/chatserve/pkg/engine"
	"github.com/papercomputeco/chatserve/pkg/llm"
)

// ErrGeneration wraps every failure raised by the engine.
var ErrGeneration = errors.New("generation failed")

// CountWords approximates a token count by splitting on whitespace. It is a
// heuristic kept for compatibility, not a tokenizer.
func CountWords(text string) int {
	return len(strings.Fields(text))
}

// Assembler produces single-shot chat completion responses.
type Assembler struct {
	engine engine.Engine
	now    func() time.Time
}

// NewAssembler creates an Assembler generating with eng.
func NewAssembler(eng engine.Engine) *Assembler {
	return &Assembler{engine: eng, now: time.Now}
}

// Assemble calls the engine once with the full conversation and wraps the
// result as a single "stop" choice with approximate usage.
func (a *Assembler) Assemble(ctx context.Context, id string, req *llm.ChatCompletionRequest) (*llm.ChatCompletionResponse, error) {
	text, err := a.engine.Generate(ctx, engine.NewRequest(req))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGeneration, err)
	}

	promptTokens := CountWords(strings.Join(req.Contents(), " "))
	completionTokens := CountWords(text)

	return &llm.ChatCompletionResponse{
		ID:      id,
		Object:  llm.ObjectChatCompletion,
		Created: a.now().Unix(),
		Model:   req.Model,
		Choices: []llm.Choice{
			{
				Index:        0,
				Message:      llm.Message{Role: llm.RoleAssistant, Content: text},
				FinishReason: llm.FinishReasonStop,
			},
		},
		Usage: llm.NewUsage(promptTokens, completionTokens),
	}, nil
}
