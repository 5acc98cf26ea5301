// Package openai implements engine.Engine against an OpenAI-compatible
// upstream (vLLM, llama.cpp server, text-generation-inference, ...).
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	goopenai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/papercomputeco/chatserve/pkg/engine"
)

// Config configures the OpenAI-compatible engine.
type Config struct {
	// Upstream base URL, with or without the trailing /v1.
	URL string

	// APIKey is sent as a bearer token. May be empty for local servers.
	APIKey string

	// Model to run. Empty uses the model named in each request.
	Model string

	// Timeout bounds a whole upstream exchange, including streaming.
	Timeout time.Duration
}

// Engine generates text with an OpenAI-compatible upstream.
type Engine struct {
	config Config
	client *goopenai.Client
	logger *zap.Logger
}

// New creates an OpenAI-compatible engine.
func New(config Config, logger *zap.Logger) (*Engine, error) {
	if strings.TrimSpace(config.URL) == "" {
		return nil, errors.New("openai url is required")
	}

	clientConfig := goopenai.DefaultConfig(config.APIKey)
	clientConfig.BaseURL = baseURL(config.URL)
	clientConfig.HTTPClient = &http.Client{Timeout: config.Timeout}

	return &Engine{
		config: config,
		client: goopenai.NewClientWithConfig(clientConfig),
		logger: logger,
	}, nil
}

// Name identifies the engine in logs.
func (e *Engine) Name() string {
	return "openai"
}

// Generate requests a single-shot completion from the upstream.
func (e *Engine) Generate(ctx context.Context, req engine.Request) (string, error) {
	resp, err := e.client.CreateChatCompletion(ctx, e.chatRequest(req, false))
	if err != nil {
		return "", fmt.Errorf("openai request: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai response has no choices")
	}

	e.logger.Debug("received response from upstream",
		zap.String("model", resp.Model),
		zap.String("finish_reason", string(resp.Choices[0].FinishReason)),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
	)

	return resp.Choices[0].Message.Content, nil
}

// GenerateStream requests a streamed completion and emits each delta.
func (e *Engine) GenerateStream(ctx context.Context, req engine.Request, emit engine.StreamHandler) error {
	stream, err := e.client.CreateChatCompletionStream(ctx, e.chatRequest(req, true))
	if err != nil {
		return fmt.Errorf("openai request: %w", err)
	}
	defer stream.Close()

	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read stream: %w", err)
		}

		if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
			continue
		}
		if err := emit(chunk.Choices[0].Delta.Content); err != nil {
			return err
		}
	}
}

func (e *Engine) chatRequest(req engine.Request, stream bool) goopenai.ChatCompletionRequest {
	model := e.config.Model
	if model == "" {
		model = req.Model
	}

	msgs := make([]goopenai.ChatCompletionMessage, len(req.Messages))
	for i, m := range req.Messages {
		msgs[i] = goopenai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}

	// go-openai omits a zero temperature, which upstreams read as 1.0
	temperature := float32(req.Temperature)
	if temperature == 0 {
		temperature = math.SmallestNonzeroFloat32
	}

	return goopenai.ChatCompletionRequest{
		Model:       model,
		Messages:    msgs,
		MaxTokens:   req.MaxTokens,
		Temperature: temperature,
		Stream:      stream,
	}
}

func baseURL(raw string) string {
	base := strings.TrimRight(raw, "/")
	if strings.HasSuffix(base, "/v1") {
		return base
	}
	return base + "/v1"
}
