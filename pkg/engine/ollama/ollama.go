// Package ollama implements engine.Engine on top of an Ollama server's
// /api/chat endpoint.
package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/papercomputeco/chatserve/pkg/engine"
)

// Config configures the Ollama engine.
type Config struct {
	// Upstream Ollama URL (e.g., "http://localhost:11434")
	URL string

	// Model to run. Empty uses the model named in each request.
	Model string

	// Timeout bounds a whole upstream exchange, including streaming.
	Timeout time.Duration
}

// Engine generates text with an Ollama server.
type Engine struct {
	config     Config
	logger     *zap.Logger
	httpClient *http.Client
}

// New creates an Ollama engine.
func New(config Config, logger *zap.Logger) (*Engine, error) {
	if strings.TrimSpace(config.URL) == "" {
		return nil, errors.New("ollama url is required")
	}
	config.URL = strings.TrimRight(config.URL, "/")

	return &Engine{
		config: config,
		logger: logger,
		httpClient: &http.Client{
			// LLM requests can be slow, especially on CPU
			Timeout: config.Timeout,
		},
	}, nil
}

// Name identifies the engine in logs.
func (e *Engine) Name() string {
	return "ollama"
}

// Generate sends a non-streaming chat request and returns the assistant content.
func (e *Engine) Generate(ctx context.Context, req engine.Request) (string, error) {
	httpResp, err := e.post(ctx, e.chatRequest(req, false))
	if err != nil {
		return "", err
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var resp ChatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}
	if resp.Error != "" {
		return "", fmt.Errorf("ollama error: %s", resp.Error)
	}

	e.logger.Debug("received response from upstream",
		zap.String("model", resp.Model),
		zap.Int("prompt_eval_count", resp.PromptEvalCount),
		zap.Int("eval_count", resp.EvalCount),
	)

	return resp.Message.Content, nil
}

// GenerateStream sends a streaming chat request and emits each chunk's content.
func (e *Engine) GenerateStream(ctx context.Context, req engine.Request, emit engine.StreamHandler) error {
	httpResp, err := e.post(ctx, e.chatRequest(req, true))
	if err != nil {
		return err
	}
	defer httpResp.Body.Close()

	scanner := bufio.NewScanner(httpResp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var chunk StreamChunk
		if err := json.Unmarshal(line, &chunk); err != nil {
			return fmt.Errorf("decode stream chunk: %w", err)
		}
		if chunk.Error != "" {
			return fmt.Errorf("ollama error: %s", chunk.Error)
		}

		if chunk.Message.Content != "" {
			if err := emit(chunk.Message.Content); err != nil {
				return err
			}
		}

		if chunk.Done {
			return nil
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read stream: %w", err)
	}
	return errors.New("ollama stream ended without a done chunk")
}

func (e *Engine) chatRequest(req engine.Request, stream bool) *ChatRequest {
	model := e.config.Model
	if model == "" {
		model = req.Model
	}

	msgs := make([]Message, len(req.Messages))
	for i, m := range req.Messages {
		msgs[i] = Message{Role: m.Role, Content: m.Content}
	}

	temperature := req.Temperature
	numPredict := req.MaxTokens

	return &ChatRequest{
		Model:    model,
		Messages: msgs,
		Stream:   &stream,
		Options: &Options{
			Temperature: &temperature,
			NumPredict:  &numPredict,
		},
	}
}

// post sends req to /api/chat and returns the response once the upstream
// answered 200. The caller closes the body.
func (e *Engine) post(ctx context.Context, req *ChatRequest) (*http.Response, error) {
	reqBody, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	upstreamURL := e.config.URL + "/api/chat"
	e.logger.Debug("forwarding request to upstream",
		zap.String("url", upstreamURL),
		zap.String("model", req.Model),
		zap.Bool("stream", *req.Stream),
		zap.Int("body_size", len(reqBody)),
	)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, upstreamURL, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		defer httpResp.Body.Close()
		body, _ := io.ReadAll(httpResp.Body)
		return nil, fmt.Errorf("upstream returned %d: %s", httpResp.StatusCode, string(body))
	}

	return httpResp, nil
}
