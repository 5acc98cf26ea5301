package ollama

import "time"

// Message represents a single message in an Ollama conversation.
type Message struct {
	Role    string `json:"role"`    // "system", "user", "assistant"
	Content string `json:"content"` // The message content
}

// Options contains model inference parameters.
type Options struct {
	Temperature *float64 `json:"temperature,omitempty"` // Creativity (0.0-2.0)
	NumPredict  *int     `json:"num_predict,omitempty"` // Max tokens to generate
}

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Model    string    `json:"model"`             // Model name (e.g., "deepseek-coder:1.3b")
	Messages []Message `json:"messages"`          // Conversation history
	Stream   *bool     `json:"stream,omitempty"`  // Ollama defaults to streaming when unset
	Options  *Options  `json:"options,omitempty"` // Generation options
}

// ChatResponse is a non-streaming /api/chat response.
type ChatResponse struct {
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"created_at"`
	Message   Message   `json:"message"`
	Done      bool      `json:"done"`

	// Metrics (only present when done=true)
	PromptEvalCount int `json:"prompt_eval_count,omitempty"` // Tokens in prompt
	EvalCount       int `json:"eval_count,omitempty"`        // Generated tokens

	Error string `json:"error,omitempty"`
}

// StreamChunk is one NDJSON line of a streaming /api/chat response.
type StreamChunk struct {
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"created_at"`
	Message   Message   `json:"message"`
	Done      bool      `json:"done"`

	// Set instead of Message when generation fails mid-stream
	Error string `json:"error,omitempty"`
}
