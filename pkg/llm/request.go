package llm

// Request defaults applied when a field is absent or null.
const (
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 4096
)

// ChatCompletionRequest represents an OpenAI-compatible chat completion request.
type ChatCompletionRequest struct {
	Model       string    `json:"model"`                                   // Model name echoed back in responses
	Messages    []Message `json:"messages" validate:"required,min=1,dive"` // Conversation history, oldest first
	Temperature float64   `json:"temperature" validate:"gte=0,lte=2"`      // Sampling temperature (0.0-2.0)
	MaxTokens   int       `json:"max_tokens" validate:"gt=0"`              // Generation budget
	Stream      bool      `json:"stream"`                                  // Whether to stream SSE chunks
}

// NewChatCompletionRequest returns a request with every optional field set
// to its default.
func NewChatCompletionRequest() *ChatCompletionRequest {
	return &ChatCompletionRequest{
		Temperature: DefaultTemperature,
		MaxTokens:   DefaultMaxTokens,
	}
}

// Contents returns the content of every message in order.
func (r *ChatCompletionRequest) Contents() []string {
	contents := make([]string, len(r.Messages))
	for i, m := range r.Messages {
		contents[i] = m.Content
	}
	return contents
}
