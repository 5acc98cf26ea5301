package llm

// ChatCompletionStreamResponse represents a single chunk in a streaming response.
type ChatCompletionStreamResponse struct {
	ID      string         `json:"id"`
	Object  string         `json:"object"`  // Always "chat.completion.chunk"
	Created int64          `json:"created"` // Unix seconds, recomputed per chunk
	Model   string         `json:"model"`
	Choices []StreamChoice `json:"choices"`
}

// StreamChoice carries the incremental update of a chunk.
type StreamChoice struct {
	Index        int          `json:"index"`
	Delta        DeltaMessage `json:"delta"`
	FinishReason *string      `json:"finish_reason"` // null until the terminal chunk
}

// DeltaMessage is the partial message carried by a chunk. Unset fields are
// omitted, so the terminal chunk's delta serializes as {}.
type DeltaMessage struct {
	Role    *string `json:"role,omitempty"`
	Content *string `json:"content,omitempty"`
}

// IsEmpty reports whether the delta carries neither role nor content.
func (d DeltaMessage) IsEmpty() bool {
	return d.Role == nil && d.Content == nil
}
