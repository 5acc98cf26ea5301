package llm

// Message roles accepted in a chat completion request.
const (
	RoleUser      = "user"
	RoleSystem    = "system"
	RoleAssistant = "assistant"
)

// Message represents a single message in a conversation.
type Message struct {
	Role    string `json:"role" validate:"oneof=user system assistant"` // "system", "user", "assistant"
	Content string `json:"content"`                                     // The message content
}
