// Package llm defines the language-model collaborators consumed by the
// messaging and knowledge modules. Implementations live alongside the
// interfaces; tests substitute in-memory fakes.
package llm

import "context"

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one role-tagged element of a generation request.
type Message struct {
	Role    Role
	Content string
}

func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// Completion is the result of one generation call. The annotation
// fields are optional model-derived signals; providers that do not emit
// them leave the pointers nil.
type Completion struct {
	Text       string
	TokensUsed int
	Confidence *float64
	Sentiment  *float64
	Intent     string
}

// Generator produces a chat completion for a role-tagged message list.
type Generator interface {
	Generate(ctx context.Context, messages []Message) (Completion, error)
}

// Embedder converts text into a fixed-dimension vector. Dimension is
// constant for a given model name.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Model() string
	Dimension() int
}
