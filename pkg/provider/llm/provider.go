// Package llm defines the Provider interface for language model backends.
//
// A provider wraps a remote or local model API (OpenAI-compatible servers,
// Ollama, llama.cpp, and friends) behind a uniform streaming interface.
// The dialogue pipeline consumes answers chunk by chunk and segments them
// into sentences on the fly, so streaming is the primary surface;
// Complete exists for warmup and one-shot uses.
//
// Implementations must be safe for concurrent use. Channels returned by
// Stream must be closed by the implementation when the stream ends or the
// supplied context is cancelled.
package llm

import "context"

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// FinishReasonError marks a chunk that carries a mid-stream failure
// description instead of model output.
const FinishReasonError = "error"

// Message is one turn of the conversation sent to the model.
type Message struct {
	Role    string
	Content string
}

// Request carries everything the model needs to produce an answer. At
// minimum Messages must be non-empty.
type Request struct {
	// SystemPrompt is injected ahead of the conversation. Providers
	// without a dedicated system surface prepend it as a system-role
	// message.
	SystemPrompt string

	// Messages is the ordered conversation history; the last entry is the
	// user turn driving the response.
	Messages []Message

	// Temperature controls output randomness. Zero means provider
	// default.
	Temperature float64

	// MaxTokens caps the completion length. Zero means provider default.
	MaxTokens int
}

// Chunk is a fragment of a streaming answer.
type Chunk struct {
	// Text is the incremental content. May be empty on a finish chunk.
	Text string

	// FinishReason is set on the final chunk: "stop", "length", or
	// FinishReasonError when Text carries an error description.
	FinishReason string
}

// Provider is the abstraction over any language model backend.
type Provider interface {
	// Stream sends req to the model and returns a channel emitting chunks
	// as they arrive. The channel is closed when generation finishes or
	// ctx is cancelled; callers must drain it. The initial error is
	// non-nil only when the stream cannot be started at all. Mid-stream
	// failures arrive as a chunk with FinishReasonError.
	Stream(ctx context.Context, req Request) (<-chan Chunk, error)

	// Complete sends req and waits for the full answer text.
	Complete(ctx context.Context, req Request) (string, error)
}
