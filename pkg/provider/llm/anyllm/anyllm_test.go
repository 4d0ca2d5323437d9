package anyllm

import (
	"testing"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/auricle-ai/auricle/pkg/provider/llm"
)

func TestNew_Validation(t *testing.T) {
	if _, err := New("", "qwen3-8b"); err == nil {
		t.Error("empty provider name accepted")
	}
	if _, err := New("llamacpp", ""); err == nil {
		t.Error("empty model accepted")
	}
	if _, err := New("fakecloud", "some-model", anyllmlib.WithAPIKey("dummy")); err == nil {
		t.Error("unsupported backend accepted")
	}
}

func TestNew_OpenAIRequiresKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	if _, err := New("openai", "gpt-4o"); err == nil {
		t.Error("openai backend built without an API key")
	}

	p, err := New("openai", "gpt-4o", anyllmlib.WithAPIKey("sk-test"))
	if err != nil {
		t.Fatalf("New with key: %v", err)
	}
	if p.model != "gpt-4o" {
		t.Errorf("model = %q, want gpt-4o", p.model)
	}
}

func TestConvenienceConstructors(t *testing.T) {
	tests := []struct {
		name string
		fn   func() (*Provider, error)
	}{
		{"NewOpenAI", func() (*Provider, error) { return NewOpenAI("gpt-4o", anyllmlib.WithAPIKey("sk-test")) }},
		{"NewOllama", func() (*Provider, error) { return NewOllama("qwen3:8b") }},
		{"NewLlamaCpp", func() (*Provider, error) { return NewLlamaCpp("qwen3-8b") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := tt.fn()
			if err != nil {
				t.Fatalf("%s: %v", tt.name, err)
			}
			if p == nil {
				t.Fatalf("%s returned a nil provider", tt.name)
			}
		})
	}
}

func TestBuildParams(t *testing.T) {
	t.Parallel()
	p := &Provider{model: "qwen3-8b"}

	params := p.buildParams(llm.Request{
		SystemPrompt: "You are concise.",
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: "hello"},
			{Role: llm.RoleAssistant, Content: "hi"},
		},
		Temperature: 0.7,
		MaxTokens:   256,
	})

	if params.Model != "qwen3-8b" {
		t.Errorf("model = %q", params.Model)
	}
	if len(params.Messages) != 3 {
		t.Fatalf("messages = %d, want 3 with system prompt prepended", len(params.Messages))
	}
	if params.Messages[0].Role != anyllmlib.RoleSystem || params.Messages[0].ContentString() != "You are concise." {
		t.Errorf("first message = %+v, want system prompt", params.Messages[0])
	}
	if params.Messages[2].ContentString() != "hi" {
		t.Errorf("last message content = %q", params.Messages[2].ContentString())
	}
	if params.Temperature == nil || *params.Temperature != 0.7 {
		t.Error("temperature not forwarded")
	}
	if params.MaxTokens == nil || *params.MaxTokens != 256 {
		t.Error("max tokens not forwarded")
	}
}

func TestBuildParams_ZeroMeansBackendDefault(t *testing.T) {
	t.Parallel()
	p := &Provider{model: "qwen3-8b"}

	params := p.buildParams(llm.Request{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "hello"}},
	})
	if len(params.Messages) != 1 {
		t.Errorf("messages = %d, want 1 without a system prompt", len(params.Messages))
	}
	if params.Temperature != nil {
		t.Error("zero temperature should leave the backend default")
	}
	if params.MaxTokens != nil {
		t.Error("zero max tokens should leave the backend default")
	}
}
