package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/auricle-ai/auricle/internal/task"
)

// Default system prompts per language. User overrides from the prompt store
// take precedence.
const (
	ChineseSystemPrompt = "你是AI助手。请以自然流畅的中文口语化表达直接回答问题，避免冗余的思考过程。" +
		"你的回答第一句话必须少于十个字。每段回答控制在二到三句话，既不要过短也不要过长，以适应对话语境。" +
		"回答应准确、精炼且有依据。"

	EnglishSystemPrompt = "You are an AI assistant. " +
		"Please answer directly and naturally, using conversational English, without showing your thinking process. " +
		"Your first sentence must be less than 10 words. " +
		"Your responses should be accurate, concise, and well-supported, ideally around 2-3 sentences long to ensure a good conversational flow."
)

// JSON keys of the user prompt document.
const (
	chinesePromptKey = "chinese_prompt"
	englishPromptKey = "english_prompt"
)

// noThinkDirective suppresses chain-of-thought output on models that
// support it. It is appended to every effective prompt exactly once.
const noThinkDirective = "/no_think"

// PromptStore persists user-customized system prompts as a JSON document in
// the user's configuration directory. Reads are served from an in-memory
// cache; updates write through. It is safe for concurrent use.
type PromptStore struct {
	path string
	log  *slog.Logger

	mu    sync.Mutex
	cache map[string]string
}

// NewPromptStore opens the store at its conventional location,
// os.UserConfigDir()/auricle/user_prompts.json.
func NewPromptStore(log *slog.Logger) (*PromptStore, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("config: locate user config dir: %w", err)
	}
	return NewPromptStoreAt(filepath.Join(dir, "auricle", "user_prompts.json"), log), nil
}

// NewPromptStoreAt opens the store backed by the given file path.
func NewPromptStoreAt(path string, log *slog.Logger) *PromptStore {
	if log == nil {
		log = slog.Default()
	}
	return &PromptStore{path: path, log: log}
}

// Prompt returns the effective system prompt for lang with the no-think
// directive appended. It satisfies the prompt lookup the answer stage takes.
func (s *PromptStore) Prompt(lang task.Language) string {
	prompt := s.RawPrompt(lang)
	if !strings.Contains(prompt, noThinkDirective) {
		prompt = strings.TrimRight(prompt, " \t\n") + "\n" + noThinkDirective
	}
	return prompt
}

// RawPrompt returns the prompt for lang without the no-think directive,
// suitable for display to the user.
func (s *PromptStore) RawPrompt(lang task.Language) string {
	prompts := s.load()
	if lang == task.LanguageChinese {
		if p, ok := prompts[chinesePromptKey]; ok {
			return p
		}
		return ChineseSystemPrompt
	}
	if p, ok := prompts[englishPromptKey]; ok {
		return p
	}
	return EnglishSystemPrompt
}

// DefaultPrompt returns the built-in prompt for lang.
func DefaultPrompt(lang task.Language) string {
	if lang == task.LanguageChinese {
		return ChineseSystemPrompt
	}
	return EnglishSystemPrompt
}

// IsCustom reports whether any user override is stored.
func (s *PromptStore) IsCustom() bool {
	return len(s.load()) > 0
}

// Update overwrites the prompts given as non-nil pointers and persists the
// document. Nil fields keep their current value.
func (s *PromptStore) Update(chinese, english *string) error {
	if chinese == nil && english == nil {
		return errors.New("config: no prompt fields to update")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prompts := s.loadLocked()
	updated := make(map[string]string, len(prompts)+2)
	for k, v := range prompts {
		updated[k] = v
	}
	if chinese != nil {
		updated[chinesePromptKey] = *chinese
	}
	if english != nil {
		updated[englishPromptKey] = *english
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("config: create prompt store dir: %w", err)
	}
	doc, err := json.MarshalIndent(updated, "", "    ")
	if err != nil {
		return fmt.Errorf("config: encode prompts: %w", err)
	}
	if err := os.WriteFile(s.path, doc, 0o644); err != nil {
		return fmt.Errorf("config: write %q: %w", s.path, err)
	}

	s.cache = updated
	s.log.Info("user prompts saved", "path", s.path)
	return nil
}

// Reset removes the stored document, reverting both languages to their
// built-in defaults.
func (s *PromptStore) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("config: remove %q: %w", s.path, err)
	}
	s.cache = map[string]string{}
	s.log.Info("user prompts reset to defaults")
	return nil
}

func (s *PromptStore) load() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

func (s *PromptStore) loadLocked() map[string]string {
	if s.cache != nil {
		return s.cache
	}

	doc, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.log.Error("failed to read user prompts, using defaults", "path", s.path, "error", err)
		}
		s.cache = map[string]string{}
		return s.cache
	}

	var prompts map[string]string
	if err := json.Unmarshal(doc, &prompts); err != nil {
		s.log.Error("failed to decode user prompts, using defaults", "path", s.path, "error", err)
		s.cache = map[string]string{}
		return s.cache
	}

	s.cache = prompts
	return s.cache
}
