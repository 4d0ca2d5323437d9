package config

import (
	"errors"
	"sync"

	"github.com/auricle-ai/auricle/internal/task"
)

// ErrVoiceNotRegistered is returned by lookup methods when no voice is
// registered under the requested id.
var ErrVoiceNotRegistered = errors.New("config: voice not registered")

// VoiceConfig describes one selectable synthesis voice.
type VoiceConfig struct {
	// ID identifies the voice in the API and in [TTSConfig.Voice].
	ID string `json:"id"`

	// Name is the display name shown to the user.
	Name string `json:"name"`

	// Language is the language the voice speaks.
	Language task.Language `json:"language"`

	// Preset is the Kokoro voice preset behind this entry.
	Preset string `json:"preset"`

	// Speed is the default speaking rate for this voice.
	Speed float64 `json:"speed"`

	// Description is a short blurb for the model picker.
	Description string `json:"description,omitempty"`
}

// VoiceRegistry maps voice ids to their configurations and preserves
// registration order for listing. It is safe for concurrent use.
type VoiceRegistry struct {
	mu     sync.RWMutex
	voices map[string]VoiceConfig
	order  []string
}

// NewVoiceRegistry returns an empty, ready-to-use [VoiceRegistry].
func NewVoiceRegistry() *VoiceRegistry {
	return &VoiceRegistry{voices: make(map[string]VoiceConfig)}
}

// DefaultVoiceRegistry returns a registry pre-populated with the built-in
// Kokoro voices.
func DefaultVoiceRegistry() *VoiceRegistry {
	r := NewVoiceRegistry()
	for _, v := range []VoiceConfig{
		{ID: "af_heart", Name: "Heart", Language: task.LanguageEnglish, Preset: "af_heart", Speed: 1.0, Description: "Warm American English female voice"},
		{ID: "af_bella", Name: "Bella", Language: task.LanguageEnglish, Preset: "af_bella", Speed: 1.0, Description: "Bright American English female voice"},
		{ID: "am_michael", Name: "Michael", Language: task.LanguageEnglish, Preset: "am_michael", Speed: 1.0, Description: "Calm American English male voice"},
		{ID: "bf_emma", Name: "Emma", Language: task.LanguageEnglish, Preset: "bf_emma", Speed: 1.0, Description: "British English female voice"},
		{ID: "zf_xiaoxiao", Name: "小筱", Language: task.LanguageChinese, Preset: "zf_xiaoxiao", Speed: 1.0, Description: "自然流畅的中文女声"},
		{ID: "zm_yunxi", Name: "云希", Language: task.LanguageChinese, Preset: "zm_yunxi", Speed: 1.0, Description: "沉稳清晰的中文男声"},
	} {
		r.Register(v)
	}
	return r
}

// Register adds or replaces the voice under its id.
func (r *VoiceRegistry) Register(v VoiceConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.voices[v.ID]; !exists {
		r.order = append(r.order, v.ID)
	}
	r.voices[v.ID] = v
}

// Get returns the voice registered under id.
func (r *VoiceRegistry) Get(id string) (VoiceConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.voices[id]
	if !ok {
		return VoiceConfig{}, ErrVoiceNotRegistered
	}
	return v, nil
}

// All returns every registered voice in registration order.
func (r *VoiceRegistry) All() []VoiceConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]VoiceConfig, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.voices[id])
	}
	return out
}

// DefaultForLanguage returns the first registered voice speaking lang.
func (r *VoiceRegistry) DefaultForLanguage(lang task.Language) (VoiceConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, id := range r.order {
		if r.voices[id].Language == lang {
			return r.voices[id], nil
		}
	}
	return VoiceConfig{}, ErrVoiceNotRegistered
}
