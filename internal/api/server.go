// Package api exposes the HTTP control surface of the voice dialogue
// system: session lifecycle, engine settings, prompt customization, the
// websocket event stream, and operational endpoints.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/auricle-ai/auricle/internal/config"
	"github.com/auricle-ai/auricle/internal/health"
	"github.com/auricle-ai/auricle/internal/observe"
	"github.com/auricle-ai/auricle/internal/service"
	"github.com/auricle-ai/auricle/internal/task"
)

// Server assembles the HTTP routes over the running pipeline.
type Server struct {
	cfg     *config.Config
	system  *System
	manager *service.Manager
	prompts *config.PromptStore
	voices  *config.VoiceRegistry
	loader  *voiceLoader
	ws      http.Handler
	health  *health.Handler
	metrics *observe.Metrics
	log     *slog.Logger
}

// Options carries the collaborators of the HTTP server.
type Options struct {
	Config       *config.Config
	System       *System
	Manager      *service.Manager
	Prompts      *config.PromptStore
	Voices       *config.VoiceRegistry
	VoiceSwapper VoiceSwapper
	// CurrentVoice is the voice id loaded at startup.
	CurrentVoice string
	// WebSocket serves GET /api/v1/ws. Usually the hub's handler.
	WebSocket http.Handler
	Health    *health.Handler
	Metrics   *observe.Metrics
	Log       *slog.Logger
}

// NewServer builds the server. Nil optional fields fall back to defaults.
func NewServer(opts Options) *Server {
	if opts.Metrics == nil {
		opts.Metrics = observe.DefaultMetrics()
	}
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	if opts.Health == nil {
		opts.Health = health.New()
	}
	if opts.Voices == nil {
		opts.Voices = config.DefaultVoiceRegistry()
	}
	return &Server{
		cfg:     opts.Config,
		system:  opts.System,
		manager: opts.Manager,
		prompts: opts.Prompts,
		voices:  opts.Voices,
		loader:  newVoiceLoader(opts.Voices, opts.VoiceSwapper, opts.CurrentVoice, opts.Log),
		ws:      opts.WebSocket,
		health:  opts.Health,
		metrics: opts.Metrics,
		log:     opts.Log,
	}
}

// Handler returns the full route tree wrapped in the request middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/system/start", s.handleSystemStart)
	mux.HandleFunc("POST /api/v1/system/stop", s.handleSystemStop)
	mux.HandleFunc("POST /api/v1/system/restart", s.handleSystemRestart)
	mux.HandleFunc("GET /api/v1/system/status", s.handleSystemStatus)

	mux.HandleFunc("GET /api/v1/asr/languages", s.handleASRLanguages)

	mux.HandleFunc("GET /api/v1/tts/models", s.handleTTSModels)
	mux.HandleFunc("POST /api/v1/tts/models/load", s.handleTTSModelLoad)
	mux.HandleFunc("GET /api/v1/tts/models/status", s.handleTTSModelStatus)

	mux.HandleFunc("GET /api/v1/settings/prompts", s.handlePromptsGet)
	mux.HandleFunc("POST /api/v1/settings/prompts", s.handlePromptsUpdate)
	mux.HandleFunc("DELETE /api/v1/settings/prompts", s.handlePromptsReset)
	mux.HandleFunc("GET /api/v1/settings/prompts/default", s.handlePromptsDefault)

	if s.ws != nil {
		mux.Handle("GET /api/v1/ws", s.ws)
	}

	mux.Handle("GET /metrics", promhttp.Handler())
	s.health.Register(mux)

	return observe.Middleware(s.metrics)(mux)
}

// ── System ─────────────────────────────────────────────────────────────────────

type systemStartRequest struct {
	EnableEchoCancellation bool `json:"enable_echo_cancellation"`
}

type systemResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type systemStatusResponse struct {
	Status        string                `json:"status"`
	UptimeSeconds float64               `json:"uptime_seconds"`
	Services      service.ManagerStatus `json:"services"`
}

func (s *Server) handleSystemStart(w http.ResponseWriter, r *http.Request) {
	var req systemStartRequest
	if err := decodeOptionalBody(r, &req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	// Startup outlives the request; the handler answers 202 while the
	// capture services are still coming up.
	if !s.system.Start(context.WithoutCancel(r.Context()), req.EnableEchoCancellation) {
		writeJSON(w, http.StatusOK, systemResponse{Success: false, Message: "system is already running or starting"})
		return
	}
	writeJSON(w, http.StatusAccepted, systemResponse{Success: true, Message: "system start accepted"})
}

func (s *Server) handleSystemStop(w http.ResponseWriter, _ *http.Request) {
	if !s.system.Stop() {
		writeJSON(w, http.StatusOK, systemResponse{Success: false, Message: "system is already stopped"})
		return
	}
	writeJSON(w, http.StatusOK, systemResponse{Success: true, Message: "system stopped"})
}

func (s *Server) handleSystemRestart(w http.ResponseWriter, r *http.Request) {
	var req systemStartRequest
	if err := decodeOptionalBody(r, &req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	s.system.Restart(context.WithoutCancel(r.Context()), req.EnableEchoCancellation)
	writeJSON(w, http.StatusAccepted, systemResponse{Success: true, Message: "system restart accepted"})
}

func (s *Server) handleSystemStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, systemStatusResponse{
		Status:        s.system.Status(),
		UptimeSeconds: s.system.Uptime().Round(time.Millisecond).Seconds(),
		Services:      s.manager.Status(),
	})
}

// ── ASR ────────────────────────────────────────────────────────────────────────

type languagesResponse struct {
	Languages []string `json:"languages"`
	Current   string   `json:"current"`
}

func (s *Server) handleASRLanguages(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, languagesResponse{
		Languages: config.ValidLanguages,
		Current:   s.cfg.ASR.Language,
	})
}

// ── TTS models ─────────────────────────────────────────────────────────────────

type voiceInfo struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Language    task.Language `json:"language"`
	Description string        `json:"description,omitempty"`
	Status      string        `json:"status"`
}

type voiceListResponse struct {
	Total    int         `json:"total"`
	Models   []voiceInfo `json:"models"`
	Current  string      `json:"current_model_id"`
	Language string      `json:"current_language,omitempty"`
}

type voiceLoadRequest struct {
	ModelID string `json:"model_id"`
}

type voiceStatusResponse struct {
	Status  string `json:"status"`
	Loading string `json:"loading_model_id,omitempty"`
	Current string `json:"current_model_id,omitempty"`
	Message string `json:"message,omitempty"`
}

func (s *Server) handleTTSModels(w http.ResponseWriter, _ *http.Request) {
	all := s.voices.All()
	_, _, current, _ := s.loader.snapshot()

	resp := voiceListResponse{Total: len(all), Current: current}
	for _, v := range all {
		resp.Models = append(resp.Models, voiceInfo{
			ID:          v.ID,
			Name:        v.Name,
			Language:    v.Language,
			Description: v.Description,
			Status:      s.loader.voiceStatus(v.ID),
		})
		if v.ID == current {
			resp.Language = string(v.Language)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTTSModelLoad(w http.ResponseWriter, r *http.Request) {
	var req voiceLoadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ModelID == "" {
		http.Error(w, "model_id is required", http.StatusBadRequest)
		return
	}

	voice, err := s.voices.Get(req.ModelID)
	if err != nil {
		http.Error(w, "unknown model id", http.StatusNotFound)
		return
	}

	// The swap outlives the request.
	accepted, busy := s.loader.load(context.WithoutCancel(r.Context()), voice)
	switch {
	case busy && accepted:
		writeJSON(w, http.StatusOK, systemResponse{Success: true, Message: "model is already loading"})
	case busy:
		writeJSON(w, http.StatusConflict, systemResponse{Success: false, Message: "another model is loading, retry later"})
	default:
		writeJSON(w, http.StatusAccepted, systemResponse{Success: true, Message: "model load accepted"})
	}
}

func (s *Server) handleTTSModelStatus(w http.ResponseWriter, _ *http.Request) {
	status, loading, current, message := s.loader.snapshot()
	writeJSON(w, http.StatusOK, voiceStatusResponse{
		Status:  status,
		Loading: loading,
		Current: current,
		Message: message,
	})
}

// ── Settings ───────────────────────────────────────────────────────────────────

type promptsResponse struct {
	ChinesePrompt string `json:"chinese_prompt"`
	EnglishPrompt string `json:"english_prompt"`
	IsCustom      bool   `json:"is_custom"`
}

type updatePromptsRequest struct {
	ChinesePrompt *string `json:"chinese_prompt"`
	EnglishPrompt *string `json:"english_prompt"`
}

func (s *Server) handlePromptsGet(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, promptsResponse{
		ChinesePrompt: s.prompts.RawPrompt(task.LanguageChinese),
		EnglishPrompt: s.prompts.RawPrompt(task.LanguageEnglish),
		IsCustom:      s.prompts.IsCustom(),
	})
}

func (s *Server) handlePromptsUpdate(w http.ResponseWriter, r *http.Request) {
	var req updatePromptsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.ChinesePrompt == nil && req.EnglishPrompt == nil {
		http.Error(w, "no prompt fields provided", http.StatusBadRequest)
		return
	}

	if err := s.prompts.Update(req.ChinesePrompt, req.EnglishPrompt); err != nil {
		s.log.Error("failed to save prompts", "error", err)
		http.Error(w, "failed to save prompts", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, systemResponse{Success: true, Message: "prompts updated"})
}

func (s *Server) handlePromptsReset(w http.ResponseWriter, _ *http.Request) {
	if err := s.prompts.Reset(); err != nil {
		s.log.Error("failed to reset prompts", "error", err)
		http.Error(w, "failed to reset prompts", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, systemResponse{Success: true, Message: "prompts reset to defaults"})
}

func (s *Server) handlePromptsDefault(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, promptsResponse{
		ChinesePrompt: config.DefaultPrompt(task.LanguageChinese),
		EnglishPrompt: config.DefaultPrompt(task.LanguageEnglish),
	})
}

// ── Helpers ────────────────────────────────────────────────────────────────────

// decodeOptionalBody decodes a JSON body into v, treating an empty body as
// the zero value.
func decodeOptionalBody(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
