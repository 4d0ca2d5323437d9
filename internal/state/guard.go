package state

import (
	"log/slog"

	"github.com/auricle-ai/auricle/internal/task"
)

// Guard bundles the registry with the cross-stage signal flags and provides
// the task validity rules every stage applies before doing work. The speech
// monitor is the only writer of the two events; the pipeline stages read
// them and react.
type Guard struct {
	Registry *Registry

	// UserSpeaking is raised when the user talks over a task already in
	// flight and stays up until a stage acknowledges the barge-in.
	UserSpeaking *Event
	// SilenceDone is raised once the user has been quiet long enough for
	// playback to proceed, and cleared when a new utterance begins.
	SilenceDone *Event

	Log *slog.Logger
}

// NewGuard wires a guard around the registry.
func NewGuard(reg *Registry, log *slog.Logger) *Guard {
	if log == nil {
		log = slog.Default()
	}
	return &Guard{
		Registry:     reg,
		UserSpeaking: NewEvent(),
		SilenceDone:  NewEvent(),
		Log:          log,
	}
}

// Interrupted reports whether the task was overtaken by a barge-in. The
// interrupting task itself is never considered interrupted.
func (g *Guard) Interrupted(t task.VoiceTask) bool {
	interruptID := g.Registry.InterruptTaskID()
	if interruptID == "" {
		return false
	}
	if t.ID != interruptID {
		g.Log.Info("task interrupted", "task_id", t.ID, "interrupted_by", interruptID)
		return true
	}
	return false
}

// ValidTask reports whether the task may proceed: not interrupted, still
// in the current session, and its answer not dropped. Invalid tasks are
// silently discarded by their stage.
func (g *Guard) ValidTask(t task.VoiceTask) bool {
	if g.Interrupted(t) {
		return false
	}
	if t.SessionID != g.Registry.SessionID() {
		g.Log.Info("task from stale session", "task_id", t.ID, "session_id", t.SessionID)
		return false
	}
	if g.Registry.IsAnswerDropped(t.AnswerID) {
		g.Log.Info("task answer dropped", "task_id", t.ID, "answer_id", t.AnswerID)
		return false
	}
	return true
}

// HandleUserSpeaking performs the shared barge-in reaction: the task's
// audio is marked for discard, its answer is invalidated, and the speaking
// flag is acknowledged. Returns true when the reaction fired and the task
// must be dropped.
func (g *Guard) HandleUserSpeaking(t task.VoiceTask) bool {
	if !g.UserSpeaking.IsSet() {
		return false
	}
	g.Registry.DropAudioTask(t.ID)
	g.Registry.MarkAnswerDropped(t.AnswerID)
	g.UserSpeaking.Clear()
	g.Log.Info("user still speaking, dropping task", "task_id", t.ID, "answer_id", t.AnswerID)
	return true
}
