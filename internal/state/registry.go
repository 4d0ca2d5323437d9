// Package state holds the shared mutable state of the voice pipeline: the
// current session, task, and interruption identities, the per-task audio
// playback states, the set of dropped answers, and the dialogue history.
// Every pipeline stage reads it and a small, well-defined set of writers
// mutate it, so all access is synchronized here rather than in the stages.
package state

import (
	"sync"

	"github.com/google/uuid"
)

// AudioState describes what the playback stage should do with audio
// belonging to a task.
type AudioState string

const (
	// AudioPlaying marks a task whose audio is being (or may be) played.
	AudioPlaying AudioState = "playing"
	// AudioDrop marks a task whose audio must be discarded unplayed.
	AudioDrop AudioState = "drop"
)

const (
	audioStateCapacity    = 10
	droppedAnswerCapacity = 50
	historyCapacity       = 50
)

// Exchange is one question/answer turn of the dialogue history. The answer
// text grows sentence by sentence as playback progresses.
type Exchange struct {
	AnswerID string
	Question string
	Answer   string
}

// Registry is the single source of truth for pipeline identities and task
// bookkeeping. Safe for concurrent use.
type Registry struct {
	mu              sync.RWMutex
	sessionID       string
	taskID          string
	interruptTaskID string
	history         map[string][]Exchange

	audioStates    *LRU[string, AudioState]
	droppedAnswers *LRU[string, struct{}]
}

// NewRegistry returns a registry with a fresh session identity.
func NewRegistry() *Registry {
	return &Registry{
		sessionID:      uuid.NewString(),
		history:        make(map[string][]Exchange),
		audioStates:    NewLRU[string, AudioState](audioStateCapacity),
		droppedAnswers: NewLRU[string, struct{}](droppedAnswerCapacity),
	}
}

// ─── Session identity ────────────────────────────────────────────────────────

// SessionID returns the current session identity.
func (r *Registry) SessionID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessionID
}

// ResetSession replaces the session identity with a fresh one and returns
// it. Tasks stamped with the previous identity fail validity checks from
// this point on.
func (r *Registry) ResetSession() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessionID = uuid.NewString()
	r.taskID = ""
	r.interruptTaskID = ""
	return r.sessionID
}

// ─── Task identity ───────────────────────────────────────────────────────────

// TaskID returns the identity of the utterance currently owning the
// pipeline, or "" when none does.
func (r *Registry) TaskID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.taskID
}

// CreateTaskID mints a fresh task identity, installs it as current, and
// returns it.
func (r *Registry) CreateTaskID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.taskID = uuid.NewString()
	return r.taskID
}

// ResetTaskID clears the current task identity so the next utterance can
// claim the pipeline.
func (r *Registry) ResetTaskID() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.taskID = ""
}

// ─── Interruption identity ───────────────────────────────────────────────────

// InterruptTaskID returns the identity of the task that most recently
// interrupted playback, or "" when no interruption is pending.
func (r *Registry) InterruptTaskID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.interruptTaskID
}

// SetInterruptTaskID records id as the interrupting task. Only the speech
// monitor calls this.
func (r *Registry) SetInterruptTaskID(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.interruptTaskID = id
}

// ResetInterruptTaskID clears the pending interruption.
func (r *Registry) ResetInterruptTaskID() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.interruptTaskID = ""
}

// ─── Audio task states ───────────────────────────────────────────────────────

// AudioState returns the playback state recorded for the task, if any.
func (r *Registry) AudioState(taskID string) (AudioState, bool) {
	return r.audioStates.Get(taskID)
}

// SetAudioPlaying marks the task's audio as playing.
func (r *Registry) SetAudioPlaying(taskID string) {
	r.audioStates.Put(taskID, AudioPlaying)
}

// DropAudioTask marks the task's audio for discard; playback skips every
// clip that carries the id.
func (r *Registry) DropAudioTask(taskID string) {
	r.audioStates.Put(taskID, AudioDrop)
}

// CleanupTask forgets the playback state for the task.
func (r *Registry) CleanupTask(taskID string) {
	r.audioStates.Delete(taskID)
}

// ─── Dropped answers ─────────────────────────────────────────────────────────

// MarkAnswerDropped records that every sentence of the answer must be
// discarded, wherever in the pipeline its clones currently sit.
func (r *Registry) MarkAnswerDropped(answerID string) {
	if answerID == "" {
		return
	}
	r.droppedAnswers.Put(answerID, struct{}{})
}

// IsAnswerDropped reports whether the answer was marked dropped.
func (r *Registry) IsAnswerDropped(answerID string) bool {
	return r.droppedAnswers.Contains(answerID)
}

// ─── Dialogue history ────────────────────────────────────────────────────────

// AppendExchange folds a played answer sentence into the session history.
// Consecutive sentences of the same answer extend one exchange; a new
// answer id opens a new exchange with the question that produced it.
func (r *Registry) AppendExchange(sessionID, answerID, question, sentence string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	turns := r.history[sessionID]
	if n := len(turns); n > 0 && turns[n-1].AnswerID == answerID {
		if turns[n-1].Answer != "" && sentence != "" {
			turns[n-1].Answer += " "
		}
		turns[n-1].Answer += sentence
		r.history[sessionID] = turns
		return
	}
	turns = append(turns, Exchange{AnswerID: answerID, Question: question, Answer: sentence})
	if len(turns) > historyCapacity {
		turns = turns[len(turns)-historyCapacity:]
	}
	r.history[sessionID] = turns
}

// History returns a copy of the session's recorded exchanges.
func (r *Registry) History(sessionID string) []Exchange {
	r.mu.RLock()
	defer r.mu.RUnlock()
	turns := r.history[sessionID]
	out := make([]Exchange, len(turns))
	copy(out, turns)
	return out
}

// Window returns the session's most recent k exchanges.
func (r *Registry) Window(sessionID string, k int) []Exchange {
	turns := r.History(sessionID)
	if k >= 0 && len(turns) > k {
		turns = turns[len(turns)-k:]
	}
	return turns
}
