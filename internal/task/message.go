package task

import "time"

// Message is a display event pushed to connected UI clients over the
// websocket. The concrete type is discriminated by MessageType.
type Message interface {
	// MessageType returns the JSON discriminator, "question" or "answer".
	MessageType() string
	// Session returns the dialogue session the message belongs to.
	Session() string
}

// QuestionMessage shows the recognized user utterance as soon as the LLM
// stage picks the task up.
type QuestionMessage struct {
	Type      string    `json:"message_type"`
	SessionID string    `json:"session_id"`
	TaskID    string    `json:"task_id"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// NewQuestionMessage builds the display event for a transcribed utterance.
func NewQuestionMessage(t VoiceTask) QuestionMessage {
	return QuestionMessage{
		Type:      "question",
		SessionID: t.SessionID,
		TaskID:    t.ID,
		Content:   t.Transcript,
		Timestamp: time.Now(),
	}
}

func (m QuestionMessage) MessageType() string { return m.Type }
func (m QuestionMessage) Session() string     { return m.SessionID }

// AnswerMessage shows one synthesized answer sentence right before it is
// played.
type AnswerMessage struct {
	Type      string    `json:"message_type"`
	SessionID string    `json:"session_id"`
	TaskID    string    `json:"task_id"`
	AnswerID  string    `json:"answer_id"`
	Index     int       `json:"index"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// NewAnswerMessage builds the display event for a sentence about to play.
func NewAnswerMessage(t VoiceTask) AnswerMessage {
	return AnswerMessage{
		Type:      "answer",
		SessionID: t.SessionID,
		TaskID:    t.ID,
		AnswerID:  t.AnswerID,
		Index:     t.SentenceIndex,
		Content:   t.Sentence,
		Timestamp: time.Now(),
	}
}

func (m AnswerMessage) MessageType() string { return m.Type }
func (m AnswerMessage) Session() string     { return m.SessionID }
