package task

import (
	"encoding/json"
	"testing"
	"time"
)

func TestLanguage_IsValid(t *testing.T) {
	t.Parallel()
	if !LanguageChinese.IsValid() || !LanguageEnglish.IsValid() {
		t.Error("supported language reported invalid")
	}
	if Language("fr").IsValid() {
		t.Error("unsupported language reported valid")
	}
}

func TestAudioClip_Duration(t *testing.T) {
	t.Parallel()
	clip := AudioClip{PCM: make([]byte, 32000), SampleRate: 16000}
	if d := clip.Duration(); d != time.Second {
		t.Errorf("Duration = %v, want 1s", d)
	}

	if d := (AudioClip{}).Duration(); d != 0 {
		t.Errorf("zero clip Duration = %v, want 0", d)
	}
}

func TestVoiceTask_CloneIsDeep(t *testing.T) {
	t.Parallel()
	vt := VoiceTask{
		ID:        "t1",
		UserVoice: AudioClip{PCM: []byte{1, 2}, SampleRate: 16000},
		Speech:    AudioClip{PCM: []byte{3, 4}, SampleRate: 24000},
	}

	cp := vt.Clone()
	cp.UserVoice.PCM[0] = 9
	cp.Speech.PCM[0] = 9

	if vt.UserVoice.PCM[0] != 1 || vt.Speech.PCM[0] != 3 {
		t.Error("Clone shares PCM buffers with the original")
	}
}

func TestVoiceTask_FirstSentence(t *testing.T) {
	t.Parallel()
	if !(VoiceTask{SentenceIndex: 0}).FirstSentence() {
		t.Error("index 0 not reported as first sentence")
	}
	if (VoiceTask{SentenceIndex: 2}).FirstSentence() {
		t.Error("index 2 reported as first sentence")
	}
}

func TestMessages_JSONDiscriminator(t *testing.T) {
	t.Parallel()
	vt := VoiceTask{
		ID:            "t1",
		SessionID:     "s1",
		AnswerID:      "a1",
		Transcript:    "hello?",
		Sentence:      "Hi there.",
		SentenceIndex: 1,
	}

	qb, err := json.Marshal(NewQuestionMessage(vt))
	if err != nil {
		t.Fatalf("marshal question: %v", err)
	}
	var q map[string]any
	if err := json.Unmarshal(qb, &q); err != nil {
		t.Fatalf("unmarshal question: %v", err)
	}
	if q["message_type"] != "question" || q["content"] != "hello?" {
		t.Errorf("question json = %s", qb)
	}

	ab, err := json.Marshal(NewAnswerMessage(vt))
	if err != nil {
		t.Fatalf("marshal answer: %v", err)
	}
	var a map[string]any
	if err := json.Unmarshal(ab, &a); err != nil {
		t.Fatalf("unmarshal answer: %v", err)
	}
	if a["message_type"] != "answer" || a["content"] != "Hi there." || a["index"] != float64(1) {
		t.Errorf("answer json = %s", ab)
	}

	var msgs []Message = []Message{NewQuestionMessage(vt), NewAnswerMessage(vt)}
	if msgs[0].Session() != "s1" || msgs[1].MessageType() != "answer" {
		t.Error("Message interface accessors wrong")
	}
}
