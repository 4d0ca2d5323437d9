package llm

import (
	"testing"
)

func TestSplitOnRightmostPunct(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in                  string
		before, mark, after string
	}{
		{"", "", "", ""},
		{"hello", "hello", "", ""},
		{"hello, world", "hello", ",", " world"},
		{"one. two. three", "one. two", ".", " three"},
		{"你好，世界", "你好", "，", "世界"},
		{"!", "", "!", ""},
		{"tail.", "tail", ".", ""},
	}
	for _, tc := range tests {
		before, mark, after := splitOnRightmostPunct(tc.in)
		if before != tc.before || mark != tc.mark || after != tc.after {
			t.Errorf("splitOnRightmostPunct(%q) = (%q, %q, %q), want (%q, %q, %q)",
				tc.in, before, mark, after, tc.before, tc.mark, tc.after)
		}
	}
}

func TestPreprocessSentence(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		chunks []string
		want   string
	}{
		{"empty", nil, ""},
		{"plain", []string{"hello", " world", "."}, "hello world."},
		{"softens inner terminals", []string{"Wait", ".", " No", "?", " Go", "!"}, "Wait, No, Go!"},
		{"keeps closing mark", []string{"Really", "?"}, "Really?"},
		{"chinese marks untouched", []string{"你好。", "再见", "。"}, "你好。再见。"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := preprocessSentence(tc.chunks); got != tc.want {
				t.Errorf("preprocessSentence(%v) = %q, want %q", tc.chunks, got, tc.want)
			}
		})
	}
}

func TestShouldEndSentence(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		sentence string
		mark     string
		first    bool
		want     bool
	}{
		{"no mark", "hello world", "", true, false},
		{"non terminal mark", "a-b", "-", true, false},
		{"first english two words", "hello there,", ",", true, true},
		{"first english one word", "hello,", ",", true, false},
		{"first chinese long enough", "你好，", "，", true, true},
		{"first chinese too short", "你，", "，", true, false},
		{"later english five words", "one two three four five,", ",", false, true},
		{"later english three words hard stop", "one two three.", ".", false, true},
		{"later english three words soft stop", "one two three,", ",", false, false},
		{"later chinese five chars", "今天天气好。", "。", false, true},
		{"later chinese four chars", "天气好。", "。", false, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := shouldEndSentence(tc.sentence, tc.mark, tc.first); got != tc.want {
				t.Errorf("shouldEndSentence(%q, %q, %v) = %v, want %v",
					tc.sentence, tc.mark, tc.first, got, tc.want)
			}
		})
	}
}

func TestSegmenter_EnglishStream(t *testing.T) {
	t.Parallel()
	seg := newSegmenter()

	var got []string
	for _, chunk := range []string{"Hello", " there", ". How", " are", " you", " today?"} {
		if sentence, ok := seg.feed(chunk); ok {
			got = append(got, sentence)
		}
	}
	if sentence, ok := seg.flush(); ok {
		got = append(got, sentence)
	}

	want := []string{"Hello there.", "How are you today?"}
	if len(got) != len(want) {
		t.Fatalf("sentences = %q, want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sentence[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSegmenter_ChineseStream(t *testing.T) {
	t.Parallel()
	seg := newSegmenter()

	var got []string
	for _, chunk := range []string{"你好，", "今天", "天气", "真好。"} {
		if sentence, ok := seg.feed(chunk); ok {
			got = append(got, sentence)
		}
	}
	if sentence, ok := seg.flush(); ok {
		got = append(got, sentence)
	}

	want := []string{"你好，", "今天天气真好。"}
	if len(got) != len(want) {
		t.Fatalf("sentences = %q, want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sentence[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSegmenter_FlushSkipsPunctuationOnly(t *testing.T) {
	t.Parallel()
	seg := newSegmenter()
	if sentence, ok := seg.feed("."); ok {
		t.Errorf("lone mark emitted %q", sentence)
	}
	if sentence, ok := seg.flush(); ok {
		t.Errorf("flush emitted %q for punctuation-only buffer", sentence)
	}
}

func TestSegmenter_FlushReturnsTail(t *testing.T) {
	t.Parallel()
	seg := newSegmenter()
	if _, ok := seg.feed("and that is all"); ok {
		t.Fatal("unterminated text emitted early")
	}
	sentence, ok := seg.flush()
	if !ok || sentence != "and that is all" {
		t.Errorf("flush = %q, %v, want %q, true", sentence, ok, "and that is all")
	}
}

func TestSegmenter_EmptyFlush(t *testing.T) {
	t.Parallel()
	seg := newSegmenter()
	if sentence, ok := seg.flush(); ok {
		t.Errorf("empty flush emitted %q", sentence)
	}
}
