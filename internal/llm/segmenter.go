package llm

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// End-of-sentence marks the segmenter flushes on.
var (
	englishEndMarks = map[rune]bool{'!': true, '?': true, '.': true, ',': true, ':': true, ';': true}
	chineseEndMarks = map[rune]bool{'，': true, '。': true, '！': true, '？': true, '：': true, '；': true, '、': true}
)

func isEndMark(r rune) bool { return englishEndMarks[r] || chineseEndMarks[r] }

func isEndMarkStr(s string) bool {
	r, size := utf8.DecodeRuneInString(s)
	return size == len(s) && isEndMark(r)
}

// segmenter turns a stream of model chunks into speakable sentences. It
// buffers chunk fragments, watches for punctuation, and decides when the
// buffered text is long enough to hand to synthesis. Short early flushes
// keep time-to-first-audio low; later sentences wait for more substance.
type segmenter struct {
	chunks []string
	first  bool
}

func newSegmenter() *segmenter {
	return &segmenter{first: true}
}

// feed consumes one streamed chunk. It returns the completed sentence and
// true when the chunk closed one.
func (s *segmenter) feed(text string) (string, bool) {
	before, mark, after := splitOnRightmostPunct(text)
	if before != "" {
		s.chunks = append(s.chunks, before)
	}
	if mark != "" {
		s.chunks = append(s.chunks, mark)
	}

	sentence := preprocessSentence(s.chunks)
	if sentence == "" {
		if after != "" {
			s.chunks = append(s.chunks, after)
		}
		return "", false
	}

	if shouldEndSentence(sentence, mark, s.first) {
		s.chunks = s.chunks[:0]
		if after != "" {
			s.chunks = append(s.chunks, after)
		}
		s.first = false
		return strings.TrimSpace(sentence), true
	}

	if after != "" {
		s.chunks = append(s.chunks, after)
	}
	return "", false
}

// flush returns whatever remains buffered at end of stream, unless it is
// empty or a lone punctuation mark.
func (s *segmenter) flush() (string, bool) {
	if len(s.chunks) == 0 {
		return "", false
	}
	sentence := preprocessSentence(s.chunks)
	s.chunks = s.chunks[:0]
	if sentence == "" || isEndMarkStr(strings.TrimSpace(sentence)) {
		return "", false
	}
	return strings.TrimSpace(sentence), true
}

// splitOnRightmostPunct splits text at its rightmost punctuation character
// into the part before it, the mark itself, and the remainder after it.
// Without punctuation the whole text is returned as before.
func splitOnRightmostPunct(text string) (before, mark, after string) {
	runes := []rune(text)
	for i := len(runes) - 1; i >= 0; i-- {
		if unicode.IsPunct(runes[i]) {
			return string(runes[:i]), string(runes[i]), string(runes[i+1:])
		}
	}
	return text, "", ""
}

// preprocessSentence joins the buffered fragments and softens every
// intra-sentence terminal mark to a comma, keeping only the closing mark.
// Synthesis treats `!?.` as hard stops, so a sentence assembled from many
// fragments must not carry them mid-way.
func preprocessSentence(chunks []string) string {
	text := strings.Join(chunks, "")
	if text == "" {
		return ""
	}
	last, size := lastRune(text)
	body := strings.NewReplacer("!", ",", "?", ",", ".", ",").Replace(text[:len(text)-size])
	return body + string(last)
}

func lastRune(s string) (rune, int) {
	return utf8.DecodeLastRuneInString(s)
}

// shouldEndSentence decides whether the assembled sentence is ready for
// synthesis. The first sentence of an answer flushes as early as possible;
// later ones wait until they carry enough words to sound natural.
func shouldEndSentence(sentence, mark string, first bool) bool {
	if sentence == "" || !isEndMarkStr(mark) {
		return false
	}
	r, _ := utf8.DecodeRuneInString(mark)
	chinese := chineseEndMarks[r]

	if first {
		if chinese {
			return utf8.RuneCountInString(sentence) > 2
		}
		return len(strings.Fields(sentence)) > 1
	}

	if chinese {
		return utf8.RuneCountInString(sentence) > 4
	}
	words := len(strings.Fields(sentence))
	return words > 4 || (words > 2 && (mark == "." || mark == "?" || mark == "!"))
}
