package audio

import (
	"bytes"
	"math"
	"sync"
	"time"
)

// EchoSuppressor classifies microphone frames that are really the
// loudspeaker talking back into the microphone. The playback path feeds it
// a rolling reference of everything sent to the speaker; capture asks it
// whether an incoming frame correlates with that reference. It is a
// detector, not a canceller: flagged frames are treated as non-voice
// rather than subtracted.
type EchoSuppressor struct {
	mu           sync.Mutex
	reference    *bytes.Buffer
	maxReference int
	threshold    float64
	holdover     time.Duration
	lastPlayed   time.Time
	enabled      bool
}

// NewEchoSuppressor returns a suppressor sized for sampleRate. The
// reference window covers the last two seconds of playback, which is
// enough to bridge typical speaker-to-microphone latency.
func NewEchoSuppressor(sampleRate int) *EchoSuppressor {
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	return &EchoSuppressor{
		reference:    new(bytes.Buffer),
		maxReference: sampleRate * 2 * 2, // two seconds of int16 PCM
		threshold:    0.55,
		holdover:     1200 * time.Millisecond,
		enabled:      true,
	}
}

// RecordPlayed appends pcm to the playback reference. Call from the
// playback path for every chunk written to the speaker.
func (es *EchoSuppressor) RecordPlayed(pcm []byte) {
	if len(pcm) == 0 {
		return
	}
	es.mu.Lock()
	defer es.mu.Unlock()
	if !es.enabled {
		return
	}
	es.reference.Write(pcm)
	es.lastPlayed = time.Now()
	if es.reference.Len() > es.maxReference {
		data := es.reference.Bytes()
		tail := data[len(data)-es.maxReference:]
		es.reference.Reset()
		es.reference.Write(tail)
	}
}

// IsEcho reports whether the microphone frame is dominated by recently
// played audio. Frames arriving long after playback stopped are never
// classified as echo.
func (es *EchoSuppressor) IsEcho(frame []byte) bool {
	if len(frame) == 0 {
		return false
	}
	es.mu.Lock()
	defer es.mu.Unlock()
	if !es.enabled {
		return false
	}
	if time.Since(es.lastPlayed) > es.holdover {
		return false
	}
	ref := es.reference.Bytes()
	if len(ref) == 0 {
		return false
	}

	in := toFloat64(frame)
	refSamples := toFloat64(ref)
	if bestCorrelation(in, refSamples) > es.threshold {
		return true
	}
	// Envelope comparison catches sibilants whose phase the room scrambles.
	return envelopeCorrelation(in, refSamples, 8) > es.threshold+0.05
}

// Clear drops the playback reference. Call when playback is interrupted so
// stale audio cannot poison subsequent frames.
func (es *EchoSuppressor) Clear() {
	es.mu.Lock()
	defer es.mu.Unlock()
	es.reference.Reset()
}

// SetThreshold adjusts the correlation level above which a frame counts as
// echo. Values outside (0, 1] are ignored.
func (es *EchoSuppressor) SetThreshold(t float64) {
	if t <= 0 || t > 1 {
		return
	}
	es.mu.Lock()
	defer es.mu.Unlock()
	es.threshold = t
}

// SetEnabled switches suppression on or off.
func (es *EchoSuppressor) SetEnabled(on bool) {
	es.mu.Lock()
	defer es.mu.Unlock()
	es.enabled = on
}

// bestCorrelation slides the input across the reference and returns the
// highest normalized cross-correlation found. The stride trades alignment
// precision for CPU; this runs on the capture path.
func bestCorrelation(in, ref []float64) float64 {
	if len(in) == 0 || len(ref) == 0 {
		return 0
	}
	compareLen := len(in)
	if compareLen > len(ref) {
		compareLen = len(ref)
	}
	seg := in[:compareLen]
	inEnergy := energy(seg)
	if inEnergy == 0 {
		return 0
	}

	stride := compareLen / 4
	if stride < 8 {
		stride = 8
	}

	best := 0.0
	for pos := 0; pos+compareLen <= len(ref); pos += stride {
		window := ref[pos : pos+compareLen]
		winEnergy := energy(window)
		if winEnergy == 0 {
			continue
		}
		var dot float64
		for i := range seg {
			dot += seg[i] * window[i]
		}
		corr := dot / math.Sqrt(inEnergy*winEnergy)
		if corr > best {
			best = corr
			if best >= 0.999 {
				break
			}
		}
	}
	if best < 0 {
		return 0
	}
	if best > 1 {
		return 1
	}
	return best
}

// envelopeCorrelation compares decimated absolute-value envelopes instead
// of raw samples, which survives the phase shifts a room introduces.
func envelopeCorrelation(in, ref []float64, decimation int) float64 {
	inEnv := envelope(in, decimation)
	refEnv := envelope(ref, decimation)
	compareLen := len(inEnv)
	if compareLen > len(refEnv) {
		compareLen = len(refEnv)
	}
	if compareLen == 0 {
		return 0
	}

	inMean := mean(inEnv[:compareLen])
	inVar := 0.0
	centered := make([]float64, compareLen)
	for i := 0; i < compareLen; i++ {
		centered[i] = inEnv[i] - inMean
		inVar += centered[i] * centered[i]
	}
	if inVar <= 0 {
		return 0
	}

	stride := compareLen / 4
	if stride < 2 {
		stride = 2
	}

	best := 0.0
	for pos := 0; pos+compareLen <= len(refEnv); pos += stride {
		window := refEnv[pos : pos+compareLen]
		refMean := mean(window)
		var dot, refVar float64
		for i := 0; i < compareLen; i++ {
			r := window[i] - refMean
			dot += centered[i] * r
			refVar += r * r
		}
		if refVar > 0 {
			if corr := dot / math.Sqrt(inVar*refVar); corr > best {
				best = corr
			}
		}
	}
	return best
}

func envelope(samples []float64, decimation int) []float64 {
	if decimation < 1 {
		decimation = 1
	}
	out := make([]float64, len(samples)/decimation)
	for i := range out {
		var sum float64
		for j := 0; j < decimation; j++ {
			sum += math.Abs(samples[i*decimation+j])
		}
		out[i] = sum
	}
	return out
}

func toFloat64(pcm []byte) []float64 {
	out := make([]float64, 0, len(pcm)/2)
	for i := 0; i+1 < len(pcm); i += 2 {
		s := int16(pcm[i]) | int16(pcm[i+1])<<8
		out = append(out, float64(s)/32768.0)
	}
	return out
}

func energy(samples []float64) float64 {
	var sum float64
	for _, s := range samples {
		sum += s * s
	}
	return sum
}

func mean(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += s
	}
	return sum / float64(len(samples))
}
