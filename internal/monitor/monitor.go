// Package monitor implements the speech monitor: the stage that watches the
// captured microphone frames, decides where an utterance begins and ends,
// raises the barge-in and silence signals, and emits one VoiceTask per
// detected utterance into the recognition queue.
package monitor

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/auricle-ai/auricle/internal/observe"
	"github.com/auricle-ai/auricle/internal/pipeline"
	"github.com/auricle-ai/auricle/internal/service"
	"github.com/auricle-ai/auricle/internal/state"
	"github.com/auricle-ai/auricle/internal/task"
	"github.com/auricle-ai/auricle/pkg/audio"
	"github.com/auricle-ai/auricle/pkg/provider/vad"
)

const (
	// frameWait bounds how long one loop iteration blocks on the frame
	// queue, so task lifecycle checks keep running while the mic is quiet.
	frameWait = 100 * time.Millisecond

	// activeThreshold is the amount of continuous speech after which the
	// current utterance interrupts whatever the pipeline is doing.
	activeThreshold = 100 * time.Millisecond

	// silenceThreshold is the pause that ends an utterance.
	silenceThreshold = 300 * time.Millisecond

	// userSilenceThreshold is the pause after which playback may proceed.
	userSilenceThreshold = 1000 * time.Millisecond

	// longUtteranceThreshold flags utterances that should be flushed as
	// fragments; recognition stitches the fragments back together.
	longUtteranceThreshold = 5000 * time.Millisecond
)

// Config carries the optional collaborators of a Monitor.
type Config struct {
	// SampleRate of the captured audio. Defaults to 16000.
	SampleRate int

	// Detector decides voice activity for frames whose capture strategy
	// did not decide it already. Nil falls back to a peak amplitude check.
	Detector vad.Session

	Metrics *observe.Metrics
	Log     *slog.Logger
}

// Monitor is the speech monitoring service.
type Monitor struct {
	guard      *state.Guard
	frames     *pipeline.Queue[audio.Frame]
	out        *pipeline.Queue[task.VoiceTask]
	detector   vad.Session
	sampleRate int
	metrics    *observe.Metrics
	log        *slog.Logger
	ready      atomic.Bool
}

var _ service.Service = (*Monitor)(nil)

// New wires a monitor between the frame queue and the recognition queue.
func New(guard *state.Guard, frames *pipeline.Queue[audio.Frame], out *pipeline.Queue[task.VoiceTask], cfg Config) *Monitor {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	return &Monitor{
		guard:      guard,
		frames:     frames,
		out:        out,
		detector:   cfg.Detector,
		sampleRate: cfg.SampleRate,
		metrics:    cfg.Metrics,
		log:        cfg.Log,
	}
}

// Ready reports whether the monitoring loop is running.
func (m *Monitor) Ready() bool { return m.ready.Load() }

// Run executes the monitoring loop until the context is cancelled.
//
// The loop owns a rolling utterance buffer. While no speech has been heard
// the buffer keeps only the trailing pre-roll of silence, so a detected
// utterance starts with a little context instead of a hard cut. Once speech
// accumulates past activeThreshold the utterance claims the pipeline by
// installing itself as the interrupting task. An utterance is emitted after
// silenceThreshold of quiet; utterances longer than longUtteranceThreshold
// are flushed as fragments and the buffer restarts.
func (m *Monitor) Run(ctx context.Context) error {
	m.ready.Store(true)
	defer m.ready.Store(false)

	var (
		buffer      []byte
		bufferEmpty = true
		sent        bool
		taskID      string
		activeDur   time.Duration
		userSilence time.Duration
	)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		taskID = m.guard.Registry.TaskID()
		if taskID == "" {
			taskID = m.guard.Registry.CreateTaskID()
			m.guard.Registry.ResetInterruptTaskID()
			m.guard.SilenceDone.Clear()
			m.guard.UserSpeaking.Clear()
			buffer = buffer[:0]
			bufferEmpty = true
			sent = false
			m.log.Debug("new utterance task", "task_id", taskID)
		}

		// A dropped task re-arms the monitor: the utterance it was part of
		// keeps its identity and the next fragment goes out fresh.
		if st, ok := m.guard.Registry.AudioState(taskID); ok && st == state.AudioDrop {
			m.guard.Registry.CleanupTask(taskID)
			sent = false
			continue
		}

		if userSilence >= userSilenceThreshold {
			m.guard.SilenceDone.Set()
		}

		frame, ok := m.frames.Get(frameWait)
		if !ok {
			continue
		}
		dur := frame.Duration()
		active := m.voiceActive(frame)

		if active {
			// Frames the detector likes but that are nearly silent carry
			// no usable speech and must not grow the utterance.
			if audio.PeakAmplitude(frame.PCM) > audio.MinVoiceAmplitude {
				userSilence = 0
				activeDur += dur
				if activeDur > activeThreshold {
					m.guard.Registry.SetInterruptTaskID(taskID)
				}
				bufferEmpty = false
				buffer = append(buffer, frame.PCM...)
			}
		} else {
			activeDur = 0
			if bufferEmpty {
				// No speech yet: keep a rolling pre-roll of silence.
				buffer = append(buffer, frame.PCM...)
				buffer = trimToTail(buffer, frame.SampleRate, silenceThreshold)
				m.guard.UserSpeaking.Clear()
				if sent {
					userSilence += dur
				}
				continue
			}
			userSilence += dur
			buffer = append(buffer, frame.PCM...)
		}

		if active && sent {
			m.guard.UserSpeaking.Set()
		}

		if userSilence >= silenceThreshold && !sent {
			t := m.buildTask(taskID, buffer)
			m.out.Put(t.Clone())
			m.metrics.UtterancesDetected.Add(ctx, 1)
			m.metrics.RecordQueueDepth(ctx, m.out.Name(), m.out.Len())
			m.log.Info("utterance detected",
				"task_id", t.ID,
				"answer_id", t.AnswerID,
				"duration", t.UserVoice.Duration(),
				"long_utterance", t.LongUtterance,
			)
			sent = true
			m.guard.UserSpeaking.Clear()
			if t.LongUtterance {
				buffer = buffer[:0]
				bufferEmpty = true
			}
		}
	}
}

// voiceActive resolves the speech decision for a frame: the capture
// strategy's own decision when it made one, the configured detector
// otherwise, and a plain amplitude check as the last resort.
func (m *Monitor) voiceActive(frame audio.Frame) bool {
	if frame.HasVAD {
		return frame.VoiceActive
	}
	if m.detector != nil {
		active, err := m.detector.Process(audio.BytesToFloat32(frame.PCM))
		if err == nil {
			return active
		}
		m.log.Warn("voice detector failed, falling back to amplitude", "error", err)
	}
	return audio.PeakAmplitude(frame.PCM) >= audio.MinVoiceAmplitude
}

// buildTask assembles the VoiceTask for the buffered utterance.
func (m *Monitor) buildTask(taskID string, buffer []byte) task.VoiceTask {
	pcm := make([]byte, len(buffer))
	copy(pcm, buffer)
	t := task.VoiceTask{
		ID:        taskID,
		SessionID: m.guard.Registry.SessionID(),
		AnswerID:  uuid.NewString(),
		UserVoice: task.AudioClip{PCM: pcm, SampleRate: m.sampleRate},
	}
	t.Timings.MonitorSend = time.Now()
	t.LongUtterance = t.UserVoice.Duration() >= longUtteranceThreshold
	return t
}

// trimToTail keeps at most the trailing keep duration of pcm.
func trimToTail(pcm []byte, sampleRate int, keep time.Duration) []byte {
	if sampleRate <= 0 {
		return pcm
	}
	keepBytes := 2 * int(keep.Milliseconds()) * sampleRate / 1000
	if len(pcm) <= keepBytes {
		return pcm
	}
	copy(pcm, pcm[len(pcm)-keepBytes:])
	return pcm[:keepBytes]
}
