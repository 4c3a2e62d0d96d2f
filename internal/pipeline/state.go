package pipeline

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/2jSoftware/s2t/internal/audio"
	"github.com/2jSoftware/s2t/internal/metrics"
)

// LockPolicy controls what happens when the state lock is already held.
type LockPolicy int

const (
	// DropOnContention skips the work (one capture block or one control
	// message) instead of waiting for the lock.
	DropOnContention LockPolicy = iota
	// WaitOnContention blocks until the lock is free.
	WaitOnContention
)

func (p LockPolicy) String() string {
	if p == WaitOnContention {
		return "wait"
	}
	return "drop"
}

// ParseLockPolicy accepts "drop" or "wait".
func ParseLockPolicy(s string) (LockPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "drop":
		return DropOnContention, nil
	case "wait":
		return WaitOnContention, nil
	default:
		return DropOnContention, fmt.Errorf("unknown lock policy %q", s)
	}
}

// ErrRateMismatch is returned when the recognizer was built for a different
// sample rate than the pipeline produces.
var ErrRateMismatch = errors.New("recognizer sample rate does not match target rate")

// Options describes the capture format and the pipeline behavior.
type Options struct {
	Channels   int
	InputRate  float64
	TargetRate float64
	Policy     LockPolicy
	Recording  bool
}

// State is the session record shared by the capture callback and the
// websocket sessions: the recording gate, the framing buffers and the
// recognizer. Every access goes through one mutex.
type State struct {
	mu        sync.Mutex
	policy    LockPolicy
	recording bool
	deviceID  string
	framer    *audio.Framer
	invoker   *Invoker

	metrics *metrics.Metrics
	dropLog *rate.Limiter
}

func NewState(opts Options, inv *Invoker, m *metrics.Metrics) (*State, error) {
	if got := inv.engine.SampleRate(); got != opts.TargetRate {
		return nil, fmt.Errorf("%w: engine %.0f Hz, target %.0f Hz", ErrRateMismatch, got, opts.TargetRate)
	}
	framer, err := audio.NewFramer(opts.Channels, opts.InputRate, opts.TargetRate)
	if err != nil {
		return nil, err
	}
	s := &State{
		policy:    opts.Policy,
		recording: opts.Recording,
		framer:    framer,
		invoker:   inv,
		metrics:   m,
		dropLog:   rate.NewLimiter(rate.Every(time.Second), 1),
	}
	m.Recording.Set(boolGauge(opts.Recording))
	log.Info().
		Int("channels", opts.Channels).
		Float64("input_rate", opts.InputRate).
		Float64("target_rate", opts.TargetRate).
		Int("input_window", framer.InputWindow()).
		Str("lock_policy", opts.Policy.String()).
		Bool("recording", opts.Recording).
		Msg("audio pipeline ready")
	return s, nil
}

func (s *State) acquire() bool {
	if s.policy == WaitOnContention {
		s.mu.Lock()
		return true
	}
	return s.mu.TryLock()
}

// Process is the capture callback. It mixes the interleaved block into the
// raw buffer and runs every complete window through the recognizer. When the
// lock is contended under DropOnContention the whole block is discarded and
// Process reports false. It returns the number of chunks recognized.
func (s *State) Process(block []float32) (int, bool) {
	if !s.acquire() {
		s.metrics.AudioBlocks.WithLabelValues(metrics.BlockDropped).Inc()
		if s.dropLog.Allow() {
			log.Warn().Int("samples", len(block)).Msg("audio block dropped: session state busy")
		}
		return 0, false
	}
	defer s.mu.Unlock()

	if !s.recording {
		s.metrics.AudioBlocks.WithLabelValues(metrics.BlockIdle).Inc()
		return 0, true
	}
	s.metrics.AudioBlocks.WithLabelValues(metrics.BlockProcessed).Inc()

	if log.Logger.GetLevel() <= zerolog.DebugLevel {
		if peak := audio.Peak(block); peak > 0.01 {
			log.Debug().Float32("peak", peak).Int("samples", len(block)).Msg("receiving audio")
		}
	}

	s.framer.Write(block)
	chunks := 0
	for {
		start := time.Now()
		pcm, ok := s.framer.Next()
		if !ok {
			break
		}
		s.metrics.ChunkPeak.Observe(float64(s.framer.LastPeak()))
		s.invoker.Invoke(pcm)
		s.metrics.ChunksProcessed.Inc()
		s.metrics.ChunkDuration.Observe(time.Since(start).Seconds())
		log.Debug().
			Int("samples", len(pcm)).
			Float32("peak", s.framer.LastPeak()).
			Int("buffered", s.framer.Buffered()).
			Msg("chunk processed")
		chunks++
	}
	return chunks, true
}

// SetRecording toggles the recording gate and remembers the requested device.
// Turning recording off discards any partially accumulated window. It
// reports false if the update was dropped because the lock was busy.
func (s *State) SetRecording(on bool, deviceID string) bool {
	if !s.acquire() {
		return false
	}
	defer s.mu.Unlock()

	s.recording = on
	if deviceID != "" && deviceID != s.deviceID {
		s.deviceID = deviceID
		log.Info().Str("device_id", deviceID).Msg("client selected capture device")
	}
	if !on {
		s.framer.Reset()
	}
	s.metrics.Recording.Set(boolGauge(on))
	log.Info().Bool("recording", on).Msg("recording state updated")
	return true
}

// Snapshot is a point-in-time copy of the state for reporting. Busy is set,
// and the other fields are zero, when the lock was contended under
// DropOnContention.
type Snapshot struct {
	Busy      bool   `json:"busy,omitempty"`
	Recording bool   `json:"recording"`
	DeviceID  string `json:"deviceId,omitempty"`
	Buffered  int    `json:"bufferedSamples"`
	Scratch   int    `json:"scratchSamples"`
}

// Snapshot follows the lock policy like Process and SetRecording.
func (s *State) Snapshot() Snapshot {
	if !s.acquire() {
		return Snapshot{Busy: true}
	}
	defer s.mu.Unlock()
	return Snapshot{
		Recording: s.recording,
		DeviceID:  s.deviceID,
		Buffered:  s.framer.Buffered(),
		Scratch:   s.framer.Scratch(),
	}
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
