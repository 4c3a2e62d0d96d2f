package capture

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/2jSoftware/s2t/internal/audio"
)

// WAVSource replays a WAV file in real time as if it were a capture device.
type WAVSource struct {
	clip        audio.Clip
	blockFrames int
	loop        bool
	interval    time.Duration

	mu      sync.Mutex
	started bool
	stop    chan struct{}
	done    chan struct{}
}

// NewWAVSource decodes path and prepares it for replay in blocks of
// blockFrames frames. With loop set the clip restarts when it ends.
func NewWAVSource(path string, blockFrames int, loop bool) (*WAVSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open wav: %w", err)
	}
	defer f.Close()

	clip, err := audio.DecodeWAV(f)
	if err != nil {
		return nil, fmt.Errorf("decode wav %s: %w", path, err)
	}
	if blockFrames <= 0 {
		blockFrames = 1024
	}
	interval := time.Duration(float64(blockFrames) / float64(clip.SampleRate) * float64(time.Second))
	if interval <= 0 {
		interval = time.Millisecond
	}
	return &WAVSource{
		clip:        clip,
		blockFrames: blockFrames,
		loop:        loop,
		interval:    interval,
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}, nil
}

func (s *WAVSource) Format() Format {
	return Format{Channels: s.clip.Channels, SampleRate: float64(s.clip.SampleRate)}
}

// Start begins delivering blocks on a dedicated goroutine, one block per
// block duration. When the clip ends without looping, onErr receives io.EOF.
func (s *WAVSource) Start(cb Callback, onErr ErrorHandler) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrAlreadyStarted
	}
	s.started = true

	log.Info().
		Int("channels", s.clip.Channels).
		Int("sample_rate", s.clip.SampleRate).
		Int("frames", s.clip.Frames()).
		Dur("block", s.interval).
		Bool("loop", s.loop).
		Msg("wav capture started")

	go s.run(cb, onErr)
	return nil
}

func (s *WAVSource) run(cb Callback, onErr ErrorHandler) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	step := s.blockFrames * s.clip.Channels
	block := make([]float32, step)
	pos := 0
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
		}

		if pos >= len(s.clip.Samples) {
			if !s.loop {
				if onErr != nil {
					onErr(io.EOF)
				}
				return
			}
			pos = 0
		}
		end := pos + step
		if end > len(s.clip.Samples) {
			end = len(s.clip.Samples)
		}
		n := copy(block, s.clip.Samples[pos:end])
		pos = end
		cb(block[:n])
	}
}

// Close stops delivery and waits for the delivery goroutine to exit.
func (s *WAVSource) Close() error {
	s.mu.Lock()
	started := s.started
	select {
	case <-s.stop:
	default:
		close(s.stop)
	}
	s.mu.Unlock()
	if started {
		<-s.done
	}
	return nil
}
