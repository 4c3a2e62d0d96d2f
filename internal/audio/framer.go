package audio

import (
	"errors"
	"fmt"
)

// Framer turns interleaved capture blocks into one-second chunks of
// peak-normalized 16-bit mono audio at the target rate.
//
// A Framer is not safe for concurrent use; the caller serializes access.
type Framer struct {
	channels     int
	inputRate    float64
	targetRate   float64
	step         float64
	targetWindow int
	inputWindow  int

	raw     []float32 // mono at inputRate, drained front-first
	scratch []float32 // resampled samples of the current window
	pcm     []int16

	written int // mono samples appended since construction or Reset
	drained int // mono samples removed as whole windows
	peak    float32
}

// NewFramer returns a Framer for the given capture format.
func NewFramer(channels int, inputRate, targetRate float64) (*Framer, error) {
	if channels < 1 {
		return nil, fmt.Errorf("channel count %d: %w", channels, ErrInvalidFormat)
	}
	if inputRate <= 0 || targetRate <= 0 {
		return nil, fmt.Errorf("sample rates %.0f -> %.0f: %w", inputRate, targetRate, ErrInvalidFormat)
	}
	targetWindow := int(targetRate)
	inputWindow := int(float64(targetWindow) * inputRate / targetRate)
	if inputWindow < 1 {
		return nil, fmt.Errorf("input window of %d samples: %w", inputWindow, ErrInvalidFormat)
	}
	return &Framer{
		channels:     channels,
		inputRate:    inputRate,
		targetRate:   targetRate,
		step:         inputRate / targetRate,
		targetWindow: targetWindow,
		inputWindow:  inputWindow,
		raw:          make([]float32, 0, 2*inputWindow),
		scratch:      make([]float32, 0, targetWindow+1),
		pcm:          make([]int16, 0, targetWindow+1),
	}, nil
}

// ErrInvalidFormat reports a capture format the framer cannot work with.
var ErrInvalidFormat = errors.New("invalid audio format")

// Write mixes block down to mono and appends it to the raw buffer.
func (f *Framer) Write(block []float32) {
	before := len(f.raw)
	f.raw = Mixdown(f.raw, block, f.channels)
	f.written += len(f.raw) - before
}

// Next drains one input window from the raw buffer and returns it resampled,
// normalized and quantized. It reports false when less than a full window is
// buffered. The returned slice is reused by the following call.
func (f *Framer) Next() ([]int16, bool) {
	if len(f.raw) < f.inputWindow {
		return nil, false
	}
	chunk := f.raw[:f.inputWindow]

	f.scratch = Resample(f.scratch[:0], chunk, f.step)
	f.peak = Normalize(f.scratch)
	f.pcm = Quantize(f.pcm[:0], f.scratch)

	rest := copy(f.raw, f.raw[f.inputWindow:])
	f.raw = f.raw[:rest]
	f.drained += f.inputWindow
	return f.pcm, true
}

// Reset discards all buffered audio.
func (f *Framer) Reset() {
	f.raw = f.raw[:0]
	f.scratch = f.scratch[:0]
	f.pcm = f.pcm[:0]
	f.written = 0
	f.drained = 0
	f.peak = 0
}

// Buffered returns the number of mono samples waiting in the raw buffer.
func (f *Framer) Buffered() int { return len(f.raw) }

// Scratch returns the number of resampled samples held for the last window.
func (f *Framer) Scratch() int { return len(f.scratch) }

// Written returns the number of mono samples accepted since the last Reset.
func (f *Framer) Written() int { return f.written }

// Drained returns the number of mono samples consumed as whole windows since
// the last Reset.
func (f *Framer) Drained() int { return f.drained }

// LastPeak returns the pre-normalization peak of the most recent chunk.
func (f *Framer) LastPeak() float32 { return f.peak }

// InputWindow is the window size in samples at the input rate.
func (f *Framer) InputWindow() int { return f.inputWindow }

// TargetWindow is the nominal window size in samples at the target rate.
func (f *Framer) TargetWindow() int { return f.targetWindow }

// Channels returns the interleaved channel count expected by Write.
func (f *Framer) Channels() int { return f.channels }
