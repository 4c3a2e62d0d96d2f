// Package capture delivers live audio as blocks of interleaved float32
// samples through a callback.
package capture

import "errors"

// ErrUnsupported is returned when a source is not compiled into the binary.
var ErrUnsupported = errors.New("capture source not supported in this build")

// ErrAlreadyStarted is returned when Start is called twice.
var ErrAlreadyStarted = errors.New("capture already started")

// Format is fixed for the lifetime of a source.
type Format struct {
	Channels   int
	SampleRate float64
}

// Callback receives one block of interleaved samples. It runs on the
// source's delivery thread and must not block; the block is only valid for
// the duration of the call.
type Callback func(block []float32)

// ErrorHandler receives stream errors reported out of band.
type ErrorHandler func(err error)

// Source is a running audio input.
type Source interface {
	Format() Format
	Start(cb Callback, onErr ErrorHandler) error
	Close() error
}
