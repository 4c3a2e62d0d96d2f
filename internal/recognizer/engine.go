package recognizer

// DecodingState classifies the engine's progress on the current utterance
// after a chunk has been accepted.
type DecodingState int

const (
	// Running means an utterance is in progress; PartialText holds the current hypothesis.
	Running DecodingState = iota
	// Finalized means an utterance was closed; FinalResult holds its text.
	Finalized
	// Failed means the chunk could not be decoded. The stream stays usable.
	Failed
)

func (s DecodingState) String() string {
	switch s {
	case Running:
		return "running"
	case Finalized:
		return "finalized"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Engine is a streaming speech recognizer fed with 16-bit mono PCM at a fixed
// sample rate. Implementations may be a no-op (stub) or backed by whisper.cpp
// (build tag: whisper_cpp).
//
// Engines are single-threaded: callers must not invoke methods concurrently.
type Engine interface {
	// Accept feeds one chunk of samples. The slice may be reused by the caller
	// once Accept returns.
	Accept(samples []int16) DecodingState
	// PartialText returns the in-progress hypothesis after a Running result.
	PartialText() string
	// FinalResult returns the closed utterance after a Finalized result.
	FinalResult() string
	// SampleRate is the rate the engine was constructed with.
	SampleRate() float64
	Close() error
}
