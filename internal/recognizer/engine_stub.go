//go:build !whisper_cpp

package recognizer

import "github.com/rs/zerolog/log"

// stubEngine stands in for whisper.cpp in builds without the whisper_cpp
// tag. It never produces text.
type stubEngine struct {
	sampleRate float64
}

func NewEngine(modelPath string, sampleRate float64) (Engine, error) {
	log.Warn().Str("model", modelPath).Msg("recognizer: built without whisper_cpp, transcripts will be empty")
	return &stubEngine{sampleRate: sampleRate}, nil
}

func (e *stubEngine) Accept(samples []int16) DecodingState { return Running }
func (e *stubEngine) PartialText() string                  { return "" }
func (e *stubEngine) FinalResult() string                  { return "" }
func (e *stubEngine) SampleRate() float64                  { return e.sampleRate }
func (e *stubEngine) Close() error                         { return nil }
