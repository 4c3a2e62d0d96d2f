//go:build whisper_cpp

package recognizer

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strconv"
	"strings"

	whisperpkg "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
	"github.com/rs/zerolog/log"
)

// whisper.cpp only decodes 16 kHz mono.
const whisperSampleRate = 16000

// EngineCPP adapts whisper.cpp, which transcribes whole buffers, to the
// streaming Accept contract. Each accepted chunk extends the current
// utterance and the utterance is re-decoded; it is finalized when the
// transcript stops changing or the utterance hits its length cap.
type EngineCPP struct {
	model    whisperpkg.Model
	threads  uint
	language string

	utt     *utterance
	partial string
	final   string
}

func NewEngine(modelPath string, sampleRate float64) (Engine, error) {
	if sampleRate != whisperSampleRate {
		return nil, fmt.Errorf("whisper requires %d Hz input, got %.0f", whisperSampleRate, sampleRate)
	}

	threads := uint(runtime.NumCPU())
	if v := os.Getenv("WHISPER_THREADS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			threads = uint(n)
			log.Info().Int("threads", n).Msg("whisper: using configured thread count")
		}
	} else {
		log.Info().Uint("threads", threads).Msg("whisper: using default thread count (CPU cores)")
	}

	stablePasses := 2
	if v := os.Getenv("WHISPER_FINALIZE_PASSES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			stablePasses = n
		}
	}
	maxSeconds := 10
	if v := os.Getenv("WHISPER_MAX_UTTERANCE_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			maxSeconds = n
		}
	}
	language := "en"
	if v := os.Getenv("WHISPER_LANGUAGE"); v != "" {
		language = v
	}

	log.Info().
		Int("stablePasses", stablePasses).
		Int("maxUtteranceSeconds", maxSeconds).
		Str("language", language).
		Msg("whisper: streaming configuration")

	m, err := whisperpkg.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("load model: %w", err)
	}
	log.Info().Str("model", modelPath).Msg("whisper: model loaded successfully")

	return &EngineCPP{
		model:    m,
		threads:  threads,
		language: language,
		utt:      newUtterance(stablePasses, maxSeconds*whisperSampleRate),
	}, nil
}

func (e *EngineCPP) Accept(samples []int16) DecodingState {
	e.utt.append(samples)

	text, err := e.decode(e.utt.samples)
	if err != nil {
		log.Warn().Err(err).Int("samples", len(e.utt.samples)).Msg("whisper: decode failed")
		return Failed
	}
	if e.utt.observe(text) {
		e.final = strings.TrimSpace(text)
		e.partial = ""
		e.utt.reset()
		return Finalized
	}
	e.partial = strings.TrimSpace(text)
	return Running
}

func (e *EngineCPP) PartialText() string { return e.partial }
func (e *EngineCPP) FinalResult() string { return e.final }
func (e *EngineCPP) SampleRate() float64 { return whisperSampleRate }

func (e *EngineCPP) Close() error {
	if e.model != nil {
		return e.model.Close()
	}
	return nil
}

// decode runs a full pass over samples and joins the segment texts.
func (e *EngineCPP) decode(samples []float32) (string, error) {
	ctx, err := e.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("create context: %w", err)
	}
	ctx.SetThreads(e.threads)
	_ = ctx.SetLanguage(e.language)
	ctx.SetSplitOnWord(true)
	ctx.SetMaxSegmentLength(0)
	ctx.SetMaxTokensPerSegment(0)

	if err := ctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("process audio: %w", err)
	}

	var segments []string
	for {
		seg, err := ctx.NextSegment()
		if err != nil {
			if err == io.EOF {
				break
			}
			return "", fmt.Errorf("read segment: %w", err)
		}
		if text := strings.TrimSpace(seg.Text); text != "" {
			segments = append(segments, text)
		}
	}
	return strings.Join(segments, " "), nil
}
