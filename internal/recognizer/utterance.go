package recognizer

import "strings"

// utterance accumulates audio for the hypothesis currently being decoded and
// decides when it is stable enough to close. An utterance is finalized once
// the same non-empty transcript is produced stablePasses times in a row, or
// when it reaches maxSamples.
type utterance struct {
	stablePasses int
	maxSamples   int

	samples    []float32
	lastText   string
	stableHits int
}

func newUtterance(stablePasses, maxSamples int) *utterance {
	if stablePasses < 1 {
		stablePasses = 1
	}
	return &utterance{
		stablePasses: stablePasses,
		maxSamples:   maxSamples,
		samples:      make([]float32, 0, maxSamples),
	}
}

func (u *utterance) append(pcm []int16) {
	for _, s := range pcm {
		u.samples = append(u.samples, float32(s)/32768.0)
	}
}

// observe records the transcript of the latest decoding pass and reports
// whether the utterance should be closed.
func (u *utterance) observe(text string) bool {
	text = strings.TrimSpace(text)
	full := u.maxSamples > 0 && len(u.samples) >= u.maxSamples
	if text == "" {
		u.lastText = ""
		u.stableHits = 0
		if full {
			u.reset()
		}
		return false
	}
	if text == u.lastText {
		u.stableHits++
	} else {
		u.lastText = text
		u.stableHits = 1
	}
	return u.stableHits >= u.stablePasses || full
}

func (u *utterance) reset() {
	u.samples = u.samples[:0]
	u.lastText = ""
	u.stableHits = 0
}
