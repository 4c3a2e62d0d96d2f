package pipeline

import (
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/2jSoftware/s2t/internal/metrics"
	"github.com/2jSoftware/s2t/internal/recognizer"
	"github.com/2jSoftware/s2t/internal/transcript"
)

// Publisher receives transcript events. *transcript.Bus satisfies it.
type Publisher interface {
	Publish(ev transcript.Event) int
}

// Invoker feeds chunks to the recognizer and publishes what it reports.
// It is called with the State lock held and is never run concurrently.
type Invoker struct {
	engine  recognizer.Engine
	pub     Publisher
	metrics *metrics.Metrics
	failLog *rate.Limiter
}

func NewInvoker(engine recognizer.Engine, pub Publisher, m *metrics.Metrics) *Invoker {
	return &Invoker{
		engine:  engine,
		pub:     pub,
		metrics: m,
		failLog: rate.NewLimiter(rate.Every(5*time.Second), 1),
	}
}

// Invoke runs one chunk through the engine. It returns the published event,
// or false when the engine produced nothing to publish.
func (iv *Invoker) Invoke(pcm []int16) (transcript.Event, bool) {
	var ev transcript.Event
	switch state := iv.engine.Accept(pcm); state {
	case recognizer.Running:
		ev = transcript.Event{Kind: transcript.Partial, Text: iv.engine.PartialText()}
	case recognizer.Finalized:
		ev = transcript.Event{Kind: transcript.Final, Text: iv.engine.FinalResult()}
	default:
		iv.metrics.DecodeFailures.Inc()
		if iv.failLog.Allow() {
			log.Warn().Str("state", state.String()).Int("samples", len(pcm)).Msg("speech recognition failed")
		}
		return transcript.Event{}, false
	}
	if ev.Text == "" {
		return transcript.Event{}, false
	}

	n := iv.pub.Publish(ev)
	iv.metrics.TranscriptsPublished.WithLabelValues(string(ev.Kind)).Inc()
	log.Debug().Str("type", string(ev.Kind)).Str("text", ev.Text).Int("subscribers", n).Msg("transcript published")
	return ev, true
}
