package pipeline

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/2jSoftware/s2t/internal/recognizer"
	"github.com/2jSoftware/s2t/internal/transcript"
)

func TestInvoker_Classification(t *testing.T) {
	tests := []struct {
		name    string
		state   recognizer.DecodingState
		text    string
		publish bool
		kind    transcript.Kind
	}{
		{"partial", recognizer.Running, "hello wor", true, transcript.Partial},
		{"empty partial", recognizer.Running, "", false, ""},
		{"final", recognizer.Finalized, "hello world", true, transcript.Final},
		{"empty final", recognizer.Finalized, "", false, ""},
		{"failed", recognizer.Failed, "ignored", false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestMetrics()
			bus := transcript.NewBus(4)
			sub := bus.Subscribe()
			defer sub.Close()

			eng := &fakeEngine{
				rate:   16000,
				states: []recognizer.DecodingState{tt.state},
				texts:  []string{tt.text},
			}
			ev, ok := NewInvoker(eng, bus, m).Invoke(make([]int16, 160))
			if ok != tt.publish {
				t.Fatalf("expected publish=%v, got %v", tt.publish, ok)
			}
			if eng.calls != 1 {
				t.Errorf("expected one engine call, got %d", eng.calls)
			}

			r, queued := sub.TryRecv()
			if queued != tt.publish {
				t.Fatalf("expected queued=%v, got %v", tt.publish, queued)
			}
			if !tt.publish {
				return
			}
			want := transcript.Event{Kind: tt.kind, Text: tt.text}
			if ev != want || r.Event != want {
				t.Errorf("expected %+v, got returned %+v and delivered %+v", want, ev, r.Event)
			}
			if got := testutil.ToFloat64(m.TranscriptsPublished.WithLabelValues(string(tt.kind))); got != 1 {
				t.Errorf("expected published counter 1, got %v", got)
			}
		})
	}
}

func TestInvoker_FailureIsCounted(t *testing.T) {
	m := newTestMetrics()
	eng := &fakeEngine{
		rate:   16000,
		states: []recognizer.DecodingState{recognizer.Failed, recognizer.Failed, recognizer.Running},
		texts:  []string{"", "", "recovered"},
	}
	iv := NewInvoker(eng, transcript.NewBus(4), m)
	for i := 0; i < 2; i++ {
		if _, ok := iv.Invoke(nil); ok {
			t.Fatal("failed decode must not publish")
		}
	}
	if _, ok := iv.Invoke(nil); !ok {
		t.Error("expected processing to continue after failures")
	}
	if got := testutil.ToFloat64(m.DecodeFailures); got != 2 {
		t.Errorf("expected 2 failures, got %v", got)
	}
}

func TestInvoker_OrderAcrossSubscribers(t *testing.T) {
	m := newTestMetrics()
	bus := transcript.NewBus(8)
	a, b := bus.Subscribe(), bus.Subscribe()
	defer a.Close()
	defer b.Close()

	eng := &fakeEngine{
		rate:   16000,
		states: []recognizer.DecodingState{recognizer.Running, recognizer.Running, recognizer.Finalized},
		texts:  []string{"the", "the quick", "the quick fox"},
	}
	iv := NewInvoker(eng, bus, m)
	for i := 0; i < 3; i++ {
		iv.Invoke(nil)
	}
	for _, s := range []*transcript.Subscription{a, b} {
		for _, want := range eng.texts {
			r, ok := s.TryRecv()
			if !ok || r.Event.Text != want {
				t.Fatalf("expected %q, got %+v", want, r)
			}
		}
	}
}
