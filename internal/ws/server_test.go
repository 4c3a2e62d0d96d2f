package ws

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/2jSoftware/s2t/internal/metrics"
	"github.com/2jSoftware/s2t/internal/transcript"
)

type call struct {
	on     bool
	device string
}

type fakeRecorder struct {
	mu    sync.Mutex
	busy  bool
	calls []call
}

func (f *fakeRecorder) SetRecording(on bool, deviceID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.busy {
		return false
	}
	f.calls = append(f.calls, call{on, deviceID})
	return true
}

func (f *fakeRecorder) snapshot() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func newTestServer(t *testing.T) (*Server, *transcript.Bus, *fakeRecorder, *metrics.Metrics, string) {
	t.Helper()
	bus := transcript.NewBus(4)
	rec := &fakeRecorder{}
	m := metrics.New(prometheus.NewRegistry())
	srv := NewServer(bus, rec, m)
	ts := httptest.NewServer(http.HandlerFunc(srv.Handle))
	t.Cleanup(ts.Close)
	return srv, bus, rec, m, "ws" + ts.URL[4:]
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHandle_BroadcastsToAllClients(t *testing.T) {
	_, bus, _, m, url := newTestServer(t)
	a := dial(t, url)
	b := dial(t, url)
	waitFor(t, "two subscribers", func() bool { return bus.Len() == 2 })

	if got := testutil.ToFloat64(m.ActiveSessions); got != 2 {
		t.Errorf("expected 2 active sessions, got %v", got)
	}

	events := []transcript.Event{
		{Kind: transcript.Partial, Text: "good"},
		{Kind: transcript.Final, Text: "good morning"},
	}
	for _, ev := range events {
		bus.Publish(ev)
	}

	for name, conn := range map[string]*websocket.Conn{"a": a, "b": b} {
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		for i, want := range events {
			var got transcript.Event
			if err := conn.ReadJSON(&got); err != nil {
				t.Fatalf("%s: read %d: %v", name, i, err)
			}
			if got != want {
				t.Errorf("%s[%d]: expected %+v, got %+v", name, i, want, got)
			}
		}
	}
}

func TestHandle_WireFormat(t *testing.T) {
	_, bus, _, _, url := newTestServer(t)
	conn := dial(t, url)
	waitFor(t, "subscriber", func() bool { return bus.Len() == 1 })

	bus.Publish(transcript.Event{Kind: transcript.Final, Text: "hi"})
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	mt, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	if mt != websocket.TextMessage {
		t.Errorf("expected text frame, got %d", mt)
	}
	if string(data) != "{\"type\":\"final\",\"text\":\"hi\"}\n" {
		t.Errorf("unexpected payload %q", data)
	}
}

func TestHandle_ControlMessages(t *testing.T) {
	_, _, rec, m, url := newTestServer(t)
	conn := dial(t, url)

	msgs := []string{
		`{"type":"recording_state","isRecording":true,"deviceId":"mic-1"}`,
		`not json`,
		`{"type":"subscribe","isRecording":true}`,
		`{"type":"recording_state","is_recording":false,"device_id":"mic-2"}`,
		`{"type":"recording_state"}`,
	}
	for _, msg := range msgs {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
			t.Fatal(err)
		}
	}
	waitFor(t, "three applied updates", func() bool { return len(rec.snapshot()) == 3 })

	want := []call{{true, "mic-1"}, {false, "mic-2"}, {false, ""}}
	for i, c := range rec.snapshot() {
		if c != want[i] {
			t.Errorf("call %d: expected %+v, got %+v", i, want[i], c)
		}
	}
	if got := testutil.ToFloat64(m.ControlMessages.WithLabelValues(metrics.ControlIgnored)); got != 2 {
		t.Errorf("expected 2 ignored messages, got %v", got)
	}
}

func TestHandle_DisconnectUnsubscribes(t *testing.T) {
	_, bus, _, m, url := newTestServer(t)
	conn := dial(t, url)
	waitFor(t, "subscriber", func() bool { return bus.Len() == 1 })

	conn.Close()
	waitFor(t, "unsubscribe", func() bool { return bus.Len() == 0 })
	waitFor(t, "session gauge", func() bool { return testutil.ToFloat64(m.ActiveSessions) == 0 })

	if n := bus.Publish(transcript.Event{Kind: transcript.Final, Text: "nobody"}); n != 0 {
		t.Errorf("expected no receivers, got %d", n)
	}
}

func TestHandle_SlowClientDoesNotBlockPublisher(t *testing.T) {
	_, bus, _, _, url := newTestServer(t)
	dial(t, url)
	waitFor(t, "subscriber", func() bool { return bus.Len() == 1 })

	done := make(chan struct{})
	go func() {
		for i := 0; i < 5000; i++ {
			bus.Publish(transcript.Event{Kind: transcript.Partial, Text: "spam spam spam spam"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("publisher blocked by a client that never reads")
	}
}

func TestHandleControl_Dropped(t *testing.T) {
	bus := transcript.NewBus(1)
	rec := &fakeRecorder{busy: true}
	m := metrics.New(prometheus.NewRegistry())
	srv := NewServer(bus, rec, m)

	got := srv.handleControl([]byte(`{"type":"recording_state","isRecording":true}`), zerolog.Nop())
	if got != metrics.ControlDropped {
		t.Errorf("expected dropped, got %s", got)
	}
	rec.busy = false
	got = srv.handleControl([]byte(`{"type":"recording_state","isRecording":true}`), zerolog.Nop())
	if got != metrics.ControlApplied {
		t.Errorf("expected applied, got %s", got)
	}
}
