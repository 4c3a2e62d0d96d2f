package capture

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

func writeWAV(t *testing.T, frames, channels, sampleRate int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	data := make([]int, frames*channels)
	for i := range data {
		data[i] = (i % 200) * 100
	}
	enc := wav.NewEncoder(f, sampleRate, 16, channels, 1)
	if err := enc.Write(&goaudio.IntBuffer{
		Data:           data,
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: sampleRate},
		SourceBitDepth: 16,
	}); err != nil {
		t.Fatal(err)
	}
	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}

type blockRecorder struct {
	mu      sync.Mutex
	blocks  int
	samples int
	odd     bool
}

func (r *blockRecorder) record(channels int) Callback {
	return func(block []float32) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.blocks++
		r.samples += len(block)
		if len(block)%channels != 0 {
			r.odd = true
		}
	}
}

func (r *blockRecorder) totals() (int, int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.blocks, r.samples, r.odd
}

func TestWAVSource_ReplaysWholeClip(t *testing.T) {
	path := writeWAV(t, 850, 2, 8000)
	src, err := NewWAVSource(path, 80, false)
	if err != nil {
		t.Fatalf("NewWAVSource: %v", err)
	}
	defer src.Close()

	if f := src.Format(); f.Channels != 2 || f.SampleRate != 8000 {
		t.Fatalf("unexpected format %+v", f)
	}

	rec := &blockRecorder{}
	eof := make(chan error, 1)
	if err := src.Start(rec.record(2), func(err error) { eof <- err }); err != nil {
		t.Fatalf("Start: %v", err)
	}

	select {
	case err := <-eof:
		if !errors.Is(err, io.EOF) {
			t.Errorf("expected io.EOF, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("clip never finished")
	}

	blocks, samples, odd := rec.totals()
	if samples != 850*2 {
		t.Errorf("expected %d samples, got %d", 850*2, samples)
	}
	if blocks != 11 {
		t.Errorf("expected 11 blocks, got %d", blocks)
	}
	if odd {
		t.Error("block split a frame")
	}
}

func TestWAVSource_LoopsUntilClosed(t *testing.T) {
	path := writeWAV(t, 160, 1, 8000)
	src, err := NewWAVSource(path, 80, true)
	if err != nil {
		t.Fatal(err)
	}
	rec := &blockRecorder{}
	if err := src.Start(rec.record(1), nil); err != nil {
		t.Fatal(err)
	}
	if err := src.Start(rec.record(1), nil); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("expected ErrAlreadyStarted, got %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, samples, _ := rec.totals(); samples > 3*160 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("looping source stalled")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if err := src.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	_, after, _ := rec.totals()
	time.Sleep(50 * time.Millisecond)
	if _, later, _ := rec.totals(); later != after {
		t.Error("blocks delivered after Close")
	}
}

func TestWAVSource_MissingFile(t *testing.T) {
	if _, err := NewWAVSource(filepath.Join(t.TempDir(), "nope.wav"), 80, false); err == nil {
		t.Error("expected an error for a missing file")
	}
}

func TestWAVSource_CloseWithoutStart(t *testing.T) {
	src, err := NewWAVSource(writeWAV(t, 80, 1, 8000), 80, false)
	if err != nil {
		t.Fatal(err)
	}
	if err := src.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if err := src.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}
