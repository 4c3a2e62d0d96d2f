package audio

import (
	"errors"
	"io"

	"github.com/go-audio/wav"
)

// Clip is decoded PCM held as interleaved float32 samples in [-1, 1].
type Clip struct {
	Samples    []float32
	Channels   int
	SampleRate int
}

// Frames returns the number of sample frames in the clip.
func (c Clip) Frames() int {
	if c.Channels <= 0 {
		return 0
	}
	return len(c.Samples) / c.Channels
}

// DecodeWAV decodes a WAV stream into interleaved 32-bit float PCM, keeping
// the source channel layout and sample rate.
func DecodeWAV(r io.ReadSeeker) (Clip, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return Clip{}, errors.New("invalid wav file")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil && err != io.EOF {
		return Clip{}, err
	}
	if buf == nil || len(buf.Data) == 0 {
		return Clip{}, errors.New("empty wav buffer")
	}
	bitDepth := buf.SourceBitDepth
	if bitDepth <= 0 {
		bitDepth = int(dec.BitDepth)
	}
	if bitDepth <= 0 {
		bitDepth = 16
	}
	scale := float32(int(1) << (bitDepth - 1))
	out := make([]float32, len(buf.Data))
	for i, v := range buf.Data {
		out[i] = float32(v) / scale
	}

	channels := int(dec.NumChans)
	if channels == 0 && buf.Format != nil {
		channels = buf.Format.NumChannels
	}
	if channels == 0 {
		channels = 1
	}
	sr := int(dec.SampleRate)
	if sr == 0 && buf.Format != nil {
		sr = buf.Format.SampleRate
	}
	if sr == 0 {
		sr = 16000
	}
	return Clip{Samples: out, Channels: channels, SampleRate: sr}, nil
}
