//go:build portaudio

package capture

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/rs/zerolog/log"
)

// ErrInputOverflow is reported when the device overran the callback.
var ErrInputOverflow = errors.New("audio input overflow")

// DeviceSource captures from a PortAudio input device using its default
// sample rate. At most two channels are opened.
type DeviceSource struct {
	device      *portaudio.DeviceInfo
	channels    int
	blockFrames int

	mu     sync.Mutex
	stream *portaudio.Stream
}

// NewDeviceSource opens the input device whose name equals name, or the
// default input device when name is empty.
func NewDeviceSource(name string, blockFrames int) (Source, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio init: %w", err)
	}
	dev, err := findInputDevice(name)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, err
	}
	channels := dev.MaxInputChannels
	if channels > 2 {
		channels = 2
	}
	if blockFrames <= 0 {
		blockFrames = 1024
	}
	log.Info().
		Str("device", dev.Name).
		Int("channels", channels).
		Float64("sample_rate", dev.DefaultSampleRate).
		Dur("latency", dev.DefaultLowInputLatency).
		Msg("using input device")
	return &DeviceSource{device: dev, channels: channels, blockFrames: blockFrames}, nil
}

func findInputDevice(name string) (*portaudio.DeviceInfo, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	for _, d := range devices {
		if d.MaxInputChannels > 0 {
			log.Debug().Str("device", d.Name).Int("max_input_channels", d.MaxInputChannels).
				Float64("default_sample_rate", d.DefaultSampleRate).Msg("available input device")
		}
	}
	if name == "" {
		dev, err := portaudio.DefaultInputDevice()
		if err != nil {
			return nil, fmt.Errorf("no input device available: %w", err)
		}
		return dev, nil
	}
	for _, d := range devices {
		if d.Name == name && d.MaxInputChannels > 0 {
			return d, nil
		}
	}
	return nil, fmt.Errorf("input device %q not found", name)
}

func (s *DeviceSource) Format() Format {
	return Format{Channels: s.channels, SampleRate: s.device.DefaultSampleRate}
}

// Start opens the stream. cb runs on the PortAudio callback thread.
func (s *DeviceSource) Start(cb Callback, onErr ErrorHandler) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream != nil {
		return ErrAlreadyStarted
	}
	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   s.device,
			Channels: s.channels,
			Latency:  s.device.DefaultLowInputLatency,
		},
		SampleRate:      s.device.DefaultSampleRate,
		FramesPerBuffer: s.blockFrames,
	}
	stream, err := portaudio.OpenStream(params, streamCallback(cb, onErr))
	if err != nil {
		return fmt.Errorf("open stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return fmt.Errorf("start stream: %w", err)
	}
	s.stream = stream
	log.Info().Str("device", s.device.Name).Msg("audio stream started")
	return nil
}

// streamCallback adapts cb to the input-only callback shape PortAudio
// accepts: buffer, then time info, then status flags.
func streamCallback(cb Callback, onErr ErrorHandler) func([]float32, portaudio.StreamCallbackTimeInfo, portaudio.StreamCallbackFlags) {
	return func(in []float32, _ portaudio.StreamCallbackTimeInfo, flags portaudio.StreamCallbackFlags) {
		if flags&portaudio.InputOverflow != 0 && onErr != nil {
			onErr(ErrInputOverflow)
		}
		cb(in)
	}
}

func (s *DeviceSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var err error
	if s.stream != nil {
		err = errors.Join(s.stream.Stop(), s.stream.Close())
		s.stream = nil
	}
	return errors.Join(err, portaudio.Terminate())
}
