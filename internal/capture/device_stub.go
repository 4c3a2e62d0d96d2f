//go:build !portaudio

package capture

// NewDeviceSource needs the portaudio build tag and the PortAudio C library.
func NewDeviceSource(name string, blockFrames int) (Source, error) {
	return nil, ErrUnsupported
}
