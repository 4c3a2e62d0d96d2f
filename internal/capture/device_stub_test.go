//go:build !portaudio

package capture

import (
	"errors"
	"testing"
)

func TestNewDeviceSource_Unsupported(t *testing.T) {
	if _, err := NewDeviceSource("", 1024); !errors.Is(err, ErrUnsupported) {
		t.Errorf("expected ErrUnsupported, got %v", err)
	}
}
