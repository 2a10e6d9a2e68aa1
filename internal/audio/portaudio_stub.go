//go:build !portaudio

package audio

import (
	"context"
	"errors"

	"limetuna/internal/ports"
)

var errPortAudioDisabled = errors.New("portaudio capture requires building with -tags portaudio")

// PortAudioCapture is unavailable in builds without the portaudio tag.
type PortAudioCapture struct{}

func NewPortAudioCapture(int) *PortAudioCapture {
	return &PortAudioCapture{}
}

func (c *PortAudioCapture) Available() error {
	return errPortAudioDisabled
}

func (c *PortAudioCapture) Start(context.Context, ports.AudioConfig) (ports.AudioSession, error) {
	return nil, errPortAudioDisabled
}
