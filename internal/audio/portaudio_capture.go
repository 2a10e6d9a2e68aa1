//go:build portaudio

package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/gordonklaus/portaudio"

	"limetuna/internal/ports"
)

const defaultFramesPerBuffer = 1024

// PortAudioCapture records 16-bit PCM from the default input device.
type PortAudioCapture struct {
	framesPerBuffer int
}

func NewPortAudioCapture(framesPerBuffer int) *PortAudioCapture {
	if framesPerBuffer <= 0 {
		framesPerBuffer = defaultFramesPerBuffer
	}
	return &PortAudioCapture{framesPerBuffer: framesPerBuffer}
}

func (c *PortAudioCapture) Available() error {
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("portaudio init: %w", err)
	}
	defer portaudio.Terminate()

	if _, err := portaudio.DefaultInputDevice(); err != nil {
		return fmt.Errorf("no default input device: %w", err)
	}
	return nil
}

func (c *PortAudioCapture) Start(ctx context.Context, cfg ports.AudioConfig) (ports.AudioSession, error) {
	cfg = withCaptureDefaults(cfg)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio init: %w", err)
	}

	buffer := make([]int16, c.framesPerBuffer*cfg.Channels)
	stream, err := portaudio.OpenDefaultStream(cfg.Channels, 0, float64(cfg.SampleRate), c.framesPerBuffer, buffer)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("failed to open input stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("failed to start input stream: %w", err)
	}

	session := &portAudioSession{stream: stream, buffer: buffer}
	session.reader = &frameReader{next: session.nextFrame}

	go func() {
		<-ctx.Done()
		_ = session.Stop()
	}()
	return session, nil
}

type portAudioSession struct {
	stream *portaudio.Stream
	buffer []int16
	reader *frameReader
	frame  []byte

	mu      sync.Mutex
	stopped bool
	stopErr error
}

func (s *portAudioSession) nextFrame() ([]byte, error) {
	s.mu.Lock()
	stopped := s.stopped
	s.mu.Unlock()
	if stopped {
		return nil, io.EOF
	}

	if err := s.stream.Read(); err != nil {
		s.mu.Lock()
		stopped = s.stopped
		s.mu.Unlock()
		if stopped {
			return nil, io.EOF
		}
		// Overflow only means samples were dropped.
		if !errors.Is(err, portaudio.InputOverflowed) {
			return nil, err
		}
	}
	s.frame = appendInt16LE(s.frame[:0], s.buffer)
	return s.frame, nil
}

func (s *portAudioSession) Read(p []byte) (int, error) {
	return s.reader.Read(p)
}

func (s *portAudioSession) Close() error {
	return s.Stop()
}

func (s *portAudioSession) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return s.stopErr
	}
	s.stopped = true

	if err := s.stream.Stop(); err != nil {
		s.stopErr = err
	}
	if err := s.stream.Close(); err != nil && s.stopErr == nil {
		s.stopErr = err
	}
	portaudio.Terminate()
	return s.stopErr
}
