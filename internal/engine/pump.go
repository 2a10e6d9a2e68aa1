package engine

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"limetuna/internal/domain"
)

const (
	defaultChunkSize = 3200
	minChunkSize     = 256
	silenceDB        = -100
)

// pumpAudio copies capture chunks into the stream until the capture ends. It
// reports nil on a clean end of capture.
func pumpAudio(audio io.Reader, stream Stream, chunkSize int, onChunk func([]byte), result chan<- error) {
	if chunkSize < minChunkSize {
		chunkSize = defaultChunkSize
	}

	buf := make([]byte, chunkSize)
	for {
		n, err := audio.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			if onChunk != nil {
				onChunk(chunk)
			}
			if sendErr := stream.SendAudio(chunk); sendErr != nil {
				result <- WithCode(domain.EngineErrorNetwork, fmt.Errorf("failed to stream audio: %w", sendErr))
				return
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
				result <- nil
				return
			}
			result <- WithCode(domain.EngineErrorAudio, fmt.Errorf("audio capture error: %w", err))
			return
		}
	}
}

// levelDB returns the RMS level of little-endian 16-bit PCM in dBFS.
func levelDB(chunk []byte) float32 {
	samples := len(chunk) / 2
	if samples == 0 {
		return silenceDB
	}

	var sum float64
	for i := 0; i+1 < len(chunk); i += 2 {
		s := float64(int16(binary.LittleEndian.Uint16(chunk[i:]))) / 32768
		sum += s * s
	}
	rms := math.Sqrt(sum / float64(samples))
	if rms <= 0 {
		return silenceDB
	}
	db := 20 * math.Log10(rms)
	if db < silenceDB {
		return silenceDB
	}
	return float32(db)
}
