package usecase

import (
	"log/slog"

	"limetuna/internal/domain"
	"limetuna/internal/ports"
)

// muteController zeroes the non-media streams to suppress recognizer beeps and
// restores them later. It is only touched from the main loop.
type muteController struct {
	volume ports.VolumeControl
	log    *slog.Logger

	muted bool
	saved map[domain.AudioStream]int
}

func newMuteController(volume ports.VolumeControl, log *slog.Logger) *muteController {
	return &muteController{volume: volume, log: log}
}

func (m *muteController) set(mute bool) {
	if mute {
		m.mute()
		return
	}
	m.restore()
}

func (m *muteController) mute() {
	if m.muted {
		return
	}

	saved := make(map[domain.AudioStream]int, len(domain.MutedStreams))
	for _, stream := range domain.MutedStreams {
		level, err := m.volume.StreamVolume(stream)
		if err != nil || level < 0 {
			m.log.Warn("failed to read stream volume", "stream", stream, "error", err)
			saved[stream] = domain.UnknownVolume
			continue
		}
		saved[stream] = level
	}

	for _, stream := range domain.MutedStreams {
		if saved[stream] < 0 {
			continue
		}
		if err := m.volume.SetStreamVolume(stream, 0); err != nil {
			m.log.Warn("failed to mute stream", "stream", stream, "error", err)
		}
	}

	m.saved = saved
	m.muted = true
	m.log.Debug("system/notification/ring volumes muted", "saved", saved)
}

func (m *muteController) restore() {
	if !m.muted {
		return
	}

	for _, stream := range domain.MutedStreams {
		level, ok := m.saved[stream]
		if !ok || level < 0 {
			continue
		}
		if err := m.volume.SetStreamVolume(stream, level); err != nil {
			m.log.Warn("failed to restore stream volume", "stream", stream, "level", level, "error", err)
		}
	}

	m.muted = false
	m.saved = nil
	m.log.Debug("system/notification/ring volumes restored")
}
