// Package playback starts the synthesized playback of a MIDI file and
// answers how long it will play. No synthesis happens in-process: playback
// is delegated to an external synthesizer found on PATH.
package playback

import (
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"gitlab.com/gomidi/midi/v2/smf"
)

// Duration returns the playing time of the MIDI file in seconds, computed
// from the file's own tempo map, not measured from any audio.
func Duration(path string) (float64, error) {
	var maxMicros int64
	err := smf.ReadTracks(path).Do(func(ev smf.TrackEvent) {
		if ev.AbsMicroSeconds > maxMicros {
			maxMicros = ev.AbsMicroSeconds
		}
	}).Error()
	if err != nil {
		return 0, fmt.Errorf("failed to read MIDI file %s: %w", path, err)
	}
	return float64(maxMicros) / 1e6, nil
}

// Player launches an external MIDI synthesizer for asynchronous playback.
type Player struct {
	// Candidates are tried in order with exec.LookPath.
	Candidates []string
	// SoundFont is passed to players that need one (fluidsynth). A player
	// requiring a soundfont is skipped when none is configured.
	SoundFont string
}

// Start begins playback of the MIDI file and returns without waiting for it
// to finish. The synthesizer process is reaped in the background.
func (p *Player) Start(midiPath string) error {
	player, err := p.findPlayer()
	if err != nil {
		return err
	}

	var cmd *exec.Cmd
	switch player {
	case "timidity":
		cmd = exec.Command("timidity", "-Oj", midiPath)
	case "fluidsynth":
		cmd = exec.Command("fluidsynth", "-i", p.SoundFont, midiPath)
	default:
		cmd = exec.Command(player, midiPath)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start playback with %s: %w", player, err)
	}
	slog.Info("Playback started", "player", player, "file", midiPath)

	go func() {
		if err := cmd.Wait(); err != nil {
			slog.Debug("Synth player exited with error", "player", player, "error", err)
		}
	}()
	return nil
}

func (p *Player) findPlayer() (string, error) {
	for _, candidate := range p.Candidates {
		if candidate == "fluidsynth" && p.SoundFont == "" {
			slog.Debug("Skipping fluidsynth, no soundfont configured")
			continue
		}
		if _, err := exec.LookPath(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no MIDI player found (tried: %s)", strings.Join(p.Candidates, ", "))
}
