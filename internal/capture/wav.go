package capture

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// writeWAV wraps the raw little-endian PCM data in a WAV container carrying
// the plan's channel count, sample width and rate.
func writeWAV(path string, plan Plan, pcm []byte) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	enc := wav.NewEncoder(f, plan.SampleRate, plan.SampleBits, plan.Channels, 1)

	samples := make([]int, len(pcm)/2)
	for i := range samples {
		samples[i] = int(int16(binary.LittleEndian.Uint16(pcm[2*i:])))
	}
	buf := &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: plan.Channels,
			SampleRate:  plan.SampleRate,
		},
		SourceBitDepth: plan.SampleBits,
		Data:           samples,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("finalize %s: %w", path, err)
	}
	return nil
}
