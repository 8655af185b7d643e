package cmd

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/soniclab/midicap/internal/capture"
	"github.com/soniclab/midicap/internal/playback"

	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:   "info [midi-file]",
	Short: "Show the duration and planned capture parameters for a MIDI file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		midiPath := args[0]

		dur, err := playback.Duration(midiPath)
		if err != nil {
			return err
		}

		plan := capture.Plan{
			Duration:        dur,
			SampleRate:      cfg.Capture.SampleRate,
			FramesPerBuffer: cfg.Capture.FramesPerBuffer,
			TailSlack:       cfg.Capture.TailSlackSec,
		}

		stem := strings.TrimSuffix(filepath.Base(midiPath), filepath.Ext(midiPath))
		dir := cfg.Output.Directory
		if dir == "" {
			dir = filepath.Dir(midiPath)
		}
		defaultOut := filepath.Join(dir, stem+"."+cfg.Output.Format)

		fmt.Printf("=== FILE ===\n")
		fmt.Printf("midi: %s\n", midiPath)
		fmt.Printf("duration: %.2f seconds\n", dur)
		fmt.Printf("default_output: %s\n", defaultOut)

		fmt.Printf("\n=== CAPTURE PLAN ===\n")
		fmt.Printf("device: %s\n", cfg.Capture.DeviceName)
		fmt.Printf("stream: %d ch / %d Hz / %d bit\n", cfg.Capture.Channels, cfg.Capture.SampleRate, cfg.Capture.SampleBits)
		fmt.Printf("frames_per_buffer: %d\n", cfg.Capture.FramesPerBuffer)
		fmt.Printf("tail_slack: %.1f seconds\n", cfg.Capture.TailSlackSec)
		fmt.Printf("buffer_reads: %d\n", plan.ReadCount())

		return nil
	},
}
