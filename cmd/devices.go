package cmd

import (
	"fmt"

	"github.com/soniclab/midicap/internal/capture"

	"github.com/spf13/cobra"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List available audio devices",
	Long: `List the capture and playback devices visible to the audio backend.
The configured virtual capture device must appear in the capture list for
recording to work.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		captureNames, playbackNames, err := capture.ListDevices()
		if err != nil {
			return fmt.Errorf("failed to list audio devices: %w", err)
		}

		fmt.Printf("CAPTURE DEVICES (%d found):\n", len(captureNames))
		for i, name := range captureNames {
			marker := ""
			if name == cfg.Capture.DeviceName {
				marker = "  <- configured capture device"
			}
			fmt.Printf("  %d. %s%s\n", i+1, name, marker)
		}

		fmt.Printf("\nPLAYBACK DEVICES (%d found):\n", len(playbackNames))
		for i, name := range playbackNames {
			fmt.Printf("  %d. %s\n", i+1, name)
		}

		found := false
		for _, name := range captureNames {
			if name == cfg.Capture.DeviceName {
				found = true
				break
			}
		}
		if !found {
			fmt.Printf("\nWarning: configured capture device %q not found.\n", cfg.Capture.DeviceName)
			fmt.Println("Install a loopback driver (Soundflower, BlackHole) or adjust capture.device_name.")
		}
		return nil
	},
}
