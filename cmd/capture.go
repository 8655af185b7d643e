package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/soniclab/midicap/internal/noise"
	"github.com/soniclab/midicap/internal/session"

	"github.com/spf13/cobra"
)

var captureCmd = &cobra.Command{
	Use:   "capture [midi-file]",
	Short: "Capture the playback of a MIDI file into an audio file",
	Long: `Play the MIDI file through an external synthesizer while recording the
virtual capture device, then convert the recording to the requested format.

The default output path is the MIDI path with the configured extension.
Existing files are never overwritten unless --overwrite is given; instead a
numeric suffix is appended to the filename.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		midiPath := args[0]
		outputPath, _ := cmd.Flags().GetString("output")
		overwrite, _ := cmd.Flags().GetBool("overwrite")

		slog.Debug("Capture command started", "midi", midiPath, "output", outputPath, "overwrite", overwrite)

		ctrl := session.New(cfg)
		err := ctrl.Run(midiPath, outputPath, overwrite)

		var conflict *noise.ConflictError
		if errors.As(err, &conflict) {
			fmt.Fprintln(os.Stderr, "The following potentially noisy apps are open, please close them and try again:")
			for _, app := range conflict.Apps {
				fmt.Fprintf(os.Stderr, "    %s\n", app)
			}
			fmt.Fprintf(os.Stderr, "(the denylist checked is %s)\n", cfg.Denylist)
			return fmt.Errorf("noisy app conflict")
		}
		return err
	},
}

func init() {
	captureCmd.Flags().StringP("output", "o", "", "output path (default is the MIDI path with the configured extension)")
	captureCmd.Flags().Bool("overwrite", false, "overwrite output files (otherwise the filename is incremented)")
}
