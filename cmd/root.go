package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/soniclab/midicap/internal/config"

	"github.com/spf13/cobra"
)

var (
	cfg          *config.Config
	cfgFile      string
	verboseLevel int
)

var rootCmd = &cobra.Command{
	Use:   "midicap [midi-file]",
	Short: "Record the synthesized playback of a MIDI file to an audio file",
	Long: `midicap reroutes system audio output to a virtual capture device,
records from that device while the MIDI file plays through an external
synthesizer, then restores the original output device.

The playback is not audible while recording, and any other sound the system
makes ends up in the recording. A denylist of noisy applications is checked
before anything starts.

When a MIDI file is given directly, it acts as 'midicap capture [midi-file]'.`,
	Args: cobra.MaximumNArgs(1),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		setupLogging(verboseLevel)

		if cfgFile == "" {
			cfgFile = os.ExpandEnv("$HOME/.config/midicap.yaml")
		}

		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		// A MIDI file as the only argument is shorthand for capture.
		if len(args) == 1 {
			return captureCmd.RunE(cmd, args)
		}
		return cmd.Help()
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/midicap.yaml)")
	rootCmd.PersistentFlags().IntVarP(&verboseLevel, "verbose", "v", 0, "verbose level: 0=info, 1=debug, 2=debug plus transcoder output")

	// Flags for direct capture through the root command.
	rootCmd.Flags().StringP("output", "o", "", "output path (default is the MIDI path with the configured extension)")
	rootCmd.Flags().Bool("overwrite", false, "overwrite output files (otherwise the filename is incremented)")

	rootCmd.AddCommand(captureCmd)
	rootCmd.AddCommand(devicesCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(configCmd)
}

// setupLogging configures slog based on the verbose level
func setupLogging(level int) {
	slogLevel := slog.LevelInfo
	if level >= 1 {
		slogLevel = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level: slogLevel,
	}
	handler := slog.NewTextHandler(os.Stderr, opts)
	slog.SetDefault(slog.New(handler))

	if level >= 2 {
		os.Setenv("FFMPEG_LOGLEVEL", "debug")
	}
}
