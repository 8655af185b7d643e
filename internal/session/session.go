// Package session sequences one full capture run: conflict check,
// notification suppression, device rerouting, timed capture, guaranteed
// state restoration, and output placement.
package session

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/soniclab/midicap/internal/capture"
	"github.com/soniclab/midicap/internal/config"
	"github.com/soniclab/midicap/internal/noise"
	"github.com/soniclab/midicap/internal/notify"
	"github.com/soniclab/midicap/internal/output"
	"github.com/soniclab/midicap/internal/playback"
	"github.com/soniclab/midicap/internal/sysdev"
)

// Collaborator surfaces, narrowed to what the controller needs so tests can
// substitute fakes.
type (
	noiseChecker interface {
		Check() error
	}
	notifyGuard interface {
		Suppress() (notify.State, error)
		Restore(notify.State) error
	}
	deviceRouter interface {
		CurrentOutputDevice() (sysdev.State, error)
		RouteToCapture() error
		Restore(sysdev.State) error
	}
	capturer interface {
		Run(plan capture.Plan, tmpPath string) error
	}
	outputWriter interface {
		Write(midiPath, tmpPath, outPath string, overwrite bool) (string, error)
	}
)

// Controller runs capture sessions with unconditional restoration of the
// system state it mutates.
type Controller struct {
	cfg      *config.Config
	noise    noiseChecker
	notify   notifyGuard
	router   deviceRouter
	capturer capturer
	writer   outputWriter
	duration func(midiPath string) (float64, error)
}

// New wires a Controller with the real collaborators.
func New(cfg *config.Config) *Controller {
	player := &playback.Player{
		Candidates: cfg.Tools.SynthPlayers,
		SoundFont:  cfg.Tools.SoundFont,
	}
	return &Controller{
		cfg:      cfg,
		noise:    noise.NewGuard(cfg.Denylist),
		notify:   notify.NewGuard(notify.NotificationCenterToggler{}),
		router:   sysdev.NewRouter(&sysdev.ExecSwitcher{Bin: cfg.Tools.Switcher}, cfg.Capture.DeviceName),
		capturer: capture.NewSession(capture.MalgoOpener{}, cfg.Capture.DeviceName, player),
		writer:   output.NewWriter(&output.FFmpeg{Bin: cfg.Tools.Transcoder}, cfg.Output.Format, cfg.Output.Directory),
		duration: playback.Duration,
	}
}

// Run captures the playback of midiPath into outPath (or a default derived
// from the MIDI path when empty). An empty capture is reported but is not an
// error; everything else fails fast with restoration already applied.
func (c *Controller) Run(midiPath, outPath string, overwrite bool) error {
	// Must come first: a conflict aborts before anything needs restoring.
	if err := c.noise.Check(); err != nil {
		return err
	}

	dur, err := c.duration(midiPath)
	if err != nil {
		return err
	}
	slog.Info("MIDI duration", "file", midiPath, "seconds", dur)

	plan := capture.Plan{
		MIDIPath:        midiPath,
		Duration:        dur,
		Channels:        c.cfg.Capture.Channels,
		SampleRate:      c.cfg.Capture.SampleRate,
		SampleBits:      c.cfg.Capture.SampleBits,
		FramesPerBuffer: c.cfg.Capture.FramesPerBuffer,
		TailSlack:       c.cfg.Capture.TailSlackSec,
		SettleDelay:     time.Duration(c.cfg.Capture.SettleDelayMs) * time.Millisecond,
	}

	tmp, err := os.CreateTemp("", "midicap-*.wav")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()

	captureErr := c.captureWithRestore(plan, tmpPath)
	if captureErr != nil {
		if errors.Is(captureErr, capture.ErrCaptureEmpty) {
			slog.Warn("Nothing captured, no output file written")
			os.Remove(tmpPath)
			return nil
		}
		os.Remove(tmpPath)
		return captureErr
	}

	finalPath, err := c.writer.Write(midiPath, tmpPath, outPath, overwrite)
	if err != nil {
		return err
	}
	fmt.Printf("Output written to %s\n", finalPath)
	return nil
}

// captureWithRestore performs the mutated-state window: notification
// suppression and device rerouting are snapshotted before, and both are
// restored on every exit path — error returns, panics (via the deferred
// run), and SIGINT/SIGTERM mid-capture. A restoration failure never masks
// the primary error; it is surfaced once the capture error (if any) is
// handled.
func (c *Controller) captureWithRestore(plan capture.Plan, tmpPath string) (err error) {
	var rest restorer

	defer func() {
		restoreErr := rest.run()
		if err != nil {
			if restoreErr != nil {
				slog.Error("State restoration failed while handling another error", "error", restoreErr)
			}
			return
		}
		err = restoreErr
	}()

	// A capture lasts as long as the MIDI file plays; interrupting it must
	// still put the output device and notifications back before the
	// process dies.
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM)
	defer func() {
		signal.Stop(sigc)
		close(sigc)
	}()
	go func() {
		sig, ok := <-sigc
		if !ok {
			return
		}
		slog.Warn("Interrupted, restoring system state", "signal", sig)
		if restoreErr := rest.run(); restoreErr != nil {
			slog.Error("State restoration failed", "error", restoreErr)
		}
		os.Exit(1)
	}()

	dndState, err := c.notify.Suppress()
	if err != nil {
		return err
	}
	rest.add(func() error { return c.notify.Restore(dndState) })

	devState, err := c.router.CurrentOutputDevice()
	if err != nil {
		return err
	}
	rest.add(func() error { return c.router.Restore(devState) })

	if err := c.router.RouteToCapture(); err != nil {
		return err
	}

	return c.capturer.Run(plan, tmpPath)
}

// restorer is a stack of cleanup actions. run executes them in reverse
// registration order, attempting every one even when an earlier one fails,
// and joins the failures. run drains the stack exactly once, so the signal
// path and the deferred path cannot both apply the same restoration.
type restorer struct {
	mu  sync.Mutex
	fns []func() error
}

func (r *restorer) add(fn func() error) {
	r.mu.Lock()
	r.fns = append(r.fns, fn)
	r.mu.Unlock()
}

func (r *restorer) run() error {
	r.mu.Lock()
	fns := r.fns
	r.fns = nil
	r.mu.Unlock()

	var errs []error
	for i := len(fns) - 1; i >= 0; i-- {
		if err := fns[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
