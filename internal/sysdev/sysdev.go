// Package sysdev reroutes the system audio output device and restores it.
package sysdev

import (
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

var (
	// ErrDeviceQuery indicates the current output device could not be read.
	ErrDeviceQuery = errors.New("cannot determine current output device")
	// ErrDeviceSwitch indicates the output device could not be changed.
	ErrDeviceSwitch = errors.New("cannot switch output device")
)

// Switcher controls the system's active audio output device.
type Switcher interface {
	// Current returns the name of the active output device.
	Current() (string, error)
	// Set makes the named device the active output device.
	Set(name string) error
}

// ExecSwitcher drives a SwitchAudioSource-compatible command line tool.
type ExecSwitcher struct {
	Bin string
}

func (s *ExecSwitcher) Current() (string, error) {
	out, err := exec.Command(s.Bin, "-c", "-t", "output").Output()
	if err != nil {
		return "", fmt.Errorf("%s -c -t output: %w", s.Bin, err)
	}
	return strings.TrimSpace(string(out)), nil
}

func (s *ExecSwitcher) Set(name string) error {
	out, err := exec.Command(s.Bin, "-t", "output", "-s", name).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s -t output -s %q: %w (output: %s)", s.Bin, name, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// State is a snapshot of the active output device, taken once before any
// rerouting and consumed exactly once by Restore.
type State struct {
	Device string
	valid  bool
}

// Router switches system output to the virtual capture device and back.
type Router struct {
	sw            Switcher
	captureDevice string
}

func NewRouter(sw Switcher, captureDevice string) *Router {
	return &Router{sw: sw, captureDevice: captureDevice}
}

// CurrentOutputDevice snapshots the active output device. The returned State
// is the only value Restore accepts; it must be captured before rerouting.
func (r *Router) CurrentOutputDevice() (State, error) {
	dev, err := r.sw.Current()
	if err != nil {
		return State{}, fmt.Errorf("%w: %v", ErrDeviceQuery, err)
	}
	slog.Info("Existing audio output device", "device", dev)
	return State{Device: dev, valid: true}, nil
}

// RouteToCapture switches system output to the virtual capture device.
func (r *Router) RouteToCapture() error {
	if err := r.sw.Set(r.captureDevice); err != nil {
		return fmt.Errorf("%w: %v", ErrDeviceSwitch, err)
	}
	slog.Info("Switched output device", "device", r.captureDevice)
	return nil
}

// Restore switches system output back to the snapshotted device.
func (r *Router) Restore(st State) error {
	if !st.valid {
		return fmt.Errorf("%w: no device snapshot to restore", ErrDeviceSwitch)
	}
	if err := r.sw.Set(st.Device); err != nil {
		return fmt.Errorf("%w: %v", ErrDeviceSwitch, err)
	}
	slog.Info("Restored output device", "device", st.Device)
	return nil
}
