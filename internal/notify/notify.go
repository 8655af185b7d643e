// Package notify suppresses system notifications for the duration of a
// capture, so banner sounds do not end up in the recording.
package notify

import (
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// Toggler queries and sets the system-wide notification suppression flag.
type Toggler interface {
	// Suppressed reports whether notifications are currently suppressed.
	Suppressed() (bool, error)
	// SetSuppressed turns suppression on or off.
	SetSuppressed(on bool) error
}

// NotificationCenterToggler flips the Do Not Disturb flag through the macOS
// defaults database and kicks NotificationCenter to pick the change up.
type NotificationCenterToggler struct{}

const (
	dndDomain = "com.apple.notificationcenterui"
	dndKey    = "doNotDisturb"
)

func (NotificationCenterToggler) Suppressed() (bool, error) {
	out, err := exec.Command("defaults", "-currentHost", "read", dndDomain, dndKey).Output()
	if err != nil {
		// An unset key reads as an error; treat it as "not suppressed".
		if ee, ok := err.(*exec.ExitError); ok && ee.ExitCode() == 1 {
			return false, nil
		}
		return false, fmt.Errorf("read %s %s: %w", dndDomain, dndKey, err)
	}
	return strings.TrimSpace(string(out)) == "1", nil
}

func (NotificationCenterToggler) SetSuppressed(on bool) error {
	val := "false"
	if on {
		val = "true"
	}
	if out, err := exec.Command("defaults", "-currentHost", "write", dndDomain, dndKey, "-boolean", val).CombinedOutput(); err != nil {
		return fmt.Errorf("write %s %s: %w (output: %s)", dndDomain, dndKey, err, strings.TrimSpace(string(out)))
	}
	if out, err := exec.Command("killall", "NotificationCenter").CombinedOutput(); err != nil {
		return fmt.Errorf("restart NotificationCenter: %w (output: %s)", err, strings.TrimSpace(string(out)))
	}
	return nil
}

// State records whether notifications were already suppressed before the
// capture. Captured once by Suppress, consumed once by Restore.
type State struct {
	wasSuppressed bool
	valid         bool
}

// Guard applies and reverts notification suppression around a capture.
type Guard struct {
	t Toggler
}

func NewGuard(t Toggler) *Guard {
	return &Guard{t: t}
}

// Suppress enables notification suppression if it is not already active and
// returns a snapshot of the original status. Idempotent when suppression was
// already on.
func (g *Guard) Suppress() (State, error) {
	cur, err := g.t.Suppressed()
	if err != nil {
		return State{}, fmt.Errorf("query notification suppression: %w", err)
	}
	if cur {
		slog.Debug("Notifications already suppressed")
	} else {
		if err := g.t.SetSuppressed(true); err != nil {
			return State{}, fmt.Errorf("suppress notifications: %w", err)
		}
		slog.Info("Notifications suppressed for the capture")
	}
	return State{wasSuppressed: cur, valid: true}, nil
}

// Restore re-enables notifications only if they were enabled before
// Suppress. A no-op when suppression was already active, or for a
// zero-value snapshot.
func (g *Guard) Restore(st State) error {
	if !st.valid || st.wasSuppressed {
		return nil
	}
	if err := g.t.SetSuppressed(false); err != nil {
		return fmt.Errorf("re-enable notifications: %w", err)
	}
	slog.Info("Notifications re-enabled")
	return nil
}
