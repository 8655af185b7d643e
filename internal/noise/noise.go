// Package noise aborts a capture early when applications known to make
// sound are running. Everything the system plays during the capture window
// ends up in the recording, so conflicts must be caught before any audio
// state is touched.
package noise

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
)

// ConflictError reports denylisted applications found in the process list.
type ConflictError struct {
	Apps []string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("potentially noisy apps are running, close them and retry: %s", strings.Join(e.Apps, ", "))
}

// Guard checks the running process list against a user-maintained denylist
// of process-name substrings.
type Guard struct {
	// DenylistPath is the newline-separated denylist file. A missing file
	// degrades to a warning with an interactive acknowledgement.
	DenylistPath string

	// Processes returns the raw process listing. Defaults to `ps aux`.
	Processes func() (string, error)

	// Prompt and Ack drive the acknowledgement when the denylist is
	// missing. Default to stderr and stdin.
	Prompt io.Writer
	Ack    io.Reader
}

func NewGuard(denylistPath string) *Guard {
	return &Guard{DenylistPath: denylistPath}
}

// Check fails with a ConflictError when any denylist entry matches the
// process list (case-insensitive substring match). It must run before any
// device or notification state is mutated.
func (g *Guard) Check() error {
	entries, err := g.loadDenylist()
	if err != nil {
		return err
	}
	if entries == nil {
		return nil
	}

	procs := g.Processes
	if procs == nil {
		procs = psAux
	}
	listing, err := procs()
	if err != nil {
		return fmt.Errorf("failed to list running processes: %w", err)
	}
	listing = strings.ToLower(listing)

	var open []string
	for _, app := range entries {
		if strings.Contains(listing, strings.ToLower(app)) {
			open = append(open, app)
		}
	}
	if len(open) > 0 {
		return &ConflictError{Apps: open}
	}

	slog.Debug("No noisy apps running", "checked", len(entries))
	return nil
}

// loadDenylist returns the denylist entries, or nil (after an acknowledged
// warning) when the file does not exist.
func (g *Guard) loadDenylist() ([]string, error) {
	data, err := os.ReadFile(g.DenylistPath)
	if os.IsNotExist(err) {
		g.warnMissing()
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read denylist %s: %w", g.DenylistPath, err)
	}

	var entries []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			entries = append(entries, line)
		}
	}
	return entries, nil
}

func (g *Guard) warnMissing() {
	slog.Warn("No denylist file found, noisy apps will not be detected", "path", g.DenylistPath)

	prompt := g.Prompt
	if prompt == nil {
		prompt = os.Stderr
	}
	ack := g.Ack
	if ack == nil {
		ack = os.Stdin
	}
	fmt.Fprint(prompt, "<press enter to continue>")
	bufio.NewReader(ack).ReadString('\n')
}

func psAux() (string, error) {
	out, err := exec.Command("ps", "aux").Output()
	if err != nil {
		return "", fmt.Errorf("ps aux: %w", err)
	}
	return string(out), nil
}
