// Package fname computes non-colliding output filenames by appending or
// incrementing a zero-padded numeric suffix to the filename stem.
package fname

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrDigitOverflow is returned when the next counter value does not fit in
// the allowed digit width and widening is disallowed.
var ErrDigitOverflow = errors.New("counter does not fit in allowed digit width")

// Options controls how Increment renders and checks candidate paths.
type Options struct {
	// MinDigits is the zero-padding width used when the stem carries no
	// counter yet. Defaults to 3.
	MinDigits int

	// Overwrite returns the first candidate without checking for existing
	// files.
	Overwrite bool

	// AllowWiden permits growing the digit width by one when the counter
	// outgrows it. When false, an overflowing counter fails with
	// ErrDigitOverflow.
	AllowWiden bool

	// Exists reports whether a path is already taken. Defaults to an
	// os.Stat probe. Overridable for tests.
	Exists func(string) bool
}

// Increment returns a path guaranteed not to already exist, derived from
// path by incrementing the trailing numeric suffix of its stem (the
// extension is preserved). A stem without a trailing number gets the suffix
// "1", zero-padded to MinDigits. The produced candidate is re-incremented
// until it no longer collides with an existing file.
//
// Trailing digits are always treated as a counter, even when they were
// probably not meant as one (e.g. "track2024.wav" becomes "track2025.wav").
func Increment(path string, opts Options) (string, error) {
	if opts.MinDigits <= 0 {
		opts.MinDigits = 3
	}
	exists := opts.Exists
	if exists == nil {
		exists = func(p string) bool {
			_, err := os.Stat(p)
			return err == nil
		}
	}

	for {
		next, err := bump(path, opts.MinDigits, opts.AllowWiden)
		if err != nil {
			return "", err
		}
		path = next
		if opts.Overwrite || !exists(path) {
			return path, nil
		}
	}
}

// bump produces the next candidate from path. The counter value and its
// width are re-derived from the trailing digits of the stem on every call,
// so a width increase sticks for the rest of the chain.
func bump(path string, minDigits int, allowWiden bool) (string, error) {
	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(path, ext)

	// Reverse scan for the longest all-digit suffix.
	i := len(stem)
	for i > 0 && stem[i-1] >= '0' && stem[i-1] <= '9' {
		i--
	}
	base, digits := stem[:i], stem[i:]

	count := 0
	width := minDigits
	if digits != "" {
		n, err := strconv.Atoi(digits)
		if err != nil {
			return "", fmt.Errorf("counter %q in %q out of range: %w", digits, path, err)
		}
		count = n
		width = len(digits)
	}

	next := count + 1
	if decimalWidth(next) > width {
		if !allowWiden {
			return "", fmt.Errorf("%q: %w", path, ErrDigitOverflow)
		}
		width++
	}

	return fmt.Sprintf("%s%0*d%s", base, width, next, ext), nil
}

func decimalWidth(n int) int {
	w := 1
	for n >= 10 {
		n /= 10
		w++
	}
	return w
}
