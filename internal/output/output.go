// Package output materializes the final audio file from the temporary raw
// capture, converting formats through an external transcoder when needed.
package output

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/soniclab/midicap/internal/fname"
)

// Transcoder converts src into dst, inferring formats from the extensions.
type Transcoder interface {
	Convert(src, dst string, overwrite bool) error
}

// TranscodeError reports a failed conversion. The raw capture survives at
// Src so the recording is not lost.
type TranscodeError struct {
	Src    string
	Dst    string
	Err    error
	Output string
}

func (e *TranscodeError) Error() string {
	return fmt.Sprintf("transcode to %s failed: %v (raw capture kept at %s)", e.Dst, e.Err, e.Src)
}

func (e *TranscodeError) Unwrap() error { return e.Err }

// FFmpeg shells out to ffmpeg for format conversion.
type FFmpeg struct {
	Bin string
}

func (f *FFmpeg) Convert(src, dst string, overwrite bool) error {
	flag := "-n"
	if overwrite {
		flag = "-y"
	}
	cmd := exec.Command(f.Bin, flag, "-i", src, dst)
	slog.Debug("Running transcoder", "command", strings.Join(cmd.Args, " "))

	out, err := cmd.CombinedOutput()
	if err != nil {
		return &TranscodeError{Src: src, Dst: dst, Err: err, Output: string(out)}
	}
	return nil
}

// Writer places the captured temp file at its final path.
type Writer struct {
	transcoder Transcoder
	// defaultExt (without dot) is used when no output path is given.
	defaultExt string
	// defaultDir, when non-empty, receives default-named outputs.
	defaultDir string
}

func NewWriter(tc Transcoder, defaultExt, defaultDir string) *Writer {
	return &Writer{transcoder: tc, defaultExt: defaultExt, defaultDir: defaultDir}
}

// Write moves or converts tmpPath to the final location and returns that
// path. When outPath is empty it is derived from the source MIDI path by
// swapping the extension. A ".wav" destination is a plain move; anything
// else goes through the transcoder, with collisions resolved by filename
// incrementing unless overwrite is set.
func (w *Writer) Write(midiPath, tmpPath, outPath string, overwrite bool) (string, error) {
	if outPath == "" {
		stem := strings.TrimSuffix(filepath.Base(midiPath), filepath.Ext(midiPath))
		dir := w.defaultDir
		if dir == "" {
			dir = filepath.Dir(midiPath)
		}
		outPath = filepath.Join(dir, stem+"."+w.defaultExt)
	}

	if dir := filepath.Dir(outPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", fmt.Errorf("failed to create output directory %s: %w", dir, err)
		}
	}

	if strings.EqualFold(filepath.Ext(outPath), ".wav") {
		if err := moveFile(tmpPath, outPath); err != nil {
			return "", fmt.Errorf("failed to move capture to %s: %w", outPath, err)
		}
		slog.Info("Output written", "path", outPath)
		return outPath, nil
	}

	if !overwrite {
		next, err := fname.Increment(outPath, fname.Options{MinDigits: 2, AllowWiden: true})
		if err != nil {
			return "", err
		}
		outPath = next
	}

	slog.Info("Converting capture", "to", outPath)
	if err := w.transcoder.Convert(tmpPath, outPath, overwrite); err != nil {
		return "", err
	}
	os.Remove(tmpPath)
	slog.Info("Output written", "path", outPath)
	return outPath, nil
}

// moveFile renames src to dst, falling back to copy-and-remove when the two
// live on different filesystems.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}
