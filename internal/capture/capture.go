// Package capture performs one timed capture of the system audio stream
// while the MIDI playback runs, and serializes the result to a temporary
// WAV file.
package capture

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"
)

var (
	// ErrDeviceNotFound indicates the virtual capture device is not among
	// the available input devices.
	ErrDeviceNotFound = errors.New("virtual capture device not found")
	// ErrCaptureEmpty indicates the capture produced no frames at all; no
	// output file is written in that case.
	ErrCaptureEmpty = errors.New("nothing captured")
)

// Plan describes one timed capture. It is built once per session and never
// modified afterwards.
type Plan struct {
	MIDIPath        string
	Duration        float64 // seconds, from the MIDI file's tempo map
	Channels        int
	SampleRate      int
	SampleBits      int
	FramesPerBuffer int
	TailSlack       float64 // extra capture time in seconds
	SettleDelay     time.Duration
}

// ReadCount is the number of buffer reads the capture thread performs:
// ceil(rate / framesPerBuffer * (duration + tailSlack)).
func (p Plan) ReadCount() int {
	return int(math.Ceil(float64(p.SampleRate) / float64(p.FramesPerBuffer) * (p.Duration + p.TailSlack)))
}

// BytesPerFrame is the size of one interleaved sample frame.
func (p Plan) BytesPerFrame() int {
	return p.Channels * p.SampleBits / 8
}

// FrameBuffer collects the raw chunks read from the input stream. It is
// written by the capture goroutine only, and read by the controlling
// goroutine strictly after the join. That temporal partition is the
// synchronization; there is no lock.
type FrameBuffer struct {
	chunks [][]byte
}

func (b *FrameBuffer) Append(chunk []byte) {
	b.chunks = append(b.chunks, chunk)
}

// Len is the number of captured chunks.
func (b *FrameBuffer) Len() int {
	return len(b.chunks)
}

// Bytes concatenates the captured chunks into one PCM blob.
func (b *FrameBuffer) Bytes() []byte {
	var total int
	for _, c := range b.chunks {
		total += len(c)
	}
	out := make([]byte, 0, total)
	for _, c := range b.chunks {
		out = append(out, c...)
	}
	return out
}

// InputStream is a blocking view of an opened capture device.
type InputStream interface {
	// ReadFrames blocks until n frames are available and returns their raw
	// bytes. A short or empty slice together with a nil error means the
	// device lost data (overflow); that read is tolerated, not fatal.
	ReadFrames(n int) ([]byte, error)
	Close() error
}

// Opener locates the named capture device and opens an input stream on it.
type Opener interface {
	Open(plan Plan, deviceName string) (InputStream, error)
}

// Starter launches the asynchronous MIDI playback.
type Starter interface {
	Start(midiPath string) error
}

// Session coordinates the capture goroutine and the playback around one
// Plan.
type Session struct {
	opener     Opener
	deviceName string
	player     Starter

	// progress renders the cosmetic progress indicator, pacing itself over
	// the given number of seconds. Replaced in tests.
	progress func(seconds float64)
}

func NewSession(opener Opener, deviceName string, player Starter) *Session {
	return &Session{
		opener:     opener,
		deviceName: deviceName,
		player:     player,
		progress:   renderProgress,
	}
}

// Run executes the capture and writes the result as an uncompressed WAV
// file to tmpPath. Returns ErrCaptureEmpty when not a single chunk was
// captured.
//
// Exactly two goroutines are involved: the capture goroutine performing the
// blocking reads, and the calling goroutine, which starts playback, renders
// progress, then joins. The FrameBuffer hands over from one to the other at
// the join.
func (s *Session) Run(plan Plan, tmpPath string) error {
	stream, err := s.opener.Open(plan, s.deviceName)
	if err != nil {
		return err
	}

	// Give the input stream a moment before playback starts, so the first
	// frames are not lost.
	time.Sleep(plan.SettleDelay)

	buf := &FrameBuffer{}
	reads := plan.ReadCount()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < reads; i++ {
			chunk, err := stream.ReadFrames(plan.FramesPerBuffer)
			if len(chunk) > 0 {
				buf.Append(chunk)
			}
			if err != nil {
				slog.Warn("Capture read failed, stopping early", "read", i, "total", reads, "error", err)
				return
			}
		}
	}()

	slog.Info("Recording", "reads", reads, "duration_sec", plan.Duration, "tail_slack_sec", plan.TailSlack)

	if err := s.player.Start(plan.MIDIPath); err != nil {
		// Unblock and drain the capture goroutine before reporting.
		stream.Close()
		<-done
		return fmt.Errorf("playback did not start: %w", err)
	}

	s.progress(plan.Duration)

	<-done
	if err := stream.Close(); err != nil {
		slog.Warn("Failed to close input stream", "error", err)
	}

	if buf.Len() == 0 {
		return ErrCaptureEmpty
	}

	if err := writeWAV(tmpPath, plan, buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write captured audio: %w", err)
	}
	slog.Debug("Raw capture written", "path", tmpPath, "chunks", buf.Len())
	return nil
}
