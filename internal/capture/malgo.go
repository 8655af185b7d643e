package capture

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gen2brain/malgo"
)

// ErrStreamClosed is returned by ReadFrames after the stream was closed.
var ErrStreamClosed = errors.New("input stream closed")

// MalgoOpener opens capture streams through the miniaudio bindings.
type MalgoOpener struct{}

// Open locates the capture device whose name exactly matches deviceName and
// starts a capture stream per the plan. Fails with ErrDeviceNotFound when no
// such device exists.
func (MalgoOpener) Open(plan Plan, deviceName string) (InputStream, error) {
	if plan.SampleBits != 16 {
		return nil, fmt.Errorf("unsupported sample width: %d bits", plan.SampleBits)
	}

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audio context: %w", err)
	}

	id, err := findCaptureDevice(ctx, deviceName)
	if err != nil {
		ctx.Uninit()
		ctx.Free()
		return nil, err
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.SampleRate = uint32(plan.SampleRate)
	cfg.PeriodSizeInFrames = uint32(plan.FramesPerBuffer)
	cfg.Capture.Format = malgo.FormatS16
	cfg.Capture.Channels = uint32(plan.Channels)
	cfg.Capture.DeviceID = id.Pointer()
	cfg.Alsa.NoMMap = 1

	periodDur := time.Duration(float64(plan.FramesPerBuffer) / float64(plan.SampleRate) * float64(time.Second))
	s := &malgoStream{
		ctx:           ctx,
		data:          make(chan []byte, 64),
		bytesPerFrame: plan.BytesPerFrame(),
		readTimeout:   periodDur + time.Second,
	}

	onRecv := func(_, in []byte, frameCount uint32) {
		chunk := make([]byte, len(in))
		copy(chunk, in)
		select {
		case s.data <- chunk:
		default:
			// Reader not keeping up; drop the period rather than block
			// the audio thread. The read on the other side comes back
			// short, which the session tolerates.
			s.dropped.Add(1)
		}
	}

	dev, err := malgo.InitDevice(ctx.Context, cfg, malgo.DeviceCallbacks{Data: onRecv})
	if err != nil {
		ctx.Uninit()
		ctx.Free()
		return nil, fmt.Errorf("failed to open capture device %q: %w", deviceName, err)
	}
	if err := dev.Start(); err != nil {
		dev.Uninit()
		ctx.Uninit()
		ctx.Free()
		return nil, fmt.Errorf("failed to start capture device %q: %w", deviceName, err)
	}

	s.dev = dev
	slog.Debug("Capture stream opened", "device", deviceName, "rate", plan.SampleRate, "channels", plan.Channels)
	return s, nil
}

func findCaptureDevice(ctx *malgo.AllocatedContext, name string) (malgo.DeviceID, error) {
	var zero malgo.DeviceID
	infos, err := ctx.Devices(malgo.Capture)
	if err != nil {
		return zero, fmt.Errorf("failed to enumerate capture devices: %w", err)
	}
	for _, info := range infos {
		full, err := ctx.DeviceInfo(malgo.Capture, info.ID, malgo.Shared)
		if err != nil {
			slog.Debug("Unable to query device info", "error", err)
			continue
		}
		if full.Name() == name {
			return full.ID, nil
		}
	}
	return zero, fmt.Errorf("%w: %q", ErrDeviceNotFound, name)
}

// ListDevices returns the names of the available capture and playback
// devices.
func ListDevices() (captureNames, playbackNames []string, err error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize audio context: %w", err)
	}
	defer func() {
		ctx.Uninit()
		ctx.Free()
	}()

	list := func(typ malgo.DeviceType) ([]string, error) {
		infos, err := ctx.Devices(typ)
		if err != nil {
			return nil, err
		}
		names := make([]string, 0, len(infos))
		for _, info := range infos {
			full, err := ctx.DeviceInfo(typ, info.ID, malgo.Shared)
			if err != nil {
				continue
			}
			names = append(names, full.Name())
		}
		return names, nil
	}

	if captureNames, err = list(malgo.Capture); err != nil {
		return nil, nil, fmt.Errorf("failed to list capture devices: %w", err)
	}
	if playbackNames, err = list(malgo.Playback); err != nil {
		return nil, nil, fmt.Errorf("failed to list playback devices: %w", err)
	}
	return captureNames, playbackNames, nil
}

// malgoStream adapts the callback-driven capture device to the blocking
// ReadFrames contract. The callback posts period-sized chunks to a channel;
// ReadFrames reassembles them into exactly frame-sized reads.
type malgoStream struct {
	ctx *malgo.AllocatedContext
	dev *malgo.Device

	data    chan []byte
	pending []byte

	bytesPerFrame int
	readTimeout   time.Duration
	dropped       atomic.Int64

	closeOnce sync.Once
}

func (s *malgoStream) ReadFrames(n int) ([]byte, error) {
	want := n * s.bytesPerFrame
	out := make([]byte, 0, want)

	if len(s.pending) > 0 {
		take := min(len(s.pending), want)
		out = append(out, s.pending[:take]...)
		s.pending = s.pending[take:]
	}

	timeout := time.NewTimer(s.readTimeout)
	defer timeout.Stop()

	for len(out) < want {
		select {
		case chunk, ok := <-s.data:
			if !ok {
				return out, ErrStreamClosed
			}
			need := want - len(out)
			take := min(len(chunk), need)
			out = append(out, chunk[:take]...)
			s.pending = append(s.pending, chunk[take:]...)
		case <-timeout.C:
			if len(out) == 0 {
				return nil, fmt.Errorf("no audio data within %s", s.readTimeout)
			}
			// Partial read; the device dropped data. Tolerated.
			return out, nil
		}
	}
	return out, nil
}

// Close stops the device, tears down the context and unblocks any pending
// read. Safe to call more than once.
func (s *malgoStream) Close() error {
	s.closeOnce.Do(func() {
		if s.dev != nil {
			if err := s.dev.Stop(); err != nil {
				slog.Debug("Failed to stop capture device", "error", err)
			}
			s.dev.Uninit()
		}
		if s.ctx != nil {
			s.ctx.Uninit()
			s.ctx.Free()
		}
		close(s.data)
		if n := s.dropped.Load(); n > 0 {
			slog.Warn("Capture dropped periods due to overflow", "periods", n)
		}
	})
	return nil
}
