package session

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/soniclab/midicap/internal/capture"
	"github.com/soniclab/midicap/internal/config"
	"github.com/soniclab/midicap/internal/notify"
	"github.com/soniclab/midicap/internal/sysdev"
)

// fakeSwitcher / fakeToggler track the actual system state, so tests can
// assert the restoration invariant: after any failure, the final state
// equals the pre-mutation snapshot.

type fakeSwitcher struct {
	current string
	log     []string
}

func (f *fakeSwitcher) Current() (string, error) { return f.current, nil }
func (f *fakeSwitcher) Set(name string) error {
	f.current = name
	f.log = append(f.log, name)
	return nil
}

type fakeToggler struct {
	suppressed bool
}

func (f *fakeToggler) Suppressed() (bool, error) { return f.suppressed, nil }

func (f *fakeToggler) SetSuppressed(on bool) error { f.suppressed = on; return nil }

type fakeNoise struct{ err error }

func (f *fakeNoise) Check() error { return f.err }

type fakeCapturer struct {
	err      error
	panicMsg string
	calls    int
	plan     capture.Plan
}

func (f *fakeCapturer) Run(plan capture.Plan, tmpPath string) error {
	f.calls++
	f.plan = plan
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	if f.err != nil {
		return f.err
	}
	return os.WriteFile(tmpPath, []byte("pcm"), 0644)
}

type fakeWriter struct {
	err   error
	calls int
	final string
}

func (f *fakeWriter) Write(midiPath, tmpPath, outPath string, overwrite bool) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.final, nil
}

type harness struct {
	ctrl     *Controller
	switcher *fakeSwitcher
	toggler  *fakeToggler
	noise    *fakeNoise
	capturer *fakeCapturer
	writer   *fakeWriter
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := &config.Config{
		Capture: config.CaptureConfig{
			DeviceName:      "Soundflower (2ch)",
			SampleRate:      44100,
			Channels:        2,
			SampleBits:      16,
			FramesPerBuffer: 1024,
			TailSlackSec:    1,
		},
		Output: config.OutputConfig{Format: "m4a"},
	}
	h := &harness{
		switcher: &fakeSwitcher{current: "Studio Display Speakers"},
		toggler:  &fakeToggler{suppressed: false},
		noise:    &fakeNoise{},
		capturer: &fakeCapturer{},
		writer:   &fakeWriter{final: "song.m4a"},
	}
	h.ctrl = &Controller{
		cfg:      cfg,
		noise:    h.noise,
		notify:   notify.NewGuard(h.toggler),
		router:   sysdev.NewRouter(h.switcher, cfg.Capture.DeviceName),
		capturer: h.capturer,
		writer:   h.writer,
		duration: func(string) (float64, error) { return 5, nil },
	}
	return h
}

func (h *harness) assertRestored(t *testing.T) {
	t.Helper()
	if h.switcher.current != "Studio Display Speakers" {
		t.Errorf("output device = %q, want pre-capture snapshot restored", h.switcher.current)
	}
	if h.toggler.suppressed {
		t.Error("notification suppression left enabled")
	}
}

func TestRun_Success(t *testing.T) {
	h := newHarness(t)
	if err := h.ctrl.Run("song.mid", "", false); err != nil {
		t.Fatalf("Run: %v", err)
	}

	h.assertRestored(t)
	if h.capturer.calls != 1 {
		t.Errorf("capture calls = %d, want 1", h.capturer.calls)
	}
	if h.writer.calls != 1 {
		t.Errorf("writer calls = %d, want 1", h.writer.calls)
	}
	// The device was rerouted during capture and switched back afterwards.
	if want := []string{"Soundflower (2ch)", "Studio Display Speakers"}; len(h.switcher.log) != 2 ||
		h.switcher.log[0] != want[0] || h.switcher.log[1] != want[1] {
		t.Errorf("device switches = %v, want %v", h.switcher.log, want)
	}
	if h.capturer.plan.Duration != 5 || h.capturer.plan.FramesPerBuffer != 1024 {
		t.Errorf("capture plan = %+v", h.capturer.plan)
	}
}

func TestRun_NoisyConflictAbortsBeforeAnyMutation(t *testing.T) {
	h := newHarness(t)
	h.noise.err = errors.New("Zoom is running")

	err := h.ctrl.Run("song.mid", "", false)
	if err == nil || err.Error() != "Zoom is running" {
		t.Fatalf("expected conflict error, got %v", err)
	}
	if len(h.switcher.log) != 0 {
		t.Errorf("device mutated despite conflict: %v", h.switcher.log)
	}
	if h.toggler.suppressed {
		t.Error("notifications mutated despite conflict")
	}
	if h.capturer.calls != 0 {
		t.Error("capture ran despite conflict")
	}
}

func TestRun_CaptureFailureStillRestores(t *testing.T) {
	h := newHarness(t)
	h.capturer.err = errors.New("input device vanished")

	err := h.ctrl.Run("song.mid", "", false)
	if err == nil {
		t.Fatal("expected capture error")
	}
	h.assertRestored(t)
	if h.writer.calls != 0 {
		t.Error("output written despite capture failure")
	}
}

func TestRun_EmptyCaptureIsNotAnError(t *testing.T) {
	h := newHarness(t)
	h.capturer.err = capture.ErrCaptureEmpty

	if err := h.ctrl.Run("song.mid", "", false); err != nil {
		t.Fatalf("empty capture should not fail the run: %v", err)
	}
	h.assertRestored(t)
	if h.writer.calls != 0 {
		t.Error("output written despite empty capture")
	}
}

func TestRun_RestoresWhenAlreadySuppressed(t *testing.T) {
	h := newHarness(t)
	h.toggler.suppressed = true

	if err := h.ctrl.Run("song.mid", "", false); err != nil {
		t.Fatalf("Run: %v", err)
	}
	// Suppression predated the run, so it must survive it.
	if !h.toggler.suppressed {
		t.Error("pre-existing suppression was removed")
	}
	if h.switcher.current != "Studio Display Speakers" {
		t.Errorf("output device = %q", h.switcher.current)
	}
}

func TestRun_DurationFailureBeforeMutation(t *testing.T) {
	h := newHarness(t)
	h.ctrl.duration = func(string) (float64, error) { return 0, errors.New("not a MIDI file") }

	if err := h.ctrl.Run("broken.mid", "", false); err == nil {
		t.Fatal("expected duration error")
	}
	if len(h.switcher.log) != 0 {
		t.Errorf("device mutated before duration was known: %v", h.switcher.log)
	}
}

func TestRun_PanicDuringCaptureStillRestores(t *testing.T) {
	h := newHarness(t)
	h.capturer.panicMsg = "audio backend crashed"

	defer func() {
		if recover() == nil {
			t.Fatal("expected the capture panic to propagate")
		}
		// Restoration is deferred, so it must have run during unwinding.
		h.assertRestored(t)
	}()
	_ = h.ctrl.Run("song.mid", "", false)
}

func TestRestorer_RunsInReverseAndJoinsFailures(t *testing.T) {
	var order []string
	var r restorer
	r.add(func() error { order = append(order, "first"); return errors.New("first failed") })
	r.add(func() error { order = append(order, "second"); return nil })

	err := r.run()
	if err == nil || err.Error() != "first failed" {
		t.Fatalf("joined error = %v", err)
	}
	if len(order) != 2 || order[0] != "second" || order[1] != "first" {
		t.Errorf("cleanup order = %v, want [second first]", order)
	}
}

func TestRestorer_RunsAtMostOnce(t *testing.T) {
	var calls int
	var r restorer
	r.add(func() error { calls++; return nil })

	if err := r.run(); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if err := r.run(); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if calls != 1 {
		t.Errorf("cleanup ran %d times, want 1", calls)
	}
}

func TestRun_FailedRestoreDoesNotMaskPrimaryError(t *testing.T) {
	h := newHarness(t)
	primary := errors.New("capture exploded")
	h.capturer.err = primary
	h.ctrl.router = &failingRestoreRouter{inner: h.ctrl.router.(*sysdev.Router)}

	err := h.ctrl.Run("song.mid", "", false)
	if !errors.Is(err, primary) {
		t.Fatalf("primary error masked, got %v", err)
	}
}

type failingRestoreRouter struct {
	inner *sysdev.Router
}

func (f *failingRestoreRouter) CurrentOutputDevice() (sysdev.State, error) {
	return f.inner.CurrentOutputDevice()
}
func (f *failingRestoreRouter) RouteToCapture() error { return f.inner.RouteToCapture() }
func (f *failingRestoreRouter) Restore(sysdev.State) error {
	return errors.New("switcher unavailable")
}

func TestRun_TempFileCleanedUpOnFailure(t *testing.T) {
	h := newHarness(t)
	h.capturer.err = errors.New("boom")

	before := countTempFiles(t)
	_ = h.ctrl.Run("song.mid", "", false)
	after := countTempFiles(t)
	if after > before {
		t.Errorf("temp files leaked: %d -> %d", before, after)
	}
}

func countTempFiles(t *testing.T) int {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(os.TempDir(), "midicap-*.wav"))
	if err != nil {
		t.Fatal(err)
	}
	return len(matches)
}
