package sysdev

import (
	"errors"
	"testing"
)

type fakeSwitcher struct {
	current    string
	currentErr error
	setErr     error
	setCalls   []string
}

func (f *fakeSwitcher) Current() (string, error) { return f.current, f.currentErr }

func (f *fakeSwitcher) Set(name string) error {
	if f.setErr != nil {
		return f.setErr
	}
	f.setCalls = append(f.setCalls, name)
	f.current = name
	return nil
}

func TestRouter_SnapshotRouteRestore(t *testing.T) {
	sw := &fakeSwitcher{current: "MacBook Pro Speakers"}
	r := NewRouter(sw, "Soundflower (2ch)")

	st, err := r.CurrentOutputDevice()
	if err != nil {
		t.Fatalf("CurrentOutputDevice: %v", err)
	}
	if st.Device != "MacBook Pro Speakers" {
		t.Errorf("snapshot device = %q", st.Device)
	}

	if err := r.RouteToCapture(); err != nil {
		t.Fatalf("RouteToCapture: %v", err)
	}
	if sw.current != "Soundflower (2ch)" {
		t.Errorf("active device after reroute = %q", sw.current)
	}

	if err := r.Restore(st); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if sw.current != "MacBook Pro Speakers" {
		t.Errorf("active device after restore = %q, want snapshot", sw.current)
	}
}

func TestRouter_QueryFailure(t *testing.T) {
	sw := &fakeSwitcher{currentErr: errors.New("boom")}
	r := NewRouter(sw, "Soundflower (2ch)")

	_, err := r.CurrentOutputDevice()
	if !errors.Is(err, ErrDeviceQuery) {
		t.Fatalf("expected ErrDeviceQuery, got %v", err)
	}
}

func TestRouter_SwitchFailure(t *testing.T) {
	sw := &fakeSwitcher{current: "Speakers", setErr: errors.New("no such device")}
	r := NewRouter(sw, "Soundflower (2ch)")

	if err := r.RouteToCapture(); !errors.Is(err, ErrDeviceSwitch) {
		t.Fatalf("expected ErrDeviceSwitch, got %v", err)
	}
}

func TestRouter_RestoreRejectsEmptySnapshot(t *testing.T) {
	r := NewRouter(&fakeSwitcher{}, "Soundflower (2ch)")
	if err := r.Restore(State{}); err == nil {
		t.Fatal("expected error for zero-value snapshot")
	}
}
