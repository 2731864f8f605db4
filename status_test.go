package main

import (
	"bytes"
	"strings"
	"testing"
)

func testStatus() (*Status, *bytes.Buffer) {
	var buf bytes.Buffer
	return &Status{w: &buf, color: false}, &buf
}

func TestStatusListening(t *testing.T) {
	s, buf := testStatus()
	s.Listening("http://localhost:3247")
	want := "  Listening on http://localhost:3247\n"
	if got := buf.String(); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestStatusPublished(t *testing.T) {
	s, buf := testStatus()
	s.Published(Event{Type: "manifest-published", ID: "gateway", Content: "3"})
	want := "→ gateway v3 published ✓\n"
	if got := buf.String(); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestStatusRolledBack(t *testing.T) {
	s, buf := testStatus()
	s.Published(Event{Type: "manifest-rolled-back", ID: "gateway", Content: "1"})
	want := "→ gateway rolled back to v1\n"
	if got := buf.String(); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestStatusIgnoresOtherEvents(t *testing.T) {
	s, buf := testStatus()
	s.Published(Event{Type: "vm-stop", ID: "vm-1"})
	if buf.Len() != 0 {
		t.Errorf("expected no output, got %q", buf.String())
	}
}

func TestStatusWatching(t *testing.T) {
	s, buf := testStatus()
	s.Watching("/srv/manifests")
	want := "→ Watching manifests in /srv/manifests\n"
	if got := buf.String(); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestStatusQR(t *testing.T) {
	s, buf := testStatus()
	s.QR("http://localhost:3247")
	if !strings.Contains(buf.String(), "▀") && !strings.Contains(buf.String(), "█") {
		t.Errorf("expected half-block QR output, got %q", buf.String())
	}
}

func TestStatusColor(t *testing.T) {
	var buf bytes.Buffer
	s := &Status{w: &buf, color: true}
	s.ShuttingDown()
	if !strings.Contains(buf.String(), ansiDim) {
		t.Errorf("expected dim escape, got %q", buf.String())
	}
}

func TestNewStatus_BufferHasNoColor(t *testing.T) {
	s := newStatus(&bytes.Buffer{})
	if s.color {
		t.Error("expected color disabled for non-terminal writer")
	}
}
