package main

import (
	"bytes"
	"testing"

	"github.com/fleetdesk/fleetdesk/internal/linediff"
)

func TestWriteUnified(t *testing.T) {
	var buf bytes.Buffer
	rows := linediff.Texts("A\nB\nC", "A\nX\nC")
	if err := WriteUnified(&buf, "a.yaml", "b.yaml", rows); err != nil {
		t.Fatal(err)
	}
	want := "--- a.yaml\n+++ b.yaml\n A\n-B\n+X\n C\n"
	if got := buf.String(); got != want {
		t.Errorf("got:\n%s\nwant:\n%s", got, want)
	}
}

func TestWriteUnified_EmptyToText(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteUnified(&buf, "a", "b", linediff.Texts("", "x\ny")); err != nil {
		t.Fatal(err)
	}
	want := "--- a\n+++ b\n+x\n+y\n"
	if got := buf.String(); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestFormatStats(t *testing.T) {
	tests := []struct {
		stats linediff.Stats
		want  string
	}{
		{linediff.Stats{Same: 3}, "no changes (3 unchanged)"},
		{linediff.Stats{Same: 1, Added: 2, Deleted: 1}, "+2 -1 (1 unchanged)"},
		{linediff.Stats{Deleted: 4}, "+0 -4 (0 unchanged)"},
	}
	for _, tt := range tests {
		if got := formatStats(tt.stats); got != tt.want {
			t.Errorf("formatStats(%+v) = %q, want %q", tt.stats, got, tt.want)
		}
	}
}
