package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/mattn/go-runewidth"

	"github.com/fleetdesk/fleetdesk/internal/linediff"
)

func renderPlain(t *testing.T, width int, oldText, newText string) []string {
	t.Helper()
	var buf bytes.Buffer
	r := SideBySide{Width: width}
	if err := r.Render(&buf, "old.yaml", "new.yaml", linediff.Texts(oldText, newText)); err != nil {
		t.Fatal(err)
	}
	return strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
}

func TestSideBySide_Rows(t *testing.T) {
	lines := renderPlain(t, 60, "a\nb\nc", "a\nx\nc")
	// header, 4 rows, footer
	if len(lines) != 6 {
		t.Fatalf("got %d lines:\n%s", len(lines), strings.Join(lines, "\n"))
	}
	if !strings.HasPrefix(lines[0], "old.yaml") || !strings.HasSuffix(lines[0], "new.yaml") {
		t.Errorf("header = %q", lines[0])
	}
	if !strings.Contains(lines[2], "- b") || strings.Contains(lines[2], "+") {
		t.Errorf("delete row = %q", lines[2])
	}
	if !strings.Contains(lines[3], "+ x") || strings.Contains(lines[3], "- ") {
		t.Errorf("add row = %q", lines[3])
	}
	if lines[5] != "+1 -1 (2 unchanged)" {
		t.Errorf("footer = %q", lines[5])
	}
}

func TestSideBySide_AlignsDivider(t *testing.T) {
	lines := renderPlain(t, 60, "short\nthis line is quite a bit longer than the rest", "short\nx")
	col := -1
	for _, l := range lines[1 : len(lines)-1] {
		i := runewidth.StringWidth(l[:strings.Index(l, "│")])
		if col == -1 {
			col = i
		}
		if i != col {
			t.Errorf("divider at %d, want %d in %q", i, col, l)
		}
	}
}

func TestSideBySide_TruncatesWideText(t *testing.T) {
	long := strings.Repeat("界", 80)
	lines := renderPlain(t, 40, long, long)
	if !strings.Contains(lines[1], "…") {
		t.Errorf("expected truncation marker in %q", lines[1])
	}
}

func TestSideBySide_NarrowWidthKeepsMinimumColumn(t *testing.T) {
	r := SideBySide{Width: 5}
	if got := r.column(); got != minColumn {
		t.Errorf("column = %d, want %d", got, minColumn)
	}
}

func TestSideBySide_NoChanges(t *testing.T) {
	lines := renderPlain(t, 60, "a\nb", "a\nb")
	if got := lines[len(lines)-1]; got != "no changes (2 unchanged)" {
		t.Errorf("footer = %q", got)
	}
}

func TestExpandTabs(t *testing.T) {
	if got := expandTabs("\tkey: v"); got != "    key: v" {
		t.Errorf("got %q", got)
	}
}
