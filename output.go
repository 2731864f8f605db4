package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/fleetdesk/fleetdesk/internal/linediff"
)

// WriteUnified writes rows as a full-context unified listing: every line
// prefixed by ' ', '-' or '+' under ---/+++ headers.
func WriteUnified(w io.Writer, oldName, newName string, rows []linediff.Row) error {
	var b strings.Builder
	fmt.Fprintf(&b, "--- %s\n+++ %s\n", oldName, newName)
	for _, row := range rows {
		switch row.Kind {
		case linediff.Same:
			b.WriteString(" " + row.Left.Text + "\n")
		case linediff.Delete:
			b.WriteString("-" + row.Left.Text + "\n")
		case linediff.Add:
			b.WriteString("+" + row.Right.Text + "\n")
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// formatStats summarizes a diff as "+2 -1 (5 unchanged)".
func formatStats(s linediff.Stats) string {
	if !s.Changed() {
		return fmt.Sprintf("no changes (%d unchanged)", s.Same)
	}
	return fmt.Sprintf("+%d -%d (%d unchanged)", s.Added, s.Deleted, s.Same)
}
