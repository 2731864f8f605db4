// Package linediff computes line-level edit scripts between two documents
// and turns them into side-by-side rows for rendering.
package linediff

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a single edit operation.
type Kind string

const (
	Same   Kind = "same"
	Add    Kind = "add"
	Delete Kind = "delete"
)

// Op is one step of an edit script.
type Op struct {
	Kind Kind   `json:"kind"`
	Line string `json:"line"`
}

// Script is an ordered edit script turning an old document into a new one.
type Script []Op

// Side is one half of an aligned row.
type Side struct {
	Num  int    `json:"num"` // 1-based line number in its document
	Text string `json:"text"`
}

// Row pairs at most one old line with at most one new line.
type Row struct {
	Kind  Kind  `json:"kind"`
	Left  *Side `json:"left,omitempty"`
	Right *Side `json:"right,omitempty"`
}

// Split splits text into lines on "\n". The empty string is an empty document.
func Split(text string) []string {
	if text == "" {
		return []string{}
	}
	return strings.Split(text, "\n")
}

// Compute returns the LCS edit script between oldLines and newLines.
// When deleting and adding lead to the same LCS length, the delete is emitted
// first. Compute is total: nil and empty inputs are both empty documents.
func Compute(oldLines, newLines []string) Script {
	n, m := len(oldLines), len(newLines)

	// dp[i][j] is the LCS length of oldLines[i:] and newLines[j:].
	dp := make([][]int, n+1)
	for i := range dp {
		dp[i] = make([]int, m+1)
	}
	for i := n - 1; i >= 0; i-- {
		for j := m - 1; j >= 0; j-- {
			if oldLines[i] == newLines[j] {
				dp[i][j] = dp[i+1][j+1] + 1
			} else {
				dp[i][j] = max(dp[i+1][j], dp[i][j+1])
			}
		}
	}

	script := make(Script, 0, n+m-dp[0][0])
	i, j := 0, 0
	for i < n || j < m {
		switch {
		case i < n && j < m && oldLines[i] == newLines[j]:
			script = append(script, Op{Kind: Same, Line: oldLines[i]})
			i++
			j++
		case j >= m || (i < n && dp[i+1][j] >= dp[i][j+1]):
			script = append(script, Op{Kind: Delete, Line: oldLines[i]})
			i++
		default:
			script = append(script, Op{Kind: Add, Line: newLines[j]})
			j++
		}
	}
	return script
}

// Align maps a script to one row per operation, numbering each side.
func Align(script Script) []Row {
	rows := make([]Row, 0, len(script))
	oldNum, newNum := 0, 0
	for _, op := range script {
		row := Row{Kind: op.Kind}
		switch op.Kind {
		case Same:
			oldNum++
			newNum++
			row.Left = &Side{Num: oldNum, Text: op.Line}
			row.Right = &Side{Num: newNum, Text: op.Line}
		case Delete:
			oldNum++
			row.Left = &Side{Num: oldNum, Text: op.Line}
		case Add:
			newNum++
			row.Right = &Side{Num: newNum, Text: op.Line}
		}
		rows = append(rows, row)
	}
	return rows
}

// Old reassembles the old document from the script.
func (s Script) Old() []string {
	lines := []string{}
	for _, op := range s {
		if op.Kind != Add {
			lines = append(lines, op.Line)
		}
	}
	return lines
}

// New reassembles the new document from the script.
func (s Script) New() []string {
	lines := []string{}
	for _, op := range s {
		if op.Kind != Delete {
			lines = append(lines, op.Line)
		}
	}
	return lines
}

// Stats counts operations by kind.
type Stats struct {
	Same    int `json:"same"`
	Added   int `json:"added"`
	Deleted int `json:"deleted"`
}

// Changed reports whether any line was added or deleted.
func (st Stats) Changed() bool { return st.Added+st.Deleted > 0 }

// Count tallies rows by kind.
func Count(rows []Row) Stats {
	var st Stats
	for _, r := range rows {
		switch r.Kind {
		case Same:
			st.Same++
		case Add:
			st.Added++
		case Delete:
			st.Deleted++
		}
	}
	return st
}

// ErrTooLarge is returned by Limits.Check when a document exceeds MaxLines.
var ErrTooLarge = errors.New("document too large to diff")

// DefaultMaxLines bounds synchronous diffs of configuration-sized documents.
const DefaultMaxLines = 5000

// Limits is the caller-side size policy applied before Compute.
type Limits struct {
	MaxLines int // 0 disables the check
}

// Check rejects documents whose line count exceeds MaxLines.
func (l Limits) Check(oldLines, newLines []string) error {
	if l.MaxLines <= 0 {
		return nil
	}
	if len(oldLines) > l.MaxLines {
		return fmt.Errorf("old document has %d lines (max %d): %w", len(oldLines), l.MaxLines, ErrTooLarge)
	}
	if len(newLines) > l.MaxLines {
		return fmt.Errorf("new document has %d lines (max %d): %w", len(newLines), l.MaxLines, ErrTooLarge)
	}
	return nil
}

// Texts runs the whole pipeline on two raw texts.
func Texts(oldText, newText string) []Row {
	return Align(Compute(Split(oldText), Split(newText)))
}
