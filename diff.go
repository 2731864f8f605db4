package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/fleetdesk/fleetdesk/internal/linediff"
)

const (
	minColumn   = 10
	gutterWidth = 4
	divider     = " │ "
)

var (
	deleteStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	addStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	numberStyle = lipgloss.NewStyle().Faint(true)
	headerStyle = lipgloss.NewStyle().Bold(true)
)

// SideBySide renders aligned rows as two terminal columns.
type SideBySide struct {
	Width int
	Color bool
}

// column is the text width of one side: number, marker, text.
func (r SideBySide) column() int {
	c := (r.Width - len([]rune(divider))) / 2
	c -= gutterWidth + 3
	return max(c, minColumn)
}

func (r SideBySide) style(st lipgloss.Style, s string) string {
	if !r.Color {
		return s
	}
	return st.Render(s)
}

// Render writes a header naming both sides, every row, and a stats footer.
func (r SideBySide) Render(w io.Writer, oldName, newName string, rows []linediff.Row) error {
	col := r.column()
	head := r.style(headerStyle, runewidth.FillRight(runewidth.Truncate(oldName, col+gutterWidth+3, "…"), col+gutterWidth+3))
	if _, err := fmt.Fprintf(w, "%s%s%s\n", head, divider, r.style(headerStyle, newName)); err != nil {
		return err
	}
	for _, row := range rows {
		left := r.cell(row.Left, '-', row.Kind == linediff.Delete, deleteStyle, col)
		right := r.cell(row.Right, '+', row.Kind == linediff.Add, addStyle, col)
		if _, err := fmt.Fprintf(w, "%s%s%s\n", left, divider, strings.TrimRight(right, " ")); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w, r.style(numberStyle, formatStats(linediff.Count(rows))))
	return err
}

func (r SideBySide) cell(side *linediff.Side, marker rune, changed bool, st lipgloss.Style, col int) string {
	if side == nil {
		return strings.Repeat(" ", gutterWidth+3+col)
	}
	num := fmt.Sprintf("%*d", gutterWidth, side.Num)
	m := ' '
	if changed {
		m = marker
	}
	text := runewidth.FillRight(runewidth.Truncate(expandTabs(side.Text), col, "…"), col)
	body := string(m) + " " + text
	if changed {
		body = r.style(st, body)
	}
	return r.style(numberStyle, num) + " " + body
}

// expandTabs keeps column math honest; runewidth counts a tab as zero.
func expandTabs(s string) string {
	return strings.ReplaceAll(s, "\t", "    ")
}
