package main

import (
	"fmt"
	"io"
	"os"

	"github.com/mdp/qrterminal/v3"
	"golang.org/x/term"
)

const (
	ansiDim   = "\033[2m"
	ansiGreen = "\033[32m"
	ansiReset = "\033[0m"
)

// Status prints the operator-facing lines of a running console.
type Status struct {
	w     io.Writer
	color bool
}

func newStatus(w io.Writer) *Status {
	return &Status{w: w, color: useColor(w)}
}

// useColor is true only for a terminal with NO_COLOR unset.
func useColor(w io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func (s *Status) dim(text string) string {
	if s.color {
		return ansiDim + text + ansiReset
	}
	return text
}

func (s *Status) green(text string) string {
	if s.color {
		return ansiGreen + text + ansiReset
	}
	return text
}

func (s *Status) arrow() string {
	return s.dim("→")
}

// Listening prints the console URL on startup.
func (s *Status) Listening(url string) {
	fmt.Fprintf(s.w, "  %s\n", s.dim("Listening on "+url))
}

// QR prints url as a half-block QR code.
func (s *Status) QR(url string) {
	qrterminal.GenerateHalfBlock(url, qrterminal.L, s.w)
}

// Watching prints the manifest directory being imported.
func (s *Status) Watching(dir string) {
	fmt.Fprintf(s.w, "%s %s\n", s.arrow(), s.dim("Watching manifests in "+dir))
}

// Published prints a manifest publish or rollback.
func (s *Status) Published(e Event) {
	switch e.Type {
	case "manifest-published":
		fmt.Fprintf(s.w, "%s %s v%s published %s\n", s.arrow(), e.ID, e.Content, s.green("✓"))
	case "manifest-rolled-back":
		fmt.Fprintf(s.w, "%s %s rolled back to v%s\n", s.arrow(), e.ID, e.Content)
	}
}

// ShuttingDown prints the shutdown notice.
func (s *Status) ShuttingDown() {
	fmt.Fprintf(s.w, "%s %s\n", s.arrow(), s.dim("Shutting down…"))
}
