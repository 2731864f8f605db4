package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fleetdesk/fleetdesk/internal/linediff"
)

func newDiffCommand(out *bytes.Buffer) *cobra.Command {
	cmd := &cobra.Command{Use: "diff", RunE: runDiff, SilenceErrors: true, SilenceUsage: true}
	cmd.Flags().Bool("json", false, "")
	cmd.Flags().Bool("unified", false, "")
	cmd.SetOut(out)
	return cmd
}

func diffFiles(t *testing.T, oldText, newText string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	a := filepath.Join(dir, "a.txt")
	b := filepath.Join(dir, "b.txt")
	require.NoError(t, os.WriteFile(a, []byte(oldText), 0o644))
	require.NoError(t, os.WriteFile(b, []byte(newText), 0o644))
	return a, b
}

func TestRunDiff_Identical(t *testing.T) {
	cfg = DefaultConfig()
	a, b := diffFiles(t, "x\ny\n", "x\ny\n")
	var out bytes.Buffer
	cmd := newDiffCommand(&out)
	cmd.SetArgs([]string{a, b})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "no changes")
}

func TestRunDiff_DifferExitsNonZero(t *testing.T) {
	cfg = DefaultConfig()
	a, b := diffFiles(t, "A\nB\nC", "A\nX\nC")
	var out bytes.Buffer
	cmd := newDiffCommand(&out)
	cmd.SetArgs([]string{"--unified", a, b})
	err := cmd.Execute()
	assert.ErrorIs(t, err, errDiffer)
	assert.True(t, strings.HasSuffix(out.String(), " A\n-B\n+X\n C\n"), out.String())
}

func TestRunDiff_JSON(t *testing.T) {
	cfg = DefaultConfig()
	a, b := diffFiles(t, "", "new")
	var out bytes.Buffer
	cmd := newDiffCommand(&out)
	cmd.SetArgs([]string{"--json", a, b})
	assert.ErrorIs(t, cmd.Execute(), errDiffer)

	var res linediff.Result
	require.NoError(t, json.Unmarshal(out.Bytes(), &res))
	assert.Equal(t, linediff.Stats{Added: 1}, res.Stats)
}

func TestRunDiff_Limits(t *testing.T) {
	cfg = DefaultConfig()
	cfg.Diff.MaxLines = 1
	a, b := diffFiles(t, "a\nb", "a")
	cmd := newDiffCommand(&bytes.Buffer{})
	cmd.SetArgs([]string{a, b})
	assert.ErrorIs(t, cmd.Execute(), linediff.ErrTooLarge)
}

func TestRunDiff_MissingFile(t *testing.T) {
	cfg = DefaultConfig()
	cmd := newDiffCommand(&bytes.Buffer{})
	cmd.SetArgs([]string{"/nonexistent/a", "/nonexistent/b"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.NotErrorIs(t, err, errDiffer)
}

func TestNewLogger(t *testing.T) {
	l, err := newLogger(LogConfig{Level: "warn", Format: "json"}, false)
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zap.InfoLevel))
	assert.True(t, l.Core().Enabled(zap.WarnLevel))

	l, err = newLogger(LogConfig{Level: "warn", Format: "console"}, true)
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zap.DebugLevel), "verbose overrides the level")

	_, err = newLogger(LogConfig{Level: "loud"}, false)
	assert.Error(t, err)
}

func TestApplyServeFlags(t *testing.T) {
	cmd := &cobra.Command{Use: "serve"}
	cmd.Flags().String("addr", "", "")
	cmd.Flags().String("db", "", "")
	cmd.Flags().String("manifest-dir", "", "")
	cmd.Flags().Bool("no-open", false, "")
	cmd.Flags().Bool("qr", false, "")
	require.NoError(t, cmd.Flags().Parse([]string{"--addr", "0.0.0.0:8080", "--no-open", "--qr"}))

	c := DefaultConfig()
	c.DB = "file:from-config.db"
	applyServeFlags(cmd, &c)
	assert.Equal(t, "0.0.0.0:8080", c.Addr)
	assert.Equal(t, "file:from-config.db", c.DB, "unset flags keep config values")
	assert.False(t, c.OpenBrowser)
	assert.True(t, c.ShowQR)
}
