package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/wudi/pdfoutline/outline"
	"github.com/wudi/pdfoutline/tocfile"
)

func writeConfig(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
	return path
}

func TestFromArgs_Defaults(t *testing.T) {
	inv, err := FromArgs([]string{"in.pdf", "toc.json"}, t.TempDir())
	require.NoError(t, err)

	if diff := cmp.Diff(Default(), inv.Config); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}
	require.Equal(t, "in.pdf", inv.Input)
	require.Equal(t, "toc.json", inv.TOC)
	require.Empty(t, inv.ConfigPath)
	require.False(t, inv.Show)
	require.Equal(t, outline.ViewXYZ, inv.Config.ViewValue())
	require.Equal(t, tocfile.FormatAuto, inv.Config.TOCFormat())
	require.Equal(t, outline.PageModeUnchanged, inv.Config.PageMode)
	require.Equal(t, slog.LevelWarn, inv.Config.Level())
}

func TestFromArgs_Precedence(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, FileName, `{
		// project defaults
		"output": "from-file.pdf",
		"view": "fit",
		"log_level": "debug",
	}`)

	inv, err := FromArgs([]string{"--view", "FitH", "--show", "in.pdf", "toc.md"}, dir)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, FileName), inv.ConfigPath)
	require.Equal(t, "from-file.pdf", inv.Config.Output)
	require.Equal(t, "FitH", inv.Config.View, "flag wins over file")
	require.Equal(t, "debug", inv.Config.LogLevel)
	require.Equal(t, slog.LevelDebug, inv.Config.Level())
	require.True(t, inv.Show)

	inv, err = FromArgs([]string{"-o", "flag.pdf", "in.pdf", "toc.md"}, dir)
	require.NoError(t, err)
	require.Equal(t, "flag.pdf", inv.Config.Output)
	require.Equal(t, "Fit", inv.Config.View, "file value normalized")
}

func TestFromArgs_ExplicitConfig(t *testing.T) {
	dir := t.TempDir()
	other := writeConfig(t, dir, "custom.json", `{"page_mode": "none", "format": "html"}`)

	inv, err := FromArgs([]string{"--config", other, "in.pdf", "toc.txt"}, dir)
	require.NoError(t, err)
	require.Equal(t, outline.PageModeUnchanged, inv.Config.PageMode)
	require.Equal(t, tocfile.FormatHTML, inv.Config.TOCFormat())

	_, err = FromArgs([]string{"--config", "missing.json", "in.pdf", "toc.txt"}, dir)
	require.ErrorIs(t, err, ErrConfigNotFound)
}

func TestFromArgs_Errors(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		args []string
		want error
	}{
		{"missing args", []string{"in.pdf"}, ErrUsage},
		{"too many args", []string{"a", "b", "c"}, ErrUsage},
		{"unknown flag", []string{"--bogus", "in.pdf", "toc.json"}, ErrUsage},
		{"empty output", []string{"-o", "", "in.pdf", "toc.json"}, ErrUsage},
		{"bad view", []string{"--view", "Zoom", "in.pdf", "toc.json"}, ErrConfigInvalid},
		{"bad page mode", []string{"--page-mode", "Outlines", "in.pdf", "toc.json"}, ErrConfigInvalid},
		{"bad format", []string{"--format", "yaml", "in.pdf", "toc.json"}, ErrConfigInvalid},
		{"bad level", []string{"--log-level", "loud", "in.pdf", "toc.json"}, ErrConfigInvalid},
		{"bad log format", []string{"--log-format", "xml", "in.pdf", "toc.json"}, ErrConfigInvalid},
		{"help", []string{"-h"}, ErrHelp},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := FromArgs(tc.args, dir)
			if !errors.Is(err, tc.want) {
				t.Fatalf("got %v, want %v", err, tc.want)
			}
		})
	}
}

func TestLoadFile_Invalid(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, FileName, `{"outptu": "typo.pdf"}`)
	_, _, err := LoadFile(dir, "")
	require.ErrorIs(t, err, ErrConfigInvalid)

	writeConfig(t, dir, FileName, `{"output": `)
	_, _, err = LoadFile(dir, "")
	require.ErrorIs(t, err, ErrConfigInvalid)
}

func TestUsage(t *testing.T) {
	var sb strings.Builder
	Usage(&sb)
	out := sb.String()
	for _, want := range []string{"pdfoutline [flags] <input.pdf> <toc>", "--output", "--page-mode", "--show"} {
		require.Contains(t, out, want)
	}
}
