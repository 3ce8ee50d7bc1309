// Package config resolves pdfoutline settings from defaults, an optional
// JSONC config file and command-line flags, in that order of precedence.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/tailscale/hujson"

	"github.com/wudi/pdfoutline/outline"
	"github.com/wudi/pdfoutline/tocfile"
)

// FileName is the config file looked up in the working directory.
const FileName = ".pdfoutline.json"

var (
	ErrConfigInvalid  = errors.New("invalid config")
	ErrConfigNotFound = errors.New("config file not found")
)

// Config holds the settings a run uses.
type Config struct {
	Output    string `json:"output,omitempty"`
	View      string `json:"view,omitempty"`
	PageMode  string `json:"page_mode,omitempty"` //nolint:tagliatelle // snake_case for config file
	Format    string `json:"format,omitempty"`
	LogLevel  string `json:"log_level,omitempty"`  //nolint:tagliatelle // snake_case for config file
	LogFormat string `json:"log_format,omitempty"` //nolint:tagliatelle // snake_case for config file
}

func Default() Config {
	return Config{
		Output:    "output.pdf",
		View:      outline.ViewXYZ.String(),
		PageMode:  outline.PageModeUnchanged,
		LogLevel:  "warn",
		LogFormat: "text",
	}
}

var pageModes = []string{"UseNone", "UseOutlines", "UseThumbs", "FullScreen", "UseOC", "UseAttachments", outline.PageModeUnchanged}

// Validate checks every field and normalizes the spelling of names that are
// matched case-insensitively.
func (c *Config) Validate() error {
	if c.Output == "" {
		return fmt.Errorf("%w: output must not be empty", ErrConfigInvalid)
	}
	v, err := outline.ParseView(c.View)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConfigInvalid, err)
	}
	c.View = v.String()

	mode := ""
	for _, m := range pageModes {
		if strings.EqualFold(m, c.PageMode) {
			mode = m
		}
	}
	if mode == "" {
		return fmt.Errorf("%w: page mode %q (want one of %s)", ErrConfigInvalid, c.PageMode, strings.Join(pageModes, ", "))
	}
	c.PageMode = mode

	if _, err := tocfile.ParseFormat(c.Format); err != nil {
		return fmt.Errorf("%w: %w", ErrConfigInvalid, err)
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
		c.LogFormat = strings.ToLower(c.LogFormat)
	default:
		return fmt.Errorf("%w: log format %q (want text or json)", ErrConfigInvalid, c.LogFormat)
	}
	return nil
}

// ViewValue returns the parsed destination view.
func (c Config) ViewValue() outline.View {
	v, _ := outline.ParseView(c.View)
	return v
}

// TOCFormat returns the parsed table of contents format.
func (c Config) TOCFormat() tocfile.Format {
	f, _ := tocfile.ParseFormat(c.Format)
	return f
}

// Level returns the slog level for LogLevel, warn when it is not valid.
func (c Config) Level() slog.Level {
	l, err := parseLevel(c.LogLevel)
	if err != nil {
		return slog.LevelWarn
	}
	return l
}

func parseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("%w: log level %q (want debug, info, warn or error)", ErrConfigInvalid, s)
	}
	return l, nil
}

// Merge returns base with every non-empty field of overlay applied.
func Merge(base, overlay Config) Config {
	if overlay.Output != "" {
		base.Output = overlay.Output
	}
	if overlay.View != "" {
		base.View = overlay.View
	}
	if overlay.PageMode != "" {
		base.PageMode = overlay.PageMode
	}
	if overlay.Format != "" {
		base.Format = overlay.Format
	}
	if overlay.LogLevel != "" {
		base.LogLevel = overlay.LogLevel
	}
	if overlay.LogFormat != "" {
		base.LogFormat = overlay.LogFormat
	}
	return base
}

// LoadFile reads the config file. An explicit path must exist; otherwise
// FileName in workDir is read when present. It returns the path that was
// loaded, empty when none was.
func LoadFile(workDir, explicit string) (Config, string, error) {
	path := explicit
	mustExist := path != ""
	if path == "" {
		path = FileName
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(workDir, path)
	}

	data, err := os.ReadFile(path) //nolint:gosec // path is intentionally user-controlled
	if err != nil {
		if os.IsNotExist(err) {
			if mustExist {
				return Config{}, "", fmt.Errorf("%w: %s", ErrConfigNotFound, explicit)
			}
			return Config{}, "", nil
		}
		return Config{}, "", fmt.Errorf("read config %s: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return Config{}, "", fmt.Errorf("%w %s: %w", ErrConfigInvalid, path, err)
	}
	return cfg, path, nil
}

// Parse decodes a JSONC config. Unknown keys are rejected.
func Parse(data []byte) (Config, error) {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, fmt.Errorf("invalid JSONC: %w", err)
	}

	var cfg Config
	dec := json.NewDecoder(bytes.NewReader(standardized))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("invalid JSON: %w", err)
	}
	return cfg, nil
}
