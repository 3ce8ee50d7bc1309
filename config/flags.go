package config

import (
	"errors"
	"fmt"
	"io"
	"strings"

	flag "github.com/spf13/pflag"
)

// ErrUsage marks command-line mistakes.
var ErrUsage = errors.New("usage")

// ErrHelp is returned when -h or --help was given.
var ErrHelp = flag.ErrHelp

// Invocation is a fully resolved command line.
type Invocation struct {
	Config Config
	// ConfigPath is the config file that was read, empty when none was.
	ConfigPath string
	Input      string
	TOC        string
	Show       bool
	Repair     bool
	Strict     bool
}

type switches struct {
	configPath           string
	show, repair, strict bool
}

func newFlagSet() (*flag.FlagSet, *Config, *switches) {
	fs := flag.NewFlagSet("pdfoutline", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.SortFlags = false

	def := Default()
	var cfg Config
	var sw switches
	fs.StringVarP(&cfg.Output, "output", "o", def.Output, "write the result to `file`")
	fs.StringVar(&cfg.Format, "format", "", "toc format: json, markdown or html (default: by extension)")
	fs.StringVar(&cfg.View, "view", def.View, "destination view: XYZ, Fit, FitH, FitV or FitB")
	fs.StringVar(&cfg.PageMode, "page-mode", def.PageMode, "also set the catalog /PageMode, e.g. UseOutlines (default: none, keep the existing value)")
	fs.StringVar(&sw.configPath, "config", "", "read settings from `file` instead of "+FileName)
	fs.BoolVar(&sw.show, "show", false, "print the outline of the written file")
	fs.BoolVar(&sw.repair, "repair", false, "rebuild the cross-reference table by scanning the input")
	fs.BoolVar(&sw.strict, "strict", false, "fail on unreadable objects instead of dropping them")
	fs.StringVar(&cfg.LogLevel, "log-level", def.LogLevel, "log level: debug, info, warn or error")
	fs.StringVar(&cfg.LogFormat, "log-format", def.LogFormat, "log format: text or json")
	return fs, &cfg, &sw
}

// Usage writes the help text.
func Usage(w io.Writer) {
	fs, _, _ := newFlagSet()
	var buf strings.Builder
	fs.SetOutput(&buf)
	fs.PrintDefaults()
	fmt.Fprintf(w, "Usage: pdfoutline [flags] <input.pdf> <toc>\n\n")
	fmt.Fprintf(w, "Adds an outline (bookmarks) described by <toc> to <input.pdf>.\n")
	fmt.Fprintf(w, "JSON tocs map titles to 0-based pages; Markdown and HTML tocs nest\n")
	fmt.Fprintf(w, "links to #page=N with 1-based pages.\n\nFlags:\n%s", buf.String())
}

// FromArgs parses args (without the program name) and merges them over the
// config file and defaults. Flags only override what they were given for.
func FromArgs(args []string, workDir string) (Invocation, error) {
	fs, flags, sw := newFlagSet()
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return Invocation{}, ErrHelp
		}
		return Invocation{}, fmt.Errorf("%w: %w", ErrUsage, err)
	}
	if fs.NArg() != 2 {
		return Invocation{}, fmt.Errorf("%w: expected <input.pdf> <toc>, got %d arguments", ErrUsage, fs.NArg())
	}

	fileCfg, loaded, err := LoadFile(workDir, sw.configPath)
	if err != nil {
		return Invocation{}, err
	}
	cfg := Merge(Default(), fileCfg)

	var changed Config
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "output":
			changed.Output = flags.Output
		case "format":
			changed.Format = flags.Format
		case "view":
			changed.View = flags.View
		case "page-mode":
			changed.PageMode = flags.PageMode
		case "log-level":
			changed.LogLevel = flags.LogLevel
		case "log-format":
			changed.LogFormat = flags.LogFormat
		}
	})
	cfg = Merge(cfg, changed)
	if fs.Changed("output") && flags.Output == "" {
		return Invocation{}, fmt.Errorf("%w: --output must not be empty", ErrUsage)
	}
	if err := cfg.Validate(); err != nil {
		return Invocation{}, err
	}

	return Invocation{
		Config:     cfg,
		ConfigPath: loaded,
		Input:      fs.Arg(0),
		TOC:        fs.Arg(1),
		Show:       sw.show,
		Repair:     sw.repair,
		Strict:     sw.strict,
	}, nil
}
