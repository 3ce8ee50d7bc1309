// Command pdfoutline adds an outline (bookmarks) to a PDF file.
package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/natefinch/atomic"

	"github.com/wudi/pdfoutline/config"
	"github.com/wudi/pdfoutline/inspect"
	"github.com/wudi/pdfoutline/observability"
	"github.com/wudi/pdfoutline/outline"
	"github.com/wudi/pdfoutline/parser"
	"github.com/wudi/pdfoutline/recovery"
	"github.com/wudi/pdfoutline/store"
	"github.com/wudi/pdfoutline/tocfile"
	"github.com/wudi/pdfoutline/writer"
	"github.com/wudi/pdfoutline/xref"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run returns 0 on success, 2 for usage and config mistakes and 1 for
// everything else.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	wd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(stderr, "pdfoutline: %v\n", err)
		return 1
	}
	inv, err := config.FromArgs(args, wd)
	if err != nil {
		if errors.Is(err, config.ErrHelp) {
			config.Usage(stdout)
			return 0
		}
		fmt.Fprintf(stderr, "pdfoutline: %v\n", err)
		if errors.Is(err, config.ErrUsage) {
			fmt.Fprintln(stderr, "run 'pdfoutline --help' for usage")
		}
		return 2
	}

	logger := newLogger(stderr, inv.Config)
	if inv.ConfigPath != "" {
		logger.Debug("loaded config", observability.String("path", inv.ConfigPath))
	}
	if err := addOutline(ctx, inv, logger); err != nil {
		fmt.Fprintf(stderr, "pdfoutline: %v\n", err)
		return 1
	}

	if inv.Show {
		items, err := inspect.Outline(inv.Config.Output)
		if err != nil {
			fmt.Fprintf(stderr, "pdfoutline: %v\n", err)
			return 1
		}
		if err := inspect.Fprint(stdout, items); err != nil {
			fmt.Fprintf(stderr, "pdfoutline: %v\n", err)
			return 1
		}
	}
	return 0
}

func newLogger(w io.Writer, cfg config.Config) observability.Logger {
	opts := &slog.HandlerOptions{Level: cfg.Level()}
	var h slog.Handler
	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return observability.NewSlogLogger(slog.New(h))
}

func addOutline(ctx context.Context, inv config.Invocation, logger observability.Logger) error {
	toc, err := tocfile.Load(inv.TOC, inv.Config.TOCFormat())
	if err != nil {
		return err
	}

	// The source stays open until the output has been written.
	f, err := os.Open(inv.Input)
	if err != nil {
		return err
	}
	defer f.Close()

	var strategy recovery.Strategy = recovery.NewLenientStrategy()
	if inv.Strict {
		strategy = recovery.NewStrictStrategy()
	}
	doc, err := parser.NewDocumentParser(parser.Config{
		XRef:     xref.ResolverConfig{ForceRepair: inv.Repair},
		Recovery: strategy,
		Logger:   logger,
	}).Parse(ctx, f)
	if err != nil {
		return fmt.Errorf("parse %s: %w", inv.Input, err)
	}
	st, err := store.FromDocument(doc)
	if err != nil {
		return fmt.Errorf("load %s: %w", inv.Input, err)
	}

	b := outline.NewBuilder(outline.Options{
		View:     inv.Config.ViewValue(),
		PageMode: inv.Config.PageMode,
		Logger:   logger,
	})
	var res outline.Result
	if toc.IsFlat() {
		res, err = b.AddFlat(st, toc.Flat)
	} else {
		res, err = b.AddTree(st, toc.Tree)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", inv.TOC, err)
	}

	var buf bytes.Buffer
	w := (&writer.WriterBuilder{}).WithConfig(writer.Config{Logger: logger}).Build()
	if err := w.Write(ctx, st, &buf); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	if err := atomic.WriteFile(inv.Config.Output, &buf); err != nil {
		return fmt.Errorf("write %s: %w", inv.Config.Output, err)
	}

	logger.Info("wrote outline",
		observability.String("output", inv.Config.Output),
		observability.Int("items", res.Count),
		observability.Int("pages", st.PageCount()),
		observability.Int("objects", st.Len()),
	)
	return nil
}
