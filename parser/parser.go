package parser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/wudi/pdfoutline/filters"
	"github.com/wudi/pdfoutline/ir/raw"
	"github.com/wudi/pdfoutline/observability"
	"github.com/wudi/pdfoutline/recovery"
	"github.com/wudi/pdfoutline/scanner"
	"github.com/wudi/pdfoutline/xref"
)

// ErrEncrypted is returned for documents carrying an /Encrypt dictionary.
var ErrEncrypted = errors.New("encrypted documents are not supported")

// Config controls high-level PDF parsing (xref resolution + object loading).
type Config struct {
	XRef   xref.ResolverConfig
	Limits Limits
	// Recovery decides whether an unreadable object aborts the parse.
	// Nil means recovery.NewLenientStrategy.
	Recovery recovery.Strategy
	Logger   observability.Logger
}

// DocumentParser builds a raw.Document using xref tables/streams and the object loader.
type DocumentParser struct {
	cfg Config
}

func NewDocumentParser(cfg Config) *DocumentParser {
	if cfg.Limits == (Limits{}) {
		cfg.Limits = DefaultLimits()
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NopLogger{}
	}
	if cfg.Recovery == nil {
		cfg.Recovery = recovery.NewLenientStrategy()
	}
	if cfg.XRef.MaxXRefDepth == 0 {
		cfg.XRef.MaxXRefDepth = cfg.Limits.MaxXRefDepth
	}
	if cfg.XRef.Logger == nil {
		cfg.XRef.Logger = cfg.Logger
	}
	if cfg.XRef.Filters == nil {
		cfg.XRef.Filters = filters.DefaultPipeline(filters.Limits{MaxDecompressedSize: cfg.Limits.MaxDecompressedSize})
	}
	return &DocumentParser{cfg: cfg}
}

// Parse reads every object the cross-reference data lists. Objects that
// cannot be read go to the recovery strategy; skipped ones are logged and
// left out, and references to them read as null.
func (p *DocumentParser) Parse(ctx context.Context, r io.ReaderAt) (*raw.Document, error) {
	if p.cfg.Limits.MaxParseTime > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.Limits.MaxParseTime)
		defer cancel()
	}
	data, err := scanner.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	version := detectHeaderVersion(data)
	if version == "" {
		p.cfg.Logger.Warn("missing %PDF header")
	}

	table, err := xref.NewResolver(p.cfg.XRef).Resolve(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("resolve xref: %w", err)
	}
	trailer := table.Trailer()
	if _, ok := trailer.Lookup("Encrypt"); ok {
		return nil, ErrEncrypted
	}

	loader, err := (&ObjectLoaderBuilder{}).
		WithData(data).
		WithXRef(table).
		WithFilters(p.cfg.XRef.Filters).
		WithLimits(p.cfg.Limits).
		Build()
	if err != nil {
		return nil, err
	}

	doc := &raw.Document{
		Objects: make(map[raw.ObjectRef]raw.Object),
		Trailer: trailer,
		Version: version,
	}
	skipped := 0
	for _, objNum := range table.Objects() {
		if objNum == 0 {
			continue // free head entry
		}
		e, found := table.Lookup(objNum)
		if !found {
			continue
		}
		ref := raw.ObjectRef{Num: objNum, Gen: e.Gen}
		obj, err := loader.Load(ctx, ref)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			loc := recovery.Location{ObjectNum: ref.Num, ObjectGen: ref.Gen, Component: "object"}
			if p.cfg.Recovery.OnError(ctx, err, loc) == recovery.ActionFail {
				return nil, fmt.Errorf("object %s: %w", ref, err)
			}
			skipped++
			p.cfg.Logger.Warn("skipping unreadable object", observability.Ref("ref", ref), observability.Error("error", err))
			continue
		}
		doc.Objects[ref] = obj
	}

	if v := catalogVersion(doc); v > doc.Version {
		doc.Version = v
	}
	p.cfg.Logger.Debug("parsed document",
		observability.String("xref", table.Type()),
		observability.Int("objects", len(doc.Objects)),
		observability.Int("skipped", skipped),
		observability.String("version", doc.Version),
	)
	return doc, nil
}

// catalogVersion reads /Version from the catalog, which overrides the
// header when it names a later version.
func catalogVersion(doc *raw.Document) string {
	root, ok := doc.Trailer.Lookup("Root")
	if !ok {
		return ""
	}
	catalog, ok := doc.Resolve(root).(*raw.DictObj)
	if !ok {
		return ""
	}
	v, _ := catalog.NameValue("Version")
	return v
}

func detectHeaderVersion(data []byte) string {
	head := data
	if len(head) > 1024 {
		head = head[:1024]
	}
	idx := strings.Index(string(head), "%PDF-")
	if idx < 0 {
		return ""
	}
	line := string(head[idx+5:])
	if end := strings.IndexAny(line, "\r\n \t"); end >= 0 {
		line = line[:end]
	}
	return strings.TrimSpace(line)
}
