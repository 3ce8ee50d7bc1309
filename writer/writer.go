package writer

import (
	"context"
	"io"

	"github.com/wudi/pdfoutline/ir/raw"
	"github.com/wudi/pdfoutline/observability"
)

// Source is the object sequence a Writer emits. *store.Store implements it.
type Source interface {
	Len() int
	Get(ref raw.ObjectRef) (raw.Object, bool)
	CatalogRef() raw.ObjectRef
	Info() (raw.ObjectRef, bool)
	ID() []raw.StringObj
	Version() string
}

type Config struct {
	// Version overrides the source's header version when set.
	Version string
	Logger  observability.Logger
}

type Writer interface {
	Write(ctx context.Context, src Source, w io.Writer) error
	SerializeObject(ref raw.ObjectRef, obj raw.Object) ([]byte, error)
}

type WriterBuilder struct{ cfg Config }

func (b *WriterBuilder) WithConfig(cfg Config) *WriterBuilder {
	b.cfg = cfg
	return b
}

func (b *WriterBuilder) Build() Writer {
	cfg := b.cfg
	if cfg.Logger == nil {
		cfg.Logger = observability.NopLogger{}
	}
	return &impl{cfg: cfg}
}
