package writer

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/blake2b"

	"github.com/wudi/pdfoutline/ir/raw"
	"github.com/wudi/pdfoutline/observability"
)

var ErrNoRoot = errors.New("source has no catalog")

type impl struct{ cfg Config }

func (w *impl) SerializeObject(ref raw.ObjectRef, obj raw.Object) ([]byte, error) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%d %d obj\n", ref.Num, ref.Gen)
	if obj == nil {
		obj = raw.NullObj{}
	}
	buf.Write(serializePrimitive(obj))
	buf.WriteString("\nendobj\n")
	return buf.Bytes(), nil
}

// countingWriter tracks the output offset for the xref table.
type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// Write emits a complete file: header, objects 1..Len() in order, a classic
// xref table and the trailer.
func (w *impl) Write(ctx context.Context, src Source, out io.Writer) error {
	root := src.CatalogRef()
	if _, ok := src.Get(root); !ok || root.IsZero() {
		return ErrNoRoot
	}
	version := w.cfg.Version
	if version == "" {
		version = src.Version()
	}
	if version == "" {
		version = "1.7"
	}

	bw := bufio.NewWriter(out)
	hash, _ := blake2b.New(16, nil)
	cw := &countingWriter{w: io.MultiWriter(bw, hash)}

	fmt.Fprintf(cw, "%%PDF-%s\n%%\xE2\xE3\xCF\xD3\n", version)
	size := src.Len() + 1
	offsets := make([]int64, size)
	for num := 1; num < size; num++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		ref := raw.ObjectRef{Num: num}
		obj, _ := src.Get(ref)
		serialized, err := w.SerializeObject(ref, obj)
		if err != nil {
			return fmt.Errorf("object %v: %w", ref, err)
		}
		offsets[num] = cw.n
		if _, err := cw.Write(serialized); err != nil {
			return err
		}
	}

	xrefOffset := cw.n
	var tail bytes.Buffer
	fmt.Fprintf(&tail, "xref\n0 %d\n", size)
	tail.WriteString("0000000000 65535 f \n")
	for num := 1; num < size; num++ {
		fmt.Fprintf(&tail, "%010d 00000 n \n", offsets[num])
	}
	tail.WriteString("trailer\n")
	info, hasInfo := src.Info()
	var infoRef *raw.ObjectRef
	if hasInfo {
		infoRef = &info
	}
	tail.Write(serializePrimitive(buildTrailer(size, root, infoRef, fileID(src.ID(), hash.Sum(nil)))))
	fmt.Fprintf(&tail, "\nstartxref\n%d\n%%%%EOF\n", xrefOffset)
	if _, err := bw.Write(tail.Bytes()); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	w.cfg.Logger.Debug("document written",
		observability.Int("objects", size-1),
		observability.Int64("bytes", xrefOffset+int64(tail.Len())),
	)
	return nil
}
