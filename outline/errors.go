package outline

import (
	"errors"
	"fmt"

	"github.com/wudi/pdfoutline/store"
)

var (
	// ErrOutOfRangePage is returned when an entry points past the document's
	// pages. It wraps store.ErrPageOutOfRange.
	ErrOutOfRangePage = fmt.Errorf("outline destination: %w", store.ErrPageOutOfRange)

	ErrEmptyOutline = errors.New("outline has no entries")

	ErrAllocatorDesync = store.ErrAllocatorDesync
)
