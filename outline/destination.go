package outline

import (
	"fmt"
	"strings"

	"github.com/wudi/pdfoutline/ir/raw"
)

// PageResolver maps 0-based page indices to page objects.
type PageResolver interface {
	PageCount() int
	PageRef(index int) (raw.ObjectRef, error)
}

// View selects how a viewer positions the target page.
type View int

const (
	// ViewXYZ keeps the current position and zoom.
	ViewXYZ View = iota
	ViewFit
	ViewFitH
	ViewFitV
	ViewFitB
)

var viewNames = [...]string{"XYZ", "Fit", "FitH", "FitV", "FitB"}

func (v View) String() string {
	if v < 0 || int(v) >= len(viewNames) {
		return fmt.Sprintf("View(%d)", int(v))
	}
	return viewNames[v]
}

// ParseView accepts a view name case-insensitively.
func ParseView(s string) (View, error) {
	for i, n := range viewNames {
		if strings.EqualFold(s, n) {
			return View(i), nil
		}
	}
	return 0, fmt.Errorf("unknown view %q (want one of %s)", s, strings.Join(viewNames[:], ", "))
}

// Destination returns [page /XYZ null null null] for the page at index.
func Destination(pages PageResolver, index int) (*raw.ArrayObj, error) {
	return DestinationWithView(pages, index, ViewXYZ)
}

func DestinationWithView(pages PageResolver, index int, view View) (*raw.ArrayObj, error) {
	if count := pages.PageCount(); index < 0 || index >= count {
		return nil, fmt.Errorf("%w: index %d, document has %d pages", ErrOutOfRangePage, index, count)
	}
	ref, err := pages.PageRef(index)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOutOfRangePage, err)
	}
	dest := raw.NewArray(raw.RefTo(ref), raw.NameLiteral(view.String()))
	switch view {
	case ViewXYZ:
		dest.Append(raw.NullObj{})
		dest.Append(raw.NullObj{})
		dest.Append(raw.NullObj{})
	case ViewFitH, ViewFitV:
		dest.Append(raw.NullObj{})
	case ViewFit, ViewFitB:
	default:
		return nil, fmt.Errorf("unknown view %v", view)
	}
	return dest, nil
}
