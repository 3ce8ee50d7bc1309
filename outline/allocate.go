package outline

import (
	"fmt"

	"github.com/wudi/pdfoutline/ir/raw"
)

// Allocate reserves the references an outline of n items will receive when
// appended to a store currently holding storeLen objects: index 0 is the
// outline root, 1..n the items in append order.
func Allocate(storeLen, n int) ([]raw.ObjectRef, error) {
	if n <= 0 {
		return nil, ErrEmptyOutline
	}
	if storeLen < 0 {
		return nil, fmt.Errorf("negative store length %d", storeLen)
	}
	refs := make([]raw.ObjectRef, n+1)
	for i := range refs {
		refs[i] = raw.ObjectRef{Num: storeLen + 1 + i}
	}
	return refs, nil
}
