package store

import "errors"

var (
	// ErrAllocatorDesync reports that objects were appended between reference
	// allocation and the matching AppendAll. The allocated references would
	// point at the wrong objects, so the write is refused.
	ErrAllocatorDesync = errors.New("allocated references out of sync with store")

	ErrPageOutOfRange = errors.New("page index out of range")
	ErrNoCatalog      = errors.New("document has no catalog")
	ErrUnknownObject  = errors.New("object not in store")
)
