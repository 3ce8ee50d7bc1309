// Package recovery decides what happens when part of an input document
// cannot be read.
package recovery

import (
	"context"
	"fmt"
)

type Strategy interface {
	OnError(ctx context.Context, err error, location Location) Action
}

// Location identifies the failing object.
type Location struct {
	ObjectNum int
	ObjectGen int
	Component string
}

func (l Location) String() string {
	return fmt.Sprintf("%s %d %d R", l.Component, l.ObjectNum, l.ObjectGen)
}

type Action int

const (
	ActionFail Action = iota
	// ActionSkip drops the object; references to it read as null.
	ActionSkip
)
