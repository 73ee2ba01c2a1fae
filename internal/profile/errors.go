package profile

import (
	"errors"
	"fmt"
)

var (
	ErrNilDataset      = errors.New("dataset is nil")
	ErrUnknownColumn   = errors.New("unknown column")
	ErrDuplicateColumn = errors.New("duplicate column name")
)

// ProfilingError records which operation and column failed.
type ProfilingError struct {
	Op     string
	Column string
	Err    error
}

func (e *ProfilingError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("%s %q: %v", e.Op, e.Column, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ProfilingError) Unwrap() error { return e.Err }
