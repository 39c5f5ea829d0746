package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Adapters translate these into transport status codes; everything
// else is treated as an internal failure.
var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrVideoNotFound    = errors.New("video not found")
	ErrIngestInProgress = errors.New("ingestion already in progress")
	ErrTemporary        = errors.New("temporary failure")
)

var kinds = []error{ErrInvalidInput, ErrVideoNotFound, ErrIngestInProgress, ErrTemporary}

// WrapError tags err with a kind and the operation that failed, keeping both in the chain.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// KindOf returns the first known kind in err's chain, or nil for untyped errors.
func KindOf(err error) error {
	for _, kind := range kinds {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
