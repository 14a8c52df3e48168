package store

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidKey   = errors.New("invalid config key")
	ErrInvalidValue = errors.New("invalid config value")
	ErrIncomplete   = errors.New("config file is missing keys")
)

// KeyError reports a key outside the closed key set.
type KeyError struct {
	Key string
}

func (e *KeyError) Error() string {
	return fmt.Sprintf("invalid config name %s", e.Key)
}

func (e *KeyError) Unwrap() error { return ErrInvalidKey }

// ValueError reports a value that does not parse or validate for its key.
type ValueError struct {
	Key    string
	Raw    string
	Reason error
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("invalid config %s=%s", e.Key, e.Raw)
}

func (e *ValueError) Unwrap() error { return ErrInvalidValue }

// BatchError collects the per-pair errors of a rejected batch, in input order.
type BatchError struct {
	Errs []error
}

func (e *BatchError) Error() string {
	msgs := make([]string, len(e.Errs))
	for i, err := range e.Errs {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

func (e *BatchError) Unwrap() []error { return e.Errs }

// First returns the first error of the batch.
func (e *BatchError) First() error {
	if len(e.Errs) == 0 {
		return nil
	}
	return e.Errs[0]
}
