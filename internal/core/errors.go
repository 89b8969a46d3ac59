package core

import (
	"errors"
	"fmt"
)

// Error kinds. Callers decide abort-or-continue with errors.Is.
var (
	// ErrConfig marks missing or invalid configuration. Fatal at startup.
	ErrConfig = errors.New("configuration error")

	// ErrAuth marks absent or rejected credentials.
	ErrAuth = errors.New("authentication error")

	// ErrTransport marks network, timeout or server-side failures.
	ErrTransport = errors.New("transport error")

	// ErrProtocol marks a response that cannot be decoded into the expected
	// shape, or that carries no data where data was expected.
	ErrProtocol = errors.New("protocol error")

	// ErrIO marks a cache read or write failure, including corrupt payloads.
	ErrIO = errors.New("cache I/O error")

	// ErrNotFound marks a cache entry that does not exist.
	ErrNotFound = errors.New("not found")

	// ErrParse marks a malformed timestamp or value during aggregation.
	ErrParse = errors.New("parse error")

	// ErrItemFetch marks a detail fetch failure for a single receipt.
	ErrItemFetch = errors.New("receipt detail fetch failed")
)

var (
	ErrEmptyKey       = errors.New("empty receipt key")
	ErrInvalidAmount  = errors.New("invalid amount")
	ErrNegativeAmount = errors.New("negative amount")
)

// ItemError is a per-receipt detail fetch failure. It matches both
// ErrItemFetch and the underlying cause under errors.Is.
type ItemError struct {
	Key string
	Err error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("fetch detail %s: %v", e.Key, e.Err)
}

func (e *ItemError) Unwrap() []error {
	return []error{ErrItemFetch, e.Err}
}
