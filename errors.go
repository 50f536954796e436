package reporter

import "errors"

// Sentinel errors produced by the root package. Component packages own the
// sentinels they produce (vectorstore.ErrNotFound,
// vectorstore.ErrDimensionMismatch, fetch.ErrUpstream, fetch.ErrNotFound);
// callers compare with errors.Is either way.
var (
	// ErrConfig is returned for missing or invalid configuration. Operations
	// fail before doing any work; the CLI maps it to exit code 2.
	ErrConfig = errors.New("reporter: invalid configuration")

	// ErrInvalidInput is returned for a rejected caller-supplied parameter.
	// The CLI maps it to exit code 1.
	ErrInvalidInput = errors.New("reporter: invalid input")
)
