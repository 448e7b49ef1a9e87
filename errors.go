package gotaxon

import "errors"

var (
	// ErrInvalidConfig is returned for invalid configuration values.
	ErrInvalidConfig = errors.New("gotaxon: invalid configuration")

	// ErrEmptyInput is returned when an evaluation dataset has no terms.
	ErrEmptyInput = errors.New("gotaxon: empty input")

	// ErrInvalidInput is returned when a source file cannot be read or decoded.
	ErrInvalidInput = errors.New("gotaxon: invalid input")

	// ErrRunNotFound is returned when a run ID does not exist.
	ErrRunNotFound = errors.New("gotaxon: run not found")

	// ErrUnsupportedFormat is returned for unrecognized term source formats.
	ErrUnsupportedFormat = errors.New("gotaxon: unsupported source format")

	// ErrOracleUnavailable is returned when the LLM provider cannot be set up.
	ErrOracleUnavailable = errors.New("gotaxon: oracle unavailable")
)
