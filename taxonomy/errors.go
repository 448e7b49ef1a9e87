package taxonomy

import (
	"context"
	"errors"
)

var (
	// ErrOracle is returned when the generation service call fails, including
	// timeouts.
	ErrOracle = errors.New("taxonomy: oracle call failed")

	// ErrParse is returned when an oracle response cannot be interpreted.
	ErrParse = errors.New("taxonomy: response not parseable")

	// ErrValidation is returned when a response names a term outside the
	// chunk's universe. Only raised when term validation is enabled.
	ErrValidation = errors.New("taxonomy: term outside chunk universe")
)

// ErrorKind classifies why a chunk failed.
type ErrorKind string

const (
	KindNone       ErrorKind = ""
	KindOracle     ErrorKind = "oracle"
	KindParse      ErrorKind = "parse"
	KindValidation ErrorKind = "validation"
	KindCanceled   ErrorKind = "canceled"
)

// kindOf maps a chunk error to its kind.
func kindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrParse):
		return KindParse
	case errors.Is(err, ErrOracle):
		return KindOracle
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	}
	return KindOracle
}
