package negotiation

import (
	"errors"

	"github.com/tailored-agentic-units/parley/session"
	"github.com/tailored-agentic-units/parley/transcript"
	"github.com/tailored-agentic-units/parley/turn"
)

// Errors returned by the Orchestrator. Subsystem sentinels are re-exported
// so callers can match every failure against this package alone.
var (
	ErrConfiguration     = transcript.ErrConfiguration
	ErrNotFound          = session.ErrNotFound
	ErrInvalidState      = session.ErrInvalidState
	ErrBadRequest        = errors.New("bad request")
	ErrGeneration        = turn.ErrGeneration
	ErrGenerationTimeout = turn.ErrGenerationTimeout
	ErrEmptyGeneration   = turn.ErrEmptyGeneration
)

// Kind is the stable, machine-readable class of a failure.
type Kind string

const (
	KindConfiguration     Kind = "configuration"
	KindNotFound          Kind = "not_found"
	KindInvalidState      Kind = "invalid_state"
	KindBadRequest        Kind = "bad_request"
	KindGeneration        Kind = "generation"
	KindGenerationTimeout Kind = "generation_timeout"
	KindEmptyGeneration   Kind = "empty_generation"
	KindInternal          Kind = "internal"
)

// KindOf classifies err. Unrecognized errors are KindInternal.
func KindOf(err error) Kind {
	switch {
	case errors.Is(err, ErrConfiguration):
		return KindConfiguration
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrInvalidState):
		return KindInvalidState
	case errors.Is(err, ErrBadRequest):
		return KindBadRequest
	case errors.Is(err, ErrGenerationTimeout):
		return KindGenerationTimeout
	case errors.Is(err, ErrEmptyGeneration):
		return KindEmptyGeneration
	case errors.Is(err, ErrGeneration):
		return KindGeneration
	default:
		return KindInternal
	}
}

// IsClientError reports whether err was caused by the caller's input or the
// session's state rather than by the engine or the runtime.
func IsClientError(err error) bool {
	switch KindOf(err) {
	case KindConfiguration, KindNotFound, KindInvalidState, KindBadRequest:
		return true
	}
	return false
}
