package agent

import "errors"

// Sentinel errors for completion engine calls.
var (
	ErrEngineUnavailable = errors.New("completion engine unavailable")
	ErrEngineTimeout     = errors.New("completion engine timed out")
	ErrUnknownProvider   = errors.New("unknown completion provider")
)
