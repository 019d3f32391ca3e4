package negotiation

import "github.com/tailored-agentic-units/parley/observability"

// Negotiation event types.
const (
	EventSessionStart observability.EventType = "negotiation.session.start"
	EventTurn         observability.EventType = "negotiation.turn"
	EventRetry        observability.EventType = "negotiation.retry"
	EventJudge        observability.EventType = "negotiation.judge"
	EventComplete     observability.EventType = "negotiation.complete"
	EventError        observability.EventType = "negotiation.error"
)
