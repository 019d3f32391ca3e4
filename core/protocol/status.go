package protocol

// Status is the lifecycle state of a negotiation session.
type Status string

const (
	StatusOngoing         Status = "ongoing"
	StatusConcluded       Status = "concluded"
	StatusIncomplete      Status = "incomplete"
	StatusMaxStepsReached Status = "max_steps_reached"
)

// IsTerminal reports whether no further turns may be appended.
func (s Status) IsTerminal() bool {
	return s != StatusOngoing
}

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	switch s {
	case StatusOngoing, StatusConcluded, StatusIncomplete, StatusMaxStepsReached:
		return true
	}
	return false
}

// CanTransition reports whether a session in status s may move to next.
// Staying in the same status is always allowed; the only real transitions
// are out of ongoing.
func (s Status) CanTransition(next Status) bool {
	if !next.IsValid() {
		return false
	}
	if s == next {
		return true
	}
	return s == StatusOngoing
}
