// Package protocol defines the value types exchanged between the negotiation
// subsystems: speaker labels, transcript utterances, and session status.
package protocol

import "slices"

// SpeakerSetup labels the synthetic first transcript entry that carries the
// rendered scenario setup.
const SpeakerSetup = "setup"

// Utterance is a single transcript entry. Speaker is the label the line is
// rendered under; Text is the sanitized content without the label.
type Utterance struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

// NewUtterance creates an Utterance for the given speaker.
//
// Example:
//
//	u := protocol.NewUtterance("Priya", "It is still available.")
func NewUtterance(speaker, text string) Utterance {
	return Utterance{Speaker: speaker, Text: text}
}

// IsSetup reports whether u is the synthetic setup entry.
func (u Utterance) IsSetup() bool {
	return u.Speaker == SpeakerSetup
}

// InitTranscript creates a transcript holding only the setup entry.
func InitTranscript(setup string) []Utterance {
	return []Utterance{NewUtterance(SpeakerSetup, setup)}
}

// CloneTranscript returns an independent copy of t.
func CloneTranscript(t []Utterance) []Utterance {
	return slices.Clone(t)
}
