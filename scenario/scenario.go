// Package scenario provides named negotiation setups: the participants, the
// setting, the opening line, and the behavioral rules a session is seeded
// with. Scenarios come from the built-in default or from JSON files.
package scenario

import (
	"fmt"
	"strings"

	"github.com/tailored-agentic-units/parley/transcript"
)

// DefaultName names the built-in scenario.
const DefaultName = "mumbai-bazaar"

// MetadataKey is the subject metadata key that selects a scenario.
const MetadataKey = "scenario"

// ErrUnknown indicates a scenario name no store provides.
var ErrUnknown = fmt.Errorf("%w: unknown scenario", transcript.ErrConfiguration)

// Scenario is the static definition of a negotiation. Text fields may
// reference subject metadata with template syntax, e.g. {{.item}}.
type Scenario struct {
	Name         string                 `json:"name"`
	Participants []transcript.Profile   `json:"participants"`
	Context      string                 `json:"context"`
	Seed         string                 `json:"seed"` // Opening line spoken by Participants[0].
	Constraints  transcript.Constraints `json:"constraints"`
}

// Setup combines the scenario with subject metadata into Builder input.
func (s Scenario) Setup(subject map[string]string) transcript.Setup {
	return transcript.Setup{
		Participants: s.Participants,
		Context:      s.Context,
		Subject:      subject,
		Constraints:  s.Constraints,
	}
}

// Labels returns the participants' speaker labels in order, trimmed the
// same way Build validates them.
func (s Scenario) Labels() []string {
	labels := make([]string, len(s.Participants))
	for i, p := range s.Participants {
		labels[i] = strings.TrimSpace(p.Name)
	}
	return labels
}

// SeedLine renders the opening line for subject.
func (s Scenario) SeedLine(subject map[string]string) (string, error) {
	if s.Seed == "" {
		return "", fmt.Errorf("%w: scenario %q has no seed line", transcript.ErrConfiguration, s.Name)
	}
	return transcript.Expand(s.Seed, subject)
}

// Default returns the built-in street-market scenario: a visiting watch
// enthusiast bargaining with a local seller.
func Default() Scenario {
	return Scenario{
		Name: DefaultName,
		Participants: []transcript.Profile{
			{
				Name: "John",
				Description: "Agent A is John, a 35-year-old watch enthusiast from New York visiting Mumbai, India. " +
					"He is knowledgeable about luxury watches and is always on the lookout for a good deal. " +
					"He is friendly and convincible.",
			},
			{
				Name: "Priya",
				Description: "Agent B is Priya, a 40-year-old local seller from Mumbai. " +
					"She owns a rare {{.item}}. " +
					"She is aware of the value of her items and is firm but fair in negotiations.",
			},
		},
		Context: "Environment: John and Priya are negotiating on the bustling streets of Mumbai, Maharashtra, " +
			"the finance capital of India. The air is filled with the sounds of vendors and traffic, " +
			"creating a vibrant atmosphere.",
		Seed: "Namaste, Priya! I'm interested in buying your {{.item}}. Is it still available?",
		Constraints: transcript.Constraints{
			Instructions: "The following is a conversation between John and Priya regarding the purchase of the item. " +
				"They should negotiate the price by making offers and counteroffers and reach a deal if possible.",
			ForbiddenPhrases: []string{"thank you", "purchase"},
		},
	}
}
