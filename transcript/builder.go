// Package transcript renders a negotiation's static setup into the seed
// prompt and renders transcripts back into prompt text.
//
// Build is deterministic: identical Setup values always produce identical
// text, which is the anchor every subsequent turn extends.
package transcript

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"text/template"

	"github.com/tailored-agentic-units/parley/core/protocol"
)

// ErrConfiguration indicates a Setup that cannot be rendered.
var ErrConfiguration = errors.New("invalid negotiation configuration")

// SubjectItem is the required subject key naming the negotiated item.
const SubjectItem = "item"

// Profile describes one participant. Name is the participant's speaker
// label; Description may reference subject values, e.g. {{.item}}.
type Profile struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Constraints are behavioral rules appended after the subject.
type Constraints struct {
	Instructions     string   `json:"instructions,omitempty"`
	ForbiddenPhrases []string `json:"forbidden_phrases,omitempty"` // Disallowed until the negotiation concludes.
	MaxReplyWords    int      `json:"max_reply_words,omitempty"`
}

// Setup is the static input of a negotiation.
type Setup struct {
	Participants []Profile
	Context      string
	Subject      map[string]string
	Constraints  Constraints
}

// Validate reports whether s has the fields Build requires.
func (s *Setup) Validate() error {
	if len(s.Participants) < 2 {
		return fmt.Errorf("%w: at least two participants required, got %d", ErrConfiguration, len(s.Participants))
	}

	seen := make(map[string]bool, len(s.Participants))
	for i, p := range s.Participants {
		name := strings.TrimSpace(p.Name)
		if name == "" {
			return fmt.Errorf("%w: participant %d has no name", ErrConfiguration, i)
		}
		if strings.Contains(name, ":") {
			return fmt.Errorf("%w: participant name %q contains ':'", ErrConfiguration, name)
		}
		if strings.EqualFold(name, protocol.SpeakerSetup) {
			return fmt.Errorf("%w: participant name %q is reserved", ErrConfiguration, name)
		}
		key := strings.ToLower(name)
		if seen[key] {
			return fmt.Errorf("%w: duplicate participant %q", ErrConfiguration, name)
		}
		seen[key] = true
	}

	if strings.TrimSpace(s.Subject[SubjectItem]) == "" {
		return fmt.Errorf("%w: subject %q is required", ErrConfiguration, SubjectItem)
	}

	return nil
}

// Build renders s into the initial prompt text: each participant profile,
// the scenario context, the subject, then the constraints.
func Build(s Setup) (string, error) {
	if err := s.Validate(); err != nil {
		return "", err
	}

	var b strings.Builder

	for _, p := range s.Participants {
		desc, err := Expand(p.Description, s.Subject)
		if err != nil {
			return "", err
		}
		if desc = strings.TrimSpace(desc); desc != "" {
			b.WriteString(desc)
			b.WriteString("\n\n")
		}
	}

	scene, err := Expand(s.Context, s.Subject)
	if err != nil {
		return "", err
	}
	if scene = strings.TrimSpace(scene); scene != "" {
		b.WriteString(scene)
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "Item for negotiation: %s\n\n", strings.TrimSpace(s.Subject[SubjectItem]))

	rules, err := renderConstraints(s)
	if err != nil {
		return "", err
	}
	if rules != "" {
		b.WriteString(rules)
		b.WriteString("\n\n")
	}

	return b.String(), nil
}

// Expand executes text as a template over the subject values. Missing keys
// are an error so a typo in a scenario never renders silently.
func Expand(text string, subject map[string]string) (string, error) {
	if !strings.Contains(text, "{{") {
		return text, nil
	}

	tmpl, err := template.New("setup").Option("missingkey=error").Parse(text)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, subject); err != nil {
		return "", fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	return buf.String(), nil
}

func renderConstraints(s Setup) (string, error) {
	c := s.Constraints
	var parts []string

	if c.Instructions != "" {
		text, err := Expand(c.Instructions, s.Subject)
		if err != nil {
			return "", err
		}
		if text = strings.TrimSpace(text); text != "" {
			parts = append(parts, text)
		}
	}

	if len(c.ForbiddenPhrases) > 0 {
		quoted := make([]string, len(c.ForbiddenPhrases))
		for i, phrase := range c.ForbiddenPhrases {
			quoted[i] = "'" + phrase + "'"
		}
		parts = append(parts, fmt.Sprintf(
			"Avoid using phrases like %s unless the negotiation has concluded.",
			strings.Join(quoted, " or "),
		))
	}

	if c.MaxReplyWords > 0 {
		parts = append(parts, fmt.Sprintf("Keep each reply to at most %d words.", c.MaxReplyWords))
	}

	return strings.Join(parts, " "), nil
}
