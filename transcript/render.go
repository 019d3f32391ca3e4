package transcript

import (
	"strings"

	"github.com/tailored-agentic-units/parley/core/protocol"
)

// Render produces the prompt text for a transcript: the setup entry
// verbatim, followed by one "Speaker: text" line per utterance.
func Render(t []protocol.Utterance) string {
	var b strings.Builder
	for _, u := range t {
		if u.IsSetup() {
			b.WriteString(u.Text)
			continue
		}
		b.WriteString(u.Speaker)
		b.WriteString(": ")
		b.WriteString(u.Text)
		b.WriteString("\n")
	}
	return b.String()
}

// Cue returns the text that steers the engine to continue as speaker.
func Cue(t []protocol.Utterance, speaker string) string {
	return Render(t) + speaker + ":"
}
