package turn

import "strings"

// Sanitize removes one leading "<speaker>:" cue echo from raw and trims the
// surrounding whitespace. The match is case-insensitive, tolerates
// whitespace before the colon, and is anchored at the start of the text;
// later occurrences of the label are dialogue content and are kept.
func Sanitize(raw, speaker string) string {
	text := strings.TrimSpace(raw)
	if speaker == "" || len(text) < len(speaker) || !strings.EqualFold(text[:len(speaker)], speaker) {
		return text
	}
	rest := strings.TrimLeft(text[len(speaker):], " \t\n\f\r")
	if !strings.HasPrefix(rest, ":") {
		return text
	}
	return strings.TrimSpace(rest[1:])
}
