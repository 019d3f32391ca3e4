package agent

import (
	"strings"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

// Decode interprets raw engine output as text. Ill-formed UTF-8 sequences
// are replaced with U+FFFD; decoding never fails.
func Decode(raw []byte) string {
	out, _, err := transform.Bytes(runes.ReplaceIllFormed(), raw)
	if err != nil {
		return strings.ToValidUTF8(string(raw), "\uFFFD")
	}
	return string(out)
}
