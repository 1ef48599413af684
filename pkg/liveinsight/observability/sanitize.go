package observability

import (
	"strings"
	"unicode/utf8"
)

// MaxLogInputLen is the most characters (runes) Sanitize lets through.
const MaxLogInputLen = 100

const ellipsis = "..."

var controlReplacer = strings.NewReplacer("\r", " ", "\n", " ", "\t", " ")

// Sanitize prepares an untrusted string for a log line. Carriage returns,
// newlines and tabs become spaces so one message cannot forge extra log
// records, and anything over MaxLogInputLen characters is cut to fit with a
// trailing "...". Length is counted in runes, never splitting one.
func Sanitize(input string) string {
	s := controlReplacer.Replace(input)
	if utf8.RuneCountInString(s) <= MaxLogInputLen {
		return s
	}
	keep, n := MaxLogInputLen-len(ellipsis), 0
	for i := range s {
		if n == keep {
			return s[:i] + ellipsis
		}
		n++
	}
	return s
}

// SanitizeError is Sanitize applied to err.Error(); nil yields "Unknown error".
func SanitizeError(err error) string {
	if err == nil {
		return "Unknown error"
	}
	return Sanitize(err.Error())
}
