package layout

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Strip removes markdown emphasis artifacts from display text.
// Every '*' is dropped. Runs of '_' are dropped unless they join two word characters,
// so snake_case survives while _emphasis_ and __strong__ do not. Whitespace is collapsed.
// Strip(Strip(s)) == Strip(s).
func Strip(s string) string {
	s = strings.ReplaceAll(s, "*", "")

	runes := []rune(s)
	out := make([]rune, 0, len(runes))
	for i := 0; i < len(runes); {
		if runes[i] != '_' {
			out = append(out, runes[i])
			i++
			continue
		}
		j := i
		for j < len(runes) && runes[j] == '_' {
			j++
		}
		if i > 0 && j < len(runes) && isWordRune(runes[i-1]) && isWordRune(runes[j]) {
			out = append(out, runes[i:j]...)
		}
		i = j
	}
	// Normalize last: removing '*' can leave a combining mark next to its base letter.
	return norm.NFC.String(strings.Join(strings.Fields(string(out)), " "))
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
