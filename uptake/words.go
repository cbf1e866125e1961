package uptake

import (
	"regexp"
	"strings"
)

// annotationSpan matches a transcription annotation such as "[inaudible]".
var annotationSpan = regexp.MustCompile(`\[.+?\]`)

// CountWords counts the words of an utterance after dropping its first
// bracketed annotation and all punctuation. Only the first annotation is
// removed; later ones contribute their inner words to the count.
func CountWords(text string) int {
	if loc := annotationSpan.FindStringIndex(text); loc != nil {
		text = text[:loc[0]] + " " + text[loc[1]:]
	}
	return len(strings.Fields(StripPunctuation(text)))
}
