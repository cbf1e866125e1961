package uptake

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// extraPunctuation lists the non-ASCII quote, dash and ellipsis variants that
// show up in transcripts on top of the ASCII punctuation set.
const extraPunctuation = "’‘–—~|“”…'`_"

const asciiPunctuation = "!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~"

var (
	punctuation    = buildPunctuation()
	punctuationSet = buildPunctuationSet(punctuation)
)

// typographic variants folded to ASCII before the text reaches the tokenizer.
var asciiFolder = strings.NewReplacer(
	"’", "'",
	"‘", "'",
	"“", "\"",
	"”", "\"",
	"–", "-",
	"—", "-",
	"…", "...",
)

func buildPunctuation() string {
	seen := make(map[rune]struct{})
	var runes []rune
	for _, r := range asciiPunctuation + extraPunctuation {
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		runes = append(runes, r)
	}
	sort.Slice(runes, func(i, j int) bool { return runes[i] < runes[j] })
	return string(runes)
}

func buildPunctuationSet(chars string) map[rune]struct{} {
	set := make(map[rune]struct{}, len(chars))
	for _, r := range chars {
		set[r] = struct{}{}
	}
	return set
}

// Punctuation returns the sorted punctuation characters stripped for word
// counting.
func Punctuation() string {
	return punctuation
}

// IsPunctuation reports whether r belongs to the stripped punctuation set.
func IsPunctuation(r rune) bool {
	_, ok := punctuationSet[r]
	return ok
}

// Normalize cleans text for model input. With removePunctuation set, every
// punctuation character is additionally replaced by a space.
func Normalize(text string, removePunctuation bool) string {
	cleaned := CleanText(text)
	if removePunctuation {
		return StripPunctuation(cleaned)
	}
	return cleaned
}

// CleanText performs Unicode normalization, folds typographic quotes and
// dashes to ASCII and collapses whitespace. Folding runs after NFKC because
// compatibility forms such as U+FE31 decompose into the dashes it folds.
func CleanText(text string) string {
	// Control characters go before NFKC so that dropping them cannot leave a
	// decomposed sequence behind.
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return ' '
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, text)
	cleaned = norm.NFKC.String(cleaned)
	return collapseSpaces(asciiFolder.Replace(cleaned))
}

// StripPunctuation replaces each punctuation character with a space so that
// adjacent words stay separated, then collapses whitespace.
func StripPunctuation(text string) string {
	replaced := strings.Map(func(r rune) rune {
		if IsPunctuation(r) {
			return ' '
		}
		return r
	}, text)
	return collapseSpaces(replaced)
}

func collapseSpaces(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
