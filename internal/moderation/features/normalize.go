package features

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var invisibleRunes = map[rune]struct{}{
	'\u200b': {},
	'\u200c': {},
	'\u200d': {},
	'\u2060': {},
	'\ufeff': {},
}

func isInvisible(r rune) bool {
	_, ok := invisibleRunes[r]
	return ok
}

func isBidiOverride(r rune) bool {
	return (r >= '\u202a' && r <= '\u202e') || (r >= '\u2066' && r <= '\u2069')
}

// Clean applies NFKC and drops zero-width and bidi control characters,
// keeping the original letter case.
func Clean(s string) string {
	t := transform.Chain(
		norm.NFKC,
		runes.Remove(runes.Predicate(func(r rune) bool { return isInvisible(r) || isBidiOverride(r) })),
	)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// Compose applies NFC, so only marks that have no precomposed form stay separate.
func Compose(s string) string {
	return norm.NFC.String(s)
}

// Fold is Clean plus case folding and whitespace collapsing.
func Fold(s string) string {
	out, _, err := transform.String(cases.Fold(), Clean(s))
	if err != nil {
		out = strings.ToLower(Clean(s))
	}
	return strings.Join(strings.Fields(out), " ")
}

// foldForMatching additionally strips diacritics so "frée" matches "free".
func foldForMatching(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, Fold(s))
	if err != nil {
		return Fold(s)
	}
	return out
}
