package text

import "unicode"

// HasCyrillics checks if the given string contains any Cyrillic characters
func HasCyrillics(content string) bool {
	for _, r := range content {
		if unicode.Is(unicode.Cyrillic, r) {
			return true
		}
	}
	return false
}

// HasLatin checks if the given string contains any Latin letters
func HasLatin(content string) bool {
	for _, r := range content {
		if unicode.Is(unicode.Latin, r) {
			return true
		}
	}
	return false
}

// MixesLatinAndCyrillic reports a single word spelled with letters from both scripts,
// the usual homoglyph trick (Latin "fr" followed by Cyrillic "ее").
func MixesLatinAndCyrillic(word string) bool {
	return HasLatin(word) && HasCyrillics(word)
}

// NonLatinRatio is the share of letters outside the Latin script.
// Text without letters yields 0.
func NonLatinRatio(content string) float64 {
	var letters, nonLatin int
	for _, r := range content {
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		if !unicode.Is(unicode.Latin, r) {
			nonLatin++
		}
	}
	if letters == 0 {
		return 0
	}
	return float64(nonLatin) / float64(letters)
}
