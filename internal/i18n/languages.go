package i18n

import "strings"

var languageNames = map[string]string{
	"en": "English",
	"ru": "Russian",
	"uk": "Ukrainian",
}

func GetLanguageName(code string) string {
	normalized := strings.ToLower(code)
	if name, ok := languageNames[normalized]; ok {
		return name
	}
	return code
}

// Pick returns code when it is supported and fallback otherwise.
func Pick(code, fallback string) string {
	normalized := strings.ToLower(strings.TrimSpace(code))
	if i := strings.IndexByte(normalized, '-'); i > 0 {
		normalized = normalized[:i]
	}
	if _, ok := languageNames[normalized]; ok {
		return normalized
	}
	return fallback
}
