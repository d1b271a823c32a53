package moderation

import (
	"strings"

	"github.com/abadojack/whatlanggo"
)

// UnknownLanguage labels text whose language cannot be told.
const UnknownLanguage = "und"

// DetectLanguage returns the ISO 639-1 code of the language text is written in.
func DetectLanguage(text string) string {
	if strings.TrimSpace(text) == "" {
		return UnknownLanguage
	}
	info := whatlanggo.Detect(text)
	if code := info.Lang.Iso6391(); code != "" {
		return code
	}
	return UnknownLanguage
}
