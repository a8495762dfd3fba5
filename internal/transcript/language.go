package transcript

import (
	"fmt"
	"strings"

	"github.com/abadojack/whatlanggo"
	"golang.org/x/text/language"
)

// DetectLanguage guesses the dominant language of text. Empty input and
// languages without an ISO-639-1 code return language.Und.
func DetectLanguage(text string) language.Tag {
	if strings.TrimSpace(text) == "" {
		return language.Und
	}

	code := whatlanggo.DetectLang(text).Iso6391()
	if code == "" {
		return language.Und
	}
	tag, err := language.Parse(code)
	if err != nil {
		return language.Und
	}
	return tag
}

// ParseHint normalizes a user language setting into the ISO-639-1 code the
// transcription API expects. "auto" and empty mean no hint.
func ParseHint(raw string) (string, error) {
	hint := strings.TrimSpace(raw)
	if hint == "" || strings.EqualFold(hint, "auto") {
		return "", nil
	}

	tag, err := language.Parse(hint)
	if err != nil {
		return "", fmt.Errorf("invalid language %q: %w", hint, err)
	}
	base, confidence := tag.Base()
	if confidence == language.No {
		return "", fmt.Errorf("invalid language %q", hint)
	}
	return base.String(), nil
}
