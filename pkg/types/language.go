package types

import (
	"fmt"
	"strings"
)

// DefaultLanguage is used when no preference has been stored
const DefaultLanguage = "en"

// SupportedLanguages lists the UI languages the assistant can answer in
var SupportedLanguages = []string{"en", "hi", "mr"}

// NormalizeLanguage lowercases lang and checks it is supported
func NormalizeLanguage(lang string) (string, error) {
	l := strings.ToLower(strings.TrimSpace(lang))
	for _, s := range SupportedLanguages {
		if l == s {
			return l, nil
		}
	}
	return "", fmt.Errorf("unsupported language %q (supported: %s)", lang, strings.Join(SupportedLanguages, ", "))
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
