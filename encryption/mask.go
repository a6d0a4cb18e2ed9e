package encryption

import (
	"sort"
	"strings"
)

// DefaultMaskVisibleChars trailing characters left visible by Mask when unsure
const DefaultMaskVisibleChars = 4

/*
Mask redact a value for display, leaving a short prefix and the trailing visibleChars
characters, e.g. "sk-****1234". Values too short to keep anything hidden are fully starred.

This is cosmetic only.

	@param value string - the value
	@param visibleChars int - trailing characters to leave visible
	@returns the redacted value
*/
func Mask(value string, visibleChars int) string {
	runes := []rune(value)
	if visibleChars < 0 {
		visibleChars = 0
	}
	if len(runes) <= visibleChars*2 {
		return strings.Repeat("*", len(runes))
	}
	prefix := min(3, len(runes)/4)
	return string(runes[:prefix]) + "****" + string(runes[len(runes)-visibleChars:])
}

/*
MaskInText replace every occurrence of each secret in a text with "***"

	@param text string - the text, e.g. a log line
	@param secrets ...string - the secret values
	@returns the masked text
*/
func MaskInText(text string, secrets ...string) string {
	ordered := make([]string, 0, len(secrets))
	for _, secret := range secrets {
		if secret != "" {
			ordered = append(ordered, secret)
		}
	}
	// A secret containing another must be replaced first
	sort.Slice(ordered, func(i, j int) bool { return len(ordered[i]) > len(ordered[j]) })
	for _, secret := range ordered {
		text = strings.ReplaceAll(text, secret, "***")
	}
	return text
}
