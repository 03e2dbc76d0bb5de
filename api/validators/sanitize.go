package validators

import "strings"

// SanitizeString trims surrounding whitespace and truncates to maxLen runes.
// Free-text payout fields (notes, rejection reasons) pass through here before
// validation so length limits count characters, not bytes.
func SanitizeString(input string, maxLen int) string {
	trimmed := strings.TrimSpace(input)
	if maxLen <= 0 {
		return trimmed
	}
	runes := []rune(trimmed)
	if len(runes) > maxLen {
		return string(runes[:maxLen])
	}
	return trimmed
}
