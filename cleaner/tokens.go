package cleaner

import "unicode/utf8"

// EstimateTokens approximates the prompt size of text as runes / 3.
//
// English averages about 4 characters per token and CJK about 1.5, so the
// estimate runs slightly high for product listings, which is what the
// prompt budget check wants.
func EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	est := n / 3
	if est < 1 {
		return 1
	}
	return est
}

// TruncateTokens cuts text so its estimate stays within maxTokens. A
// non-positive maxTokens disables the cut.
func TruncateTokens(text string, maxTokens int) (string, bool) {
	if maxTokens <= 0 || EstimateTokens(text) <= maxTokens {
		return text, false
	}
	limit := maxTokens * 3
	n := 0
	for i := range text {
		if n == limit {
			return text[:i], true
		}
		n++
	}
	return text, false
}
