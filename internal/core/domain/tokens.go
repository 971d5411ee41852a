package domain

import "unicode/utf8"

// CharsPerToken is the rune-to-token ratio used for every token estimate in the pipeline.
const CharsPerToken = 4

func EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	return (n + CharsPerToken - 1) / CharsPerToken
}
