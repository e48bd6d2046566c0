package search

import "strings"

const minTokenLength = 3

// Tokenize splits free text into lowercase keywords for keyword matching.
// Splitting is purely on whitespace; tokens shorter than three characters
// carry too little signal and are dropped.
func Tokenize(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	keywords := make([]string, 0, len(fields))
	for _, field := range fields {
		if len(field) >= minTokenLength {
			keywords = append(keywords, field)
		}
	}
	return keywords
}
