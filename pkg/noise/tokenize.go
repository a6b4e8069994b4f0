// Package noise implements the text-perturbation pipeline served to
// suspicious callers: a registry of independent strategies, a composition
// policy, and a difference guarantee with deterministic fallback. The served
// text must stay plausible to a human reader while being observably different
// from the clean generation whenever the text admits any perturbation at all.
package noise

import (
	"strings"
	"unicode"
)

// Sentences splits text into sentences on ., ! and ? terminators followed by
// whitespace. Terminators stay attached to their sentence. Abbreviation
// handling is deliberately naive: over-splitting only gives the strategies
// more material to work with.
func Sentences(text string) []string {
	var sentences []string
	var current strings.Builder

	runes := []rune(text)
	for i, r := range runes {
		current.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			atEnd := i == len(runes)-1
			followedBySpace := !atEnd && unicode.IsSpace(runes[i+1])
			if atEnd || followedBySpace {
				if s := strings.TrimSpace(current.String()); s != "" {
					sentences = append(sentences, s)
				}
				current.Reset()
			}
		}
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

// Words splits text on whitespace, keeping punctuation attached to tokens.
// Join with a single space to reassemble.
func Words(text string) []string {
	return strings.Fields(text)
}

// coreWord strips leading and trailing punctuation from a token, returning
// the bare word plus its prefix and suffix so replacements can be spliced
// back without losing punctuation.
func coreWord(token string) (prefix, word, suffix string) {
	start := 0
	end := len(token)
	for start < end && !isLetter(token[start]) {
		start++
	}
	for end > start && !isLetter(token[end-1]) {
		end--
	}
	return token[:start], token[start:end], token[end:]
}

func isLetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

// isAlphabetic reports whether the word consists solely of ASCII letters.
func isAlphabetic(word string) bool {
	if word == "" {
		return false
	}
	for i := 0; i < len(word); i++ {
		if !isLetter(word[i]) {
			return false
		}
	}
	return true
}
