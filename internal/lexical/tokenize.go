package lexical

import (
	"strings"
	"unicode"
)

// Tokenize splits content into case-folded identifier and word tokens. It
// is deliberately language-agnostic: camelCase and
// snake_case identifiers are split into their constituent words so a
// query for "cache key" matches a chunk that only contains `cacheKey` or
// `cache_key`, in addition to matching the compound identifier itself.
func Tokenize(content string) []string {
	var tokens []string
	for _, word := range splitNonAlnum(content) {
		tokens = append(tokens, word)
		tokens = append(tokens, splitCompound(word)...)
	}
	return dedupe(tokens)
}

// splitNonAlnum splits on any rune that is not a letter or digit.
func splitNonAlnum(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// splitCompound breaks a camelCase word into its lowercase parts at each
// lower-to-upper case change; underscores and hyphens never reach it, since
// splitNonAlnum has already split on them. Returns nil for words that are already a single part
// (the caller already has the whole-word token from splitNonAlnum).
func splitCompound(word string) []string {
	runes := []rune(word)
	var parts []string
	var cur strings.Builder

	flush := func() {
		if cur.Len() > 0 {
			parts = append(parts, strings.ToLower(cur.String()))
			cur.Reset()
		}
	}

	for i, r := range runes {
		if unicode.IsUpper(r) && i > 0 && !unicode.IsUpper(runes[i-1]) {
			flush()
		}
		cur.WriteRune(r)
	}
	flush()

	if len(parts) <= 1 {
		return nil
	}
	return parts
}

func dedupe(tokens []string) []string {
	seen := make(map[string]bool, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		t = strings.ToLower(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
