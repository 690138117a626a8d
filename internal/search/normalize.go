package search

import (
	"net/url"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// foldTransformer strips combining marks so accented and plain spellings
// of the same title normalize to one key.
var foldTransformer = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// normalizeQuery lowercases, strips diacritics, and collapses runs of
// non-alphanumeric characters to single spaces.
func normalizeQuery(raw string) string {
	folded, _, err := transform.String(foldTransformer, strings.ToLower(strings.TrimSpace(raw)))
	if err != nil {
		folded = strings.ToLower(strings.TrimSpace(raw))
	}

	var b strings.Builder
	b.Grow(len(folded))
	lastSpace := false
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			b.WriteRune(r)
			lastSpace = false
			continue
		}
		if !lastSpace && b.Len() > 0 {
			b.WriteRune(' ')
			lastSpace = true
		}
	}
	return strings.TrimSpace(b.String())
}

func normalizeInfoHash(raw string) string {
	value := strings.TrimSpace(strings.ToLower(raw))
	return strings.TrimPrefix(value, "urn:btih:")
}

func infoHashFromMagnet(rawMagnet string) string {
	value := strings.TrimSpace(rawMagnet)
	if value == "" {
		return ""
	}
	parsed, err := url.Parse(value)
	if err != nil {
		return ""
	}
	for _, xt := range parsed.Query()["xt"] {
		if hash := normalizeInfoHash(xt); hash != "" {
			return hash
		}
	}
	return ""
}
