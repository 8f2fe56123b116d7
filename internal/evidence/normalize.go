package evidence

import "strings"

// Unicode punctuation that survives a round trip through the model but has
// broken JSON parsing downstream. Folded to plain ASCII before any external
// text is embedded in a prompt or parsed from a cleanup response.
var punctFolder = strings.NewReplacer(
	"\u2018", "'",
	"\u2019", "'",
	"\u201a", "'",
	"\u201c", `"`,
	"\u201d", `"`,
	"\u201e", `"`,
	"\u2013", "-",
	"\u2014", "-",
	"\u2026", "...",
	"\u00a0", " ",
	"\u200b", "",
	"\u200c", "",
	"\u200d", "",
	"\ufeff", "",
)

// SanitizeText folds exotic Unicode punctuation to ASCII equivalents.
func SanitizeText(s string) string {
	return punctFolder.Replace(s)
}

// NormalizeDOI lowercases a DOI and strips resolver prefixes so that
// "https://doi.org/10.1000/X" and "10.1000/x" compare equal.
func NormalizeDOI(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, prefix := range []string{"https://doi.org/", "http://doi.org/", "https://dx.doi.org/", "http://dx.doi.org/", "doi:"} {
		s = strings.TrimPrefix(s, prefix)
	}
	return strings.TrimSpace(s)
}

// NormalizeTitle lowercases, strips punctuation, and collapses whitespace
// for fuzzy title comparison.
func NormalizeTitle(s string) string {
	s = strings.ToLower(SanitizeText(s))
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ', r == '\t', r == '\n':
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

var placeholderIdentifiers = map[string]struct{}{
	"":               {},
	"no identifier":  {},
	"not provided":   {},
	"not available":  {},
	"none":           {},
	"n/a":            {},
	"na":             {},
	"unknown":        {},
	"no doi":         {},
	"doi not found":  {},
	"not applicable": {},
}

// IsPlaceholderIdentifier reports whether an identifier is empty or one of
// the placeholder strings the model emits instead of admitting it found
// nothing. Entries with such identifiers are dropped.
func IsPlaceholderIdentifier(s string) bool {
	_, ok := placeholderIdentifiers[strings.ToLower(strings.TrimSpace(s))]
	return ok
}

// TruncationMarker is appended whenever free text is cut to fit a prompt.
const TruncationMarker = "... [truncated]"

// Truncate caps s at limit runes, appending the truncation marker when it
// cuts anything.
func Truncate(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return strings.TrimSpace(string(runes[:limit])) + TruncationMarker
}

// SameSourcePaper reports whether a similar-paper entry resolves to the
// source paper itself, comparing by normalized DOI first and falling back
// to normalized title.
func SameSourcePaper(entry SimilarPaperEntry, source PaperMetadata) bool {
	if d := NormalizeDOI(source.DOI); d != "" && NormalizeDOI(entry.Identifier) == d {
		return true
	}
	if t := NormalizeTitle(source.Title); t != "" && NormalizeTitle(entry.Title) == t {
		return true
	}
	return false
}
