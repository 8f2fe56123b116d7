package evidence

import "strings"

// Markers that sometimes tag a corresponding author in free-text author
// lists. Best effort only; there is no reliable marker in the input.
var correspondingMarkers = []string{"*", "†", "(corresponding)", "(corresponding author)"}

// AuthorList returns the parsed author names, splitting the raw string on
// common separators when no parsed list was supplied.
func (m PaperMetadata) AuthorList() []string {
	if len(m.Authors) > 0 {
		out := make([]string, 0, len(m.Authors))
		for _, a := range m.Authors {
			if a = strings.TrimSpace(a); a != "" {
				out = append(out, a)
			}
		}
		return out
	}
	raw := m.AuthorsRaw
	if strings.Contains(raw, ";") {
		return splitAuthors(raw, ";")
	}
	if strings.Contains(raw, " and ") {
		return splitAuthors(strings.ReplaceAll(raw, " and ", ","), ",")
	}
	return splitAuthors(raw, ",")
}

func splitAuthors(raw, sep string) []string {
	var out []string
	for _, part := range strings.Split(raw, sep) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// SelectContactAuthors picks up to max authors for contact discovery:
// first author, last author, and a marked corresponding author when one can
// be identified, deduplicated when roles coincide. Falls back to the first
// max authors when roles cannot be determined.
func SelectContactAuthors(authors []string, max int) []string {
	cleaned := make([]string, 0, len(authors))
	for _, a := range authors {
		if a = strings.TrimSpace(a); a != "" {
			cleaned = append(cleaned, a)
		}
	}
	if len(cleaned) == 0 {
		return nil
	}
	if max <= 0 {
		max = 3
	}
	if len(cleaned) <= max {
		return dedupeNames(cleaned, max)
	}

	picks := []string{cleaned[0], cleaned[len(cleaned)-1]}
	if c := findCorresponding(cleaned); c != "" {
		picks = append(picks, c)
	}
	picks = dedupeNames(picks, max)
	// Top up from the front when dedup collapsed roles onto one person.
	for _, a := range cleaned {
		if len(picks) >= max {
			break
		}
		picks = appendUnique(picks, a)
	}
	return picks
}

func findCorresponding(authors []string) string {
	for _, a := range authors {
		lower := strings.ToLower(a)
		for _, marker := range correspondingMarkers {
			if strings.Contains(lower, marker) || strings.HasSuffix(a, marker) {
				return stripMarkers(a)
			}
		}
	}
	return ""
}

func stripMarkers(name string) string {
	for _, marker := range correspondingMarkers {
		if idx := strings.Index(strings.ToLower(name), marker); idx >= 0 {
			name = name[:idx] + name[idx+len(marker):]
		}
	}
	return strings.TrimSpace(name)
}

func dedupeNames(names []string, max int) []string {
	var out []string
	for _, n := range names {
		if len(out) >= max {
			break
		}
		out = appendUnique(out, stripMarkers(n))
	}
	return out
}

func appendUnique(names []string, candidate string) []string {
	candidate = stripMarkers(candidate)
	key := strings.ToLower(candidate)
	for _, n := range names {
		if strings.ToLower(n) == key {
			return names
		}
	}
	return append(names, candidate)
}
