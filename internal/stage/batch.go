package stage

import "github.com/evidentia-hq/evidentia/internal/evidence"

// DefaultBatchSize is how many papers one discovery call is asked to
// research. Larger batches make the model stall and ask for confirmation
// instead of completing the lookup.
const DefaultBatchSize = 2

// SplitPapers partitions the contact worklist into fixed-size batches,
// preserving order (source paper first, then deduplicated similar papers).
func SplitPapers(papers []evidence.ContactPaper, size int) [][]evidence.ContactPaper {
	if size <= 0 {
		size = DefaultBatchSize
	}
	var batches [][]evidence.ContactPaper
	for start := 0; start < len(papers); start += size {
		end := start + size
		if end > len(papers) {
			end = len(papers)
		}
		batches = append(batches, papers[start:end])
	}
	return batches
}

// BuildContactPapers assembles the contact worklist: the source paper
// followed by each unique similar paper, each with up to three authors
// selected for outreach. Entries resolving to the source paper or sharing
// an identifier are not double-counted.
func BuildContactPapers(paper evidence.PaperMetadata, similar []evidence.SimilarPaperEntry) []evidence.ContactPaper {
	out := []evidence.ContactPaper{{
		Title:      paper.Title,
		Identifier: paper.DOI,
		Authors:    evidence.SelectContactAuthors(paper.AuthorList(), 3),
	}}
	seen := map[string]struct{}{}
	if d := evidence.NormalizeDOI(paper.DOI); d != "" {
		seen[d] = struct{}{}
	}
	seenTitles := map[string]struct{}{}
	if t := evidence.NormalizeTitle(paper.Title); t != "" {
		seenTitles[t] = struct{}{}
	}
	for _, sp := range similar {
		id := evidence.NormalizeDOI(sp.Identifier)
		title := evidence.NormalizeTitle(sp.Title)
		if _, dup := seen[id]; dup && id != "" {
			continue
		}
		if _, dup := seenTitles[title]; dup && title != "" {
			continue
		}
		if id != "" {
			seen[id] = struct{}{}
		}
		if title != "" {
			seenTitles[title] = struct{}{}
		}
		out = append(out, evidence.ContactPaper{
			Title:      sp.Title,
			Identifier: sp.Identifier,
			Authors:    evidence.SelectContactAuthors(splitAuthorField(sp.Authors), 3),
		})
	}
	return out
}

func splitAuthorField(raw string) []string {
	return evidence.PaperMetadata{AuthorsRaw: raw}.AuthorList()
}
