// Package prompt renders discovery and cleanup instructions for each
// pipeline stage. Builders are pure functions of their evidence bundle:
// same inputs, same string, no side effects.
package prompt

import (
	"fmt"
	"strings"

	"github.com/evidentia-hq/evidentia/internal/evidence"
)

// Stage-specific caps keep prompts inside the model's effective task
// budget. Excess list items are silently dropped, never an error.
const (
	AbstractCap      = 1200
	ExtractedTextCap = 60000
	MaxClaimLines    = 12
	MaxSimilarPapers = 10
	MaxGroupPapers   = 12
	MaxResearchers   = 24
)

// BatchSeparator joins per-batch discovery outputs before the single
// cleanup call.
const BatchSeparator = "\n\n===== BATCH BOUNDARY =====\n\n"

func sanitize(s string) string {
	return evidence.SanitizeText(strings.TrimSpace(s))
}

func capText(s string, limit int) string {
	return evidence.Truncate(sanitize(s), limit)
}

// paperHeader renders the source-paper block shared by every discovery
// prompt.
func paperHeader(p evidence.PaperMetadata) string {
	var sb strings.Builder
	sb.WriteString("Source paper:\n")
	if p.Title != "" {
		fmt.Fprintf(&sb, "  Title: %s\n", sanitize(p.Title))
	}
	if p.DOI != "" {
		fmt.Fprintf(&sb, "  DOI: %s\n", sanitize(p.DOI))
	}
	if authors := p.AuthorList(); len(authors) > 0 {
		fmt.Fprintf(&sb, "  Authors: %s\n", sanitize(strings.Join(authors, ", ")))
	}
	if p.Abstract != "" {
		fmt.Fprintf(&sb, "  Abstract: %s\n", capText(p.Abstract, AbstractCap))
	}
	return sb.String()
}

// claimLines renders "C1: <claim>" lines, falling back to the evidence
// summary when the claim text is empty. At most MaxClaimLines entries.
func claimLines(brief *evidence.ClaimsBrief) string {
	if brief == nil || len(brief.Claims) == 0 {
		return ""
	}
	var sb strings.Builder
	for i, c := range brief.Claims {
		if i >= MaxClaimLines {
			break
		}
		text := c.ClaimText
		if strings.TrimSpace(text) == "" {
			text = c.EvidenceSummary
		}
		fmt.Fprintf(&sb, "%s: %s\n", c.ID, sanitize(text))
	}
	return sb.String()
}

func similarPaperLines(papers []evidence.SimilarPaperEntry) string {
	var sb strings.Builder
	for i, p := range papers {
		if i >= MaxSimilarPapers {
			break
		}
		fmt.Fprintf(&sb, "%d. %s (%s)", i+1, sanitize(p.Title), sanitize(p.Identifier))
		if p.Authors != "" {
			fmt.Fprintf(&sb, " — authors: %s", sanitize(p.Authors))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func contactPaperLines(papers []evidence.ContactPaper) string {
	var sb strings.Builder
	for i, p := range papers {
		fmt.Fprintf(&sb, "Paper %d: %s", i+1, sanitize(p.Title))
		if p.Identifier != "" {
			fmt.Fprintf(&sb, " (%s)", sanitize(p.Identifier))
		}
		sb.WriteString("\n")
		if len(p.Authors) > 0 {
			fmt.Fprintf(&sb, "  Authors to research: %s\n", sanitize(strings.Join(p.Authors, ", ")))
		}
	}
	return sb.String()
}

func researcherLines(groups []evidence.ResearchGroupPaperEntry) string {
	var sb strings.Builder
	n := 0
	for _, entry := range groups {
		for _, g := range entry.Groups {
			for _, r := range g.Researchers {
				if n >= MaxResearchers {
					return sb.String()
				}
				n++
				fmt.Fprintf(&sb, "%d. %s", n, sanitize(r.Name))
				if g.Name != "" {
					fmt.Fprintf(&sb, " (%s", sanitize(g.Name))
					if g.Institution != "" {
						fmt.Fprintf(&sb, ", %s", sanitize(g.Institution))
					}
					sb.WriteString(")")
				}
				if r.Email != "" {
					fmt.Fprintf(&sb, " <%s>", sanitize(r.Email))
				}
				sb.WriteString("\n")
			}
		}
	}
	return sb.String()
}

// cleanupPreamble is shared by every cleanup prompt: strict JSON, no
// prose, no fences.
const cleanupPreamble = `Convert the research notes below into JSON.
Return ONLY the JSON object. No prose, no markdown code fences, no commentary.
Use plain ASCII quotes and dashes. If a field is unknown, use an empty string.`

func cleanupPrompt(schema, notes string) string {
	return fmt.Sprintf("%s\n\n%s\n\nResearch notes:\n%s", cleanupPreamble, schema, sanitize(notes))
}
