package prompt

import (
	"fmt"
	"strings"

	"github.com/evidentia-hq/evidentia/internal/evidence"
)

// ClaimsDiscovery asks the model to read the extracted paper text and
// produce the claims brief in free form.
func ClaimsDiscovery(b evidence.Bundle) string {
	var sb strings.Builder
	sb.WriteString("You are an expert research analyst. Read the scientific paper below and produce a structured claims brief.\n\n")
	sb.WriteString("Cover: every distinct empirical or theoretical claim (numbered C1, C2, ...), the evidence behind each claim and how strong it is, ")
	sb.WriteString("an executive summary, a methods snapshot, gaps or limitations tied to specific claims, a risk checklist, and open questions.\n\n")
	sb.WriteString(paperHeader(b.Paper))
	sb.WriteString("\nFull extracted text:\n")
	sb.WriteString(capText(b.ExtractedText, ExtractedTextCap))
	return sb.String()
}

func ClaimsCleanup(b evidence.Bundle, discovery string) string {
	return cleanupPrompt(Schema(evidence.StageClaims), discovery)
}

// SimilarPapersDiscovery searches for published work overlapping the
// paper's claims. Web search is enabled for this stage.
func SimilarPapersDiscovery(b evidence.Bundle) string {
	var sb strings.Builder
	sb.WriteString("Find published papers closely related to the source paper below. Use web search to locate real, verifiable publications.\n\n")
	sb.WriteString(paperHeader(b.Paper))
	if lines := claimLines(b.Claims); lines != "" {
		sb.WriteString("\nKey claims of the source paper:\n")
		sb.WriteString(lines)
	}
	sb.WriteString("\nFor each related paper report: DOI or URL (mandatory; skip papers you cannot identify), title, authors, year, venue, ")
	sb.WriteString("a cluster label, why it is relevant, exactly 3 overlap highlights, a method comparison (study design, sample size, population, ")
	sb.WriteString("intervention, comparison arms, primary outcome, analysis method, key limitations), and gaps or uncertainties.\n")
	sb.WriteString(fmt.Sprintf("Report at most %d papers. Do not include the source paper itself.\n", MaxSimilarPapers))
	return sb.String()
}

func SimilarPapersCleanup(b evidence.Bundle, discovery string) string {
	return cleanupPrompt(Schema(evidence.StageSimilarPapers), discovery)
}

// ResearchGroupsBatchDiscovery researches the groups behind one batch of
// papers. Batches stay small so the model completes the task instead of
// stalling and asking for confirmation.
func ResearchGroupsBatchDiscovery(b evidence.Bundle, batch []evidence.ContactPaper, batchNum, batchCount int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Identify the research groups behind the papers below (batch %d of %d). Use web search.\n\n", batchNum, batchCount)
	sb.WriteString(contactPaperLines(batch))
	sb.WriteString("\nFor each paper, list the lab or research group of each listed author: group name, institution, website, and brief notes. ")
	sb.WriteString("List the group's key researchers with their role on the paper. Research every paper in this batch; do not ask for confirmation.\n")
	return sb.String()
}

// ResearchGroupsCleanup coerces the combined batch notes into JSON. The
// expected paper count is stated so a shortfall can be detected.
func ResearchGroupsCleanup(b evidence.Bundle, combined string) string {
	schema := Schema(evidence.StageResearchGroups)
	header := fmt.Sprintf("The notes describe exactly %d papers. Produce one entry per paper; do not merge or drop papers.\n\n", b.ExpectedPaperCount)
	return cleanupPrompt(header+schema, combined)
}

// ContactsBatchDiscovery finds contact details for the selected authors of
// one batch of papers.
func ContactsBatchDiscovery(b evidence.Bundle, batch []evidence.ContactPaper, batchNum, batchCount int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Find current contact details for the authors below (batch %d of %d). Use web search.\n\n", batchNum, batchCount)
	sb.WriteString(contactPaperLines(batch))
	sb.WriteString("\nFor each author: institutional email address, current role and affiliation, ORCID if available, and profile links ")
	sb.WriteString("(institutional page, Google Scholar, lab site). Prefer institutional sources over aggregator sites. ")
	sb.WriteString("Research every author in this batch; do not ask for confirmation.\n")
	return sb.String()
}

func ContactsCleanup(b evidence.Bundle, combined string) string {
	schema := Schema(evidence.StageResearchGroupContacts)
	header := fmt.Sprintf("The notes describe exactly %d papers. Produce one entry per paper; do not merge or drop papers.\n\n", b.ExpectedPaperCount)
	return cleanupPrompt(header+schema, combined)
}

// ThesesDiscovery looks up PhD theses and latest publications for the
// researchers found by the contacts stage.
func ThesesDiscovery(b evidence.Bundle) string {
	var sb strings.Builder
	sb.WriteString("For each researcher below, find their PhD thesis and most recent publication. Use web search.\n\n")
	sb.WriteString("Researchers:\n")
	sb.WriteString(researcherLines(b.Contacts))
	sb.WriteString("\nFor each researcher report: latest publication (title, year, venue, URL), PhD thesis (title, year, institution, URL), ")
	sb.WriteString("and whether the thesis or its underlying data is publicly available (yes/no/unknown). ")
	sb.WriteString("If a thesis cannot be found, say so explicitly rather than guessing.\n")
	return sb.String()
}

func ThesesCleanup(b evidence.Bundle, discovery string) string {
	return cleanupPrompt(Schema(evidence.StageResearcherTheses), discovery)
}

// PatentsDiscovery searches for granted patents and applications that
// overlap the paper's claims.
func PatentsDiscovery(b evidence.Bundle) string {
	var sb strings.Builder
	sb.WriteString("Search for patents whose claims overlap the scientific claims below. Use web search, including Google Patents.\n\n")
	sb.WriteString(paperHeader(b.Paper))
	if lines := claimLines(b.Claims); lines != "" {
		sb.WriteString("\nClaims to check for patent overlap:\n")
		sb.WriteString(lines)
	}
	sb.WriteString("\nFor each patent report: patent number, title, assignee, filing date, grant date, abstract, URL, ")
	sb.WriteString("and which claim ids it overlaps with plus a one-sentence overlap summary. ")
	sb.WriteString("Only report real patents you can identify by number.\n")
	return sb.String()
}

func PatentsCleanup(b evidence.Bundle, discovery string) string {
	return cleanupPrompt(Schema(evidence.StagePatents), discovery)
}

// VerifiedClaimsDiscovery synthesizes every prior stage into a per-claim
// verification verdict.
func VerifiedClaimsDiscovery(b evidence.Bundle) string {
	var sb strings.Builder
	sb.WriteString("Assess each claim of the source paper against the evidence gathered below. For every claim decide: ")
	sb.WriteString("Verified, Partially Verified, Contradicted, or Insufficient Evidence, with supporting and contradicting sources and a confidence level.\n\n")
	sb.WriteString(paperHeader(b.Paper))
	if lines := claimLines(b.Claims); lines != "" {
		sb.WriteString("\nClaims under assessment:\n")
		sb.WriteString(lines)
	}
	if len(b.SimilarPapers) > 0 {
		sb.WriteString("\nRelated papers found:\n")
		sb.WriteString(similarPaperLines(b.SimilarPapers))
	}
	if b.PatentsText != "" || len(b.Patents) > 0 {
		sb.WriteString("\nPatent overlap findings:\n")
		sb.WriteString(capText(patentSummary(b), AbstractCap))
	}
	if b.ThesesText != "" {
		sb.WriteString("\nThesis and data-availability findings:\n")
		sb.WriteString(capText(b.ThesesText, AbstractCap))
	}
	if b.GroupsText != "" {
		sb.WriteString("\nResearch-group findings:\n")
		sb.WriteString(capText(b.GroupsText, AbstractCap))
	}
	return sb.String()
}

func VerifiedClaimsCleanup(b evidence.Bundle, discovery string) string {
	return cleanupPrompt(Schema(evidence.StageVerifiedClaims), discovery)
}

func patentSummary(b evidence.Bundle) string {
	if len(b.Patents) == 0 {
		return b.PatentsText
	}
	var sb strings.Builder
	for _, p := range b.Patents {
		fmt.Fprintf(&sb, "%s — %s (%s): %s\n", p.PatentNumber, p.Title, p.Assignee, p.OverlapWithPaper.Summary)
	}
	return sb.String()
}
