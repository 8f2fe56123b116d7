package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/evidentia-hq/evidentia/internal/evidence"
	"github.com/evidentia-hq/evidentia/internal/pipeline"
)

var stageTitles = map[evidence.StageName]string{
	evidence.StageClaims:                "Claims Brief",
	evidence.StageSimilarPapers:         "Similar Papers",
	evidence.StageResearchGroups:        "Research Groups",
	evidence.StageResearchGroupContacts: "Research Group Contacts",
	evidence.StageResearcherTheses:      "Researcher Theses",
	evidence.StagePatents:               "Patent Landscape",
	evidence.StageVerifiedClaims:        "Verified Claims",
}

// handleReport renders every completed stage for a paper as one HTML
// document. Stages render from their structured payload when available
// and fall back to the raw discovery text.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodGet) {
		return
	}
	paperID := strings.TrimSpace(r.URL.Query().Get("paper_id"))
	if paperID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"ok": false,
			"error": map[string]any{
				"code":    "validation",
				"message": "paper_id is required",
			},
		})
		return
	}

	snapshot := s.pipe.Snapshot(paperID)
	markdown := buildReportMarkdown(paperID, snapshot)

	var content strings.Builder
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	if err := md.Convert([]byte(markdown), &content); err != nil {
		writeStageError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "<!doctype html><html><head><meta charset='utf-8'><title>Evidence Report</title>"+
		"<style>body{font-family:Georgia,serif;max-width:900px;margin:0 auto;padding:1rem;}"+
		"table{width:100%%;border-collapse:collapse;font-size:0.85rem;}"+
		"th,td{border:1px solid #a8a29e;padding:0.35rem 0.45rem;text-align:left;vertical-align:top;}"+
		"pre{white-space:pre-wrap;background:#f9f7f3;padding:0.6rem;}</style>"+
		"</head><body>%s</body></html>", content.String())
}

func buildReportMarkdown(paperID string, snapshot map[evidence.StageName]pipeline.StageResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Evidence Report\n\n**Paper:** %s\n", paperID)
	for _, name := range evidence.AllStages {
		res, ok := snapshot[name]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "\n## %s\n\n", stageTitles[name])
		switch res.Status {
		case pipeline.StatusLoading:
			b.WriteString("_In progress._\n")
			continue
		case pipeline.StatusError:
			fmt.Fprintf(&b, "_Failed: %s_\n", res.Error)
			continue
		}
		if section := renderStructured(name, res); section != "" {
			b.WriteString(section)
			continue
		}
		fmt.Fprintf(&b, "```\n%s\n```\n", strings.TrimSpace(res.Text))
	}
	return b.String()
}

// renderStructured produces the markdown section for one stage, or ""
// when the payload is missing or undecodable so the caller falls back to
// raw text.
func renderStructured(name evidence.StageName, res pipeline.StageResult) string {
	if len(res.Structured) == 0 {
		return ""
	}
	var b strings.Builder
	switch name {
	case evidence.StageClaims:
		brief, err := evidence.Decode[evidence.ClaimsBrief](res.Structured)
		if err != nil || brief == nil {
			return ""
		}
		for _, line := range brief.ExecutiveSummary {
			fmt.Fprintf(&b, "- %s\n", line)
		}
		if len(brief.ExecutiveSummary) > 0 {
			b.WriteString("\n")
		}
		for _, c := range brief.Claims {
			fmt.Fprintf(&b, "**%s:** %s", c.ID, c.ClaimText)
			if c.Strength != "" {
				fmt.Fprintf(&b, " _(%s)_", c.Strength)
			}
			b.WriteString("\n\n")
		}
	case evidence.StageSimilarPapers:
		payload, err := evidence.Decode[evidence.SimilarPapersPayload](res.Structured)
		if err != nil || payload == nil {
			return ""
		}
		b.WriteString("| Identifier | Title | Year | Why Relevant |\n|---|---|---|---|\n")
		for _, p := range payload.Papers {
			fmt.Fprintf(&b, "| %s | %s | %s | %s |\n", cell(p.Identifier), cell(p.Title), cell(p.Year), cell(p.WhyRelevant))
		}
	case evidence.StageResearchGroups, evidence.StageResearchGroupContacts:
		payload, err := evidence.Decode[evidence.ResearchGroupsPayload](res.Structured)
		if err != nil || payload == nil {
			return ""
		}
		for _, paper := range payload.Papers {
			fmt.Fprintf(&b, "### %s\n\n", paper.Title)
			for _, g := range paper.Groups {
				fmt.Fprintf(&b, "- **%s** (%s)", g.Name, g.Institution)
				var names []string
				for _, r := range g.Researchers {
					n := r.Name
					if r.Email != "" {
						n += " <" + r.Email + ">"
					}
					names = append(names, n)
				}
				if len(names) > 0 {
					b.WriteString(": " + strings.Join(names, ", "))
				}
				b.WriteString("\n")
			}
			b.WriteString("\n")
		}
	case evidence.StageResearcherTheses:
		payload, err := evidence.Decode[evidence.ThesesPayload](res.Structured)
		if err != nil || payload == nil {
			return ""
		}
		b.WriteString("| Researcher | PhD Thesis | Latest Publication | Data Available |\n|---|---|---|---|\n")
		for _, t := range payload.Theses {
			thesis, pub := "", ""
			if t.PhDThesis != nil {
				thesis = t.PhDThesis.Title
			}
			if t.LatestPublication != nil {
				pub = t.LatestPublication.Title
			}
			fmt.Fprintf(&b, "| %s | %s | %s | %s |\n", cell(t.Researcher), cell(thesis), cell(pub), string(t.DataPubliclyAvailable))
		}
	case evidence.StagePatents:
		payload, err := evidence.Decode[evidence.PatentsPayload](res.Structured)
		if err != nil || payload == nil {
			return ""
		}
		b.WriteString("| Patent | Title | Assignee | Link |\n|---|---|---|---|\n")
		for _, p := range payload.Patents {
			link := ""
			if p.URL != "" {
				link = fmt.Sprintf("[patent](%s)", p.URL)
			}
			fmt.Fprintf(&b, "| %s | %s | %s | %s |\n", cell(p.PatentNumber), cell(p.Title), cell(p.Assignee), link)
		}
	case evidence.StageVerifiedClaims:
		payload, err := evidence.Decode[evidence.VerifiedClaimsPayload](res.Structured)
		if err != nil || payload == nil {
			return ""
		}
		if payload.OverallAssessment != "" {
			fmt.Fprintf(&b, "%s\n\n", payload.OverallAssessment)
		}
		b.WriteString("| Claim | Status | Summary |\n|---|---|---|\n")
		for _, v := range payload.VerifiedClaims {
			fmt.Fprintf(&b, "| %s | %s | %s |\n", cell(v.ClaimID), string(v.VerificationStatus), cell(v.VerificationSummary))
		}
	default:
		return ""
	}
	return b.String()
}

func cell(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, "\n", " "), "|", "\\|")
}
