package pipeline

import (
	"github.com/evidentia-hq/evidentia/internal/evidence"
	"github.com/evidentia-hq/evidentia/internal/stage"
)

// buildBundleLocked assembles the prompt inputs for one stage from the
// paper's accumulated results. Caller holds c.mu. Dependency gaps and
// structurally unusable upstream payloads come back as *ValidationError.
func (c *Coordinator) buildBundleLocked(ps *paperState, name evidence.StageName) (evidence.Bundle, *ValidationError) {
	b := evidence.Bundle{
		Paper:         ps.meta,
		ExtractedText: ps.extractedText,
	}

	for _, dep := range evidence.Dependencies[name] {
		res, ok := ps.results[dep]
		if !ok || res.Status != StatusSuccess {
			return b, validationErrorf("stage %q requires %q to complete first", name, dep)
		}
	}

	if name == evidence.StageClaims {
		if ps.extractedText == "" {
			return b, validationErrorf("claims stage requires extracted paper text")
		}
		return b, nil
	}

	// Every downstream stage reads the claims brief when present; for the
	// hard dependents its absence or emptiness is a caller error.
	if res, ok := ps.results[evidence.StageClaims]; ok && res.Status == StatusSuccess {
		brief, err := evidence.Decode[evidence.ClaimsBrief](res.Structured)
		if err != nil {
			return b, validationErrorf("claims result is not decodable: %v", err)
		}
		b.ClaimsText = res.Text
		b.Claims = brief
	}
	if requiresClaims(name) && (b.Claims == nil || len(b.Claims.Claims) == 0) {
		return b, validationErrorf("stage %q requires a claims brief with at least one claim", name)
	}

	if res, ok := ps.results[evidence.StageSimilarPapers]; ok && res.Status == StatusSuccess {
		payload, err := evidence.Decode[evidence.SimilarPapersPayload](res.Structured)
		if err != nil {
			return b, validationErrorf("similar-papers result is not decodable: %v", err)
		}
		if payload != nil {
			b.SimilarPapers = payload.Papers
		}
	}

	if res, ok := ps.results[evidence.StageResearchGroups]; ok && res.Status == StatusSuccess {
		b.GroupsText = res.Text
		payload, err := evidence.Decode[evidence.ResearchGroupsPayload](res.Structured)
		if err != nil {
			return b, validationErrorf("research-groups result is not decodable: %v", err)
		}
		if payload != nil {
			b.Groups = payload.Papers
		}
	}

	if res, ok := ps.results[evidence.StageResearchGroupContacts]; ok && res.Status == StatusSuccess {
		b.ContactsText = res.Text
		payload, err := evidence.Decode[evidence.ResearchGroupsPayload](res.Structured)
		if err != nil {
			return b, validationErrorf("research-group-contacts result is not decodable: %v", err)
		}
		if payload != nil {
			b.Contacts = payload.Papers
		}
	}

	if res, ok := ps.results[evidence.StageResearcherTheses]; ok && res.Status == StatusSuccess {
		b.ThesesText = res.Text
		payload, err := evidence.Decode[evidence.ThesesPayload](res.Structured)
		if err != nil {
			return b, validationErrorf("researcher-theses result is not decodable: %v", err)
		}
		if payload != nil {
			b.Theses = payload.Theses
		}
	}

	if res, ok := ps.results[evidence.StagePatents]; ok && res.Status == StatusSuccess {
		b.PatentsText = res.Text
		payload, err := evidence.Decode[evidence.PatentsPayload](res.Structured)
		if err != nil {
			return b, validationErrorf("patents result is not decodable: %v", err)
		}
		if payload != nil {
			b.Patents = payload.Patents
		}
	}

	switch name {
	case evidence.StageResearchGroups:
		// Even when similar-papers degraded to text-only, the source paper
		// alone forms the worklist.
		b.ContactPapers = stage.BuildContactPapers(b.Paper, b.SimilarPapers)
		b.ExpectedPaperCount = len(b.ContactPapers)
	case evidence.StageResearchGroupContacts:
		worklist, verr := contactWorklist(b.Groups)
		if verr != nil {
			return b, verr
		}
		b.ContactPapers = worklist
		b.ExpectedPaperCount = len(worklist)
	case evidence.StageResearcherTheses:
		if len(b.Contacts) == 0 {
			return b, validationErrorf("researcher-theses requires structured research-group-contacts data")
		}
	}

	return b, nil
}

func requiresClaims(name evidence.StageName) bool {
	for _, dep := range evidence.Dependencies[name] {
		if dep == evidence.StageClaims {
			return true
		}
	}
	return false
}

// maxContactResearchers caps how many researchers one worklist entry may
// carry, keeping each batched lookup call the same size the splitter was
// tuned for.
const maxContactResearchers = 3

// contactWorklist turns the research-groups payload into the per-paper
// researcher lookup list for the contacts stage.
func contactWorklist(groups []evidence.ResearchGroupPaperEntry) ([]evidence.ContactPaper, *ValidationError) {
	if len(groups) == 0 {
		return nil, validationErrorf("research-group-contacts requires structured research-groups data")
	}
	out := make([]evidence.ContactPaper, 0, len(groups))
	for i, entry := range groups {
		if entry.Title == "" && entry.Identifier == "" {
			return nil, validationErrorf("research-groups entry %d has neither title nor identifier", i)
		}
		var names []string
		seen := map[string]struct{}{}
		for _, g := range entry.Groups {
			for _, r := range g.Researchers {
				if len(names) >= maxContactResearchers {
					break
				}
				key := evidence.NormalizeTitle(r.Name)
				if r.Name == "" {
					continue
				}
				if _, dup := seen[key]; dup {
					continue
				}
				seen[key] = struct{}{}
				names = append(names, r.Name)
			}
		}
		out = append(out, evidence.ContactPaper{
			Title:      entry.Title,
			Identifier: entry.Identifier,
			Authors:    names,
		})
	}
	return out, nil
}
