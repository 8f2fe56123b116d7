package stage

import (
	"fmt"

	"github.com/evidentia-hq/evidentia/internal/evidence"
	"github.com/evidentia-hq/evidentia/internal/prompt"
)

// specs is the per-stage wiring table. Strictness is deliberate product
// behavior: similar-papers and research-groups can render from raw text,
// so they degrade on parse failure; the rest are structured-or-nothing.
var specs = map[evidence.StageName]Spec{
	evidence.StageClaims: {
		Name:       evidence.StageClaims,
		WebSearch:  false,
		StrictJSON: true,
		Discovery:  prompt.ClaimsDiscovery,
		Cleanup:    prompt.ClaimsCleanup,
		Validate:   validateClaims,
	},
	evidence.StageSimilarPapers: {
		Name:       evidence.StageSimilarPapers,
		WebSearch:  true,
		StrictJSON: false,
		Discovery:  prompt.SimilarPapersDiscovery,
		Cleanup:    prompt.SimilarPapersCleanup,
		Validate:   validateSimilarPapers,
	},
	evidence.StageResearchGroups: {
		Name:           evidence.StageResearchGroups,
		WebSearch:      true,
		StrictJSON:     false,
		BatchDiscovery: prompt.ResearchGroupsBatchDiscovery,
		BatchSize:      DefaultBatchSize,
		Cleanup:        prompt.ResearchGroupsCleanup,
		Validate:       validateResearchGroups,
	},
	evidence.StageResearchGroupContacts: {
		Name:           evidence.StageResearchGroupContacts,
		WebSearch:      true,
		StrictJSON:     true,
		BatchDiscovery: prompt.ContactsBatchDiscovery,
		BatchSize:      DefaultBatchSize,
		Cleanup:        prompt.ContactsCleanup,
		Validate:       validateResearchGroups,
	},
	evidence.StageResearcherTheses: {
		Name:       evidence.StageResearcherTheses,
		WebSearch:  true,
		StrictJSON: true,
		Discovery:  prompt.ThesesDiscovery,
		Cleanup:    prompt.ThesesCleanup,
		Validate:   validateTheses,
	},
	evidence.StagePatents: {
		Name:       evidence.StagePatents,
		WebSearch:  true,
		StrictJSON: true,
		Discovery:  prompt.PatentsDiscovery,
		Cleanup:    prompt.PatentsCleanup,
		Validate:   validatePatents,
	},
	evidence.StageVerifiedClaims: {
		Name:       evidence.StageVerifiedClaims,
		WebSearch:  false,
		StrictJSON: true,
		Discovery:  prompt.VerifiedClaimsDiscovery,
		Cleanup:    prompt.VerifiedClaimsCleanup,
		Validate:   validateVerifiedClaims,
	},
}

// For returns the spec for a stage.
func For(name evidence.StageName) (Spec, error) {
	spec, ok := specs[name]
	if !ok {
		return Spec{}, fmt.Errorf("unknown stage %q", name)
	}
	return spec, nil
}
