package evidence

// StageName identifies one step of the pipeline.
type StageName string

const (
	StageClaims                StageName = "claims"
	StageSimilarPapers         StageName = "similar-papers"
	StageResearchGroups        StageName = "research-groups"
	StageResearchGroupContacts StageName = "research-group-contacts"
	StageResearcherTheses      StageName = "researcher-theses"
	StagePatents               StageName = "patents"
	StageVerifiedClaims        StageName = "verified-claims"
)

// AllStages lists every stage in trigger order.
var AllStages = []StageName{
	StageClaims,
	StageSimilarPapers,
	StageResearchGroups,
	StageResearchGroupContacts,
	StageResearcherTheses,
	StagePatents,
	StageVerifiedClaims,
}

// Dependencies maps each stage to the stages that must have succeeded
// before it may start. Verified-claims hard-requires only claims; the other
// upstream results are folded in when present.
var Dependencies = map[StageName][]StageName{
	StageClaims:                {},
	StageSimilarPapers:         {StageClaims},
	StageResearchGroups:        {StageClaims, StageSimilarPapers},
	StageResearchGroupContacts: {StageResearchGroups},
	StageResearcherTheses:      {StageResearchGroupContacts},
	StagePatents:               {StageClaims},
	StageVerifiedClaims:        {StageClaims},
}

// Valid reports whether s names a known stage.
func (s StageName) Valid() bool {
	_, ok := Dependencies[s]
	return ok
}
