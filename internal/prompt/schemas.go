package prompt

import "github.com/evidentia-hq/evidentia/internal/evidence"

const claimsSchema = `Required JSON schema:
{
  "claims": [{"id": "C1", "claimText": "string", "evidenceSummary": "string", "evidenceType": "string", "strength": "strong | moderate | weak"}],
  "executiveSummary": ["string (3-5 entries)"],
  "methodsSnapshot": ["string (2-6 entries)"],
  "gaps": [{"category": "string", "detail": "string", "relatedClaimIds": ["C1"]}],
  "riskChecklist": [{"item": "string", "status": "string"}],
  "openQuestions": ["string"]
}
Claim ids must be unique, sequential, and of the form C1, C2, ...`

const similarPapersSchema = `Required JSON schema:
{
  "papers": [{
    "identifier": "DOI or URL (never empty, never a placeholder like 'No identifier')",
    "title": "string",
    "authors": "string",
    "year": "string",
    "venue": "string",
    "clusterLabel": "string",
    "whyRelevant": "string",
    "overlapHighlights": ["exactly 3 short strings"],
    "methodMatrix": {
      "studyDesign": "string", "sampleSize": "string", "population": "string",
      "intervention": "string", "comparisonArms": "string", "primaryOutcome": "string",
      "analysisMethod": "string", "keyLimitations": "string"
    },
    "gapsOrUncertainties": "string"
  }]
}
Omit any paper for which no real DOI or URL could be found. Never include the source paper itself.`

const researchGroupsSchema = `Required JSON schema:
{
  "papers": [{
    "title": "string",
    "identifier": "DOI or URL",
    "groups": [{
      "name": "string",
      "institution": "string",
      "website": "string",
      "notes": "string",
      "researchers": [{"name": "string", "email": "string", "role": "first | last | corresponding | other", "orcid": "string", "profiles": ["string"]}]
    }]
  }]
}`

const thesesSchema = `Required JSON schema:
{
  "theses": [{
    "researcher": "string",
    "email": "string",
    "group": "string",
    "latestPublication": {"title": "string", "year": "string", "venue": "string", "url": "string"},
    "phdThesis": {"title": "string", "year": "string", "institution": "string", "url": "string"},
    "dataPubliclyAvailable": "yes | no | unknown"
  }]
}`

const patentsSchema = `Required JSON schema:
{
  "patents": [{
    "patentNumber": "string (e.g. US10123456B2)",
    "title": "string",
    "assignee": "string",
    "filingDate": "YYYY-MM-DD",
    "grantDate": "YYYY-MM-DD",
    "abstract": "string",
    "url": "string (https://patents.google.com/patent/<patentNumber> when unsure)",
    "overlapWithPaper": {"claimIds": ["C1"], "summary": "string"}
  }]
}`

const verifiedClaimsSchema = `Required JSON schema:
{
  "verifiedClaims": [{
    "claimId": "C1",
    "originalClaim": "string",
    "verificationStatus": "Verified | Partially Verified | Contradicted | Insufficient Evidence",
    "supportingEvidence": [{"source": "string", "title": "string", "relevance": "string"}],
    "contradictingEvidence": [{"source": "string", "title": "string", "relevance": "string"}],
    "verificationSummary": "string",
    "confidenceLevel": "High | Moderate | Low"
  }],
  "overallAssessment": "string"
}
Only reference claim ids that exist in the claims brief.`

// cleanupSchemas is the read-only template table, loaded once at process
// start and keyed by stage name.
var cleanupSchemas = map[evidence.StageName]string{
	evidence.StageClaims:                claimsSchema,
	evidence.StageSimilarPapers:         similarPapersSchema,
	evidence.StageResearchGroups:        researchGroupsSchema,
	evidence.StageResearchGroupContacts: researchGroupsSchema,
	evidence.StageResearcherTheses:      thesesSchema,
	evidence.StagePatents:               patentsSchema,
	evidence.StageVerifiedClaims:        verifiedClaimsSchema,
}

// Schema exposes the cleanup schema for a stage.
func Schema(stage evidence.StageName) string {
	return cleanupSchemas[stage]
}
