// Package evidence holds the typed records that flow between pipeline
// stages: paper metadata supplied by the upload collaborator, the claims
// brief, and the structured payloads each downstream stage produces.
package evidence

import "encoding/json"

// PaperMetadata is supplied by the extraction/storage collaborator and is
// immutable once attached to an upload. Authors may arrive as a parsed list
// or as a single raw string; AuthorList() reconciles the two.
type PaperMetadata struct {
	Title      string   `json:"title,omitempty"`
	DOI        string   `json:"doi,omitempty"`
	Authors    []string `json:"authors,omitempty"`
	AuthorsRaw string   `json:"authorsRaw,omitempty"`
	Abstract   string   `json:"abstract,omitempty"`
}

type Claim struct {
	ID              string `json:"id"`
	ClaimText       string `json:"claimText"`
	EvidenceSummary string `json:"evidenceSummary,omitempty"`
	EvidenceType    string `json:"evidenceType,omitempty"`
	Strength        string `json:"strength,omitempty"`
}

type Gap struct {
	Category        string   `json:"category"`
	Detail          string   `json:"detail"`
	RelatedClaimIDs []string `json:"relatedClaimIds,omitempty"`
}

type RiskItem struct {
	Item   string `json:"item"`
	Status string `json:"status,omitempty"`
}

// ClaimsBrief is the structured half of the claims stage output. It is the
// authoritative input to every downstream stage; claim IDs are unique within
// a brief and downstream stages may only reference existing IDs.
type ClaimsBrief struct {
	Claims           []Claim    `json:"claims"`
	ExecutiveSummary []string   `json:"executiveSummary,omitempty"`
	MethodsSnapshot  []string   `json:"methodsSnapshot,omitempty"`
	Gaps             []Gap      `json:"gaps,omitempty"`
	RiskChecklist    []RiskItem `json:"riskChecklist,omitempty"`
	OpenQuestions    []string   `json:"openQuestions,omitempty"`
}

// MethodMatrix is the fixed eight-field comparison block each similar paper
// carries.
type MethodMatrix struct {
	StudyDesign    string `json:"studyDesign"`
	SampleSize     string `json:"sampleSize"`
	Population     string `json:"population"`
	Intervention   string `json:"intervention"`
	ComparisonArms string `json:"comparisonArms"`
	PrimaryOutcome string `json:"primaryOutcome"`
	AnalysisMethod string `json:"analysisMethod"`
	KeyLimitations string `json:"keyLimitations"`
}

type SimilarPaperEntry struct {
	Identifier          string       `json:"identifier"`
	Title               string       `json:"title"`
	Authors             string       `json:"authors,omitempty"`
	Year                string       `json:"year,omitempty"`
	Venue               string       `json:"venue,omitempty"`
	ClusterLabel        string       `json:"clusterLabel,omitempty"`
	WhyRelevant         string       `json:"whyRelevant,omitempty"`
	OverlapHighlights   []string     `json:"overlapHighlights,omitempty"`
	MethodMatrix        MethodMatrix `json:"methodMatrix,omitempty"`
	GapsOrUncertainties string       `json:"gapsOrUncertainties,omitempty"`
}

type SimilarPapersPayload struct {
	Papers []SimilarPaperEntry `json:"papers"`
}

type Researcher struct {
	Name     string   `json:"name"`
	Email    string   `json:"email,omitempty"`
	Role     string   `json:"role,omitempty"`
	ORCID    string   `json:"orcid,omitempty"`
	Profiles []string `json:"profiles,omitempty"`
}

type Group struct {
	Name        string       `json:"name"`
	Institution string       `json:"institution,omitempty"`
	Website     string       `json:"website,omitempty"`
	Notes       string       `json:"notes,omitempty"`
	Researchers []Researcher `json:"researchers,omitempty"`
}

// ResearchGroupPaperEntry is one paper's worth of group/contact findings.
// The set of entries must cover the deduplicated similar-paper set plus the
// source paper, once each.
type ResearchGroupPaperEntry struct {
	Title      string  `json:"title"`
	Identifier string  `json:"identifier,omitempty"`
	Groups     []Group `json:"groups"`
}

type ResearchGroupsPayload struct {
	Papers []ResearchGroupPaperEntry `json:"papers"`
}

type Publication struct {
	Title string `json:"title"`
	Year  string `json:"year,omitempty"`
	Venue string `json:"venue,omitempty"`
	URL   string `json:"url,omitempty"`
}

type Thesis struct {
	Title       string `json:"title"`
	Year        string `json:"year,omitempty"`
	Institution string `json:"institution,omitempty"`
	URL         string `json:"url,omitempty"`
}

type DataAvailability string

const (
	DataAvailableYes     DataAvailability = "yes"
	DataAvailableNo      DataAvailability = "no"
	DataAvailableUnknown DataAvailability = "unknown"
)

type ThesisRecord struct {
	Researcher            string           `json:"researcher"`
	Email                 string           `json:"email,omitempty"`
	Group                 string           `json:"group,omitempty"`
	LatestPublication     *Publication     `json:"latestPublication,omitempty"`
	PhDThesis             *Thesis          `json:"phdThesis,omitempty"`
	DataPubliclyAvailable DataAvailability `json:"dataPubliclyAvailable"`
}

type ThesesPayload struct {
	Theses []ThesisRecord `json:"theses"`
}

type PatentOverlap struct {
	ClaimIDs []string `json:"claimIds,omitempty"`
	Summary  string   `json:"summary,omitempty"`
}

type PatentEntry struct {
	PatentNumber     string        `json:"patentNumber"`
	Title            string        `json:"title"`
	Assignee         string        `json:"assignee,omitempty"`
	FilingDate       string        `json:"filingDate,omitempty"`
	GrantDate        string        `json:"grantDate,omitempty"`
	Abstract         string        `json:"abstract,omitempty"`
	URL              string        `json:"url,omitempty"`
	OverlapWithPaper PatentOverlap `json:"overlapWithPaper,omitempty"`
}

type PatentsPayload struct {
	Patents []PatentEntry `json:"patents"`
}

type VerificationStatus string

const (
	StatusVerified             VerificationStatus = "Verified"
	StatusPartiallyVerified    VerificationStatus = "Partially Verified"
	StatusContradicted         VerificationStatus = "Contradicted"
	StatusInsufficientEvidence VerificationStatus = "Insufficient Evidence"
)

type EvidenceRef struct {
	Source    string `json:"source"`
	Title     string `json:"title,omitempty"`
	Relevance string `json:"relevance,omitempty"`
}

type VerifiedClaim struct {
	ClaimID               string             `json:"claimId"`
	OriginalClaim         string             `json:"originalClaim"`
	VerificationStatus    VerificationStatus `json:"verificationStatus"`
	SupportingEvidence    []EvidenceRef      `json:"supportingEvidence,omitempty"`
	ContradictingEvidence []EvidenceRef      `json:"contradictingEvidence,omitempty"`
	VerificationSummary   string             `json:"verificationSummary,omitempty"`
	ConfidenceLevel       string             `json:"confidenceLevel,omitempty"`
}

type VerifiedClaimsPayload struct {
	VerifiedClaims    []VerifiedClaim `json:"verifiedClaims"`
	OverallAssessment string          `json:"overallAssessment,omitempty"`
}

// GooglePatentsBase is the prefix used to derive a patent URL when the model
// did not supply one.
const GooglePatentsBase = "https://patents.google.com/patent/"

// ResolveURL fills the URL from the patent number when absent.
func (p *PatentEntry) ResolveURL() {
	if p.URL == "" && p.PatentNumber != "" {
		p.URL = GooglePatentsBase + p.PatentNumber
	}
}

// Bundle carries everything a stage's prompt builders may draw on. Fields
// for stages that have not run stay zero-valued; builders only read what
// their stage depends on.
type Bundle struct {
	Paper         PaperMetadata
	ExtractedText string

	ClaimsText string
	Claims     *ClaimsBrief

	SimilarPapers []SimilarPaperEntry

	GroupsText string
	Groups     []ResearchGroupPaperEntry

	ContactsText string
	Contacts     []ResearchGroupPaperEntry

	ThesesText string
	Theses     []ThesisRecord

	PatentsText string
	Patents     []PatentEntry

	// Contact-lookup worklist: source paper first, then deduplicated
	// similar papers, with the authors chosen for outreach.
	ContactPapers      []ContactPaper
	ExpectedPaperCount int
}

// ContactPaper is one entry of the contact-lookup worklist.
type ContactPaper struct {
	Title      string
	Identifier string
	Authors    []string
}

// Decode unmarshals a structured stage payload, tolerating a nil blob.
func Decode[T any](raw json.RawMessage) (*T, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return &v, nil
}
