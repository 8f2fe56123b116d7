package stage

import (
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/evidentia-hq/evidentia/internal/evidence"
)

// validateClaims enforces unique claim ids, dropping later duplicates, and
// requires at least one claim.
func validateClaims(raw json.RawMessage, _ evidence.Bundle, logger *zap.Logger) (json.RawMessage, error) {
	var payload evidence.ClaimsBrief
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("claims payload shape: %w", err)
	}
	if len(payload.Claims) == 0 {
		return nil, fmt.Errorf("no claims extracted")
	}
	seen := map[string]struct{}{}
	kept := payload.Claims[:0]
	for _, c := range payload.Claims {
		if _, dup := seen[c.ID]; dup {
			logger.Warn("duplicate_claim_id_dropped", zap.String("claim_id", c.ID))
			continue
		}
		seen[c.ID] = struct{}{}
		kept = append(kept, c)
	}
	payload.Claims = kept
	return json.Marshal(payload)
}

// validateSimilarPapers drops entries with placeholder identifiers and any
// entry that resolves to the source paper itself. Violations are logged,
// not fatal.
func validateSimilarPapers(raw json.RawMessage, b evidence.Bundle, logger *zap.Logger) (json.RawMessage, error) {
	var payload evidence.SimilarPapersPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		// Tolerant stage: keep whatever parsed, the UI renders from text.
		logger.Warn("similar_papers_payload_shape", zap.Error(err))
		return raw, nil
	}
	kept := payload.Papers[:0]
	for _, p := range payload.Papers {
		if evidence.IsPlaceholderIdentifier(p.Identifier) {
			logger.Warn("similar_paper_dropped_placeholder_identifier", zap.String("title", p.Title))
			continue
		}
		if evidence.SameSourcePaper(p, b.Paper) {
			logger.Warn("similar_paper_dropped_source_match", zap.String("title", p.Title))
			continue
		}
		kept = append(kept, p)
	}
	payload.Papers = kept
	return json.Marshal(payload)
}

// validateResearchGroups checks the parsed paper count against the
// expected count from the batch worklist. A shortfall is a warning;
// an empty result when papers were expected is meaningless and fails.
func validateResearchGroups(raw json.RawMessage, b evidence.Bundle, logger *zap.Logger) (json.RawMessage, error) {
	var payload evidence.ResearchGroupsPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		logger.Warn("research_groups_payload_shape", zap.Error(err))
		return raw, nil
	}
	if b.ExpectedPaperCount >= 1 && len(payload.Papers) == 0 {
		return nil, fmt.Errorf("cleanup produced 0 papers, expected %d", b.ExpectedPaperCount)
	}
	if len(payload.Papers) < b.ExpectedPaperCount {
		logger.Warn("research_groups_paper_shortfall",
			zap.Int("expected", b.ExpectedPaperCount),
			zap.Int("parsed", len(payload.Papers)))
	}
	return raw, nil
}

// validatePatents derives missing Google Patents URLs and drops entries
// without a patent number.
func validatePatents(raw json.RawMessage, _ evidence.Bundle, logger *zap.Logger) (json.RawMessage, error) {
	var payload evidence.PatentsPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("patents payload shape: %w", err)
	}
	kept := payload.Patents[:0]
	for i := range payload.Patents {
		p := payload.Patents[i]
		if p.PatentNumber == "" {
			logger.Warn("patent_dropped_missing_number", zap.String("title", p.Title))
			continue
		}
		p.ResolveURL()
		kept = append(kept, p)
	}
	payload.Patents = kept
	return json.Marshal(payload)
}

// validateTheses normalizes the data-availability enum.
func validateTheses(raw json.RawMessage, _ evidence.Bundle, logger *zap.Logger) (json.RawMessage, error) {
	var payload evidence.ThesesPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("theses payload shape: %w", err)
	}
	for i := range payload.Theses {
		switch payload.Theses[i].DataPubliclyAvailable {
		case evidence.DataAvailableYes, evidence.DataAvailableNo, evidence.DataAvailableUnknown:
		default:
			payload.Theses[i].DataPubliclyAvailable = evidence.DataAvailableUnknown
		}
	}
	return json.Marshal(payload)
}

// validateVerifiedClaims drops entries referencing claim ids that do not
// exist in the claims brief.
func validateVerifiedClaims(raw json.RawMessage, b evidence.Bundle, logger *zap.Logger) (json.RawMessage, error) {
	var payload evidence.VerifiedClaimsPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("verified-claims payload shape: %w", err)
	}
	known := map[string]struct{}{}
	if b.Claims != nil {
		for _, c := range b.Claims.Claims {
			known[c.ID] = struct{}{}
		}
	}
	kept := payload.VerifiedClaims[:0]
	for _, vc := range payload.VerifiedClaims {
		if _, ok := known[vc.ClaimID]; !ok && len(known) > 0 {
			logger.Warn("verified_claim_dropped_unknown_id", zap.String("claim_id", vc.ClaimID))
			continue
		}
		kept = append(kept, vc)
	}
	payload.VerifiedClaims = kept
	if len(payload.VerifiedClaims) == 0 {
		return nil, fmt.Errorf("no verified claims referenced existing claim ids")
	}
	return json.Marshal(payload)
}
