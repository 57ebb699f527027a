// Package scoring computes lead qualification scores. The engine is a pure
// function over a lead and a scoring policy: no I/O, no clock, no state.
// Identical inputs always produce identical results.
package scoring

import (
	"fmt"
	"sort"
	"strings"

	"outreach_backend/internal/leads/domain"
	"outreach_backend/internal/policy"
	"outreach_backend/platform/apperr"
)

const (
	// modelVersion tracks the scoring model for debugging and analysis.
	// Bump this when changing scoring logic significantly.
	modelVersion = "2026-v1"

	maxScore = 100
)

// Score evaluates a lead against the scoring policy and returns a
// qualification result. Integer arithmetic throughout; sub-scores are
// bounded so the total stays within 0-100 without clamping surprises.
func Score(lead domain.Lead, pol policy.ScoringPolicy) (domain.QualificationResult, error) {
	if err := validate(lead); err != nil {
		return domain.QualificationResult{}, err
	}

	breakdown := map[string]int{}
	var positives, concerns []string

	// Organization-size fit (0-20): fixed bucket table.
	orgSize := pol.OrgSizePoints[normalizeBucket(lead.OrgSizeBucket)]
	breakdown["org_size_fit"] = orgSize
	if orgSize >= 14 {
		positives = append(positives, fmt.Sprintf("organization size %q is a strong fit", lead.OrgSizeBucket))
	} else if orgSize <= 3 {
		concerns = append(concerns, "organization size below target profile")
	}

	// Volume fit (0-20): fixed bucket table.
	volume := pol.VolumePoints[normalizeBucket(lead.VolumeBucket)]
	breakdown["volume_fit"] = volume
	if volume >= 15 {
		positives = append(positives, fmt.Sprintf("volume %q indicates real demand", lead.VolumeBucket))
	} else if volume <= 2 {
		concerns = append(concerns, "stated volume is low")
	}

	// Industry/domain fit (0-15): enrichment signal when present, else neutral.
	industry := pol.IndustryDefault
	if lead.IndustrySignal != nil {
		if pts, ok := pol.IndustryPoints[normalizeBucket(*lead.IndustrySignal)]; ok {
			industry = pts
		}
	}
	breakdown["industry_fit"] = industry
	if industry >= 12 {
		positives = append(positives, "industry signal indicates strong fit")
	}

	// Intake completeness (0-15).
	completeness := pol.PartialPoints
	if lead.FormCompleted {
		completeness = pol.CompletePoints
	} else {
		concerns = append(concerns, "intake form was abandoned before completion")
	}
	breakdown["completeness"] = completeness

	// Scheduled-meeting signal (0-10).
	meeting := 0
	if lead.MeetingBooked {
		meeting = pol.MeetingPoints
		positives = append(positives, "lead already booked a call")
	}
	breakdown["meeting_booked"] = meeting

	// Response quality (0-10): free-text richness and intent keywords.
	quality := scoreResponseQuality(lead.FreeText)
	breakdown["response_quality"] = quality
	if quality >= 8 {
		positives = append(positives, "detailed response with buying intent")
	} else if quality <= 2 && lead.FreeText == "" {
		concerns = append(concerns, "no free-text response provided")
	}

	// Firmographic presence (0-10): points per present enrichment field, capped.
	firmographic := 0
	if lead.AnnualRevenue != nil {
		firmographic += pol.FirmographicEach
	}
	if lead.EmployeeCount != nil {
		firmographic += pol.FirmographicEach
	}
	if firmographic > pol.FirmographicCap {
		firmographic = pol.FirmographicCap
	}
	breakdown["firmographics"] = firmographic

	total := 0
	for _, pts := range breakdown {
		total += pts
	}
	if total > maxScore {
		total = maxScore
	}

	tier := pol.TierForScore(total)

	return domain.QualificationResult{
		LeadID:          lead.ID,
		Score:           total,
		Tier:            tier,
		Breakdown:       breakdown,
		Rationale:       buildRationale(total, tier, breakdown),
		PositiveFactors: positives,
		Concerns:        concerns,
		ModelVersion:    modelVersion,
	}, nil
}

func validate(lead domain.Lead) error {
	if strings.TrimSpace(lead.Email) == "" {
		return apperr.Validation("missing required field: email")
	}
	if strings.TrimSpace(lead.OrgDomain) == "" {
		return apperr.Validation("missing required field: orgDomain")
	}
	if strings.TrimSpace(lead.ContactName) == "" {
		return apperr.Validation("missing required field: contactName")
	}
	return nil
}

// intentKeywords mark buying intent in free-text responses.
var intentKeywords = []string{
	"urgent", "asap", "budget", "pricing", "price", "quote",
	"demo", "trial", "evaluate", "switch", "migrate", "deadline",
}

// scoreResponseQuality awards up to 6 points for richness (length) and up to
// 4 for intent keywords. Deterministic by construction.
func scoreResponseQuality(text string) int {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return 0
	}

	score := 0
	switch n := len(trimmed); {
	case n >= 240:
		score = 6
	case n >= 120:
		score = 4
	case n >= 40:
		score = 2
	default:
		score = 1
	}

	lower := strings.ToLower(trimmed)
	hits := 0
	for _, kw := range intentKeywords {
		if strings.Contains(lower, kw) {
			hits++
		}
	}
	if hits > 2 {
		hits = 2
	}
	score += hits * 2

	if score > 10 {
		score = 10
	}
	return score
}

func buildRationale(total int, tier policy.Tier, breakdown map[string]int) string {
	keys := make([]string, 0, len(breakdown))
	for k := range breakdown {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, breakdown[k]))
	}
	return fmt.Sprintf("scored %d/100 (%s): %s", total, tier, strings.Join(parts, ", "))
}

func normalizeBucket(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

// ModelVersion exposes the current scoring model identifier for persistence.
func ModelVersion() string { return modelVersion }
