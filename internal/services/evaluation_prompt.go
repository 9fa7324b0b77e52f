package services

import (
	"fmt"
	"strings"

	types "github.com/yungbote/casestudy-backend/internal/domain"
	"github.com/yungbote/casestudy-backend/internal/evaluation/framework"
)

const evaluationSystemPrompt = `You are an assessment-center assessor scoring a group case-study discussion.
Score every listed participant on ONE competency using only what they said in this transcript excerpt.
Scoring:
- 1-5 per the rubric.
- 0 when the participant shows no evidence for this competency in the excerpt.
Evidence must be verbatim quotes from the participant. Do not invent quotes.
Confidence is 0..1 and reflects how much of the excerpt supports the score.
Return JSON only.`

func evaluationSchema() map[string]any {
	item := map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required": []string{
			"participant_id", "participant_name", "role_code", "score", "rationale",
			"evidence", "confidence", "behavioral_indicators",
		},
		"properties": map[string]any{
			"participant_id":   map[string]any{"type": "string"},
			"participant_name": map[string]any{"type": "string"},
			"role_code":        map[string]any{"type": "string"},
			"score":            map[string]any{"type": "integer"},
			"rationale":        map[string]any{"type": "string"},
			"evidence": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
			"confidence": map[string]any{"type": "number"},
			"behavioral_indicators": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
		},
	}
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []string{"evaluations"},
		"properties": map[string]any{
			"evaluations": map[string]any{"type": "array", "items": item},
		},
	}
}

func buildEvaluationPrompt(c *framework.Competency, session *types.Session, chunk *types.TranscriptChunk) string {
	var b strings.Builder
	fmt.Fprintf(&b, "COMPETENCY: %s (%s)\n", c.Name, c.NameEn)
	if c.Description != "" {
		fmt.Fprintf(&b, "DEFINITION: %s\n", strings.TrimSpace(c.Description))
	}
	if len(c.BehavioralIndicators) > 0 {
		b.WriteString("\nBEHAVIORAL INDICATORS:\n")
		for _, ind := range c.BehavioralIndicators {
			fmt.Fprintf(&b, "- %s: %s\n", ind.Code, strings.TrimSpace(ind.Description))
		}
	}
	b.WriteString("\nSCORING RUBRIC:\n")
	fmt.Fprintf(&b, "- 1-2 needs improvement: %s\n", strings.TrimSpace(c.ScoringRubric.NeedsImprovement))
	fmt.Fprintf(&b, "- 3 meets requirements: %s\n", strings.TrimSpace(c.ScoringRubric.MeetsRequirements))
	fmt.Fprintf(&b, "- 4-5 exceeds requirements: %s\n", strings.TrimSpace(c.ScoringRubric.ExceedsRequirements))

	b.WriteString("\nPARTICIPANTS:\n")
	for _, p := range session.Participants {
		role := p.RoleName
		if role == "" {
			role = "role " + p.RoleCode
		}
		fmt.Fprintf(&b, "- id=%s name=%s role_code=%s (%s)\n", p.ID, p.Name, p.RoleCode, role)
	}
	if strings.TrimSpace(session.Scenario) != "" {
		fmt.Fprintf(&b, "\nSCENARIO:\n%s\n", strings.TrimSpace(session.Scenario))
	}

	fmt.Fprintf(&b, "\nTRANSCRIPT CHUNK #%d (%s, %d seconds):\n", chunk.Version, chunk.Kind, chunk.DurationSeconds)
	b.WriteString(chunk.ConsolidatedText)
	b.WriteString("\n")
	return b.String()
}
