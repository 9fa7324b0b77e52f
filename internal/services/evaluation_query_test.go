package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/yungbote/casestudy-backend/internal/data/repos"
	"github.com/yungbote/casestudy-backend/internal/data/repos/testutil"
	types "github.com/yungbote/casestudy-backend/internal/domain"
)

func TestEvaluationListingEnrichment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := testutil.SeedSession(t, ctx, f.db, types.SessionStatusDiscussionInProgress, "Lan", "Minh")
	lan := s.Participants[0]
	chunk := seedChunk(t, f, s, strings.Repeat("Lan (A): start with SME lending. ", 5))

	ai := newFakeAI()
	ai.answers["Innovation"] = evalAnswer(map[string]any{
		"participant_id": lan.ID.String(), "participant_name": "Lan", "role_code": "A", "score": 4.0,
		"rationale": "r", "evidence": []any{"start with SME lending", "pilot"}, "confidence": 0.9, "behavioral_indicators": []any{},
	})
	if _, err := f.evaluator(t, ai, EvaluatorConfig{}).Evaluate(ctx, chunk); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	q := NewEvaluationQueryService(testutil.Logger(t), f.sessions, f.chunks, f.evals, f.fw, nil)
	out, err := q.List(ctx, s.ID, repos.EvaluationFilter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(out.Evaluations) != 1 {
		t.Fatalf("evaluations: %+v", out.Evaluations)
	}
	v := out.Evaluations[0]
	if v.ParticipantName != "Lan" || v.RoleCode != "A" || v.CompetencyNameEn != "Innovation" || v.ChunkDurationSeconds != 60 {
		t.Fatalf("view: %+v", v)
	}
	st := out.Statistics
	if st.TotalEvaluations != 1 || st.LatestChunk != 1 || st.CompetencyCount != 4 || st.ParticipantCount != 2 || st.LastUpdated == nil {
		t.Fatalf("statistics: %+v", st)
	}
	if sum := out.Summaries["innovation"].Participants[lan.ID.String()]; sum == nil || sum.AverageScore != 4 {
		t.Fatalf("summary: %+v", out.Summaries["innovation"])
	}
	if len(out.Competencies) != 4 || out.PolledAt.IsZero() {
		t.Fatalf("competencies/polled_at: %+v", out)
	}

	future := time.Now().Add(time.Hour)
	out, err = q.List(ctx, s.ID, repos.EvaluationFilter{Since: &future})
	if err != nil {
		t.Fatalf("List since: %v", err)
	}
	if len(out.Evaluations) != 0 {
		t.Fatalf("since filter: %+v", out.Evaluations)
	}
	if sum := out.Summaries["innovation"].Participants[lan.ID.String()]; sum == nil {
		t.Fatalf("summaries must still cover the whole session")
	}
}
