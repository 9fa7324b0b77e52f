package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/yungbote/casestudy-backend/internal/data/repos"
	"github.com/yungbote/casestudy-backend/internal/data/repos/testutil"
	types "github.com/yungbote/casestudy-backend/internal/domain"
	"github.com/yungbote/casestudy-backend/internal/platform/dbctx"
	"github.com/yungbote/casestudy-backend/internal/realtime/bus"
)

func TestClampScore(t *testing.T) {
	cases := map[int]int{7: 5, -1: 1, 0: 0, 1: 1, 3: 3, 5: 5, 100: 5}
	for in, want := range cases {
		if got := clampScore(in); got != want {
			t.Fatalf("clampScore(%d): want=%d got=%d", in, want, got)
		}
	}
}

func TestStrengthTable(t *testing.T) {
	r := DefaultStrengthRules()
	cases := []struct {
		quotes, score int
		want          string
	}{
		{2, 4, types.EvidenceStrong},
		{3, 5, types.EvidenceStrong},
		{1, 4, types.EvidenceModerate},
		{2, 3, types.EvidenceModerate},
		{1, 2, types.EvidenceWeak},
		{5, 1, types.EvidenceWeak},
		{0, 5, types.EvidenceInsufficient},
		{0, 0, types.EvidenceInsufficient},
	}
	for _, tc := range cases {
		if got := r.Classify(tc.quotes, tc.score); got != tc.want {
			t.Fatalf("Classify(%d,%d): want=%s got=%s", tc.quotes, tc.score, tc.want, got)
		}
	}
}

func TestClampConfidence(t *testing.T) {
	hi, lo := 1.7, -0.2
	if clampConfidence(&hi, 0.5) != 1 || clampConfidence(&lo, 0.5) != 0 || clampConfidence(nil, 0.5) != 0.5 {
		t.Fatalf("confidence not clamped")
	}
}

func evalAnswer(items ...map[string]any) map[string]any {
	arr := make([]any, 0, len(items))
	for _, it := range items {
		arr = append(arr, it)
	}
	return map[string]any{"evaluations": arr}
}

func TestEvaluateSkipsShortChunks(t *testing.T) {
	f := newFixture(t)
	ai := newFakeAI()
	ev := f.evaluator(t, ai, EvaluatorConfig{MinChunkChars: 100})
	ctx := context.Background()
	s := testutil.SeedSession(t, ctx, f.db, types.SessionStatusDiscussionInProgress, "Lan")

	res, err := ev.Evaluate(ctx, &types.TranscriptChunk{SessionID: s.ID, Version: 1, ConsolidatedText: "too short"})
	if err != nil || len(res) != 0 {
		t.Fatalf("short chunk should be a silent no-op: %v %v", res, err)
	}
	if len(ai.prompts) != 0 {
		t.Fatalf("no llm call expected")
	}
}

// Two participants, one chunk, digital transformation scored 4 with one quote for the first and 2
// with no quotes for the second.
func TestEndToEndTwoParticipants(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := testutil.SeedSession(t, ctx, f.db, types.SessionStatusDiscussionInProgress, "Alice", "Bob")
	alice, bob := s.Participants[0], s.Participants[1]

	chunk, err := f.chunkService(t).Append(ctx, AppendChunkInput{
		SessionID:       s.ID,
		RawText:         "1: We should expand digital lending. 2: I disagree, risk is too high.",
		DurationSeconds: 60,
		SpeakerMapping:  map[string]string{"1": alice.ID.String(), "2": bob.ID.String()},
	})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	want := "Alice (A): We should expand digital lending. Bob (B): I disagree, risk is too high."
	if chunk.ConsolidatedText != want {
		t.Fatalf("consolidated:\nwant=%q\n got=%q", want, chunk.ConsolidatedText)
	}

	ai := newFakeAI()
	ai.answers["Digital transformation"] = evalAnswer(
		map[string]any{"participant_id": alice.ID.String(), "participant_name": "Alice", "role_code": "A", "score": 4.0,
			"rationale": "pushes digital lending", "evidence": []any{"We should expand digital lending."}, "confidence": 0.8,
			"behavioral_indicators": []any{"HV1"}},
		map[string]any{"participant_id": bob.ID.String(), "participant_name": "Bob", "role_code": "B", "score": 2.0,
			"rationale": "", "evidence": []any{}, "confidence": 0.4, "behavioral_indicators": []any{}},
	)
	res, err := f.evaluator(t, ai, EvaluatorConfig{MinChunkChars: 50}).Evaluate(ctx, chunk)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if len(res) != 4 {
		t.Fatalf("want a result per competency, got %d", len(res))
	}
	dt := res["digital_transformation"]
	if !dt.Success || len(dt.Evaluations) != 2 {
		t.Fatalf("digital_transformation result: %+v", dt)
	}

	rows, err := f.evals.ListBySession(dbctx.Of(ctx), s.ID, repos.EvaluationFilter{})
	if err != nil {
		t.Fatalf("ListBySession: %v", err)
	}
	byParticipant := map[string]*types.CompetencyEvaluation{}
	for _, r := range rows {
		if r.CompetencyID == "digital_transformation" {
			byParticipant[r.ParticipantID.String()] = r
		}
	}
	a, b := byParticipant[alice.ID.String()], byParticipant[bob.ID.String()]
	if a == nil || b == nil {
		t.Fatalf("missing rows: %+v", rows)
	}
	if a.Score != 4 || a.Level != types.LevelExceedsRequirements || a.EvidenceStrength != types.EvidenceModerate || !a.CountTowardOverall {
		t.Fatalf("alice row: %+v", a)
	}
	if b.Score != 2 || b.Level != types.LevelNeedsImprovement || b.EvidenceStrength != types.EvidenceInsufficient {
		t.Fatalf("bob row: %+v", b)
	}
	if b.Rationale == "" || a.ChunkVersion != 1 || a.TranscriptChunkID != chunk.ID {
		t.Fatalf("row linkage/defaults: %+v", b)
	}
	var quotes []string
	_ = json.Unmarshal(a.Evidence, &quotes)
	if len(quotes) != 1 {
		t.Fatalf("evidence: %s", a.Evidence)
	}

	found := false
	for _, typ := range f.bus.eventTypes() {
		if typ == bus.EventEvaluationCompleted {
			found = true
		}
	}
	if !found {
		t.Fatalf("evaluation.completed not published: %v", f.bus.eventTypes())
	}
}

func TestEvaluateIsolatesCompetencyFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := testutil.SeedSession(t, ctx, f.db, types.SessionStatusDiscussionInProgress, "Lan")
	lan := s.Participants[0]
	chunk := seedChunk(t, f, s, strings.Repeat("Lan (A): we need a phased rollout. ", 5))

	ai := newFakeAI()
	ai.fail["Innovation"] = errors.New("timeout")
	ai.answers["Risk balance"] = evalAnswer(
		map[string]any{"participant_id": "", "participant_name": "lan", "role_code": "", "score": 7.0,
			"rationale": "r", "evidence": []any{"a", " ", "b"}, "confidence": 2.0, "behavioral_indicators": []any{}},
		map[string]any{"participant_id": "", "participant_name": "Ghost", "role_code": "Z", "score": 3.0,
			"rationale": "r", "evidence": []any{}, "confidence": 0.5, "behavioral_indicators": []any{}},
	)
	res, err := f.evaluator(t, ai, EvaluatorConfig{}).Evaluate(ctx, chunk)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if res["innovation"].Success || res["innovation"].Error == "" {
		t.Fatalf("innovation should fail alone: %+v", res["innovation"])
	}
	if !res["strategic_thinking"].Success || !res["digital_transformation"].Success {
		t.Fatalf("siblings must succeed: %+v", res)
	}
	rb := res["risk_balance"]
	if !rb.Success || len(rb.Evaluations) != 1 {
		t.Fatalf("unknown participant should be dropped: %+v", rb)
	}
	row := rb.Evaluations[0]
	if row.ParticipantID != lan.ID || row.Score != 5 || row.ConfidenceScore != 1 || row.EvidenceStrength != types.EvidenceStrong {
		t.Fatalf("clamped row: %+v", row)
	}
}

func TestEvaluateScoreZeroIsKeptButNotCounted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := testutil.SeedSession(t, ctx, f.db, types.SessionStatusDiscussionInProgress, "Lan")
	chunk := seedChunk(t, f, s, strings.Repeat("Lan (A): I have nothing to add right now. ", 4))

	ai := newFakeAI()
	ai.answers["Strategic thinking"] = evalAnswer(map[string]any{
		"participant_id": s.Participants[0].ID.String(), "participant_name": "Lan", "role_code": "A", "score": 0.0,
		"rationale": "", "evidence": []any{}, "confidence": 0.3, "behavioral_indicators": []any{},
	})
	res, err := f.evaluator(t, ai, EvaluatorConfig{}).Evaluate(ctx, chunk)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	rows := res["strategic_thinking"].Evaluations
	if len(rows) != 1 || rows[0].Score != 0 || rows[0].CountTowardOverall || rows[0].Level != "" {
		t.Fatalf("score 0 row: %+v", rows)
	}
}

func TestDuplicateRowIsLoggedNotFatal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := testutil.SeedSession(t, ctx, f.db, types.SessionStatusDiscussionInProgress, "Lan")
	chunk := seedChunk(t, f, s, strings.Repeat("Lan (A): the pilot should start in one branch. ", 4))

	ai := newFakeAI()
	ai.answers["Innovation"] = evalAnswer(map[string]any{
		"participant_id": s.Participants[0].ID.String(), "participant_name": "Lan", "role_code": "A", "score": 3.0,
		"rationale": "r", "evidence": []any{"q"}, "confidence": 0.5, "behavioral_indicators": []any{},
	})
	ev := f.evaluator(t, ai, EvaluatorConfig{})
	if _, err := ev.Evaluate(ctx, chunk); err != nil {
		t.Fatalf("first Evaluate: %v", err)
	}
	res, err := ev.Evaluate(ctx, chunk)
	if err != nil {
		t.Fatalf("second Evaluate: %v", err)
	}
	if r := res["innovation"]; !r.Success || len(r.Evaluations) != 0 {
		t.Fatalf("duplicate insert should be skipped, not fail the competency: %+v", r)
	}
}

func seedChunk(t *testing.T, f *fixture, s *types.Session, text string) *types.TranscriptChunk {
	t.Helper()
	c, err := f.chunks.Create(dbctx.Of(context.Background()), &types.TranscriptChunk{
		SessionID:        s.ID,
		Version:          1,
		Kind:             string(types.ChunkKindRolling),
		RawText:          text,
		ConsolidatedText: text,
		SpeakerMapping:   []byte("{}"),
		DurationSeconds:  60,
	})
	if err != nil {
		t.Fatalf("seed chunk: %v", err)
	}
	return c
}
