package services

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/yungbote/casestudy-backend/internal/data/repos/testutil"
	types "github.com/yungbote/casestudy-backend/internal/domain"
)

func (f *fixture) sessionService(t *testing.T) SessionService {
	return NewSessionService(f.db, testutil.Logger(t), f.sessions, f.chunks, f.evals)
}

func TestCreateSessionAssignsRoleCodes(t *testing.T) {
	f := newFixture(t)
	svc := f.sessionService(t)
	s, err := svc.Create(context.Background(), CreateSessionInput{
		Name: "Case 1",
		Participants: []ParticipantInput{
			{Name: "Lan", RoleCode: "b"},
			{Name: "Minh"},
			{Name: "Huong"},
		},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if s.Status != string(types.SessionStatusCreated) || s.ExpectedDurationSeconds != 7200 {
		t.Fatalf("defaults: %+v", s)
	}
	codes := map[string]string{}
	for _, p := range s.Participants {
		codes[p.Name] = p.RoleCode
	}
	if codes["Lan"] != "B" || codes["Minh"] != "A" || codes["Huong"] != "C" {
		t.Fatalf("role codes: %v", codes)
	}
}

func TestCreateSessionValidation(t *testing.T) {
	f := newFixture(t)
	svc := f.sessionService(t)
	six := make([]ParticipantInput, 6)
	for i := range six {
		six[i] = ParticipantInput{Name: "p"}
	}
	cases := map[string]CreateSessionInput{
		"no name":         {Participants: []ParticipantInput{{Name: "a"}}},
		"no participants": {Name: "s"},
		"too many":        {Name: "s", Participants: six},
		"bad role":        {Name: "s", Participants: []ParticipantInput{{Name: "a", RoleCode: "F"}}},
		"dup role":        {Name: "s", Participants: []ParticipantInput{{Name: "a", RoleCode: "A"}, {Name: "b", RoleCode: "a"}}},
		"blank person":    {Name: "s", Participants: []ParticipantInput{{Name: " "}}},
	}
	for name, in := range cases {
		if _, err := svc.Create(context.Background(), in); statusOf(err) != http.StatusBadRequest {
			t.Fatalf("%s: want 400, got %v", name, err)
		}
	}
}

func TestTransitions(t *testing.T) {
	f := newFixture(t)
	svc := f.sessionService(t)
	ctx := context.Background()
	s := testutil.SeedSession(t, ctx, f.db, types.SessionStatusCreated, "Lan")

	if _, err := svc.Transition(ctx, s.ID, types.SessionStatusCompleted); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("created -> completed must be rejected: %v", err)
	}
	steps := []types.SessionStatus{
		types.SessionStatusDiscussionInProgress,
		types.SessionStatusDiscussionCompleted,
		types.SessionStatusDiscussionInProgress,
		types.SessionStatusDiscussionCompleted,
		types.SessionStatusInterviewInProgress,
		types.SessionStatusCompleted,
	}
	for _, to := range steps {
		got, err := svc.Transition(ctx, s.ID, to)
		if err != nil {
			t.Fatalf("transition to %s: %v", to, err)
		}
		if got.Status != string(to) {
			t.Fatalf("status: want=%s got=%s", to, got.Status)
		}
	}
	if _, err := svc.Transition(ctx, s.ID, "archived"); statusOf(err) != http.StatusBadRequest {
		t.Fatalf("unknown status should be 400: %v", err)
	}
}

func TestProgress(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := testutil.SeedSession(t, ctx, f.db, types.SessionStatusDiscussionInProgress, "Lan")
	chunks := f.chunkService(t)
	for i := 0; i < 3; i++ {
		if _, err := chunks.Append(ctx, AppendChunkInput{SessionID: s.ID, RawText: "x", DurationSeconds: 60}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	p, err := f.sessionService(t).Progress(ctx, s.ID)
	if err != nil {
		t.Fatalf("Progress: %v", err)
	}
	if p.ChunkCount != 3 || p.LatestVersion != 3 || p.DiscussionSeconds != 180 || p.HasFullTranscript {
		t.Fatalf("progress: %+v", p)
	}
	if p.ProgressPercent != 2.5 {
		t.Fatalf("percent: %v", p.ProgressPercent)
	}

	if _, err := chunks.Append(ctx, AppendChunkInput{SessionID: s.ID, RawText: "all", DurationSeconds: 200, Kind: types.ChunkKindFull}); err != nil {
		t.Fatalf("Append full: %v", err)
	}
	p, _ = f.sessionService(t).Progress(ctx, s.ID)
	if !p.HasFullTranscript || p.DiscussionSeconds != 200 {
		t.Fatalf("full transcript should define duration: %+v", p)
	}
}
