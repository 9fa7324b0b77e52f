package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"gorm.io/gorm"

	"github.com/yungbote/casestudy-backend/internal/data/repos"
	"github.com/yungbote/casestudy-backend/internal/data/repos/testutil"
	types "github.com/yungbote/casestudy-backend/internal/domain"
	"github.com/yungbote/casestudy-backend/internal/evaluation/framework"
	"github.com/yungbote/casestudy-backend/internal/realtime/bus"
)

type recordingBus struct {
	mu     sync.Mutex
	events []bus.Event
	err    error
}

func (b *recordingBus) Publish(ctx context.Context, ev bus.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, ev)
	return b.err
}

func (b *recordingBus) Close() error { return nil }

func (b *recordingBus) eventTypes() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.events))
	for _, ev := range b.events {
		out = append(out, ev.Type)
	}
	return out
}

type recordingScheduler struct {
	mu     sync.Mutex
	chunks []*types.TranscriptChunk
	err    error
}

func (s *recordingScheduler) Schedule(chunk *types.TranscriptChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = append(s.chunks, chunk)
	return s.err
}

func (s *recordingScheduler) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.chunks)
}

// fakeAI answers GenerateJSON by competency, keyed on the English name in the prompt.
type fakeAI struct {
	mu      sync.Mutex
	answers map[string]map[string]any
	fail    map[string]error
	prompts []string
}

func newFakeAI() *fakeAI {
	return &fakeAI{answers: map[string]map[string]any{}, fail: map[string]error{}}
}

func (f *fakeAI) GenerateJSON(ctx context.Context, system, user, schemaName string, schema map[string]any) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, user)
	for name, err := range f.fail {
		if strings.Contains(user, "("+name+")") {
			return nil, err
		}
	}
	for name, ans := range f.answers {
		if strings.Contains(user, "("+name+")") {
			return ans, nil
		}
	}
	return map[string]any{"evaluations": []any{}}, nil
}

func (f *fakeAI) GenerateText(ctx context.Context, system, user string) (string, error) {
	return "", errors.New("not used")
}

func (f *fakeAI) Model() string { return "fake-model" }

type fixture struct {
	db        *gorm.DB
	sessions  repos.SessionRepo
	chunks    repos.TranscriptChunkRepo
	evals     repos.CompetencyEvaluationRepo
	bus       *recordingBus
	scheduler *recordingScheduler
	fw        *framework.Framework
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	fw, err := framework.Load("")
	if err != nil {
		t.Fatalf("framework: %v", err)
	}
	return &fixture{
		db:        db,
		sessions:  repos.NewSessionRepo(db, log),
		chunks:    repos.NewTranscriptChunkRepo(db, log),
		evals:     repos.NewCompetencyEvaluationRepo(db, log),
		bus:       &recordingBus{},
		scheduler: &recordingScheduler{},
		fw:        fw,
	}
}

func (f *fixture) chunkService(t *testing.T) TranscriptChunkService {
	return NewTranscriptChunkService(f.db, testutil.Logger(t), f.sessions, f.chunks, f.bus, f.scheduler)
}

func (f *fixture) evaluator(t *testing.T, ai *fakeAI, cfg EvaluatorConfig) CompetencyEvaluator {
	return NewCompetencyEvaluator(testutil.Logger(t), ai, f.fw, f.sessions, f.evals, f.bus, cfg)
}
