package services

import (
	"context"
	"fmt"

	types "github.com/yungbote/casestudy-backend/internal/domain"
	"github.com/yungbote/casestudy-backend/internal/jobs/worker"
)

type poolScheduler struct {
	pool      *worker.Pool
	evaluator CompetencyEvaluator
}

// NewPoolScheduler runs chunk evaluations on a bounded worker pool.
func NewPoolScheduler(pool *worker.Pool, evaluator CompetencyEvaluator) EvaluationScheduler {
	return &poolScheduler{pool: pool, evaluator: evaluator}
}

func (s *poolScheduler) Schedule(chunk *types.TranscriptChunk) error {
	if chunk == nil {
		return fmt.Errorf("missing chunk")
	}
	c := *chunk
	return s.pool.Enqueue(worker.Job{
		Name: fmt.Sprintf("evaluate:%s:%d", c.SessionID, c.Version),
		Run: func(ctx context.Context) error {
			_, err := s.evaluator.Evaluate(ctx, &c)
			return err
		},
	})
}
