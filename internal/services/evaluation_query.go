package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/casestudy-backend/internal/data/repos"
	types "github.com/yungbote/casestudy-backend/internal/domain"
	"github.com/yungbote/casestudy-backend/internal/evaluation/framework"
	"github.com/yungbote/casestudy-backend/internal/platform/dbctx"
	"github.com/yungbote/casestudy-backend/internal/platform/logger"
)

type EvaluationView struct {
	*types.CompetencyEvaluation
	ParticipantName      string `json:"participant_name"`
	RoleCode             string `json:"role_code"`
	CompetencyName       string `json:"competency_name"`
	CompetencyNameEn     string `json:"competency_name_en"`
	ChunkDurationSeconds int    `json:"chunk_duration_seconds"`
}

type EvaluationStatistics struct {
	TotalEvaluations int        `json:"total_evaluations"`
	LatestChunk      int64      `json:"latest_chunk"`
	LastUpdated      *time.Time `json:"last_updated,omitempty"`
	CompetencyCount  int        `json:"competency_count"`
	ParticipantCount int        `json:"participant_count"`
}

type CompetencyInfo struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	NameEn string `json:"name_en"`
}

type EvaluationListing struct {
	SessionID    uuid.UUID                    `json:"session_id"`
	Evaluations  []EvaluationView             `json:"evaluations"`
	Summaries    map[string]CompetencySummary `json:"competency_summaries"`
	Competencies []CompetencyInfo             `json:"competencies"`
	Participants []types.Participant          `json:"participants"`
	Statistics   EvaluationStatistics         `json:"statistics"`
	PolledAt     time.Time                    `json:"polled_at"`
}

type EvaluationQueryService interface {
	// List returns rows matching filter. Summaries always cover the whole session, narrowed only
	// by participant, so a poller diffing on Since still sees complete averages.
	List(ctx context.Context, sessionID uuid.UUID, filter repos.EvaluationFilter) (*EvaluationListing, error)
}

type evaluationQueryService struct {
	log        *logger.Logger
	sessions   repos.SessionRepo
	chunks     repos.TranscriptChunkRepo
	evals      repos.CompetencyEvaluationRepo
	framework  *framework.Framework
	aggregator *EvaluationAggregator
	now        func() time.Time
}

func NewEvaluationQueryService(baseLog *logger.Logger, sessions repos.SessionRepo, chunks repos.TranscriptChunkRepo, evals repos.CompetencyEvaluationRepo, fw *framework.Framework, aggregator *EvaluationAggregator) EvaluationQueryService {
	if aggregator == nil {
		aggregator = NewEvaluationAggregator(DefaultAggregatorConfig())
	}
	return &evaluationQueryService{
		log:        baseLog.With("service", "EvaluationQueryService"),
		sessions:   sessions,
		chunks:     chunks,
		evals:      evals,
		framework:  fw,
		aggregator: aggregator,
		now:        time.Now,
	}
}

func (s *evaluationQueryService) List(ctx context.Context, sessionID uuid.UUID, filter repos.EvaluationFilter) (*EvaluationListing, error) {
	dbc := dbctx.Of(ctx)
	session, err := loadSession(dbc, s.sessions, sessionID)
	if err != nil {
		return nil, err
	}
	all, err := s.evals.ListBySession(dbc, sessionID, repos.EvaluationFilter{ParticipantID: filter.ParticipantID})
	if err != nil {
		return nil, fmt.Errorf("list evaluations: %w", err)
	}
	chunks, err := s.chunks.ListAsc(dbc, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}
	durations := map[uuid.UUID]int{}
	for _, c := range chunks {
		durations[c.ID] = c.DurationSeconds
	}
	participants := map[uuid.UUID]types.Participant{}
	for _, p := range session.Participants {
		participants[p.ID] = p
	}

	ids := s.framework.IDs()
	out := &EvaluationListing{
		SessionID:    sessionID,
		Evaluations:  []EvaluationView{},
		Summaries:    s.aggregator.Summarize(ids, session.Participants, all),
		Participants: session.Participants,
		PolledAt:     s.now().UTC(),
	}
	for _, id := range ids {
		c, _ := s.framework.Get(id)
		out.Competencies = append(out.Competencies, CompetencyInfo{ID: id, Name: c.Name, NameEn: c.NameEn})
	}

	for _, row := range all {
		if filter.Since != nil && !filter.Since.IsZero() && !row.CreatedAt.After(*filter.Since) {
			continue
		}
		view := EvaluationView{
			CompetencyEvaluation: row,
			ChunkDurationSeconds: durations[row.TranscriptChunkID],
		}
		if p, ok := participants[row.ParticipantID]; ok {
			view.ParticipantName = p.Name
			view.RoleCode = p.RoleCode
		}
		if c, ok := s.framework.Get(row.CompetencyID); ok {
			view.CompetencyName = c.Name
			view.CompetencyNameEn = c.NameEn
		}
		out.Evaluations = append(out.Evaluations, view)

		if row.ChunkVersion > out.Statistics.LatestChunk {
			out.Statistics.LatestChunk = row.ChunkVersion
		}
		if out.Statistics.LastUpdated == nil || row.CreatedAt.After(*out.Statistics.LastUpdated) {
			t := row.CreatedAt
			out.Statistics.LastUpdated = &t
		}
	}
	out.Statistics.TotalEvaluations = len(out.Evaluations)
	out.Statistics.CompetencyCount = len(ids)
	out.Statistics.ParticipantCount = len(session.Participants)
	return out, nil
}
