package services

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"

	"github.com/yungbote/casestudy-backend/internal/data/repos"
	types "github.com/yungbote/casestudy-backend/internal/domain"
	"github.com/yungbote/casestudy-backend/internal/evaluation/framework"
	"github.com/yungbote/casestudy-backend/internal/observability"
	"github.com/yungbote/casestudy-backend/internal/platform/dbctx"
	"github.com/yungbote/casestudy-backend/internal/platform/envutil"
	"github.com/yungbote/casestudy-backend/internal/platform/logger"
	"github.com/yungbote/casestudy-backend/internal/platform/openai"
	"github.com/yungbote/casestudy-backend/internal/realtime/bus"
)

type EvaluatorConfig struct {
	MinChunkChars     int
	CallTimeout       time.Duration
	Concurrency       int
	DefaultConfidence float64
	Strength          StrengthRules
}

func DefaultEvaluatorConfig() EvaluatorConfig {
	return EvaluatorConfig{
		MinChunkChars:     100,
		CallTimeout:       90 * time.Second,
		Concurrency:       4,
		DefaultConfidence: 0.5,
		Strength:          DefaultStrengthRules(),
	}
}

// EvaluatorConfigFromEnv reads EVAL_MIN_CHUNK_CHARS, EVAL_CALL_TIMEOUT_SECONDS,
// EVAL_COMPETENCY_CONCURRENCY and the EVAL_* strength thresholds.
func EvaluatorConfigFromEnv() EvaluatorConfig {
	d := DefaultEvaluatorConfig()
	return EvaluatorConfig{
		MinChunkChars:     envutil.Int("EVAL_MIN_CHUNK_CHARS", d.MinChunkChars),
		CallTimeout:       envutil.Duration("EVAL_CALL_TIMEOUT_SECONDS", d.CallTimeout),
		Concurrency:       envutil.Int("EVAL_COMPETENCY_CONCURRENCY", d.Concurrency),
		DefaultConfidence: envutil.Float("EVAL_DEFAULT_CONFIDENCE", d.DefaultConfidence),
		Strength:          StrengthRulesFromEnv(),
	}
}

// CompetencyResult is the outcome of one competency call for one chunk.
type CompetencyResult struct {
	CompetencyID string                        `json:"competency_id"`
	Success      bool                          `json:"success"`
	Error        string                        `json:"error,omitempty"`
	Evaluations  []*types.CompetencyEvaluation `json:"evaluations"`
}

type CompetencyEvaluator interface {
	// Evaluate scores one chunk against every competency. An empty map means the chunk was too
	// short to evaluate.
	Evaluate(ctx context.Context, chunk *types.TranscriptChunk) (map[string]CompetencyResult, error)
}

type competencyEvaluator struct {
	log       *logger.Logger
	ai        openai.Client
	framework *framework.Framework
	sessions  repos.SessionRepo
	evals     repos.CompetencyEvaluationRepo
	events    bus.Bus
	cfg       EvaluatorConfig
}

func NewCompetencyEvaluator(baseLog *logger.Logger, ai openai.Client, fw *framework.Framework, sessions repos.SessionRepo, evals repos.CompetencyEvaluationRepo, events bus.Bus, cfg EvaluatorConfig) CompetencyEvaluator {
	d := DefaultEvaluatorConfig()
	if cfg.MinChunkChars <= 0 {
		cfg.MinChunkChars = d.MinChunkChars
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = d.CallTimeout
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = d.Concurrency
	}
	if cfg.DefaultConfidence <= 0 || cfg.DefaultConfidence > 1 {
		cfg.DefaultConfidence = d.DefaultConfidence
	}
	if cfg.Strength == (StrengthRules{}) {
		cfg.Strength = d.Strength
	}
	if events == nil {
		events = bus.Nop()
	}
	return &competencyEvaluator{
		log:       baseLog.With("service", "CompetencyEvaluator"),
		ai:        ai,
		framework: fw,
		sessions:  sessions,
		evals:     evals,
		events:    events,
		cfg:       cfg,
	}
}

func (e *competencyEvaluator) Evaluate(ctx context.Context, chunk *types.TranscriptChunk) (map[string]CompetencyResult, error) {
	if chunk == nil {
		return nil, fmt.Errorf("missing chunk")
	}
	results := map[string]CompetencyResult{}
	if utf8.RuneCountInString(strings.TrimSpace(chunk.ConsolidatedText)) < e.cfg.MinChunkChars {
		e.log.Debug("chunk too short to evaluate", "session_id", chunk.SessionID, "version", chunk.Version)
		return results, nil
	}

	ctx, span := otel.Tracer("services").Start(ctx, "evaluation.chunk")
	defer span.End()
	span.SetAttributes(
		attribute.String("session.id", chunk.SessionID.String()),
		attribute.Int64("chunk.version", chunk.Version),
	)
	start := time.Now()

	session, err := loadSession(dbctx.Of(ctx), e.sessions, chunk.SessionID)
	if err != nil {
		span.RecordError(err)
		observability.Current().ObserveChunkEvaluation("error", time.Since(start))
		return nil, err
	}

	ids := e.framework.IDs()
	out := make([]CompetencyResult, len(ids))
	var g errgroup.Group
	g.SetLimit(e.cfg.Concurrency)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			out[i] = e.evaluateCompetency(ctx, session, chunk, id)
			return nil
		})
	}
	_ = g.Wait()

	succeeded := 0
	rows := 0
	for _, r := range out {
		results[r.CompetencyID] = r
		if r.Success {
			succeeded++
		}
		rows += len(r.Evaluations)
	}
	status := "ok"
	if succeeded < len(ids) {
		status = "partial"
		if succeeded == 0 {
			status = "error"
			span.SetStatus(codes.Error, "all competencies failed")
		}
	}
	observability.Current().ObserveChunkEvaluation(status, time.Since(start))
	e.log.Info("chunk evaluated",
		"session_id", chunk.SessionID,
		"version", chunk.Version,
		"competencies", len(ids),
		"succeeded", succeeded,
		"rows", rows,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	e.publish(ctx, chunk, results, rows)
	return results, nil
}

func (e *competencyEvaluator) publish(ctx context.Context, chunk *types.TranscriptChunk, results map[string]CompetencyResult, rows int) {
	summary := map[string]bool{}
	for id, r := range results {
		summary[id] = r.Success
	}
	ev, err := bus.NewEvent(bus.EventEvaluationCompleted, chunk.SessionID, map[string]any{
		"chunk_id":     chunk.ID,
		"version":      chunk.Version,
		"competencies": summary,
		"rows":         rows,
	})
	if err == nil {
		pubCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err = e.events.Publish(pubCtx, ev)
		cancel()
	}
	if err != nil {
		e.log.Warn("publish evaluation event failed", "session_id", chunk.SessionID, "version", chunk.Version, "error", err)
	}
}

func (e *competencyEvaluator) evaluateCompetency(ctx context.Context, session *types.Session, chunk *types.TranscriptChunk, competencyID string) (res CompetencyResult) {
	res.CompetencyID = competencyID
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("competency evaluation panic", "competency", competencyID, "panic", r)
			res = CompetencyResult{CompetencyID: competencyID, Error: "internal error"}
		}
		status := "ok"
		if !res.Success {
			status = "error"
		}
		observability.Current().IncCompetencyEvaluation(competencyID, status)
	}()

	comp, ok := e.framework.Get(competencyID)
	if !ok {
		res.Error = "unknown competency"
		return res
	}

	ctx, span := otel.Tracer("services").Start(ctx, "evaluation.competency")
	defer span.End()
	span.SetAttributes(attribute.String("competency.id", competencyID))

	callCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
	obj, err := e.ai.GenerateJSON(callCtx, evaluationSystemPrompt, buildEvaluationPrompt(comp, session, chunk), "competency_evaluation", evaluationSchema())
	cancel()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "llm call failed")
		e.log.Warn("competency evaluation failed",
			"session_id", chunk.SessionID,
			"version", chunk.Version,
			"competency", competencyID,
			"error", err,
		)
		res.Error = err.Error()
		return res
	}

	rows := e.validate(obj, session, chunk, competencyID)
	dbc := dbctx.Of(ctx)
	for _, row := range rows {
		if _, err := e.evals.Create(dbc, row); err != nil {
			observability.Current().IncEvaluationRow("error")
			e.log.Error("persist evaluation row failed",
				"session_id", chunk.SessionID,
				"version", chunk.Version,
				"competency", competencyID,
				"participant_id", row.ParticipantID,
				"error", err,
			)
			continue
		}
		observability.Current().IncEvaluationRow("ok")
		res.Evaluations = append(res.Evaluations, row)
	}
	res.Success = true
	return res
}

type modelEvaluation struct {
	ParticipantID        string
	ParticipantName      string
	RoleCode             string
	Score                int
	Rationale            string
	Evidence             []string
	Confidence           *float64
	BehavioralIndicators []string
}

func parseModelEvaluations(obj map[string]any) []modelEvaluation {
	items, _ := obj["evaluations"].([]any)
	out := make([]modelEvaluation, 0, len(items))
	for _, it := range items {
		m, ok := it.(map[string]any)
		if !ok {
			continue
		}
		me := modelEvaluation{
			ParticipantID:        stringField(m, "participant_id"),
			ParticipantName:      stringField(m, "participant_name"),
			RoleCode:             stringField(m, "role_code"),
			Rationale:            stringField(m, "rationale"),
			Evidence:             stringList(m["evidence"]),
			BehavioralIndicators: stringList(m["behavioral_indicators"]),
		}
		if f, ok := m["score"].(float64); ok {
			me.Score = int(math.Round(f))
		}
		if f, ok := m["confidence"].(float64); ok {
			me.Confidence = &f
		}
		out = append(out, me)
	}
	return out
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return strings.TrimSpace(s)
}

func stringList(v any) []string {
	arr, _ := v.([]any)
	out := make([]string, 0, len(arr))
	for _, x := range arr {
		if s, ok := x.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, strings.TrimSpace(s))
		}
	}
	return out
}

// clampScore keeps 0 as "no evidence" and forces everything else into 1..5.
func clampScore(score int) int {
	switch {
	case score == 0:
		return 0
	case score < 1:
		return 1
	case score > 5:
		return 5
	}
	return score
}

func clampConfidence(c *float64, def float64) float64 {
	if c == nil || math.IsNaN(*c) {
		return def
	}
	return math.Max(0, math.Min(1, *c))
}

func (e *competencyEvaluator) validate(obj map[string]any, session *types.Session, chunk *types.TranscriptChunk, competencyID string) []*types.CompetencyEvaluation {
	seen := map[uuid.UUID]bool{}
	var rows []*types.CompetencyEvaluation
	for _, me := range parseModelEvaluations(obj) {
		p, ok := matchEvaluatedParticipant(me, session.Participants)
		if !ok {
			e.log.Debug("dropping evaluation for unknown participant", "competency", competencyID, "participant_id", me.ParticipantID)
			continue
		}
		if seen[p.ID] {
			continue
		}
		seen[p.ID] = true

		score := clampScore(me.Score)
		rationale := me.Rationale
		if rationale == "" {
			if score == 0 {
				rationale = "No evidence for this competency in this chunk."
			} else {
				rationale = "No rationale provided."
			}
		}
		evidence, _ := json.Marshal(me.Evidence)
		indicators, _ := json.Marshal(me.BehavioralIndicators)
		rows = append(rows, &types.CompetencyEvaluation{
			SessionID:            chunk.SessionID,
			ParticipantID:        p.ID,
			TranscriptChunkID:    chunk.ID,
			ChunkVersion:         chunk.Version,
			CompetencyID:         competencyID,
			Score:                score,
			Level:                types.LevelForScore(score),
			Rationale:            rationale,
			Evidence:             datatypes.JSON(evidence),
			EvidenceStrength:     e.cfg.Strength.Classify(len(me.Evidence), score),
			ConfidenceScore:      clampConfidence(me.Confidence, e.cfg.DefaultConfidence),
			BehavioralIndicators: datatypes.JSON(indicators),
			CountTowardOverall:   score > 0,
		})
	}
	return rows
}

// matchEvaluatedParticipant resolves a model answer by id, then name, then role code.
func matchEvaluatedParticipant(me modelEvaluation, participants []types.Participant) (types.Participant, bool) {
	if id, err := uuid.Parse(me.ParticipantID); err == nil {
		for _, p := range participants {
			if p.ID == id {
				return p, true
			}
		}
	}
	if me.ParticipantName != "" {
		for _, p := range participants {
			if strings.EqualFold(strings.TrimSpace(p.Name), me.ParticipantName) {
				return p, true
			}
		}
	}
	if me.RoleCode != "" {
		for _, p := range participants {
			if strings.EqualFold(p.RoleCode, me.RoleCode) {
				return p, true
			}
		}
	}
	return types.Participant{}, false
}
