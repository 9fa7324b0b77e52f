package services

import (
	"encoding/json"
	"math"
	"sort"

	"github.com/google/uuid"

	types "github.com/yungbote/casestudy-backend/internal/domain"
	"github.com/yungbote/casestudy-backend/internal/platform/envutil"
)

const (
	TrendImproving = "improving"
	TrendDeclining = "declining"
	TrendStable    = "stable"
)

type AggregatorConfig struct {
	MinTrendScores int
	TrendMargin    float64
}

func DefaultAggregatorConfig() AggregatorConfig {
	return AggregatorConfig{MinTrendScores: 4, TrendMargin: 0.3}
}

func AggregatorConfigFromEnv() AggregatorConfig {
	d := DefaultAggregatorConfig()
	return AggregatorConfig{
		MinTrendScores: envutil.Int("EVAL_TREND_MIN_SCORES", d.MinTrendScores),
		TrendMargin:    envutil.Float("EVAL_TREND_MARGIN", d.TrendMargin),
	}
}

type ParticipantCompetencySummary struct {
	ParticipantID       uuid.UUID `json:"participant_id"`
	ParticipantName     string    `json:"participant_name,omitempty"`
	RoleCode            string    `json:"role_code,omitempty"`
	Scores              []int     `json:"scores"`
	EvaluationCount     int       `json:"evaluation_count"`
	AverageScore        float64   `json:"average_score"`
	EvidenceCount       int       `json:"evidence_count"`
	StrongEvidenceCount int       `json:"strong_evidence_count"`
	LatestScore         *int      `json:"latest_score,omitempty"`
	Trend               *string   `json:"trend,omitempty"`
}

type CompetencySummary struct {
	CompetencyID   string                                   `json:"competency_id"`
	Participants   map[string]*ParticipantCompetencySummary `json:"participants"`
	OverallAverage float64                                  `json:"overall_average"`
}

// EvaluationAggregator folds evaluation rows into per-competency, per-participant summaries. It
// holds no state; every call recomputes from the rows it is given.
type EvaluationAggregator struct {
	cfg AggregatorConfig
}

func NewEvaluationAggregator(cfg AggregatorConfig) *EvaluationAggregator {
	d := DefaultAggregatorConfig()
	if cfg.MinTrendScores <= 0 {
		cfg.MinTrendScores = d.MinTrendScores
	}
	if cfg.TrendMargin < 0 {
		cfg.TrendMargin = d.TrendMargin
	}
	return &EvaluationAggregator{cfg: cfg}
}

func (a *EvaluationAggregator) Summarize(competencies []string, participants []types.Participant, rows []*types.CompetencyEvaluation) map[string]CompetencySummary {
	ordered := make([]*types.CompetencyEvaluation, 0, len(rows))
	for _, r := range rows {
		if r != nil {
			ordered = append(ordered, r)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].ChunkVersion != ordered[j].ChunkVersion {
			return ordered[i].ChunkVersion < ordered[j].ChunkVersion
		}
		return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
	})

	byID := map[uuid.UUID]types.Participant{}
	for _, p := range participants {
		byID[p.ID] = p
	}

	out := map[string]CompetencySummary{}
	for _, id := range competencies {
		out[id] = CompetencySummary{CompetencyID: id, Participants: map[string]*ParticipantCompetencySummary{}}
	}
	for _, r := range ordered {
		cs, ok := out[r.CompetencyID]
		if !ok {
			cs = CompetencySummary{CompetencyID: r.CompetencyID, Participants: map[string]*ParticipantCompetencySummary{}}
			out[r.CompetencyID] = cs
		}
		key := r.ParticipantID.String()
		ps, ok := cs.Participants[key]
		if !ok {
			ps = &ParticipantCompetencySummary{ParticipantID: r.ParticipantID, Scores: []int{}}
			if p, found := byID[r.ParticipantID]; found {
				ps.ParticipantName = p.Name
				ps.RoleCode = p.RoleCode
			}
			cs.Participants[key] = ps
		}
		ps.EvaluationCount++
		ps.EvidenceCount += evidenceCount(r.Evidence)
		if r.EvidenceStrength == types.EvidenceStrong {
			ps.StrongEvidenceCount++
		}
		if r.CountTowardOverall && r.Score > 0 {
			ps.Scores = append(ps.Scores, r.Score)
			score := r.Score
			ps.LatestScore = &score
		}
	}

	for id, cs := range out {
		var averages []float64
		for _, ps := range cs.Participants {
			if len(ps.Scores) == 0 {
				continue
			}
			ps.AverageScore = round1(mean(ps.Scores))
			averages = append(averages, ps.AverageScore)
			ps.Trend = a.trend(ps.Scores)
		}
		if len(averages) > 0 {
			sum := 0.0
			for _, v := range averages {
				sum += v
			}
			cs.OverallAverage = round1(sum / float64(len(averages)))
		}
		out[id] = cs
	}
	return out
}

// trend compares the first and second half of the chronological scores. Odd counts put the
// extra score in the second half.
func (a *EvaluationAggregator) trend(scores []int) *string {
	if len(scores) < a.cfg.MinTrendScores {
		return nil
	}
	mid := len(scores) / 2
	first := mean(scores[:mid])
	second := mean(scores[mid:])
	label := TrendStable
	switch {
	case second-first > a.cfg.TrendMargin:
		label = TrendImproving
	case first-second > a.cfg.TrendMargin:
		label = TrendDeclining
	}
	return &label
}

func mean(xs []int) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0
	for _, x := range xs {
		sum += x
	}
	return float64(sum) / float64(len(xs))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func evidenceCount(raw []byte) int {
	if len(raw) == 0 {
		return 0
	}
	var quotes []string
	if err := json.Unmarshal(raw, &quotes); err != nil {
		return 0
	}
	return len(quotes)
}
