package casestudy

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	LevelNeedsImprovement    = "needs_improvement"
	LevelMeetsRequirements   = "meets_requirements"
	LevelExceedsRequirements = "exceeds_requirements"
)

const (
	EvidenceStrong       = "strong"
	EvidenceModerate     = "moderate"
	EvidenceWeak         = "weak"
	EvidenceInsufficient = "insufficient"
)

// LevelForScore maps a clamped score to its level. Score 0 (no evidence) has no level.
func LevelForScore(score int) string {
	switch {
	case score <= 0:
		return ""
	case score <= 2:
		return LevelNeedsImprovement
	case score == 3:
		return LevelMeetsRequirements
	default:
		return LevelExceedsRequirements
	}
}

type CompetencyEvaluation struct {
	ID                uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	SessionID         uuid.UUID `gorm:"type:uuid;not null;index" json:"session_id"`
	ParticipantID     uuid.UUID `gorm:"type:uuid;not null;index;index:idx_case_study_eval_unique,unique,priority:2" json:"participant_id"`
	TranscriptChunkID uuid.UUID `gorm:"type:uuid;not null;index;index:idx_case_study_eval_unique,unique,priority:1" json:"transcript_chunk_id"`
	ChunkVersion      int64     `gorm:"column:chunk_version;not null;index" json:"chunk_version"`
	CompetencyID      string    `gorm:"column:competency_id;not null;index;index:idx_case_study_eval_unique,unique,priority:3" json:"competency_id"`

	Score     int    `gorm:"column:score;not null" json:"score"`
	Level     string `gorm:"column:level;not null;default:''" json:"level"`
	Rationale string `gorm:"column:rationale;type:text;not null;default:''" json:"rationale"`

	Evidence             datatypes.JSON `gorm:"type:jsonb;column:evidence;not null" json:"evidence"`
	EvidenceStrength     string         `gorm:"column:evidence_strength;not null" json:"evidence_strength"`
	ConfidenceScore      float64        `gorm:"column:confidence_score;not null" json:"confidence_score"`
	BehavioralIndicators datatypes.JSON `gorm:"type:jsonb;column:behavioral_indicators;not null" json:"behavioral_indicators"`
	CountTowardOverall   bool           `gorm:"column:count_toward_overall;not null" json:"count_toward_overall"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
}

func (CompetencyEvaluation) TableName() string { return "case_study_competency_evaluation" }
