package domain

import (
	"github.com/yungbote/casestudy-backend/internal/domain/casestudy"
)

type SessionStatus = casestudy.SessionStatus

const (
	SessionStatusCreated              = casestudy.SessionStatusCreated
	SessionStatusDiscussionInProgress = casestudy.SessionStatusDiscussionInProgress
	SessionStatusDiscussionCompleted  = casestudy.SessionStatusDiscussionCompleted
	SessionStatusInterviewInProgress  = casestudy.SessionStatusInterviewInProgress
	SessionStatusCompleted            = casestudy.SessionStatusCompleted
)

type ChunkKind = casestudy.ChunkKind

const (
	ChunkKindRolling = casestudy.ChunkKindRolling
	ChunkKindFull    = casestudy.ChunkKindFull
)

const MaxParticipants = casestudy.MaxParticipants

var RoleCodes = casestudy.RoleCodes

func ValidRoleCode(code string) bool { return casestudy.ValidRoleCode(code) }

const (
	LevelNeedsImprovement    = casestudy.LevelNeedsImprovement
	LevelMeetsRequirements   = casestudy.LevelMeetsRequirements
	LevelExceedsRequirements = casestudy.LevelExceedsRequirements

	EvidenceStrong       = casestudy.EvidenceStrong
	EvidenceModerate     = casestudy.EvidenceModerate
	EvidenceWeak         = casestudy.EvidenceWeak
	EvidenceInsufficient = casestudy.EvidenceInsufficient
)

func LevelForScore(score int) string { return casestudy.LevelForScore(score) }

type Session = casestudy.Session
type Participant = casestudy.Participant
type TranscriptChunk = casestudy.TranscriptChunk
type CompetencyEvaluation = casestudy.CompetencyEvaluation
type SpeakerCorrection = casestudy.SpeakerCorrection

// Models returns every persisted model, in migration order.
func Models() []any {
	return []any{
		&Session{},
		&Participant{},
		&TranscriptChunk{},
		&CompetencyEvaluation{},
		&SpeakerCorrection{},
	}
}
