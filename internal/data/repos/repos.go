package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/casestudy-backend/internal/data/repos/casestudy"
	"github.com/yungbote/casestudy-backend/internal/platform/logger"
)

type SessionRepo = casestudy.SessionRepo
type ParticipantRepo = casestudy.ParticipantRepo
type TranscriptChunkRepo = casestudy.TranscriptChunkRepo
type CompetencyEvaluationRepo = casestudy.CompetencyEvaluationRepo
type SpeakerCorrectionRepo = casestudy.SpeakerCorrectionRepo

type EvaluationFilter = casestudy.EvaluationFilter

func NewSessionRepo(db *gorm.DB, baseLog *logger.Logger) SessionRepo {
	return casestudy.NewSessionRepo(db, baseLog)
}

func NewParticipantRepo(db *gorm.DB, baseLog *logger.Logger) ParticipantRepo {
	return casestudy.NewParticipantRepo(db, baseLog)
}

func NewTranscriptChunkRepo(db *gorm.DB, baseLog *logger.Logger) TranscriptChunkRepo {
	return casestudy.NewTranscriptChunkRepo(db, baseLog)
}

func NewCompetencyEvaluationRepo(db *gorm.DB, baseLog *logger.Logger) CompetencyEvaluationRepo {
	return casestudy.NewCompetencyEvaluationRepo(db, baseLog)
}

func NewSpeakerCorrectionRepo(db *gorm.DB, baseLog *logger.Logger) SpeakerCorrectionRepo {
	return casestudy.NewSpeakerCorrectionRepo(db, baseLog)
}
