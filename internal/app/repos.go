package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/casestudy-backend/internal/data/repos"
	"github.com/yungbote/casestudy-backend/internal/platform/logger"
)

type Repos struct {
	Session              repos.SessionRepo
	Participant          repos.ParticipantRepo
	TranscriptChunk      repos.TranscriptChunkRepo
	CompetencyEvaluation repos.CompetencyEvaluationRepo
	SpeakerCorrection    repos.SpeakerCorrectionRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Session:              repos.NewSessionRepo(db, log),
		Participant:          repos.NewParticipantRepo(db, log),
		TranscriptChunk:      repos.NewTranscriptChunkRepo(db, log),
		CompetencyEvaluation: repos.NewCompetencyEvaluationRepo(db, log),
		SpeakerCorrection:    repos.NewSpeakerCorrectionRepo(db, log),
	}
}
