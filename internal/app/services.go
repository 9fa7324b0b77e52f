package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/casestudy-backend/internal/jobs/worker"
	"github.com/yungbote/casestudy-backend/internal/platform/logger"
	"github.com/yungbote/casestudy-backend/internal/services"
	"github.com/yungbote/casestudy-backend/internal/transcription/speakerid"
)

type Services struct {
	Session           services.SessionService
	TranscriptChunk   services.TranscriptChunkService
	Evaluator         services.CompetencyEvaluator
	EvaluationQuery   services.EvaluationQueryService
	SpeakerIdentifier services.SpeakerIdentificationService
	SpeakerCorrection services.SpeakerCorrectionService
	StreamCredentials services.StreamCredentialService

	EvaluationPool *worker.Pool
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, repos Repos, clients Clients) Services {
	log.Info("Wiring services...")

	pool := worker.NewPool(log, cfg.Worker)
	evaluator := services.NewCompetencyEvaluator(log, clients.OpenAI, clients.Framework, repos.Session, repos.CompetencyEvaluation, clients.Bus, cfg.Evaluator)
	scheduler := services.NewPoolScheduler(pool, evaluator)
	aggregator := services.NewEvaluationAggregator(cfg.Aggregator)

	return Services{
		Session:           services.NewSessionService(db, log, repos.Session, repos.TranscriptChunk, repos.CompetencyEvaluation),
		TranscriptChunk:   services.NewTranscriptChunkService(db, log, repos.Session, repos.TranscriptChunk, clients.Bus, scheduler),
		Evaluator:         evaluator,
		EvaluationQuery:   services.NewEvaluationQueryService(log, repos.Session, repos.TranscriptChunk, repos.CompetencyEvaluation, clients.Framework, aggregator),
		SpeakerIdentifier: services.NewSpeakerIdentificationService(log, repos.Session, speakerid.NewLLMInferrer(clients.OpenAI), cfg.IdentifyTimeout),
		SpeakerCorrection: services.NewSpeakerCorrectionService(db, log, repos.Session, repos.SpeakerCorrection, clients.Bus),
		StreamCredentials: services.NewStreamCredentialService(log, repos.Session, clients.Soniox, cfg.CredentialTimeout),
		EvaluationPool:    pool,
	}
}
