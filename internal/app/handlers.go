package app

import (
	"gorm.io/gorm"

	httpH "github.com/yungbote/casestudy-backend/internal/http/handlers"
	"github.com/yungbote/casestudy-backend/internal/platform/logger"
)

type Handlers struct {
	Health     *httpH.HealthHandler
	Session    *httpH.SessionHandler
	Transcript *httpH.TranscriptHandler
	Evaluation *httpH.EvaluationHandler
	Speaker    *httpH.SpeakerHandler
	Stream     *httpH.StreamHandler
}

func wireHandlers(db *gorm.DB, log *logger.Logger, services Services) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Health:     httpH.NewHealthHandler(db),
		Session:    httpH.NewSessionHandler(services.Session),
		Transcript: httpH.NewTranscriptHandler(services.TranscriptChunk),
		Evaluation: httpH.NewEvaluationHandler(services.EvaluationQuery),
		Speaker:    httpH.NewSpeakerHandler(services.SpeakerIdentifier, services.SpeakerCorrection),
		Stream:     httpH.NewStreamHandler(services.StreamCredentials),
	}
}
