package app

import (
	"github.com/yungbote/casestudy-backend/internal/http"
	"github.com/yungbote/casestudy-backend/internal/observability"
	"github.com/yungbote/casestudy-backend/internal/platform/logger"
)

func wireServer(log *logger.Logger, cfg Config, handlers Handlers, metrics *observability.Metrics) *http.Server {
	serviceName := ""
	if cfg.Otel.Enabled {
		serviceName = cfg.Otel.ServiceName
	}
	return http.NewServer(http.RouterConfig{
		Log:               log.With("component", "http"),
		ServiceName:       serviceName,
		Metrics:           metrics,
		CORSOrigins:       cfg.CORSOrigins,
		HealthHandler:     handlers.Health,
		SessionHandler:    handlers.Session,
		TranscriptHandler: handlers.Transcript,
		EvaluationHandler: handlers.Evaluation,
		SpeakerHandler:    handlers.Speaker,
		StreamHandler:     handlers.Stream,
	})
}
