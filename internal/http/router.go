package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/casestudy-backend/internal/http/handlers"
	httpMW "github.com/yungbote/casestudy-backend/internal/http/middleware"
	"github.com/yungbote/casestudy-backend/internal/observability"
	"github.com/yungbote/casestudy-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log *logger.Logger
	// ServiceName names the otelgin server spans; empty disables the tracing middleware.
	ServiceName string
	Metrics     *observability.Metrics
	CORSOrigins []string

	HealthHandler     *httpH.HealthHandler
	SessionHandler    *httpH.SessionHandler
	TranscriptHandler *httpH.TranscriptHandler
	EvaluationHandler *httpH.EvaluationHandler
	SpeakerHandler    *httpH.SpeakerHandler
	StreamHandler     *httpH.StreamHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORSWithOrigins(cfg.CORSOrigins))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
		r.GET("/readyz", cfg.HealthHandler.Ready)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapF(cfg.Metrics.WriteHTTP))
	}

	api := r.Group("/api")
	sessions := api.Group("/sessions")
	{
		// Session registry
		if cfg.SessionHandler != nil {
			sessions.POST("", cfg.SessionHandler.Create)
			sessions.GET("/:id", cfg.SessionHandler.Get)
			sessions.POST("/:id/status", cfg.SessionHandler.UpdateStatus)
			sessions.GET("/:id/progress", cfg.SessionHandler.Progress)
		}

		// Transcript chunks
		if cfg.TranscriptHandler != nil {
			sessions.POST("/:id/chunks", cfg.TranscriptHandler.AppendChunk)
			sessions.GET("/:id/chunks", cfg.TranscriptHandler.ListChunks)
			sessions.GET("/:id/transcript", cfg.TranscriptHandler.Transcript)
		}

		// Evaluations
		if cfg.EvaluationHandler != nil {
			sessions.GET("/:id/evaluations", cfg.EvaluationHandler.List)
		}

		// Capture support
		if cfg.StreamHandler != nil {
			sessions.POST("/:id/stream-credentials", cfg.StreamHandler.IssueCredentials)
		}
		if cfg.SpeakerHandler != nil {
			sessions.POST("/:id/speakers/identify", cfg.SpeakerHandler.Identify)
			sessions.POST("/:id/speakers/corrections", cfg.SpeakerHandler.SubmitCorrection)
			sessions.GET("/:id/speakers/corrections", cfg.SpeakerHandler.ListCorrections)
		}
	}

	return r
}
