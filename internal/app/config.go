package app

import (
	"strings"
	"time"

	"github.com/yungbote/casestudy-backend/internal/data/db"
	"github.com/yungbote/casestudy-backend/internal/jobs/worker"
	"github.com/yungbote/casestudy-backend/internal/observability"
	"github.com/yungbote/casestudy-backend/internal/platform/envutil"
	"github.com/yungbote/casestudy-backend/internal/platform/logger"
	"github.com/yungbote/casestudy-backend/internal/platform/openai"
	"github.com/yungbote/casestudy-backend/internal/platform/soniox"
	"github.com/yungbote/casestudy-backend/internal/realtime/bus"
	"github.com/yungbote/casestudy-backend/internal/services"
)

type Config struct {
	Port        string
	MetricsAddr string
	CORSOrigins []string

	// Empty means the built-in competency framework.
	FrameworkPath string

	Otel   observability.OtelConfig
	DB     db.Config
	Redis  bus.RedisConfig
	OpenAI openai.Config
	Soniox soniox.Config

	Worker     worker.Config
	Evaluator  services.EvaluatorConfig
	Aggregator services.AggregatorConfig

	IdentifyTimeout   time.Duration
	CredentialTimeout time.Duration
	ShutdownTimeout   time.Duration
}

func LoadConfig(log *logger.Logger) Config {
	cfg := Config{
		Port:              envutil.String("PORT", "8080"),
		MetricsAddr:       envutil.String("METRICS_ADDR", ""),
		CORSOrigins:       envutil.List("CORS_ALLOWED_ORIGINS", nil),
		FrameworkPath:     envutil.String("EVAL_FRAMEWORK_PATH", ""),
		Otel:              observability.OtelConfigFromEnv(),
		DB:                db.ConfigFromEnv(),
		Redis:             bus.RedisConfigFromEnv(),
		OpenAI:            openai.ConfigFromEnv(),
		Soniox:            soniox.ConfigFromEnv(),
		Worker:            worker.ConfigFromEnv("evaluation"),
		Evaluator:         services.EvaluatorConfigFromEnv(),
		Aggregator:        services.AggregatorConfigFromEnv(),
		IdentifyTimeout:   envutil.Duration("SPEAKER_IDENTIFY_TIMEOUT_SECONDS", 20*time.Second),
		CredentialTimeout: envutil.Duration("STREAM_CREDENTIAL_TIMEOUT_SECONDS", 10*time.Second),
		ShutdownTimeout:   envutil.Duration("SHUTDOWN_TIMEOUT_SECONDS", 30*time.Second),
	}
	cfg.Port = strings.TrimPrefix(strings.TrimSpace(cfg.Port), ":")
	log.Info("config loaded",
		"port", cfg.Port,
		"env", cfg.Otel.Environment,
		"tracing", cfg.Otel.Enabled,
		"db_driver", cfg.DB.Driver,
		"redis", cfg.Redis.Addr != "",
		"soniox", strings.TrimSpace(cfg.Soniox.APIKey) != "",
		"openai_model", cfg.OpenAI.Model,
		"eval_workers", cfg.Worker.Concurrency,
		"eval_queue", cfg.Worker.QueueSize,
		"framework_path", cfg.FrameworkPath,
	)
	return cfg
}
