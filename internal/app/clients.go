package app

import (
	"fmt"
	"strings"

	"github.com/yungbote/casestudy-backend/internal/evaluation/framework"
	"github.com/yungbote/casestudy-backend/internal/platform/logger"
	"github.com/yungbote/casestudy-backend/internal/platform/openai"
	"github.com/yungbote/casestudy-backend/internal/platform/soniox"
	"github.com/yungbote/casestudy-backend/internal/realtime/bus"
)

type Clients struct {
	Bus       bus.Bus
	OpenAI    openai.Client
	Soniox    soniox.KeyIssuer
	Framework *framework.Framework
}

func wireClients(log *logger.Logger, cfg Config) (Clients, error) {
	log.Info("Wiring clients...")

	// Redis (optional)
	events := bus.Nop()
	if strings.TrimSpace(cfg.Redis.Addr) != "" {
		b, err := bus.NewRedisBus(log, cfg.Redis)
		if err != nil {
			return Clients{}, fmt.Errorf("init redis event bus: %w", err)
		}
		events = b
	}

	// Openai
	ai, err := openai.NewClientWithConfig(log, cfg.OpenAI)
	if err != nil {
		_ = events.Close()
		return Clients{}, fmt.Errorf("init openai client: %w", err)
	}

	// Soniox (optional; stream credentials answer 503 without it)
	var issuer soniox.KeyIssuer
	if strings.TrimSpace(cfg.Soniox.APIKey) != "" {
		issuer, err = soniox.NewClient(log, cfg.Soniox)
		if err != nil {
			_ = events.Close()
			return Clients{}, fmt.Errorf("init soniox client: %w", err)
		}
	} else {
		log.Warn("SONIOX_API_KEY not set; stream credentials disabled")
	}

	fw, err := framework.Load(cfg.FrameworkPath)
	if err != nil {
		_ = events.Close()
		return Clients{}, fmt.Errorf("load competency framework: %w", err)
	}

	return Clients{
		Bus:       events,
		OpenAI:    ai,
		Soniox:    issuer,
		Framework: fw,
	}, nil
}
