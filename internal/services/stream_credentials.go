package services

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/casestudy-backend/internal/data/repos"
	types "github.com/yungbote/casestudy-backend/internal/domain"
	"github.com/yungbote/casestudy-backend/internal/platform/apierr"
	"github.com/yungbote/casestudy-backend/internal/platform/dbctx"
	"github.com/yungbote/casestudy-backend/internal/platform/logger"
	"github.com/yungbote/casestudy-backend/internal/platform/soniox"
)

const DefaultChunkIntervalSeconds = 60

type StreamSessionInfo struct {
	ID                      uuid.UUID           `json:"id"`
	Name                    string              `json:"name"`
	Status                  string              `json:"status"`
	ExpectedDurationSeconds int                 `json:"expected_duration_seconds"`
	Participants            []types.Participant `json:"participants"`
}

type StreamCredentials struct {
	APIKey               string              `json:"api_key"`
	ExpiresAt            time.Time           `json:"expires_at"`
	WebSocketURL         string              `json:"websocket_url"`
	Config               soniox.StreamConfig `json:"config"`
	ChunkIntervalSeconds int                 `json:"chunk_interval_seconds"`
	Session              StreamSessionInfo   `json:"session"`
}

type StreamCredentialService interface {
	Issue(ctx context.Context, sessionID uuid.UUID) (*StreamCredentials, error)
}

type streamCredentialService struct {
	log      *logger.Logger
	sessions repos.SessionRepo
	issuer   soniox.KeyIssuer
	timeout  time.Duration
}

func NewStreamCredentialService(baseLog *logger.Logger, sessions repos.SessionRepo, issuer soniox.KeyIssuer, timeout time.Duration) StreamCredentialService {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &streamCredentialService{
		log:      baseLog.With("service", "StreamCredentialService"),
		sessions: sessions,
		issuer:   issuer,
		timeout:  timeout,
	}
}

func (s *streamCredentialService) Issue(ctx context.Context, sessionID uuid.UUID) (*StreamCredentials, error) {
	session, err := loadSession(dbctx.Of(ctx), s.sessions, sessionID)
	if err != nil {
		return nil, err
	}
	if s.issuer == nil {
		return nil, apierr.New(http.StatusServiceUnavailable, "stt_not_configured", fmt.Errorf("speech-to-text provider not configured"))
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	key, err := s.issuer.TemporaryKey(callCtx)
	if err != nil {
		s.log.Warn("temporary key request failed", "session_id", sessionID, "error", err)
		return nil, apierr.New(http.StatusBadGateway, "stt_credentials_failed", err)
	}

	terms := make([]string, 0, len(session.Participants))
	for _, p := range session.Participants {
		terms = append(terms, p.Name)
	}
	return &StreamCredentials{
		APIKey:               key.APIKey,
		ExpiresAt:            key.ExpiresAt,
		WebSocketURL:         soniox.DefaultWebSocketURL,
		Config:               soniox.DiscussionConfig(key.APIKey, len(session.Participants), terms),
		ChunkIntervalSeconds: DefaultChunkIntervalSeconds,
		Session: StreamSessionInfo{
			ID:                      session.ID,
			Name:                    session.Name,
			Status:                  session.Status,
			ExpectedDurationSeconds: session.ExpectedDurationSeconds,
			Participants:            session.Participants,
		},
	}, nil
}
