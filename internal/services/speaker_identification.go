package services

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/casestudy-backend/internal/data/repos"
	"github.com/yungbote/casestudy-backend/internal/observability"
	"github.com/yungbote/casestudy-backend/internal/platform/apierr"
	"github.com/yungbote/casestudy-backend/internal/platform/dbctx"
	"github.com/yungbote/casestudy-backend/internal/platform/logger"
	"github.com/yungbote/casestudy-backend/internal/transcription/speakerid"
)

const maxIdentifySampleChars = 4000

type SpeakerIdentificationService interface {
	Identify(ctx context.Context, sessionID uuid.UUID, req speakerid.Request) (speakerid.Guess, error)
}

type speakerIdentificationService struct {
	log      *logger.Logger
	sessions repos.SessionRepo
	inferrer speakerid.NameInferrer
	timeout  time.Duration
}

func NewSpeakerIdentificationService(baseLog *logger.Logger, sessions repos.SessionRepo, inferrer speakerid.NameInferrer, timeout time.Duration) SpeakerIdentificationService {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &speakerIdentificationService{
		log:      baseLog.With("service", "SpeakerIdentificationService"),
		sessions: sessions,
		inferrer: inferrer,
		timeout:  timeout,
	}
}

func (s *speakerIdentificationService) Identify(ctx context.Context, sessionID uuid.UUID, req speakerid.Request) (speakerid.Guess, error) {
	if req.Speaker <= 0 {
		return speakerid.Guess{}, apierr.BadRequest("invalid_speaker", fmt.Errorf("speaker tag must be positive"))
	}
	sample := strings.TrimSpace(req.Sample)
	if sample == "" {
		return speakerid.Guess{}, apierr.BadRequest("invalid_sample", fmt.Errorf("sample is required"))
	}
	if rs := []rune(sample); len(rs) > maxIdentifySampleChars {
		sample = string(rs[len(rs)-maxIdentifySampleChars:])
	}
	req.Sample = sample

	session, err := loadSession(dbctx.Of(ctx), s.sessions, sessionID)
	if err != nil {
		return speakerid.Guess{}, err
	}
	if len(req.Participants) == 0 {
		for _, p := range session.Participants {
			req.Participants = append(req.Participants, speakerid.ParticipantHint{Name: p.Name, RoleCode: p.RoleCode})
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	guess, err := s.inferrer.Infer(callCtx, req)
	if err != nil {
		s.log.Warn("speaker identification failed", "session_id", sessionID, "speaker", req.Speaker, "error", err)
		return speakerid.Guess{}, apierr.New(http.StatusBadGateway, "identification_failed", err)
	}
	observability.Current().IncSpeakerGuess(string(guess.Confidence))
	return guess, nil
}
