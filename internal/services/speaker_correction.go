package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/casestudy-backend/internal/data/repos"
	types "github.com/yungbote/casestudy-backend/internal/domain"
	"github.com/yungbote/casestudy-backend/internal/platform/apierr"
	"github.com/yungbote/casestudy-backend/internal/platform/ctxutil"
	"github.com/yungbote/casestudy-backend/internal/platform/dbctx"
	"github.com/yungbote/casestudy-backend/internal/platform/logger"
	"github.com/yungbote/casestudy-backend/internal/realtime/bus"
	"github.com/yungbote/casestudy-backend/internal/transcription/speakerid"
)

const (
	MaxSpeakerTag        = 32
	maxCorrectionNameLen = 200
)

type SpeakerCorrectionInput struct {
	SessionID  uuid.UUID
	SpeakerTag int
	// Empty or a placeholder releases the tag.
	Name string
}

// SpeakerCorrectionService records operator corrections for capture clients to pick up.
type SpeakerCorrectionService interface {
	Submit(ctx context.Context, in SpeakerCorrectionInput) (*types.SpeakerCorrection, error)
	ListAfter(ctx context.Context, sessionID uuid.UUID, afterSeq int64) ([]*types.SpeakerCorrection, error)
}

type speakerCorrectionService struct {
	db          *gorm.DB
	log         *logger.Logger
	sessions    repos.SessionRepo
	corrections repos.SpeakerCorrectionRepo
	events      bus.Bus
	locks       *keyedMutex
}

func NewSpeakerCorrectionService(db *gorm.DB, baseLog *logger.Logger, sessions repos.SessionRepo, corrections repos.SpeakerCorrectionRepo, events bus.Bus) SpeakerCorrectionService {
	if events == nil {
		events = bus.Nop()
	}
	return &speakerCorrectionService{
		db:          db,
		log:         baseLog.With("service", "SpeakerCorrectionService"),
		sessions:    sessions,
		corrections: corrections,
		events:      events,
		locks:       newKeyedMutex(),
	}
}

func (s *speakerCorrectionService) Submit(ctx context.Context, in SpeakerCorrectionInput) (*types.SpeakerCorrection, error) {
	if in.SpeakerTag <= 0 || in.SpeakerTag > MaxSpeakerTag {
		return nil, apierr.BadRequest("invalid_speaker", fmt.Errorf("speaker tag must be 1..%d", MaxSpeakerTag))
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = speakerid.Placeholder(in.SpeakerTag)
	}
	if len([]rune(name)) > maxCorrectionNameLen {
		return nil, apierr.BadRequest("invalid_name", fmt.Errorf("name longer than %d characters", maxCorrectionNameLen))
	}

	unlock := s.locks.Lock(in.SessionID.String())
	var out *types.SpeakerCorrection
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Of(ctx).WithTx(tx)
		session, err := loadSession(dbc, s.sessions, in.SessionID)
		if err != nil {
			return err
		}
		if types.SessionStatus(session.Status) == types.SessionStatusCompleted {
			return apierr.Conflict("invalid_session_phase", fmt.Errorf("%w: status is %s", ErrSessionClosed, session.Status))
		}
		maxSeq, err := s.corrections.GetMaxSeq(dbc, in.SessionID)
		if err != nil {
			return fmt.Errorf("next seq: %w", err)
		}
		out, err = s.corrections.Create(dbc, &types.SpeakerCorrection{
			SessionID:  in.SessionID,
			Seq:        maxSeq + 1,
			SpeakerTag: in.SpeakerTag,
			Name:       name,
		})
		if err != nil {
			return fmt.Errorf("insert correction: %w", err)
		}
		return nil
	})
	unlock()
	if err != nil {
		return nil, err
	}

	s.log.Info("speaker correction recorded",
		append(ctxutil.LogFields(ctx),
			"session_id", out.SessionID,
			"seq", out.Seq,
			"speaker", out.SpeakerTag,
			"participant_name", out.Name,
		)...,
	)

	pubCtx, cancel := context.WithTimeout(ctxutil.Detach(ctx), 2*time.Second)
	defer cancel()
	ev, err := bus.NewEvent(bus.EventSpeakerCorrected, out.SessionID, map[string]any{
		"seq":     out.Seq,
		"speaker": out.SpeakerTag,
	})
	if err == nil {
		err = s.events.Publish(pubCtx, ev)
	}
	if err != nil {
		s.log.Warn("publish correction event failed", "session_id", out.SessionID, "seq", out.Seq, "error", err)
	}
	return out, nil
}

func (s *speakerCorrectionService) ListAfter(ctx context.Context, sessionID uuid.UUID, afterSeq int64) ([]*types.SpeakerCorrection, error) {
	dbc := dbctx.Of(ctx)
	if _, err := loadSession(dbc, s.sessions, sessionID); err != nil {
		return nil, err
	}
	if afterSeq < 0 {
		return nil, apierr.BadRequest("invalid_after", fmt.Errorf("after must be >= 0"))
	}
	out, err := s.corrections.ListAfter(dbc, sessionID, afterSeq)
	if err != nil {
		return nil, fmt.Errorf("list corrections: %w", err)
	}
	return out, nil
}
