package services

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/casestudy-backend/internal/data/repos"
	types "github.com/yungbote/casestudy-backend/internal/domain"
	"github.com/yungbote/casestudy-backend/internal/platform/apierr"
	"github.com/yungbote/casestudy-backend/internal/platform/dbctx"
	"github.com/yungbote/casestudy-backend/internal/platform/logger"
)

type ParticipantInput struct {
	Name         string `json:"name"`
	RoleCode     string `json:"role_code"`
	RoleName     string `json:"role_name"`
	SpeakerLabel string `json:"speaker_label"`
}

type CreateSessionInput struct {
	Name                    string             `json:"name"`
	Scenario                string             `json:"scenario"`
	ExpectedDurationSeconds int                `json:"expected_duration_seconds"`
	Participants            []ParticipantInput `json:"participants"`
}

type SessionProgress struct {
	SessionID               uuid.UUID `json:"session_id"`
	Status                  string    `json:"status"`
	ChunkCount              int       `json:"chunk_count"`
	LatestVersion           int64     `json:"latest_version"`
	HasFullTranscript       bool      `json:"has_full_transcript"`
	DiscussionSeconds       int       `json:"discussion_seconds"`
	ExpectedDurationSeconds int       `json:"expected_duration_seconds"`
	ProgressPercent         float64   `json:"progress_percent"`
	EvaluationCount         int       `json:"evaluation_count"`
}

type SessionService interface {
	Create(ctx context.Context, in CreateSessionInput) (*types.Session, error)
	Get(ctx context.Context, id uuid.UUID) (*types.Session, error)
	Transition(ctx context.Context, id uuid.UUID, to types.SessionStatus) (*types.Session, error)
	Progress(ctx context.Context, id uuid.UUID) (*SessionProgress, error)
}

type sessionService struct {
	db       *gorm.DB
	log      *logger.Logger
	sessions repos.SessionRepo
	chunks   repos.TranscriptChunkRepo
	evals    repos.CompetencyEvaluationRepo
}

func NewSessionService(db *gorm.DB, baseLog *logger.Logger, sessions repos.SessionRepo, chunks repos.TranscriptChunkRepo, evals repos.CompetencyEvaluationRepo) SessionService {
	return &sessionService{
		db:       db,
		log:      baseLog.With("service", "SessionService"),
		sessions: sessions,
		chunks:   chunks,
		evals:    evals,
	}
}

func (s *sessionService) Create(ctx context.Context, in CreateSessionInput) (*types.Session, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apierr.BadRequest("invalid_session", fmt.Errorf("name is required"))
	}
	if len(in.Participants) == 0 || len(in.Participants) > types.MaxParticipants {
		return nil, apierr.BadRequest("invalid_participants", fmt.Errorf("a session needs 1 to %d participants", types.MaxParticipants))
	}
	expected := in.ExpectedDurationSeconds
	if expected <= 0 {
		expected = 7200
	}

	used := map[string]bool{}
	for _, p := range in.Participants {
		if code := strings.ToUpper(strings.TrimSpace(p.RoleCode)); code != "" {
			if !types.ValidRoleCode(code) {
				return nil, apierr.BadRequest("invalid_role_code", fmt.Errorf("unknown role code %q", p.RoleCode))
			}
			if used[code] {
				return nil, apierr.BadRequest("duplicate_role_code", fmt.Errorf("role code %q used twice", code))
			}
			used[code] = true
		}
	}

	session := &types.Session{
		Name:                    name,
		Scenario:                strings.TrimSpace(in.Scenario),
		Status:                  string(types.SessionStatusCreated),
		ExpectedDurationSeconds: expected,
	}
	for _, p := range in.Participants {
		pname := strings.TrimSpace(p.Name)
		if pname == "" {
			return nil, apierr.BadRequest("invalid_participants", fmt.Errorf("participant name is required"))
		}
		code := strings.ToUpper(strings.TrimSpace(p.RoleCode))
		if code == "" {
			code = nextFreeRoleCode(used)
			used[code] = true
		}
		session.Participants = append(session.Participants, types.Participant{
			Name:         pname,
			RoleCode:     code,
			RoleName:     strings.TrimSpace(p.RoleName),
			SpeakerLabel: strings.TrimSpace(p.SpeakerLabel),
		})
	}

	out, err := s.sessions.Create(dbctx.Of(ctx), session)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	s.log.Info("session created", "session_id", out.ID, "participants", len(out.Participants))
	return out, nil
}

func nextFreeRoleCode(used map[string]bool) string {
	for _, c := range types.RoleCodes {
		if !used[c] {
			return c
		}
	}
	return ""
}

func (s *sessionService) Get(ctx context.Context, id uuid.UUID) (*types.Session, error) {
	return loadSession(dbctx.Of(ctx), s.sessions, id)
}

func loadSession(dbc dbctx.Context, sessions repos.SessionRepo, id uuid.UUID) (*types.Session, error) {
	if id == uuid.Nil {
		return nil, apierr.BadRequest("invalid_session_id", fmt.Errorf("missing session id"))
	}
	session, err := sessions.GetByID(dbc, id)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if session == nil {
		return nil, apierr.NotFound("session_not_found", fmt.Errorf("%w: %s", ErrSessionNotFound, id))
	}
	return session, nil
}

func (s *sessionService) Transition(ctx context.Context, id uuid.UUID, to types.SessionStatus) (*types.Session, error) {
	if !to.Valid() {
		return nil, apierr.BadRequest("invalid_status", fmt.Errorf("unknown status %q", to))
	}
	dbc := dbctx.Of(ctx)
	session, err := loadSession(dbc, s.sessions, id)
	if err != nil {
		return nil, err
	}
	from := types.SessionStatus(session.Status)
	if !from.CanTransition(to) {
		return nil, apierr.Conflict("invalid_transition", fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to))
	}
	ok, err := s.sessions.CompareAndSetStatus(dbc, id, from, to)
	if err != nil {
		return nil, fmt.Errorf("update status: %w", err)
	}
	if !ok {
		return nil, apierr.Conflict("invalid_transition", fmt.Errorf("%w: status changed concurrently", ErrInvalidTransition))
	}
	s.log.Info("session status changed", "session_id", id, "from", from, "to", to)
	session.Status = string(to)
	return session, nil
}

func (s *sessionService) Progress(ctx context.Context, id uuid.UUID) (*SessionProgress, error) {
	dbc := dbctx.Of(ctx)
	session, err := loadSession(dbc, s.sessions, id)
	if err != nil {
		return nil, err
	}
	chunks, err := s.chunks.ListAsc(dbc, id)
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}
	rows, err := s.evals.ListBySession(dbc, id, repos.EvaluationFilter{})
	if err != nil {
		return nil, fmt.Errorf("list evaluations: %w", err)
	}

	p := &SessionProgress{
		SessionID:               id,
		Status:                  session.Status,
		ChunkCount:              len(chunks),
		ExpectedDurationSeconds: session.ExpectedDurationSeconds,
		EvaluationCount:         len(rows),
	}
	rolling := 0
	full := 0
	for _, c := range chunks {
		p.LatestVersion = c.Version
		switch types.ChunkKind(c.Kind) {
		case types.ChunkKindFull:
			p.HasFullTranscript = true
			full = c.DurationSeconds
		default:
			rolling += c.DurationSeconds
		}
	}
	// A full transcript covers the whole discussion; rolling chunks are only a running total.
	p.DiscussionSeconds = rolling
	if p.HasFullTranscript {
		p.DiscussionSeconds = full
	}
	if p.ExpectedDurationSeconds > 0 {
		pct := float64(p.DiscussionSeconds) / float64(p.ExpectedDurationSeconds) * 100
		p.ProgressPercent = math.Min(100, math.Round(pct*10)/10)
	}
	return p, nil
}
