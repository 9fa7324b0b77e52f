package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/casestudy-backend/internal/data/repos"
	types "github.com/yungbote/casestudy-backend/internal/domain"
	"github.com/yungbote/casestudy-backend/internal/observability"
	"github.com/yungbote/casestudy-backend/internal/platform/apierr"
	"github.com/yungbote/casestudy-backend/internal/platform/ctxutil"
	"github.com/yungbote/casestudy-backend/internal/platform/dbctx"
	"github.com/yungbote/casestudy-backend/internal/platform/logger"
	"github.com/yungbote/casestudy-backend/internal/realtime/bus"
)

const (
	MaxRollingChunkSeconds = 120
	DefaultChunkListLimit  = 10
	MaxChunkListLimit      = 100
)

type AppendChunkInput struct {
	SessionID       uuid.UUID
	RawText         string
	DurationSeconds int
	// label -> participant id, name or role code
	SpeakerMapping map[string]string
	Kind           types.ChunkKind
}

// EvaluationScheduler hands a stored chunk to background evaluation.
type EvaluationScheduler interface {
	Schedule(chunk *types.TranscriptChunk) error
}

type ConsolidatedTranscript struct {
	SessionID       uuid.UUID `json:"session_id"`
	Text            string    `json:"text"`
	ChunkCount      int       `json:"chunk_count"`
	LatestVersion   int64     `json:"latest_version"`
	DurationSeconds int       `json:"duration_seconds"`
	FromFull        bool      `json:"from_full_transcript"`
}

type TranscriptChunkService interface {
	Append(ctx context.Context, in AppendChunkInput) (*types.TranscriptChunk, error)
	List(ctx context.Context, sessionID uuid.UUID, sinceVersion int64, limit int) ([]*types.TranscriptChunk, error)
	Latest(ctx context.Context, sessionID uuid.UUID) (*types.TranscriptChunk, error)
	Consolidated(ctx context.Context, sessionID uuid.UUID) (*ConsolidatedTranscript, error)
}

type transcriptChunkService struct {
	db        *gorm.DB
	log       *logger.Logger
	sessions  repos.SessionRepo
	chunks    repos.TranscriptChunkRepo
	events    bus.Bus
	scheduler EvaluationScheduler
	locks     *keyedMutex
}

func NewTranscriptChunkService(db *gorm.DB, baseLog *logger.Logger, sessions repos.SessionRepo, chunks repos.TranscriptChunkRepo, events bus.Bus, scheduler EvaluationScheduler) TranscriptChunkService {
	if events == nil {
		events = bus.Nop()
	}
	return &transcriptChunkService{
		db:        db,
		log:       baseLog.With("service", "TranscriptChunkService"),
		sessions:  sessions,
		chunks:    chunks,
		events:    events,
		scheduler: scheduler,
		locks:     newKeyedMutex(),
	}
}

func validateAppend(in *AppendChunkInput) error {
	if in.SessionID == uuid.Nil {
		return apierr.BadRequest("invalid_session_id", fmt.Errorf("missing session id"))
	}
	if strings.TrimSpace(in.RawText) == "" {
		return apierr.BadRequest("invalid_chunk", fmt.Errorf("raw_text is required"))
	}
	if in.Kind == "" {
		in.Kind = types.ChunkKindRolling
	}
	switch in.Kind {
	case types.ChunkKindRolling:
		if in.DurationSeconds < 1 || in.DurationSeconds > MaxRollingChunkSeconds {
			return apierr.BadRequest("invalid_chunk", fmt.Errorf("rolling chunk duration must be 1..%d seconds", MaxRollingChunkSeconds))
		}
	case types.ChunkKindFull:
		if in.DurationSeconds < 1 {
			return apierr.BadRequest("invalid_chunk", fmt.Errorf("full transcript duration must be at least 1 second"))
		}
	default:
		return apierr.BadRequest("invalid_chunk", fmt.Errorf("unknown chunk kind %q", in.Kind))
	}
	return nil
}

func (s *transcriptChunkService) Append(ctx context.Context, in AppendChunkInput) (*types.TranscriptChunk, error) {
	ctx, span := otel.Tracer("services").Start(ctx, "transcript.append")
	defer span.End()

	if err := validateAppend(&in); err != nil {
		observability.Current().IncChunkAppend(string(in.Kind), "invalid")
		return nil, err
	}
	span.SetAttributes(
		attribute.String("session.id", in.SessionID.String()),
		attribute.String("chunk.kind", string(in.Kind)),
	)

	unlock := s.locks.Lock(in.SessionID.String())
	var chunk *types.TranscriptChunk
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Of(ctx).WithTx(tx)
		session, err := loadSession(dbc, s.sessions, in.SessionID)
		if err != nil {
			return err
		}
		if types.SessionStatus(session.Status) != types.SessionStatusDiscussionInProgress {
			return apierr.Conflict("invalid_session_phase", fmt.Errorf("%w: status is %s", ErrInvalidSessionPhase, session.Status))
		}

		maxVersion, err := s.chunks.GetMaxVersion(dbc, in.SessionID)
		if err != nil {
			return fmt.Errorf("next version: %w", err)
		}

		resolved := resolveSpeakerMapping(in.SpeakerMapping, session.Participants)
		stored := make(map[string]string, len(resolved))
		for label, p := range resolved {
			stored[label] = p.ID.String()
		}
		mappingJSON, err := json.Marshal(stored)
		if err != nil {
			return err
		}

		chunk, err = s.chunks.Create(dbc, &types.TranscriptChunk{
			SessionID:        in.SessionID,
			Version:          maxVersion + 1,
			Kind:             string(in.Kind),
			RawText:          in.RawText,
			ConsolidatedText: consolidateTranscript(in.RawText, resolved),
			SpeakerMapping:   datatypes.JSON(mappingJSON),
			DurationSeconds:  in.DurationSeconds,
		})
		if err != nil {
			return fmt.Errorf("insert chunk: %w", err)
		}
		return nil
	})
	unlock()
	if err != nil {
		observability.Current().IncChunkAppend(string(in.Kind), "error")
		span.RecordError(err)
		span.SetStatus(codes.Error, "append failed")
		return nil, err
	}

	observability.Current().IncChunkAppend(string(in.Kind), "ok")
	span.SetAttributes(attribute.Int64("chunk.version", chunk.Version))
	s.log.Info("transcript chunk appended",
		append(ctxutil.LogFields(ctx),
			"session_id", chunk.SessionID,
			"version", chunk.Version,
			"kind", chunk.Kind,
			"duration_seconds", chunk.DurationSeconds,
		)...,
	)
	s.afterAppend(ctx, chunk)
	return chunk, nil
}

// afterAppend runs once the chunk is durable. Nothing here can fail the append.
func (s *transcriptChunkService) afterAppend(ctx context.Context, chunk *types.TranscriptChunk) {
	pubCtx, cancel := context.WithTimeout(ctxutil.Detach(ctx), 2*time.Second)
	defer cancel()
	ev, err := bus.NewEvent(bus.EventChunkAppended, chunk.SessionID, map[string]any{
		"chunk_id":         chunk.ID,
		"version":          chunk.Version,
		"kind":             chunk.Kind,
		"duration_seconds": chunk.DurationSeconds,
	})
	if err == nil {
		err = s.events.Publish(pubCtx, ev)
	}
	if err != nil {
		s.log.Warn("publish chunk event failed", "session_id", chunk.SessionID, "version", chunk.Version, "error", err)
	}

	if s.scheduler == nil {
		return
	}
	if err := s.scheduler.Schedule(chunk); err != nil {
		s.log.Warn("schedule evaluation failed", "session_id", chunk.SessionID, "version", chunk.Version, "error", err)
	}
}

func (s *transcriptChunkService) List(ctx context.Context, sessionID uuid.UUID, sinceVersion int64, limit int) ([]*types.TranscriptChunk, error) {
	dbc := dbctx.Of(ctx)
	if _, err := loadSession(dbc, s.sessions, sessionID); err != nil {
		return nil, err
	}
	if sinceVersion < 0 {
		return nil, apierr.BadRequest("invalid_since_version", fmt.Errorf("since_version must be >= 0"))
	}
	if limit <= 0 {
		limit = DefaultChunkListLimit
	}
	if limit > MaxChunkListLimit {
		limit = MaxChunkListLimit
	}
	out, err := s.chunks.ListDesc(dbc, sessionID, sinceVersion, limit)
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}
	return out, nil
}

func (s *transcriptChunkService) Latest(ctx context.Context, sessionID uuid.UUID) (*types.TranscriptChunk, error) {
	dbc := dbctx.Of(ctx)
	if _, err := loadSession(dbc, s.sessions, sessionID); err != nil {
		return nil, err
	}
	chunk, err := s.chunks.Latest(dbc, sessionID)
	if err != nil {
		return nil, fmt.Errorf("latest chunk: %w", err)
	}
	if chunk == nil {
		return nil, apierr.NotFound("chunk_not_found", fmt.Errorf("session has no transcript chunks"))
	}
	return chunk, nil
}

// Consolidated returns the latest full transcript when one exists, otherwise the rolling chunks
// joined in version order.
func (s *transcriptChunkService) Consolidated(ctx context.Context, sessionID uuid.UUID) (*ConsolidatedTranscript, error) {
	dbc := dbctx.Of(ctx)
	if _, err := loadSession(dbc, s.sessions, sessionID); err != nil {
		return nil, err
	}
	chunks, err := s.chunks.ListAsc(dbc, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}
	out := &ConsolidatedTranscript{SessionID: sessionID, ChunkCount: len(chunks)}
	var full *types.TranscriptChunk
	var parts []string
	for _, c := range chunks {
		out.LatestVersion = c.Version
		if types.ChunkKind(c.Kind) == types.ChunkKindFull {
			full = c
			continue
		}
		parts = append(parts, strings.TrimSpace(c.ConsolidatedText))
		out.DurationSeconds += c.DurationSeconds
	}
	if full != nil {
		out.Text = full.ConsolidatedText
		out.DurationSeconds = full.DurationSeconds
		out.FromFull = true
		return out, nil
	}
	out.Text = strings.Join(parts, "\n")
	return out, nil
}
