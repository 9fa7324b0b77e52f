package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	types "github.com/yungbote/casestudy-backend/internal/domain"
	"github.com/yungbote/casestudy-backend/internal/http/response"
	"github.com/yungbote/casestudy-backend/internal/services"
)

type TranscriptHandler struct {
	svc services.TranscriptChunkService
}

func NewTranscriptHandler(svc services.TranscriptChunkService) *TranscriptHandler {
	return &TranscriptHandler{svc: svc}
}

type appendChunkRequest struct {
	RawText         string            `json:"raw_text"`
	DurationSeconds int               `json:"duration_seconds"`
	SpeakerMapping  map[string]string `json:"speaker_mapping"`
	Kind            string            `json:"kind"`
}

type appendChunkResponse struct {
	ID              uuid.UUID `json:"id"`
	SessionID       uuid.UUID `json:"session_id"`
	Version         int64     `json:"version"`
	Kind            string    `json:"kind"`
	DurationSeconds int       `json:"duration_seconds"`
	CreatedAt       time.Time `json:"created_at"`
}

// POST /api/sessions/:id/chunks
func (h *TranscriptHandler) AppendChunk(c *gin.Context) {
	id, ok := sessionIDParam(c)
	if !ok {
		return
	}
	var req appendChunkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	chunk, err := h.svc.Append(c.Request.Context(), services.AppendChunkInput{
		SessionID:       id,
		RawText:         req.RawText,
		DurationSeconds: req.DurationSeconds,
		SpeakerMapping:  req.SpeakerMapping,
		Kind:            types.ChunkKind(req.Kind),
	})
	if err != nil {
		response.RespondServiceError(c, err, "append_chunk_failed")
		return
	}
	response.RespondCreated(c, appendChunkResponse{
		ID:              chunk.ID,
		SessionID:       chunk.SessionID,
		Version:         chunk.Version,
		Kind:            chunk.Kind,
		DurationSeconds: chunk.DurationSeconds,
		CreatedAt:       chunk.CreatedAt,
	})
}

// GET /api/sessions/:id/chunks?since_version=N&limit=M
func (h *TranscriptHandler) ListChunks(c *gin.Context) {
	id, ok := sessionIDParam(c)
	if !ok {
		return
	}
	since, err := queryInt(c, "since_version", 0)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_since_version", err)
		return
	}
	limit, err := queryInt(c, "limit", services.DefaultChunkListLimit)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_limit", err)
		return
	}
	chunks, err := h.svc.List(c.Request.Context(), id, since, int(limit))
	if err != nil {
		response.RespondServiceError(c, err, "list_chunks_failed")
		return
	}
	latest := since
	for _, ch := range chunks {
		if ch.Version > latest {
			latest = ch.Version
		}
	}
	response.RespondOK(c, gin.H{
		"session_id":     id,
		"chunks":         chunks,
		"count":          len(chunks),
		"latest_version": latest,
	})
}

// GET /api/sessions/:id/transcript
func (h *TranscriptHandler) Transcript(c *gin.Context) {
	id, ok := sessionIDParam(c)
	if !ok {
		return
	}
	out, err := h.svc.Consolidated(c.Request.Context(), id)
	if err != nil {
		response.RespondServiceError(c, err, "transcript_failed")
		return
	}
	response.RespondOK(c, out)
}
