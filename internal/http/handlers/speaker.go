package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/casestudy-backend/internal/http/response"
	"github.com/yungbote/casestudy-backend/internal/services"
	"github.com/yungbote/casestudy-backend/internal/transcription/speakerid"
)

type SpeakerHandler struct {
	svc         services.SpeakerIdentificationService
	corrections services.SpeakerCorrectionService
}

func NewSpeakerHandler(svc services.SpeakerIdentificationService, corrections services.SpeakerCorrectionService) *SpeakerHandler {
	return &SpeakerHandler{svc: svc, corrections: corrections}
}

// POST /api/sessions/:id/speakers/identify
func (h *SpeakerHandler) Identify(c *gin.Context) {
	id, ok := sessionIDParam(c)
	if !ok {
		return
	}
	var req speakerid.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	guess, err := h.svc.Identify(c.Request.Context(), id, req)
	if err != nil {
		response.RespondServiceError(c, err, "identify_failed")
		return
	}
	response.RespondOK(c, gin.H{"guess": guess})
}

type correctionRequest struct {
	Speaker int    `json:"speaker"`
	Name    string `json:"name"`
}

// POST /api/sessions/:id/speakers/corrections
func (h *SpeakerHandler) SubmitCorrection(c *gin.Context) {
	id, ok := sessionIDParam(c)
	if !ok {
		return
	}
	var req correctionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	out, err := h.corrections.Submit(c.Request.Context(), services.SpeakerCorrectionInput{
		SessionID:  id,
		SpeakerTag: req.Speaker,
		Name:       req.Name,
	})
	if err != nil {
		response.RespondServiceError(c, err, "correction_failed")
		return
	}
	response.RespondCreated(c, gin.H{"correction": out})
}

// GET /api/sessions/:id/speakers/corrections?after=N
func (h *SpeakerHandler) ListCorrections(c *gin.Context) {
	id, ok := sessionIDParam(c)
	if !ok {
		return
	}
	after, err := queryInt(c, "after", 0)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_after", err)
		return
	}
	rows, err := h.corrections.ListAfter(c.Request.Context(), id, after)
	if err != nil {
		response.RespondServiceError(c, err, "list_corrections_failed")
		return
	}
	latest := after
	if n := len(rows); n > 0 {
		latest = rows[n-1].Seq
	}
	response.RespondOK(c, gin.H{"corrections": rows, "latest_seq": latest})
}
