package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/casestudy-backend/internal/data/repos"
	"github.com/yungbote/casestudy-backend/internal/http/response"
	"github.com/yungbote/casestudy-backend/internal/services"
)

type EvaluationHandler struct {
	svc services.EvaluationQueryService
}

func NewEvaluationHandler(svc services.EvaluationQueryService) *EvaluationHandler {
	return &EvaluationHandler{svc: svc}
}

// GET /api/sessions/:id/evaluations?since=RFC3339&participant_id=uuid
func (h *EvaluationHandler) List(c *gin.Context) {
	id, ok := sessionIDParam(c)
	if !ok {
		return
	}
	var filter repos.EvaluationFilter
	if raw := strings.TrimSpace(c.Query("since")); raw != "" {
		since, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_since", fmt.Errorf("since must be an RFC3339 timestamp"))
			return
		}
		filter.Since = &since
	}
	if raw := strings.TrimSpace(c.Query("participant_id")); raw != "" {
		pid, err := uuid.Parse(raw)
		if err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_participant_id", fmt.Errorf("invalid participant id"))
			return
		}
		filter.ParticipantID = &pid
	}
	listing, err := h.svc.List(c.Request.Context(), id, filter)
	if err != nil {
		response.RespondServiceError(c, err, "list_evaluations_failed")
		return
	}
	response.RespondOK(c, listing)
}
