package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/casestudy-backend/internal/http/response"
	"github.com/yungbote/casestudy-backend/internal/services"
)

type StreamHandler struct {
	svc services.StreamCredentialService
}

func NewStreamHandler(svc services.StreamCredentialService) *StreamHandler {
	return &StreamHandler{svc: svc}
}

// POST /api/sessions/:id/stream-credentials
func (h *StreamHandler) IssueCredentials(c *gin.Context) {
	id, ok := sessionIDParam(c)
	if !ok {
		return
	}
	creds, err := h.svc.Issue(c.Request.Context(), id)
	if err != nil {
		response.RespondServiceError(c, err, "stream_credentials_failed")
		return
	}
	response.RespondOK(c, creds)
}
