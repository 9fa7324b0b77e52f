package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	types "github.com/yungbote/casestudy-backend/internal/domain"
	"github.com/yungbote/casestudy-backend/internal/http/response"
	"github.com/yungbote/casestudy-backend/internal/services"
)

type SessionHandler struct {
	svc services.SessionService
}

func NewSessionHandler(svc services.SessionService) *SessionHandler {
	return &SessionHandler{svc: svc}
}

// POST /api/sessions
func (h *SessionHandler) Create(c *gin.Context) {
	var in services.CreateSessionInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	session, err := h.svc.Create(c.Request.Context(), in)
	if err != nil {
		response.RespondServiceError(c, err, "create_session_failed")
		return
	}
	response.RespondCreated(c, gin.H{"session": session})
}

// GET /api/sessions/:id
func (h *SessionHandler) Get(c *gin.Context) {
	id, ok := sessionIDParam(c)
	if !ok {
		return
	}
	session, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		response.RespondServiceError(c, err, "get_session_failed")
		return
	}
	response.RespondOK(c, gin.H{"session": session})
}

type statusRequest struct {
	Status string `json:"status" binding:"required"`
}

// POST /api/sessions/:id/status
func (h *SessionHandler) UpdateStatus(c *gin.Context) {
	id, ok := sessionIDParam(c)
	if !ok {
		return
	}
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	session, err := h.svc.Transition(c.Request.Context(), id, types.SessionStatus(req.Status))
	if err != nil {
		response.RespondServiceError(c, err, "update_status_failed")
		return
	}
	response.RespondOK(c, gin.H{"session": session})
}

// GET /api/sessions/:id/progress
func (h *SessionHandler) Progress(c *gin.Context) {
	id, ok := sessionIDParam(c)
	if !ok {
		return
	}
	progress, err := h.svc.Progress(c.Request.Context(), id)
	if err != nil {
		response.RespondServiceError(c, err, "progress_failed")
		return
	}
	response.RespondOK(c, progress)
}
