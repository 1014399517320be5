package handler

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tripnest/service-booking/internal/application"
	"github.com/tripnest/service-booking/internal/common/middleware"
	"github.com/tripnest/service-booking/internal/common/response"
)

// HeaderIdempotencyKey names the caller-supplied commit key.
const HeaderIdempotencyKey = "Idempotency-Key"

const maxIdempotencyKeyLen = 128

// SessionHandler handles HTTP requests for booking sessions.
type SessionHandler struct {
	sessions *application.SessionService
	commits  *application.CommitCoordinator
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(sessions *application.SessionService, commits *application.CommitCoordinator) *SessionHandler {
	return &SessionHandler{sessions: sessions, commits: commits}
}

// RegisterRoutes registers all session routes on the given router group.
func (h *SessionHandler) RegisterRoutes(r *gin.RouterGroup) {
	sessions := r.Group("/api/v1/sessions")
	{
		sessions.POST("", h.CreateSession)
		sessions.GET("/:id", h.GetSession)
		sessions.POST("/:id/transitions", h.Advance)
		sessions.POST("/:id/commit", h.Commit)
	}
}

// CreateSession handles POST /api/v1/sessions.
func (h *SessionHandler) CreateSession(c *gin.Context) {
	var req application.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	q, err := req.ToQuery()
	if err != nil {
		response.Error(c, err)
		return
	}

	callerID, _ := middleware.GetUserID(c)
	result, err := h.sessions.Create(c.Request.Context(), q, callerID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, result)
}

// GetSession handles GET /api/v1/sessions/:id.
func (h *SessionHandler) GetSession(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session ID")
		return
	}

	callerID, _ := middleware.GetUserID(c)
	result, err := h.sessions.Get(c.Request.Context(), sessionID, callerID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}

// Advance handles POST /api/v1/sessions/:id/transitions.
func (h *SessionHandler) Advance(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session ID")
		return
	}

	var req application.TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	t, err := application.TransitionFromRequest(req)
	if err != nil {
		response.Error(c, err)
		return
	}

	callerID, _ := middleware.GetUserID(c)
	result, err := h.sessions.Advance(c.Request.Context(), sessionID, req.Version, t, callerID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}

// Commit handles POST /api/v1/sessions/:id/commit. Retrying with the same
// Idempotency-Key returns the original booking.
func (h *SessionHandler) Commit(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session ID")
		return
	}

	key := strings.TrimSpace(c.GetHeader(HeaderIdempotencyKey))
	if len(key) > maxIdempotencyKeyLen {
		response.BadRequest(c, "Idempotency-Key is too long")
		return
	}

	callerID, _ := middleware.GetUserID(c)
	rec, err := h.commits.Commit(c.Request.Context(), sessionID, key, callerID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, application.ToBookingDTO(rec))
}
