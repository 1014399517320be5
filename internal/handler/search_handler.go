package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/tripnest/service-booking/internal/application"
	"github.com/tripnest/service-booking/internal/common/middleware"
	"github.com/tripnest/service-booking/internal/common/response"
)

// SearchHandler handles HTTP requests for trip searches.
type SearchHandler struct {
	service *application.SearchService
}

// NewSearchHandler creates a new SearchHandler.
func NewSearchHandler(service *application.SearchService) *SearchHandler {
	return &SearchHandler{service: service}
}

// RegisterRoutes registers the search route on the given router group.
func (h *SearchHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/api/v1/search", h.Search)
}

// Search handles POST /api/v1/search.
func (h *SearchHandler) Search(c *gin.Context) {
	var req application.SearchRequest
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
	result, err := h.service.Search(c.Request.Context(), req.SessionID, q, callerID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}
