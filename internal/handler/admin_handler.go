package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/tripnest/service-booking/internal/application"
	"github.com/tripnest/service-booking/internal/common/middleware"
	"github.com/tripnest/service-booking/internal/common/response"
)

// AdminBookingHandler handles operator requests for booking follow-up.
type AdminBookingHandler struct {
	service  *application.LedgerService
	adminIDs []string
}

// NewAdminBookingHandler creates a new AdminBookingHandler. Only callers in
// adminIDs reach its routes.
func NewAdminBookingHandler(service *application.LedgerService, adminIDs []string) *AdminBookingHandler {
	return &AdminBookingHandler{service: service, adminIDs: adminIDs}
}

// RegisterRoutes registers admin booking routes.
func (h *AdminBookingHandler) RegisterRoutes(r *gin.RouterGroup) {
	admin := r.Group("/api/v1/admin")
	admin.Use(middleware.RequireIdentity(), middleware.RequireUserIn(h.adminIDs))
	{
		admin.GET("/bookings/follow-ups", h.ListFollowUps)
	}
}

// ListFollowUps handles GET /api/v1/admin/bookings/follow-ups.
func (h *AdminBookingHandler) ListFollowUps(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	bookings, err := h.service.ListFollowUps(c.Request.Context(), limit)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, bookings)
}
