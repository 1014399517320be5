package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/tripnest/service-booking/internal/application"
	"github.com/tripnest/service-booking/internal/common/middleware"
	"github.com/tripnest/service-booking/internal/common/response"
)

// BookingHandler handles HTTP requests for committed bookings.
type BookingHandler struct {
	service *application.LedgerService
}

// NewBookingHandler creates a new BookingHandler.
func NewBookingHandler(service *application.LedgerService) *BookingHandler {
	return &BookingHandler{service: service}
}

// RegisterRoutes registers all booking routes on the given router group.
func (h *BookingHandler) RegisterRoutes(r *gin.RouterGroup) {
	bookings := r.Group("/api/v1/bookings")
	bookings.Use(middleware.RequireIdentity())
	{
		bookings.GET("", h.ListBookings)
		bookings.GET("/:reference", h.GetBooking)
	}
}

// ListBookings handles GET /api/v1/bookings.
func (h *BookingHandler) ListBookings(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	result, err := h.service.ListBookings(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}

// GetBooking handles GET /api/v1/bookings/:reference.
func (h *BookingHandler) GetBooking(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	result, err := h.service.GetBooking(c.Request.Context(), c.Param("reference"), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}
