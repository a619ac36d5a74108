package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/signalhub/internal/delivery"
	"github.com/kbukum/signalhub/internal/flight"
)

// handleDelivery starts the three-step parcel tracking sequence. The response
// acknowledges the start; the notifications fire in the background.
func (s *Server) handleDelivery(c *gin.Context) {
	var req delivery.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		respondInvalid(c, "tracking_id and external_id are required")
		return
	}
	if !req.SendParcel {
		c.JSON(http.StatusOK, delivery.Result{
			Status:  "error",
			Message: "send_parcel must be 'true' to start delivery",
		})
		return
	}

	result, _ := s.deps.Delivery.Track(c.Request.Context(), req)
	c.JSON(http.StatusOK, result)
}

// handleFlightUpdate starts the flight live-activity sequence.
func (s *Server) handleFlightUpdate(c *gin.Context) {
	var req flight.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		respondInvalid(c, "activity_id is required")
		return
	}

	result, _ := s.deps.Flight.Start(c.Request.Context(), req)
	c.JSON(http.StatusOK, result)
}
