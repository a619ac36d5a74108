package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/signalhub/internal/apperrors"
	"github.com/kbukum/signalhub/internal/calendar"
	"github.com/kbukum/signalhub/internal/logger"
)

// handleCalendarData generates the Google Calendar URL and the downloadable
// ICS document for appointment data.
func (s *Server) handleCalendarData(c *gin.Context) {
	var req calendar.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		respondInvalid(c, "summary, time_zone, start_time, end_time, and meeting_date are required")
		return
	}

	resp, err := s.deps.Calendar.Generate(c.Request.Context(), req, requestBaseURL(c))
	if err != nil {
		s.log.Warn("Calendar generation failed", logger.ErrorFields("calendar_data", err))
		c.JSON(http.StatusOK, calendar.Response{
			Status:  "error",
			Message: fmt.Sprintf("Failed to generate calendar data: %v", err),
		})
		return
	}
	c.JSON(http.StatusOK, resp)
}

// handleCalendarICS serves a stored ICS document as a calendar download.
// The route parameter is "<event_id>.ics".
func (s *Server) handleCalendarICS(c *gin.Context) {
	eventID := strings.TrimSuffix(c.Param("file"), ".ics")

	content, ok := s.deps.Calendar.ICS(c.Request.Context(), eventID)
	if !ok {
		respondError(c, apperrors.NotFound(fmt.Sprintf("Calendar event %s", eventID)))
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", eventID+".ics"))
	c.Data(http.StatusOK, "text/calendar", []byte(content))
}
