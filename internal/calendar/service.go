// Package calendar turns appointment data into Google Calendar links and
// downloadable ICS documents stored with a long TTL.
package calendar

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/google/uuid"

	"github.com/kbukum/signalhub/internal/kvstore"
	"github.com/kbukum/signalhub/internal/logger"
)

// Request is the appointment data received from the provider data feed.
type Request struct {
	Summary         string   `json:"summary" binding:"required"`
	Description     string   `json:"description"`
	OrganizerEmail  string   `json:"organizer_email"`
	AttendeesEmails []string `json:"attendees_emails"`
	TimeZone        string   `json:"time_zone" binding:"required"`
	Location        string   `json:"location"`
	StartTime       string   `json:"start_time" binding:"required"`   // HH:MM
	EndTime         string   `json:"end_time" binding:"required"`     // HH:MM
	MeetingDate     string   `json:"meeting_date" binding:"required"` // DD-MM-YYYY
	GlassType       string   `json:"glass_type"`
}

// Response carries the generated calendar links.
type Response struct {
	Status    string `json:"status"`
	GoogleURL string `json:"google_url,omitempty"`
	ICSURL    string `json:"ics_url,omitempty"`
	Message   string `json:"message,omitempty"`
}

// storedICS is the store representation of a generated ICS document.
type storedICS struct {
	ICSContent string    `json:"ics_content"`
	CreatedAt  time.Time `json:"created_at"`
}

// Config holds calendar service configuration.
type Config struct {
	// ICSTTL is how long generated ICS documents remain downloadable
	// (e.g. "720h" for 30 days).
	ICSTTL string `yaml:"ics_ttl" mapstructure:"ics_ttl"`
}

// ApplyDefaults sets sensible defaults for zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.ICSTTL == "" {
		c.ICSTTL = "720h"
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if _, err := time.ParseDuration(c.ICSTTL); err != nil {
		return fmt.Errorf("calendar.ics_ttl: %w", err)
	}
	return nil
}

// ICSKey returns the store key for a generated ICS document.
func ICSKey(eventID string) string {
	return "calendar_ics:" + eventID
}

// Service generates and serves calendar artifacts.
type Service struct {
	store  kvstore.Store
	icsTTL time.Duration
	log    *logger.Logger
}

// NewService creates the calendar service.
func NewService(store kvstore.Store, cfg Config, log *logger.Logger) *Service {
	cfg.ApplyDefaults()
	ttl, _ := time.ParseDuration(cfg.ICSTTL)
	return &Service{
		store:  store,
		icsTTL: ttl,
		log:    log.WithComponent("calendar"),
	}
}

// Generate builds the Google Calendar URL and the ICS document for an
// appointment, stores the ICS under a fresh event id, and returns both links.
func (s *Service) Generate(ctx context.Context, req Request, baseURL string) (Response, error) {
	start, end, err := parseWindow(req.MeetingDate, req.StartTime, req.EndTime, req.TimeZone)
	if err != nil {
		return Response{}, err
	}

	eventID := uuid.New().String()
	googleURL := googleCalendarURL(req, start, end)
	icsContent := buildICS(req, start, end, eventID)

	if !s.store.Set(ctx, ICSKey(eventID), storedICS{
		ICSContent: icsContent,
		CreatedAt:  time.Now().UTC(),
	}, s.icsTTL) {
		return Response{}, fmt.Errorf("failed to store ics document")
	}

	s.log.Info("Calendar data generated", logger.Fields("event_id", eventID, "summary", req.Summary))
	return Response{
		Status:    "success",
		GoogleURL: googleURL,
		ICSURL:    fmt.Sprintf("%s/calendar/%s.ics", strings.TrimRight(baseURL, "/"), eventID),
	}, nil
}

// ICS returns the stored ICS content for an event id.
func (s *Service) ICS(ctx context.Context, eventID string) (string, bool) {
	var stored storedICS
	if !s.store.Get(ctx, ICSKey(eventID), &stored) {
		return "", false
	}
	return stored.ICSContent, true
}

// parseWindow turns DD-MM-YYYY + two HH:MM times in an IANA zone into
// timezone-aware start/end instants.
func parseWindow(meetingDate, startTime, endTime, timeZone string) (time.Time, time.Time, error) {
	loc, err := time.LoadLocation(timeZone)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid time zone %q: %w", timeZone, err)
	}
	date, err := time.ParseInLocation("02-01-2006", meetingDate, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid meeting date %q (want DD-MM-YYYY): %w", meetingDate, err)
	}
	start, err := atTime(date, startTime, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid start time %q: %w", startTime, err)
	}
	end, err := atTime(date, endTime, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid end time %q: %w", endTime, err)
	}
	return start, end, nil
}

func atTime(date time.Time, hhmm string, loc *time.Location) (time.Time, error) {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(date.Year(), date.Month(), date.Day(), t.Hour(), t.Minute(), 0, 0, loc), nil
}

// googleCalendarURL builds the "add to calendar" render URL.
func googleCalendarURL(req Request, start, end time.Time) string {
	const format = "20060102T150405Z"
	dates := start.UTC().Format(format) + "/" + end.UTC().Format(format)

	params := url.Values{}
	params.Set("action", "TEMPLATE")
	params.Set("text", req.Summary)
	params.Set("dates", dates)
	params.Set("details", fullDescription(req))
	params.Set("location", req.Location)
	params.Set("ctz", req.TimeZone)
	if len(req.AttendeesEmails) > 0 {
		params.Set("add", strings.Join(req.AttendeesEmails, ","))
	}

	return "https://calendar.google.com/calendar/render?" + params.Encode()
}

func fullDescription(req Request) string {
	parts := []string{req.Description}
	if req.GlassType != "" {
		parts = append(parts, "Glass Type: "+req.GlassType)
	}
	if req.OrganizerEmail != "" {
		parts = append(parts, "Organizer: "+req.OrganizerEmail)
	}
	return strings.Join(parts, "\n")
}

// buildICS renders the iCalendar document for the appointment.
func buildICS(req Request, start, end time.Time, eventID string) string {
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId("-//SignalHub Calendar Integration//EN")

	event := cal.AddEvent(eventID + "@signalhub")
	event.SetDtStampTime(time.Now().UTC())
	event.SetStartAt(start)
	event.SetEndAt(end)
	event.SetSummary(req.Summary)
	event.SetLocation(req.Location)

	descParts := []string{req.Description}
	if req.GlassType != "" {
		descParts = append(descParts, "Glass Type: "+req.GlassType)
	}
	event.SetDescription(strings.Join(descParts, "\n"))

	if req.OrganizerEmail != "" {
		event.SetOrganizer("MAILTO:"+req.OrganizerEmail, ics.WithCN(req.OrganizerEmail))
	}
	for _, email := range req.AttendeesEmails {
		event.AddAttendee(email, ics.WithCN(email), ics.WithRSVP(true))
	}

	return cal.Serialize()
}
