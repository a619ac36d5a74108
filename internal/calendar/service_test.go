package calendar

import (
	"context"
	"net/url"
	"strings"
	"testing"

	"github.com/kbukum/signalhub/internal/kvstore"
	"github.com/kbukum/signalhub/internal/logger"
)

func newTestService(t *testing.T) (*Service, kvstore.Store) {
	t.Helper()
	store := kvstore.NewMemoryStore(0, logger.NewNop())
	t.Cleanup(func() { store.Close() })
	return NewService(store, Config{}, logger.NewNop()), store
}

func testRequest() Request {
	return Request{
		Summary:         "Booking Confirmation",
		Description:     "Windglass Repair Appointment",
		OrganizerEmail:  "organizer@example.com",
		AttendeesEmails: []string{"user@example.com"},
		TimeZone:        "Europe/Helsinki",
		Location:        "Workshop",
		StartTime:       "16:00",
		EndTime:         "17:00",
		MeetingDate:     "25-12-2025",
		GlassType:       "windshield",
	}
}

func TestGenerate_ReturnsBothURLs(t *testing.T) {
	svc, _ := newTestService(t)

	resp, err := svc.Generate(context.Background(), testRequest(), "http://localhost:8080")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if resp.Status != "success" {
		t.Fatalf("unexpected status: %+v", resp)
	}
	if !strings.HasPrefix(resp.GoogleURL, "https://calendar.google.com/calendar/render?") {
		t.Fatalf("unexpected google url: %s", resp.GoogleURL)
	}
	if !strings.HasPrefix(resp.ICSURL, "http://localhost:8080/calendar/") || !strings.HasSuffix(resp.ICSURL, ".ics") {
		t.Fatalf("unexpected ics url: %s", resp.ICSURL)
	}
}

func TestGenerate_GoogleURLTimesInUTC(t *testing.T) {
	svc, _ := newTestService(t)

	resp, err := svc.Generate(context.Background(), testRequest(), "http://localhost:8080")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	u, err := url.Parse(resp.GoogleURL)
	if err != nil {
		t.Fatalf("invalid google url: %v", err)
	}
	// 16:00 Helsinki winter time is 14:00 UTC.
	dates := u.Query().Get("dates")
	if dates != "20251225T140000Z/20251225T150000Z" {
		t.Fatalf("unexpected dates parameter: %s", dates)
	}
	if u.Query().Get("ctz") != "Europe/Helsinki" {
		t.Fatalf("unexpected ctz: %s", u.Query().Get("ctz"))
	}
}

func TestGenerate_StoresDownloadableICS(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	resp, err := svc.Generate(ctx, testRequest(), "http://localhost:8080")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	parts := strings.Split(strings.TrimSuffix(resp.ICSURL, ".ics"), "/")
	eventID := parts[len(parts)-1]

	content, ok := svc.ICS(ctx, eventID)
	if !ok {
		t.Fatal("expected stored ics content")
	}
	for _, want := range []string{
		"BEGIN:VCALENDAR",
		"BEGIN:VEVENT",
		"SUMMARY:Booking Confirmation",
		"LOCATION:Workshop",
		"END:VCALENDAR",
	} {
		if !strings.Contains(content, want) {
			t.Fatalf("ics missing %q:\n%s", want, content)
		}
	}
}

func TestGenerate_InvalidInput(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(*Request)
	}{
		{"bad time zone", func(r *Request) { r.TimeZone = "Not/AZone" }},
		{"bad date format", func(r *Request) { r.MeetingDate = "2025-12-25" }},
		{"bad start time", func(r *Request) { r.StartTime = "4pm" }},
		{"bad end time", func(r *Request) { r.EndTime = "25:99" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := testRequest()
			tc.mutate(&req)
			if _, err := svc.Generate(ctx, req, "http://localhost:8080"); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestICS_MissingEvent(t *testing.T) {
	svc, _ := newTestService(t)

	if _, ok := svc.ICS(context.Background(), "nope"); ok {
		t.Fatal("expected miss for unknown event id")
	}
}
