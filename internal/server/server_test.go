package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/kbukum/signalhub/internal/artifact"
	"github.com/kbukum/signalhub/internal/calendar"
	"github.com/kbukum/signalhub/internal/delivery"
	"github.com/kbukum/signalhub/internal/flight"
	"github.com/kbukum/signalhub/internal/inbox"
	"github.com/kbukum/signalhub/internal/kvstore"
	"github.com/kbukum/signalhub/internal/logger"
	"github.com/kbukum/signalhub/internal/notify"
	"github.com/kbukum/signalhub/internal/sequence"
)

// stubNotifier records outbound messages without hitting the provider.
type stubNotifier struct {
	mu   sync.Mutex
	sent []notify.Message
}

func (n *stubNotifier) SendTemplate(_ context.Context, msg notify.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
	return nil
}

func (n *stubNotifier) UpdateLiveActivity(context.Context, string, string, map[string]any) error {
	return nil
}

func (n *stubNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

func (n *stubNotifier) last() notify.Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.sent[len(n.sent)-1]
}

type testServer struct {
	srv      *Server
	store    kvstore.Store
	notifier *stubNotifier
	inbox    *inbox.Store
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	log := logger.NewNop()

	store := kvstore.NewMemoryStore(0, log)
	t.Cleanup(func() { store.Close() })

	guard := sequence.NewGuard()
	seq := sequence.NewSequencer(guard, store, time.Hour, log)
	notifier := &stubNotifier{}

	templates := notify.Templates{
		SMSOTP:         "tpl-otp",
		DeliveryPickup: "tpl-pickup",
		InTransit:      "tpl-transit",
		Delivered:      "tpl-delivered",
	}

	inboxStore, err := inbox.NewStore(inbox.Config{Enabled: true, Path: ":memory:"}, log)
	if err != nil {
		t.Fatalf("failed to open inbox: %v", err)
	}
	t.Cleanup(func() { inboxStore.Close() })

	srv := New(Config{}, Deps{
		Store:       store,
		Issuer:      artifact.NewIssuer(store, artifact.Config{}, log),
		Notifier:    notifier,
		Templates:   templates,
		Delivery:    delivery.NewService(seq, notifier, templates, delivery.Config{Interval: "10ms"}, log),
		Flight:      flight.NewService(seq, notifier, store, flight.Config{StepDelay: "10ms"}, log),
		Calendar:    calendar.NewService(store, calendar.Config{}, log),
		Inbox:       inboxStore,
		Version:     "test",
		Development: true,
	}, log)

	return &testServer{srv: srv, store: store, notifier: notifier, inbox: inboxStore}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	ts.srv.Engine().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("invalid json response %q: %v", w.Body.String(), err)
	}
	return out
}

func TestWelcomeAndHealth(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", w.Code)
	}
	body := decode(t, w)
	if body["status"] != "running" {
		t.Fatalf("unexpected welcome body: %v", body)
	}

	w = ts.do(t, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK || decode(t, w)["status"] != "healthy" {
		t.Fatalf("unexpected health response: %d %s", w.Code, w.Body.String())
	}
}

func TestOTPFlow(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/auth/otp", map[string]any{"phone_number": "+358401234567"})
	if w.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d %s", w.Code, w.Body.String())
	}
	body := decode(t, w)
	code, _ := body["signal_code"].(string)
	if body["status"] != "success" || len(code) != 5 {
		t.Fatalf("unexpected otp response: %v", body)
	}

	if ts.notifier.count() != 1 {
		t.Fatalf("expected one SMS, got %d", ts.notifier.count())
	}
	msg := ts.notifier.last()
	if msg.Channel != notify.ChannelSMS || msg.App != notify.AppDemo || msg.TemplateID != "tpl-otp" {
		t.Fatalf("unexpected SMS message: %+v", msg)
	}

	w = ts.do(t, http.MethodPost, "/auth/verify", map[string]any{
		"phone_number": "+358401234567",
		"signal_code":  code,
	})
	body = decode(t, w)
	if body["valid"] != true || body["message"] != "Code verified successfully" {
		t.Fatalf("unexpected verify response: %v", body)
	}

	// Replay is rejected.
	w = ts.do(t, http.MethodPost, "/auth/verify", map[string]any{
		"phone_number": "+358401234567",
		"signal_code":  code,
	})
	body = decode(t, w)
	if body["valid"] != false || body["message"] != "Code already used" {
		t.Fatalf("unexpected replay response: %v", body)
	}
}

func TestOTPVerifyWrongCode(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/auth/verify", map[string]any{
		"phone_number": "+358401234567",
		"signal_code":  "00000",
	})
	body := decode(t, w)
	if body["valid"] != false || body["message"] != "Invalid code or phone number" {
		t.Fatalf("unexpected response: %v", body)
	}
}

func TestOTPRateLimited(t *testing.T) {
	ts := newTestServer(t)

	for i := 0; i < 3; i++ {
		w := ts.do(t, http.MethodPost, "/auth/otp", map[string]any{"phone_number": "+358401234567"})
		if w.Code != http.StatusOK {
			t.Fatalf("request %d should pass, got %d", i+1, w.Code)
		}
	}

	w := ts.do(t, http.MethodPost, "/auth/otp", map[string]any{"phone_number": "+358401234567"})
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d %s", w.Code, w.Body.String())
	}
}

func TestOTPMissingBody(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/auth/otp", map[string]any{})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestCouponFlow(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/coupon/request", map[string]any{
		"user_id":        "user-1",
		"coupon_request": true,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d %s", w.Code, w.Body.String())
	}
	body := decode(t, w)
	code, _ := body["coupon_code"].(string)
	if len(code) != 6 {
		t.Fatalf("unexpected coupon response: %v", body)
	}

	w = ts.do(t, http.MethodPost, "/coupon/validate", map[string]any{
		"coupon_code": code,
		"user_id":     "user-1",
	})
	if decode(t, w)["is_valid"] != true {
		t.Fatalf("expected valid coupon: %s", w.Body.String())
	}

	// Wrong user cannot redeem it.
	w = ts.do(t, http.MethodPost, "/coupon/validate", map[string]any{
		"coupon_code": code,
		"user_id":     "user-2",
	})
	if decode(t, w)["is_valid"] != false {
		t.Fatalf("expected invalid for wrong user: %s", w.Body.String())
	}
}

func TestCouponRequestFlagRequired(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/coupon/request", map[string]any{
		"user_id":        "user-1",
		"coupon_request": false,
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestDeliveryEndpoint(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/delivery", map[string]any{
		"tracking_id": "TRK1",
		"external_id": "user-1",
		"send_parcel": true,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d %s", w.Code, w.Body.String())
	}
	body := decode(t, w)
	if body["status"] != "success" || body["message"] != "Started tracking TRK1" {
		t.Fatalf("unexpected response: %v", body)
	}
}

func TestDeliveryRequiresSendParcel(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/delivery", map[string]any{
		"tracking_id": "TRK1",
		"external_id": "user-1",
		"send_parcel": false,
	})
	body := decode(t, w)
	if body["status"] != "error" {
		t.Fatalf("expected error status: %v", body)
	}
	if ts.notifier.count() != 0 {
		t.Fatal("no notifications should be sent")
	}
}

func TestFlightUpdateEndpoint(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/flight-update", map[string]any{
		"activity_id":   "act-1",
		"content_state": map[string]any{"gate": "A12", "boardingTime": "14:30"},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d %s", w.Code, w.Body.String())
	}
	body := decode(t, w)
	if body["status"] != "started" || body["activity_id"] != "act-1" {
		t.Fatalf("unexpected response: %v", body)
	}

	var rec flight.Record
	if !ts.store.Get(context.Background(), flight.RecordKey("act-1"), &rec) {
		t.Fatal("expected persisted activity record")
	}
}

func TestCalendarFlow(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/calendar-data", map[string]any{
		"summary":      "Booking Confirmation",
		"time_zone":    "Europe/Helsinki",
		"start_time":   "16:00",
		"end_time":     "17:00",
		"meeting_date": "25-12-2025",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d %s", w.Code, w.Body.String())
	}
	body := decode(t, w)
	if body["status"] != "success" {
		t.Fatalf("unexpected response: %v", body)
	}
	icsURL, _ := body["ics_url"].(string)
	if icsURL == "" {
		t.Fatalf("expected ics url in response: %v", body)
	}

	// Download through the returned path.
	parsed, err := url.Parse(icsURL)
	if err != nil {
		t.Fatalf("invalid ics url %q: %v", icsURL, err)
	}
	w = ts.do(t, http.MethodGet, parsed.Path, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("unexpected download status: %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/calendar" {
		t.Fatalf("unexpected content type: %s", ct)
	}
}

func TestCalendarICSMissing(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/calendar/unknown.ics", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	errBody, _ := decode(t, w)["error"].(map[string]any)
	if errBody["code"] != "NOT_FOUND" {
		t.Fatalf("expected NOT_FOUND error body: %s", w.Body.String())
	}
}

func TestWebhookStoreAndList(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/webhooks/onesignal", map[string]any{
		"event":           "notification.sent",
		"app_id":          "app-1",
		"external_id":     "user-1",
		"notification_id": "n-1",
		"headings":        map[string]any{"en": "Parcel update"},
		"contents":        map[string]any{"en": "On its way"},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d %s", w.Code, w.Body.String())
	}
	body := decode(t, w)
	if body["status"] != "success" || body["event_id"] == "" {
		t.Fatalf("unexpected response: %v", body)
	}

	w = ts.do(t, http.MethodGet, "/messages/app-1/user-1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", w.Code)
	}
	list := decode(t, w)
	if list["message_count"] != float64(1) {
		t.Fatalf("unexpected list: %v", list)
	}
	messages, _ := list["messages"].([]any)
	first, _ := messages[0].(map[string]any)
	contents, _ := first["message_contents"].(map[string]any)
	if contents["title"] != "Parcel update" || contents["body"] != "On its way" {
		t.Fatalf("unexpected contents: %v", contents)
	}
}

func TestWebhookMissingRequiredFields(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/webhooks/onesignal", map[string]any{
		"external_id": "user-1",
	})
	body := decode(t, w)
	if body["status"] != "error" {
		t.Fatalf("expected error status: %v", body)
	}
}

func TestWebhookListFilterValidation(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/messages/app-1/user-1?limit=9999", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", w.Code)
	}
	w = ts.do(t, http.MethodGet, "/messages/app-1/user-1?since_days=120", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad since_days, got %d", w.Code)
	}
}

func TestWebhookDeleteMessages(t *testing.T) {
	ts := newTestServer(t)

	ts.do(t, http.MethodPost, "/webhooks/onesignal", map[string]any{
		"event":       "notification.sent",
		"app_id":      "app-1",
		"external_id": "user-1",
	})

	w := ts.do(t, http.MethodDelete, "/messages/app-1/user-1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", w.Code)
	}
	if decode(t, w)["message"] != "Deleted 1 messages" {
		t.Fatalf("unexpected response: %s", w.Body.String())
	}

	w = ts.do(t, http.MethodGet, "/messages/app-1/user-1", nil)
	if decode(t, w)["message_count"] != float64(0) {
		t.Fatalf("expected empty inbox: %s", w.Body.String())
	}
}

func TestWebhookHealth(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/webhooks/health", nil)
	body := decode(t, w)
	db, _ := body["database"].(map[string]any)
	if db["status"] != "healthy" || body["message"] != "Webhook system operational" {
		t.Fatalf("unexpected health: %v", body)
	}
}

func TestWebhookWithoutInboxIsAcknowledged(t *testing.T) {
	ts := newTestServer(t)
	ts.srv.deps.Inbox = nil

	w := ts.do(t, http.MethodPost, "/webhooks/onesignal", map[string]any{
		"event":  "notification.sent",
		"app_id": "app-1",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", w.Code)
	}
	if decode(t, w)["status"] != "warning" {
		t.Fatalf("expected warning: %s", w.Body.String())
	}

	w = ts.do(t, http.MethodGet, "/messages/app-1/user-1", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without storage, got %d", w.Code)
	}
}

func TestDashboardKeys(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	ts.store.Set(ctx, "otp:+358:11111", map[string]any{"used": false}, 0)
	ts.store.Set(ctx, "coupon:ABC123", map[string]any{"owner": "user-1"}, 0)

	w := ts.do(t, http.MethodGet, "/dashboard/keys?pattern=otp:*", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", w.Code)
	}
	body := decode(t, w)
	if body["count"] != float64(1) {
		t.Fatalf("unexpected count: %v", body)
	}
}

func TestRequestIDHeader(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/health", nil)
	if w.Header().Get("X-Request-Id") == "" {
		t.Fatal("expected X-Request-Id header")
	}
}

func TestCORSPreflightHonored(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/auth/otp", nil)
	req.Header.Set("Origin", "https://example.com")
	w := httptest.NewRecorder()
	ts.srv.Engine().ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://example.com" {
		t.Fatalf("unexpected allow-origin: %q", got)
	}
}

func TestWebhookRateLimit(t *testing.T) {
	ts := newTestServer(t)
	ts.srv.cfg.WebhookRateLimit = 2

	// Rebuild with the low limit applied.
	srv := New(ts.srv.cfg, ts.srv.deps, logger.NewNop())

	payload := map[string]any{"event": "notification.sent", "app_id": "app-1"}
	for i := 0; i < 2; i++ {
		data, _ := json.Marshal(payload)
		req := httptest.NewRequest(http.MethodPost, "/webhooks/onesignal", bytes.NewReader(data))
		w := httptest.NewRecorder()
		srv.Engine().ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("request %d should pass, got %d", i+1, w.Code)
		}
	}

	data, _ := json.Marshal(payload)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/onesignal", bytes.NewReader(data))
	w := httptest.NewRecorder()
	srv.Engine().ServeHTTP(w, req)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
}
