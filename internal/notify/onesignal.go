package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/kbukum/signalhub/internal/logger"
	"github.com/kbukum/signalhub/internal/resilience"
)

// OneSignal is the Notifier implementation backed by the OneSignal REST API.
type OneSignal struct {
	cfg    Config
	client *http.Client
	log    *logger.Logger
}

// NewOneSignal creates a OneSignal client.
func NewOneSignal(cfg Config, log *logger.Logger) (*OneSignal, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("onesignal config: %w", err)
	}
	timeout, _ := time.ParseDuration(cfg.Timeout)
	return &OneSignal{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		log:    log.WithComponent("onesignal"),
	}, nil
}

// SendTemplate renders and sends a template-based message.
func (o *OneSignal) SendTemplate(ctx context.Context, msg Message) error {
	creds, err := o.cfg.credentials(msg.App)
	if err != nil {
		return err
	}

	payload := map[string]any{
		"app_id":      creds.AppID,
		"template_id": msg.TemplateID,
	}
	switch msg.Channel {
	case ChannelSMS:
		payload["include_phone_numbers"] = msg.PhoneNumbers
	default:
		payload["include_aliases"] = map[string]any{"external_id": msg.ExternalIDs}
		payload["target_channel"] = ChannelPush
	}
	if len(msg.CustomData) > 0 {
		payload["custom_data"] = msg.CustomData
	}

	return o.post(ctx, o.cfg.BaseURL+"/notifications", creds.APIKey, payload)
}

// UpdateLiveActivity pushes an update or end event to a running live activity
// on the air app.
func (o *OneSignal) UpdateLiveActivity(ctx context.Context, activityID, event string, updates map[string]any) error {
	creds, err := o.cfg.credentials(AppAir)
	if err != nil {
		return err
	}

	endpoint := fmt.Sprintf("%s/apps/%s/live_activities/%s/notifications",
		o.cfg.BaseURL, url.PathEscape(creds.AppID), url.PathEscape(activityID))

	payload := map[string]any{
		"event":         event,
		"event_updates": updates,
		"name":          "flight-update",
	}
	return o.post(ctx, endpoint, creds.APIKey, payload)
}

// post sends a JSON payload with Basic auth, applying client-level retry when
// configured. A non-2xx provider response is an error.
func (o *OneSignal) post(ctx context.Context, endpoint, apiKey string, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	attempt := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Basic "+apiKey)

		resp, err := o.client.Do(req)
		if err != nil {
			return fmt.Errorf("onesignal request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return fmt.Errorf("onesignal returned %d: %s", resp.StatusCode, string(snippet))
		}
		o.log.Debug("Provider call succeeded", logger.Fields("endpoint", endpoint, "status", resp.StatusCode))
		return nil
	}

	if o.cfg.RetryAttempts > 1 {
		return resilience.RetryFunc(ctx, resilience.RetryConfig{
			MaxAttempts:    o.cfg.RetryAttempts,
			InitialBackoff: 200 * time.Millisecond,
			Jitter:         0.1,
			OnRetry: func(n int, err error, backoff time.Duration) {
				o.log.Warn("Retrying provider call", logger.Fields(
					"attempt", n,
					"backoff", backoff.String(),
					"error", err.Error(),
				))
			},
		}, attempt)
	}
	return attempt()
}

var _ Notifier = (*OneSignal)(nil)
