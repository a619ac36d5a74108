// Package delivery drives the three-step package tracking notification
// sequence (pickup, in transit, delivered).
package delivery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kbukum/signalhub/internal/logger"
	"github.com/kbukum/signalhub/internal/notify"
	"github.com/kbukum/signalhub/internal/sequence"
)

// Step labels, in delivery order.
const (
	LabelPickup    = "Delivery Pickup"
	LabelInTransit = "In transit"
	LabelDelivered = "Delivered"
)

// Request starts tracking one parcel.
type Request struct {
	TrackingID           string `json:"tracking_id" binding:"required"`
	ExternalID           string `json:"external_id" binding:"required"`
	ParcelDestination    string `json:"parcel_destination"`
	SendParcel           bool   `json:"send_parcel"`
	DemoMode             bool   `json:"demo_mode"`
	NotificationInterval int    `json:"notification_interval"` // seconds, overrides config
}

// Result is the structured outcome returned to the trigger caller.
type Result struct {
	Status               string `json:"status"`
	Message              string `json:"message"`
	TrackingID           string `json:"tracking_id,omitempty"`
	DemoMode             bool   `json:"demo_mode,omitempty"`
	NotificationInterval int    `json:"notification_interval,omitempty"`
}

// Config holds delivery sequence configuration.
type Config struct {
	// Interval is the default delay between notifications (e.g. "60s").
	// Demo requests override it per call.
	Interval string `yaml:"interval" mapstructure:"interval"`
}

// ApplyDefaults sets sensible defaults for zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.Interval == "" {
		c.Interval = "60s"
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if _, err := time.ParseDuration(c.Interval); err != nil {
		return fmt.Errorf("delivery.interval: %w", err)
	}
	return nil
}

// Service schedules delivery sequences through the sequencer.
type Service struct {
	seq       *sequence.Sequencer
	notifier  notify.Notifier
	templates notify.Templates
	interval  time.Duration
	log       *logger.Logger
}

// NewService creates the delivery service.
func NewService(seq *sequence.Sequencer, notifier notify.Notifier, templates notify.Templates, cfg Config, log *logger.Logger) *Service {
	cfg.ApplyDefaults()
	interval, _ := time.ParseDuration(cfg.Interval)
	return &Service{
		seq:       seq,
		notifier:  notifier,
		templates: templates,
		interval:  interval,
		log:       log.WithComponent("delivery"),
	}
}

// Track claims the tracking id and starts the three-step sequence as a
// background task, returning immediately with a "started" acknowledgment.
// A sequence already running for the id yields an "already tracking" result,
// not a fault. The returned handle observes the background run; it is nil
// when no sequence was started.
func (s *Service) Track(ctx context.Context, req Request) (Result, *sequence.Handle) {
	interval := s.interval
	if req.NotificationInterval > 0 {
		interval = time.Duration(req.NotificationInterval) * time.Second
	}
	if req.DemoMode {
		s.log.Info("Demo mode enabled", logger.Fields(
			"tracking_id", req.TrackingID,
			"interval", interval.String(),
		))
	}

	handle, err := s.seq.Start(ctx, req.TrackingID, s.buildSteps(req, interval))
	if err != nil {
		if errors.Is(err, sequence.ErrAlreadyRunning) {
			return Result{
				Status:  "error",
				Message: fmt.Sprintf("Already tracking %s", req.TrackingID),
			}, nil
		}
		return Result{Status: "error", Message: err.Error()}, nil
	}

	res := Result{
		Status:     "success",
		Message:    fmt.Sprintf("Started tracking %s", req.TrackingID),
		TrackingID: req.TrackingID,
	}
	if req.DemoMode {
		res.DemoMode = true
		res.NotificationInterval = int(interval / time.Second)
	}
	return res, handle
}

// buildSteps declares the fixed sequence: the first notification fires
// immediately, the rest after the configured interval.
func (s *Service) buildSteps(req Request, interval time.Duration) []sequence.Step {
	labels := []string{LabelPickup, LabelInTransit, LabelDelivered}
	templateIDs := map[string]string{
		LabelPickup:    s.templates.DeliveryPickup,
		LabelInTransit: s.templates.InTransit,
		LabelDelivered: s.templates.Delivered,
	}

	steps := make([]sequence.Step, 0, len(labels))
	for i, label := range labels {
		delay := interval
		if i == 0 {
			delay = 0
		}
		templateID := templateIDs[label]
		steps = append(steps, sequence.Step{
			DelayBefore: delay,
			Label:       label,
			Send: func(ctx context.Context) error {
				return s.notifier.SendTemplate(ctx, notify.Message{
					App:         notify.AppPost,
					Channel:     notify.ChannelPush,
					TemplateID:  templateID,
					ExternalIDs: []string{req.ExternalID},
					CustomData: map[string]any{
						"tracking_id":        req.TrackingID,
						"parcel_destination": req.ParcelDestination,
					},
				})
			},
		})
	}
	return steps
}
