// Package flight drives the flight-update live activity: a persisted
// activity record plus a timed update→update→end notification sequence.
package flight

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kbukum/signalhub/internal/kvstore"
	"github.com/kbukum/signalhub/internal/logger"
	"github.com/kbukum/signalhub/internal/notify"
	"github.com/kbukum/signalhub/internal/sequence"
)

// Activity statuses, in lifecycle order.
const (
	StatusGate      = "gate"
	StatusBoarding  = "boarding"
	StatusFinalCall = "finalCall"
	StatusEnded     = "ended"
)

// ContentState is the activity's display state.
type ContentState struct {
	Gate         string `json:"gate"`
	BoardingTime string `json:"boardingTime"`
	Group        int    `json:"group,omitempty"`
}

// Request starts a live activity sequence.
type Request struct {
	ActivityID   string       `json:"activity_id" binding:"required"`
	ActivityType string       `json:"activity_type"`
	ContentState ContentState `json:"content_state"`
}

// Record is the stored live-activity state. Its Status field advances
// gate → boarding → finalCall → ended as the sequence progresses.
type Record struct {
	ActivityID string       `json:"activity_id"`
	Type       string       `json:"type"`
	State      ContentState `json:"state"`
	Status     string       `json:"status"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

// Result is the structured outcome returned to the trigger caller.
type Result struct {
	Status     string `json:"status"`
	Message    string `json:"message,omitempty"`
	ActivityID string `json:"activity_id,omitempty"`
}

// Config holds flight sequence configuration.
type Config struct {
	// StepDelay is the pause before each sequence step (e.g. "10s").
	StepDelay string `yaml:"step_delay" mapstructure:"step_delay"`
	// RecordTTL bounds how long the activity record is kept (e.g. "24h").
	RecordTTL string `yaml:"record_ttl" mapstructure:"record_ttl"`
}

// ApplyDefaults sets sensible defaults for zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.StepDelay == "" {
		c.StepDelay = "10s"
	}
	if c.RecordTTL == "" {
		c.RecordTTL = "24h"
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	for name, v := range map[string]string{"step_delay": c.StepDelay, "record_ttl": c.RecordTTL} {
		if _, err := time.ParseDuration(v); err != nil {
			return fmt.Errorf("flight.%s: %w", name, err)
		}
	}
	return nil
}

// RecordKey returns the store key for an activity record.
func RecordKey(activityID string) string {
	return "live:flightUpdate:" + activityID
}

// Service schedules live-activity sequences through the sequencer.
type Service struct {
	seq       *sequence.Sequencer
	notifier  notify.Notifier
	store     kvstore.Store
	stepDelay time.Duration
	recordTTL time.Duration
	log       *logger.Logger
}

// NewService creates the flight service.
func NewService(seq *sequence.Sequencer, notifier notify.Notifier, store kvstore.Store, cfg Config, log *logger.Logger) *Service {
	cfg.ApplyDefaults()
	stepDelay, _ := time.ParseDuration(cfg.StepDelay)
	recordTTL, _ := time.ParseDuration(cfg.RecordTTL)
	return &Service{
		seq:       seq,
		notifier:  notifier,
		store:     store,
		stepDelay: stepDelay,
		recordTTL: recordTTL,
		log:       log.WithComponent("flight"),
	}
}

// Start launches the update→update→end sequence as a background task and
// persists the baseline activity record. The sequence claim happens first:
// a retried trigger during a running sequence gets an "already running"
// result and never touches the live record.
func (s *Service) Start(ctx context.Context, req Request) (Result, *sequence.Handle) {
	if req.ActivityType == "" {
		req.ActivityType = "flightUpdate"
	}

	handle, err := s.seq.Start(ctx, req.ActivityID, s.buildSteps(req.ActivityID))
	if err != nil {
		if errors.Is(err, sequence.ErrAlreadyRunning) {
			return Result{
				Status:  "error",
				Message: fmt.Sprintf("Sequence already running for %s", req.ActivityID),
			}, nil
		}
		return Result{Status: "error", Message: err.Error()}, nil
	}

	s.register(ctx, req)
	return Result{Status: "started", ActivityID: req.ActivityID}, handle
}

// register writes the baseline record for a newly claimed sequence. The
// first step fires only after the configured delay, so the baseline is in
// place before any update advances it.
func (s *Service) register(ctx context.Context, req Request) {
	now := time.Now().UTC()
	rec := Record{
		ActivityID: req.ActivityID,
		Type:       req.ActivityType,
		State:      req.ContentState,
		Status:     StatusGate,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if !s.store.Set(ctx, RecordKey(req.ActivityID), rec, s.recordTTL) {
		s.log.Warn("Failed to persist activity record", logger.Fields("activity_id", req.ActivityID))
	}
}

// buildSteps declares the three live-activity steps. The first two push
// "update" events; the last pushes "end", which dismisses the activity.
func (s *Service) buildSteps(activityID string) []sequence.Step {
	return []sequence.Step{
		{
			DelayBefore: s.stepDelay,
			Label:       StatusBoarding,
			Send: func(ctx context.Context) error {
				err := s.notifier.UpdateLiveActivity(ctx, activityID, "update", map[string]any{
					"status": StatusBoarding,
				})
				if err != nil {
					return err
				}
				s.updateRecord(ctx, activityID, StatusBoarding, 0)
				return nil
			},
		},
		{
			DelayBefore: s.stepDelay,
			Label:       StatusFinalCall,
			Send: func(ctx context.Context) error {
				err := s.notifier.UpdateLiveActivity(ctx, activityID, "update", map[string]any{
					"status": StatusFinalCall,
					"group":  2,
				})
				if err != nil {
					return err
				}
				s.updateRecord(ctx, activityID, StatusFinalCall, 2)
				return nil
			},
		},
		{
			DelayBefore: s.stepDelay,
			Label:       StatusEnded,
			Send: func(ctx context.Context) error {
				err := s.notifier.UpdateLiveActivity(ctx, activityID, "end", map[string]any{
					"status": "closed",
					"group":  "",
				})
				if err != nil {
					return err
				}
				s.updateRecord(ctx, activityID, StatusEnded, 0)
				return nil
			},
		},
	}
}

// updateRecord advances the stored record's status after a successful push.
func (s *Service) updateRecord(ctx context.Context, activityID, status string, group int) {
	key := RecordKey(activityID)
	var rec Record
	if !s.store.Get(ctx, key, &rec) {
		rec = Record{ActivityID: activityID, Type: "flightUpdate", CreatedAt: time.Now().UTC()}
	}
	rec.Status = status
	if group > 0 {
		rec.State.Group = group
	}
	rec.UpdatedAt = time.Now().UTC()
	if !s.store.Set(ctx, key, rec, s.recordTTL) {
		s.log.Warn("Failed to update activity record", logger.Fields("activity_id", activityID))
	}
}
