package sequence

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kbukum/signalhub/internal/kvstore"
	"github.com/kbukum/signalhub/internal/logger"
)

// ErrAlreadyRunning is returned by Start when a sequence is already active
// for the entity id. Callers should treat it as "already running", not a fault.
var ErrAlreadyRunning = errors.New("sequence already running for entity")

// Status is the lifecycle state of a sequence run.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Step is one element of an ordered sequence: wait DelayBefore, then Send.
// Steps are immutable once a run starts.
type Step struct {
	// DelayBefore is how long to wait before this step fires.
	DelayBefore time.Duration
	// Label names the step in snapshots and logs.
	Label string
	// Send builds the payload and invokes the notifier for this step.
	Send func(ctx context.Context) error
}

// Snapshot is the progress record written to the store after each step.
type Snapshot struct {
	EntityID  string    `json:"entity_id"`
	Step      int       `json:"step"`
	Label     string    `json:"label"`
	Status    Status    `json:"status"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Handle observes a background sequence run. Completion and errors are
// surfaced here rather than silently dropped inside the goroutine.
type Handle struct {
	done chan struct{}

	mu     sync.Mutex
	status Status
	err    error
}

// Done returns a channel closed when the run terminates.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Status returns the current lifecycle state of the run.
func (h *Handle) Status() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

// Err returns the step error for a failed run, nil otherwise.
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

func (h *Handle) set(status Status, err error) {
	h.mu.Lock()
	h.status = status
	h.err = err
	h.mu.Unlock()
}

// Sequencer runs ordered step sequences as background tasks, writing
// progress snapshots to the keyed expiring store under "seq:<entity_id>".
type Sequencer struct {
	guard       *Guard
	store       kvstore.Store
	log         *logger.Logger
	snapshotTTL time.Duration
}

// NewSequencer creates a sequencer writing snapshots with the given TTL.
// A ttl of 0 keeps snapshots until explicitly deleted.
func NewSequencer(guard *Guard, store kvstore.Store, snapshotTTL time.Duration, log *logger.Logger) *Sequencer {
	return &Sequencer{
		guard:       guard,
		store:       store,
		log:         log.WithComponent("sequencer"),
		snapshotTTL: snapshotTTL,
	}
}

// SnapshotKey returns the store key holding the progress snapshot for an entity.
func SnapshotKey(entityID string) string {
	return "seq:" + entityID
}

// Start claims the guard for entityID and launches the step runner as a
// background task. It returns immediately: the caller gets a Handle while
// the steps run with their configured delays. ErrAlreadyRunning is returned
// when a sequence is already active for the entity.
//
// The run is detached from the caller's cancellation: an HTTP trigger
// returning does not abort the sequence. Once claimed, a sequence always
// runs to completion or failure.
func (s *Sequencer) Start(ctx context.Context, entityID string, steps []Step) (*Handle, error) {
	if entityID == "" {
		return nil, errors.New("entity id is required")
	}
	if len(steps) == 0 {
		return nil, errors.New("at least one step is required")
	}
	if !s.guard.TryClaim(entityID) {
		return nil, ErrAlreadyRunning
	}

	h := &Handle{done: make(chan struct{}), status: StatusPending}
	go s.run(context.WithoutCancel(ctx), entityID, steps, h)
	return h, nil
}

// run executes the steps in order. The guard release and handle completion
// are deferred so every exit path, including a panicking Send, unlocks the
// entity.
func (s *Sequencer) run(ctx context.Context, entityID string, steps []Step, h *Handle) {
	log := s.log.WithFields(logger.Fields("entity_id", entityID))

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("sequence panic: %v", r)
			h.set(StatusFailed, err)
			log.Error("Sequence panicked", logger.Fields("panic", fmt.Sprintf("%v", r)))
		}
		s.guard.Release(entityID)
		close(h.done)
	}()

	h.set(StatusRunning, nil)
	log.Info("Sequence started", logger.Fields("steps", len(steps)))

	for i, step := range steps {
		if step.DelayBefore > 0 {
			timer := time.NewTimer(step.DelayBefore)
			select {
			case <-ctx.Done():
				timer.Stop()
				h.set(StatusFailed, ctx.Err())
				return
			case <-timer.C:
			}
		}

		if err := step.Send(ctx); err != nil {
			h.set(StatusFailed, err)
			s.writeSnapshot(ctx, entityID, i, step.Label, StatusFailed)
			log.Error("Sequence step failed", logger.Fields(
				"step", i,
				"label", step.Label,
				"error", err.Error(),
			))
			return
		}

		status := StatusRunning
		if i == len(steps)-1 {
			status = StatusCompleted
		}
		s.writeSnapshot(ctx, entityID, i, step.Label, status)
		log.Info("Sequence step sent", logger.Fields("step", i, "label", step.Label))
	}

	h.set(StatusCompleted, nil)
	log.Info("Sequence completed")
}

func (s *Sequencer) writeSnapshot(ctx context.Context, entityID string, step int, label string, status Status) {
	snap := Snapshot{
		EntityID:  entityID,
		Step:      step,
		Label:     label,
		Status:    status,
		UpdatedAt: time.Now().UTC(),
	}
	if !s.store.Set(ctx, SnapshotKey(entityID), snap, s.snapshotTTL) {
		s.log.Warn("Failed to persist sequence snapshot", logger.Fields(
			"entity_id", entityID,
			"step", step,
		))
	}
}
