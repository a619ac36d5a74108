package sequence

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kbukum/signalhub/internal/kvstore"
	"github.com/kbukum/signalhub/internal/logger"
)

func newTestSequencer(t *testing.T) (*Sequencer, *Guard, kvstore.Store) {
	t.Helper()
	store := kvstore.NewMemoryStore(0, logger.NewNop())
	t.Cleanup(func() { store.Close() })

	guard := NewGuard()
	seq := NewSequencer(guard, store, time.Hour, logger.NewNop())
	return seq, guard, store
}

// recorder collects step firings with their timestamps.
type recorder struct {
	mu    sync.Mutex
	fired []firing
}

type firing struct {
	label string
	at    time.Time
}

func (r *recorder) step(delay time.Duration, label string) Step {
	return Step{
		DelayBefore: delay,
		Label:       label,
		Send: func(ctx context.Context) error {
			r.mu.Lock()
			r.fired = append(r.fired, firing{label: label, at: time.Now()})
			r.mu.Unlock()
			return nil
		},
	}
}

func (r *recorder) labels() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.fired))
	for i, f := range r.fired {
		out[i] = f.label
	}
	return out
}

func waitDone(t *testing.T, h *Handle) {
	t.Helper()
	select {
	case <-h.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("sequence did not finish in time")
	}
}

func TestSequencer_RunsStepsInOrder(t *testing.T) {
	seq, _, store := newTestSequencer(t)
	rec := &recorder{}

	h, err := seq.Start(context.Background(), "e1", []Step{
		rec.step(0, "first"),
		rec.step(10*time.Millisecond, "second"),
		rec.step(10*time.Millisecond, "third"),
	})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitDone(t, h)

	if h.Status() != StatusCompleted {
		t.Fatalf("expected completed, got %s", h.Status())
	}
	if h.Err() != nil {
		t.Fatalf("unexpected error: %v", h.Err())
	}

	labels := rec.labels()
	if len(labels) != 3 || labels[0] != "first" || labels[1] != "second" || labels[2] != "third" {
		t.Fatalf("unexpected firing order: %v", labels)
	}

	var snap Snapshot
	if !store.Get(context.Background(), SnapshotKey("e1"), &snap) {
		t.Fatal("expected final snapshot in store")
	}
	if snap.Status != StatusCompleted || snap.Step != 2 || snap.Label != "third" {
		t.Fatalf("unexpected final snapshot: %+v", snap)
	}
}

func TestSequencer_StepDelaysAreHonored(t *testing.T) {
	seq, _, _ := newTestSequencer(t)
	rec := &recorder{}
	delay := 50 * time.Millisecond

	start := time.Now()
	h, err := seq.Start(context.Background(), "e1", []Step{
		rec.step(0, "immediate"),
		rec.step(delay, "delayed"),
	})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitDone(t, h)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.fired) != 2 {
		t.Fatalf("expected 2 firings, got %d", len(rec.fired))
	}
	if gap := rec.fired[0].at.Sub(start); gap > delay/2 {
		t.Fatalf("first step should fire immediately, waited %v", gap)
	}
	if gap := rec.fired[1].at.Sub(rec.fired[0].at); gap < delay {
		t.Fatalf("second step fired too early: %v", gap)
	}
}

func TestSequencer_ContentionReturnsErrAlreadyRunning(t *testing.T) {
	seq, _, _ := newTestSequencer(t)
	release := make(chan struct{})

	h1, err := seq.Start(context.Background(), "e1", []Step{{
		Label: "blocking",
		Send: func(ctx context.Context) error {
			<-release
			return nil
		},
	}})
	if err != nil {
		t.Fatalf("first Start failed: %v", err)
	}

	_, err = seq.Start(context.Background(), "e1", []Step{{
		Label: "second",
		Send:  func(ctx context.Context) error { return nil },
	}})
	if !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}

	close(release)
	waitDone(t, h1)

	// Entity is claimable again after completion.
	h2, err := seq.Start(context.Background(), "e1", []Step{{
		Label: "after",
		Send:  func(ctx context.Context) error { return nil },
	}})
	if err != nil {
		t.Fatalf("Start after completion failed: %v", err)
	}
	waitDone(t, h2)
}

func TestSequencer_StepFailureStopsAndReleases(t *testing.T) {
	seq, guard, store := newTestSequencer(t)
	sendErr := errors.New("provider down")
	rec := &recorder{}

	h, err := seq.Start(context.Background(), "e1", []Step{
		rec.step(0, "ok"),
		{Label: "boom", Send: func(ctx context.Context) error { return sendErr }},
		rec.step(0, "never"),
	})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitDone(t, h)

	if h.Status() != StatusFailed {
		t.Fatalf("expected failed, got %s", h.Status())
	}
	if !errors.Is(h.Err(), sendErr) {
		t.Fatalf("expected step error, got %v", h.Err())
	}
	if labels := rec.labels(); len(labels) != 1 || labels[0] != "ok" {
		t.Fatalf("later steps must not fire after a failure: %v", labels)
	}
	if guard.Active("e1") {
		t.Fatal("guard must be released after failure")
	}

	var snap Snapshot
	if !store.Get(context.Background(), SnapshotKey("e1"), &snap) {
		t.Fatal("expected failure snapshot in store")
	}
	if snap.Status != StatusFailed || snap.Label != "boom" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}

func TestSequencer_PanicInSendReleasesGuard(t *testing.T) {
	seq, guard, _ := newTestSequencer(t)

	h, err := seq.Start(context.Background(), "e1", []Step{{
		Label: "panics",
		Send:  func(ctx context.Context) error { panic("boom") },
	}})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitDone(t, h)

	if h.Status() != StatusFailed {
		t.Fatalf("expected failed after panic, got %s", h.Status())
	}
	if guard.Active("e1") {
		t.Fatal("guard must be released after panic")
	}
}

func TestSequencer_DetachedFromCallerCancellation(t *testing.T) {
	seq, _, _ := newTestSequencer(t)
	rec := &recorder{}

	ctx, cancel := context.WithCancel(context.Background())
	h, err := seq.Start(ctx, "e1", []Step{
		rec.step(20*time.Millisecond, "after-cancel"),
	})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	cancel()
	waitDone(t, h)

	if h.Status() != StatusCompleted {
		t.Fatalf("caller cancellation must not abort the run, got %s", h.Status())
	}
	if labels := rec.labels(); len(labels) != 1 {
		t.Fatalf("expected step to fire despite cancellation: %v", labels)
	}
}

func TestSequencer_RejectsEmptyInput(t *testing.T) {
	seq, _, _ := newTestSequencer(t)

	if _, err := seq.Start(context.Background(), "", []Step{{Label: "x", Send: func(ctx context.Context) error { return nil }}}); err == nil {
		t.Fatal("expected error for empty entity id")
	}
	if _, err := seq.Start(context.Background(), "e1", nil); err == nil {
		t.Fatal("expected error for empty steps")
	}
}
