package sequence

import (
	"sync"
	"testing"
)

func TestGuard_ClaimAndRelease(t *testing.T) {
	g := NewGuard()

	if !g.TryClaim("e1") {
		t.Fatal("first claim should succeed")
	}
	if g.TryClaim("e1") {
		t.Fatal("second claim for same entity should fail")
	}
	if !g.TryClaim("e2") {
		t.Fatal("claim for different entity should succeed")
	}

	g.Release("e1")
	if !g.TryClaim("e1") {
		t.Fatal("claim after release should succeed")
	}
}

func TestGuard_ReleaseUnknownIsNoop(t *testing.T) {
	g := NewGuard()
	g.Release("never-claimed")

	if !g.TryClaim("never-claimed") {
		t.Fatal("claim should succeed after releasing an unknown entity")
	}
}

func TestGuard_Active(t *testing.T) {
	g := NewGuard()

	if g.Active("e1") {
		t.Fatal("unclaimed entity should not be active")
	}
	g.TryClaim("e1")
	if !g.Active("e1") {
		t.Fatal("claimed entity should be active")
	}
	g.Release("e1")
	if g.Active("e1") {
		t.Fatal("released entity should not be active")
	}
}

func TestGuard_ConcurrentClaimsSingleWinner(t *testing.T) {
	g := NewGuard()

	const workers = 50
	var wg sync.WaitGroup
	var mu sync.Mutex
	won := 0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if g.TryClaim("contested") {
				mu.Lock()
				won++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if won != 1 {
		t.Fatalf("expected exactly one winner, got %d", won)
	}
}
