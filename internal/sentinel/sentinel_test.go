package sentinel

import (
	"testing"
	"time"
)

func TestInitialStatusIsClosed(t *testing.T) {
	s := New([]string{"a"}, 0.5, 30*time.Second, 10)
	if s.Status("a") != Closed {
		t.Fatalf("expected initial status CLOSED, got %v", s.Status("a"))
	}
}

func TestTripsOpenWhenFailureRatioExceedsThreshold(t *testing.T) {
	s := New([]string{"a"}, 0.5, 30*time.Second, 10)

	// 6 failures, 4 successes -> 0.6 > 0.5 threshold, window full at 10.
	for i := 0; i < 6; i++ {
		s.Record("a", false)
	}
	for i := 0; i < 4; i++ {
		s.Record("a", true)
	}

	if got := s.Status("a"); got != Open {
		t.Fatalf("expected OPEN after exceeding failure threshold, got %v", got)
	}
}

func TestStaysClosedWhenFailureRatioAtThreshold(t *testing.T) {
	s := New([]string{"a"}, 0.5, 30*time.Second, 10)

	// Exactly 5/10 failures: ratio equals threshold, not strictly greater.
	for i := 0; i < 5; i++ {
		s.Record("a", false)
		s.Record("a", true)
	}

	if got := s.Status("a"); got != Closed {
		t.Fatalf("expected CLOSED when ratio equals (not exceeds) threshold, got %v", got)
	}
}

func TestLazyTransitionToHalfOpenAfterRecoveryTimeout(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }

	s := New([]string{"a"}, 0.5, 10*time.Second, 10).WithClock(clock)
	for i := 0; i < 10; i++ {
		s.Record("a", false)
	}
	if s.Status("a") != Open {
		t.Fatalf("expected OPEN immediately after tripping")
	}

	// Not yet elapsed.
	now = now.Add(5 * time.Second)
	if got := s.Status("a"); got != Open {
		t.Fatalf("expected still OPEN before recovery timeout elapses, got %v", got)
	}

	// Elapsed.
	now = now.Add(6 * time.Second)
	if got := s.Status("a"); got != HalfOpen {
		t.Fatalf("expected HALF_OPEN once recovery timeout elapses, got %v", got)
	}
}

func TestHalfOpenProbeSuccessClosesBreaker(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }

	s := New([]string{"a"}, 0.5, 10*time.Second, 10).WithClock(clock)
	for i := 0; i < 10; i++ {
		s.Record("a", false)
	}
	now = now.Add(11 * time.Second)
	if s.Status("a") != HalfOpen {
		t.Fatalf("setup: expected HALF_OPEN")
	}

	s.Record("a", true)
	if got := s.Status("a"); got != Closed {
		t.Fatalf("expected CLOSED after a successful HALF_OPEN probe, got %v", got)
	}

	snap := s.Snapshot()["a"]
	if len(snap.Window) != 1 || !snap.Window[0] {
		t.Fatalf("expected window reset to [true] after probe success, got %+v", snap.Window)
	}
}

func TestHalfOpenProbeFailureReopensBreaker(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }

	s := New([]string{"a"}, 0.5, 10*time.Second, 10).WithClock(clock)
	for i := 0; i < 10; i++ {
		s.Record("a", false)
	}
	now = now.Add(11 * time.Second)
	if s.Status("a") != HalfOpen {
		t.Fatalf("setup: expected HALF_OPEN")
	}

	s.Record("a", false)
	if got := s.Status("a"); got != Open {
		t.Fatalf("expected OPEN again after a failed HALF_OPEN probe, got %v", got)
	}

	// The reopen must reset the recovery timer: immediately after the
	// failed probe it should still be OPEN, not eligible for another
	// immediate HALF_OPEN promotion.
	if got := s.Status("a"); got != Open {
		t.Fatalf("expected OPEN to persist with a freshly reset timer, got %v", got)
	}
}

func TestSnapshotReturnsIndependentCopyOfWindow(t *testing.T) {
	s := New([]string{"a"}, 0.5, 30*time.Second, 10)
	s.Record("a", true)
	s.Record("a", false)

	snap := s.Snapshot()["a"]
	snap.Window[0] = false // mutate the copy

	again := s.Snapshot()["a"]
	if !again.Window[0] {
		t.Fatalf("expected internal window to be unaffected by mutating a prior snapshot")
	}
}

func TestBucketLazilyCreatesUnknownGateways(t *testing.T) {
	s := New([]string{"a"}, 0.5, 30*time.Second, 10)
	if got := s.Status("unregistered"); got != Closed {
		t.Fatalf("expected a never-seen gateway to default to CLOSED, got %v", got)
	}
}
