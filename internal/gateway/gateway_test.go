package gateway

import (
	"context"
	"math/rand"
	"testing"
)

func TestScriptedConsumesInOrderThenRepeatsLast(t *testing.T) {
	s := NewScripted(map[string][]Outcome{
		"stripe": {
			{Status: StatusFailure, ErrorKind: ErrorTimeout},
			{Status: StatusSuccess},
		},
	})
	ctx := context.Background()

	out := s.Execute(ctx, "stripe", 10, "USD")
	if out.Status != StatusFailure || out.ErrorKind != ErrorTimeout {
		t.Fatalf("call 1: got %+v", out)
	}
	out = s.Execute(ctx, "stripe", 10, "USD")
	if out.Status != StatusSuccess {
		t.Fatalf("call 2: got %+v", out)
	}
	out = s.Execute(ctx, "stripe", 10, "USD")
	if out.Status != StatusSuccess {
		t.Fatalf("call 3 (past end of script) should repeat last entry: got %+v", out)
	}
	if s.CallCount() != 3 {
		t.Fatalf("expected 3 recorded calls, got %d", s.CallCount())
	}
}

func TestScriptedUnknownGatewayIsNotFound(t *testing.T) {
	s := NewScripted(map[string][]Outcome{})
	out := s.Execute(context.Background(), "unknown", 10, "USD")
	if out.Status != StatusNotFound {
		t.Fatalf("expected StatusNotFound, got %+v", out)
	}
}

func TestSimulatedFleetDeterministicUnderSeed(t *testing.T) {
	build := func() []Outcome {
		rng := rand.New(rand.NewSource(42))
		fleet := NewSimulatedFleet(rng, []string{"a", "b"}, 0.9, 200, 50)
		var out []Outcome
		for i := 0; i < 20; i++ {
			out = append(out, fleet.Execute(context.Background(), "a", 10, "USD"))
		}
		return out
	}

	first := build()
	second := build()
	for i := range first {
		if first[i].Status != second[i].Status || first[i].ErrorKind != second[i].ErrorKind {
			t.Fatalf("run diverged at call %d: %+v vs %+v", i, first[i], second[i])
		}
	}
}

func TestSimulatedFleetUpdateConfig(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	fleet := NewSimulatedFleet(rng, []string{"a"}, 0.9, 200, 50)

	zero := 0.0
	if !fleet.UpdateConfig("a", &zero, nil) {
		t.Fatal("expected UpdateConfig to find gateway a")
	}
	if fleet.UpdateConfig("missing", &zero, nil) {
		t.Fatal("expected UpdateConfig to fail for unknown gateway")
	}

	successes := 0
	for i := 0; i < 50; i++ {
		if fleet.Execute(context.Background(), "a", 10, "USD").Success() {
			successes++
		}
	}
	if successes != 0 {
		t.Fatalf("success rate forced to 0 but got %d successes out of 50", successes)
	}
}

func TestSimulatedFleetUnknownGatewayIsNotFound(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	fleet := NewSimulatedFleet(rng, []string{"a"}, 0.9, 200, 50)
	out := fleet.Execute(context.Background(), "b", 10, "USD")
	if out.Status != StatusNotFound {
		t.Fatalf("expected StatusNotFound, got %+v", out)
	}
}
