package energy

import (
	"math"
	"testing"
	"time"
)

func TestFirstObservationIsBaseline(t *testing.T) {
	m := NewMeter()
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if got := m.Accumulate("ac-1", 1500, t0); got != 0 {
		t.Fatalf("first Accumulate = %v, want 0", got)
	}
	if got := m.Total("ac-1"); got != 0 {
		t.Fatalf("Total after baseline = %v, want 0", got)
	}
}

func TestOneKilowattForOneHour(t *testing.T) {
	m := NewMeter()
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	m.Accumulate("ac-1", 1000, t0)
	got := m.Accumulate("ac-1", 1000, t0.Add(time.Hour))
	if math.Abs(got-1.0) > 1e-9 {
		t.Fatalf("cumulative = %v, want 1.0 kWh", got)
	}
}

func TestUsesPreviousSamplePower(t *testing.T) {
	m := NewMeter()
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	m.Accumulate("ac-1", 1000, t0)
	first := m.Accumulate("ac-1", 2000, t0.Add(time.Hour))
	if math.Abs(first-1.0) > 1e-9 {
		t.Fatalf("after power step, cumulative = %v, want 1.0 (previous sample rules)", first)
	}
	second := m.Accumulate("ac-1", 0, t0.Add(2*time.Hour))
	if math.Abs(second-3.0) > 1e-9 {
		t.Fatalf("cumulative = %v, want 3.0", second)
	}
}

func TestMonotonicallyNonDecreasing(t *testing.T) {
	m := NewMeter()
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	powers := []float64{850, 0, 1200, 30, 0, 0, 2200, 5}
	prev := 0.0
	for i, p := range powers {
		got := m.Accumulate("ac-1", p, t0.Add(time.Duration(i)*7*time.Second))
		if got < prev {
			t.Fatalf("total decreased at sample %d: %v -> %v", i, prev, got)
		}
		prev = got
	}
}

func TestStaleTimestampAddsNothing(t *testing.T) {
	m := NewMeter()
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	m.Accumulate("ac-1", 1000, t0)
	m.Accumulate("ac-1", 1000, t0.Add(time.Hour))
	before := m.Total("ac-1")
	after := m.Accumulate("ac-1", 1000, t0)
	if after != before {
		t.Fatalf("stale sample changed the total: %v -> %v", before, after)
	}
}

func TestDevicesAreIndependent(t *testing.T) {
	m := NewMeter()
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	m.Accumulate("ac-1", 1000, t0)
	m.Accumulate("ac-1", 1000, t0.Add(time.Hour))
	if got := m.Total("ac-2"); got != 0 {
		t.Fatalf("unrelated device Total = %v, want 0", got)
	}

	totals := m.Totals()
	if len(totals) != 1 || math.Abs(totals["ac-1"]-1.0) > 1e-9 {
		t.Fatalf("Totals = %v", totals)
	}
}
