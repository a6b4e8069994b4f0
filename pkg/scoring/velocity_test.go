package scoring

import (
	"testing"
	"time"
)

func TestRequestsPerMinuteNeedsTwoPoints(t *testing.T) {
	now := time.Now()
	if rpm := RequestsPerMinute(nil, now); rpm != 0 {
		t.Fatalf("expected 0 rpm for empty ring, got %f", rpm)
	}
	if rpm := RequestsPerMinute([]time.Time{now}, now); rpm != 0 {
		t.Fatalf("expected 0 rpm for single timestamp, got %f", rpm)
	}
}

func TestRequestsPerMinuteBurstFloorsSpan(t *testing.T) {
	now := time.Now()
	var ring []time.Time
	for i := 0; i < 30; i++ {
		ring = append(ring, now.Add(-time.Duration(30-i)*100*time.Millisecond))
	}

	// 30 requests inside 3 seconds; the span floor makes this 30/1min.
	rpm := RequestsPerMinute(ring, now)
	if rpm != 30 {
		t.Fatalf("expected burst rpm 30, got %f", rpm)
	}
}

func TestRequestsPerMinuteIgnoresStaleEntries(t *testing.T) {
	now := time.Now()
	ring := []time.Time{
		now.Add(-20 * time.Minute),
		now.Add(-15 * time.Minute),
		now.Add(-10 * time.Minute),
		now.Add(-30 * time.Second),
	}

	// Only one entry is inside the trailing window, so no signal.
	if rpm := RequestsPerMinute(ring, now); rpm != 0 {
		t.Fatalf("expected 0 rpm with one in-window entry, got %f", rpm)
	}
}

func TestRequestsPerMinuteSteadyRate(t *testing.T) {
	now := time.Now()
	var ring []time.Time
	for i := 8; i >= 0; i-- {
		ring = append(ring, now.Add(-time.Duration(i)*30*time.Second))
	}

	// 9 requests over a 4 minute span.
	rpm := RequestsPerMinute(ring, now)
	want := 9.0 / 4.0
	if diff := rpm - want; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("expected rpm %f, got %f", want, rpm)
	}
}

func TestVelocityScoreBoundsAndMonotonicity(t *testing.T) {
	if s := VelocityScore(0, 30); s != 0 {
		t.Fatalf("expected 0 at zero rpm, got %f", s)
	}
	if s := VelocityScore(15, 30); s != 0.5 {
		t.Fatalf("expected 0.5 at half the ceiling, got %f", s)
	}
	if s := VelocityScore(30, 30); s != 1 {
		t.Fatalf("expected saturation at the ceiling, got %f", s)
	}
	if s := VelocityScore(900, 30); s != 1 {
		t.Fatalf("expected clamp above the ceiling, got %f", s)
	}

	prev := -1.0
	for rpm := 0.0; rpm <= 60; rpm += 1.5 {
		s := VelocityScore(rpm, 30)
		if s < prev {
			t.Fatalf("velocity score decreased at rpm %f: %f < %f", rpm, s, prev)
		}
		prev = s
	}
}

func TestVelocityScoreDefaultCeiling(t *testing.T) {
	if s := VelocityScore(DefaultRPMCeiling, 0); s != 1 {
		t.Fatalf("expected fallback ceiling to saturate, got %f", s)
	}
}
