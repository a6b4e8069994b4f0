package session

import (
	"testing"
	"time"
)

func TestAppendTimestampTrimsOldestFirst(t *testing.T) {
	now := time.Now()
	sess := NewIdentity("u1", now)

	for i := 0; i < MaxRecentTimestamps+10; i++ {
		sess.AppendTimestamp(now.Add(time.Duration(i) * time.Second))
	}

	if len(sess.RecentTimestamps) != MaxRecentTimestamps {
		t.Fatalf("expected ring capped at %d, got %d", MaxRecentTimestamps, len(sess.RecentTimestamps))
	}
	// The 10 oldest entries were dropped.
	if !sess.RecentTimestamps[0].Equal(now.Add(10 * time.Second)) {
		t.Fatalf("expected oldest surviving entry at +10s, got %v", sess.RecentTimestamps[0])
	}
}

func TestAppendTimestampLastActiveMonotonic(t *testing.T) {
	now := time.Now()
	sess := NewIdentity("u1", now)

	sess.AppendTimestamp(now.Add(time.Minute))
	if !sess.LastActiveAt.Equal(now.Add(time.Minute)) {
		t.Fatalf("expected last active to advance")
	}

	// An out-of-order timestamp must not move last active backwards.
	sess.AppendTimestamp(now.Add(-time.Hour))
	if !sess.LastActiveAt.Equal(now.Add(time.Minute)) {
		t.Fatalf("expected last active unchanged on stale append, got %v", sess.LastActiveAt)
	}
}

func TestActiveDuration(t *testing.T) {
	now := time.Now()
	sess := NewIdentity("u1", now)

	if d := sess.ActiveDuration(now); d != 0 {
		t.Fatalf("expected 0 duration before latch, got %f", d)
	}

	anchor := now.Add(-7 * time.Minute)
	sess.FirstSeenAt = &anchor
	if d := sess.ActiveDuration(now); d < 6.99 || d > 7.01 {
		t.Fatalf("expected ~7 minutes, got %f", d)
	}

	// Clock skew before the anchor clamps to 0.
	if d := sess.ActiveDuration(anchor.Add(-time.Minute)); d != 0 {
		t.Fatalf("expected negative duration clamped, got %f", d)
	}
}

func TestCloneIsDeep(t *testing.T) {
	now := time.Now()
	sess := NewIdentity("u1", now)
	sess.AppendTimestamp(now)
	sess.LastQueryEmbedding = []float32{0.1, 0.2}
	anchor := now
	sess.FirstSeenAt = &anchor

	cp := sess.Clone()
	cp.RecentTimestamps[0] = now.Add(time.Hour)
	cp.LastQueryEmbedding[0] = 0.9
	*cp.FirstSeenAt = now.Add(time.Hour)

	if sess.RecentTimestamps[0].Equal(now.Add(time.Hour)) {
		t.Fatalf("clone aliased the timestamp ring")
	}
	if sess.LastQueryEmbedding[0] != 0.1 {
		t.Fatalf("clone aliased the embedding")
	}
	if !sess.FirstSeenAt.Equal(now) {
		t.Fatalf("clone aliased the anchor")
	}
}

func TestAuditRecordNoisyServed(t *testing.T) {
	rec := &AuditRecord{CleanResponse: "a", ServedResponse: "a"}
	if rec.NoisyServed() {
		t.Fatalf("expected clean serve to report false")
	}
	rec.ServedResponse = "b"
	if !rec.NoisyServed() {
		t.Fatalf("expected perturbed serve to report true")
	}
}
