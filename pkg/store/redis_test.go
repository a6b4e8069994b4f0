package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/miragesec/mirage/pkg/session"
)

func newTestRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)

	s, err := NewRedisStore(context.Background(), "redis://"+mr.Addr(), time.Hour)
	if err != nil {
		t.Fatalf("failed to create redis store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRedisSessionRoundTrip(t *testing.T) {
	s := newTestRedisStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Millisecond)
	sess := session.NewIdentity("u1", now)
	sess.AppendTimestamp(now)
	sess.LastQueryEmbedding = []float32{0.25, 0.5}
	sess.DynamicMeanRPM = 12.5
	sess.Tier = 2
	anchor := now.Add(-3 * time.Minute)
	sess.FirstSeenAt = &anchor

	if err := s.PutSession(ctx, sess); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	got, err := s.GetSession(ctx, "u1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Tier != 2 || got.DynamicMeanRPM != 12.5 {
		t.Fatalf("scalar fields lost: %+v", got)
	}
	if got.FirstSeenAt == nil || !got.FirstSeenAt.Equal(anchor) {
		t.Fatalf("escalation anchor lost: %v", got.FirstSeenAt)
	}
	if len(got.RecentTimestamps) != 1 || !got.RecentTimestamps[0].Equal(now) {
		t.Fatalf("timestamp ring lost: %v", got.RecentTimestamps)
	}
	if len(got.LastQueryEmbedding) != 2 || got.LastQueryEmbedding[1] != 0.5 {
		t.Fatalf("embedding lost: %v", got.LastQueryEmbedding)
	}
}

func TestRedisUpdateLedgerReceipt(t *testing.T) {
	s := newTestRedisStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Millisecond)
	sess := session.NewIdentity("u1", now)
	sess.TotalQueries = 7
	sess.AppendTimestamp(now)
	if err := s.PutSession(ctx, sess); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	if err := s.UpdateLedgerReceipt(ctx, "u1", "0xdead", "h-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := s.GetSession(ctx, "u1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.LedgerTx != "0xdead" || got.LedgerHashID != "h-1" {
		t.Fatalf("expected receipt stamped, got %+v", got)
	}
	if got.TotalQueries != 7 || len(got.RecentTimestamps) != 1 {
		t.Fatalf("receipt write must not touch other fields, got %+v", got)
	}

	// Unknown identities are a no-op, never an implicit create.
	if err := s.UpdateLedgerReceipt(ctx, "ghost", "0x1", "h-2"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sessions, err := s.ListSessions(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("expected no session created for unknown identity, got %d", len(sessions))
	}
}

func TestRedisGetSessionCreatesDefault(t *testing.T) {
	s := newTestRedisStore(t)

	sess, err := s.GetSession(context.Background(), "new-id")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sess.ID != "new-id" || sess.Tier != 1 || sess.FirstSeenAt != nil {
		t.Fatalf("expected default record, got %+v", sess)
	}
}

func TestRedisAuditNewestFirst(t *testing.T) {
	s := newTestRedisStore(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		rec := &session.AuditRecord{ID: fmt.Sprintf("r%d", i), Identity: "u1", Tier: 2}
		if err := s.AppendAudit(ctx, rec); err != nil {
			t.Fatalf("append failed: %v", err)
		}
	}

	logs, err := s.ListAudit(ctx, 2)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(logs) != 2 || logs[0].ID != "r3" || logs[1].ID != "r2" {
		t.Fatalf("expected newest-first [r3 r2], got %v", logs)
	}
}

func TestRedisLedgerEvents(t *testing.T) {
	s := newTestRedisStore(t)
	ctx := context.Background()

	ev := &session.LedgerEvent{ID: "e1", Identity: "u1", Tier: 3, Status: "accepted", TxHash: "0xabc"}
	if err := s.AppendLedgerEvent(ctx, ev); err != nil {
		t.Fatalf("append failed: %v", err)
	}

	events, err := s.ListLedgerEvents(ctx, 10)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(events) != 1 || events[0].TxHash != "0xabc" || events[0].Status != "accepted" {
		t.Fatalf("unexpected events: %v", events)
	}
}

func TestRedisListSessionsAndTierCounts(t *testing.T) {
	s := newTestRedisStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for i, tier := range []int{1, 2, 2} {
		sess := session.NewIdentity(fmt.Sprintf("u%d", i), now.Add(time.Duration(i)*time.Minute))
		sess.Tier = tier
		if err := s.PutSession(ctx, sess); err != nil {
			t.Fatalf("put failed: %v", err)
		}
	}

	sessions, err := s.ListSessions(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(sessions) != 3 || sessions[0].ID != "u2" {
		t.Fatalf("expected 3 sessions most recent first, got %v", sessions)
	}

	counts, err := s.TierCounts(ctx)
	if err != nil {
		t.Fatalf("counts failed: %v", err)
	}
	if counts[1] != 1 || counts[2] != 2 {
		t.Fatalf("unexpected counts: %v", counts)
	}
}
