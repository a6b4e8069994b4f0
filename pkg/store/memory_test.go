package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/miragesec/mirage/pkg/session"
)

func TestMemoryGetSessionCreatesDefault(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	ctx := context.Background()

	sess, err := s.GetSession(ctx, "fresh")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sess.ID != "fresh" || sess.Tier != 1 {
		t.Fatalf("expected default record, got %+v", sess)
	}
	if sess.FirstSeenAt != nil {
		t.Fatalf("expected no escalation anchor on a new identity")
	}

	if _, err := s.GetSession(ctx, ""); err == nil {
		t.Fatalf("expected error for empty identity")
	}
}

func TestMemoryGetSessionReturnsClone(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	ctx := context.Background()

	a, _ := s.GetSession(ctx, "u1")
	a.AppendTimestamp(time.Now())
	a.Tier = 3

	// Uncommitted mutation must not leak into the store.
	b, _ := s.GetSession(ctx, "u1")
	if b.Tier != 1 || len(b.RecentTimestamps) != 0 {
		t.Fatalf("expected store state untouched, got %+v", b)
	}

	if err := s.PutSession(ctx, a); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c, _ := s.GetSession(ctx, "u1")
	if c.Tier != 3 || len(c.RecentTimestamps) != 1 {
		t.Fatalf("expected committed state visible, got %+v", c)
	}
}

func TestMemoryUpdateLedgerReceipt(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	ctx := context.Background()

	now := time.Now().UTC()
	sess := session.NewIdentity("u1", now)
	sess.TotalQueries = 7
	sess.AppendTimestamp(now)
	if err := s.PutSession(ctx, sess); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := s.UpdateLedgerReceipt(ctx, "u1", "0xdead", "h-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, _ := s.GetSession(ctx, "u1")
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
	sessions, _ := s.ListSessions(ctx)
	if len(sessions) != 1 {
		t.Fatalf("expected no session created for unknown identity, got %d", len(sessions))
	}
}

func TestMemoryAuditCap(t *testing.T) {
	s := NewMemoryStore(WithAuditCap(5))
	defer s.Close()
	ctx := context.Background()

	for i := 0; i < 12; i++ {
		rec := &session.AuditRecord{ID: fmt.Sprintf("r%d", i), Identity: "u1"}
		if err := s.AppendAudit(ctx, rec); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	logs, err := s.ListAudit(ctx, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(logs) != 5 {
		t.Fatalf("expected cap of 5 records, got %d", len(logs))
	}
	// Newest first.
	if logs[0].ID != "r11" || logs[4].ID != "r7" {
		t.Fatalf("expected newest-first window r11..r7, got %s..%s", logs[0].ID, logs[4].ID)
	}
}

func TestMemoryListSessionsOrder(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	ctx := context.Background()
	now := time.Now()

	for i, id := range []string{"alpha", "beta", "gamma"} {
		sess := session.NewIdentity(id, now.Add(time.Duration(i)*time.Minute))
		if err := s.PutSession(ctx, sess); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	sessions, err := s.ListSessions(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sessions) != 3 || sessions[0].ID != "gamma" || sessions[2].ID != "alpha" {
		t.Fatalf("expected most recently active first, got %v", sessions)
	}
}

func TestMemoryTTLCleanup(t *testing.T) {
	s := NewMemoryStore(WithSessionTTL(20*time.Millisecond), WithCleanupInterval(10*time.Millisecond))
	defer s.Close()
	ctx := context.Background()

	if _, err := s.GetSession(ctx, "short-lived"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		sessions, err := s.ListSessions(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(sessions) == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected idle session to expire, still present")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestMemoryTierCounts(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	ctx := context.Background()
	now := time.Now()

	for i, tier := range []int{1, 1, 2, 3} {
		sess := session.NewIdentity(fmt.Sprintf("u%d", i), now)
		sess.Tier = tier
		if err := s.PutSession(ctx, sess); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	counts, err := s.TierCounts(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if counts[1] != 2 || counts[2] != 1 || counts[3] != 1 {
		t.Fatalf("unexpected tier counts: %v", counts)
	}
}

func TestMemoryClosedStoreRefusesOperations(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	if err := s.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Idempotent.
	if err := s.Close(); err != nil {
		t.Fatalf("unexpected error on second close: %v", err)
	}

	if _, err := s.GetSession(ctx, "u1"); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if err := s.PutSession(ctx, session.NewIdentity("u1", time.Now())); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}
