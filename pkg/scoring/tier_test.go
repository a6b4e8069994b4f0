package scoring

import (
	"testing"
	"time"

	"github.com/miragesec/mirage/pkg/session"
)

func flaggedSession(now time.Time, minutesAgo float64) *session.Identity {
	sess := session.NewIdentity("u1", now)
	anchor := now.Add(-time.Duration(minutesAgo * float64(time.Minute)))
	sess.FirstSeenAt = &anchor
	return sess
}

func TestEvaluateLatchBoundaryInclusive(t *testing.T) {
	policy := DefaultTierPolicy()
	now := time.Now()

	sess := session.NewIdentity("u1", now)
	d := policy.Evaluate(sess, 0.6499, now)
	if d.Latched || sess.FirstSeenAt != nil {
		t.Fatalf("expected no latch below the threshold")
	}

	d = policy.Evaluate(sess, 0.65, now)
	if !d.Latched || sess.FirstSeenAt == nil {
		t.Fatalf("expected latch at exactly the threshold")
	}
	if !sess.FirstSeenAt.Equal(now) {
		t.Fatalf("expected anchor pinned to evaluation time")
	}
}

func TestEvaluateLatchIsOneWay(t *testing.T) {
	policy := DefaultTierPolicy()
	now := time.Now()

	sess := session.NewIdentity("u1", now)
	policy.Evaluate(sess, 0.9, now)
	anchor := *sess.FirstSeenAt

	// A later benign score must not clear or move the anchor.
	later := now.Add(5 * time.Minute)
	d := policy.Evaluate(sess, 0.01, later)
	if d.Latched {
		t.Fatalf("expected no re-latch on an already flagged identity")
	}
	if !sess.FirstSeenAt.Equal(anchor) {
		t.Fatalf("expected anchor unchanged, got %v", sess.FirstSeenAt)
	}
	if d.DurationMinutes < 4.99 || d.DurationMinutes > 5.01 {
		t.Fatalf("expected ~5 minutes of duration, got %f", d.DurationMinutes)
	}
}

func TestEvaluateTierTable(t *testing.T) {
	policy := DefaultTierPolicy()
	now := time.Now()

	cases := []struct {
		name       string
		score      float64
		minutesAgo float64
		flagged    bool
		wantTier   int
	}{
		{"benign fresh identity", 0.3, 0, false, TierClean},
		{"high score no history", 0.85, 0, false, TierPerturbed},
		{"max score short duration", 0.99, 5, true, TierPerturbed},
		{"max score long duration", 0.99, 30, true, TierAudited},
		{"low score inside duration window", 0.1, 5, true, TierPerturbed},
		{"low score past duration window", 0.1, 11, true, TierClean},
		{"low score before duration window", 0.1, 1.5, true, TierClean},
	}

	for _, tc := range cases {
		var sess *session.Identity
		if tc.flagged {
			sess = flaggedSession(now, tc.minutesAgo)
		} else {
			sess = session.NewIdentity("u1", now)
		}
		d := policy.Evaluate(sess, tc.score, now)
		if d.Tier != tc.wantTier {
			t.Fatalf("%s: expected tier %d, got %d", tc.name, tc.wantTier, d.Tier)
		}
	}
}

func TestEvaluateTier3BoundariesExact(t *testing.T) {
	policy := DefaultTierPolicy()
	now := time.Now()

	// Score boundary is inclusive.
	d := policy.Evaluate(flaggedSession(now, 15), 0.95, now)
	if d.Tier != TierAudited {
		t.Fatalf("expected tier 3 at exactly the score cut, got %d", d.Tier)
	}

	// Duration boundary is strict: exactly 10 minutes is not enough.
	d = policy.Evaluate(flaggedSession(now, 10), 0.99, now)
	if d.Tier != TierPerturbed {
		t.Fatalf("expected tier 2 at exactly 10 minutes, got %d", d.Tier)
	}
}

func TestEvaluateTier2BoundariesExact(t *testing.T) {
	policy := DefaultTierPolicy()
	now := time.Now()

	// Score cut is inclusive.
	d := policy.Evaluate(session.NewIdentity("u1", now), 0.8, now)
	if d.Tier != TierPerturbed {
		t.Fatalf("expected tier 2 at exactly the score cut, got %d", d.Tier)
	}

	// Both duration edges are inclusive.
	d = policy.Evaluate(flaggedSession(now, 2), 0.1, now)
	if d.Tier != TierPerturbed {
		t.Fatalf("expected tier 2 at exactly 2 minutes, got %d", d.Tier)
	}
	d = policy.Evaluate(flaggedSession(now, 10), 0.1, now)
	if d.Tier != TierPerturbed {
		t.Fatalf("expected tier 2 at exactly 10 minutes, got %d", d.Tier)
	}
}

func TestEvaluateIsDeterministic(t *testing.T) {
	policy := DefaultTierPolicy()
	now := time.Now()

	a := flaggedSession(now, 7)
	b := flaggedSession(now, 7)
	da := policy.Evaluate(a, 0.83, now)
	db := policy.Evaluate(b, 0.83, now)
	if da != db {
		t.Fatalf("expected identical decisions for identical state: %+v vs %+v", da, db)
	}
}
