package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/miragesec/mirage/pkg/session"
)

// MemoryStore is a thread-safe in-process RecordStore with TTL-based session
// cleanup. Suitable for single-node deployments; multi-node setups use the
// Redis or Postgres backends.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*session.Identity
	audit    []*session.AuditRecord
	ledger   []*session.LedgerEvent
	closed   bool

	sessionTTL      time.Duration
	cleanupInterval time.Duration
	auditCap        int

	stopCleanup chan struct{}
	cleanupOnce sync.Once
}

// MemoryOption is a functional option for configuring MemoryStore.
type MemoryOption func(*MemoryStore)

// WithSessionTTL sets how long an idle identity survives before cleanup.
// Zero disables expiry.
func WithSessionTTL(d time.Duration) MemoryOption {
	return func(s *MemoryStore) {
		s.sessionTTL = d
	}
}

// WithCleanupInterval sets how often the cleanup routine runs.
func WithCleanupInterval(d time.Duration) MemoryOption {
	return func(s *MemoryStore) {
		s.cleanupInterval = d
	}
}

// WithAuditCap bounds the in-memory audit log length.
func WithAuditCap(n int) MemoryOption {
	return func(s *MemoryStore) {
		s.auditCap = n
	}
}

// NewMemoryStore creates an in-memory record store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		sessions:        make(map[string]*session.Identity),
		sessionTTL:      24 * time.Hour,
		cleanupInterval: 5 * time.Minute,
		auditCap:        DefaultAuditCap,
		stopCleanup:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.sessionTTL > 0 {
		go s.cleanupLoop()
	}
	return s
}

// GetSession returns a copy of the identity's session, creating a default
// record for unknown identities. Returning a clone keeps request-scoped
// mutation away from store-owned state until PutSession commits it.
func (s *MemoryStore) GetSession(_ context.Context, identity string) (*session.Identity, error) {
	if identity == "" {
		return nil, fmt.Errorf("identity is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	sess, ok := s.sessions[identity]
	if !ok {
		sess = session.NewIdentity(identity, time.Now().UTC())
		s.sessions[identity] = sess
	}
	return sess.Clone(), nil
}

// PutSession stores the session record, last write wins.
func (s *MemoryStore) PutSession(_ context.Context, sess *session.Identity) error {
	if sess == nil || sess.ID == "" {
		return fmt.Errorf("session identity is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	s.sessions[sess.ID] = sess.Clone()
	return nil
}

// AppendAudit appends an audit record, trimming to the configured cap.
func (s *MemoryStore) AppendAudit(_ context.Context, rec *session.AuditRecord) error {
	if rec == nil {
		return fmt.Errorf("audit record is nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	s.audit = append(s.audit, rec)
	if s.auditCap > 0 && len(s.audit) > s.auditCap {
		s.audit = s.audit[len(s.audit)-s.auditCap:]
	}
	return nil
}

// AppendLedgerEvent records a ledger submission, capped like the audit log.
func (s *MemoryStore) AppendLedgerEvent(_ context.Context, ev *session.LedgerEvent) error {
	if ev == nil {
		return fmt.Errorf("ledger event is nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	s.ledger = append(s.ledger, ev)
	if s.auditCap > 0 && len(s.ledger) > s.auditCap {
		s.ledger = s.ledger[len(s.ledger)-s.auditCap:]
	}
	return nil
}

// UpdateLedgerReceipt stamps the receipt onto the stored session. Runs under
// the store lock and touches only the two receipt fields.
func (s *MemoryStore) UpdateLedgerReceipt(_ context.Context, identity, txHash, hashID string) error {
	if identity == "" {
		return fmt.Errorf("identity is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	sess, ok := s.sessions[identity]
	if !ok {
		return nil
	}
	sess.LedgerTx = txHash
	sess.LedgerHashID = hashID
	return nil
}

// ListSessions returns all sessions, most recently active first.
func (s *MemoryStore) ListSessions(_ context.Context) ([]*session.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	out := make([]*session.Identity, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess.Clone())
	}
	sortSessionsByActivity(out)
	return out, nil
}

// ListAudit returns up to limit audit records, newest first.
func (s *MemoryStore) ListAudit(_ context.Context, limit int) ([]*session.AuditRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	n := len(s.audit)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]*session.AuditRecord, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, s.audit[i])
	}
	return out, nil
}

// ListLedgerEvents returns up to limit ledger events, newest first.
func (s *MemoryStore) ListLedgerEvents(_ context.Context, limit int) ([]*session.LedgerEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	n := len(s.ledger)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]*session.LedgerEvent, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, s.ledger[i])
	}
	return out, nil
}

// TierCounts returns the session count per cached tier.
func (s *MemoryStore) TierCounts(_ context.Context) (map[int]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	counts := make(map[int]int)
	for _, sess := range s.sessions {
		counts[sess.Tier]++
	}
	return counts, nil
}

// Close stops the cleanup goroutine. Idempotent.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.cleanupOnce.Do(func() {
		close(s.stopCleanup)
	})
	return nil
}

func (s *MemoryStore) cleanupLoop() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.stopCleanup:
			return
		}
	}
}

// cleanup drops identities idle longer than the TTL. The engine itself never
// deletes sessions; this is purely a memory bound for the single-node store.
func (s *MemoryStore) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	for id, sess := range s.sessions {
		if now.Sub(sess.LastActiveAt) > s.sessionTTL {
			delete(s.sessions, id)
		}
	}
}

var _ RecordStore = (*MemoryStore)(nil)
