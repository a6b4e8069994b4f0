// Package store provides the record store collaborator: per-identity session
// state, the append-only query audit log, and ledger-event bookkeeping.
//
// Three backends are available, selected by MIRAGE_STORE:
//   - memory: single-node in-process store with TTL cleanup (default)
//   - redis: shared sessions for multi-node deployments
//   - postgres: durable sessions and audit log
package store

import (
	"context"
	"errors"
	"sort"

	"github.com/miragesec/mirage/pkg/session"
)

// DefaultAuditCap bounds how many audit records the capped backends retain.
const DefaultAuditCap = 1000

// ErrClosed is returned by operations on a store that has been shut down.
var ErrClosed = errors.New("record store is closed")

// RecordStore is the persistence contract for the engine. GetSession creates
// a default record for unknown identities; audit records are immutable once
// appended. Read-modify-write consistency across concurrent requests for one
// identity is the engine's job (it stripes per-identity locks); the store
// only guarantees single-record atomicity.
type RecordStore interface {
	// GetSession returns the identity's session, creating a fresh default
	// when none exists.
	GetSession(ctx context.Context, identity string) (*session.Identity, error)

	// PutSession persists the full session record (last write wins).
	PutSession(ctx context.Context, sess *session.Identity) error

	// AppendAudit appends one immutable query audit record.
	AppendAudit(ctx context.Context, rec *session.AuditRecord) error

	// AppendLedgerEvent records a successful audit-ledger submission.
	AppendLedgerEvent(ctx context.Context, ev *session.LedgerEvent) error

	// UpdateLedgerReceipt stamps the latest ledger receipt onto the
	// identity's session without touching any other field, so an
	// out-of-band writer cannot clobber a concurrent full-session commit.
	// No-op for unknown identities.
	UpdateLedgerReceipt(ctx context.Context, identity, txHash, hashID string) error

	// ListSessions returns all known sessions, most recently active first.
	ListSessions(ctx context.Context) ([]*session.Identity, error)

	// ListAudit returns up to limit audit records, newest first.
	ListAudit(ctx context.Context, limit int) ([]*session.AuditRecord, error)

	// ListLedgerEvents returns up to limit ledger events, newest first.
	ListLedgerEvents(ctx context.Context, limit int) ([]*session.LedgerEvent, error)

	// TierCounts returns the number of sessions currently cached at each
	// tier, for the dashboard.
	TierCounts(ctx context.Context) (map[int]int, error)

	// Close releases backend resources.
	Close() error
}

// sortSessionsByActivity orders sessions most recently active first.
func sortSessionsByActivity(sessions []*session.Identity) {
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].LastActiveAt.After(sessions[j].LastActiveAt)
	})
}
