package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/miragesec/mirage/pkg/session"
)

// Redis key layout. Sessions are JSON values under a per-identity key; the
// audit log and ledger events are capped lists (newest at the head).
const (
	redisSessionPrefix = "mirage:session:"
	redisAuditKey      = "mirage:audit"
	redisLedgerKey     = "mirage:ledger"
)

// RedisStore is a Redis-backed RecordStore for multi-node deployments.
// Session expiry is delegated to Redis TTLs instead of a cleanup goroutine.
type RedisStore struct {
	client     *redis.Client
	sessionTTL time.Duration
	auditCap   int64
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, redisURL string, sessionTTL time.Duration) (*RedisStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &RedisStore{
		client:     client,
		sessionTTL: sessionTTL,
		auditCap:   DefaultAuditCap,
	}, nil
}

// GetSession fetches and decodes the identity's session, creating a default
// record when the key is missing.
func (s *RedisStore) GetSession(ctx context.Context, identity string) (*session.Identity, error) {
	if identity == "" {
		return nil, fmt.Errorf("identity is required")
	}

	data, err := s.client.Get(ctx, redisSessionPrefix+identity).Bytes()
	if errors.Is(err, redis.Nil) {
		sess := session.NewIdentity(identity, time.Now().UTC())
		if err := s.PutSession(ctx, sess); err != nil {
			return nil, err
		}
		return sess, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get session failed: %w", err)
	}

	var sess session.Identity
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return &sess, nil
}

// PutSession stores the session as JSON with the configured TTL.
func (s *RedisStore) PutSession(ctx context.Context, sess *session.Identity) error {
	if sess == nil || sess.ID == "" {
		return fmt.Errorf("session identity is required")
	}

	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	if err := s.client.Set(ctx, redisSessionPrefix+sess.ID, data, s.sessionTTL).Err(); err != nil {
		return fmt.Errorf("redis put session failed: %w", err)
	}
	return nil
}

// AppendAudit pushes the record onto the audit list and trims to the cap.
func (s *RedisStore) AppendAudit(ctx context.Context, rec *session.AuditRecord) error {
	return s.appendCapped(ctx, redisAuditKey, rec)
}

// AppendLedgerEvent pushes the event onto the ledger list and trims to the cap.
func (s *RedisStore) AppendLedgerEvent(ctx context.Context, ev *session.LedgerEvent) error {
	return s.appendCapped(ctx, redisLedgerKey, ev)
}

// UpdateLedgerReceipt rewrites the session with only the two receipt fields
// changed, under an optimistic WATCH transaction: a concurrent full-session
// write between the read and the write aborts this update instead of being
// clobbered by a stale copy.
func (s *RedisStore) UpdateLedgerReceipt(ctx context.Context, identity, txHash, hashID string) error {
	if identity == "" {
		return fmt.Errorf("identity is required")
	}
	key := redisSessionPrefix + identity

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil // expired or never existed
		}
		if err != nil {
			return err
		}

		var sess session.Identity
		if err := json.Unmarshal(data, &sess); err != nil {
			return err
		}
		sess.LedgerTx = txHash
		sess.LedgerHashID = hashID

		updated, err := json.Marshal(&sess)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, updated, s.sessionTTL)
			return nil
		})
		return err
	}, key)
	if err != nil {
		return fmt.Errorf("redis update receipt failed: %w", err)
	}
	return nil
}

func (s *RedisStore) appendCapped(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, key, data)
	pipe.LTrim(ctx, key, 0, s.auditCap-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis append failed: %w", err)
	}
	return nil
}

// ListSessions scans all session keys. Fine at gateway scale; a deployment
// with millions of identities should use the Postgres backend for reporting.
func (s *RedisStore) ListSessions(ctx context.Context) ([]*session.Identity, error) {
	var out []*session.Identity

	iter := s.client.Scan(ctx, 0, redisSessionPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		data, err := s.client.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			continue // key expired between scan and get
		}
		var sess session.Identity
		if err := json.Unmarshal(data, &sess); err != nil {
			continue
		}
		out = append(out, &sess)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan failed: %w", err)
	}

	sortSessionsByActivity(out)
	return out, nil
}

// ListAudit returns up to limit audit records, newest first.
func (s *RedisStore) ListAudit(ctx context.Context, limit int) ([]*session.AuditRecord, error) {
	if limit <= 0 {
		limit = int(s.auditCap)
	}

	items, err := s.client.LRange(ctx, redisAuditKey, 0, int64(limit)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lrange failed: %w", err)
	}

	out := make([]*session.AuditRecord, 0, len(items))
	for _, item := range items {
		var rec session.AuditRecord
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			continue
		}
		out = append(out, &rec)
	}
	return out, nil
}

// ListLedgerEvents returns up to limit ledger events, newest first.
func (s *RedisStore) ListLedgerEvents(ctx context.Context, limit int) ([]*session.LedgerEvent, error) {
	if limit <= 0 {
		limit = int(s.auditCap)
	}

	items, err := s.client.LRange(ctx, redisLedgerKey, 0, int64(limit)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lrange failed: %w", err)
	}

	out := make([]*session.LedgerEvent, 0, len(items))
	for _, item := range items {
		var ev session.LedgerEvent
		if err := json.Unmarshal([]byte(item), &ev); err != nil {
			continue
		}
		out = append(out, &ev)
	}
	return out, nil
}

// TierCounts scans sessions and counts per cached tier.
func (s *RedisStore) TierCounts(ctx context.Context) (map[int]int, error) {
	sessions, err := s.ListSessions(ctx)
	if err != nil {
		return nil, err
	}

	counts := make(map[int]int)
	for _, sess := range sessions {
		counts[sess.Tier]++
	}
	return counts, nil
}

// Close shuts down the Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

var _ RecordStore = (*RedisStore)(nil)
