package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/miragesec/mirage/pkg/session"
)

// PostgresStore is a pgx-backed RecordStore for durable deployments. Sessions
// live in one row per identity; audit records and ledger events are append-only
// tables queried newest first.
type PostgresStore struct {
	pool *pgxpool.Pool
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS sessions (
    identity             TEXT PRIMARY KEY,
    first_seen_at        TIMESTAMPTZ,
    last_active_at       TIMESTAMPTZ NOT NULL,
    recent_timestamps    JSONB NOT NULL DEFAULT '[]',
    last_query_embedding JSONB,
    dynamic_mean_rpm     DOUBLE PRECISION NOT NULL DEFAULT 0,
    total_queries        BIGINT NOT NULL DEFAULT 0,
    tier                 INT NOT NULL DEFAULT 1,
    ledger_tx            TEXT NOT NULL DEFAULT '',
    ledger_hash_id       TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS query_logs (
    id                     TEXT PRIMARY KEY,
    identity               TEXT NOT NULL,
    ts                     TIMESTAMPTZ NOT NULL,
    prompt                 TEXT NOT NULL,
    clean_response         TEXT NOT NULL,
    served_response        TEXT NOT NULL,
    tier                   INT NOT NULL,
    hybrid_score           DOUBLE PRECISION NOT NULL,
    duration_minutes       DOUBLE PRECISION NOT NULL,
    perturbation_exhausted BOOLEAN NOT NULL DEFAULT FALSE
);
CREATE INDEX IF NOT EXISTS query_logs_ts_idx ON query_logs (ts DESC);

CREATE TABLE IF NOT EXISTS ledger_events (
    id       TEXT PRIMARY KEY,
    identity TEXT NOT NULL,
    ts       TIMESTAMPTZ NOT NULL,
    tier     INT NOT NULL,
    tx_hash  TEXT NOT NULL DEFAULT '',
    hash_id  TEXT NOT NULL DEFAULT '',
    status   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS ledger_events_ts_idx ON ledger_events (ts DESC);
`

// NewPostgresStore connects a pool and ensures the schema exists.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid database url: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}

	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// GetSession fetches the identity's row, creating a default record when none
// exists yet.
func (s *PostgresStore) GetSession(ctx context.Context, identity string) (*session.Identity, error) {
	if identity == "" {
		return nil, fmt.Errorf("identity is required")
	}

	query := `
        SELECT identity, first_seen_at, last_active_at, recent_timestamps,
               last_query_embedding, dynamic_mean_rpm, total_queries, tier,
               ledger_tx, ledger_hash_id
        FROM sessions
        WHERE identity = $1
    `

	var (
		sess          session.Identity
		timestampsRaw []byte
		embeddingRaw  []byte
	)
	err := s.pool.QueryRow(ctx, query, identity).Scan(
		&sess.ID,
		&sess.FirstSeenAt,
		&sess.LastActiveAt,
		&timestampsRaw,
		&embeddingRaw,
		&sess.DynamicMeanRPM,
		&sess.TotalQueries,
		&sess.Tier,
		&sess.LedgerTx,
		&sess.LedgerHashID,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		fresh := session.NewIdentity(identity, time.Now().UTC())
		if err := s.PutSession(ctx, fresh); err != nil {
			return nil, err
		}
		return fresh, nil
	}
	if err != nil {
		return nil, fmt.Errorf("postgres get session failed: %w", err)
	}

	if len(timestampsRaw) > 0 {
		if err := json.Unmarshal(timestampsRaw, &sess.RecentTimestamps); err != nil {
			return nil, fmt.Errorf("failed to decode timestamps: %w", err)
		}
	}
	if len(embeddingRaw) > 0 {
		if err := json.Unmarshal(embeddingRaw, &sess.LastQueryEmbedding); err != nil {
			return nil, fmt.Errorf("failed to decode embedding: %w", err)
		}
	}
	return &sess, nil
}

// PutSession upserts the full session row.
func (s *PostgresStore) PutSession(ctx context.Context, sess *session.Identity) error {
	if sess == nil || sess.ID == "" {
		return fmt.Errorf("session identity is required")
	}

	timestamps, err := json.Marshal(sess.RecentTimestamps)
	if err != nil {
		return fmt.Errorf("failed to encode timestamps: %w", err)
	}
	var embedding []byte
	if sess.LastQueryEmbedding != nil {
		embedding, err = json.Marshal(sess.LastQueryEmbedding)
		if err != nil {
			return fmt.Errorf("failed to encode embedding: %w", err)
		}
	}

	query := `
        INSERT INTO sessions (identity, first_seen_at, last_active_at, recent_timestamps,
                              last_query_embedding, dynamic_mean_rpm, total_queries, tier,
                              ledger_tx, ledger_hash_id)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
        ON CONFLICT (identity) DO UPDATE
        SET first_seen_at        = EXCLUDED.first_seen_at,
            last_active_at       = EXCLUDED.last_active_at,
            recent_timestamps    = EXCLUDED.recent_timestamps,
            last_query_embedding = EXCLUDED.last_query_embedding,
            dynamic_mean_rpm     = EXCLUDED.dynamic_mean_rpm,
            total_queries        = EXCLUDED.total_queries,
            tier                 = EXCLUDED.tier,
            ledger_tx            = EXCLUDED.ledger_tx,
            ledger_hash_id       = EXCLUDED.ledger_hash_id
    `

	_, err = s.pool.Exec(ctx, query,
		sess.ID,
		sess.FirstSeenAt,
		sess.LastActiveAt,
		timestamps,
		embedding,
		sess.DynamicMeanRPM,
		sess.TotalQueries,
		sess.Tier,
		sess.LedgerTx,
		sess.LedgerHashID,
	)
	if err != nil {
		return fmt.Errorf("postgres put session failed: %w", err)
	}
	return nil
}

// AppendAudit inserts one immutable audit row.
func (s *PostgresStore) AppendAudit(ctx context.Context, rec *session.AuditRecord) error {
	query := `
        INSERT INTO query_logs (id, identity, ts, prompt, clean_response, served_response,
                                tier, hybrid_score, duration_minutes, perturbation_exhausted)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
    `

	_, err := s.pool.Exec(ctx, query,
		rec.ID,
		rec.Identity,
		rec.Timestamp,
		rec.Prompt,
		rec.CleanResponse,
		rec.ServedResponse,
		rec.Tier,
		rec.HybridScore,
		rec.DurationMinutes,
		rec.PerturbationExhausted,
	)
	if err != nil {
		return fmt.Errorf("postgres append audit failed: %w", err)
	}
	return nil
}

// AppendLedgerEvent inserts one ledger submission row.
func (s *PostgresStore) AppendLedgerEvent(ctx context.Context, ev *session.LedgerEvent) error {
	query := `
        INSERT INTO ledger_events (id, identity, ts, tier, tx_hash, hash_id, status)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
    `

	_, err := s.pool.Exec(ctx, query,
		ev.ID,
		ev.Identity,
		ev.Timestamp,
		ev.Tier,
		ev.TxHash,
		ev.HashID,
		ev.Status,
	)
	if err != nil {
		return fmt.Errorf("postgres append ledger event failed: %w", err)
	}
	return nil
}

// UpdateLedgerReceipt updates only the two receipt columns; a concurrent
// full-row upsert is never clobbered.
func (s *PostgresStore) UpdateLedgerReceipt(ctx context.Context, identity, txHash, hashID string) error {
	if identity == "" {
		return fmt.Errorf("identity is required")
	}

	_, err := s.pool.Exec(ctx,
		`UPDATE sessions SET ledger_tx = $2, ledger_hash_id = $3 WHERE identity = $1`,
		identity, txHash, hashID,
	)
	if err != nil {
		return fmt.Errorf("postgres update receipt failed: %w", err)
	}
	return nil
}

// ListSessions returns all sessions, most recently active first.
func (s *PostgresStore) ListSessions(ctx context.Context) ([]*session.Identity, error) {
	query := `
        SELECT identity, first_seen_at, last_active_at, recent_timestamps,
               last_query_embedding, dynamic_mean_rpm, total_queries, tier,
               ledger_tx, ledger_hash_id
        FROM sessions
        ORDER BY last_active_at DESC
    `

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres list sessions failed: %w", err)
	}
	defer rows.Close()

	var out []*session.Identity
	for rows.Next() {
		var (
			sess          session.Identity
			timestampsRaw []byte
			embeddingRaw  []byte
		)
		if err := rows.Scan(
			&sess.ID,
			&sess.FirstSeenAt,
			&sess.LastActiveAt,
			&timestampsRaw,
			&embeddingRaw,
			&sess.DynamicMeanRPM,
			&sess.TotalQueries,
			&sess.Tier,
			&sess.LedgerTx,
			&sess.LedgerHashID,
		); err != nil {
			return nil, fmt.Errorf("postgres scan session failed: %w", err)
		}
		if len(timestampsRaw) > 0 {
			_ = json.Unmarshal(timestampsRaw, &sess.RecentTimestamps)
		}
		if len(embeddingRaw) > 0 {
			_ = json.Unmarshal(embeddingRaw, &sess.LastQueryEmbedding)
		}
		out = append(out, &sess)
	}
	return out, rows.Err()
}

// ListAudit returns up to limit audit records, newest first.
func (s *PostgresStore) ListAudit(ctx context.Context, limit int) ([]*session.AuditRecord, error) {
	if limit <= 0 {
		limit = DefaultAuditCap
	}

	query := `
        SELECT id, identity, ts, prompt, clean_response, served_response,
               tier, hybrid_score, duration_minutes, perturbation_exhausted
        FROM query_logs
        ORDER BY ts DESC
        LIMIT $1
    `

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres list audit failed: %w", err)
	}
	defer rows.Close()

	var out []*session.AuditRecord
	for rows.Next() {
		var rec session.AuditRecord
		if err := rows.Scan(
			&rec.ID,
			&rec.Identity,
			&rec.Timestamp,
			&rec.Prompt,
			&rec.CleanResponse,
			&rec.ServedResponse,
			&rec.Tier,
			&rec.HybridScore,
			&rec.DurationMinutes,
			&rec.PerturbationExhausted,
		); err != nil {
			return nil, fmt.Errorf("postgres scan audit failed: %w", err)
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}

// ListLedgerEvents returns up to limit ledger events, newest first.
func (s *PostgresStore) ListLedgerEvents(ctx context.Context, limit int) ([]*session.LedgerEvent, error) {
	if limit <= 0 {
		limit = DefaultAuditCap
	}

	query := `
        SELECT id, identity, ts, tier, tx_hash, hash_id, status
        FROM ledger_events
        ORDER BY ts DESC
        LIMIT $1
    `

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres list ledger events failed: %w", err)
	}
	defer rows.Close()

	var out []*session.LedgerEvent
	for rows.Next() {
		var ev session.LedgerEvent
		if err := rows.Scan(
			&ev.ID,
			&ev.Identity,
			&ev.Timestamp,
			&ev.Tier,
			&ev.TxHash,
			&ev.HashID,
			&ev.Status,
		); err != nil {
			return nil, fmt.Errorf("postgres scan ledger event failed: %w", err)
		}
		out = append(out, &ev)
	}
	return out, rows.Err()
}

// TierCounts aggregates sessions per cached tier.
func (s *PostgresStore) TierCounts(ctx context.Context) (map[int]int, error) {
	rows, err := s.pool.Query(ctx, `SELECT tier, COUNT(*) FROM sessions GROUP BY tier`)
	if err != nil {
		return nil, fmt.Errorf("postgres tier counts failed: %w", err)
	}
	defer rows.Close()

	counts := make(map[int]int)
	for rows.Next() {
		var tier, n int
		if err := rows.Scan(&tier, &n); err != nil {
			return nil, fmt.Errorf("postgres scan tier count failed: %w", err)
		}
		counts[tier] = n
	}
	return counts, rows.Err()
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

var _ RecordStore = (*PostgresStore)(nil)
