// Package store keeps the latest snapshot of every synced collection: Redis is
// the read cache, Postgres the durable mirror and sync history.
package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrNotFound is returned when no snapshot exists for a collection.
var ErrNotFound = errors.New("store: snapshot not found")

const keyPrefix = "backoffice:snapshot:"

// Snapshot is the full content of one collection at SyncedAt.
type Snapshot struct {
	Collection string          `json:"collection"`
	Count      int             `json:"count"`
	Checksum   string          `json:"checksum"`
	SyncedAt   time.Time       `json:"synced_at"`
	Records    json.RawMessage `json:"records"`
}

// NewSnapshot marshals records and stamps the checksum.
func NewSnapshot(collection string, records any, count int, at time.Time) (Snapshot, error) {
	data, err := json.Marshal(records)
	if err != nil {
		return Snapshot{}, fmt.Errorf("marshal %s records: %w", collection, err)
	}
	sum := sha256.Sum256(data)
	return Snapshot{
		Collection: collection,
		Count:      count,
		Checksum:   hex.EncodeToString(sum[:]),
		SyncedAt:   at.UTC(),
		Records:    data,
	}, nil
}

// Store defines the contract for caching and persisting snapshots.
type Store interface {
	SaveSnapshot(ctx context.Context, snap Snapshot) error
	GetSnapshot(ctx context.Context, collection string) (*Snapshot, error)
	HealthCheck(ctx context.Context) error
	Close() error
}

// pgPool is the part of *pgxpool.Pool the store uses.
type pgPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

type HybridStore struct {
	redis  *redis.Client
	pg     pgPool
	ttl    time.Duration
	logger *zap.Logger
}

type PGPoolConfig struct {
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

// Options configures NewHybrid. An empty PGURL runs Redis-only.
type Options struct {
	RedisAddr     string
	RedisDB       int
	RedisPassword string
	PGURL         string
	PGPool        PGPoolConfig
	TTL           time.Duration
}

// NewHybrid connects to Redis (required) and Postgres (optional) and ensures
// the mirror schema exists.
func NewHybrid(ctx context.Context, opts Options, logger *zap.Logger) (*HybridStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.RedisAddr,
		DB:       opts.RedisDB,
		Password: opts.RedisPassword,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	s := &HybridStore{redis: rdb, ttl: opts.TTL, logger: logger}
	if opts.PGURL == "" {
		return s, nil
	}

	cfg, err := pgxpool.ParseConfig(opts.PGURL)
	if err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("invalid pg config: %w", err)
	}
	applyPoolConfig(cfg, opts.PGPool)

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	s.pg = pool

	if err := s.EnsureSchema(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// NewWithRedis builds a Redis-only store over an existing client.
func NewWithRedis(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *HybridStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HybridStore{redis: rdb, ttl: ttl, logger: logger}
}

func applyPoolConfig(cfg *pgxpool.Config, p PGPoolConfig) {
	if p.MaxConns > 0 {
		cfg.MaxConns = p.MaxConns
	}
	if p.MinConns > 0 {
		cfg.MinConns = p.MinConns
	}
	if p.MaxConnLifetime > 0 {
		cfg.MaxConnLifetime = p.MaxConnLifetime
	}
	if p.MaxConnIdleTime > 0 {
		cfg.MaxConnIdleTime = p.MaxConnIdleTime
	}
	if p.HealthCheckPeriod > 0 {
		cfg.HealthCheckPeriod = p.HealthCheckPeriod
	}
}

const schemaSQL = `
	CREATE SCHEMA IF NOT EXISTS backoffice;
	CREATE TABLE IF NOT EXISTS backoffice.collection_snapshot (
		collection   TEXT PRIMARY KEY,
		record_count INTEGER NOT NULL,
		checksum     TEXT NOT NULL,
		records      JSONB NOT NULL,
		synced_at    TIMESTAMPTZ NOT NULL
	);
	CREATE TABLE IF NOT EXISTS backoffice.sync_history (
		id           BIGSERIAL PRIMARY KEY,
		collection   TEXT NOT NULL,
		record_count INTEGER NOT NULL,
		checksum     TEXT NOT NULL,
		synced_at    TIMESTAMPTZ NOT NULL
	);
`

// EnsureSchema creates the mirror tables when missing.
func (s *HybridStore) EnsureSchema(ctx context.Context) error {
	if s.pg == nil {
		return nil
	}
	if _, err := s.pg.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func snapshotKey(collection string) string {
	return keyPrefix + collection
}

// SaveSnapshot writes the cache first, then the mirror and its history row.
func (s *HybridStore) SaveSnapshot(ctx context.Context, snap Snapshot) error {
	if err := s.SetJSON(ctx, snapshotKey(snap.Collection), snap, s.ttl); err != nil {
		s.logger.Error("store.redis.snapshot_write_failed",
			zap.String("collection", snap.Collection), zap.Error(err))
		return fmt.Errorf("cache snapshot %s: %w", snap.Collection, err)
	}

	if s.pg == nil {
		return nil
	}
	_, err := s.pg.Exec(ctx, `
		INSERT INTO backoffice.collection_snapshot (collection, record_count, checksum, records, synced_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (collection)
		DO UPDATE SET
			record_count = EXCLUDED.record_count,
			checksum = EXCLUDED.checksum,
			records = EXCLUDED.records,
			synced_at = EXCLUDED.synced_at;
	`, snap.Collection, snap.Count, snap.Checksum, []byte(snap.Records), snap.SyncedAt)
	if err != nil {
		s.logger.Error("store.pg.snapshot_upsert_failed",
			zap.String("collection", snap.Collection), zap.Error(err))
		return fmt.Errorf("mirror snapshot %s: %w", snap.Collection, err)
	}

	_, err = s.pg.Exec(ctx, `
		INSERT INTO backoffice.sync_history (collection, record_count, checksum, synced_at)
		VALUES ($1, $2, $3, $4)
	`, snap.Collection, snap.Count, snap.Checksum, snap.SyncedAt)
	if err != nil {
		s.logger.Warn("store.pg.history_insert_failed",
			zap.String("collection", snap.Collection), zap.Error(err))
	}
	return nil
}

// GetSnapshot reads Redis, falling back to Postgres and re-warming the cache.
func (s *HybridStore) GetSnapshot(ctx context.Context, collection string) (*Snapshot, error) {
	var snap Snapshot
	err := s.GetJSON(ctx, snapshotKey(collection), &snap)
	if err == nil {
		return &snap, nil
	}
	if !errors.Is(err, redis.Nil) {
		s.logger.Warn("store.redis.snapshot_read_failed",
			zap.String("collection", collection), zap.Error(err))
	}

	if s.pg == nil {
		return nil, ErrNotFound
	}

	var records []byte
	row := s.pg.QueryRow(ctx, `
		SELECT collection, record_count, checksum, records, synced_at
		FROM backoffice.collection_snapshot
		WHERE collection = $1
	`, collection)
	if err := row.Scan(&snap.Collection, &snap.Count, &snap.Checksum, &records, &snap.SyncedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read snapshot %s: %w", collection, err)
	}
	snap.Records = records

	if err := s.SetJSON(ctx, snapshotKey(collection), snap, s.ttl); err != nil {
		s.logger.Debug("store.redis.rewarm_failed", zap.String("collection", collection), zap.Error(err))
	}
	return &snap, nil
}

func (s *HybridStore) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, key, data, ttl).Err()
}

func (s *HybridStore) GetJSON(ctx context.Context, key string, dest any) error {
	data, err := s.redis.Get(ctx, key).Bytes()
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

func (s *HybridStore) HealthCheck(ctx context.Context) error {
	if s.redis == nil {
		return fmt.Errorf("redis not initialized")
	}
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	if s.pg != nil {
		if err := s.pg.Ping(ctx); err != nil {
			return fmt.Errorf("postgres ping failed: %w", err)
		}
	}
	return nil
}

func (s *HybridStore) Close() error {
	if s.pg != nil {
		s.pg.Close()
	}
	if s.redis != nil {
		return s.redis.Close()
	}
	return nil
}

var _ Store = (*HybridStore)(nil)
