// Package postgres provides the PostgreSQL-backed persistence layer: the
// dialogue history and the pgvector key index used by the semantic answer
// stage.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/MrWong99/komekshi/internal/answer"
	"github.com/MrWong99/komekshi/internal/history"
)

var (
	_ history.Store   = (*HistoryStore)(nil)
	_ answer.KeyIndex = (*KeyIndex)(nil)
)

// Store holds a single [pgxpool.Pool] and exposes the history log via
// [Store.History] and the answer key index via [Store.Keys].
//
// All operations are safe for concurrent use.
type Store struct {
	pool    *pgxpool.Pool
	history *HistoryStore
	keys    *KeyIndex
}

// NewStore connects to the database at dsn, registers pgvector types on
// every connection and runs [Migrate].
//
// embeddingDimensions must match the output dimension of the configured
// embeddings model. Changing it after the first migration requires dropping
// the answer_keys table.
func NewStore(ctx context.Context, dsn string, embeddingDimensions int) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}

	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}

	if err := Migrate(ctx, pool, embeddingDimensions); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}

	return &Store{
		pool:    pool,
		history: &HistoryStore{pool: pool},
		keys:    &KeyIndex{pool: pool},
	}, nil
}

// History returns the dialogue log which satisfies [history.Store].
func (s *Store) History() *HistoryStore { return s.history }

// Keys returns the embedded key index which satisfies [answer.KeyIndex].
func (s *Store) Keys() *KeyIndex { return s.keys }

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases all pooled connections.
func (s *Store) Close() {
	s.pool.Close()
}
