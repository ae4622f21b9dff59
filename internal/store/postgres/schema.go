package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlHistory = `
CREATE TABLE IF NOT EXISTS dialogue_log (
    id          BIGSERIAL    PRIMARY KEY,
    session_id  TEXT         NOT NULL,
    seq         BIGINT       NOT NULL,
    transcript  TEXT         NOT NULL DEFAULT '',
    query       TEXT         NOT NULL,
    ack         BOOLEAN      NOT NULL DEFAULT false,
    tag         TEXT         NOT NULL DEFAULT '',
    matched_by  TEXT         NOT NULL DEFAULT '',
    audio_url   TEXT         NOT NULL DEFAULT '',
    outcome     TEXT         NOT NULL,
    error       TEXT         NOT NULL DEFAULT '',
    latency_ns  BIGINT       NOT NULL DEFAULT 0,
    created_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_dialogue_log_created
    ON dialogue_log (created_at DESC);

CREATE INDEX IF NOT EXISTS idx_dialogue_log_session
    ON dialogue_log (session_id, seq);
`

// ddlKeys returns the answer_keys DDL with the vector column sized to dim.
func ddlKeys(dim int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS answer_keys (
    model      TEXT         NOT NULL,
    tag        TEXT         NOT NULL,
    key        TEXT         NOT NULL,
    embedding  vector(%d)   NOT NULL,
    PRIMARY KEY (model, tag, key)
);

CREATE INDEX IF NOT EXISTS idx_answer_keys_embedding
    ON answer_keys USING hnsw (embedding vector_cosine_ops);
`, dim)
}

// Migrate creates the tables and indexes the store needs. It is idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool, embeddingDimensions int) error {
	if embeddingDimensions <= 0 {
		return fmt.Errorf("migrate: embedding dimensions must be positive, got %d", embeddingDimensions)
	}
	for _, stmt := range []struct {
		name string
		sql  string
	}{
		{"dialogue_log", ddlHistory},
		{"answer_keys", ddlKeys(embeddingDimensions)},
	} {
		if _, err := pool.Exec(ctx, stmt.sql); err != nil {
			return fmt.Errorf("migrate %s: %w", stmt.name, err)
		}
	}
	return nil
}
