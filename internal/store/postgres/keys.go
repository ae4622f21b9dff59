package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/MrWong99/komekshi/internal/answer"
)

// KeyIndex is the answer_keys table, searched by cosine distance through the
// HNSW index.
type KeyIndex struct {
	pool *pgxpool.Pool
}

// Replace implements [answer.KeyIndex]. The old key set of model is deleted
// and the new one inserted in a single transaction, so readers never see a
// partial set.
func (k *KeyIndex) Replace(ctx context.Context, model string, keys []answer.KeyVector) (err error) {
	if model == "" {
		return errors.New("key index: empty model")
	}

	tx, err := k.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("key index: begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, `DELETE FROM answer_keys WHERE model = $1`, model); err != nil {
		return fmt.Errorf("key index: clear %q: %w", model, err)
	}

	if len(keys) > 0 {
		const q = `
			INSERT INTO answer_keys (model, tag, key, embedding)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (model, tag, key) DO UPDATE SET embedding = EXCLUDED.embedding`
		batch := &pgx.Batch{}
		for _, kv := range keys {
			batch.Queue(q, model, kv.Tag, kv.Key, pgvector.NewVector(kv.Vector))
		}
		if err = tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("key index: insert: %w", err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("key index: commit: %w", err)
	}
	return nil
}

// Nearest implements [answer.KeyIndex].
func (k *KeyIndex) Nearest(ctx context.Context, model string, vec []float32, n int) ([]answer.KeyHit, error) {
	if n <= 0 {
		n = 1
	}
	const q = `
		SELECT tag, key, embedding <=> $2 AS distance
		FROM   answer_keys
		WHERE  model = $1
		ORDER  BY distance
		LIMIT  $3`

	rows, err := k.pool.Query(ctx, q, model, pgvector.NewVector(vec), n)
	if err != nil {
		return nil, fmt.Errorf("key index: nearest: %w", err)
	}
	hits, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (answer.KeyHit, error) {
		var h answer.KeyHit
		err := row.Scan(&h.Tag, &h.Key, &h.Distance)
		return h, err
	})
	if err != nil {
		return nil, fmt.Errorf("key index: nearest: %w", err)
	}
	return hits, nil
}
