package postgres_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/MrWong99/komekshi/internal/answer"
	"github.com/MrWong99/komekshi/internal/history"
	"github.com/MrWong99/komekshi/internal/store/postgres"
)

const testEmbeddingDim = 3

// testDSN returns the test database DSN or skips the test if
// KOMEKSHI_TEST_POSTGRES_DSN is not set.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("KOMEKSHI_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("KOMEKSHI_TEST_POSTGRES_DSN not set, skipping PostgreSQL integration tests")
	}
	return dsn
}

// newTestStore creates a fresh store on a clean schema.
func newTestStore(t *testing.T) *postgres.Store {
	t.Helper()
	dsn := testDSN(t)
	ctx := context.Background()

	cleanPool := mustPool(t, ctx, dsn)
	t.Cleanup(cleanPool.Close)
	for _, stmt := range []string{
		"DROP TABLE IF EXISTS answer_keys CASCADE",
		"DROP TABLE IF EXISTS dialogue_log CASCADE",
	} {
		if _, err := cleanPool.Exec(ctx, stmt); err != nil {
			t.Fatalf("drop schema %q: %v", stmt, err)
		}
	}

	store, err := postgres.NewStore(ctx, dsn, testEmbeddingDim)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(store.Close)
	return store
}

func mustPool(t *testing.T, ctx context.Context, dsn string) *pgxpool.Pool {
	t.Helper()
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		// pgvector may not be installed yet on a fresh database.
		_ = pgxvec.RegisterTypes(ctx, conn)
		return nil
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	return pool
}

func TestNewStore_BadDSN(t *testing.T) {
	t.Parallel()
	_, err := postgres.NewStore(context.Background(), "://not a dsn", testEmbeddingDim)
	if err == nil {
		t.Fatal("want error for malformed dsn")
	}
}

func TestHistory_AppendRecent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	h := store.History()

	base := time.Now().Add(-time.Minute).Truncate(time.Microsecond)
	entries := []history.Entry{
		{Session: "s1", Seq: 1, Query: "сколько стоит", Tag: "price", MatchedBy: "rules", Outcome: "rendered", Latency: 120 * time.Millisecond, At: base},
		{Session: "s1", Seq: 2, Query: "__wake_ack__", Ack: true, Outcome: "superseded", At: base.Add(time.Second)},
		{Session: "s1", Seq: 3, Query: "где офис", Outcome: "failed", Error: "timeout", At: base.Add(2 * time.Second)},
	}
	for _, e := range entries {
		if err := h.Append(ctx, e); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	got, err := h.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Recent(2): want 2, got %d", len(got))
	}
	if got[0].Seq != 3 || got[1].Seq != 2 {
		t.Errorf("order: want seqs [3 2], got [%d %d]", got[0].Seq, got[1].Seq)
	}
	if got[0].Error != "timeout" {
		t.Errorf("Error: want %q, got %q", "timeout", got[0].Error)
	}
	if !got[1].Ack {
		t.Error("Ack: want true for seq 2")
	}

	all, _ := h.Recent(ctx, 10)
	last := all[len(all)-1]
	if last.Latency != 120*time.Millisecond {
		t.Errorf("Latency: want 120ms, got %v", last.Latency)
	}
	if !last.At.Equal(base) {
		t.Errorf("At: want %v, got %v", base, last.At)
	}
}

func TestKeyIndex_ReplaceNearest(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	keys := store.Keys()

	if err := keys.Replace(ctx, "m1", []answer.KeyVector{
		{Tag: "price", Key: "цена", Vector: []float32{1, 0, 0}},
		{Tag: "office", Key: "адрес", Vector: []float32{0, 1, 0}},
	}); err != nil {
		t.Fatalf("Replace: %v", err)
	}

	hits, err := keys.Nearest(ctx, "m1", []float32{0.9, 0.1, 0}, 2)
	if err != nil {
		t.Fatalf("Nearest: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("want 2 hits, got %d", len(hits))
	}
	if hits[0].Tag != "price" {
		t.Errorf("nearest tag: want price, got %q", hits[0].Tag)
	}
	if hits[0].Distance > hits[1].Distance {
		t.Errorf("hits not ordered by distance: %v", hits)
	}

	// Replace drops the previous set of the same model only.
	if err := keys.Replace(ctx, "m1", []answer.KeyVector{
		{Tag: "hours", Key: "часы работы", Vector: []float32{0, 0, 1}},
	}); err != nil {
		t.Fatalf("Replace again: %v", err)
	}
	hits, _ = keys.Nearest(ctx, "m1", []float32{1, 0, 0}, 5)
	if len(hits) != 1 || hits[0].Tag != "hours" {
		t.Errorf("after replace: want only hours, got %v", hits)
	}

	hits, _ = keys.Nearest(ctx, "other", []float32{1, 0, 0}, 5)
	if len(hits) != 0 {
		t.Errorf("other model: want no hits, got %v", hits)
	}
}

func TestKeyIndex_EmptyModel(t *testing.T) {
	store := newTestStore(t)
	if err := store.Keys().Replace(context.Background(), "", nil); err == nil {
		t.Error("want error for empty model")
	}
}
