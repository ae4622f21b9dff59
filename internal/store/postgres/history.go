package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/komekshi/internal/history"
)

// HistoryStore is the dialogue_log table.
type HistoryStore struct {
	pool *pgxpool.Pool
}

// Append implements [history.Store].
func (h *HistoryStore) Append(ctx context.Context, e history.Entry) error {
	at := e.At
	if at.IsZero() {
		at = time.Now()
	}
	const q = `
		INSERT INTO dialogue_log
		    (session_id, seq, transcript, query, ack, tag, matched_by, audio_url, outcome, error, latency_ns, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err := h.pool.Exec(ctx, q,
		e.Session, int64(e.Seq), e.Transcript, e.Query, e.Ack, e.Tag, e.MatchedBy,
		e.AudioURL, e.Outcome, e.Error, e.Latency.Nanoseconds(), at,
	)
	if err != nil {
		return fmt.Errorf("history: append: %w", err)
	}
	return nil
}

// Recent implements [history.Store].
func (h *HistoryStore) Recent(ctx context.Context, limit int) ([]history.Entry, error) {
	if limit <= 0 {
		limit = history.DefaultCapacity
	}
	const q = `
		SELECT id, session_id, seq, transcript, query, ack, tag, matched_by, audio_url, outcome, error, latency_ns, created_at
		FROM   dialogue_log
		ORDER  BY created_at DESC, id DESC
		LIMIT  $1`

	rows, err := h.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("history: recent: %w", err)
	}
	entries, err := pgx.CollectRows(rows, scanEntry)
	if err != nil {
		return nil, fmt.Errorf("history: recent: %w", err)
	}
	return entries, nil
}

func scanEntry(row pgx.CollectableRow) (history.Entry, error) {
	var (
		e       history.Entry
		seq     int64
		latency int64
	)
	err := row.Scan(&e.ID, &e.Session, &seq, &e.Transcript, &e.Query, &e.Ack, &e.Tag,
		&e.MatchedBy, &e.AudioURL, &e.Outcome, &e.Error, &latency, &e.At)
	e.Seq = uint64(seq)
	e.Latency = time.Duration(latency)
	return e, err
}
