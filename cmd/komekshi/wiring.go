package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MrWong99/komekshi/internal/answer"
	"github.com/MrWong99/komekshi/internal/assistant"
	"github.com/MrWong99/komekshi/internal/config"
	"github.com/MrWong99/komekshi/internal/history"
	"github.com/MrWong99/komekshi/internal/store/postgres"
	"github.com/MrWong99/komekshi/internal/wake"
	answerprovider "github.com/MrWong99/komekshi/pkg/provider/answer"
)

// sessionConfig maps the file configuration onto the capture session
// configuration. Zero values keep the session defaults.
func sessionConfig(cfg *config.Config) assistant.Config {
	sc := assistant.DefaultConfig()

	if v := cfg.VAD.Threshold; v > 0 {
		sc.Segment.Threshold = v
	}
	if v := cfg.VAD.Hang; v > 0 {
		sc.Segment.Hang = v
	}
	if v := cfg.VAD.MinBytes; v > 0 {
		sc.Segment.MinBytes = v
	}
	sc.Segment.MaxUtterance = cfg.VAD.MaxUtterance
	if v := cfg.VAD.MeterBase; v > 0 {
		sc.Meter.Base = v
	}
	if v := cfg.VAD.MeterSpan; v > 0 {
		sc.Meter.Span = v
	}

	sc.Wake = wakeRules(cfg.Wake)

	if v := cfg.Dispatch.QueueSize; v > 0 {
		sc.Dispatch.QueueSize = v
	}
	if v := cfg.Dispatch.Concurrency; v > 0 {
		sc.Dispatch.Concurrency = v
	}
	if v := cfg.Dispatch.Timeout; v > 0 {
		sc.Dispatch.Timeout = v
	}
	sc.Dispatch.Fence = cfg.Dispatch.FenceEnabled()

	sc.Messages = cfg.Messages.WithDefaults()
	sc.STT.Language = cfg.Capture.Language
	sc.STT.Prompt = cfg.Capture.Prompt
	if v := cfg.Capture.TranscribeQueue; v > 0 {
		sc.TranscribeQueue = v
	}
	if v := cfg.Capture.TranscribeTimeout; v > 0 {
		sc.TranscribeTimeout = v
	}
	return sc
}

func wakeRules(w config.WakeConfig) wake.Rules {
	r := wake.DefaultRules()
	if len(w.Triggers) > 0 {
		r.Table = wake.NewTable(w.Triggers)
	}
	if w.Timeout > 0 {
		r.Timeout = w.Timeout
	}
	if w.AckSentinel != "" {
		r.AckSentinel = w.AckSentinel
	}
	r.FuzzyThreshold = w.FuzzyThreshold
	return r
}

// ── Storage ───────────────────────────────────────────────────────────────────

// storage bundles the history store and the key index, backed by Postgres
// when a DSN is configured and by memory otherwise.
type storage struct {
	pg      *postgres.Store
	history *history.Guard
	keys    answer.KeyIndex
}

func openStorage(ctx context.Context, cfg config.StorageConfig) (*storage, error) {
	if cfg.PostgresDSN == "" {
		return &storage{
			history: history.NewGuard(history.NewMemStore(cfg.HistoryCapacity)),
			keys:    answer.NewMemoryKeyIndex(),
		}, nil
	}
	pg, err := postgres.NewStore(ctx, cfg.PostgresDSN, cfg.EmbeddingDimensions)
	if err != nil {
		return nil, err
	}
	return &storage{pg: pg, history: history.NewGuard(pg.History()), keys: pg.Keys()}, nil
}

func (s *storage) Close() {
	if s.pg != nil {
		s.pg.Close()
	}
}

// ── Answers ───────────────────────────────────────────────────────────────────

// buildAnswerService creates the local answer service over the index at
// cfg.Answer.IndexPath. A missing index yields an empty one so the server
// still starts; readiness reports it.
func buildAnswerService(ctx context.Context, cfg *config.Config, ps *providers, keys answer.KeyIndex) (*answer.Service, error) {
	idx, err := loadIndex(cfg.Answer.IndexPath)
	if err != nil {
		return nil, err
	}

	opts := []answer.ServiceOption{
		answer.WithAckSentinel(wakeRules(cfg.Wake).AckSentinel),
		answer.WithOnMatch(func(q string, r answerprovider.Reply) {
			slog.Debug("answer matched", "query", q, "tag", r.MatchedTag, "by", r.MatchedBy)
		}),
	}
	if len(cfg.Answer.StripNames) > 0 {
		opts = append(opts, answer.WithStripNames(cfg.Answer.StripNames...))
	}
	if ps.LLM != nil {
		opts = append(opts, answer.WithClassifier(answer.NewClassifier(ps.LLM)))
	}
	if ps.Embeddings != nil {
		opts = append(opts, answer.WithSemantic(answer.NewSemantic(ps.Embeddings, keys, cfg.Answer.SemanticThreshold)))
	}

	svc := answer.NewService(idx, opts...)
	if ps.Embeddings != nil {
		if err := svc.SetIndex(ctx, idx); err != nil {
			return nil, fmt.Errorf("embed answer keys: %w", err)
		}
	}
	return svc, nil
}

func loadIndex(path string) (*answer.Index, error) {
	idx, err := answer.LoadIndex(path)
	if errors.Is(err, answer.ErrIndexNotFound) {
		slog.Warn("answer index not found, every query gets the default audio", "path", path)
		return answer.ParseIndex([]byte(`{"items": []}`))
	}
	return idx, err
}

// reloadIndex re-reads the index file into svc.
func reloadIndex(ctx context.Context, svc *answer.Service, path string) {
	idx, err := answer.LoadIndex(path)
	if err != nil {
		slog.Warn("answer index reload failed, keeping the previous index", "path", path, "err", err)
		return
	}
	if err := svc.SetIndex(ctx, idx); err != nil {
		slog.Warn("answer index reload failed, keeping the previous index", "path", path, "err", err)
		return
	}
	slog.Info("answer index reloaded", "path", path, "items", idx.Len())
}
