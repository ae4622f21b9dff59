// Command komekshi is the entry point for the komekshi voice assistant
// server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/komekshi/internal/answer"
	"github.com/MrWong99/komekshi/internal/assistant"
	"github.com/MrWong99/komekshi/internal/config"
	"github.com/MrWong99/komekshi/internal/health"
	"github.com/MrWong99/komekshi/internal/history"
	"github.com/MrWong99/komekshi/internal/instrument"
	"github.com/MrWong99/komekshi/internal/observe"
	"github.com/MrWong99/komekshi/internal/web"
	answerprovider "github.com/MrWong99/komekshi/pkg/provider/answer"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "komekshi.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	// ── Load configuration ────────────────────────────────────────────────────
	var reload func(old, new *config.Config)
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		if reload != nil {
			reload(old, new)
		}
	})
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "komekshi: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "komekshi: %v\n", err)
		}
		return 1
	}
	cfg := watcher.Current()
	level.Set(slogLevel(cfg.Server.LogLevel))

	slog.Info("komekshi starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownOtel, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOtel(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	ps, err := buildProviders(cfg, reg, metrics)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Storage ───────────────────────────────────────────────────────────────
	store, err := openStorage(ctx, cfg.Storage)
	if err != nil {
		slog.Error("failed to open storage", "err", err)
		return 1
	}
	defer store.Close()

	// ── Answers ───────────────────────────────────────────────────────────────
	local, err := buildAnswerService(ctx, cfg, ps, store.keys)
	if err != nil {
		slog.Error("failed to build answer service", "err", err)
		return 1
	}
	var answers answerprovider.Provider = instrument.WrapAnswer(local, "local", metrics)
	if ps.AnswerGroup != nil {
		ps.AnswerGroup.Add("local", answers)
		answers = ps.AnswerGroup
	}

	// ── Sessions ──────────────────────────────────────────────────────────────
	recorder := history.NewRecorder(store.history, cfg.Storage.HistoryBuffer)
	manager := assistant.NewManager(assistant.ManagerConfig{
		Session:  sessionConfig(cfg),
		STT:      ps.STT,
		Answers:  answers,
		Recorder: recorder,
		Metrics:  metrics,
	})

	reload = func(old, new *config.Config) {
		d := config.Diff(old, new)
		if d.LogLevelChanged {
			level.Set(slogLevel(d.NewLogLevel))
		}
		if d.WakeChanged || d.MessagesChanged || d.SessionChanged {
			manager.SetConfig(sessionConfig(new))
		}
		if d.IndexChanged {
			reloadIndex(ctx, local, new.Answer.IndexPath)
		}
		if len(d.RestartRequired) > 0 {
			slog.Warn("config changes need a restart to take effect", "sections", d.RestartRequired)
		}
		slog.Info("config reloaded", "log_level", d.LogLevelChanged, "wake", d.WakeChanged,
			"session", d.SessionChanged, "index", d.IndexChanged)
	}

	// ── HTTP ──────────────────────────────────────────────────────────────────
	srv := web.New(web.Config{
		StaticDir:         cfg.Server.StaticDir,
		OriginPatterns:    cfg.Server.OriginPatterns,
		MaxUpload:         cfg.Server.MaxUploadBytes,
		TranscribeTimeout: cfg.Capture.TranscribeTimeout,
		AskTimeout:        cfg.Dispatch.Timeout,
		CertFile:          tlsCert(cfg),
		KeyFile:           tlsKey(cfg),
	}, web.Deps{
		Sessions: manager,
		STT:      ps.STT,
		Answers:  answers,
		History:  store.history,
		Health:   health.New(readinessChecks(ps, local, store)...),
		Metrics:  metrics,
	})

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg, local.Index().Len())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.ListenAndServe(gctx, cfg.Server.ListenAddr) })
	g.Go(func() error { return recorder.Run(gctx) })
	g.Go(func() error { return watcher.Run(gctx) })
	g.Go(func() error { return reloadOnHangup(gctx, local, watcher) })

	slog.Info("server ready, press Ctrl+C to shut down")

	err = g.Wait()
	slog.Info("shutdown signal received, stopping…")
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("run error", "err", err)
		return 1
	}

	slog.Info("goodbye")
	return 0
}

// reloadOnHangup re-reads the answer index whenever the process receives
// SIGHUP. The path comes from the current configuration.
func reloadOnHangup(ctx context.Context, svc *answer.Service, w *config.Watcher) error {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-hup:
			reloadIndex(ctx, svc, w.Current().Answer.IndexPath)
		}
	}
}

// readinessChecks lists the dependencies /readyz reports on.
func readinessChecks(ps *providers, local *answer.Service, s *storage) []health.Checker {
	checks := []health.Checker{
		health.Configured("stt", ps.STT),
		health.NotDegraded("history", s.history.IsDegraded),
	}

	idx := health.MinCount("answer_index", 1, func() int { return local.Index().Len() })
	idx.Optional = ps.AnswerGroup != nil
	checks = append(checks, idx)

	if s.pg != nil {
		checks = append(checks, health.Ping("postgres", s.pg, false))
	}
	if ps.STTGroup != nil {
		checks = append(checks, health.Checker{Name: "stt_failover", Check: ps.STTGroup.Check})
	}
	if ps.AnswerGroup != nil {
		checks = append(checks, health.Checker{Name: "answer_failover", Check: ps.AnswerGroup.Check})
	}
	return checks
}

func tlsCert(cfg *config.Config) string {
	if cfg.Server.TLS == nil {
		return ""
	}
	return cfg.Server.TLS.CertFile
}

func tlsKey(cfg *config.Config) string {
	if cfg.Server.TLS == nil {
		return ""
	}
	return cfg.Server.TLS.KeyFile
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config, indexItems int) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║        komekshi, startup summary      ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("STT", cfg.Providers.STT.Name, cfg.Providers.STT.Model)
	printProvider("Answer", cfg.Providers.Answer.Name, cfg.Providers.Answer.BaseURL)
	printProvider("LLM", cfg.Providers.LLM.Name, cfg.Providers.LLM.Model)
	printProvider("Embeddings", cfg.Providers.Embeddings.Name, cfg.Providers.Embeddings.Model)
	backend := "memory"
	if cfg.Storage.PostgresDSN != "" {
		backend = "postgres"
	}
	fmt.Printf("║  Storage         : %-19s ║\n", backend)
	fmt.Printf("║  Index items     : %-19d ║\n", indexItems)
	fmt.Printf("║  Wake phrases    : %-19d ║\n", sessionWakeCount(cfg))
	if cfg.Server.ListenAddr != "" {
		fmt.Printf("║  Listen addr     : %-19s ║\n", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, detail string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if detail != "" {
		value = name + " / " + detail
	}
	if len([]rune(value)) > 19 {
		value = string([]rune(value)[:16]) + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}

func sessionWakeCount(cfg *config.Config) int {
	return wakeRules(cfg.Wake).Table.Len()
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
