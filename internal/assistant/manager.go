package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/MrWong99/komekshi/internal/history"
	"github.com/MrWong99/komekshi/internal/observe"
	"github.com/MrWong99/komekshi/internal/present"
	"github.com/MrWong99/komekshi/internal/wake"
	"github.com/MrWong99/komekshi/pkg/provider/answer"
	"github.com/MrWong99/komekshi/pkg/provider/stt"
)

var (
	// ErrNoRecogniser is returned by [Manager.Open] when no STT provider is
	// configured.
	ErrNoRecogniser = errors.New("assistant: no stt provider configured")

	// ErrSessionExists is returned by [Manager.Open] for a duplicate id.
	ErrSessionExists = errors.New("assistant: session already exists")
)

// SessionInfo holds metadata about a live session.
type SessionInfo struct {
	ID        string    `json:"id"`
	StartedAt time.Time `json:"started_at"`
	Remote    string    `json:"remote,omitempty"`
}

type entry struct {
	info    SessionInfo
	session *Session
}

// Manager creates capture sessions from the current configuration and keeps
// track of the live ones. All methods are safe for concurrent use.
type Manager struct {
	mu       sync.Mutex
	cfg      Config
	sessions map[string]entry

	stt      stt.Provider
	answers  answer.Provider
	recorder *history.Recorder
	metrics  *observe.Metrics
	log      *slog.Logger
}

// ManagerConfig holds the dependencies of a [Manager].
type ManagerConfig struct {
	Session  Config
	STT      stt.Provider
	Answers  answer.Provider
	Recorder *history.Recorder
	Metrics  *observe.Metrics
	Logger   *slog.Logger
}

// NewManager creates a Manager.
func NewManager(mc ManagerConfig) *Manager {
	m := &Manager{
		cfg:      mc.Session,
		sessions: make(map[string]entry),
		stt:      mc.STT,
		answers:  mc.Answers,
		recorder: mc.Recorder,
		metrics:  mc.Metrics,
		log:      mc.Logger,
	}
	if m.metrics == nil {
		m.metrics = observe.DefaultMetrics()
	}
	if m.log == nil {
		m.log = slog.Default()
	}
	return m
}

// Config returns the configuration new sessions start with.
func (m *Manager) Config() Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg
}

// SetConfig replaces the configuration for new sessions. Live sessions pick
// up the new wake rules immediately; everything else applies to sessions
// opened afterwards.
func (m *Manager) SetConfig(cfg Config) {
	m.mu.Lock()
	m.cfg = cfg
	live := make([]*Session, 0, len(m.sessions))
	for _, e := range m.sessions {
		live = append(live, e.session)
	}
	m.mu.Unlock()

	for _, s := range live {
		s.Gate().SetRules(cfg.Wake)
	}
}

// SetWakeRules swaps only the wake rules, for new and live sessions.
func (m *Manager) SetWakeRules(r wake.Rules) {
	cfg := m.Config()
	cfg.Wake = r
	m.SetConfig(cfg)
}

// Open creates and registers a session rendering into sink. The caller runs
// it and must call [Manager.Close] when it ends.
func (m *Manager) Open(id, remote string, sink present.Sink, opts ...Option) (*Session, error) {
	if m.stt == nil {
		return nil, ErrNoRecogniser
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionExists, id)
	}

	base := []Option{WithMetrics(m.metrics), WithLogger(m.log)}
	if m.recorder != nil {
		base = append(base, WithRecorder(m.recorder))
	}
	s := NewSession(id, m.cfg, m.stt, m.answers, sink, append(base, opts...)...)
	m.sessions[id] = entry{
		info:    SessionInfo{ID: id, StartedAt: time.Now().UTC(), Remote: remote},
		session: s,
	}
	m.metrics.ActiveSessions.Add(context.Background(), 1)
	m.log.Info("assistant: session opened", "session", id, "remote", remote, "active", len(m.sessions))
	return s, nil
}

// Close unregisters the session with id. Unknown ids are ignored.
func (m *Manager) Close(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return
	}
	delete(m.sessions, id)
	m.metrics.ActiveSessions.Add(context.Background(), -1)
	m.log.Info("assistant: session closed", "session", id, "active", len(m.sessions))
}

// Get returns the live session with id.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[id]
	return e.session, ok
}

// Sessions returns metadata of all live sessions, oldest first.
func (m *Manager) Sessions() []SessionInfo {
	m.mu.Lock()
	out := make([]SessionInfo, 0, len(m.sessions))
	for _, e := range m.sessions {
		out = append(out, e.info)
	}
	m.mu.Unlock()
	slices.SortFunc(out, func(a, b SessionInfo) int { return a.StartedAt.Compare(b.StartedAt) })
	return out
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
