// Package dispatch sends accepted queries to the answer service and renders
// the replies.
//
// Requests are numbered with a per-dispatcher generation. When fencing is on,
// a reply that arrives after a newer request was submitted is superseded: it
// is logged and counted but never reaches the presentation sink. Every
// request ends in exactly one [Result], delivered to the OnDone hooks.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/komekshi/internal/present"
	"github.com/MrWong99/komekshi/pkg/provider/answer"
)

var (
	// ErrQueueFull is returned by Submit when the request queue is full.
	ErrQueueFull = errors.New("dispatch: queue full")

	// ErrClosed is returned by Submit after Run has returned.
	ErrClosed = errors.New("dispatch: closed")
)

// Defaults for [Config].
const (
	DefaultQueueSize   = 8
	DefaultConcurrency = 2
	DefaultTimeout     = 20 * time.Second
)

// Config tunes a [Dispatcher].
type Config struct {
	// QueueSize is the capacity of the request channel.
	QueueSize int

	// Concurrency caps the number of requests in flight.
	Concurrency int

	// Timeout bounds each answer call.
	Timeout time.Duration

	// Fence drops replies superseded by a newer request.
	Fence bool
}

// DefaultConfig returns the stock dispatcher configuration with fencing on.
func DefaultConfig() Config {
	return Config{
		QueueSize:   DefaultQueueSize,
		Concurrency: DefaultConcurrency,
		Timeout:     DefaultTimeout,
		Fence:       true,
	}
}

func (c Config) withDefaults() Config {
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultQueueSize
	}
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	return c
}

// Request is one query to answer.
type Request struct {
	// Seq is the request's generation. Zero lets Submit assign the next one.
	Seq uint64

	// Query is the text sent to the answer service.
	Query string

	// Ack marks a bare wake word; Query then holds the sentinel.
	Ack bool

	// Submitted is set by Submit.
	Submitted time.Time
}

// Outcome is how a request ended.
type Outcome int

const (
	// OutcomeRendered means the reply was shown (and played, if it had audio).
	OutcomeRendered Outcome = iota

	// OutcomeSuperseded means a newer request existed when the reply arrived.
	OutcomeSuperseded

	// OutcomeFailed means the answer call returned an error or timed out.
	OutcomeFailed

	// OutcomeRejected means the request never ran because the queue was full
	// or the dispatcher was closed.
	OutcomeRejected
)

// String returns the lower-case outcome name used in logs and metrics.
func (o Outcome) String() string {
	switch o {
	case OutcomeRendered:
		return "rendered"
	case OutcomeSuperseded:
		return "superseded"
	case OutcomeFailed:
		return "failed"
	case OutcomeRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Result is the completion record of one request.
type Result struct {
	Request Request
	Outcome Outcome
	Reply   answer.Reply
	Err     error
	Latency time.Duration
}

// Option is a functional option for [New].
type Option func(*Dispatcher)

// WithConfig replaces the dispatcher configuration.
func WithConfig(c Config) Option {
	return func(d *Dispatcher) {
		d.cfg = c
	}
}

// WithMessages sets the status strings shown while searching and on errors.
func WithMessages(m present.Messages) Option {
	return func(d *Dispatcher) {
		d.msgs = m
	}
}

// WithOnDone registers a hook called once per request with its Result.
// Hooks run on the dispatcher's worker goroutines and must not block.
func WithOnDone(fn func(Result)) Option {
	return func(d *Dispatcher) {
		d.hooks = append(d.hooks, fn)
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.log = l
	}
}

// Dispatcher is the generation-fenced request channel between the wake gate
// and the answer service. Submit is safe for concurrent use; Run must be
// called exactly once.
type Dispatcher struct {
	cfg      Config
	provider answer.Provider
	sink     present.Sink
	msgs     present.Messages
	hooks    []func(Result)
	log      *slog.Logger

	queue  chan Request
	latest atomic.Uint64

	// qmu makes the closed check and the enqueue in Submit atomic with
	// respect to Run marking the dispatcher closed.
	qmu    sync.Mutex
	closed bool

	mu       sync.Mutex
	inflight int
}

// New creates a Dispatcher answering through p and rendering into sink.
func New(p answer.Provider, sink present.Sink, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		cfg:      DefaultConfig(),
		provider: p,
		sink:     sink,
		msgs:     present.DefaultMessages(),
		log:      slog.Default(),
	}
	for _, o := range opts {
		o(d)
	}
	d.cfg = d.cfg.withDefaults()
	d.msgs = d.msgs.WithDefaults()
	d.queue = make(chan Request, d.cfg.QueueSize)
	return d
}

// Submit enqueues req without blocking and returns its generation. A full
// queue shows the busy status, completes the request as rejected and returns
// ErrQueueFull.
func (d *Dispatcher) Submit(req Request) (uint64, error) {
	if req.Seq == 0 {
		req.Seq = d.latest.Load() + 1
	}
	d.raiseLatest(req.Seq)
	req.Submitted = time.Now()

	d.qmu.Lock()
	if d.closed {
		d.qmu.Unlock()
		d.finish(Result{Request: req, Outcome: OutcomeRejected, Err: ErrClosed})
		return req.Seq, ErrClosed
	}
	select {
	case d.queue <- req:
		d.qmu.Unlock()
		return req.Seq, nil
	default:
		d.qmu.Unlock()
		d.log.Warn("dispatch: queue full, rejecting request", "seq", req.Seq, "queue", cap(d.queue))
		d.sink.Status(d.msgs.Busy)
		d.finish(Result{Request: req, Outcome: OutcomeRejected, Err: ErrQueueFull})
		return req.Seq, ErrQueueFull
	}
}

// raiseLatest stores seq if it is newer than the current latest generation.
func (d *Dispatcher) raiseLatest(seq uint64) {
	for {
		cur := d.latest.Load()
		if seq <= cur || d.latest.CompareAndSwap(cur, seq) {
			return
		}
	}
}

// Latest returns the newest submitted generation.
func (d *Dispatcher) Latest() uint64 {
	return d.latest.Load()
}

// InFlight returns the number of requests currently being answered.
func (d *Dispatcher) InFlight() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.inflight
}

// Run consumes the queue until ctx is cancelled, answering at most
// Config.Concurrency requests at a time. It waits for in-flight requests
// before returning; queued requests that never started complete as
// rejected.
func (d *Dispatcher) Run(ctx context.Context) error {
	g := new(errgroup.Group)
	g.SetLimit(d.cfg.Concurrency)

	defer func() {
		d.qmu.Lock()
		d.closed = true
		d.qmu.Unlock()
		_ = g.Wait()
		for {
			select {
			case req := <-d.queue:
				d.finish(Result{Request: req, Outcome: OutcomeRejected, Err: ErrClosed})
			default:
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case req := <-d.queue:
			g.Go(func() error {
				d.handle(ctx, req)
				return nil
			})
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, req Request) {
	d.mu.Lock()
	d.inflight++
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		d.inflight--
		d.mu.Unlock()
	}()

	if d.cfg.Fence && req.Seq < d.latest.Load() {
		d.log.Debug("dispatch: skipping stale request", "seq", req.Seq, "latest", d.latest.Load())
		d.finish(Result{Request: req, Outcome: OutcomeSuperseded})
		return
	}

	d.sink.Status(d.msgs.Searching)

	callCtx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	start := time.Now()
	reply, err := d.provider.Ask(callCtx, req.Query)
	cancel()
	res := Result{Request: req, Reply: reply, Latency: time.Since(start)}

	if err != nil {
		res.Outcome = OutcomeFailed
		res.Err = fmt.Errorf("dispatch: ask seq %d: %w", req.Seq, err)
		d.log.Warn("dispatch: answer failed", "seq", req.Seq, "err", err)
		if !d.cfg.Fence || req.Seq == d.latest.Load() {
			d.sink.Status(d.msgs.AnswerError)
		}
		d.finish(res)
		return
	}

	if d.cfg.Fence && req.Seq < d.latest.Load() {
		res.Outcome = OutcomeSuperseded
		d.log.Info("dispatch: reply superseded", "seq", req.Seq, "latest", d.latest.Load(), "tag", reply.MatchedTag)
		d.finish(res)
		return
	}

	if reply.AudioURL != "" {
		d.sink.Play(reply.AudioURL)
	}
	d.sink.Answer(present.AnswerMarkup(reply.ScreenText))
	d.sink.Status(d.msgs.Listening)
	res.Outcome = OutcomeRendered
	d.log.Debug("dispatch: reply rendered", "seq", req.Seq, "tag", reply.MatchedTag, "matched_by", reply.MatchedBy, "latency", res.Latency)
	d.finish(res)
}

func (d *Dispatcher) finish(res Result) {
	for _, fn := range d.hooks {
		fn(res)
	}
}
