// Package octopus implements a concurrent web crawling engine. A single
// dispatcher goroutine owns the store and feeds admitted requests to a
// pool of download workers; workers run matcher-gated processors over
// each response and feed discovered requests back through the dispatcher.
//
// The zero configuration crawls with an in-memory frontier, the stock
// HTTP downloader and one worker per CPU:
//
//	eng, err := octopus.New(
//		octopus.Process(matcher.HTML, processor.Extract(schema, collect)),
//	)
//	if err != nil {
//		...
//	}
//	err = eng.Run(octopus.Seed("https://example.com/"))
package octopus

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/go-octopus/octopus/fetcher"
	"github.com/go-octopus/octopus/matcher"
	"github.com/go-octopus/octopus/metrics"
	"github.com/go-octopus/octopus/processor"
	"github.com/go-octopus/octopus/site"
	"github.com/go-octopus/octopus/store"
	"github.com/go-octopus/octopus/types"
)

// EngineState is the lifecycle state of an Engine.
type EngineState int32

const (
	StateInit EngineState = iota
	StateStarting
	StateStarted
	StateStopping
	StateStopped
)

func (s EngineState) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateStarting:
		return "STARTING"
	case StateStarted:
		return "STARTED"
	case StateStopping:
		return "STOPPING"
	case StateStopped:
		return "STOPPED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int32(s))
	}
}

type processorEntry struct {
	matcher   matcher.Matcher
	processor processor.Processor
}

// Engine coordinates the crawl: it owns the store, the downloader, the
// site registry and the worker pool. An Engine runs one crawl; create a
// fresh one to run again.
type Engine struct {
	store       store.Store
	downloader  fetcher.Downloader
	processors  []processorEntry
	threads     int
	queueFactor int
	sites       *site.Registry
	retries     int
	maxDepth    int
	logger      *slog.Logger
	metrics     *metrics.Metrics

	state    atomic.Int32
	inFlight atomic.Int64

	// commands serializes every store mutation onto the dispatcher.
	commands chan func()
	// tasks hands admitted requests to workers; capacity equals the
	// admission semaphore, so sends never block once admitted.
	tasks chan *types.Request
	// sem is the admission semaphore bounding requests in flight.
	sem chan struct{}

	dispatcherDone chan struct{}
	workers        *errgroup.Group
	done           chan struct{}
}

// Option configures an Engine. Options validate eagerly; New returns the
// first error.
type Option func(*Engine) error

// WithStore sets the frontier backend. Default: store.NewMemory().
func WithStore(s store.Store) Option {
	return func(e *Engine) error {
		if s == nil {
			return errors.New("octopus: nil store")
		}
		e.store = s
		return nil
	}
}

// WithDownloader sets the transport. Default: fetcher.NewHTTP().
func WithDownloader(d fetcher.Downloader) Option {
	return func(e *Engine) error {
		if d == nil {
			return errors.New("octopus: nil downloader")
		}
		e.downloader = d
		return nil
	}
}

// Process appends a matcher/processor pair. Pairs run in registration
// order against every successful response; the matcher decides whether
// the processor sees it. The matcher is required: use matcher.All to
// match every response.
func Process(m matcher.Matcher, p processor.Processor) Option {
	return func(e *Engine) error {
		if m == nil {
			return errors.New("octopus: Process requires a matcher; use matcher.All to match everything")
		}
		if p == nil {
			return errors.New("octopus: Process requires a processor")
		}
		e.processors = append(e.processors, processorEntry{matcher: m, processor: p})
		return nil
	}
}

// WithThreads sets the worker count. Default: runtime.NumCPU().
func WithThreads(n int) Option {
	return func(e *Engine) error {
		if n <= 0 {
			return fmt.Errorf("octopus: threads must be positive, got %d", n)
		}
		e.threads = n
		return nil
	}
}

// WithQueueFactor sets the admission window multiplier: up to
// threads×factor requests may be taken from the store at once. Default 2.
func WithQueueFactor(f int) Option {
	return func(e *Engine) error {
		if f <= 0 {
			return fmt.Errorf("octopus: queue factor must be positive, got %d", f)
		}
		e.queueFactor = f
		return nil
	}
}

// WithSites registers per-host crawl policies.
func WithSites(sites ...*site.Site) Option {
	return func(e *Engine) error {
		e.sites = site.NewRegistry(sites...)
		return nil
	}
}

// WithRetries sets how many retry passes rescue FAILED requests when the
// frontier drains. Default 1.
func WithRetries(r int) Option {
	return func(e *Engine) error {
		if r < 0 {
			return fmt.Errorf("octopus: retries must not be negative, got %d", r)
		}
		e.retries = r
		return nil
	}
}

// WithMaxDepth drops discovered requests deeper than d. 0 means
// unlimited; seeds are depth 1.
func WithMaxDepth(d int) Option {
	return func(e *Engine) error {
		if d < 0 {
			return fmt.Errorf("octopus: max depth must not be negative, got %d", d)
		}
		e.maxDepth = d
		return nil
	}
}

// WithLogger sets the engine logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) error {
		if l == nil {
			return errors.New("octopus: nil logger")
		}
		e.logger = l
		return nil
	}
}

// WithMetrics attaches Prometheus instrumentation. A nil value is
// accepted and disables it.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) error {
		e.metrics = m
		return nil
	}
}

// New assembles an Engine in the INIT state.
func New(opts ...Option) (*Engine, error) {
	e := &Engine{
		threads:     runtime.NumCPU(),
		queueFactor: 2,
		retries:     1,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	if e.store == nil {
		e.store = store.NewMemory()
	}
	if e.downloader == nil {
		e.downloader = fetcher.NewHTTP(fetcher.WithLogger(e.logger))
	}
	if e.sites == nil {
		e.sites = site.NewRegistry()
	}
	e.logger = e.logger.With("component", "engine")

	slots := e.threads * e.queueFactor
	e.sem = make(chan struct{}, slots)
	e.tasks = make(chan *types.Request, slots)
	e.commands = make(chan func(), 256)
	e.dispatcherDone = make(chan struct{})
	e.done = make(chan struct{})
	return e, nil
}

// Seed wraps a URL string as a default GET request. It panics on a URL
// failing validation; use types.NewRequest when the URL is not a
// literal.
func Seed(rawURL string) *types.Request {
	r, err := types.NewRequest(rawURL)
	if err != nil {
		panic(fmt.Sprintf("octopus: invalid seed %q: %v", rawURL, err))
	}
	return r
}

// State returns the engine lifecycle state.
func (e *Engine) State() EngineState {
	return EngineState(e.state.Load())
}

// Stats returns the store's lifecycle histogram.
func (e *Engine) Stats() (*store.Stats, error) {
	return e.store.Stats()
}

// Start validates the seeds, enqueues them and launches the dispatcher
// and the worker pool. It requires the INIT state and returns
// immediately; use Wait or Run to block until the crawl finishes.
func (e *Engine) Start(seeds ...*types.Request) error {
	for _, s := range seeds {
		if s == nil {
			return &types.InvalidRequestError{Reason: "nil seed"}
		}
		if err := s.Validate(); err != nil {
			return err
		}
	}
	if !e.state.CompareAndSwap(int32(StateInit), int32(StateStarting)) {
		return &types.LifecycleError{Op: "start", State: e.State().String()}
	}

	e.logger.Info("engine starting",
		"threads", e.threads,
		"queue_factor", e.queueFactor,
		"retries", e.retries,
		"seeds", len(seeds),
	)

	go e.dispatch()
	e.workers = &errgroup.Group{}
	for i := 0; i < e.threads; i++ {
		e.workers.Go(e.work)
	}

	for _, s := range seeds {
		if err := e.enqueue(s, nil); err != nil {
			e.logger.Warn("seed rejected", "url", s.URL, "error", err)
		}
	}

	e.state.Store(int32(StateStarted))
	e.logger.Info("engine started")
	return nil
}

// Wait blocks until the crawl has stopped, whether it drained naturally
// or Stop was called.
func (e *Engine) Wait() error {
	if e.State() == StateInit {
		return &types.LifecycleError{Op: "wait", State: StateInit.String()}
	}
	<-e.done
	return nil
}

// Run is the synchronous form: Start followed by Wait.
func (e *Engine) Run(seeds ...*types.Request) error {
	if err := e.Start(seeds...); err != nil {
		return err
	}
	return e.Wait()
}

// Add enqueues a request while the engine is STARTING or STARTED.
func (e *Engine) Add(r *types.Request) error {
	if r == nil {
		return &types.InvalidRequestError{Reason: "nil request"}
	}
	if s := e.State(); s != StateStarting && s != StateStarted {
		return &types.LifecycleError{Op: "add request", State: s.String()}
	}
	return e.enqueue(r, nil)
}

// Stop shuts the crawl down: it stops dispatching, waits for in-flight
// requests to finish, then logs the final stats. It requires the STARTED
// state. The engine also calls Stop itself when the frontier drains and
// every retry pass is exhausted.
func (e *Engine) Stop() error {
	if !e.state.CompareAndSwap(int32(StateStarted), int32(StateStopping)) {
		return &types.LifecycleError{Op: "stop", State: e.State().String()}
	}

	e.logger.Info("engine stopping")
	<-e.dispatcherDone
	close(e.tasks)
	if err := e.workers.Wait(); err != nil {
		e.logger.Warn("worker pool returned error", "error", err)
	}
	e.state.Store(int32(StateStopped))

	if stats, err := e.store.Stats(); err != nil {
		e.logger.Warn("final stats unavailable", "error", err)
	} else {
		e.metrics.SetQueueDepth(int(stats.Waiting))
		e.logger.Info("engine stopped", "stats", stats)
	}
	close(e.done)
	return nil
}
