// Package saga runs a dependency-resolution work graph to closure. The
// engine is generic over the work payload, its dedup key, and the fetch
// result; concrete pipelines plug in through the Processor contract.
package saga

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Processor supplies the per-pipeline behavior. Key derives the dedup
// identity of a work item; Process performs the (usually remote) fetch;
// Apply folds the result into shared state and returns any newly
// discovered work.
type Processor[W any, K cmp.Ordered, R any] interface {
	Key(w W) K
	Process(ctx context.Context, w W) (R, error)
	Apply(ctx context.Context, r R) ([]W, error)
}

// Hooks are optional observation points; nil funcs are skipped.
type Hooks struct {
	Dispatched func()
	Retried    func()
	Resolved   func()
	Failed     func()
}

func (h Hooks) dispatched() {
	if h.Dispatched != nil {
		h.Dispatched()
	}
}
func (h Hooks) retried() {
	if h.Retried != nil {
		h.Retried()
	}
}
func (h Hooks) resolved() {
	if h.Resolved != nil {
		h.Resolved()
	}
}
func (h Hooks) failed() {
	if h.Failed != nil {
		h.Failed()
	}
}

const (
	defaultWorkers    = 3
	defaultMaxRetries = 3
)

// Engine owns the pending/in-flight/resolved bookkeeping and the worker
// pool. One Engine value runs one graph at a time.
type Engine[W any, K cmp.Ordered, R any] struct {
	proc       Processor[W, K, R]
	workers    int
	maxRetries int
	log        zerolog.Logger
	hooks      Hooks
}

// Option configures an Engine.
type Option func(*config)

type config struct {
	workers    int
	maxRetries int
	log        zerolog.Logger
	hooks      Hooks
}

func WithWorkers(n int) Option           { return func(c *config) { c.workers = n } }
func WithMaxRetries(n int) Option        { return func(c *config) { c.maxRetries = n } }
func WithLogger(l zerolog.Logger) Option { return func(c *config) { c.log = l } }
func WithHooks(h Hooks) Option           { return func(c *config) { c.hooks = h } }

// New builds an engine around proc.
func New[W any, K cmp.Ordered, R any](proc Processor[W, K, R], opts ...Option) *Engine[W, K, R] {
	cfg := config{workers: defaultWorkers, maxRetries: defaultMaxRetries, log: zerolog.Nop()}
	for _, o := range opts {
		o(&cfg)
	}
	return &Engine[W, K, R]{
		proc:       proc,
		workers:    cfg.workers,
		maxRetries: cfg.maxRetries,
		log:        cfg.log,
		hooks:      cfg.hooks,
	}
}

type item[W any, K cmp.Ordered] struct {
	work    W
	key     K
	retries int
}

type outcome[W any, K cmp.Ordered] struct {
	it       item[W, K]
	produced []W
	err      error
}

// Run drives the graph from seeds until pending and in-flight are both
// empty, or until a work item exhausts its retries, or ctx is canceled.
func (e *Engine[W, K, R]) Run(ctx context.Context, seeds []W) error {
	runID := uuid.NewString()
	log := e.log.With().Str("run_id", runID).Logger()

	pending := newQueue[W, K]()
	inFlight := make(map[K]item[W, K])
	resolved := make(map[K]struct{})

	for _, w := range seeds {
		pending.push(item[W, K]{work: w, key: e.proc.Key(w)})
	}
	log.Info().Int("seeds", pending.len()).Int("workers", e.workers).Msg("saga started")

	workCh := make(chan item[W, K])
	resultCh := make(chan outcome[W, K], e.workers)
	var wg sync.WaitGroup
	for i := 0; i < e.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.worker(ctx, workCh, resultCh)
		}()
	}
	defer func() {
		close(workCh)
		done := make(chan struct{})
		go func() { wg.Wait(); close(done) }()
		for {
			select {
			case <-resultCh:
			case <-done:
				return
			}
		}
	}()

	for pending.len() > 0 || len(inFlight) > 0 {
		if it, ok := pending.popSmallest(); ok {
			if _, dup := resolved[it.key]; dup {
				continue
			}
			if _, dup := inFlight[it.key]; dup {
				continue
			}
			inFlight[it.key] = it
			// either hand the item to a worker or consume a result,
			// whichever unblocks first
			for dispatched := false; !dispatched; {
				select {
				case workCh <- it:
					e.hooks.dispatched()
					dispatched = true
				case out := <-resultCh:
					if err := e.handle(log, out, pending, inFlight, resolved); err != nil {
						return err
					}
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			continue
		}
		select {
		case out := <-resultCh:
			if err := e.handle(log, out, pending, inFlight, resolved); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	log.Info().Int("resolved", len(resolved)).Msg("saga closed")
	return nil
}

func (e *Engine[W, K, R]) handle(log zerolog.Logger, out outcome[W, K], pending *queue[W, K], inFlight map[K]item[W, K], resolved map[K]struct{}) error {
	delete(inFlight, out.it.key)

	if out.err != nil {
		if isTemporary(out.err) && out.it.retries < e.maxRetries {
			out.it.retries++
			pending.push(out.it)
			e.hooks.retried()
			log.Warn().Err(out.err).Any("key", out.it.key).Int("retry", out.it.retries).Msg("work retried")
			return nil
		}
		e.hooks.failed()
		return fmt.Errorf("saga: work %v failed: %w", out.it.key, out.err)
	}

	resolved[out.it.key] = struct{}{}
	e.hooks.resolved()
	log.Debug().Any("key", out.it.key).Int("pending", pending.len()).
		Int("in_flight", len(inFlight)).Int("resolved", len(resolved)).
		Int("discovered", len(out.produced)).Msg("work resolved")
	for _, w := range out.produced {
		k := e.proc.Key(w)
		if _, ok := resolved[k]; ok {
			continue
		}
		if _, ok := inFlight[k]; ok {
			continue
		}
		pending.push(item[W, K]{work: w, key: k})
	}
	return nil
}

func (e *Engine[W, K, R]) worker(ctx context.Context, workCh <-chan item[W, K], resultCh chan<- outcome[W, K]) {
	for it := range workCh {
		r, err := e.proc.Process(ctx, it.work)
		if err != nil {
			resultCh <- outcome[W, K]{it: it, err: err}
			continue
		}
		produced, err := e.proc.Apply(ctx, r)
		resultCh <- outcome[W, K]{it: it, produced: produced, err: err}
	}
}

// isTemporary treats an error as retryable unless it explicitly
// advertises Temporary() == false.
func isTemporary(err error) bool {
	var t interface{ Temporary() bool }
	if errors.As(err, &t) {
		return t.Temporary()
	}
	return true
}
