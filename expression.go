// Copyright 2025 ParExpr contributors.
// SPDX-License-Identifier: Apache-2.0
package parexpr

import (
	"sort"
	"sync"

	"github.com/parexpr/parexpr/errors"
	"github.com/parexpr/parexpr/logger"
)

// Expression is a compiled computation plus its replicated mutable
// evaluation state. The compiled form and the name lists are immutable
// after construction; all mutable state lives in the instances owned by
// the pool. An Expression must be kept alive by the caller until every
// asynchronous call on it has delivered its result.
type Expression struct {
	source string

	// scalarNames in insertion order; the order determines
	// positional-argument mapping. vectorNames follow scalars.
	scalarNames []string
	vectorNames []string
	vectorLens  map[string]int

	engine Engine
	sched  *Scheduler
	log    logger.Logger
	stats  StatsClient

	pool *pool

	mu      sync.Mutex
	pending []*joblet // joblets waiting for an instance, FIFO
	closed  bool

	capiOnce sync.Once
	capi     *Descriptor
}

// Option configures an Expression at construction.
type Option func(*Expression)

// WithScheduler attaches the expression to a specific scheduler instead
// of the process-wide default.
func WithScheduler(s *Scheduler) Option {
	return func(e *Expression) { e.sched = s }
}

// WithEngine substitutes the evaluation engine; mainly for tests.
func WithEngine(eng Engine) Option {
	return func(e *Expression) { e.engine = eng }
}

// WithLogger sets the expression's logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Expression) { e.log = l }
}

// WithStats sets the expression's stats client.
func WithStats(c StatsClient) Option {
	return func(e *Expression) { e.stats = c }
}

// NewExpression compiles source once and provisions the replica pool.
// scalars lists the scalar variable names in positional order; nil means
// collect them from the source (the collected order is then the
// positional order). vectors maps vector names to their declared
// lengths; vector names follow scalars in positional order, sorted by
// name since map iteration order is not stable.
//
// Compile failures are reported here, once, with the engine's positional
// diagnostics; the expression is unusable afterwards.
func NewExpression(source string, scalars []string, vectors map[string]int, opts ...Option) (*Expression, error) {
	e := &Expression{
		source:     source,
		vectorLens: map[string]int{},
		log:        logger.NopLogger,
		stats:      NopStatsClient,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.engine == nil {
		e.engine = NewEngine()
	}
	if e.sched == nil {
		e.sched = DefaultScheduler()
	}
	if e.log == logger.NopLogger && e.sched.log != logger.NopLogger {
		e.log = e.sched.log
	}

	if scalars == nil {
		for _, name := range CollectVariables(source) {
			if _, ok := vectors[name]; !ok {
				scalars = append(scalars, name)
			}
		}
	}

	seen := map[string]bool{}
	for _, name := range scalars {
		if !validName(name) || seen[name] {
			return nil, errors.Newf(errors.ErrBadArgument, "%s is not a valid variable name", name)
		}
		seen[name] = true
		e.scalarNames = append(e.scalarNames, name)
	}
	for name, n := range vectors {
		if !validName(name) || seen[name] {
			return nil, errors.Newf(errors.ErrBadArgument, "%s is not a valid vector name", name)
		}
		if n < 1 {
			return nil, errors.Newf(errors.ErrBadArgument, "vector %s has non-positive size %d", name, n)
		}
		seen[name] = true
		e.vectorNames = append(e.vectorNames, name)
		e.vectorLens[name] = n
	}
	sort.Strings(e.vectorNames)

	e.pool = newPool(e.sched.Workers(), e.compileInstance, e.stats)

	// Compile replica 0 eagerly so malformed source fails the
	// constructor instead of the first call.
	if err := e.compileInstance(e.pool.instances[0]); err != nil {
		return nil, err
	}
	return e, nil
}

// compileInstance lazily compiles one replica; the name list is copied
// from the expression, the program is compiled fresh under the global
// compiler lock.
func (e *Expression) compileInstance(in *instance) error {
	return in.compile(e.engine, e.source, e.scalarNames, e.vectorLens)
}

// Source returns the expression text.
func (e *Expression) Source() string { return e.source }

// Scalars returns the scalar parameter names in positional order.
func (e *Expression) Scalars() []string {
	out := make([]string, len(e.scalarNames))
	copy(out, e.scalarNames)
	return out
}

// Vectors returns the vector parameter names and declared lengths.
func (e *Expression) Vectors() map[string]int {
	out := make(map[string]int, len(e.vectorLens))
	for k, v := range e.vectorLens {
		out[k] = v
	}
	return out
}

// MaxParallel returns the current concurrency ceiling.
func (e *Expression) MaxParallel() int { return e.pool.getMaxParallel() }

// SetMaxParallel adjusts the concurrency ceiling at runtime. It fails
// with ErrInvalidArgument when n exceeds the provisioned instance count;
// lowering the ceiling never evicts active instances.
func (e *Expression) SetMaxParallel(n int) error { return e.pool.setMaxParallel(n) }

// MaxActive returns the high-water mark of concurrently active
// instances.
func (e *Expression) MaxActive() int { return e.pool.highWater() }

// ActiveInstances returns the number of currently active instances.
func (e *Expression) ActiveInstances() int { return e.pool.activeCount() }

// variableNames returns scalars followed by vectors, the full
// positional order.
func (e *Expression) variableNames() []string {
	out := make([]string, 0, len(e.scalarNames)+len(e.vectorNames))
	out = append(out, e.scalarNames...)
	out = append(out, e.vectorNames...)
	return out
}

func (e *Expression) isScalarName(name string) bool {
	for _, n := range e.scalarNames {
		if n == name {
			return true
		}
	}
	return false
}

// checkOpen fails calls on a closed expression.
func (e *Expression) checkOpen() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return errors.Newf(errors.ErrExpressionClosed, "expression %q is closed", e.source)
	}
	return nil
}

// addPending parks a joblet that could not get an instance at submit
// time. It will be bound to the next instance a worker frees.
func (e *Expression) addPending(jl *joblet) {
	e.mu.Lock()
	e.pending = append(e.pending, jl)
	e.mu.Unlock()
}

// nextPending pops the head of the local pending queue and binds it to
// the instance that just freed, skipping the idle-pool round trip.
// Returns nil when nothing is waiting.
func (e *Expression) nextPending(in *instance) *joblet {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.pending) == 0 {
		return nil
	}
	jl := e.pending[0]
	e.pending = e.pending[1:]
	jl.inst = in
	return jl
}

// releaseInstance gives a freed instance to the next pending joblet, or
// returns it to the idle pool. Every code path that frees an instance
// funnels through here so the pending queue can never starve behind the
// idle pool.
func (e *Expression) releaseInstance(in *instance) {
	if next := e.nextPending(in); next != nil {
		e.sched.enqueue(next)
	} else {
		e.pool.release(in)
	}
}

// Close releases the expression. Closing while instances are active or
// joblets are pending is lifecycle misuse: it means an asynchronous
// call is in flight and the caller holds no keep-alive reference. It is
// reported loudly and the expression stays usable by the in-flight work;
// recovery beyond the diagnostic is the caller's problem.
func (e *Expression) Close() error {
	e.mu.Lock()
	pendingN := len(e.pending)
	alreadyClosed := e.closed
	e.closed = true
	e.mu.Unlock()
	if alreadyClosed {
		return nil
	}
	if active := e.pool.activeCount(); active > 0 || pendingN > 0 {
		e.log.Errorf("closing expression %q with %d active instances and %d pending joblets; the caller must keep the expression alive until asynchronous calls complete", e.source, active, pendingN)
		return errors.Newf(errors.ErrExpressionBusy,
			"expression %q closed with %d active instances and %d pending joblets", e.source, active, pendingN)
	}
	return nil
}
