// Copyright 2025 ParExpr contributors.
// SPDX-License-Identifier: Apache-2.0
package parexpr

import (
	"sync"

	"github.com/parexpr/parexpr/errors"
)

// pool owns the fixed set of instance replicas for one expression. It
// tracks which replicas are idle, how many are active, the runtime
// concurrency ceiling and the high-water mark of concurrent activity.
//
// Invariant: active <= maxParallel <= len(instances).
type pool struct {
	mu   sync.Mutex
	cond *sync.Cond

	instances []*instance
	idle      []*instance
	active    int
	// maxParallel is the runtime ceiling; lowering it never evicts an
	// active instance, it only throttles future acquisitions.
	maxParallel int
	// maxActive is the highest value active has ever reached.
	maxActive int

	// compileFn lazily compiles a fresh replica; runs without the pool
	// lock held.
	compileFn func(*instance) error

	stats StatsClient
}

func newPool(n int, compileFn func(*instance) error, stats StatsClient) *pool {
	p := &pool{
		instances:   make([]*instance, 0, n),
		idle:        make([]*instance, 0, n),
		maxParallel: n,
		compileFn:   compileFn,
		stats:       stats,
	}
	p.cond = sync.NewCond(&p.mu)
	for i := 0; i < n; i++ {
		in := newInstance(i)
		p.instances = append(p.instances, in)
		p.idle = append(p.idle, in)
	}
	return p
}

// tryAcquire returns an idle instance if one exists and the ceiling
// allows it, compiling the replica first if this is its first use.
// Returns (nil, nil) when nothing is available right now.
func (p *pool) tryAcquire() (*instance, error) {
	p.mu.Lock()
	if p.active >= p.maxParallel || len(p.idle) == 0 {
		p.mu.Unlock()
		return nil, nil
	}
	return p.take()
}

// acquire blocks until an instance is idle and under the ceiling. Only
// the single-instance synchronous call path uses this; job submission
// never blocks.
func (p *pool) acquire() (*instance, error) {
	p.mu.Lock()
	for p.active >= p.maxParallel || len(p.idle) == 0 {
		p.cond.Wait()
	}
	return p.take()
}

// take pops an idle instance. Called with p.mu held; releases it.
func (p *pool) take() (*instance, error) {
	in := p.idle[len(p.idle)-1]
	p.idle = p.idle[:len(p.idle)-1]
	p.active++
	if p.active > p.maxActive {
		p.maxActive = p.active
	}
	p.stats.Gauge(MetricActiveInstances, float64(p.active), 1.0)
	if in.compiled() {
		in.state = instActive
		p.mu.Unlock()
		return in, nil
	}
	in.state = instCompiling
	p.mu.Unlock()

	if err := p.compileFn(in); err != nil {
		p.mu.Lock()
		in.state = instIdle
		p.idle = append(p.idle, in)
		p.active--
		p.stats.Gauge(MetricActiveInstances, float64(p.active), 1.0)
		p.cond.Signal()
		p.mu.Unlock()
		return nil, err
	}

	p.mu.Lock()
	in.state = instActive
	p.mu.Unlock()
	return in, nil
}

// release returns an instance to the idle set and wakes one waiter.
func (p *pool) release(in *instance) {
	p.mu.Lock()
	in.state = instIdle
	p.idle = append(p.idle, in)
	p.active--
	p.stats.Gauge(MetricActiveInstances, float64(p.active), 1.0)
	p.cond.Signal()
	p.mu.Unlock()
}

// setMaxParallel adjusts the runtime ceiling. Raising it may unblock
// waiters; lowering it only affects future acquisitions.
func (p *pool) setMaxParallel(n int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n < 1 || n > len(p.instances) {
		return errors.Newf(errors.ErrInvalidArgument,
			"max parallel %d out of range [1, %d]", n, len(p.instances))
	}
	p.maxParallel = n
	p.cond.Broadcast()
	return nil
}

func (p *pool) getMaxParallel() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.maxParallel
}

func (p *pool) activeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

func (p *pool) highWater() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.maxActive
}

func (p *pool) provisionedCount() int {
	return len(p.instances)
}
