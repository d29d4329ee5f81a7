// Copyright 2025 ParExpr contributors.
// SPDX-License-Identifier: Apache-2.0
package parexpr

import (
	"sync"
	"time"

	"github.com/parexpr/parexpr/errors"
	"github.com/parexpr/parexpr/logger"
)

// Scheduler owns the global joblet queue, the long-lived worker
// goroutines shared by every expression attached to it, and the single
// control goroutine that asynchronous completions are marshaled back to.
// It is an explicit object rather than package state so tests can run
// isolated schedulers side by side.
type Scheduler struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []*joblet
	closed bool

	workers  sync.WaitGroup
	nworkers int

	// completions feeds the control goroutine; controlDone closes when
	// it drains.
	completions chan func()
	controlDone chan struct{}

	log   logger.Logger
	stats StatsClient
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithSchedulerLogger sets the scheduler's logger.
func WithSchedulerLogger(l logger.Logger) SchedulerOption {
	return func(s *Scheduler) { s.log = l }
}

// WithSchedulerStats sets the scheduler's stats client.
func WithSchedulerStats(c StatsClient) SchedulerOption {
	return func(s *Scheduler) { s.stats = c }
}

// NewScheduler starts nworkers worker goroutines and the control
// goroutine. The caller must Close the scheduler to stop them.
func NewScheduler(nworkers int, opts ...SchedulerOption) *Scheduler {
	if nworkers < 1 {
		nworkers = 1
	}
	s := &Scheduler{
		nworkers:    nworkers,
		completions: make(chan func(), nworkers),
		controlDone: make(chan struct{}),
		log:         logger.NopLogger,
		stats:       NopStatsClient,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.cond = sync.NewCond(&s.mu)
	s.workers.Add(nworkers)
	for i := 0; i < nworkers; i++ {
		go s.worker(i)
	}
	go s.control()
	return s
}

// Workers returns the size of the worker pool.
func (s *Scheduler) Workers() int {
	return s.nworkers
}

// Close signals every worker, waits for them to drain the queue and
// exit, then stops the control goroutine. Queued joblets still run;
// there is no cancellation of submitted work.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.closed = true
	s.cond.Broadcast()
	s.mu.Unlock()
	s.workers.Wait()
	close(s.completions)
	<-s.controlDone
}

// submit splits a job into joblets. Units that can get an instance right
// now go straight to the global queue; the rest park on the expression's
// local pending queue and are bound to instances as running joblets free
// them. Submission never blocks, so requesting more joblets than the
// pool will ever grant cannot deadlock.
func (s *Scheduler) submit(j *job) {
	s.stats.Count(MetricJobs, 1, 1.0)
	for unit := 0; unit < j.units; unit++ {
		in, err := j.expr.pool.tryAcquire()
		if err != nil {
			// Lazy replica compilation failed; the unit never runs.
			s.log.Errorf("job %s unit %d: %v", j.id, unit, err)
			j.recordError(err)
			s.finishUnit(j)
			continue
		}
		if in == nil {
			j.expr.addPending(&joblet{job: j, unit: unit})
			// Recheck after publishing the joblet: an instance may have
			// gone idle between the failed acquire and the park, with no
			// release left to observe the queue. releaseInstance hands
			// the recheck's instance to the pending head, which may be
			// the unit just parked.
			in, err = j.expr.pool.tryAcquire()
			if err != nil {
				// The unit stays parked; the next freed instance binds it.
				s.log.Errorf("job %s unit %d: recheck: %v", j.id, unit, err)
			} else if in != nil {
				j.expr.releaseInstance(in)
			}
			continue
		}
		s.enqueue(&joblet{job: j, inst: in, unit: unit})
	}
}

// enqueue pushes one instance-bound joblet onto the global queue.
func (s *Scheduler) enqueue(jl *joblet) {
	s.mu.Lock()
	s.queue = append(s.queue, jl)
	s.stats.Gauge(MetricQueuedJoblets, float64(len(s.queue)), 1.0)
	s.cond.Signal()
	s.mu.Unlock()
}

// worker is the main loop of one pool goroutine: block on the queue,
// pop one joblet, run it. Workers exit once the scheduler is closed and
// the queue is empty.
func (s *Scheduler) worker(id int) {
	defer s.workers.Done()
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.cond.Wait()
		}
		if len(s.queue) == 0 {
			s.mu.Unlock()
			return
		}
		jl := s.queue[0]
		s.queue = s.queue[1:]
		s.stats.Gauge(MetricQueuedJoblets, float64(len(s.queue)), 1.0)
		s.mu.Unlock()

		s.runJoblet(jl)
	}
}

// runJoblet executes one unit of work, hands the freed instance to the
// owning expression's next pending joblet (bypassing the idle pool), or
// releases it, and fires the job finisher if this was the last unit.
func (s *Scheduler) runJoblet(jl *joblet) {
	j := jl.job
	start := time.Now()
	v, err := runUnit(j, jl.inst, jl.unit)
	s.stats.Timing(MetricUnitDuration, time.Since(start), 1.0)
	if err != nil {
		s.stats.Count(MetricUnitFailures, 1, 1.0)
		j.recordError(err)
	} else {
		j.recordResult(v)
	}

	j.expr.releaseInstance(jl.inst)

	s.finishUnit(j)
}

// finishUnit records one completed unit and runs the finisher on the
// last one. The atomic counter guarantees exactly one finisher call per
// job no matter how completions interleave.
func (s *Scheduler) finishUnit(j *job) {
	if j.unitDone() {
		j.finish(j)
	}
}

// runUnit runs one unit closure, converting a panic into a unit-level
// error so sibling units are unaffected.
func runUnit(j *job, in *instance, unit int) (v float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf(errors.ErrEval, "unit %d: panic: %v", unit, r)
		}
	}()
	return j.run(in, unit)
}

// control is the single goroutine asynchronous results are delivered
// on. A panic in a host callback is deliberately not recovered: there
// is no safe way to resume a host that failed while handling a
// completion.
func (s *Scheduler) control() {
	defer close(s.controlDone)
	for fn := range s.completions {
		fn()
	}
}

// bridge builds a finisher that marshals the job outcome onto the
// control goroutine and invokes the one-shot callback there.
func (s *Scheduler) bridge(cb func(float64, error)) func(*job) {
	return func(j *job) {
		s.completions <- func() {
			v, err := j.outcome()
			j.keepAlive = nil
			cb(v, err)
		}
	}
}
