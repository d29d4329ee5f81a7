// Copyright 2025 ParExpr contributors.
// SPDX-License-Identifier: Apache-2.0
package parexpr

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// job is one logical call, split into 1..units joblets. The submitter
// does not own the job: the worker that completes the last joblet runs
// the finisher, so the job must stay valid until that worker is done
// with it. In Go the closures keep it reachable; keepAlive additionally
// pins the caller-visible buffers for the duration of the call to make
// the ownership contract explicit.
type job struct {
	id   uuid.UUID
	expr *Expression

	// units is the joblet count; run executes one unit against one
	// instance. Units of the same job may run in any order.
	units int
	run   func(in *instance, unit int) (float64, error)

	// reduce optionally merges per-unit scalar results; without it the
	// last written value wins, and the order among joblets is
	// unspecified.
	reduce func(acc, v float64) float64

	// finish runs exactly once, on whichever worker completes the last
	// joblet (or on the submitter if submission itself failed a unit).
	finish func(*job)

	keepAlive []interface{}

	completed int32 // atomic count of finished joblets

	mu         sync.Mutex
	haveResult bool
	result     float64
	err        error
}

func newJob(e *Expression, units int, run func(*instance, int) (float64, error)) *job {
	return &job{
		id:    uuid.New(),
		expr:  e,
		units: units,
		run:   run,
	}
}

// recordResult stores one unit's scalar value.
func (j *job) recordResult(v float64) {
	j.mu.Lock()
	if j.reduce != nil && j.haveResult {
		j.result = j.reduce(j.result, v)
	} else {
		j.result = v
	}
	j.haveResult = true
	j.mu.Unlock()
}

// recordError keeps the first unit-level failure; later failures of
// sibling units are dropped, they already ran to completion on their
// own.
func (j *job) recordError(err error) {
	j.mu.Lock()
	if j.err == nil {
		j.err = err
	}
	j.mu.Unlock()
}

func (j *job) outcome() (float64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.result, j.err
}

// unitDone counts one completed joblet and reports whether it was the
// last. The increment is atomic and monotonic, so exactly one caller
// ever sees true.
func (j *job) unitDone() bool {
	return atomic.AddInt32(&j.completed, 1) == int32(j.units)
}

// joblet is one schedulable slice of a job, bound to one instance once
// it reaches the global queue. A joblet parked on its expression's
// pending queue has no instance yet.
type joblet struct {
	job  *job
	inst *instance
	unit int
}
