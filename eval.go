// Copyright 2025 ParExpr contributors.
// SPDX-License-Identifier: Apache-2.0
package parexpr

import (
	"github.com/parexpr/parexpr/errors"
)

// Eval evaluates the expression once and returns the scalar result.
// Arguments are either positional in declared order, or a single
// map[string]interface{} of name to value.
//
//	r, err := mean.Eval(2.0, 5.0)
//	r, err := mean.Eval(map[string]interface{}{"a": 2.0, "b": 5.0})
//
// The call runs on the calling goroutine against one blocking-acquired
// instance.
func (e *Expression) Eval(args ...interface{}) (float64, error) {
	if err := e.checkOpen(); err != nil {
		return 0, err
	}
	b, err := e.bindArgs(nil, args)
	if err != nil {
		return 0, err
	}
	in, err := e.pool.acquire()
	if err != nil {
		return 0, err
	}
	defer e.releaseInstance(in)
	b.apply(in)
	defer b.release(in)
	return in.eval()
}

// EvalAsync evaluates the expression on the worker pool and delivers
// the result through done on the scheduler's control goroutine, exactly
// once.
func (e *Expression) EvalAsync(done func(float64, error), args ...interface{}) error {
	if err := e.checkOpen(); err != nil {
		return err
	}
	b, err := e.bindArgs(nil, args)
	if err != nil {
		return err
	}
	j := newJob(e, 1, func(in *instance, unit int) (float64, error) {
		b.apply(in)
		defer b.release(in)
		return in.eval()
	})
	j.keepAlive = append(j.keepAlive, args...)
	j.finish = e.sched.bridge(done)
	e.sched.submit(j)
	return nil
}

// Map evaluates the expression once per element of input, with the
// element bound to the iterator variable, and returns one output per
// element. joblets asks for the call to be split into that many units
// over contiguous slices; 0 means the expression's concurrency ceiling,
// and the count is always capped by it. The output is identical
// whatever the joblet count, because every unit writes a disjoint
// output slice.
func (e *Expression) Map(input []float64, iter string, joblets int, args ...interface{}) ([]float64, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	b, err := e.mapSetup(iter, args)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(input))
	n := e.clampJoblets(joblets)

	if n == 1 {
		in, err := e.pool.acquire()
		if err != nil {
			return nil, err
		}
		defer e.releaseInstance(in)
		b.apply(in)
		defer b.release(in)
		if err := mapSlice(in, iter, input, out, 0, len(input)); err != nil {
			return nil, err
		}
		return out, nil
	}

	j := e.mapJob(b, input, iter, out, n)
	g := newGate(true)
	j.finish = func(*job) { g.Unlock() }
	e.sched.submit(j)
	g.Lock()
	_, err = j.outcome()
	if err != nil {
		return nil, err
	}
	return out, nil
}

// MapAsync is Map delivered through done on the control goroutine.
func (e *Expression) MapAsync(done func([]float64, error), input []float64, iter string, joblets int, args ...interface{}) error {
	if err := e.checkOpen(); err != nil {
		return err
	}
	b, err := e.mapSetup(iter, args)
	if err != nil {
		return err
	}
	out := make([]float64, len(input))
	n := e.clampJoblets(joblets)
	j := e.mapJob(b, input, iter, out, n)
	j.keepAlive = append(j.keepAlive, input, out)
	j.finish = e.sched.bridge(func(_ float64, err error) {
		done(out, err)
	})
	e.sched.submit(j)
	return nil
}

func (e *Expression) mapSetup(iter string, args []interface{}) (*callBinding, error) {
	if !e.isScalarName(iter) {
		return nil, errors.Newf(errors.ErrBadArgument, "%s is not a declared scalar variable", iter)
	}
	return e.bindArgs(map[string]bool{iter: true}, args)
}

func (e *Expression) mapJob(b *callBinding, input []float64, iter string, out []float64, n int) *job {
	return newJob(e, n, func(in *instance, unit int) (float64, error) {
		b.apply(in)
		defer b.release(in)
		lo := unit * len(input) / n
		hi := (unit + 1) * len(input) / n
		return 0, mapSlice(in, iter, input, out, lo, hi)
	})
}

// mapSlice runs the per-element loop over out[lo:hi]. An empty slice is
// a no-op, not an error: with more joblets than elements some units
// simply have nothing to do.
func mapSlice(in *instance, iter string, input, out []float64, lo, hi int) error {
	for i := lo; i < hi; i++ {
		in.bindScalar(iter, input[i])
		v, err := in.eval()
		if err != nil {
			return err
		}
		out[i] = v
	}
	return nil
}

// Reduce folds the expression over input: for each element the iterator
// variable is set to the element and the accumulator variable to the
// previous result, starting from init. The accumulator dependency makes
// this inherently sequential, so Reduce always runs as a single unit.
func (e *Expression) Reduce(input []float64, iter, accu string, init float64, args ...interface{}) (float64, error) {
	if err := e.checkOpen(); err != nil {
		return 0, err
	}
	b, err := e.reduceSetup(iter, accu, args)
	if err != nil {
		return 0, err
	}
	in, err := e.pool.acquire()
	if err != nil {
		return 0, err
	}
	defer e.releaseInstance(in)
	b.apply(in)
	defer b.release(in)
	return reduceSlice(in, iter, accu, init, input)
}

// ReduceAsync is Reduce delivered through done on the control
// goroutine.
func (e *Expression) ReduceAsync(done func(float64, error), input []float64, iter, accu string, init float64, args ...interface{}) error {
	if err := e.checkOpen(); err != nil {
		return err
	}
	b, err := e.reduceSetup(iter, accu, args)
	if err != nil {
		return err
	}
	j := newJob(e, 1, func(in *instance, unit int) (float64, error) {
		b.apply(in)
		defer b.release(in)
		return reduceSlice(in, iter, accu, init, input)
	})
	j.keepAlive = append(j.keepAlive, input)
	j.finish = e.sched.bridge(done)
	e.sched.submit(j)
	return nil
}

func (e *Expression) reduceSetup(iter, accu string, args []interface{}) (*callBinding, error) {
	if !e.isScalarName(iter) {
		return nil, errors.Newf(errors.ErrBadArgument, "%s is not a declared scalar variable", iter)
	}
	if !e.isScalarName(accu) {
		return nil, errors.Newf(errors.ErrBadArgument, "%s is not a declared scalar variable", accu)
	}
	if iter == accu {
		return nil, errors.Newf(errors.ErrBadArgument, "iterator and accumulator must be distinct variables")
	}
	return e.bindArgs(map[string]bool{iter: true, accu: true}, args)
}

func reduceSlice(in *instance, iter, accu string, init float64, input []float64) (float64, error) {
	in.bindScalar(accu, init)
	acc := init
	for _, x := range input {
		in.bindScalar(iter, x)
		v, err := in.eval()
		if err != nil {
			return 0, err
		}
		in.bindScalar(accu, v)
		acc = v
	}
	return acc, nil
}

// clampJoblets resolves a requested joblet count: 0 means the current
// ceiling, and the count never exceeds it. The input length never caps
// the count; surplus units see empty slices and complete as no-ops.
func (e *Expression) clampJoblets(n int) int {
	max := e.pool.getMaxParallel()
	if n < 1 || n > max {
		n = max
	}
	if n < 1 {
		n = 1
	}
	return n
}
