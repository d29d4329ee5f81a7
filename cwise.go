// Copyright 2025 ParExpr contributors.
// SPDX-License-Identifier: Apache-2.0
package parexpr

import (
	"github.com/parexpr/parexpr/errors"
)

// cwiseKind classifies one cwise argument.
type cwiseKind int

const (
	cwiseScalar cwiseKind = iota
	cwiseFlat
	cwiseStrided
)

// cwiseSource is one input of a cell-wise call after validation.
type cwiseSource struct {
	name   string
	kind   cwiseKind
	scalar float64
	flat   []float64
	view   *StridedView
}

// cwisePlan is the validated shape of one cell-wise call: the broadcast
// shape (nil for flat-only calls), the element count, the inputs and
// the output.
type cwisePlan struct {
	sources []cwiseSource
	shape   []int
	length  int

	outFlat []float64
	outView *StridedView
}

// Cwise evaluates the expression once per logical position of the
// broadcast inputs: scalars are bound once, vector-ish inputs
// contribute one element per position. Inputs may be scalars, flat
// []float64 slices, or StridedView values; all N-dimensional inputs
// must share one shape and flat inputs must match its element count.
//
// out selects the destination: nil allocates a flat output, a []float64
// is written in place, a StridedView (or *StridedView) scatters the
// output through its own strides. The returned slice is the flat
// output, or nil when the output is strided.
//
// joblets splits the traversal into contiguous slices exactly like Map.
func (e *Expression) Cwise(args map[string]interface{}, out interface{}, joblets int) ([]float64, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	plan, err := e.cwiseSetup(args, out)
	if err != nil {
		return nil, err
	}
	n := e.clampJoblets(joblets)

	if n == 1 {
		in, err := e.pool.acquire()
		if err != nil {
			return nil, err
		}
		defer e.releaseInstance(in)
		if err := plan.run(in, 0, plan.length); err != nil {
			return nil, err
		}
		return plan.outFlat, nil
	}

	j := e.cwiseJob(plan, n)
	g := newGate(true)
	j.finish = func(*job) { g.Unlock() }
	e.sched.submit(j)
	g.Lock()
	if _, err := j.outcome(); err != nil {
		return nil, err
	}
	return plan.outFlat, nil
}

// CwiseAsync is Cwise delivered through done on the control goroutine.
func (e *Expression) CwiseAsync(done func([]float64, error), args map[string]interface{}, out interface{}, joblets int) error {
	if err := e.checkOpen(); err != nil {
		return err
	}
	plan, err := e.cwiseSetup(args, out)
	if err != nil {
		return err
	}
	n := e.clampJoblets(joblets)
	j := e.cwiseJob(plan, n)
	j.keepAlive = append(j.keepAlive, args, out)
	j.finish = e.sched.bridge(func(_ float64, err error) {
		done(plan.outFlat, err)
	})
	e.sched.submit(j)
	return nil
}

func (e *Expression) cwiseJob(plan *cwisePlan, n int) *job {
	return newJob(e, n, func(in *instance, unit int) (float64, error) {
		lo := unit * plan.length / n
		hi := (unit + 1) * plan.length / n
		return 0, plan.run(in, lo, hi)
	})
}

// cwiseSetup validates every input and the output before anything is
// scheduled. Shape and bounds problems are caller errors, raised here
// synchronously.
func (e *Expression) cwiseSetup(args map[string]interface{}, out interface{}) (*cwisePlan, error) {
	if len(e.vectorNames) > 0 {
		return nil, errors.New(errors.ErrBadArgument, "cwise is not compatible with declared vector arguments")
	}

	plan := &cwisePlan{}
	for name, value := range args {
		if !e.isScalarName(name) {
			return nil, errors.Newf(errors.ErrBadArgument, "%s is not a declared scalar variable", name)
		}
		src := cwiseSource{name: name}
		switch v := value.(type) {
		case []float64:
			src.kind = cwiseFlat
			src.flat = v
		case StridedView:
			src.kind = cwiseStrided
			src.view = &v
		case *StridedView:
			src.kind = cwiseStrided
			src.view = v
		default:
			f, ok := toFloat(value)
			if !ok {
				return nil, errors.Newf(errors.ErrBadArgument, "%s is not a number, a vector or a strided array", name)
			}
			src.kind = cwiseScalar
			src.scalar = f
		}
		if src.kind == cwiseStrided {
			if err := src.view.validate(); err != nil {
				return nil, errors.Wrapf(err, "argument %s", name)
			}
			if plan.shape == nil {
				plan.shape = src.view.Shape
			} else if !sameShape(plan.shape, src.view.Shape) {
				return nil, errors.New(errors.ErrBadArgument, "all strided arrays must have the same shape")
			}
		}
		plan.sources = append(plan.sources, src)
	}

	if len(args) != len(e.scalarNames) {
		return nil, errors.New(errors.ErrBadArgument, "wrong number of input arguments")
	}

	// Resolve the broadcast length: the strided shape wins, otherwise
	// the common flat length.
	if plan.shape != nil {
		plan.length = (&StridedView{Shape: plan.shape}).Elements()
	}
	for _, src := range plan.sources {
		if src.kind != cwiseFlat {
			continue
		}
		if plan.length == 0 {
			plan.length = len(src.flat)
		} else if len(src.flat) != plan.length {
			return nil, errors.New(errors.ErrBadArgument, "all vectors must have the same number of elements")
		}
	}
	if plan.length == 0 {
		return nil, errors.New(errors.ErrBadArgument, "at least one argument must be a non-zero length vector")
	}

	switch o := out.(type) {
	case nil:
		plan.outFlat = make([]float64, plan.length)
	case []float64:
		if len(o) != plan.length {
			return nil, errors.Newf(errors.ErrBadArgument,
				"output size %d does not match broadcast size %d", len(o), plan.length)
		}
		plan.outFlat = o
	case StridedView:
		plan.outView = &o
	case *StridedView:
		plan.outView = o
	default:
		return nil, errors.New(errors.ErrBadArgument, "output must be nil, a vector or a strided array")
	}
	if plan.outView != nil {
		if err := plan.outView.validate(); err != nil {
			return nil, errors.Wrap(err, "output")
		}
		if plan.shape != nil && !sameShape(plan.shape, plan.outView.Shape) {
			return nil, errors.New(errors.ErrBadArgument, "output shape does not match the broadcast shape")
		}
		if plan.outView.Elements() != plan.length {
			return nil, errors.Newf(errors.ErrBadArgument,
				"output size %d does not match broadcast size %d", plan.outView.Elements(), plan.length)
		}
	}
	return plan, nil
}

// run traverses positions [lo, hi) of the broadcast shape on one
// instance. Strided inputs and outputs get a cursor positioned at lo
// and advanced in lock step with the flat position.
func (p *cwisePlan) run(in *instance, lo, hi int) error {
	if lo >= hi {
		return nil
	}

	cursors := make([]*stridedCursor, len(p.sources))
	for i, src := range p.sources {
		switch src.kind {
		case cwiseScalar:
			in.bindScalar(src.name, src.scalar)
		case cwiseStrided:
			cursors[i] = newStridedCursor(src.view, lo)
		}
	}
	var outCur *stridedCursor
	if p.outView != nil {
		outCur = newStridedCursor(p.outView, lo)
	}

	for pos := lo; pos < hi; pos++ {
		for i, src := range p.sources {
			switch src.kind {
			case cwiseFlat:
				in.bindScalar(src.name, src.flat[pos])
			case cwiseStrided:
				in.bindScalar(src.name, cursors[i].value())
			}
		}
		v, err := in.eval()
		if err != nil {
			return err
		}
		if outCur != nil {
			outCur.set(v)
			outCur.advance()
		} else {
			p.outFlat[pos] = v
		}
		for i := range cursors {
			if cursors[i] != nil {
				cursors[i].advance()
			}
		}
	}
	return nil
}
