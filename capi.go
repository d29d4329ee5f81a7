// Copyright 2025 ParExpr contributors.
// SPDX-License-Identifier: Apache-2.0
package parexpr

// The descriptor is the stable surface consumed by out-of-process and
// cross-language callers. It deliberately mirrors the wire contract of
// a C-ABI record: a magic number, a type tag, the ordered parameter
// name lists, and four entry points over raw buffers returning a
// two-valued status. Everything here validates its own arguments and
// reports StatusInvalidArgument instead of raising an error; the entry
// points serialize on one blocking-acquired instance.

// DescriptorMagic identifies a descriptor record.
const DescriptorMagic uint64 = 0xC0DEDF0F00D

// ElemType tags the element type the expression evaluates in. The core
// evaluates in float64; the tag exists for the wire contract.
type ElemType int

const (
	TypeFloat64 ElemType = iota
)

func (t ElemType) String() string {
	if t == TypeFloat64 {
		return "Float64"
	}
	return "unknown"
}

// Status is the two-valued result code of descriptor entry points.
type Status int

const (
	StatusOK Status = iota
	StatusInvalidArgument
)

// VectorSpec describes one declared vector parameter.
type VectorSpec struct {
	Name     string
	Elements int
}

// DescriptorCwiseArg is one cell-wise argument on the descriptor
// surface: a scalar when Elements is 1, otherwise a flat vector of
// Elements values.
type DescriptorCwiseArg struct {
	Name     string
	Elements int
	Data     []float64
}

// Descriptor is the cached per-expression record. Scalars are listed in
// positional order; Vectors follow them.
type Descriptor struct {
	Magic      uint64
	Type       ElemType
	Expression string
	Scalars    []string
	Vectors    []VectorSpec

	// Eval evaluates once: scalars positional, vectors positional,
	// result[0] receives the value.
	Eval func(scalars []float64, vectors [][]float64, result []float64) Status

	// Map iterates iterVec through the named iterator; scalars exclude
	// the iterator; result must have one slot per input element.
	Map func(iter string, iterVec []float64, scalars []float64, vectors [][]float64, result []float64) Status

	// Reduce folds iterVec through the iterator and accumulator, which
	// starts at init; scalars exclude both; result[0] receives the
	// fold.
	Reduce func(iter string, iterVec []float64, accu string, init float64, scalars []float64, vectors [][]float64, result []float64) Status

	// Cwise is the cell-wise operation over flat buffers.
	Cwise func(args []DescriptorCwiseArg, result DescriptorCwiseArg) Status
}

// CAPI returns the expression's descriptor, generated once and cached.
func (e *Expression) CAPI() *Descriptor {
	e.capiOnce.Do(func() {
		d := &Descriptor{
			Magic:      DescriptorMagic,
			Type:       TypeFloat64,
			Expression: e.source,
			Scalars:    e.Scalars(),
		}
		for _, name := range e.vectorNames {
			d.Vectors = append(d.Vectors, VectorSpec{Name: name, Elements: e.vectorLens[name]})
		}
		d.Eval = e.capiEval
		d.Map = e.capiMap
		d.Reduce = e.capiReduce
		d.Cwise = e.capiCwise
		e.capi = d
	})
	return e.capi
}

// bindPositional imports positional scalar and vector buffers into one
// instance, skipping the named variables in the scalar mapping.
func (e *Expression) bindPositional(in *instance, scalars []float64, vectors [][]float64, skip map[string]bool) bool {
	i := 0
	for _, name := range e.scalarNames {
		if skip[name] {
			continue
		}
		if i >= len(scalars) {
			return false
		}
		in.bindScalar(name, scalars[i])
		i++
	}
	if i != len(scalars) {
		return false
	}
	if len(vectors) != len(e.vectorNames) {
		return false
	}
	for k, name := range e.vectorNames {
		if len(vectors[k]) != e.vectorLens[name] {
			return false
		}
		in.bindVector(name, vectors[k])
	}
	return true
}

func (e *Expression) capiRelease(in *instance) {
	for _, name := range e.vectorNames {
		in.releaseVector(name)
	}
	e.releaseInstance(in)
}

func (e *Expression) capiEval(scalars []float64, vectors [][]float64, result []float64) Status {
	if len(result) < 1 {
		return StatusInvalidArgument
	}
	in, err := e.pool.acquire()
	if err != nil {
		return StatusInvalidArgument
	}
	defer e.capiRelease(in)
	if !e.bindPositional(in, scalars, vectors, nil) {
		return StatusInvalidArgument
	}
	v, err := in.eval()
	if err != nil {
		return StatusInvalidArgument
	}
	result[0] = v
	return StatusOK
}

func (e *Expression) capiMap(iter string, iterVec []float64, scalars []float64, vectors [][]float64, result []float64) Status {
	if !e.isScalarName(iter) || len(result) != len(iterVec) {
		return StatusInvalidArgument
	}
	in, err := e.pool.acquire()
	if err != nil {
		return StatusInvalidArgument
	}
	defer e.capiRelease(in)
	if !e.bindPositional(in, scalars, vectors, map[string]bool{iter: true}) {
		return StatusInvalidArgument
	}
	if err := mapSlice(in, iter, iterVec, result, 0, len(iterVec)); err != nil {
		return StatusInvalidArgument
	}
	return StatusOK
}

func (e *Expression) capiReduce(iter string, iterVec []float64, accu string, init float64, scalars []float64, vectors [][]float64, result []float64) Status {
	if !e.isScalarName(iter) || !e.isScalarName(accu) || iter == accu || len(result) < 1 {
		return StatusInvalidArgument
	}
	in, err := e.pool.acquire()
	if err != nil {
		return StatusInvalidArgument
	}
	defer e.capiRelease(in)
	if !e.bindPositional(in, scalars, vectors, map[string]bool{iter: true, accu: true}) {
		return StatusInvalidArgument
	}
	v, err := reduceSlice(in, iter, accu, init, iterVec)
	if err != nil {
		return StatusInvalidArgument
	}
	result[0] = v
	return StatusOK
}

func (e *Expression) capiCwise(args []DescriptorCwiseArg, result DescriptorCwiseArg) Status {
	if len(e.vectorNames) > 0 {
		return StatusInvalidArgument
	}
	length := 0
	for _, a := range args {
		if !e.isScalarName(a.Name) {
			return StatusInvalidArgument
		}
		if a.Elements == 1 {
			if len(a.Data) < 1 {
				return StatusInvalidArgument
			}
			continue
		}
		if len(a.Data) != a.Elements {
			return StatusInvalidArgument
		}
		if length == 0 {
			length = a.Elements
		} else if length != a.Elements {
			return StatusInvalidArgument
		}
	}
	if len(args) != len(e.scalarNames) || length == 0 || len(result.Data) != length {
		return StatusInvalidArgument
	}

	in, err := e.pool.acquire()
	if err != nil {
		return StatusInvalidArgument
	}
	defer e.releaseInstance(in)

	for _, a := range args {
		if a.Elements == 1 {
			in.bindScalar(a.Name, a.Data[0])
		}
	}
	for pos := 0; pos < length; pos++ {
		for _, a := range args {
			if a.Elements != 1 {
				in.bindScalar(a.Name, a.Data[pos])
			}
		}
		v, err := in.eval()
		if err != nil {
			return StatusInvalidArgument
		}
		result.Data[pos] = v
	}
	return StatusOK
}
