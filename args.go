// Copyright 2025 ParExpr contributors.
// SPDX-License-Identifier: Apache-2.0
package parexpr

import (
	"github.com/parexpr/parexpr/errors"
)

// callBinding is the validated argument set of one call: scalar values
// and borrowed vector slices, checked against the declared names before
// any work is scheduled. Applying a binding to an instance is cheap and
// happens at unit start, on whichever worker runs the unit.
type callBinding struct {
	e       *Expression
	scalars map[string]float64
	vectors map[string][]float64
}

// bindArgs validates call arguments. Two forms are accepted: a single
// map of name to value, or positional values following the declared
// order (scalars first, then vectors), minus the names in skip.
func (e *Expression) bindArgs(skip map[string]bool, args []interface{}) (*callBinding, error) {
	b := &callBinding{
		e:       e,
		scalars: map[string]float64{},
		vectors: map[string][]float64{},
	}

	expected := len(e.scalarNames) + len(e.vectorNames) - len(skip)

	if len(args) == 1 {
		if named, ok := args[0].(map[string]interface{}); ok {
			for name, value := range named {
				if skip[name] {
					return nil, errors.Newf(errors.ErrBadArgument, "%s cannot be passed as an argument for this call", name)
				}
				if err := b.add(name, value); err != nil {
					return nil, err
				}
			}
			if len(named) != expected {
				return nil, errors.New(errors.ErrBadArgument, "wrong number of input arguments")
			}
			return b, nil
		}
	}

	if len(args) != expected {
		return nil, errors.New(errors.ErrBadArgument, "wrong number of input arguments")
	}
	i := 0
	for _, name := range e.variableNames() {
		if skip[name] {
			continue
		}
		if err := b.add(name, args[i]); err != nil {
			return nil, err
		}
		i++
	}
	return b, nil
}

// add classifies one argument value against the declared names.
func (b *callBinding) add(name string, value interface{}) error {
	if data, ok := value.([]float64); ok {
		declared, isVector := b.e.vectorLens[name]
		if !isVector {
			return errors.Newf(errors.ErrBadArgument, "%s is not a declared vector variable", name)
		}
		if len(data) != declared {
			return errors.Newf(errors.ErrBadArgument,
				"vector %s size %d does not match declared size %d", name, len(data), declared)
		}
		b.vectors[name] = data
		return nil
	}
	v, ok := toFloat(value)
	if !ok {
		return errors.Newf(errors.ErrBadArgument, "%s is not a number or a vector", name)
	}
	if !b.e.isScalarName(name) {
		return errors.Newf(errors.ErrBadArgument, "%s is not a declared scalar variable", name)
	}
	b.scalars[name] = v
	return nil
}

// apply imports the binding into one instance's bindings table.
func (b *callBinding) apply(in *instance) {
	for name, v := range b.scalars {
		in.bindScalar(name, v)
	}
	for name, data := range b.vectors {
		in.bindVector(name, data)
	}
}

// release drops the borrowed vector slices from the instance so no
// caller buffer outlives the call.
func (b *callBinding) release(in *instance) {
	for name := range b.vectors {
		in.releaseVector(name)
	}
}

func toFloat(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int8:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint8:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	}
	return 0, false
}
