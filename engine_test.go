// Copyright 2025 ParExpr contributors.
// SPDX-License-Identifier: Apache-2.0
package parexpr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parexpr/parexpr/errors"
)

// stubEngine compiles every source into a program backed by fn. Tests
// use it to observe bindings and to inject evaluation failures.
type stubEngine struct {
	fn func(binds map[string]interface{}) (float64, error)
}

func (e *stubEngine) Compile(source string) (Program, error) {
	return &stubProgram{fn: e.fn}, nil
}

type stubProgram struct {
	fn func(binds map[string]interface{}) (float64, error)
}

func (p *stubProgram) Eval(binds map[string]interface{}) (float64, error) {
	return p.fn(binds)
}

// failEngine fails every compilation.
type failEngine struct{}

func (failEngine) Compile(source string) (Program, error) {
	return nil, errors.Newf(errors.ErrCompile, "failed compiling expression %q: stub", source)
}

func scalar(binds map[string]interface{}, name string) float64 {
	v, _ := binds[name].(float64)
	return v
}

func TestEngineCompileAndEval(t *testing.T) {
	eng := NewEngine()
	prog, err := eng.Compile("(a + b) / 2")
	require.NoError(t, err)

	v, err := prog.Eval(map[string]interface{}{"a": 2.0, "b": 5.0})
	require.NoError(t, err)
	assert.Equal(t, 3.5, v)

	// sequential re-evaluation with mutated bindings
	v, err = prog.Eval(map[string]interface{}{"a": 1.0, "b": 2.0})
	require.NoError(t, err)
	assert.Equal(t, 1.5, v)
}

func TestEngineCompileError(t *testing.T) {
	_, err := NewEngine().Compile("((a +")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCompile))
}

func TestEngineEvalError(t *testing.T) {
	prog, err := NewEngine().Compile("a + b")
	require.NoError(t, err)
	// b is bound to a non-number
	_, err = prog.Eval(map[string]interface{}{"a": 1.0, "b": "nope"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrEval))
}

func TestCollectVariables(t *testing.T) {
	tests := []struct {
		source string
		want   []string
	}{
		{"(a + b) / 2", []string{"a", "b"}},
		{"x + x * x", []string{"x"}},
		{"max(x, y) + x", []string{"x", "y"}},
		{"1e3 + x", []string{"x"}},
		{"2E-5 * rate", []string{"rate"}},
		{"a.b + c", []string{"c"}},
		{`"hello" + s`, []string{"s"}},
		{"x > 0 && true || false", []string{"x"}},
		{"a in b and not c", []string{"a", "b", "c"}},
		{"3 * 4", nil},
	}
	for _, test := range tests {
		t.Run(test.source, func(t *testing.T) {
			assert.Equal(t, test.want, CollectVariables(test.source))
		})
	}
}

func TestValidName(t *testing.T) {
	for _, name := range []string{"a", "x1", "_tmp", "longVariableName"} {
		assert.True(t, validName(name), name)
	}
	for _, name := range []string{"", "1a", "a-b", "a b", "a.b"} {
		assert.False(t, validName(name), name)
	}
}
