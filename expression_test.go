// Copyright 2025 ParExpr contributors.
// SPDX-License-Identifier: Apache-2.0
package parexpr

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parexpr/parexpr/errors"
	"github.com/parexpr/parexpr/logger"
)

func TestNewExpressionCompileError(t *testing.T) {
	sched := NewScheduler(2)
	defer sched.Close()
	_, err := NewExpression("((a +", []string{"a"}, nil, WithScheduler(sched))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCompile))
}

func TestNewExpressionCollectsVariables(t *testing.T) {
	sched := NewScheduler(2)
	defer sched.Close()
	e, err := NewExpression("(a + b) / 2", nil, nil, WithScheduler(sched))
	require.NoError(t, err)
	defer e.Close()
	assert.Equal(t, []string{"a", "b"}, e.Scalars())
	assert.Equal(t, "(a + b) / 2", e.Source())
}

func TestNewExpressionNameValidation(t *testing.T) {
	sched := NewScheduler(2)
	defer sched.Close()
	tests := []struct {
		name    string
		scalars []string
		vectors map[string]int
	}{
		{"malformed scalar", []string{"1bad"}, nil},
		{"duplicate scalar", []string{"a", "a"}, nil},
		{"malformed vector", []string{"a"}, map[string]int{"b c": 3}},
		{"vector shadows scalar", []string{"a"}, map[string]int{"a": 3}},
		{"non-positive vector size", []string{"a"}, map[string]int{"v": 0}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := NewExpression("a", test.scalars, test.vectors, WithScheduler(sched))
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrBadArgument))
		})
	}
}

func TestExpressionIntrospection(t *testing.T) {
	sched := NewScheduler(3)
	defer sched.Close()
	e, err := NewExpression("a + v[0] + w[0]", []string{"a"}, map[string]int{"w": 2, "v": 4}, WithScheduler(sched))
	require.NoError(t, err)
	defer e.Close()

	assert.Equal(t, []string{"a"}, e.Scalars())
	assert.Equal(t, map[string]int{"v": 4, "w": 2}, e.Vectors())
	// vector names sorted after scalars in positional order
	assert.Equal(t, []string{"a", "v", "w"}, e.variableNames())
	assert.Equal(t, 3, e.MaxParallel())
	assert.Equal(t, 0, e.ActiveInstances())

	// returned slices are copies
	e.Scalars()[0] = "mutated"
	assert.Equal(t, []string{"a"}, e.Scalars())
}

func TestExpressionSetMaxParallel(t *testing.T) {
	sched := NewScheduler(4)
	defer sched.Close()
	e, err := NewExpression("a", []string{"a"}, nil, WithScheduler(sched))
	require.NoError(t, err)
	defer e.Close()

	require.NoError(t, e.SetMaxParallel(2))
	assert.Equal(t, 2, e.MaxParallel())

	err = e.SetMaxParallel(5)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidArgument))
	err = e.SetMaxParallel(0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidArgument))
	assert.Equal(t, 2, e.MaxParallel())
}

func TestExpressionCloseIdempotent(t *testing.T) {
	sched := NewScheduler(2)
	defer sched.Close()
	e, err := NewExpression("a", []string{"a"}, nil, WithScheduler(sched))
	require.NoError(t, err)

	require.NoError(t, e.Close())
	require.NoError(t, e.Close())

	_, err = e.Eval(1.0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrExpressionClosed))
	err = e.EvalAsync(func(float64, error) {}, 1.0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrExpressionClosed))
}

func TestExpressionCloseWhileBusy(t *testing.T) {
	sched := NewScheduler(2)
	defer sched.Close()
	buf := logger.NewBufferLogger()
	e, err := NewExpression("a", []string{"a"}, nil, WithScheduler(sched), WithLogger(buf))
	require.NoError(t, err)

	in, err := e.pool.acquire()
	require.NoError(t, err)

	err = e.Close()
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrExpressionBusy))

	logged, err2 := buf.ReadAll()
	require.NoError(t, err2)
	assert.True(t, strings.Contains(string(logged), "active instances"), string(logged))

	e.releaseInstance(in)
	// already closed, second close reports nothing further
	require.NoError(t, e.Close())
}

func TestExpressionCloseDuringAsyncCall(t *testing.T) {
	sched := NewScheduler(2)
	defer sched.Close()
	buf := logger.NewBufferLogger()
	started := make(chan struct{})
	release := make(chan struct{})
	e, err := NewExpression("stub", []string{"x"}, nil,
		WithScheduler(sched), WithLogger(buf),
		WithEngine(&stubEngine{fn: func(binds map[string]interface{}) (float64, error) {
			close(started)
			<-release
			return scalar(binds, "x"), nil
		}}))
	require.NoError(t, err)

	type result struct {
		v   float64
		err error
	}
	done := make(chan result, 1)
	err = e.EvalAsync(func(v float64, err error) {
		done <- result{v: v, err: err}
	}, 7.0)
	require.NoError(t, err)
	<-started

	// closing with the call in flight is flagged, not a crash, and the
	// result still arrives
	err = e.Close()
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrExpressionBusy))

	close(release)
	select {
	case r := <-done:
		require.NoError(t, r.err)
		assert.Equal(t, 7.0, r.v)
	case <-time.After(10 * time.Second):
		t.Fatal("result never delivered")
	}
}

func TestExpressionHighWaterMark(t *testing.T) {
	sched := NewScheduler(4)
	defer sched.Close()
	e, err := NewExpression("x * 2", []string{"x"}, nil, WithScheduler(sched))
	require.NoError(t, err)
	defer e.Close()

	assert.Equal(t, 0, e.MaxActive())
	input := make([]float64, 64)
	_, err = e.Map(input, "x", 4)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, e.MaxActive(), 1)
	assert.LessOrEqual(t, e.MaxActive(), 4)
	assert.Equal(t, 0, e.ActiveInstances())
}

func TestExpressionLoggerFallsBackToScheduler(t *testing.T) {
	buf := logger.NewBufferLogger()
	sched := NewScheduler(1, WithSchedulerLogger(buf))
	defer sched.Close()
	e, err := NewExpression("a", []string{"a"}, nil, WithScheduler(sched))
	require.NoError(t, err)
	defer e.Close()
	assert.Equal(t, logger.Logger(buf), e.log)
}
