// Copyright 2025 ParExpr contributors.
// SPDX-License-Identifier: Apache-2.0
package parexpr

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/parexpr/parexpr/errors"
)

func newTestPool(n int) *pool {
	return newPool(n, func(in *instance) error {
		in.prog = &stubProgram{fn: func(map[string]interface{}) (float64, error) { return 0, nil }}
		return nil
	}, NopStatsClient)
}

func TestPoolTryAcquireExhaustion(t *testing.T) {
	p := newTestPool(2)

	a, err := p.tryAcquire()
	require.NoError(t, err)
	require.NotNil(t, a)
	b, err := p.tryAcquire()
	require.NoError(t, err)
	require.NotNil(t, b)

	c, err := p.tryAcquire()
	require.NoError(t, err)
	assert.Nil(t, c)

	p.release(a)
	c, err = p.tryAcquire()
	require.NoError(t, err)
	assert.NotNil(t, c)

	p.release(b)
	p.release(c)
	assert.Equal(t, 0, p.activeCount())
}

func TestPoolCeiling(t *testing.T) {
	p := newTestPool(4)
	require.NoError(t, p.setMaxParallel(1))

	a, err := p.tryAcquire()
	require.NoError(t, err)
	require.NotNil(t, a)

	// idle instances exist but the ceiling blocks them
	b, err := p.tryAcquire()
	require.NoError(t, err)
	assert.Nil(t, b)

	require.NoError(t, p.setMaxParallel(4))
	b, err = p.tryAcquire()
	require.NoError(t, err)
	assert.NotNil(t, b)

	p.release(a)
	p.release(b)
}

func TestPoolSetMaxParallelRange(t *testing.T) {
	p := newTestPool(4)
	for _, n := range []int{0, -1, 5} {
		err := p.setMaxParallel(n)
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrInvalidArgument))
	}
	assert.Equal(t, 4, p.getMaxParallel())
	require.NoError(t, p.setMaxParallel(2))
	assert.Equal(t, 2, p.getMaxParallel())
}

func TestPoolLoweringDoesNotEvict(t *testing.T) {
	p := newTestPool(2)
	a, err := p.tryAcquire()
	require.NoError(t, err)
	b, err := p.tryAcquire()
	require.NoError(t, err)
	require.NotNil(t, a)
	require.NotNil(t, b)

	require.NoError(t, p.setMaxParallel(1))
	assert.Equal(t, 2, p.activeCount())

	p.release(a)
	p.release(b)

	c, err := p.tryAcquire()
	require.NoError(t, err)
	require.NotNil(t, c)
	d, err := p.tryAcquire()
	require.NoError(t, err)
	assert.Nil(t, d)
	p.release(c)
}

func TestPoolCeilingInvariantUnderLoad(t *testing.T) {
	p := newTestPool(4)
	var eg errgroup.Group
	for i := 0; i < 32; i++ {
		eg.Go(func() error {
			in, err := p.acquire()
			if err != nil {
				return err
			}
			if n := p.activeCount(); n > 4 {
				p.release(in)
				return errors.Errorf("%d active instances over ceiling 4", n)
			}
			time.Sleep(time.Millisecond)
			p.release(in)
			return nil
		})
	}
	require.NoError(t, eg.Wait())
	assert.Equal(t, 0, p.activeCount())
	assert.LessOrEqual(t, p.highWater(), 4)
	assert.GreaterOrEqual(t, p.highWater(), 1)
}

func TestPoolLazyCompileFailureRollsBack(t *testing.T) {
	fail := true
	p := newPool(1, func(in *instance) error {
		if fail {
			return errors.New(errors.ErrCompile, "stub compile failure")
		}
		in.prog = &stubProgram{fn: func(map[string]interface{}) (float64, error) { return 0, nil }}
		return nil
	}, NopStatsClient)

	_, err := p.tryAcquire()
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCompile))
	assert.Equal(t, 0, p.activeCount())

	// the replica went back to the idle set and compiles on retry
	fail = false
	in, err := p.tryAcquire()
	require.NoError(t, err)
	require.NotNil(t, in)
	assert.True(t, in.compiled())
	p.release(in)
}

func TestPoolHighWater(t *testing.T) {
	p := newTestPool(3)
	assert.Equal(t, 0, p.highWater())

	a, _ := p.tryAcquire()
	b, _ := p.tryAcquire()
	assert.Equal(t, 2, p.highWater())

	p.release(a)
	p.release(b)
	// high water survives release
	assert.Equal(t, 2, p.highWater())
	assert.Equal(t, 3, p.provisionedCount())
}
