// Copyright 2025 ParExpr contributors.
// SPDX-License-Identifier: Apache-2.0
package parexpr

import (
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/parexpr/parexpr/errors"
)

func TestGateCrossGoroutineUnlock(t *testing.T) {
	g := newGate(true)
	go func() {
		time.Sleep(10 * time.Millisecond)
		g.Unlock()
	}()
	done := make(chan struct{})
	go func() {
		g.Lock()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("gate never opened")
	}
}

func TestGateMutualExclusion(t *testing.T) {
	g := newGate(false)
	var inside int
	var eg errgroup.Group
	for i := 0; i < 8; i++ {
		eg.Go(func() error {
			for k := 0; k < 100; k++ {
				g.Lock()
				inside++
				if inside != 1 {
					g.Unlock()
					return errors.Errorf("%d holders inside the gate", inside)
				}
				inside--
				g.Unlock()
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		t.Fatal(err)
	}
}
