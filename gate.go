// Copyright 2025 ParExpr contributors.
// SPDX-License-Identifier: Apache-2.0
package parexpr

import "sync"

// gate is a two-state rendezvous primitive: a binary semaphore. Unlike a
// mutex it can be released by a goroutine other than the one that took
// it, which is exactly what a synchronous multi-joblet call needs: the
// submitter locks, the worker finishing the last joblet unlocks.
type gate struct {
	mu   sync.Mutex
	cond *sync.Cond
	busy bool
}

func newGate(locked bool) *gate {
	g := &gate{busy: locked}
	g.cond = sync.NewCond(&g.mu)
	return g
}

// Lock blocks until the gate is open, then takes it.
func (g *gate) Lock() {
	g.mu.Lock()
	for g.busy {
		g.cond.Wait()
	}
	g.busy = true
	g.mu.Unlock()
}

// Unlock opens the gate and wakes every waiter. The broadcast happens
// while holding the mutex: a gate may guard its own release, and the
// waiter can make the gate unreachable the moment it wakes up.
func (g *gate) Unlock() {
	g.mu.Lock()
	g.busy = false
	g.cond.Broadcast()
	g.mu.Unlock()
}
