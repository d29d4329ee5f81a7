// Copyright 2025 ParExpr contributors.
// SPDX-License-Identifier: Apache-2.0

// Package parexpr evaluates precompiled arithmetic expressions over
// scalars, vectors and multi-dimensional strided views, on the calling
// goroutine, synchronously across several workers, or asynchronously with
// completion delivered on a single control goroutine.
//
// An Expression is immutable once compiled. Its mutable evaluation state
// (variable bindings and the engine program bound to them) is replicated
// into instances, created lazily and never shared between two goroutines
// at the same time. A Scheduler owns the worker pool and the global joblet
// queue; expressions split a call into joblets, each bound to one
// instance, and the worker that completes the last joblet of a job runs
// its finisher exactly once.
package parexpr
