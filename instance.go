// Copyright 2025 ParExpr contributors.
// SPDX-License-Identifier: Apache-2.0
package parexpr

// instState is the explicit ownership state of one instance. An instance
// is either sitting in the idle pool, being lazily compiled by the
// goroutine that just acquired it, or owned by exactly one running
// joblet / synchronous caller.
type instState int

const (
	instIdle instState = iota
	instCompiling
	instActive
)

// instance is one fully self-contained replica of an expression's
// mutable evaluation state: a bindings table and an engine program
// compiled against it. At most one goroutine may touch an instance at
// any time; ownership moves through the pool or by direct handoff to a
// pending joblet, never through shared access.
type instance struct {
	id    int
	state instState // guarded by the pool mutex
	binds map[string]interface{}
	prog  Program
}

func newInstance(id int) *instance {
	return &instance{
		id:    id,
		binds: make(map[string]interface{}),
	}
}

// compiled reports whether this replica has been through its lazy
// compilation yet. Guarded by the pool mutex.
func (in *instance) compiled() bool {
	return in.prog != nil
}

// compile populates the replica's bindings table with zeroed slots for
// every declared name and compiles the shared source against it. The
// caller serializes under compilerMu; the pool lock is NOT held, so one
// expression's compilation never blocks unrelated evaluations.
func (in *instance) compile(eng Engine, source string, scalars []string, vectors map[string]int) error {
	for _, name := range scalars {
		in.binds[name] = float64(0)
	}
	for name, n := range vectors {
		in.binds[name] = make([]float64, n)
	}
	compilerMu.Lock()
	defer compilerMu.Unlock()
	prog, err := eng.Compile(source)
	if err != nil {
		return err
	}
	in.prog = prog
	return nil
}

func (in *instance) bindScalar(name string, v float64) {
	in.binds[name] = v
}

// bindVector rebases a vector view onto caller memory for the duration
// of one call. The slice is borrowed: releaseVector must run before the
// call's results are delivered so no caller buffer is retained across
// calls.
func (in *instance) bindVector(name string, data []float64) {
	in.binds[name] = data
}

func (in *instance) releaseVector(name string) {
	in.binds[name] = []float64(nil)
}

func (in *instance) eval() (float64, error) {
	return in.prog.Eval(in.binds)
}
