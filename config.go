// Copyright 2025 ParExpr contributors.
// SPDX-License-Identifier: Apache-2.0
package parexpr

import (
	"runtime"
	"sync"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of all environment settings. The only setting
// read today is PAREXPR_THREADS, the number of worker goroutines and
// expression instances provisioned process-wide.
const EnvPrefix = "parexpr"

var (
	provisionOnce sync.Once
	provisioned   int
)

// Provisioned returns the process-wide maximum number of instances and
// worker goroutines. It defaults to the hardware parallelism and can be
// overridden with PAREXPR_THREADS; the value is read once, at first use.
func Provisioned() int {
	provisionOnce.Do(func() {
		v := viper.New()
		v.SetEnvPrefix(EnvPrefix)
		_ = v.BindEnv("threads")
		provisioned = runtime.NumCPU()
		if n := v.GetInt("threads"); n > 0 {
			provisioned = n
		}
	})
	return provisioned
}

var (
	defaultSchedulerOnce sync.Once
	defaultScheduler     *Scheduler
)

// DefaultScheduler returns the lazily created process-wide scheduler.
// Tests and embedders that need isolation should construct their own with
// NewScheduler and pass it through WithScheduler.
func DefaultScheduler() *Scheduler {
	defaultSchedulerOnce.Do(func() {
		defaultScheduler = NewScheduler(Provisioned())
	})
	return defaultScheduler
}
