// Copyright 2025 ParExpr contributors.
// SPDX-License-Identifier: Apache-2.0
package parexpr

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusStatsClient(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewPrometheusStatsClient(reg)

	c.Count(MetricJobs, 1, 1.0)
	c.Count(MetricJobs, 2, 1.0)
	c.Gauge(MetricActiveInstances, 3, 1.0)
	c.Timing(MetricUnitDuration, 250*time.Millisecond, 1.0)

	families, err := reg.Gather()
	require.NoError(t, err)
	found := map[string]bool{}
	for _, mf := range families {
		found[mf.GetName()] = true
		switch mf.GetName() {
		case "parexpr_jobs":
			require.Len(t, mf.GetMetric(), 1)
			assert.Equal(t, 3.0, mf.GetMetric()[0].GetCounter().GetValue())
		case "parexpr_active_instances":
			require.Len(t, mf.GetMetric(), 1)
			assert.Equal(t, 3.0, mf.GetMetric()[0].GetGauge().GetValue())
		}
	}
	assert.True(t, found["parexpr_jobs"])
	assert.True(t, found["parexpr_active_instances"])
	assert.True(t, found["parexpr_unit_duration"])
}

func TestSchedulerEmitsStats(t *testing.T) {
	reg := prometheus.NewRegistry()
	sched := NewScheduler(2, WithSchedulerStats(NewPrometheusStatsClient(reg)))
	defer sched.Close()
	e, err := NewExpression("x + 1", []string{"x"}, nil, WithScheduler(sched))
	require.NoError(t, err)
	defer e.Close()

	_, err = e.Map([]float64{1, 2, 3, 4}, "x", 2)
	require.NoError(t, err)

	families, err := reg.Gather()
	require.NoError(t, err)
	var jobs float64
	for _, mf := range families {
		if mf.GetName() == "parexpr_jobs" {
			jobs = mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	assert.Equal(t, 1.0, jobs)
}
