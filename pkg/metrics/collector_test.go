/**
 * Copyright (c) 2022, Xerra Earth Observation Institute.
 * Copyright (c) 2025, Simeon Miteff.
 *
 * See LICENSE.TXT in the root directory of this source tree.
 */

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"gotest.tools/v3/assert"
)

func collectAll(t *testing.T, c *CacheCollector) map[string]*dto.Metric {
	t.Helper()
	ch := make(chan prometheus.Metric, 32)
	c.Collect(ch)
	close(ch)

	out := make(map[string]*dto.Metric)
	for m := range ch {
		var pb dto.Metric
		assert.NilError(t, m.Write(&pb))
		out[m.Desc().String()] = &pb
	}
	return out
}

func TestCollectReportsTableAndOpStats(t *testing.T) {
	c := New(prometheus.Labels{"app": "bincached"},
		func() (int64, uint64) { return 42, 3 },
		func() OpCounters {
			return OpCounters{Gets: 10, GetHits: 8, GetMisses: 2, Sets: 5, ProtocolFatalClosed: 1}
		},
	)

	metrics := collectAll(t, c)
	assert.Equal(t, len(metrics), 8) // 8 non-connection-labelled series

	var sawEntries bool
	for _, m := range metrics {
		if m.Gauge != nil && m.GetGauge().GetValue() == 42 {
			sawEntries = true
		}
	}
	assert.Assert(t, sawEntries)
}

func TestCollectIsSafeBeforeOpStatsAreInstalled(t *testing.T) {
	c := New(prometheus.Labels{"app": "bincached"}, func() (int64, uint64) { return 0, 0 }, nil)

	// Collect must not panic even though opStats is nil until
	// SetOpStatsFn is called.
	_ = collectAll(t, c)
}

func TestSetOpStatsFnIsPickedUpByCollect(t *testing.T) {
	c := New(prometheus.Labels{"app": "bincached"}, func() (int64, uint64) { return 0, 0 }, nil)
	c.SetOpStatsFn(func() OpCounters { return OpCounters{Gets: 99} })

	var sawGets99 bool
	for _, m := range collectAll(t, c) {
		if m.Counter != nil && m.GetCounter().GetValue() == 99 {
			sawGets99 = true
		}
	}
	assert.Assert(t, sawGets99)
}

func TestAddAndRemoveTrackConnectionCount(t *testing.T) {
	c := New(prometheus.Labels{"app": "bincached"}, func() (int64, uint64) { return 0, 0 }, func() OpCounters { return OpCounters{} })

	c.Add("sess-1", "10.0.0.1:4242", func() int64 { return 100 }, func() int64 { return 200 })

	found := false
	for _, m := range collectAll(t, c) {
		if m.Gauge != nil && m.GetGauge().GetValue() == 1 {
			found = true
		}
	}
	assert.Assert(t, found)

	c.Remove("sess-1")
	found = false
	for _, m := range collectAll(t, c) {
		if m.Gauge != nil && m.GetGauge().GetValue() == 1 {
			found = true
		}
	}
	assert.Assert(t, !found)
}
