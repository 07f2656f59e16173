/**
 * Copyright (c) 2022, Xerra Earth Observation Institute.
 * Copyright (c) 2025, Simeon Miteff.
 *
 * See LICENSE.TXT in the root directory of this source tree.
 */

package session

import (
	"sync/atomic"

	"github.com/simeonmiteff/bincached/pkg/metrics"
)

// counters holds the process-wide protocol-level operation tallies the
// control channel and Prometheus collector both read (spec §6 "stats",
// SPEC_FULL.md's metrics wiring).
type counters struct {
	gets            atomic.Uint64
	getHits         atomic.Uint64
	getMisses       atomic.Uint64
	sets            atomic.Uint64
	protocolFatal   atomic.Uint64
	liveConnections atomic.Int64
}

func (c *counters) snapshot() metrics.OpCounters {
	return metrics.OpCounters{
		Gets:                c.gets.Load(),
		GetHits:             c.getHits.Load(),
		GetMisses:           c.getMisses.Load(),
		Sets:                c.sets.Load(),
		ProtocolFatalClosed: c.protocolFatal.Load(),
	}
}
