/**
 * Copyright (c) 2022, Xerra Earth Observation Institute.
 * Copyright (c) 2025, Simeon Miteff.
 *
 * See LICENSE.TXT in the root directory of this source tree.
 */

package session

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/simeonmiteff/bincached/pkg/cache"
	"github.com/simeonmiteff/bincached/pkg/grace"
	"github.com/simeonmiteff/bincached/pkg/metrics"
)

// Server is the accept loop (spec's "[NEW]" addition to §4.6): it binds
// one listener, assigns each accepted connection to a shard round-robin,
// and runs each connection's receive loop in its own goroutine.
//
// spec §5 pins one TcpSession per CPU and relies on that pinning, plus
// the runtime's cooperative (non-preemptive) scheduling, to guarantee no
// session-local locking is needed. Go has neither raw core pinning nor
// cooperative scheduling of goroutines, so this server uses the
// idiomatic substitute: one goroutine per connection, which gives a
// *stronger* isolation guarantee (true exclusivity, not just absence of
// preemption within a quantum) at the cost of losing the "bounded number
// of OS threads" property Seastar's model buys. The shard index survives
// as a grouping key for pkg/grace's epoch counters (round-robin over
// GOMAXPROCS shards, not one per connection, so the reaper's poll loop
// checks a small fixed set) and for per-shard labelling in logs/metrics.
// See DESIGN.md for the full discussion of this deviation.
type Server struct {
	addr      string
	table     *cache.Table
	grace     *grace.Period
	collector *metrics.CacheCollector
	counters  counters

	listener     net.Listener
	shardCounter atomic.Uint64
	wg           sync.WaitGroup
}

// NewServer constructs a Server bound to addr (not yet listening; call
// Start). table and g are shared across every connection; collector may
// be nil to run without Prometheus wiring.
func NewServer(addr string, table *cache.Table, g *grace.Period, collector *metrics.CacheCollector) *Server {
	return &Server{
		addr:      addr,
		table:     table,
		grace:     g,
		collector: collector,
	}
}

// Start binds the listener and runs the accept loop until ctx is
// cancelled, then waits for in-flight connections to finish their
// current receive callback before returning (graceful drain).
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.listener = ln

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	logrus.WithField("addr", s.addr).Info("session: listening")

	for {
		nc, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				break
			}
			logrus.WithError(err).Warn("session: accept failed")
			continue
		}

		shard := int(s.shardCounter.Add(1)-1) % s.grace.NumShards()
		conn := Accept(nc, shard, s.table, s.grace.Shard(shard), s.collector, &s.counters)

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			conn.Serve(ctx)
		}()
	}

	s.wg.Wait()
	return nil
}

// OpCounters reports a snapshot of protocol-level counters, consumed by
// pkg/metrics and pkg/control.
func (s *Server) OpCounters() metrics.OpCounters {
	return s.counters.snapshot()
}

// Connections reports the current live connection count.
func (s *Server) Connections() int {
	return int(s.counters.liveConnections.Load())
}

// Gets and Sets satisfy pkg/control.Handler's stats accessors.
func (s *Server) Gets() uint64 { return s.counters.gets.Load() }
func (s *Server) Sets() uint64 { return s.counters.sets.Load() }
