/**
 * Copyright (c) 2022, Xerra Earth Observation Institute.
 * Copyright (c) 2025, Simeon Miteff.
 *
 * See LICENSE.TXT in the root directory of this source tree.
 */

// Package grace implements the grace-period reclamation primitive that
// spec §5 attributes to the CPU/event runtime (defer_after_grace_period):
// a way to run a cleanup closure only once every shard's event loop has
// completed at least one cooperative quantum that began after the defer
// was requested, so no reader that started earlier can still be mid-
// traversal of a retired cache entry.
//
// This is a Go-idiomatic reinterpretation of Seastar-style per-core grace
// periods (spec §9): instead of per-core reactor quanta, each session
// shard's receive-callback loop (pkg/session) calls Tick once per
// callback, and Defer blocks a single background reaper goroutine — never
// the caller — until every shard has ticked past its snapshot epoch.
package grace

import (
	"sync/atomic"
	"time"
)

// pollInterval bounds how long a deferred closure can wait after every
// shard has actually ticked past its target epoch. Shards tick on every
// receive callback, which on an active connection happens far more often
// than this; an idle shard still clears its deferred work within one
// interval.
const pollInterval = time.Millisecond

// ShardEpoch is one shard's epoch counter. A Period hands one to each
// session shard's event loop.
type ShardEpoch struct {
	epoch atomic.Uint64
}

// Tick advances this shard's epoch, marking the start of a new
// cooperative quantum (spec: a receive callback).
func (s *ShardEpoch) Tick() {
	s.epoch.Add(1)
}

func (s *ShardEpoch) current() uint64 {
	return s.epoch.Load()
}

type pendingRetire struct {
	targets []uint64
	fn      func()
}

// Period coordinates grace-period retirement across a fixed number of
// shards.
type Period struct {
	shards  []ShardEpoch
	pending chan pendingRetire
	done    chan struct{}
}

// New constructs a Period for numShards independent shards and starts its
// background reaper goroutine. Call Stop when shutting down.
func New(numShards int) *Period {
	if numShards < 1 {
		numShards = 1
	}
	p := &Period{
		shards:  make([]ShardEpoch, numShards),
		pending: make(chan pendingRetire, 1024),
		done:    make(chan struct{}),
	}
	go p.reap()
	return p
}

// Shard returns the epoch handle for shard i.
func (p *Period) Shard(i int) *ShardEpoch {
	return &p.shards[i%len(p.shards)]
}

// NumShards returns the number of shards this Period was constructed
// with.
func (p *Period) NumShards() int {
	return len(p.shards)
}

// Defer schedules fn to run once every shard has ticked at least once
// since Defer was called. fn runs on the reaper goroutine, never on a
// shard's own goroutine, and must not block indefinitely.
func (p *Period) Defer(fn func()) {
	targets := make([]uint64, len(p.shards))
	for i := range p.shards {
		targets[i] = p.shards[i].current() + 1
	}
	select {
	case p.pending <- pendingRetire{targets: targets, fn: fn}:
	case <-p.done:
	}
}

// Stop halts the reaper goroutine. Any closures still pending are
// dropped; callers should not rely on Stop flushing pending retirements.
func (p *Period) Stop() {
	close(p.done)
}

func (p *Period) reap() {
	var backlog []pendingRetire
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.done:
			return
		case item := <-p.pending:
			backlog = append(backlog, item)
		case <-ticker.C:
			backlog = p.drain(backlog)
		}
	}
}

func (p *Period) drain(backlog []pendingRetire) []pendingRetire {
	remaining := backlog[:0]
	for _, item := range backlog {
		if p.satisfied(item.targets) {
			item.fn()
		} else {
			remaining = append(remaining, item)
		}
	}
	return remaining
}

func (p *Period) satisfied(targets []uint64) bool {
	for i, target := range targets {
		if p.shards[i].current() < target {
			return false
		}
	}
	return true
}
