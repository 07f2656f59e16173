/**
 * Copyright (c) 2022, Xerra Earth Observation Institute.
 * Copyright (c) 2025, Simeon Miteff.
 *
 * See LICENSE.TXT in the root directory of this source tree.
 */

// Package session implements the per-connection state machine (spec
// §4.6): it glues the framer (pkg/framer) to the request decoder (pkg/
// protocol) to the cache table (pkg/cache) and back out through the
// encoder, batching every reply produced within one receive callback into
// a single send.
//
// This generalizes the teacher's sockstats.Conn/conniver.Conn wrapper
// (SPEC_FULL.md DOMAIN STACK) from a passive TCP_INFO collector into the
// active driver: the net.Conn embedding, byte counters, and Close/Read/
// Write instrumentation are the teacher's pattern; what runs on top of
// them is this server's protocol logic instead of TCP_INFO polling.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync/atomic"
	"time"

	"github.com/higebu/netfd"
	"github.com/rs/xid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/simeonmiteff/bincached/pkg/buffer"
	"github.com/simeonmiteff/bincached/pkg/cache"
	"github.com/simeonmiteff/bincached/pkg/framer"
	"github.com/simeonmiteff/bincached/pkg/grace"
	"github.com/simeonmiteff/bincached/pkg/metrics"
)

// recvBufSize bounds one Read call. Each call allocates a fresh slice
// (never reused across calls) because the buffer chain aliases these
// bytes all the way into the cache table on a SET — reusing a buffer
// across reads would silently corrupt a previously-cached value (spec
// §8 property 2: zero-copy).
const recvBufSize = 64 * 1024

// Conn is one client connection's state (spec §4.6): the teacher's
// embedding pattern (net.Conn plus counters) carrying the pending receive
// chain, a Framer, and a back-reference to the shared cache.
type Conn struct {
	net.Conn

	id    xid.ID
	shard int
	epoch *grace.ShardEpoch

	table     *cache.Table
	framer    *framer.Framer
	collector *metrics.CacheCollector
	counters  *counters
	log       *logrus.Entry

	OpenedAt     int64
	FirstReadAt  int64
	FirstWriteAt int64
	BytesRecv    atomic.Int64
	BytesSent    atomic.Int64
	RecvErr      error
	SendErr      error
	Attempts     int
}

// Accept wraps an accepted net.Conn into a session Conn, pinning it to
// shard (the portable reinterpretation of "a TcpSession bound to one
// CPU", spec §5 — see pkg/session's package doc and Server.Start) and
// setting TCP_NODELAY via the raw fd, exactly how the teacher's
// exporter.Add/sockstats.WrapConn reach through net.Conn to the kernel.
func Accept(nc net.Conn, shard int, tbl *cache.Table, epoch *grace.ShardEpoch, collector *metrics.CacheCollector, ctrs *counters) *Conn {
	c := &Conn{
		Conn:      nc,
		id:        xid.New(),
		shard:     shard,
		epoch:     epoch,
		table:     tbl,
		framer:    framer.New(),
		collector: collector,
		counters:  ctrs,
		OpenedAt:  time.Now().UnixNano(),
	}
	c.log = logrus.WithFields(logrus.Fields{"session": c.id.String(), "remote": nc.RemoteAddr().String(), "shard": shard})

	setNoDelay(nc, c.log)

	ctrs.liveConnections.Add(1)
	if collector != nil {
		collector.Add(c.id.String(), nc.RemoteAddr().String(),
			func() int64 { return c.BytesSent.Load() },
			func() int64 { return c.BytesRecv.Load() },
		)
	}
	return c
}

// setNoDelay disables Nagle's algorithm on the accepted socket. Cache
// protocols are latency-sensitive and this server's own batching (one
// send per receive callback, §4.6) already coalesces pipelined replies,
// so Nagle buys nothing but added latency.
func setNoDelay(nc net.Conn, log *logrus.Entry) {
	fd := netfd.GetFdFromConn(nc)
	if fd < 0 {
		return
	}
	if err := unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1); err != nil {
		log.WithError(err).Warn("session: failed to set TCP_NODELAY")
	}
}

// Close unregisters the connection from the metrics collector and live
// connection count before closing the underlying socket.
func (c *Conn) Close() error {
	c.counters.liveConnections.Add(-1)
	if c.collector != nil {
		c.collector.Remove(c.id.String())
	}
	return c.Conn.Close()
}

// Serve runs the connection's receive loop until the peer closes, ctx is
// cancelled, or a protocol-fatal error terminates the session (spec §7).
// Each connection owns its own goroutine; per spec §5 the important
// property this preserves is that nothing but Close/Write (both safe for
// concurrent use; the absence of session-local locking is about
// avoiding locks *within* one connection's own processing, which
// single goroutine ownership gives directly) ever touches this Conn's
// framer or pending state from more than one goroutine at a time.
func (c *Conn) Serve(ctx context.Context) {
	defer func() {
		_ = c.Close()
		c.log.Info("session: closed")
	}()

	go func() {
		<-ctx.Done()
		_ = c.Conn.Close()
	}()

	for {
		buf := make([]byte, recvBufSize)
		n, err := c.Conn.Read(buf)
		if n > 0 {
			if c.FirstReadAt == 0 {
				c.FirstReadAt = time.Now().UnixNano()
			}
			c.BytesRecv.Add(int64(n))
			if closeSession, herr := c.HandleReceive(buf[:n]); herr != nil || closeSession {
				if herr != nil && !errors.Is(herr, io.EOF) {
					c.log.WithError(herr).Warn("session: closing after protocol-fatal error")
				}
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				c.RecvErr = err
				c.log.WithError(err).Debug("session: read error")
			}
			return
		}
	}
}

// HandleReceive implements spec §4.6 steps 2-6: feed incoming bytes to
// the framer, dispatch every complete message it yields, batch all
// produced replies into one reply chain, and issue a single send.
func (c *Conn) HandleReceive(incoming []byte) (closeSession bool, err error) {
	c.epoch.Tick()

	msgs, ferr := c.framer.Feed(buffer.New(incoming))

	var rbuf *buffer.Chain
	for _, msg := range msgs {
		reply, closeAfter, derr := c.dispatch(msg)
		if derr != nil {
			c.counters.protocolFatal.Add(1)
			return true, derr
		}
		if reply != nil {
			if rbuf == nil {
				rbuf = reply
			} else {
				rbuf.AppendChain(reply)
			}
		}
		if closeAfter {
			closeSession = true
		}
	}

	if rbuf != nil {
		if werr := c.sendChain(rbuf); werr != nil {
			return true, werr
		}
	}

	if ferr != nil {
		c.counters.protocolFatal.Add(1)
		return true, ferr
	}
	return closeSession, nil
}

// sendChain writes a reply chain's nodes as one vectored send
// (net.Buffers: a single writev on a TCP connection, one Write per node on
// connections without vectored writes), avoiding the intermediate copy
// Bytes() would require for potentially large cached values.
func (c *Conn) sendChain(chain *buffer.Chain) error {
	if c.FirstWriteAt == 0 {
		c.FirstWriteAt = time.Now().UnixNano()
	}
	bufs := net.Buffers(chain.Nodes())
	n, err := bufs.WriteTo(c.Conn)
	c.BytesSent.Add(n)
	if err != nil {
		c.SendErr = err
		return fmt.Errorf("session: write failed: %w", err)
	}
	return nil
}
