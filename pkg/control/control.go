/**
 * Copyright (c) 2022, Xerra Earth Observation Institute.
 * Copyright (c) 2025, Simeon Miteff.
 *
 * See LICENSE.TXT in the root directory of this source tree.
 */

// Package control implements the out-of-band operator command channel
// (spec §6): a UDP listener on a separate port accepting ASCII
// "<verb>,<param>" datagrams. It is explicitly a thin debug shim (spec
// §1 Non-goals) — no authentication, no rate limiting.
package control

import (
	"context"
	"net"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/simeonmiteff/bincached/pkg/cache"
)

// Handler holds what the two implemented verbs, stats and flush, act on:
// the cache table and the op-counter accessors a stats reply reports.
type Handler struct {
	Table *cache.Table

	// Gets and Sets fill in the "gets" and "sets" fields of a stats reply.
	Gets func() uint64
	Sets func() uint64
	// Connections reports the current live connection count.
	Connections func() int
}

// Server is the UDP control listener.
type Server struct {
	addr    string
	handler Handler
}

// New constructs a control Server bound to addr (e.g. ":6666", spec §6's
// example port) once Serve is called.
func New(addr string, handler Handler) *Server {
	return &Server{addr: addr, handler: handler}
}

// Serve binds the UDP socket and processes datagrams until ctx is
// cancelled. It never returns a non-nil error except a bind failure.
func (s *Server) Serve(ctx context.Context) error {
	pc, err := net.ListenPacket("udp", s.addr)
	if err != nil {
		return err
	}
	defer pc.Close()

	go func() {
		<-ctx.Done()
		pc.Close()
	}()

	buf := make([]byte, 512)
	for {
		n, addr, err := pc.ReadFrom(buf)
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				logrus.WithError(err).Warn("control: read failed")
				continue
			}
		}
		s.handle(pc, addr, string(buf[:n]))
	}
}

// handle dispatches one datagram. Verbs other than the two implemented
// here are relayed-and-logged verbatim per spec §6 ("Verbs relayed
// verbatim to the network manager") and otherwise ignored, since the
// hardware-specific network manager collaborator this spec's source
// relayed to does not exist in this rewrite.
func (s *Server) handle(pc net.PacketConn, addr net.Addr, line string) {
	line = strings.TrimRight(line, "\r\n")
	verb, param, _ := strings.Cut(line, ",")

	switch verb {
	case "stats":
		reply := s.statsReply()
		_, _ = pc.WriteTo([]byte(reply), addr)
	case "flush":
		s.handler.Table.Clear()
		logrus.WithField("caller", addr.String()).Info("control: flush requested")
	default:
		logrus.WithFields(logrus.Fields{"verb": verb, "param": param, "caller": addr.String()}).Info("control: unrecognized verb relayed")
	}
}

func (s *Server) statsReply() string {
	stats := s.handler.Table.Stats()
	var gets, sets uint64
	var conns int
	if s.handler.Gets != nil {
		gets = s.handler.Gets()
	}
	if s.handler.Sets != nil {
		sets = s.handler.Sets()
	}
	if s.handler.Connections != nil {
		conns = s.handler.Connections()
	}
	i := strconv.FormatInt
	return "entries=" + i(stats.Entries, 10) +
		",connections=" + i(int64(conns), 10) +
		",gets=" + i(int64(gets), 10) +
		",sets=" + i(int64(sets), 10) + "\n"
}
