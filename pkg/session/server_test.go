/**
 * Copyright (c) 2022, Xerra Earth Observation Institute.
 * Copyright (c) 2025, Simeon Miteff.
 *
 * See LICENSE.TXT in the root directory of this source tree.
 */

package session

import (
	"context"
	"encoding/binary"
	"io"
	"net"
	"testing"
	"time"

	"gotest.tools/v3/assert"

	"github.com/simeonmiteff/bincached/pkg/protocol"
)

func TestServerAcceptsConnectionsAndServesRequests(t *testing.T) {
	table, g := newTestTable(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	assert.NilError(t, err)
	addr := ln.LocalAddr().String()
	_ = ln.Close()
	srv := NewServer(addr, table, g, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	startErr := make(chan error, 1)
	go func() { startErr <- srv.Start(ctx) }()

	var conn net.Conn
	for i := 0; i < 50; i++ {
		conn, err = net.Dial("tcp", addr)
		if err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	assert.NilError(t, err)
	defer conn.Close()

	_, err = conn.Write(buildMessage(byte(protocol.OpSet), []byte("k"), []byte("v")))
	assert.NilError(t, err)

	header := make([]byte, 24)
	_, err = io.ReadFull(conn, header)
	assert.NilError(t, err)
	assert.Equal(t, binary.BigEndian.Uint16(header[6:8]), uint16(protocol.StatusSuccess))

	assert.Equal(t, srv.Connections(), 1)
	assert.Equal(t, srv.Sets(), uint64(1))

	cancel()
	select {
	case <-startErr:
	case <-time.After(2 * time.Second):
		t.Fatal("server did not shut down after context cancellation")
	}
}
