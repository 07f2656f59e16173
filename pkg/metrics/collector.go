/**
 * Copyright (c) 2022, Xerra Earth Observation Institute.
 * Copyright (c) 2025, Simeon Miteff.
 *
 * See LICENSE.TXT in the root directory of this source tree.
 */

// Package metrics implements a Prometheus collector over the cache table
// and the live connection set, built directly on the shape of the
// teacher's TCPInfoCollector (Describe/Collect over a mutex-guarded
// registry, Add/Remove hooks called from connection accept/close).
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// connEntry tracks the per-connection counters a session reports at
// Collect time; it mirrors the teacher's connEntry (fd + labels) but
// carries byte counters instead of a raw fd, since this collector reports
// application-level traffic rather than kernel TCP_INFO.
type connEntry struct {
	labels    []string
	bytesSent func() int64
	bytesRecv func() int64
}

// CacheCollector implements prometheus.Collector for the cache server: a
// fixed set of table-level gauges/counters plus one bytes_sent/bytes_recv
// pair per live connection, labelled by session id and remote address
// (teacher's connectionLabels convention: {"id", "remote_host"}).
type CacheCollector struct {
	mu    sync.Mutex
	conns map[string]connEntry

	tableStats func() (entries int64, flushes uint64)
	opStats    func() OpCounters

	entriesDesc     *prometheus.Desc
	flushesDesc     *prometheus.Desc
	connectionsDesc *prometheus.Desc
	getsDesc        *prometheus.Desc
	getHitsDesc     *prometheus.Desc
	getMissesDesc   *prometheus.Desc
	setsDesc        *prometheus.Desc
	fatalCloseDesc  *prometheus.Desc
	bytesSentDesc   *prometheus.Desc
	bytesRecvDesc   *prometheus.Desc
}

// OpCounters is a point-in-time snapshot of protocol-level operation
// counts, supplied by the caller (pkg/session) at Collect time.
type OpCounters struct {
	Gets                uint64
	GetHits             uint64
	GetMisses           uint64
	Sets                uint64
	ProtocolFatalClosed uint64
}

// New constructs a CacheCollector. tableStats is called once per Collect
// to snapshot the cache table; opStats does the same for the session
// layer's running counters and may be installed later via SetOpStatsFn
// if the session server doesn't exist yet at construction time.
// constLabels carries process-wide labels (hostname, app) exactly as the
// teacher's NewTCPInfoCollector does.
func New(constLabels prometheus.Labels, tableStats func() (int64, uint64), opStats func() OpCounters) *CacheCollector {
	connLabels := []string{"id", "remote_host"}
	return &CacheCollector{
		conns:      make(map[string]connEntry),
		tableStats: tableStats,
		opStats:    opStats,

		entriesDesc:     prometheus.NewDesc("bincached_entries", "Number of keys currently stored in the cache table.", nil, constLabels),
		flushesDesc:     prometheus.NewDesc("bincached_flushes_total", "Number of FLUSH/FLUSHQ operations processed.", nil, constLabels),
		connectionsDesc: prometheus.NewDesc("bincached_connections", "Number of live client connections.", nil, constLabels),
		getsDesc:        prometheus.NewDesc("bincached_gets_total", "Number of GET/GETQ/GETK/GETKQ requests processed.", nil, constLabels),
		getHitsDesc:     prometheus.NewDesc("bincached_get_hits_total", "Number of GET-family requests that hit.", nil, constLabels),
		getMissesDesc:   prometheus.NewDesc("bincached_get_misses_total", "Number of GET-family requests that missed.", nil, constLabels),
		setsDesc:        prometheus.NewDesc("bincached_sets_total", "Number of SET/SETQ requests processed.", nil, constLabels),
		fatalCloseDesc:  prometheus.NewDesc("bincached_protocol_fatal_closes_total", "Number of sessions closed due to a protocol-fatal error.", nil, constLabels),
		bytesSentDesc:   prometheus.NewDesc("bincached_connection_bytes_sent", "Bytes sent on one connection.", connLabels, constLabels),
		bytesRecvDesc:   prometheus.NewDesc("bincached_connection_bytes_received", "Bytes received on one connection.", connLabels, constLabels),
	}
}

// Describe implements prometheus.Collector.
func (c *CacheCollector) Describe(descs chan<- *prometheus.Desc) {
	descs <- c.entriesDesc
	descs <- c.flushesDesc
	descs <- c.connectionsDesc
	descs <- c.getsDesc
	descs <- c.getHitsDesc
	descs <- c.getMissesDesc
	descs <- c.setsDesc
	descs <- c.fatalCloseDesc
	descs <- c.bytesSentDesc
	descs <- c.bytesRecvDesc
}

// SetOpStatsFn installs the op-counter snapshot source. Session server
// construction happens after this collector is constructed (the server
// itself takes a reference to the collector), so
// this setter breaks that initialization cycle; Collect tolerates it
// being unset before the first call.
func (c *CacheCollector) SetOpStatsFn(fn func() OpCounters) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.opStats = fn
}

// Collect implements prometheus.Collector.
func (c *CacheCollector) Collect(metrics chan<- prometheus.Metric) {
	entries, flushes := c.tableStats()

	c.mu.Lock()
	opStats := c.opStats
	c.mu.Unlock()

	var ops OpCounters
	if opStats != nil {
		ops = opStats()
	}

	metrics <- prometheus.MustNewConstMetric(c.entriesDesc, prometheus.GaugeValue, float64(entries))
	metrics <- prometheus.MustNewConstMetric(c.flushesDesc, prometheus.CounterValue, float64(flushes))
	metrics <- prometheus.MustNewConstMetric(c.getsDesc, prometheus.CounterValue, float64(ops.Gets))
	metrics <- prometheus.MustNewConstMetric(c.getHitsDesc, prometheus.CounterValue, float64(ops.GetHits))
	metrics <- prometheus.MustNewConstMetric(c.getMissesDesc, prometheus.CounterValue, float64(ops.GetMisses))
	metrics <- prometheus.MustNewConstMetric(c.setsDesc, prometheus.CounterValue, float64(ops.Sets))
	metrics <- prometheus.MustNewConstMetric(c.fatalCloseDesc, prometheus.CounterValue, float64(ops.ProtocolFatalClosed))

	c.mu.Lock()
	defer c.mu.Unlock()

	metrics <- prometheus.MustNewConstMetric(c.connectionsDesc, prometheus.GaugeValue, float64(len(c.conns)))
	for _, entry := range c.conns {
		metrics <- prometheus.MustNewConstMetric(c.bytesSentDesc, prometheus.CounterValue, float64(entry.bytesSent()), entry.labels...)
		metrics <- prometheus.MustNewConstMetric(c.bytesRecvDesc, prometheus.CounterValue, float64(entry.bytesRecv()), entry.labels...)
	}
}

// Add registers a live connection, keyed by its session id, reporting
// byte counters via the supplied accessor closures (mirrors the teacher's
// Add(conn net.Conn, labels []string), keyed here by id since sessions
// don't expose a comparable net.Conn across the abstraction boundary).
func (c *CacheCollector) Add(id, remoteAddr string, bytesSent, bytesRecv func() int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.conns[id] = connEntry{
		labels:    []string{id, remoteAddr},
		bytesSent: bytesSent,
		bytesRecv: bytesRecv,
	}
}

// Remove unregisters a connection on close.
func (c *CacheCollector) Remove(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.conns, id)
}
