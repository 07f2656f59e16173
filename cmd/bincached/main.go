/**
 * Copyright (c) 2022, Xerra Earth Observation Institute.
 * Copyright (c) 2025, Simeon Miteff.
 *
 * See LICENSE.TXT in the root directory of this source tree.
 */

// Command bincached runs the binary-protocol in-memory cache server
// (spec §1/§6 bootstrap): one process-wide cache table, a Prometheus
// metrics endpoint, an operator control channel, and the TCP session
// server, wired together the way the teacher's cmd/exporter_example2
// wires its collector and HTTP server.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/simeonmiteff/bincached/pkg/cache"
	"github.com/simeonmiteff/bincached/pkg/control"
	"github.com/simeonmiteff/bincached/pkg/grace"
	"github.com/simeonmiteff/bincached/pkg/kernelinfo"
	"github.com/simeonmiteff/bincached/pkg/metrics"
	"github.com/simeonmiteff/bincached/pkg/session"
)

func main() {
	addr := flag.String("addr", ":11211", "binary protocol listen address")
	controlAddr := flag.String("control-addr", ":6666", "operator control channel (UDP) listen address")
	metricsAddr := flag.String("metrics-addr", ":9121", "Prometheus metrics listen address")
	shards := flag.Int("shards", runtime.GOMAXPROCS(0), "number of grace-period epoch shards")
	flag.Parse()

	hostname, err := os.Hostname()
	if err != nil {
		logrus.WithError(err).Fatal("bincached: hostname lookup failed")
	}

	kinfo, err := kernelinfo.Detect()
	if err != nil {
		logrus.WithError(err).Warn("bincached: kernel version probe failed, assuming no SO_REUSEPORT support")
	}
	logrus.WithFields(logrus.Fields{
		"kernel":             kinfo.Version,
		"supports_reuseport": kinfo.SupportsReusePort,
	}).Info("bincached: starting")

	gracePeriod := grace.New(*shards)
	defer gracePeriod.Stop()

	table := cache.New(gracePeriod)

	collector := metrics.New(
		prometheus.Labels{"app": "bincached", "hostname": hostname},
		func() (int64, uint64) {
			s := table.Stats()
			return s.Entries, s.FlushCount
		},
		nil, // set below, once the session server exists (breaks the init cycle)
	)

	srv := session.NewServer(*addr, table, gracePeriod, collector)
	collector.SetOpStatsFn(srv.OpCounters)

	prometheus.MustRegister(collector)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctrl := control.New(*controlAddr, control.Handler{
		Table:       table,
		Gets:        srv.Gets,
		Sets:        srv.Sets,
		Connections: srv.Connections,
	})
	go func() {
		if err := ctrl.Serve(ctx); err != nil {
			logrus.WithError(err).Warn("bincached: control channel stopped")
		}
	}()

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{Addr: *metricsAddr, Handler: metricsMux}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Warn("bincached: metrics server stopped")
		}
	}()
	go func() {
		<-ctx.Done()
		_ = metricsServer.Close()
	}()

	if err := srv.Start(ctx); err != nil {
		logrus.WithError(err).Fatal("bincached: session server failed")
	}

	logrus.Info("bincached: shutdown complete")
}
