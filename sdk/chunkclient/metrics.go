// Copyright 2024 The CurveBS Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied. See the License for the specific language governing
// permissions and limitations under the License.

package chunkclient

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/opencurve/curvebs-client/proto"
	"github.com/opencurve/curvebs-client/util/sched"
)

// ChunkMetrics is the write-only, best-effort sink of spec §6, wrapping
// prometheus/client_golang the way the teacher's util/exporter wraps it
// for counters and TP histograms. Every method is nil-receiver-safe so
// "the engine must function without it" holds for a literal nil
// *ChunkMetrics. A zero-value ChunkMetrics is not usable; build one with
// NewChunkMetrics.
type ChunkMetrics struct {
	reg prometheus.Registerer

	success  *prometheus.CounterVec
	failure  *prometheus.CounterVec
	retry    *prometheus.CounterVec
	redirect *prometheus.CounterVec
	slow     *prometheus.CounterVec
	latency  *prometheus.HistogramVec

	gaugesBound bool
}

// NewChunkMetrics registers the chunk-client collectors against reg. A
// nil reg uses prometheus.DefaultRegisterer, as the teacher's exporter
// package does for its own process-wide metrics.
func NewChunkMetrics(reg prometheus.Registerer) *ChunkMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &ChunkMetrics{
		reg: reg,
		success: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "curvebs_client", Name: "chunk_op_success_total",
			Help: "Successful chunk operations by kind.",
		}, []string{"op"}),
		failure: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "curvebs_client", Name: "chunk_op_failure_total",
			Help: "Failed chunk operations by kind and final status.",
		}, []string{"op", "status"}),
		retry: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "curvebs_client", Name: "chunk_op_retry_total",
			Help: "Retry attempts issued by operation kind.",
		}, []string{"op"}),
		redirect: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "curvebs_client", Name: "chunk_op_redirect_total",
			Help: "REDIRECTED responses observed by operation kind.",
		}, []string{"op"}),
		slow: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "curvebs_client", Name: "chunk_op_slow_total",
			Help: "Requests marked slow by operation kind.",
		}, []string{"op"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "curvebs_client", Name: "chunk_op_latency_seconds",
			Help:    "Successful chunk operation latency by kind.",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
	}
	reg.MustRegister(m.success, m.failure, m.retry, m.redirect, m.slow, m.latency)
	return m
}

// bindGauges registers the two GaugeFuncs that sample the engine's live
// collaborators on every /metrics scrape: throttle.Snapshot() for the
// inflight RPC count, and queue.Pending() for the number of retry
// backoff sleeps currently scheduled. Called once from NewEngine, after
// both collaborators exist; a nil receiver or a second call is a no-op,
// since GaugeFunc registration against the same reg would otherwise
// panic on a duplicate collector.
func (m *ChunkMetrics) bindGauges(throttle *InflightThrottle, queue *sched.Queue) {
	if m == nil || m.gaugesBound {
		return
	}
	m.gaugesBound = true
	m.reg.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "curvebs_client", Name: "chunk_inflight_current",
			Help: "Chunk RPCs currently outstanding against the inflight throttle.",
		}, func() float64 {
			current, _ := throttle.Snapshot()
			return float64(current)
		}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "curvebs_client", Name: "chunk_retry_sleeps_pending",
			Help: "Retry backoff sleeps currently scheduled but not yet fired.",
		}, func() float64 {
			return float64(queue.Pending())
		}),
	)
}

func (m *ChunkMetrics) IncSuccess(op proto.OpType) {
	if m == nil {
		return
	}
	m.success.WithLabelValues(op.String()).Inc()
}

func (m *ChunkMetrics) IncFailure(op proto.OpType, status proto.Status) {
	if m == nil {
		return
	}
	m.failure.WithLabelValues(op.String(), status.String()).Inc()
}

func (m *ChunkMetrics) IncRetry(op proto.OpType) {
	if m == nil {
		return
	}
	m.retry.WithLabelValues(op.String()).Inc()
}

func (m *ChunkMetrics) IncRedirect(op proto.OpType) {
	if m == nil {
		return
	}
	m.redirect.WithLabelValues(op.String()).Inc()
}

func (m *ChunkMetrics) IncSlowRequest(op proto.OpType) {
	if m == nil {
		return
	}
	m.slow.WithLabelValues(op.String()).Inc()
}

func (m *ChunkMetrics) ObserveLatency(op proto.OpType, d time.Duration) {
	if m == nil {
		return
	}
	m.latency.WithLabelValues(op.String()).Observe(d.Seconds())
}

// Serve mounts /metrics on a gorilla/mux router, the way the teacher's
// util/exporter serves its own process metrics, and starts listening in
// the background. Callers that don't want an HTTP endpoint simply never
// call this.
func (m *ChunkMetrics) Serve(addr string) error {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: r}
	return srv.ListenAndServe()
}
