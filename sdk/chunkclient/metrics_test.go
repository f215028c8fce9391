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
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/opencurve/curvebs-client/proto"
)

func gaugeValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		return fam.GetMetric()[0].GetGauge().GetValue()
	}
	t.Fatalf("metric %s not found", name)
	return 0
}

func TestEngineInflightGaugeTracksThrottle(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewChunkMetrics(reg)
	tr := &scriptedTransport{script: []scriptedResponse{
		{resp: &RPCResponse{Status: proto.StatusSuccess}},
	}}
	res := &staticResolver{cs: 1, endpoint: "10.0.0.1:8200", hostIP: "10.0.0.1"}
	e, err := NewEngine(smallOpt(), res, tr, metrics)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	if got := gaugeValue(t, reg, "curvebs_client_chunk_inflight_current"); got != 0 {
		t.Fatalf("expected 0 inflight before any request, got %v", got)
	}

	e.throttle.Increment()
	if got := gaugeValue(t, reg, "curvebs_client_chunk_inflight_current"); got != 1 {
		t.Fatalf("expected 1 inflight after Increment, got %v", got)
	}
	e.throttle.Decrement()
	if got := gaugeValue(t, reg, "curvebs_client_chunk_inflight_current"); got != 0 {
		t.Fatalf("expected 0 inflight after Decrement, got %v", got)
	}
}

func TestEngineRetrySleepsPendingGaugeStartsAtZero(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewChunkMetrics(reg)
	tr := &scriptedTransport{}
	res := &staticResolver{cs: 1, endpoint: "10.0.0.1:8200", hostIP: "10.0.0.1"}
	if _, err := NewEngine(smallOpt(), res, tr, metrics); err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	if got := gaugeValue(t, reg, "curvebs_client_chunk_retry_sleeps_pending"); got != 0 {
		t.Fatalf("expected 0 pending retry sleeps on a fresh engine, got %v", got)
	}
}

func TestChunkMetricsBindGaugesIsNilSafe(t *testing.T) {
	var m *ChunkMetrics
	m.bindGauges(NewInflightThrottle(1), nil)
}
