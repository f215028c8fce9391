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

// Package chunkclient implements the client-side chunk request engine:
// leader-tracking dispatch of chunk-server RPCs with retry, backoff, and
// inflight admission control, mirroring the shape of the teacher's own
// sdk/data and sdk/meta packages.
package chunkclient

import (
	"github.com/opencurve/curvebs-client/util/sched"
)

// Engine is the process-wide handle upstream I/O trackers submit
// RequestContexts to. One Engine is constructed per client process;
// FailureRequestOption and BackoffParam are immutable for its lifetime
// (spec §5).
type Engine struct {
	opt      FailureRequestOption
	backoff  BackoffParam
	throttle *InflightThrottle
	unstable *UnstableTracker
	metacache *MetadataCache
	transport ChunkServerTransport
	sched    *sched.Queue
	metrics  *ChunkMetrics
}

// NewEngine wires the components in spec §2's leaves-first order.
// transport must not be nil. metrics may be nil, since every ChunkMetrics
// method is nil-receiver-safe; a nil metrics records nothing.
func NewEngine(opt FailureRequestOption, resolver LeaderResolver, transport ChunkServerTransport, metrics *ChunkMetrics) (*Engine, error) {
	metacache, err := NewMetadataCache(4096, resolver)
	if err != nil {
		return nil, err
	}
	e := &Engine{
		opt:       opt,
		backoff:   NewBackoffParam(opt),
		throttle:  NewInflightThrottle(opt.MaxInflightRequests),
		unstable:  NewUnstableTracker(opt),
		metacache: metacache,
		transport: transport,
		sched:     sched.NewQueue(),
		metrics:   metrics,
	}
	metrics.bindGauges(e.throttle, e.sched)
	return e, nil
}

// IOManager returns the upstream submission surface bound to this
// engine (spec §6's "upstream submission interface").
func (e *Engine) IOManager() *IOManager {
	return &IOManager{engine: e}
}
