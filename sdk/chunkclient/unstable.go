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
	"sync"

	"github.com/opencurve/curvebs-client/proto"
)

// UnstableState classifies a chunk server after a timeout, per spec §4.3.
type UnstableState int

const (
	NoUnstable UnstableState = iota
	ChunkServerUnstable
	ServerUnstable
)

func (s UnstableState) String() string {
	switch s {
	case NoUnstable:
		return "NoUnstable"
	case ChunkServerUnstable:
		return "ChunkServerUnstable"
	case ServerUnstable:
		return "ServerUnstable"
	default:
		return "UnstableState(?)"
	}
}

// UnstableTracker keeps per-chunk-server timeout counts and, derived from
// them, the set of chunk servers currently unstable on each host. All
// counters are protected by a single mutex: these are small maps updated
// once per RPC completion, never held across an RPC or a sleep.
type UnstableTracker struct {
	mu              sync.Mutex
	timeoutCount    map[proto.ChunkServerID]uint32
	hostOf          map[proto.ChunkServerID]string
	unstableOnHost  map[string]map[proto.ChunkServerID]struct{}
	csUnstableThreshold uint32
	hostUnstableThreshold uint32
}

// NewUnstableTracker builds a tracker using the thresholds from opt.
func NewUnstableTracker(opt FailureRequestOption) *UnstableTracker {
	return &UnstableTracker{
		timeoutCount:          make(map[proto.ChunkServerID]uint32),
		hostOf:                make(map[proto.ChunkServerID]string),
		unstableOnHost:        make(map[string]map[proto.ChunkServerID]struct{}),
		csUnstableThreshold:   opt.ChunkserverUnstableThreshold,
		hostUnstableThreshold: opt.ServerUnstableThreshold,
	}
}

// SetHost records which host a chunk server lives on, so a later timeout
// can be attributed to the right host bucket. Call this whenever the
// metadata cache learns of a chunk server's endpoint.
func (u *UnstableTracker) SetHost(cs proto.ChunkServerID, hostIP string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.hostOf[cs] = hostIP
}

// ClearTimeout resets the timeout count for cs to zero, called on any
// non-transport response (spec §4.3: "on any non-transport response,
// clear").
func (u *UnstableTracker) ClearTimeout(cs proto.ChunkServerID) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.clearLocked(cs)
}

func (u *UnstableTracker) clearLocked(cs proto.ChunkServerID) {
	delete(u.timeoutCount, cs)
	if host, ok := u.hostOf[cs]; ok {
		if set, ok := u.unstableOnHost[host]; ok {
			delete(set, cs)
		}
	}
}

// Reset is an alias for ClearTimeout.
func (u *UnstableTracker) Reset(cs proto.ChunkServerID) {
	u.ClearTimeout(cs)
}

// OnTimeout increments cs's timeout count and returns the resulting
// UnstableState, per the thresholding rule in spec §4.3.
func (u *UnstableTracker) OnTimeout(cs proto.ChunkServerID) UnstableState {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.timeoutCount[cs]++
	count := u.timeoutCount[cs]
	if count < u.csUnstableThreshold {
		return NoUnstable
	}

	host := u.hostOf[cs]
	set, ok := u.unstableOnHost[host]
	if !ok {
		set = make(map[proto.ChunkServerID]struct{})
		u.unstableOnHost[host] = set
	}
	set[cs] = struct{}{}

	if host != "" && uint32(len(set)) >= u.hostUnstableThreshold {
		return ServerUnstable
	}
	return ChunkServerUnstable
}

// ChunkServersOnHost returns the chunk servers currently unstable on host,
// used to mark every one of them unstable in the metadata cache when the
// tracker reports ServerUnstable.
func (u *UnstableTracker) ChunkServersOnHost(host string) []proto.ChunkServerID {
	u.mu.Lock()
	defer u.mu.Unlock()
	set := u.unstableOnHost[host]
	out := make([]proto.ChunkServerID, 0, len(set))
	for cs := range set {
		out = append(out, cs)
	}
	return out
}

// HostOf returns the host a chunk server is known to live on, or "" if
// unknown.
func (u *UnstableTracker) HostOf(cs proto.ChunkServerID) string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.hostOf[cs]
}
