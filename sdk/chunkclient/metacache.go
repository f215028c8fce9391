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
	"context"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/sync/singleflight"

	curveerrors "github.com/opencurve/curvebs-client/util/errors"
	"github.com/opencurve/curvebs-client/util/log"
	"github.com/opencurve/curvebs-client/proto"
)

// LeaderResolver is the out-of-scope "metadata service discovery"
// collaborator (spec §1/§6): given a copyset, it asks the authoritative
// source (an MDS, in the original system) which chunk server currently
// leads it.
type LeaderResolver interface {
	ResolveLeader(ctx context.Context, key proto.CopysetKey) (cs proto.ChunkServerID, endpoint string, hostIP string, err error)
}

// LeaderCacheEntry is one (logical-pool, copyset) -> leader mapping.
// leaderMayChange is true from the moment a redirect/timeout is observed
// until a fresh GetLeader resolves it, per spec §3's invariant.
type LeaderCacheEntry struct {
	mu              sync.RWMutex
	chunkServerID   proto.ChunkServerID
	endpoint        string
	hostIP          string
	leaderMayChange bool

	// epoch is the highest structural epoch this process has observed
	// for the copyset, from either a successful response or an
	// EPOCH_TOO_OLD rejection. It lets the dispatcher catch a stale
	// write locally, before spending an RPC on it.
	epoch uint64
}

func (e *LeaderCacheEntry) snapshot() (proto.ChunkServerID, string, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.chunkServerID, e.endpoint, e.leaderMayChange
}

// MetadataCache maps (logical-pool, copyset) to the current leader, per
// spec §4.4. Entries live in an LRU so a long-running client process
// doesn't grow the cache without bound; no lock here is ever held across
// an RPC or a sleep — resolution happens outside the cache's own locks.
type MetadataCache struct {
	cache    *lru.Cache
	resolver LeaderResolver

	// resolveGroup collapses concurrent ResolveLeader calls for the same
	// copyset into one, the way the teacher's own volumeCache.UpdateVolume
	// (blobstore/shardnode/base/volume_cache.go) uses singleflight.Group
	// to dedup concurrent volume-info resolves.
	resolveGroup singleflight.Group

	// csIndex lets SetChunkserverUnstable find every copyset currently
	// led by a given chunk server without scanning the whole LRU.
	csIndexMu sync.Mutex
	csIndex   map[proto.ChunkServerID]map[proto.CopysetKey]struct{}

	latestFileSn int64 // atomic
}

// NewMetadataCache builds a cache bounding itself to capacity entries.
func NewMetadataCache(capacity int, resolver LeaderResolver) (*MetadataCache, error) {
	c, err := lru.New(capacity)
	if err != nil {
		return nil, err
	}
	return &MetadataCache{
		cache:    c,
		resolver: resolver,
		csIndex:  make(map[proto.ChunkServerID]map[proto.CopysetKey]struct{}),
	}, nil
}

func (m *MetadataCache) entry(key proto.CopysetKey) *LeaderCacheEntry {
	if v, ok := m.cache.Get(key); ok {
		return v.(*LeaderCacheEntry)
	}
	e := &LeaderCacheEntry{leaderMayChange: true}
	m.cache.Add(key, e)
	return e
}

func (m *MetadataCache) indexLocked(key proto.CopysetKey, cs proto.ChunkServerID) {
	m.csIndexMu.Lock()
	defer m.csIndexMu.Unlock()
	set, ok := m.csIndex[cs]
	if !ok {
		set = make(map[proto.CopysetKey]struct{})
		m.csIndex[cs] = set
	}
	set[key] = struct{}{}
}

// resolvedLeader is the singleflight.Do result shape for one ResolveLeader
// call, since the call has three return values that a bare interface{}
// can't carry directly.
type resolvedLeader struct {
	cs       proto.ChunkServerID
	endpoint string
	hostIP   string
}

// GetLeader returns the cached (or freshly resolved, if refresh is true
// or nothing is cached yet) leader for key. Concurrent callers resolving
// the same key are collapsed into a single ResolveLeader call via
// resolveGroup, the way volumeCache.UpdateVolume dedups concurrent
// volume-info fetches for the same vid.
func (m *MetadataCache) GetLeader(ctx context.Context, key proto.CopysetKey, refresh bool) (cs proto.ChunkServerID, endpoint string, err error) {
	e := m.entry(key)
	cs, endpoint, mayChange := e.snapshot()
	if !refresh && endpoint != "" && !mayChange {
		return cs, endpoint, nil
	}

	v, rerr, _ := m.resolveGroup.Do(key.String(), func() (interface{}, error) {
		newCS, newEndpoint, hostIP, rerr := m.resolver.ResolveLeader(ctx, key)
		if rerr != nil {
			return nil, rerr
		}

		e.mu.Lock()
		e.chunkServerID = newCS
		e.endpoint = newEndpoint
		e.hostIP = hostIP
		e.leaderMayChange = false
		e.mu.Unlock()

		m.indexLocked(key, newCS)
		return resolvedLeader{cs: newCS, endpoint: newEndpoint, hostIP: hostIP}, nil
	})
	if rerr != nil {
		log.LogWarnf("metacache: ResolveLeader failed copyset(%v) err(%v)", key, rerr)
		return cs, endpoint, curveerrors.Trace(rerr, "ResolveLeader failed for %v", key)
	}

	resolved := v.(resolvedLeader)
	return resolved.cs, resolved.endpoint, nil
}

// UpdateLeader installs a hinted leader endpoint, e.g. parsed out of a
// REDIRECTED response body, without contacting the authority.
func (m *MetadataCache) UpdateLeader(key proto.CopysetKey, cs proto.ChunkServerID, endpoint, hostIP string) {
	e := m.entry(key)
	e.mu.Lock()
	e.chunkServerID = cs
	e.endpoint = endpoint
	e.hostIP = hostIP
	e.leaderMayChange = false
	e.mu.Unlock()
	m.indexLocked(key, cs)
}

// IsLeaderMayChange reports whether the cached leader for key is
// suspected stale.
func (m *MetadataCache) IsLeaderMayChange(key proto.CopysetKey) bool {
	_, _, mayChange := m.entry(key).snapshot()
	return mayChange
}

// markMayChange flips leaderMayChange on, used by both
// SetChunkserverUnstable and the completion handler's timeout path.
func (m *MetadataCache) markMayChange(key proto.CopysetKey) {
	e := m.entry(key)
	e.mu.Lock()
	e.leaderMayChange = true
	e.mu.Unlock()
}

// MarkMayChange is the exported form used by the completion handler
// directly against a known copyset (on a timeout below the unstable
// threshold) without
// going through a chunk-server-wide scan.
func (m *MetadataCache) MarkMayChange(key proto.CopysetKey) {
	m.markMayChange(key)
}

// SetChunkserverUnstable marks every cached copyset currently led by cs
// as leaderMayChange, per the invariant in spec §4.4: after this call,
// every copyset whose cached leader equals cs has leaderMayChange=true.
func (m *MetadataCache) SetChunkserverUnstable(cs proto.ChunkServerID) {
	m.csIndexMu.Lock()
	keys := make([]proto.CopysetKey, 0, len(m.csIndex[cs]))
	for k := range m.csIndex[cs] {
		keys = append(keys, k)
	}
	m.csIndexMu.Unlock()

	for _, k := range keys {
		m.markMayChange(k)
	}
}

// SetServerUnstable marks each chunk server in chunkServersOnHost as
// unstable. The completion handler supplies that list from
// UnstableTracker.ChunkServersOnHost, which holds only the chunk servers
// on hostIP that have themselves crossed the per-chunk-server timeout
// threshold; other chunk servers on the same host are not marked, and
// their copysets keep their cached leader.
func (m *MetadataCache) SetServerUnstable(hostIP string, chunkServersOnHost []proto.ChunkServerID) {
	for _, cs := range chunkServersOnHost {
		m.SetChunkserverUnstable(cs)
	}
}

// GetEpoch returns the highest structural epoch observed so far for key;
// zero if none has been observed yet.
func (m *MetadataCache) GetEpoch(key proto.CopysetKey) uint64 {
	e := m.entry(key)
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.epoch
}

// SetEpoch records an observed epoch for key, keeping the highest value
// seen (a structural epoch only ever moves forward).
func (m *MetadataCache) SetEpoch(key proto.CopysetKey, epoch uint64) {
	e := m.entry(key)
	e.mu.Lock()
	if epoch > e.epoch {
		e.epoch = epoch
	}
	e.mu.Unlock()
}

// GetLatestFileSn returns the most recently observed sequence number for
// the file this cache's requests belong to, used to refresh a WRITE's
// sequence on BACKWARD.
func (m *MetadataCache) GetLatestFileSn() uint64 {
	return uint64(atomic.LoadInt64(&m.latestFileSn))
}

// SetLatestFileSn records a sequence number observed to be at least as
// new as any previously recorded one.
func (m *MetadataCache) SetLatestFileSn(sn uint64) {
	for {
		cur := atomic.LoadInt64(&m.latestFileSn)
		if int64(sn) <= cur {
			return
		}
		if atomic.CompareAndSwapInt64(&m.latestFileSn, cur, int64(sn)) {
			return
		}
	}
}
