// Copyright 2018 The CubeFS Authors.
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

// Package connpool is the transport-library collaborator the dispatch
// client sends chunk RPCs through (spec §1 treats the transport library
// itself as out of scope; this is the thin, real implementation behind
// that boundary). One Pool is kept per chunk-server endpoint, since that
// is the granularity at which the engine's own unstable-state tracker
// (sdk/chunkclient.UnstableTracker) reasons about a server going bad:
// when a chunk server is declared unstable the caller can drop its
// whole connection pool rather than let the engine keep handing out
// connections to a server it has already decided to avoid.
package connpool

import (
	"context"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/opencurve/curvebs-client/util/log"
)

// Object is one pooled TCP connection plus the time it went idle.
type Object struct {
	conn *net.TCPConn
	idle int64
}

const (
	defaultIdleConnTimeout = 30 * time.Second
	defaultConnectTimeout  = 1 * time.Second
)

// ConnectPool keeps one Pool per chunk-server endpoint. GetConnect and
// PutConnect are the only calls a ChunkServerTransport needs; the rest
// of the surface exists for observability and for the engine's
// unstable-chunkserver path to drop a server's connections outright.
type ConnectPool struct {
	sync.RWMutex
	pools           map[string]*Pool
	mincap          int
	maxcap          int
	idleConnTimeout time.Duration
	connectTimeout  time.Duration
	closeCh         chan struct{}
	closeOnce       sync.Once
	wg              sync.WaitGroup
}

func NewConnectPool() *ConnectPool {
	return NewConnectPoolWithTimeoutAndCap(5, 80, defaultIdleConnTimeout, defaultConnectTimeout)
}

func NewConnectPoolWithTimeout(idleConnTimeout, connectTimeout time.Duration) *ConnectPool {
	return NewConnectPoolWithTimeoutAndCap(5, 80, idleConnTimeout, connectTimeout)
}

func NewConnectPoolWithTimeoutAndCap(min, max int, idleConnTimeout, connectTimeout time.Duration) *ConnectPool {
	cp := &ConnectPool{
		pools:           make(map[string]*Pool),
		mincap:          min,
		maxcap:          max,
		idleConnTimeout: idleConnTimeout,
		connectTimeout:  connectTimeout,
		closeCh:         make(chan struct{}),
	}
	cp.wg.Add(1)
	go cp.autoRelease()
	return cp
}

func (cp *ConnectPool) poolFor(targetAddr string) *Pool {
	cp.RLock()
	pool, ok := cp.pools[targetAddr]
	cp.RUnlock()
	if ok {
		return pool
	}

	cp.Lock()
	pool, ok = cp.pools[targetAddr]
	if !ok {
		pool = newPool(cp.mincap, cp.maxcap, cp.idleConnTimeout, cp.connectTimeout, targetAddr)
		cp.pools[targetAddr] = pool
	}
	cp.Unlock()
	return pool
}

// GetConnect returns a pooled connection to targetAddr, dialing a new one
// if the pool is empty. ctx governs only the dial — once a connection is
// in hand, the caller (the transport) is responsible for setting its own
// read/write deadline from the request's own timeout.
func (cp *ConnectPool) GetConnect(ctx context.Context, targetAddr string) (*net.TCPConn, error) {
	return cp.poolFor(targetAddr).get(ctx)
}

// PutConnect returns c to its pool, or closes it outright when
// forceClose is set (the transport does this on any write/read error,
// since a connection that failed mid-RPC is not safe to reuse).
func (cp *ConnectPool) PutConnect(c *net.TCPConn, forceClose bool) {
	if c == nil {
		return
	}
	if forceClose {
		_ = c.Close()
		return
	}
	select {
	case <-cp.closeCh:
		_ = c.Close()
		return
	default:
	}
	addr := c.RemoteAddr().String()
	cp.RLock()
	pool, ok := cp.pools[addr]
	cp.RUnlock()
	if !ok {
		_ = c.Close()
		return
	}
	pool.put(&Object{conn: c, idle: time.Now().UnixNano()})
}

// PutConnectWithErr is PutConnect plus the teacher's own server-restart
// detection: a broken pipe or reset connection on one socket usually
// means every other pooled connection to that endpoint is equally dead,
// so the whole pool for that address is dropped rather than leaking
// sockets the far end has already closed.
func (cp *ConnectPool) PutConnectWithErr(c *net.TCPConn, err error) {
	cp.PutConnect(c, err != nil)
	if err == nil {
		return
	}
	remoteAddr := "<nil>"
	if c != nil {
		remoteAddr = c.RemoteAddr().String()
	}
	errStr := strings.ToLower(err.Error())
	if strings.Contains(errStr, "broken pipe") || strings.Contains(errStr, "connection reset by peer") {
		log.LogWarnf("connpool: dropping pool for %s after %v", remoteAddr, err)
		cp.ClearConnectPool(remoteAddr)
	}
}

func (cp *ConnectPool) UpdateTimeout(idleConnTimeout, connectTimeout time.Duration) {
	cp.Lock()
	defer cp.Unlock()
	cp.idleConnTimeout = idleConnTimeout
	cp.connectTimeout = connectTimeout
	for _, pool := range cp.pools {
		pool.setTimeouts(idleConnTimeout, connectTimeout)
	}
}

// ClearConnectPool drops every idle connection held for addr. Called
// both on the broken-pipe signal above and directly by the engine when
// the unstable-state tracker declares a chunk server (or every chunk
// server on a host) unstable.
func (cp *ConnectPool) ClearConnectPool(addr string) {
	cp.RLock()
	pool, ok := cp.pools[addr]
	cp.RUnlock()
	if !ok {
		return
	}
	pool.releaseAll()
}

// PoolDepth reports how many idle connections are currently pooled for
// addr.
func (cp *ConnectPool) PoolDepth(addr string) int {
	cp.RLock()
	pool, ok := cp.pools[addr]
	cp.RUnlock()
	if !ok {
		return 0
	}
	return pool.depth()
}

func (cp *ConnectPool) autoRelease() {
	defer cp.wg.Done()
	timer := time.NewTimer(time.Second)
	defer timer.Stop()
	for {
		select {
		case <-cp.closeCh:
			return
		case <-timer.C:
		}
		cp.RLock()
		pools := make([]*Pool, 0, len(cp.pools))
		for _, pool := range cp.pools {
			pools = append(pools, pool)
		}
		cp.RUnlock()
		for _, pool := range pools {
			pool.evictExpired()
		}
		timer.Reset(time.Second)
	}
}

func (cp *ConnectPool) Close() {
	cp.closeOnce.Do(func() {
		close(cp.closeCh)
		cp.wg.Wait()
		cp.Lock()
		pools := cp.pools
		cp.pools = make(map[string]*Pool)
		cp.Unlock()
		for _, pool := range pools {
			pool.releaseAll()
		}
	})
}

// Pool is the set of idle connections kept for one chunk-server endpoint.
type Pool struct {
	objects         chan *Object
	mincap          int
	maxcap          int
	target          string
	idleConnTimeout time.Duration
	connectTimeout  time.Duration

	mu sync.RWMutex
}

func newPool(min, max int, idleConnTimeout, connectTimeout time.Duration, target string) *Pool {
	p := &Pool{
		mincap:          min,
		maxcap:          max,
		target:          target,
		objects:         make(chan *Object, max),
		idleConnTimeout: idleConnTimeout,
		connectTimeout:  connectTimeout,
	}
	p.warm()
	return p
}

// warm dials mincap connections up front so the first few RPCs to a
// freshly-discovered leader don't each pay a dial's worth of latency.
// Failures are logged and otherwise ignored: the pool falls back to
// dialing on demand in get.
func (p *Pool) warm() {
	for i := 0; i < p.mincap; i++ {
		conn, err := p.dial(context.Background())
		if err != nil {
			log.LogWarnf("connpool: warm dial to %s failed: %v", p.target, err)
			return
		}
		p.put(&Object{conn: conn, idle: time.Now().UnixNano()})
	}
}

func (p *Pool) setTimeouts(idleConnTimeout, connectTimeout time.Duration) {
	p.mu.Lock()
	p.idleConnTimeout = idleConnTimeout
	p.connectTimeout = connectTimeout
	p.mu.Unlock()
}

func (p *Pool) dial(ctx context.Context) (*net.TCPConn, error) {
	p.mu.RLock()
	timeout := p.connectTimeout
	p.mu.RUnlock()

	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", p.target)
	if err != nil {
		return nil, err
	}
	tcpConn := conn.(*net.TCPConn)
	tcpConn.SetKeepAlive(true)
	tcpConn.SetNoDelay(true)
	return tcpConn, nil
}

func (p *Pool) put(o *Object) {
	select {
	case p.objects <- o:
	default:
		if o.conn != nil {
			_ = o.conn.Close()
		}
	}
}

// get returns a pooled, non-expired connection, or dials a fresh one
// honoring ctx (so a request's own RPC deadline bounds the dial too).
func (p *Pool) get(ctx context.Context) (*net.TCPConn, error) {
	p.mu.RLock()
	idleConnTimeout := p.idleConnTimeout
	p.mu.RUnlock()

	for {
		select {
		case o := <-p.objects:
			if time.Now().UnixNano()-o.idle > int64(idleConnTimeout) {
				_ = o.conn.Close()
				continue
			}
			return o.conn, nil
		default:
			return p.dial(ctx)
		}
	}
}

func (p *Pool) depth() int {
	return len(p.objects)
}

func (p *Pool) evictExpired() {
	p.mu.RLock()
	idleConnTimeout := p.idleConnTimeout
	p.mu.RUnlock()

	n := len(p.objects)
	for i := 0; i < n; i++ {
		select {
		case o := <-p.objects:
			if time.Now().UnixNano()-o.idle > int64(idleConnTimeout) {
				_ = o.conn.Close()
			} else {
				p.put(o)
			}
		default:
			return
		}
	}
}

func (p *Pool) releaseAll() {
	n := len(p.objects)
	for i := 0; i < n; i++ {
		select {
		case o := <-p.objects:
			_ = o.conn.Close()
		default:
			return
		}
	}
}
