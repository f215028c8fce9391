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
	"encoding/binary"
	"errors"
	"io"
	"net"
	"time"

	"github.com/opencurve/curvebs-client/proto"
	"github.com/opencurve/curvebs-client/util/connpool"
)

// RPCResponse is what a ChunkServerTransport hands back for a completed
// (non-transport-failed) attempt. The completion handler classifies it
// per spec §4.5.2.
type RPCResponse struct {
	Status proto.Status

	// RedirectHint is the textual endpoint carried by a REDIRECTED (or
	// redirected GET_CHUNK_INFO) response body, per spec §6. Empty if the
	// response carried no hint.
	RedirectHint string

	// Epoch is the chunk server's authoritative structural epoch for the
	// copyset, returned on every response so the metadata cache can stay
	// current even on a success (spec §3's "epoch number (monotonic on
	// structural change)").
	Epoch uint64

	ReadData  []byte
	ChunkInfo *proto.ChunkInfoDetail
}

// ErrRPCTimeout is the sentinel a ChunkServerTransport.Send implementation
// should wrap (via errors.Is) to signal a transport-level timeout, as
// distinct from every other transport failure (spec §4.5.1/§6).
var ErrRPCTimeout = errors.New("chunkclient: rpc timed out")

// ChunkServerTransport is the transport-library collaborator the
// dispatch client sends one RPC attempt through; it never retries.
type ChunkServerTransport interface {
	Send(ctx context.Context, endpoint string, req *RequestContext) (*RPCResponse, error)
}

// connpoolTransport is the concrete transport: a length-prefixed frame
// over a pooled TCP connection, adapted from the teacher's
// util/connpool usage in sdk/meta/conn.go. The wire encoding here is
// intentionally minimal (op byte + identifiers) since the real chunk
// server protocol is out of scope (spec §1); this exists to exercise
// connpool as a real transport rather than stub it out entirely.
type connpoolTransport struct {
	pool *connpool.ConnectPool
}

// NewConnpoolTransport builds a transport backed by a shared connection
// pool, one pool entry per chunk-server endpoint.
func NewConnpoolTransport(pool *connpool.ConnectPool) ChunkServerTransport {
	return &connpoolTransport{pool: pool}
}

func (t *connpoolTransport) Send(ctx context.Context, endpoint string, req *RequestContext) (*RPCResponse, error) {
	conn, err := t.pool.GetConnect(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	if dl, ok := ctx.Deadline(); ok {
		conn.SetDeadline(dl)
	}

	hdr := make([]byte, 29)
	hdr[0] = byte(req.OpType)
	binary.BigEndian.PutUint32(hdr[1:5], req.Idinfo.LogicalPoolID)
	binary.BigEndian.PutUint32(hdr[5:9], req.Idinfo.CopysetID)
	binary.BigEndian.PutUint64(hdr[9:17], req.FileId)
	binary.BigEndian.PutUint64(hdr[17:25], req.Epoch)
	binary.BigEndian.PutUint32(hdr[25:29], uint32(req.Length))

	if _, err := conn.Write(hdr); err != nil {
		t.pool.PutConnectWithErr(conn, err)
		return nil, classifyNetErr(err)
	}
	if len(req.WriteData) > 0 {
		if _, err := conn.Write(req.WriteData); err != nil {
			t.pool.PutConnectWithErr(conn, err)
			return nil, classifyNetErr(err)
		}
	}

	respHdr := make([]byte, 12)
	if _, err := io.ReadFull(conn, respHdr); err != nil {
		t.pool.PutConnectWithErr(conn, err)
		return nil, classifyNetErr(err)
	}
	t.pool.PutConnect(conn, false)

	status := proto.Status(int32(binary.BigEndian.Uint32(respHdr[0:4])))
	epoch := binary.BigEndian.Uint64(respHdr[4:12])
	return &RPCResponse{Status: status, Epoch: epoch}, nil
}

// ClearConnectPool satisfies the completion handler's poolDropper hook:
// once a chunk server is declared unstable, any connections pooled for
// it are dropped rather than reused against a server the engine has
// already decided to avoid.
func (t *connpoolTransport) ClearConnectPool(endpoint string) {
	t.pool.ClearConnectPool(endpoint)
}

func classifyNetErr(err error) error {
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return ErrRPCTimeout
	}
	return err
}

// DialTimeoutFor is a three-second dial timeout kept separate from
// nextTimeoutMS. Nothing in this package reads it: each attempt's
// deadline, dial included, comes from the closure's NextTimeoutMS.
const DialTimeoutFor = 3 * time.Second
