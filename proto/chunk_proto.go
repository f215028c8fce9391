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

// Package proto is the wire vocabulary shared between the chunk client
// and the chunk servers it dispatches to: operation codes, application
// status codes, and the identifiers that name a replicated chunk.
package proto

import "fmt"

// OpType enumerates the chunk-level operations the engine can dispatch,
// per the RequestContext operation kind.
type OpType uint8

const (
	OpRead OpType = iota
	OpWrite
	OpReadSnapshot
	OpDeleteSnapshotOrCorrectSn
	OpGetChunkInfo
	OpCreateCloneChunk
	OpRecoverChunk
	OpFlush
	OpDiscard
)

var opTypeNames = [...]string{
	"READ", "WRITE", "READ_SNAPSHOT", "DELETE_SNAPSHOT_OR_CORRECT_SN",
	"GET_CHUNK_INFO", "CREATE_CLONE_CHUNK", "RECOVER_CHUNK", "FLUSH", "DISCARD",
}

func (o OpType) String() string {
	if int(o) < len(opTypeNames) {
		return opTypeNames[o]
	}
	return fmt.Sprintf("OpType(%d)", o)
}

// Status is the application-level result reported in a chunk server
// response, as distinct from the transport-level outcome of the RPC
// itself (see TransportStatus).
type Status int32

const (
	StatusSuccess Status = iota
	StatusRedirected
	StatusCopysetNotExist
	StatusChunkNotExist
	StatusInvalidRequest
	StatusBackward
	StatusChunkExist
	StatusOverload
	StatusEpochTooOld
	// StatusUnknown is never sent on the wire; the completion handler
	// records it for attempts that failed at the transport level. Status
	// codes it doesn't recognize keep their raw value, take the
	// generic-retry path, and print as UNKNOWN via String().
	StatusUnknown Status = -1
)

var statusNames = map[Status]string{
	StatusSuccess:         "SUCCESS",
	StatusRedirected:      "REDIRECTED",
	StatusCopysetNotExist: "COPYSET_NOTEXIST",
	StatusChunkNotExist:   "CHUNK_NOTEXIST",
	StatusInvalidRequest:  "INVALID_REQUEST",
	StatusBackward:        "BACKWARD",
	StatusChunkExist:      "CHUNK_EXIST",
	StatusOverload:        "OVERLOAD",
	StatusEpochTooOld:     "EPOCH_TOO_OLD",
	StatusUnknown:         "UNKNOWN",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return statusNames[StatusUnknown]
}

// TransportStatus is the outcome of the RPC attempt itself, independent
// of what the chunk server's application logic decided.
type TransportStatus int32

const (
	TransportOK TransportStatus = iota
	TransportTimeout
	// TransportOther covers every transport failure that isn't a timeout:
	// connection refused, reset, EOF, DNS failure, and so on. All of
	// these are generic-retryable per spec §4.5.1.
	TransportOther
)

func (t TransportStatus) String() string {
	switch t {
	case TransportOK:
		return "OK"
	case TransportTimeout:
		return "TIMEOUT"
	default:
		return "TRANSPORT_ERROR"
	}
}

// ChunkIdInfo identifies a replicated data group and the chunk within it.
// Immutable for the lifetime of a request.
type ChunkIdInfo struct {
	LogicalPoolID uint32
	CopysetID     uint32
	ChunkID       uint64
}

func (c ChunkIdInfo) String() string {
	return fmt.Sprintf("lpid(%d)cpid(%d)chunkid(%d)", c.LogicalPoolID, c.CopysetID, c.ChunkID)
}

// CopysetKey is the lookup key used by the metadata cache; it deliberately
// excludes ChunkID because leadership is a copyset-wide property.
type CopysetKey struct {
	LogicalPoolID uint32
	CopysetID     uint32
}

func (c ChunkIdInfo) Copyset() CopysetKey {
	return CopysetKey{LogicalPoolID: c.LogicalPoolID, CopysetID: c.CopysetID}
}

func (k CopysetKey) String() string {
	return fmt.Sprintf("lpid(%d)cpid(%d)", k.LogicalPoolID, k.CopysetID)
}

// SourceInfo is the optional clone-source hint carried by read/write
// requests against a chunk that may still be backed by its clone source.
type SourceInfo struct {
	CloneFileSource string
	CloneFileOffset uint64
}

// ChunkInfoDetail is populated by a successful GET_CHUNK_INFO response.
type ChunkInfoDetail struct {
	ChunkSn []uint64
}

// ChunkServerID identifies one chunk server within a copyset.
type ChunkServerID uint32

// CloneSourceLocation names a clone source chunk for CreateCloneChunk.
type CloneSourceLocation string
