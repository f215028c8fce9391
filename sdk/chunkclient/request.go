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
	"github.com/google/uuid"

	"github.com/opencurve/curvebs-client/proto"
)

// RequestContext carries everything a single chunk-server operation needs
// to be dispatched and, if necessary, retried against a different replica.
// One RequestContext is built per caller-visible operation and is reused,
// unmodified except where noted, across every retry attempt.
type RequestContext struct {
	OpType proto.OpType
	Idinfo proto.ChunkIdInfo

	// FileId names the file this chunk belongs to; Epoch is that file's
	// structural-change counter, bumped by the metadata service whenever
	// the file's copyset layout changes (e.g. a clone). A WRITE carrying
	// a stale Epoch is rejected with EPOCH_TOO_OLD (spec §3/§4.5.7).
	FileId uint64
	Epoch  uint64

	Offset uint64
	Length uint64

	// WriteData is the payload for a WRITE; nil otherwise.
	WriteData []byte
	// ReadBuffer is where a READ/READ_SNAPSHOT writes its result; nil
	// otherwise. The caller owns this buffer for the lifetime of the
	// request.
	ReadBuffer []byte

	SeqNum       uint64
	CorrectedSeq uint64

	Source *proto.SourceInfo

	// ChunkSize/Location are only meaningful for CREATE_CLONE_CHUNK.
	ChunkSize int64
	Location  proto.CloneSourceLocation

	RequestID uuid.UUID
}

// NewRequestContext assigns a fresh RequestID; callers build the rest of
// the struct with field literals since the operation-specific fields vary
// per OpType.
func NewRequestContext(op proto.OpType, id proto.ChunkIdInfo) *RequestContext {
	return &RequestContext{
		OpType:    op,
		Idinfo:    id,
		RequestID: uuid.New(),
	}
}
