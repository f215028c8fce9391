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
	"time"

	"github.com/opencurve/curvebs-client/proto"
	"github.com/opencurve/curvebs-client/util/errors"
	"github.com/opencurve/curvebs-client/util/log"
)

// attempt issues one RPC for rc against the copyset's cached leader and
// routes the outcome to the completion handler. It never retries itself;
// that is the completion handler's job (spec §4.6).
func (e *Engine) attempt(rc *RequestClosure) {
	copyset := rc.Request.Idinfo.Copyset()

	if rc.Request.OpType == proto.OpWrite {
		if known := e.metacache.GetEpoch(copyset); known > rc.Request.Epoch {
			log.LogWarnf("chunkclient: stale epoch req(%v) have(%d) known(%d)", rc.Request.RequestID, rc.Request.Epoch, known)
			rc.resetForAttempt()
			e.handleApplicationStatus(rc, &RPCResponse{Status: proto.StatusEpochTooOld, Epoch: known})
			return
		}
	}

	cs, endpoint, err := e.metacache.GetLeader(context.Background(), copyset, false)
	if err != nil || endpoint == "" {
		log.LogWarnf("chunkclient: no known leader for %v (req %v): %v", copyset, rc.Request.RequestID, err)
		e.onAttemptDone(rc, nil, errors.Trace(err, "no known leader for %v", copyset))
		return
	}
	rc.ChunkServerID = cs
	rc.Endpoint = endpoint

	timeoutMS := rc.NextTimeoutMS
	if timeoutMS <= 0 {
		timeoutMS = e.backoff.baseTimeoutMS
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeoutMS)*time.Millisecond)
	defer cancel()

	resp, sendErr := e.transport.Send(ctx, endpoint, rc.Request)
	e.onAttemptDone(rc, resp, sendErr)
}

// refreshLeader contacts the resolver for a fresh leader and sets
// rc.retryDirectly when the refresh yields a chunk server different from
// the one just attempted (spec §4.7).
func (e *Engine) refreshLeader(rc *RequestClosure) {
	copyset := rc.Request.Idinfo.Copyset()
	previous := rc.ChunkServerID

	newCS, _, err := e.metacache.GetLeader(context.Background(), copyset, true)
	if err != nil {
		log.LogWarnf("chunkclient: RefreshLeader failed for %v: %v", copyset, err)
		rc.retryDirectly = false
		return
	}
	rc.retryDirectly = newCS != previous
}
