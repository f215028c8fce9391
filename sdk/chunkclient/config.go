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

// FailureRequestOption is the one-shot configuration consumed by the
// completion handler's retry policy. It is read-only after the Engine is
// constructed; nothing in this package ever mutates it (spec §5).
type FailureRequestOption struct {
	ChunkserverOPRetryIntervalUS                int64  `json:"chunkserverOPRetryIntervalUS"`
	ChunkserverMaxRetrySleepIntervalUS           int64  `json:"chunkserverMaxRetrySleepIntervalUS"`
	ChunkserverRPCTimeoutMS                      int64  `json:"chunkserverRPCTimeoutMS"`
	ChunkserverMaxRPCTimeoutMS                   int64  `json:"chunkserverMaxRPCTimeoutMS"`
	ChunkserverOPMaxRetry                        uint32 `json:"chunkserverOPMaxRetry"`
	ChunkserverMinRetryTimesForceTimeoutBackoff  uint32 `json:"chunkserverMinRetryTimesForceTimeoutBackoff"`
	ChunkserverSlowRequestThresholdMS            int64  `json:"chunkserverSlowRequestThresholdMS"`
	ChunkserverUnstableThreshold                 uint32 `json:"chunkserverUnstableThreshold"`
	ServerUnstableThreshold                      uint32 `json:"serverUnstableThreshold"`
	MaxInflightRequests                          int64  `json:"maxInflightRequests"`
}

// DefaultFailureRequestOption mirrors the values the original chunkserver
// client ships with: a 100ms base retry interval, a 1s base RPC timeout
// capped at 16s, and 3 attempts before forcing a timeout backoff.
func DefaultFailureRequestOption() FailureRequestOption {
	return FailureRequestOption{
		ChunkserverOPRetryIntervalUS:                 100000,
		ChunkserverMaxRetrySleepIntervalUS:            8000000,
		ChunkserverRPCTimeoutMS:                       1000,
		ChunkserverMaxRPCTimeoutMS:                    16000,
		ChunkserverOPMaxRetry:                         3,
		ChunkserverMinRetryTimesForceTimeoutBackoff:   3,
		ChunkserverSlowRequestThresholdMS:             10000,
		ChunkserverUnstableThreshold:                  10,
		ServerUnstableThreshold:                       3,
		MaxInflightRequests:                           4096,
	}
}

// BackoffParam precomputes the pow caps so TimeoutBackOff/OverLoadBackOff
// never need to guard against overflow on every call.
type BackoffParam struct {
	baseTimeoutMS  int64
	maxTimeoutMS   int64
	maxTimeoutPow  uint32

	baseIntervalUS   int64
	maxSleepIntervalUS int64
	maxOverloadPow   uint32
}

// NewBackoffParam derives maxTimeoutPow/maxOverloadPow from the option so
// that base << pow never needs a runtime overflow check: pow is capped at
// the point doubling would already exceed the ceiling.
func NewBackoffParam(opt FailureRequestOption) BackoffParam {
	return BackoffParam{
		baseTimeoutMS:      opt.ChunkserverRPCTimeoutMS,
		maxTimeoutMS:       opt.ChunkserverMaxRPCTimeoutMS,
		maxTimeoutPow:      powCap(opt.ChunkserverRPCTimeoutMS, opt.ChunkserverMaxRPCTimeoutMS),
		baseIntervalUS:     opt.ChunkserverOPRetryIntervalUS,
		maxSleepIntervalUS: opt.ChunkserverMaxRetrySleepIntervalUS,
		maxOverloadPow:     powCap(opt.ChunkserverOPRetryIntervalUS, opt.ChunkserverMaxRetrySleepIntervalUS),
	}
}

// powCap returns the largest pow such that base*2^pow <= cap, i.e. the
// point at which further doubling would only be clamped away anyway.
func powCap(base, cap int64) uint32 {
	if base <= 0 || cap <= base {
		return 0
	}
	var pow uint32
	for base<<(pow+1) <= cap && pow < 62 {
		pow++
	}
	return pow
}
