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

// Package sched is the retry-scheduling primitive the completion handler
// sleeps on between attempts. A backoff sleep must never park the
// transport thread that delivered the RPC (spec §5), so AfterFunc here
// plays the role the C++ source gives to a cooperative user-space
// scheduler: the goroutine that was running the completion closure
// returns immediately, and Go's runtime resumes the retry on a fresh
// goroutine once the timer fires, never pinning an OS thread for the
// duration of the sleep.
package sched

import (
	"sync/atomic"
	"time"
)

// Queue tracks how many backoff sleeps are currently pending, purely for
// observability (exposed to the metrics sink as a gauge).
type Queue struct {
	pending int64
}

// NewQueue returns an empty timer queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Pending returns the number of sleeps currently scheduled.
func (q *Queue) Pending() int64 {
	return atomic.LoadInt64(&q.pending)
}

// AfterFunc schedules fn to run after d elapses, without blocking the
// calling goroutine. fn runs on its own goroutine, same as the completion
// handler's original call stack would have if it slept in place.
func (q *Queue) AfterFunc(d time.Duration, fn func()) *time.Timer {
	atomic.AddInt64(&q.pending, 1)
	return time.AfterFunc(d, func() {
		atomic.AddInt64(&q.pending, -1)
		fn()
	})
}
