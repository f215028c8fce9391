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

// Package errors gives request-path code a single, loggable error type
// instead of reaching for fmt.Errorf at every call site. Errors here are
// always logged and absorbed (spec: intermediate retry errors never
// short-circuit the retry loop) rather than propagated to the caller, so
// there is no need for sentinel values or errors.Is matching beyond Cause.
package errors

import "fmt"

// Error carries a message plus an optional wrapped cause, the way the
// teacher's own util/errors.Trace chains context onto an underlying error
// without losing it.
type Error struct {
	msg   string
	cause error
}

func (e *Error) Error() string {
	if e.cause == nil {
		return e.msg
	}
	return e.msg + ": " + e.cause.Error()
}

// Cause returns the wrapped error, or nil if this Error has none.
func (e *Error) Cause() error {
	return e.cause
}

// New builds an Error from a message, no wrapped cause.
func New(msg string) *Error {
	return &Error{msg: msg}
}

// NewErrorf builds an Error from a format string, no wrapped cause.
func NewErrorf(format string, args ...interface{}) *Error {
	return &Error{msg: fmt.Sprintf(format, args...)}
}

// Trace wraps err with additional context, formatted like the other
// Log*f helpers in this codebase.
func Trace(err error, format string, args ...interface{}) *Error {
	return &Error{msg: fmt.Sprintf(format, args...), cause: err}
}
