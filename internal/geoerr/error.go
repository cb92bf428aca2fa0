// Copyright 2020 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package geoerr defines the fixed error taxonomy every geoconvert
// component reports through, so the (excluded) HTTP layer has one place
// to translate kinds to status codes.
package geoerr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind is the fixed, user-visible error taxonomy.
type Kind string

const (
	InvalidInput    Kind = "invalid_input"
	QuotaExhausted  Kind = "quota_exhausted"
	SizeLimit       Kind = "size_limit"
	NotFound        Kind = "not_found"
	Forbidden       Kind = "forbidden"
	NotReady        Kind = "not_ready"
	Expired         Kind = "expired"
	Timeout         Kind = "timeout"
	UpstreamError   Kind = "upstream_error"
	ProcessingError Kind = "processing_error"
)

// Error is the error type returned across every component boundary. Trace
// carries a diagnostic trail that must never cross the (excluded) HTTP
// boundary unverified — callers there are responsible for stripping it
// outside of debug mode.
type Error struct {
	Kind    Kind
	Message string
	Trace   string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New builds a bare Error of the given kind.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches kind and message to cause, preserving it for Unwrap/Cause
// and recording cause's message in Trace.
func Wrap(cause error, kind Kind, format string, args ...interface{}) *Error {
	msg := fmt.Sprintf(format, args...)
	return &Error{
		Kind:    kind,
		Message: msg,
		Trace:   errors.Wrap(cause, msg).Error(),
		cause:   cause,
	}
}

// Is reports whether err is a *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

// KindOf extracts the Kind from err, defaulting to ProcessingError for
// anything not already a *Error — mirrors the "unrecoverable pipeline
// failure" clause of the error-handling design.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ProcessingError
}
