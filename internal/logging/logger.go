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

// Package logging provides the structured logger shared by every
// geoconvert component.
package logging

import (
	"io"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

const (
	LogFormatLogfmt = "logfmt"
	LogFormatJSON   = "json"
)

const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// ValidLevels lists the values accepted by NewLogger, in the order they
// should be presented in CLI/env help text.
var ValidLevels = []string{LevelDebug, LevelInfo, LevelWarn, LevelError}

// NewLogger returns a log.Logger that prints in the provided format at the
// provided level with a UTC timestamp and the caller of the log entry. If
// non-empty, the component name is appended as a field to all log lines.
// Panics if logLevel is not one of ValidLevels; validate it with
// ParseLevel before calling this.
func NewLogger(logLevel, logFormat, component string, w io.Writer) log.Logger {
	var (
		logger log.Logger
		lvl    level.Option
	)

	switch logLevel {
	case LevelError:
		lvl = level.AllowError()
	case LevelWarn:
		lvl = level.AllowWarn()
	case LevelInfo:
		lvl = level.AllowInfo()
	case LevelDebug:
		lvl = level.AllowDebug()
	default:
		panic("logging: unexpected log level " + logLevel)
	}

	logger = log.NewLogfmtLogger(log.NewSyncWriter(w))
	if logFormat == LogFormatJSON {
		logger = log.NewJSONLogger(log.NewSyncWriter(w))
	}

	logger = level.NewFilter(logger, lvl)

	if component != "" {
		logger = log.With(logger, "component", component)
	}

	return log.With(logger, "ts", log.DefaultTimestampUTC, "caller", log.DefaultCaller)
}

// ParseLevel validates s against ValidLevels.
func ParseLevel(s string) (string, bool) {
	for _, v := range ValidLevels {
		if v == s {
			return v, true
		}
	}
	return "", false
}
