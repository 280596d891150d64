// Copyright 2025 Microsoft Corporation
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package utils

import (
	"context"
	"strings"

	"github.com/go-logr/logr"
)

// ContextWithLogger attaches a logger to ctx so it can be recovered
// anywhere downstream with LoggerFromContext.
func ContextWithLogger(ctx context.Context, logger logr.Logger) context.Context {
	return logr.NewContext(ctx, logger)
}

// LoggerFromContext recovers the logger attached to ctx, falling back
// to DefaultLogger (and logging the failure) if none was attached.
func LoggerFromContext(ctx context.Context) logr.Logger {
	logger, err := logr.FromContext(ctx)
	if err != nil {
		logger = DefaultLogger()
		logger.V(1).Info("no logger in context, using default")
	}
	return logger
}

// LogValues is a slice of key/value pairs for use with logger.WithValues.
// Every store-call log line in this module is built from one of these so
// the set of indexed fields stays consistent across operations.
type LogValues []any

// AddSessionID adds the "session_id" key.
func (lv LogValues) AddSessionID(value string) LogValues {
	return append(lv, "session_id", value)
}

// AddOperation adds the "operation" key with the lowercased value.
func (lv LogValues) AddOperation(value string) LogValues {
	return append(lv, "operation", strings.ToLower(value))
}

// AddStatusCode adds the "status_code" key.
func (lv LogValues) AddStatusCode(value int) LogValues {
	return append(lv, "status_code", value)
}

// AddRequestCharge adds the "request_charge" key (Cosmos request units).
func (lv LogValues) AddRequestCharge(value float32) LogValues {
	return append(lv, "request_charge", value)
}

// AddElapsedMillis adds the "elapsed_ms" key.
func (lv LogValues) AddElapsedMillis(value int64) LogValues {
	return append(lv, "elapsed_ms", value)
}

// AddLockID adds the "lock_id" key (the ETag credential for a held lock).
func (lv LogValues) AddLockID(value string) LogValues {
	return append(lv, "lock_id", value)
}

// AddTaskID adds the "task_id" key, correlating a background queue
// submission with the log lines the task emits once a worker picks it up.
func (lv LogValues) AddTaskID(value string) LogValues {
	return append(lv, "task_id", value)
}
