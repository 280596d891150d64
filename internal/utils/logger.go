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
	"log/slog"
	"os"

	"github.com/go-logr/logr"
)

// TracerName identifies the single named tracing/logging source the
// session store exposes, per the spec's external-interfaces section.
const TracerName = "github.com/Azure/cosmos-sessionstore"

// DefaultLogger returns the process-wide fallback logger: structured JSON
// to stderr, source location included.
func DefaultLogger() logr.Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		AddSource: true,
	})
	return logr.FromSlogHandler(handler)
}
