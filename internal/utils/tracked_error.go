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
	"fmt"
	"path/filepath"
	"runtime"
)

// TrackedError wraps a fatal store error with the file and line where it
// was first surfaced, so the "all other store errors" kind in the spec's
// error-handling design always carries enough context to reproduce.
type TrackedError struct {
	originalError error
	file          string
	line          int
}

// TrackError wraps err with the caller's file and line. A nil err yields
// a nil *TrackedError, which is a non-nil value once converted to the
// error interface, so callers check err != nil before returning
// `utils.TrackError(err)` as an error.
func TrackError(err error) *TrackedError {
	if err == nil {
		return nil
	}

	_, file, line, _ := runtime.Caller(1)
	return &TrackedError{
		originalError: err,
		file:          file,
		line:          line,
	}
}

func (e *TrackedError) Error() string {
	if e == nil || e.originalError == nil {
		return "<nil>"
	}
	return fmt.Sprintf("(wrapped at %s:%d) %s", filepath.Base(e.file), e.line, e.originalError.Error())
}

// Unwrap exposes the original error so errors.As/errors.Is keep working.
func (e *TrackedError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.originalError
}
