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

// Package provider implements C6, the facade translating a host web
// framework's per-request session operations into the lock protocol (C4)
// and session store API (C5) calls of the database package.
package provider

import "github.com/Azure/cosmos-sessionstore/internal/database"

// RequestScope is the per-request object the facade allocates on entry
// and threads through a request's lifetime. It replaces the context-bag
// pattern the source framework used to stash the "last read content
// resource" between request-start (Get) and request-end (the deferred
// lifetime extension or lock release): no package-level or shared mutable
// state, one scope per request, discarded when the request completes.
type RequestScope struct {
	SessionID string

	// stash is what GetSession returned, carried forward so a later
	// ExtendLifetime call can decide (and perform) a sliding-expiration
	// write without a second read.
	stash *database.StashedContent

	// lockID is the credential returned by a successful exclusive
	// Acquire, carried forward so ReleaseExclusive can release exactly
	// the lock this request took.
	lockID string

	// acquired is true once this scope has taken an exclusive lock that
	// has not yet been released.
	acquired bool
}

// NewRequestScope allocates a scope for one incoming request.
func NewRequestScope(sessionID string) *RequestScope {
	return &RequestScope{SessionID: sessionID}
}

func (s *RequestScope) setStash(stash *database.StashedContent) {
	s.stash = stash
}

func (s *RequestScope) setLock(lockID string) {
	s.lockID = lockID
	s.acquired = lockID != ""
}

func (s *RequestScope) clearLock() {
	s.lockID = ""
	s.acquired = false
}
