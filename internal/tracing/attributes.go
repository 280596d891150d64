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

// Package tracing defines the OTel attribute keys used to annotate spans
// emitted by the session-store core.
package tracing

import "go.opentelemetry.io/otel/attribute"

// Session identity and request attributes.
const (
	// SessionIDKey is the span's attribute Key reporting the session
	// identifier the operation acted on.
	SessionIDKey = attribute.Key("sessionstore.session_id")

	// ProviderNameKey is the span's attribute Key reporting the named
	// provider instance handling the request.
	ProviderNameKey = attribute.Key("sessionstore.provider_name")
)

// Lock protocol attributes.
const (
	// LockIDKey is the span's attribute Key reporting the ETag credential
	// of an acquired (or contended) lock.
	LockIDKey = attribute.Key("sessionstore.lock_id")

	// LockTakenKey is the span's attribute Key reporting whether an
	// acquisition attempt succeeded.
	LockTakenKey = attribute.Key("sessionstore.lock_taken")

	// LockPhaseKey is the span's attribute Key reporting which acquisition
	// phase (optimistic insert vs. pessimistic retry) produced the result.
	LockPhaseKey = attribute.Key("sessionstore.lock_phase")
)

// Store-call attributes.
const (
	// ConsistencyLevelKey is the span's attribute Key reporting the Cosmos
	// consistency level used for the request.
	ConsistencyLevelKey = attribute.Key("sessionstore.consistency_level")

	// CompressedKey is the span's attribute Key reporting whether the
	// payload read or written was gzip-compressed.
	CompressedKey = attribute.Key("sessionstore.compressed")

	// RequestChargeKey is the span's attribute Key reporting the Cosmos
	// request-unit cost of the call.
	RequestChargeKey = attribute.Key("sessionstore.request_charge")

	// ExtensionFiredKey is the span's attribute Key reporting whether a
	// sliding-expiration ExtendLifetime call actually issued a replace, or
	// was a no-op under the dampening rule.
	ExtensionFiredKey = attribute.Key("sessionstore.extension_fired")
)
