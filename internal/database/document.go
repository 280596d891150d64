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

package database

import (
	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
)

// baseDocument carries the fields Cosmos assigns to every container item.
type baseDocument struct {
	ID string `json:"id,omitempty"`

	ETag            azcore.ETag `json:"_etag,omitempty"`
	CosmosTimestamp int64       `json:"_ts,omitempty"`
}

// isNewMarker is the literal string value the spec's content record uses
// for IsNew. Anything else, including absence, means "not new".
const isNewMarker = "yes"

// contentRecord is the §3 "Content record": a session's persisted blob
// plus its metadata. Its id equals the session id.
type contentRecord struct {
	baseDocument

	TTL         int32  `json:"ttl,omitempty"`
	CreatedDate int64  `json:"CreatedDate,omitempty"`
	Payload     []byte `json:"Payload,omitempty"`
	Compressed  bool   `json:"Compressed,omitempty"`
	IsNew       string `json:"IsNew,omitempty"`
}

func newContentRecord(sessionID string, ttlSeconds int32, createdDate int64, payload []byte, compressed bool, isNew bool) *contentRecord {
	rec := &contentRecord{
		baseDocument: baseDocument{ID: sessionID},
		TTL:          ttlSeconds,
		CreatedDate:  createdDate,
		Payload:      payload,
		Compressed:   compressed,
	}
	if isNew {
		rec.IsNew = isNewMarker
	}
	return rec
}

// lockRecord is the §3 "Lock record": a presence-only document whose
// existence encodes "session is held exclusive". Its id is deliberately
// distinct from the content record's so the two never share a partition.
type lockRecord struct {
	baseDocument

	CreatedDate int64  `json:"CreatedDate,omitempty"`
	TTL         int32  `json:"ttl,omitempty"`
	Owner       string `json:"Owner,omitempty"`
}

// lockRecordID derives the lock document's id from a session id, per §3.
func lockRecordID(sessionID string) string {
	return sessionID + "_lock"
}

func newLockRecord(sessionID string, ttlSeconds int32, createdDate int64, owner string) *lockRecord {
	return &lockRecord{
		baseDocument: baseDocument{ID: lockRecordID(sessionID)},
		CreatedDate:  createdDate,
		TTL:          ttlSeconds,
		Owner:        owner,
	}
}
