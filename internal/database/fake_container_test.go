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
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/data/azcosmos"
)

// fakeContainer is an in-memory stand-in for *azcosmos.ContainerClient,
// grounded on the teacher's databasetesting.MockDBClient pattern (an
// in-process map guarded by a mutex, standing in for a live Cosmos
// account in unit tests). It implements exactly the itemContainer
// surface the lock protocol and session store depend on.
//
// PatchItem cannot generically interpret an azcosmos.PatchOperations
// value (the SDK keeps its operation list unexported; it is built only to
// be marshaled onto the wire). This fake special-cases the one patch this
// codebase issues — ExtendLifetime's "/CreatedDate" set — rather than
// attempting a general JSON-patch interpreter.
type fakeContainer struct {
	mu      sync.Mutex
	docs    map[string]fakeDocument
	etagSeq int
	now     func() time.Time
}

type fakeDocument struct {
	raw       []byte
	etag      string
	expiresAt time.Time // zero means no expiry
}

type idAndTTL struct {
	ID  string `json:"id"`
	TTL int32  `json:"ttl,omitempty"`
}

func newFakeContainer() *fakeContainer {
	return &fakeContainer{
		docs: make(map[string]fakeDocument),
		now:  time.Now,
	}
}

func (f *fakeContainer) nextETag() azcore.ETag {
	f.etagSeq++
	return azcore.ETag(fmt.Sprintf("etag-%d", f.etagSeq))
}

// expireLocked removes id if its TTL has elapsed. Caller must hold f.mu.
func (f *fakeContainer) expireLocked(id string) {
	doc, ok := f.docs[id]
	if ok && !doc.expiresAt.IsZero() && !f.now().Before(doc.expiresAt) {
		delete(f.docs, id)
	}
}

func newFakeResponseError(status int) error {
	return &azcore.ResponseError{
		StatusCode:  status,
		RawResponse: &http.Response{Header: http.Header{}},
	}
}

func withETag(raw []byte, etag azcore.ETag) ([]byte, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	encoded, err := json.Marshal(string(etag))
	if err != nil {
		return nil, err
	}
	fields["_etag"] = encoded
	return json.Marshal(fields)
}

func (f *fakeContainer) CreateItem(ctx context.Context, partitionKey azcosmos.PartitionKey, item []byte, o *azcosmos.ItemOptions) (azcosmos.ItemResponse, error) {
	var meta idAndTTL
	if err := json.Unmarshal(item, &meta); err != nil {
		return azcosmos.ItemResponse{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.expireLocked(meta.ID)

	if _, exists := f.docs[meta.ID]; exists {
		return azcosmos.ItemResponse{}, newFakeResponseError(http.StatusConflict)
	}

	etag := f.nextETag()
	var expiresAt time.Time
	if meta.TTL > 0 {
		expiresAt = f.now().Add(time.Duration(meta.TTL) * time.Second)
	}
	f.docs[meta.ID] = fakeDocument{raw: item, etag: etag, expiresAt: expiresAt}

	value, err := withETag(item, etag)
	if err != nil {
		return azcosmos.ItemResponse{}, err
	}
	return azcosmos.ItemResponse{ETag: etag, Value: value, RequestCharge: 5}, nil
}

func (f *fakeContainer) ReadItem(ctx context.Context, partitionKey azcosmos.PartitionKey, itemId string, o *azcosmos.ItemOptions) (azcosmos.ItemResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.expireLocked(itemId)

	doc, ok := f.docs[itemId]
	if !ok {
		return azcosmos.ItemResponse{}, newFakeResponseError(http.StatusNotFound)
	}

	value, err := withETag(doc.raw, doc.etag)
	if err != nil {
		return azcosmos.ItemResponse{}, err
	}
	return azcosmos.ItemResponse{ETag: doc.etag, Value: value, RequestCharge: 1}, nil
}

func (f *fakeContainer) DeleteItem(ctx context.Context, partitionKey azcosmos.PartitionKey, itemId string, o *azcosmos.ItemOptions) (azcosmos.ItemResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.expireLocked(itemId)

	doc, ok := f.docs[itemId]
	if !ok {
		return azcosmos.ItemResponse{}, newFakeResponseError(http.StatusNotFound)
	}

	if o != nil && o.IfMatchEtag != nil && *o.IfMatchEtag != doc.etag {
		return azcosmos.ItemResponse{}, newFakeResponseError(http.StatusPreconditionFailed)
	}

	delete(f.docs, itemId)
	return azcosmos.ItemResponse{ETag: doc.etag, RequestCharge: 5}, nil
}

func (f *fakeContainer) UpsertItem(ctx context.Context, partitionKey azcosmos.PartitionKey, item []byte, o *azcosmos.ItemOptions) (azcosmos.ItemResponse, error) {
	var meta idAndTTL
	if err := json.Unmarshal(item, &meta); err != nil {
		return azcosmos.ItemResponse{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.expireLocked(meta.ID)

	if existing, exists := f.docs[meta.ID]; exists && o != nil && o.IfMatchEtag != nil && *o.IfMatchEtag != existing.etag {
		return azcosmos.ItemResponse{}, newFakeResponseError(http.StatusPreconditionFailed)
	}

	etag := f.nextETag()
	var expiresAt time.Time
	if meta.TTL > 0 {
		expiresAt = f.now().Add(time.Duration(meta.TTL) * time.Second)
	}
	f.docs[meta.ID] = fakeDocument{raw: item, etag: etag, expiresAt: expiresAt}

	resp := azcosmos.ItemResponse{ETag: etag, RequestCharge: 5}
	if o == nil || o.EnableContentResponseOnWrite {
		value, err := withETag(item, etag)
		if err != nil {
			return azcosmos.ItemResponse{}, err
		}
		resp.Value = value
	}
	return resp, nil
}

// PatchItem applies the one patch operation this codebase ever issues: a
// "/CreatedDate" set to the current time, subject to an If-Match
// precondition. See the type doc comment for why this cannot be a
// general JSON-patch interpreter.
func (f *fakeContainer) PatchItem(ctx context.Context, partitionKey azcosmos.PartitionKey, itemId string, ops azcosmos.PatchOperations, o *azcosmos.ItemOptions) (azcosmos.ItemResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.expireLocked(itemId)

	doc, ok := f.docs[itemId]
	if !ok {
		return azcosmos.ItemResponse{}, newFakeResponseError(http.StatusNotFound)
	}

	if o != nil && o.IfMatchEtag != nil && *o.IfMatchEtag != doc.etag {
		return azcosmos.ItemResponse{}, newFakeResponseError(http.StatusPreconditionFailed)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(doc.raw, &fields); err != nil {
		return azcosmos.ItemResponse{}, err
	}
	createdDateJSON, err := json.Marshal(f.now().UTC().Unix())
	if err != nil {
		return azcosmos.ItemResponse{}, err
	}
	fields["CreatedDate"] = createdDateJSON

	raw, err := json.Marshal(fields)
	if err != nil {
		return azcosmos.ItemResponse{}, err
	}

	etag := f.nextETag()
	doc.raw = raw
	doc.etag = etag
	f.docs[itemId] = doc

	return azcosmos.ItemResponse{ETag: etag, RequestCharge: 5}, nil
}

var _ itemContainer = &fakeContainer{}
