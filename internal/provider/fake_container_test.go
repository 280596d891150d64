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

package provider

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

// fakeContainer is a facade-level twin of the database package's own test
// fake: the two can't share a type across package boundaries since Go
// test files are not importable, so this duplicates the same small
// in-memory model grounded on the teacher's databasetesting.MockDBClient
// pattern. See database/fake_container_test.go for the PatchItem
// simplification rationale.
type fakeContainer struct {
	mu      sync.Mutex
	docs    map[string]fakeDoc
	etagSeq int
}

type fakeDoc struct {
	raw  []byte
	etag string
}

type fakeIDAndTTL struct {
	ID  string `json:"id"`
	TTL int32  `json:"ttl,omitempty"`
}

func newFakeContainer() *fakeContainer {
	return &fakeContainer{docs: make(map[string]fakeDoc)}
}

func (f *fakeContainer) nextETag() azcore.ETag {
	f.etagSeq++
	return azcore.ETag(fmt.Sprintf("etag-%d", f.etagSeq))
}

func newFakeResponseError(status int) error {
	return &azcore.ResponseError{StatusCode: status, RawResponse: &http.Response{Header: http.Header{}}}
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

func (f *fakeContainer) CreateItem(ctx context.Context, pk azcosmos.PartitionKey, item []byte, o *azcosmos.ItemOptions) (azcosmos.ItemResponse, error) {
	var meta fakeIDAndTTL
	if err := json.Unmarshal(item, &meta); err != nil {
		return azcosmos.ItemResponse{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, exists := f.docs[meta.ID]; exists {
		return azcosmos.ItemResponse{}, newFakeResponseError(http.StatusConflict)
	}

	etag := f.nextETag()
	f.docs[meta.ID] = fakeDoc{raw: item, etag: etag}

	value, err := withETag(item, etag)
	if err != nil {
		return azcosmos.ItemResponse{}, err
	}
	return azcosmos.ItemResponse{ETag: etag, Value: value, RequestCharge: 5}, nil
}

func (f *fakeContainer) ReadItem(ctx context.Context, pk azcosmos.PartitionKey, itemId string, o *azcosmos.ItemOptions) (azcosmos.ItemResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

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

func (f *fakeContainer) DeleteItem(ctx context.Context, pk azcosmos.PartitionKey, itemId string, o *azcosmos.ItemOptions) (azcosmos.ItemResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

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

func (f *fakeContainer) UpsertItem(ctx context.Context, pk azcosmos.PartitionKey, item []byte, o *azcosmos.ItemOptions) (azcosmos.ItemResponse, error) {
	var meta fakeIDAndTTL
	if err := json.Unmarshal(item, &meta); err != nil {
		return azcosmos.ItemResponse{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	etag := f.nextETag()
	f.docs[meta.ID] = fakeDoc{raw: item, etag: etag}
	return azcosmos.ItemResponse{ETag: etag, RequestCharge: 5}, nil
}

func (f *fakeContainer) PatchItem(ctx context.Context, pk azcosmos.PartitionKey, itemId string, ops azcosmos.PatchOperations, o *azcosmos.ItemOptions) (azcosmos.ItemResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

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
	createdDateJSON, err := json.Marshal(time.Now().UTC().Unix())
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
