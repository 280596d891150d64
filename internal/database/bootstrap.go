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
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/data/azcosmos"
	"github.com/hashicorp/go-version"

	"github.com/Azure/cosmos-sessionstore/internal/utils"
)

// schemaVersion is the version this build of the store expects the
// container's schema-sentinel document to declare. Bumped whenever the
// wire format in codec.go or the document shapes in document.go change
// in a way that is not forward-compatible with older readers.
const schemaVersion = "1.0.0"

// schemaDocumentID is the fixed id of the sentinel document bootstrap
// uses to detect a schema mismatch between this build and whatever last
// initialized the container.
const schemaDocumentID = "__schema__"

// lockScriptMarkerPrefix names the deterministic identifier the original
// stored-procedure-based design assigned to the Phase-2 conditional-create
// script (tryLock_<hex>). azcosmos has no API to register or execute
// server-side scripts, so this implementation performs Phase 2 as a
// client-orchestrated read/create sequence (see lock.go's acquirePhase2);
// the marker is kept only so bootstrap's log output can still name the
// Phase-2 behavior the way the original design document does.
const lockScriptMarkerPrefix = "tryLock_"

// lockScriptMarkerName returns the deterministic tryLock_<hex> name for a
// given database+container pair: sha1(dbName+"/"+containerName), first 20
// hex characters.
func lockScriptMarkerName(databaseID, containerID string) string {
	sum := sha1.Sum([]byte(databaseID + "/" + containerID))
	return lockScriptMarkerPrefix + hex.EncodeToString(sum[:])[:20]
}

type schemaDocument struct {
	baseDocument
	Version string `json:"version"`
}

// databaseAdminClient is the narrow slice of *azcosmos.Client bootstrap
// needs to create the database idempotently.
type databaseAdminClient interface {
	CreateDatabase(ctx context.Context, properties azcosmos.DatabaseProperties, o *azcosmos.CreateDatabaseOptions) (azcosmos.DatabaseResponse, error)
	NewDatabase(id string) (*azcosmos.DatabaseClient, error)
}

// containerAdminClient is the narrow slice of *azcosmos.DatabaseClient
// bootstrap needs.
type containerAdminClient interface {
	CreateContainer(ctx context.Context, properties azcosmos.ContainerProperties, o *azcosmos.CreateContainerOptions) (azcosmos.ContainerResponse, error)
	NewContainer(id string) (*azcosmos.ContainerClient, error)
}

// containerName is the single container name documented in §6: content
// records and lock records share it, distinguished only by id suffix.
// The dual-container variant some source drafts carried is explicitly
// not the design this implementation follows (§9).
const containerName = "SessionStore"

// defaultTTLSeconds is the container-level default TTL, matching the
// spec's 300-second safety net; every document's own `ttl` field
// overrides it.
const defaultTTLSeconds = 300

// Bootstrap idempotently creates the database and the shared container if
// they do not already exist, then verifies (or, on first run, writes) the
// schema-sentinel document. Bootstrap is meant to run once at process
// startup; it is not safe to call concurrently with itself against the
// same database from multiple processes racing container creation,
// though Cosmos's own idempotent "already exists" handling makes that
// race harmless.
func Bootstrap(ctx context.Context, client databaseAdminClient, databaseID string, cfg Config) (*azcosmos.DatabaseClient, *azcosmos.ContainerClient, error) {
	logger := utils.LoggerFromContext(ctx).WithValues(
		utils.LogValues{}.AddOperation("bootstrap")...)

	if _, err := client.CreateDatabase(ctx, azcosmos.DatabaseProperties{ID: databaseID}, nil); err != nil && !isConflict(err) {
		return nil, nil, utils.TrackError(err)
	}

	db, err := client.NewDatabase(databaseID)
	if err != nil {
		return nil, nil, utils.TrackError(err)
	}

	container, err := ensureContainer(ctx, db)
	if err != nil {
		return nil, nil, err
	}

	if err := ensureSchemaVersion(ctx, container); err != nil {
		return nil, nil, err
	}

	marker := lockScriptMarkerName(databaseID, containerName)
	logger.Info("bootstrap complete", "lockScriptMarker", marker)

	return db, container, nil
}

func ensureContainer(ctx context.Context, db containerAdminClient) (*azcosmos.ContainerClient, error) {
	ttl := int32(defaultTTLSeconds)
	properties := azcosmos.ContainerProperties{
		ID: containerName,
		PartitionKeyDefinition: azcosmos.PartitionKeyDefinition{
			Paths: []string{"/id"},
		},
		IndexingPolicy: &azcosmos.IndexingPolicy{
			Automatic:     true,
			IndexingMode:  azcosmos.IndexingModeConsistent,
			ExcludedPaths: []azcosmos.ExcludedPath{{Path: "/*"}},
		},
		DefaultTimeToLive: &ttl,
	}

	if _, err := db.CreateContainer(ctx, properties, nil); err != nil && !isConflict(err) {
		return nil, utils.TrackError(err)
	}

	container, err := db.NewContainer(containerName)
	if err != nil {
		return nil, utils.TrackError(err)
	}
	return container, nil
}

// ensureSchemaVersion reads the container's schema sentinel document. If
// absent, it writes one declaring schemaVersion. If present and its major
// version does not match this build's schemaVersion, bootstrap fails:
// running a new binary against a container whose schema an older,
// incompatible writer produced would silently corrupt reads.
//
// It takes the itemContainer seam rather than the concrete
// *azcosmos.ContainerClient so it can run against an in-memory fake in
// tests.
func ensureSchemaVersion(ctx context.Context, container itemContainer) error {
	pk := azcosmos.NewPartitionKeyString(schemaDocumentID)
	resp, err := container.ReadItem(ctx, pk, schemaDocumentID, nil)
	if err != nil {
		if !isNotFound(err) {
			return utils.TrackError(err)
		}
		doc := schemaDocument{baseDocument: baseDocument{ID: schemaDocumentID}, Version: schemaVersion}
		data, marshalErr := json.Marshal(doc)
		if marshalErr != nil {
			return utils.TrackError(marshalErr)
		}
		if _, err := container.CreateItem(ctx, pk, data, nil); err != nil && !isConflict(err) {
			return utils.TrackError(err)
		}
		return nil
	}

	var existing schemaDocument
	if err := json.Unmarshal(resp.Value, &existing); err != nil {
		return utils.TrackError(err)
	}

	have, err := version.NewVersion(existing.Version)
	if err != nil {
		return utils.TrackError(fmt.Errorf("database: unparsable schema version %q: %w", existing.Version, err))
	}
	want, err := version.NewVersion(schemaVersion)
	if err != nil {
		return utils.TrackError(err)
	}

	if have.Segments()[0] != want.Segments()[0] {
		return fmt.Errorf("database: schema version mismatch: container has %s, this build expects %s", have, want)
	}

	return nil
}
