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
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/data/azcosmos"
	"go.opentelemetry.io/otel/trace"
	"k8s.io/utils/clock"

	"github.com/Azure/cosmos-sessionstore/internal/tracing"
	"github.com/Azure/cosmos-sessionstore/internal/utils"
)

// StashedContent is the per-request "last read content resource" the
// design notes call for: GetSession returns one, and it is the only
// input ExtendLifetime needs to decide (and perform) a sliding-expiration
// write, without any shared mutable state between the two call sites.
type StashedContent struct {
	sessionID   string
	etag        azcore.ETag
	createdDate int64
	ttlSeconds  int32
}

// dampeningNumerator/dampeningDenominator implement tolerated = ttl / 3:
// extension fires only once remaining lifetime drops below one-third of
// the nominal TTL.
const (
	dampeningNumerator   = 1
	dampeningDenominator = 3
)

// StoreInterface is the public contract of C5, mirroring
// LockClientInterface's role for C4: it lets callers (and
// InstrumentedStore) depend on the session-store operations without
// tying themselves to the concrete *Store.
type StoreInterface interface {
	GetSession(ctx context.Context, sessionID string) (*SessionValue, bool, *StashedContent, error)
	WriteContents(ctx context.Context, sessionID string, value *SessionValue, isNew bool) error
	Remove(ctx context.Context, sessionID string, lockClient LockClientInterface, heldLockID string) error
	ExtendLifetime(ctx context.Context, stash *StashedContent) (fired bool, err error)
}

var _ StoreInterface = &Store{}

// Store implements C5 against the shared SessionStore container, storing
// content records alongside (and in a separate partition from) the lock
// records LockClient manages.
type Store struct {
	container itemContainer
	codec     DictionaryCodec
	cfg       Config
	clock     clock.PassiveClock
}

// NewStore builds a Store over the shared container. It defaults to the
// real wall clock; tests substitute clock/testing's fake by assigning the
// clock field directly, the same struct-literal injection the teacher's
// session controller uses for clock.PassiveClock.
func NewStore(container itemContainer, cfg Config) *Store {
	return &Store{
		container: container,
		codec:     JSONDictionaryCodec{},
		cfg:       cfg,
		clock:     clock.RealClock{},
	}
}

// GetSession implements the §4.4 read: a point-read by (id,
// partitionKey=id). A 404 yields (nil, false, nil) with no error — read
// misses are normal, not a failure. The returned *StashedContent must be
// handed to ExtendLifetime later in the same request if a sliding-
// expiration refresh is wanted.
func (s *Store) GetSession(ctx context.Context, sessionID string) (*SessionValue, bool, *StashedContent, error) {
	logger := utils.LoggerFromContext(ctx).WithValues(
		utils.LogValues{}.AddSessionID(sessionID).AddOperation("store.getSession")...)
	trace.SpanFromContext(ctx).SetAttributes(tracing.ConsistencyLevelKey.String(string(s.cfg.ConsistencyLevel)))

	var readOptions *azcosmos.ItemOptions
	if s.cfg.ConsistencyLevel != "" {
		level := azcosmos.ConsistencyLevel(s.cfg.ConsistencyLevel)
		readOptions = &azcosmos.ItemOptions{ConsistencyLevel: &level}
	}

	pk := azcosmos.NewPartitionKeyString(sessionID)
	resp, err := s.container.ReadItem(ctx, pk, sessionID, readOptions)
	if err != nil {
		if isNotFound(err) {
			logger.V(1).Info("session not found")
			return nil, false, nil, nil
		}
		return nil, false, nil, utils.TrackError(err)
	}

	var rec contentRecord
	if err := json.Unmarshal(resp.Value, &rec); err != nil {
		return nil, false, nil, utils.TrackError(err)
	}

	var value *SessionValue
	if rec.Payload != nil {
		value, err = Decode(rec.Payload, rec.Compressed, s.codec)
		if err != nil {
			return nil, false, nil, utils.TrackError(err)
		}
	}

	stash := &StashedContent{
		sessionID:   sessionID,
		etag:        resp.ETag,
		createdDate: rec.CreatedDate,
		ttlSeconds:  rec.TTL,
	}

	trace.SpanFromContext(ctx).SetAttributes(tracing.RequestChargeKey.Float64(float64(resp.RequestCharge)))
	logger.Info("session read", "request_charge", resp.RequestCharge)
	return value, rec.IsNew == isNewMarker, stash, nil
}

// WriteContents implements the §4.4 write: an upsert of the content
// record with a fresh CreatedDate and TTL derived from the session's
// configured timeout.
func (s *Store) WriteContents(ctx context.Context, sessionID string, value *SessionValue, isNew bool) error {
	logger := utils.LoggerFromContext(ctx).WithValues(
		utils.LogValues{}.AddSessionID(sessionID).AddOperation("store.writeContents")...)

	compressed := s.cfg.Compressed()
	payload, err := Encode(value, compressed, s.codec)
	if err != nil {
		return utils.TrackError(err)
	}

	ttlSeconds := value.TimeoutMinutes * 60
	rec := newContentRecord(sessionID, ttlSeconds, s.clock.Now().UTC().Unix(), payload, compressed, isNew)

	data, err := json.Marshal(rec)
	if err != nil {
		return utils.TrackError(err)
	}

	pk := azcosmos.NewPartitionKeyString(sessionID)
	resp, err := s.container.UpsertItem(ctx, pk, data, &azcosmos.ItemOptions{
		EnableContentResponseOnWrite: false,
	})
	if err != nil {
		return utils.TrackError(err)
	}

	trace.SpanFromContext(ctx).SetAttributes(tracing.RequestChargeKey.Float64(float64(resp.RequestCharge)))
	logger.Info("session written", "request_charge", resp.RequestCharge, "compressed", compressed)
	return nil
}

// Remove implements §4.4's remove: delete the content record and the
// lock record independently. A 404 on either is logged and ignored.
func (s *Store) Remove(ctx context.Context, sessionID string, lockClient LockClientInterface, heldLockID string) error {
	logger := utils.LoggerFromContext(ctx).WithValues(
		utils.LogValues{}.AddSessionID(sessionID).AddOperation("store.remove")...)

	pk := azcosmos.NewPartitionKeyString(sessionID)
	_, err := s.container.DeleteItem(ctx, pk, sessionID, nil)
	if err != nil {
		if !isNotFound(err) {
			logger.Error(err, "failed to delete content record")
			return utils.TrackError(err)
		}
		logger.Error(err, "content record not found during remove")
	}

	if heldLockID != "" {
		if lockClient != nil {
			if err := lockClient.Release(ctx, sessionID, heldLockID); err != nil {
				// Release never returns a non-nil error in this implementation
				// (§4.3), but guard anyway in case a different LockClientInterface
				// implementation does.
				logger.Error(err, "failed to release lock record during remove")
			}
		}
	} else {
		// No held credential to condition on: the caller isn't the lock's
		// holder (or never acquired one), so Release's If-Match delete
		// would never match and would leave a foreign/orphaned lock record
		// behind. Delete it unconditionally instead — §4.4 requires the
		// lock record gone after Remove regardless of who (if anyone)
		// currently holds it.
		lockID := lockRecordID(sessionID)
		lockPK := azcosmos.NewPartitionKeyString(lockID)
		if _, err := s.container.DeleteItem(ctx, lockPK, lockID, nil); err != nil {
			if isNotFound(err) {
				logger.Error(err, "lock record not found during remove")
			} else {
				logger.Error(err, "failed to delete lock record during remove")
			}
		}
	}

	logger.Info("session removed")
	return nil
}

// ExtendLifetime implements §4.4's dampening rule. tRemaining = (created +
// ttl) - now; tolerated = ttl / 3. If tRemaining > tolerated this
// is a no-op. Otherwise it issues a conditional patch of CreatedDate with
// If-Match=stash.etag at Eventual consistency: concurrent extenders
// racing the same session are fine, the last writer wins and every value
// they could write is equivalent.
func (s *Store) ExtendLifetime(ctx context.Context, stash *StashedContent) (fired bool, err error) {
	if stash == nil {
		return false, nil
	}

	logger := utils.LoggerFromContext(ctx).WithValues(
		utils.LogValues{}.AddSessionID(stash.sessionID).AddOperation("store.extendLifetime")...)

	now := s.clock.Now().UTC()
	createdAt := time.Unix(stash.createdDate, 0).UTC()
	ttl := time.Duration(stash.ttlSeconds) * time.Second
	tRemaining := createdAt.Add(ttl).Sub(now)
	tolerated := time.Duration(int64(ttl) * dampeningNumerator / dampeningDenominator)

	if tRemaining > tolerated {
		logger.V(1).Info("extension skipped, still within tolerated remaining lifetime")
		return false, nil
	}

	ops := azcosmos.PatchOperations{}
	ops.AppendSet("/CreatedDate", now.Unix())

	eventual := azcosmos.ConsistencyLevelEventual
	trace.SpanFromContext(ctx).SetAttributes(tracing.ConsistencyLevelKey.String(string(ConsistencyEventual)))
	pk := azcosmos.NewPartitionKeyString(stash.sessionID)
	_, patchErr := s.container.PatchItem(ctx, pk, stash.sessionID, ops, &azcosmos.ItemOptions{
		IfMatchEtag:      &stash.etag,
		ConsistencyLevel: &eventual,
	})
	if patchErr != nil {
		if isNotFound(patchErr) || isPreconditionFailed(patchErr) {
			logger.V(1).Info("extension swallowed: session gone or ETag stale")
			return false, nil
		}
		return false, utils.TrackError(patchErr)
	}

	logger.Info("lifetime extended")
	return true, nil
}
