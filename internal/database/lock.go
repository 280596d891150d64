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
	"math/rand/v2"
	"os"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/data/azcosmos"
	"github.com/cenkalti/backoff/v4"
	"github.com/go-logr/logr"
	"go.opentelemetry.io/otel/trace"
	"k8s.io/utils/clock"

	"github.com/Azure/cosmos-sessionstore/internal/tracing"
	"github.com/Azure/cosmos-sessionstore/internal/utils"
)

// itemContainer is the narrow slice of *azcosmos.ContainerClient the lock
// protocol needs. It exists so unit tests can substitute an in-memory
// fake instead of a live Cosmos account, the same seam the teacher's
// databasetesting.MockDBClient provides around the full DBClient.
type itemContainer interface {
	CreateItem(ctx context.Context, partitionKey azcosmos.PartitionKey, item []byte, o *azcosmos.ItemOptions) (azcosmos.ItemResponse, error)
	ReadItem(ctx context.Context, partitionKey azcosmos.PartitionKey, itemId string, o *azcosmos.ItemOptions) (azcosmos.ItemResponse, error)
	DeleteItem(ctx context.Context, partitionKey azcosmos.PartitionKey, itemId string, o *azcosmos.ItemOptions) (azcosmos.ItemResponse, error)
	PatchItem(ctx context.Context, partitionKey azcosmos.PartitionKey, itemId string, ops azcosmos.PatchOperations, o *azcosmos.ItemOptions) (azcosmos.ItemResponse, error)
	UpsertItem(ctx context.Context, partitionKey azcosmos.PartitionKey, item []byte, o *azcosmos.ItemOptions) (azcosmos.ItemResponse, error)
}

// Both the lock protocol (C4) and the session store (C5) operate against
// the same single SessionStore container, per §9's resolution of the
// single-container-vs-dual-container open question: content records and
// lock records share one container, distinguished only by id suffix, and
// naturally occupy different partitions because the partition key is the
// document id.

// LockClientInterface is the public contract of C4, matching §4.3.
type LockClientInterface interface {
	// Acquire never blocks on a contended lock. It returns taken=false
	// with the current holder's ETag and creation time when contended.
	Acquire(ctx context.Context, sessionID string) (taken bool, lockDate time.Time, lockID string, err error)

	// Release is best-effort and never fails the caller; the actual
	// delete may be deferred onto a background queue by the caller.
	Release(ctx context.Context, sessionID string, lockID string) error
}

var _ LockClientInterface = &LockClient{}

// LockClient implements C4 against the shared SessionStore container,
// where lock records sit beside content records under their own "_lock"
// ids, grounded on the teacher's internal/database/lock.go.
type LockClient struct {
	container  itemContainer
	owner      string
	ttlSeconds int32
	clock      clock.PassiveClock
}

// NewLockClient builds a LockClient. ttlSeconds is lockTtlSeconds from
// the provider's Config. It defaults to the real wall clock; tests
// substitute clock/testing's fake the same way store_test.go does for
// Store, by assigning the clock field directly.
func NewLockClient(container itemContainer, ttlSeconds int32) *LockClient {
	owner, err := os.Hostname()
	if err != nil || owner == "" {
		owner = "unknown"
	}
	return &LockClient{
		container:  container,
		owner:      owner,
		ttlSeconds: ttlSeconds,
		clock:      clock.RealClock{},
	}
}

// SetOwner overrides the informational "who holds this lock" label.
// LockClient uses the hostname by default.
func (c *LockClient) SetOwner(owner string) {
	c.owner = owner
}

// Acquire implements the two-phase algorithm from §4.3.
func (c *LockClient) Acquire(ctx context.Context, sessionID string) (bool, time.Time, string, error) {
	logger := utils.LoggerFromContext(ctx).WithValues(
		utils.LogValues{}.AddSessionID(sessionID).AddOperation("lock.acquire")...)

	taken, lockDate, lockID, err := c.tryAcquireOnce(ctx, sessionID)
	if err == nil {
		if taken {
			trace.SpanFromContext(ctx).SetAttributes(tracing.LockPhaseKey.String("optimistic"))
			logger.Info("lock acquired in phase 1 (optimistic insert)")
			return true, lockDate, lockID, nil
		}
		// Phase 1 saw a conflict: fall through to phase 2.
	} else if !isConflict(err) {
		return false, time.Time{}, "", utils.TrackError(err)
	}

	trace.SpanFromContext(ctx).SetAttributes(tracing.LockPhaseKey.String("retried"))
	return c.acquirePhase2(ctx, sessionID, logger)
}

// tryAcquireOnce is Phase 1: the optimistic insert. A plain 409 means the
// lock is already held; any other error is fatal.
func (c *LockClient) tryAcquireOnce(ctx context.Context, sessionID string) (bool, time.Time, string, error) {
	now := c.clock.Now().UTC()
	rec := newLockRecord(sessionID, c.ttlSeconds, now.Unix(), c.owner)

	data, err := json.Marshal(rec)
	if err != nil {
		return false, time.Time{}, "", err
	}

	pk := azcosmos.NewPartitionKeyString(rec.ID)
	resp, err := c.container.CreateItem(ctx, pk, data, &azcosmos.ItemOptions{
		EnableContentResponseOnWrite: true,
	})
	if err != nil {
		return false, time.Time{}, "", err
	}

	return true, now, string(resp.ETag), nil
}

// acquirePhase2 is the pessimistic, retried phase. In place of a literal
// server-side stored procedure (azcosmos does not expose script
// registration the way other language SDKs do — see DESIGN.md), it reads
// the current holder and, if the lock has since been released or self-
// healed via TTL, races a conditional create against it. Correctness
// (mutual exclusion) still comes from Cosmos's own primary-key uniqueness
// constraint on the create, not from the read.
func (c *LockClient) acquirePhase2(ctx context.Context, sessionID string, logger logr.Logger) (bool, time.Time, string, error) {
	lockID := lockRecordID(sessionID)
	pk := azcosmos.NewPartitionKeyString(lockID)

	var (
		taken    bool
		lockDate time.Time
		etag     string
	)

	policy := backoff.WithMaxRetries(newJitteredBackOff(), phase2MaxRetries)
	policy = backoff.WithContext(policy, ctx)

	attempt := 0
	operation := func() error {
		attempt++

		resp, err := c.container.ReadItem(ctx, pk, lockID, nil)
		if err == nil {
			var existing lockRecord
			if unmarshalErr := json.Unmarshal(resp.Value, &existing); unmarshalErr != nil {
				return backoff.Permanent(unmarshalErr)
			}
			taken, lockDate, etag = false, time.Unix(existing.CreatedDate, 0).UTC(), string(resp.ETag)
			return nil
		}

		if !isNotFound(err) {
			if isRetryableConflict(err) {
				logger.Info("phase 2 read hit a transient conflict, retrying", "attempt", attempt)
				return err
			}
			return backoff.Permanent(err)
		}

		now := c.clock.Now().UTC()
		rec := newLockRecord(sessionID, c.ttlSeconds, now.Unix(), c.owner)
		data, marshalErr := json.Marshal(rec)
		if marshalErr != nil {
			return backoff.Permanent(marshalErr)
		}

		createResp, createErr := c.container.CreateItem(ctx, pk, data, &azcosmos.ItemOptions{
			EnableContentResponseOnWrite: true,
		})
		if createErr != nil {
			if isRetryableConflict(createErr) {
				logger.Info("phase 2 create hit a transient conflict, retrying", "attempt", attempt)
				return createErr
			}
			return backoff.Permanent(createErr)
		}

		taken, lockDate, etag = true, now, string(createResp.ETag)
		return nil
	}

	if err := backoff.Retry(operation, policy); err != nil {
		return false, time.Time{}, "", utils.TrackError(err)
	}

	return taken, lockDate, etag, nil
}

// phase2MaxRetries is the "up to three retries" from §4.3; a fourth
// attempt runs without further retry and its outcome is returned as-is.
const phase2MaxRetries = 3

// newJitteredBackOff returns a backoff.BackOff producing a uniform
// 10-50ms delay between Phase-2 attempts, per §4.3 (a flat jittered
// range, not the library's default exponential curve).
func newJitteredBackOff() backoff.BackOff {
	return &uniformJitterBackOff{min: 10 * time.Millisecond, max: 50 * time.Millisecond}
}

type uniformJitterBackOff struct {
	min, max time.Duration
}

func (b *uniformJitterBackOff) NextBackOff() time.Duration {
	span := b.max - b.min
	if span <= 0 {
		return b.min
	}
	return b.min + time.Duration(rand.Int64N(int64(span)))
}

func (b *uniformJitterBackOff) Reset() {}

// Release implements §4.3's release algorithm: delete the lock document
// with If-Match = lockID. Not-found is logged at warning and ignored (the
// lock self-healed via TTL); any other error is logged and swallowed, per
// §7: release errors are never propagated.
func (c *LockClient) Release(ctx context.Context, sessionID string, lockID string) error {
	logger := utils.LoggerFromContext(ctx).WithValues(
		utils.LogValues{}.AddSessionID(sessionID).AddLockID(lockID).AddOperation("lock.release")...)

	id := lockRecordID(sessionID)
	pk := azcosmos.NewPartitionKeyString(id)
	etag := azcore.ETag(lockID)

	_, err := c.container.DeleteItem(ctx, pk, id, &azcosmos.ItemOptions{
		IfMatchEtag: &etag,
	})
	if err == nil {
		logger.Info("lock released")
		return nil
	}

	if isNotFound(err) {
		logger.Info("lock release: not found, already self-healed via TTL", "level", "warn")
		return nil
	}
	if isPreconditionFailed(err) {
		// ETag mismatch: either a stale/wrong lockID, or the lock was
		// reclaimed by someone else in the interim. Either way this
		// release must not touch it.
		logger.Info("lock release: ETag mismatch, lock left intact")
		return nil
	}

	logger.Error(err, "lock release failed, relying on TTL self-heal")
	return nil
}

// StopHoldLock halts the renewal goroutine HoldLock started and reports
// the lock id last known to be valid, plus whether the lock was still
// held at the moment renewal stopped.
type StopHoldLock func() (lockID string, held bool)

// HoldLock renews an acquired lock periodically from a background
// goroutine until the returned stop function is called, or until renewal
// itself fails or discovers the lock was lost. It returns a derived
// context that is cancelled the instant the lock is lost, so callers
// doing long-running work under the lock can abort promptly, and a stop
// function that halts renewal and reports the final state.
//
// Grounded on the teacher's HoldLock/RenewLock, adapted to this
// package's sessionID/lockID (ETag string) vocabulary instead of a raw
// *azcosmos.ItemResponse. The session-store facade (C6) never calls
// this: per §4.3's fire-and-forget release model, a session lock is
// held only as long as one request takes, so periodic renewal is
// unnecessary overhead for that control flow. It is kept, adapted, and
// exercised by lock_test.go for a future long-running exclusive hold
// (e.g. a multi-step migration task) that needs to keep one session
// locked across several round trips.
func (c *LockClient) HoldLock(ctx context.Context, sessionID string, lockID string) (cancelCtx context.Context, stop StopHoldLock) {
	cancelCtx, cancelCause := context.WithCancelCause(ctx)
	done := make(chan struct{})

	current := lockID
	held := true

	stop = func() (string, bool) {
		cancelCause(nil)
		<-done
		return current, held
	}

	go func() {
		defer close(done)

		ticker := time.NewTicker(c.renewInterval())
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				newLockID, ok, err := c.RenewLock(cancelCtx, sessionID, current)
				if err != nil {
					held = false
					cancelCause(fmt.Errorf("failed to renew lock: %w", err))
					return
				}
				if !ok {
					held = false
					cancelCause(nil)
					return
				}
				current = newLockID
			case <-cancelCtx.Done():
				return
			}
		}
	}()

	return cancelCtx, stop
}

// renewInterval aims to renew one second before the lock's TTL would
// elapse, mirroring the teacher's HoldLock timing.
func (c *LockClient) renewInterval() time.Duration {
	interval := time.Duration(c.ttlSeconds-1) * time.Second
	if interval <= 0 {
		interval = time.Second
	}
	return interval
}

// RenewLock attempts to renew an already-acquired lock by rewriting its
// lock record with a fresh CreatedDate, conditioned on the caller's
// current lockID (its ETag). If the lock was lost — reclaimed by
// someone else, or self-healed away via TTL — it returns ok=false and
// no error, the same "lost, not failed" contract as the teacher's
// RenewLock.
func (c *LockClient) RenewLock(ctx context.Context, sessionID string, lockID string) (newLockID string, ok bool, err error) {
	logger := utils.LoggerFromContext(ctx).WithValues(
		utils.LogValues{}.AddSessionID(sessionID).AddLockID(lockID).AddOperation("lock.renew")...)

	id := lockRecordID(sessionID)
	pk := azcosmos.NewPartitionKeyString(id)

	rec := newLockRecord(sessionID, c.ttlSeconds, c.clock.Now().UTC().Unix(), c.owner)
	data, marshalErr := json.Marshal(rec)
	if marshalErr != nil {
		return "", false, marshalErr
	}

	etag := azcore.ETag(lockID)
	resp, renewErr := c.container.UpsertItem(ctx, pk, data, &azcosmos.ItemOptions{
		EnableContentResponseOnWrite: true,
		IfMatchEtag:                  &etag,
	})
	if renewErr != nil {
		if isPreconditionFailed(renewErr) || isNotFound(renewErr) {
			logger.Info("lock renewal: lock lost")
			return "", false, nil
		}
		return "", false, utils.TrackError(renewErr)
	}

	logger.Info("lock renewed")
	return string(resp.ETag), true, nil
}

// fmtLockAge renders how long ago a contended lock was created, useful
// for the facade's contention-result logging.
func fmtLockAge(createdAt time.Time) string {
	return fmt.Sprintf("%s ago", time.Since(createdAt).Round(time.Second))
}
