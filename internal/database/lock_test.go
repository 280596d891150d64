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
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"
)

func TestLockMutualExclusion(t *testing.T) {
	container := newFakeContainer()
	client := NewLockClient(container, 30)

	const attempts = 20
	var successes int32
	var wg sync.WaitGroup
	wg.Add(attempts)

	for i := 0; i < attempts; i++ {
		go func() {
			defer wg.Done()
			taken, _, _, err := client.Acquire(context.Background(), "mutex-session")
			require.NoError(t, err)
			if taken {
				atomic.AddInt32(&successes, 1)
			}
		}()
	}
	wg.Wait()

	require.EqualValues(t, 1, successes)
}

func TestLockReleaseIdempotent(t *testing.T) {
	container := newFakeContainer()
	client := NewLockClient(container, 30)
	ctx := context.Background()

	taken, _, lockID, err := client.Acquire(ctx, "s1")
	require.NoError(t, err)
	require.True(t, taken)

	require.NoError(t, client.Release(ctx, "s1", lockID))
	require.NoError(t, client.Release(ctx, "s1", lockID))

	taken, _, _, err = client.Acquire(ctx, "s1")
	require.NoError(t, err)
	require.True(t, taken)
}

func TestLockReleaseWrongIDLeavesLockIntact(t *testing.T) {
	container := newFakeContainer()
	client := NewLockClient(container, 30)
	ctx := context.Background()

	taken, _, _, err := client.Acquire(ctx, "s2")
	require.NoError(t, err)
	require.True(t, taken)

	require.NoError(t, client.Release(ctx, "s2", "bogus-etag"))

	taken, _, _, err = client.Acquire(ctx, "s2")
	require.NoError(t, err)
	require.False(t, taken, "lock must still be held after a release with the wrong credential")
}

func TestLockTTLSelfHeal(t *testing.T) {
	container := newFakeContainer()
	now := time.Now()
	container.now = func() time.Time { return now }

	client := NewLockClient(container, 1)
	ctx := context.Background()

	taken, _, _, err := client.Acquire(ctx, "s3")
	require.NoError(t, err)
	require.True(t, taken)

	taken, _, _, err = client.Acquire(ctx, "s3")
	require.NoError(t, err)
	require.False(t, taken)

	now = now.Add(2 * time.Second)

	taken, _, _, err = client.Acquire(ctx, "s3")
	require.NoError(t, err)
	require.True(t, taken, "a new acquire must succeed once the held lock's TTL has elapsed")
}

func TestLockAcquirePhase2OnContendedThenReleasedLock(t *testing.T) {
	container := newFakeContainer()
	client := NewLockClient(container, 30)
	ctx := context.Background()

	taken, _, lockID, err := client.Acquire(ctx, "s4")
	require.NoError(t, err)
	require.True(t, taken)

	taken, lockDate, _, err := client.Acquire(ctx, "s4")
	require.NoError(t, err)
	require.False(t, taken)
	require.False(t, lockDate.IsZero())

	require.NoError(t, client.Release(ctx, "s4", lockID))

	taken, _, secondLockID, err := client.Acquire(ctx, "s4")
	require.NoError(t, err)
	require.True(t, taken)
	require.NotEqual(t, lockID, secondLockID)
}

func TestLockClientUsesInjectedClockForCreatedDate(t *testing.T) {
	container := newFakeContainer()
	client := NewLockClient(container, 30)

	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	client.clock = clocktesting.NewFakePassiveClock(fixed)

	ctx := context.Background()
	_, lockDate, _, err := client.Acquire(ctx, "s7")
	require.NoError(t, err)
	require.True(t, lockDate.Equal(fixed))
}

func TestRenewLockSucceedsThenReportsLostOnStaleID(t *testing.T) {
	container := newFakeContainer()
	client := NewLockClient(container, 30)
	ctx := context.Background()

	_, _, lockID, err := client.Acquire(ctx, "s5")
	require.NoError(t, err)

	newLockID, ok, err := client.RenewLock(ctx, "s5", lockID)
	require.NoError(t, err)
	require.True(t, ok)
	require.NotEqual(t, lockID, newLockID)

	// Renewing again with the now-stale lockID must report the lock lost,
	// not an error: someone else (here, our own prior renewal) has moved
	// the ETag forward.
	_, ok, err = client.RenewLock(ctx, "s5", lockID)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestHoldLockRenewsUntilStopped(t *testing.T) {
	container := newFakeContainer()
	client := NewLockClient(container, 1)
	ctx := context.Background()

	_, _, lockID, err := client.Acquire(ctx, "s6")
	require.NoError(t, err)

	cancelCtx, stop := client.HoldLock(ctx, "s6", lockID)

	// renewInterval floors at one second even for a 1-second TTL, so wait
	// past that floor to let at least one renewal tick fire.
	time.Sleep(1100 * time.Millisecond)

	finalLockID, held := stop()
	require.True(t, held, "HoldLock must still consider the lock held when stopped voluntarily")
	require.Error(t, cancelCtx.Err(), "stopping always cancels the derived context, whether or not the lock was lost")
	require.NotEqual(t, lockID, finalLockID, "at least one renewal must have rotated the lock's credential")

	// Releasing under the latest (renewed) credential must succeed.
	require.NoError(t, client.Release(ctx, "s6", finalLockID))
}
