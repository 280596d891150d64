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
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"
)

func newTestStore(container *fakeContainer) *Store {
	return NewStore(container, DefaultConfig())
}

func TestStoreFreshSessionLifecycle(t *testing.T) {
	container := newFakeContainer()
	store := newTestStore(container)
	ctx := context.Background()

	value, isNew, stash, err := store.GetSession(ctx, "s1")
	require.NoError(t, err)
	require.Nil(t, value)
	require.False(t, isNew)
	require.Nil(t, stash)

	fresh := &SessionValue{TimeoutMinutes: 20}
	require.NoError(t, store.WriteContents(ctx, "s1", fresh, true))

	value, isNew, stash, err = store.GetSession(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, value)
	require.True(t, isNew)
	require.NotNil(t, stash)
	require.Equal(t, int32(20), value.TimeoutMinutes)
}

func TestStoreRemoveSemantics(t *testing.T) {
	container := newFakeContainer()
	store := newTestStore(container)
	lockClient := NewLockClient(container, 30)
	ctx := context.Background()

	require.NoError(t, store.WriteContents(ctx, "s4", &SessionValue{TimeoutMinutes: 5}, false))
	_, _, lockID, err := lockClient.Acquire(ctx, "s4")
	require.NoError(t, err)

	require.NoError(t, store.Remove(ctx, "s4", lockClient, lockID))

	value, isNew, _, err := store.GetSession(ctx, "s4")
	require.NoError(t, err)
	require.Nil(t, value)
	require.False(t, isNew)

	require.NoError(t, lockClient.Release(ctx, "s4", "stale-credential"))
}

func TestStoreRemoveDeletesForeignLockRecordEvenWithoutHeldCredential(t *testing.T) {
	container := newFakeContainer()
	store := newTestStore(container)
	lockClient := NewLockClient(container, 30)
	ctx := context.Background()

	require.NoError(t, store.WriteContents(ctx, "s7", &SessionValue{TimeoutMinutes: 5}, false))

	// Some other process holds the lock; this caller never acquired it and
	// so has no credential to pass to Remove, mirroring the facade's
	// Remove(ctx, sessionID) call, which always passes "".
	_, _, _, err := lockClient.Acquire(ctx, "s7")
	require.NoError(t, err)

	require.NoError(t, store.Remove(ctx, "s7", lockClient, ""))

	taken, _, _, err := lockClient.Acquire(ctx, "s7")
	require.NoError(t, err)
	require.True(t, taken, "the foreign lock record must be gone after Remove, not left behind")
}

func TestExtendLifetimeDampeningRule(t *testing.T) {
	container := newFakeContainer()
	t0 := time.Now()
	fake := clocktesting.NewFakePassiveClock(t0)
	container.now = fake.Now

	store := newTestStore(container)
	store.clock = fake

	ctx := context.Background()

	require.NoError(t, store.WriteContents(ctx, "s5", &SessionValue{TimeoutMinutes: 1}, false))
	_, _, stash, err := store.GetSession(ctx, "s5")
	require.NoError(t, err)
	require.Equal(t, int32(60), stash.ttlSeconds)

	fake.SetTime(t0.Add(20 * time.Second))
	fired, err := store.ExtendLifetime(ctx, stash)
	require.NoError(t, err)
	require.False(t, fired, "extension must be a no-op while remaining lifetime exceeds the tolerated threshold")

	fake.SetTime(t0.Add(41 * time.Second))
	fired, err = store.ExtendLifetime(ctx, stash)
	require.NoError(t, err)
	require.True(t, fired, "extension must fire once remaining lifetime drops below one third of ttl")
}

func TestExtendLifetimeSwallowsStaleETag(t *testing.T) {
	container := newFakeContainer()
	store := newTestStore(container)
	ctx := context.Background()

	require.NoError(t, store.WriteContents(ctx, "s6", &SessionValue{TimeoutMinutes: 1}, false))
	_, _, stash, err := store.GetSession(ctx, "s6")
	require.NoError(t, err)

	// A concurrent write moves the ETag out from under this stash.
	require.NoError(t, store.WriteContents(ctx, "s6", &SessionValue{TimeoutMinutes: 1}, false))

	stash.createdDate = 0 // force past the dampening threshold
	fired, err := store.ExtendLifetime(ctx, stash)
	require.NoError(t, err)
	require.False(t, fired)
}
