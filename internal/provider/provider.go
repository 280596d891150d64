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
	"fmt"
	"sync"
	"time"

	"github.com/Azure/cosmos-sessionstore/internal/database"
	"github.com/Azure/cosmos-sessionstore/internal/tracing"
	"github.com/Azure/cosmos-sessionstore/internal/utils"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// maxSessionIDLength is the host framework's typical session-id maximum,
// per §4.5.
const maxSessionIDLength = 80

var facadeTracer = otel.Tracer(utils.TracerName)

// ErrInvalidSessionID is returned when a session id is empty or exceeds
// maxSessionIDLength.
type ErrInvalidSessionID struct {
	SessionID string
}

func (e *ErrInvalidSessionID) Error() string {
	return fmt.Sprintf("provider: invalid session id (len=%d, max=%d)", len(e.SessionID), maxSessionIDLength)
}

func validateSessionID(id string) error {
	if id == "" || len(id) > maxSessionIDLength {
		return &ErrInvalidSessionID{SessionID: id}
	}
	return nil
}

// ContentionResult is returned by GetExclusive when the lock is already
// held by someone else.
type ContentionResult struct {
	LockDate time.Time
	Age      time.Duration
}

// backend is the per-provider-name singleton state: the database client
// plus the background queue used for fire-and-forget lock release and
// deferred lifetime-extension.
type backend struct {
	client *database.Client
	queue  *backgroundQueue
	name   string
}

// Registry is the named-singleton registry from §4.5/§9: one backend per
// provider name, constructed at most once, visible to every Facade built
// against that name thereafter. Construction uses lazy-publication: the
// first caller for a given name builds the backend and every other
// caller, including concurrent ones, waits on that single build and then
// shares its result.
type Registry struct {
	mu       sync.Mutex
	backends map[string]*backendSlot
}

type backendSlot struct {
	once    sync.Once
	backend *backend
	err     error
}

// NewRegistry returns an empty Registry. A process normally has exactly
// one, shared across however many Facade instances the host framework
// constructs.
func NewRegistry() *Registry {
	return &Registry{backends: make(map[string]*backendSlot)}
}

// Facade returns the named Facade, constructing its backing database
// Client at most once. cfg is only consulted the first time name is
// seen; subsequent calls for the same name ignore cfg and return the
// already-constructed backend, matching the host framework's contract
// that multiple facade instances for one provider name share state.
func (r *Registry) Facade(ctx context.Context, name string, cfg database.Config) (*Facade, error) {
	r.mu.Lock()
	slot, ok := r.backends[name]
	if !ok {
		slot = &backendSlot{}
		r.backends[name] = slot
	}
	r.mu.Unlock()

	slot.once.Do(func() {
		client, err := database.NewClientFromConnectionString(ctx, cfg)
		if err != nil {
			slot.err = err
			return
		}
		slot.backend = &backend{
			client: client,
			queue:  newBackgroundQueue(),
			name:   name,
		}
	})

	if slot.err != nil {
		return nil, slot.err
	}
	return &Facade{backend: slot.backend}, nil
}

// Facade implements C6 against one named backend. Multiple Facade values
// returned for the same provider name share the same backend and
// therefore the same database Client and background queue.
type Facade struct {
	backend *backend
}

func (f *Facade) store() database.StoreInterface {
	return f.backend.client.Store
}

func (f *Facade) lockClient() database.LockClientInterface {
	return f.backend.client.LockClient
}

// CreateUninitialized implements "Create uninitialized item": writeContents
// with an empty value and isNew=true.
func (f *Facade) CreateUninitialized(ctx context.Context, sessionID string, timeoutMinutes int32) error {
	if err := validateSessionID(sessionID); err != nil {
		return err
	}

	ctx, span := facadeTracer.Start(ctx, "provider.CreateUninitialized", trace.WithAttributes(
		tracing.SessionIDKey.String(sessionID), tracing.ProviderNameKey.String(f.backend.name)))
	defer span.End()

	empty := &database.SessionValue{TimeoutMinutes: timeoutMinutes}
	return f.store().WriteContents(ctx, sessionID, empty, true)
}

// GetShared implements "Get (shared)": a plain read, with lifetime
// extension scheduled onto the background queue rather than performed
// inline, so the read hot-path is never stalled by it.
func (f *Facade) GetShared(ctx context.Context, sessionID string) (*database.SessionValue, *RequestScope, error) {
	if err := validateSessionID(sessionID); err != nil {
		return nil, nil, err
	}

	ctx, span := facadeTracer.Start(ctx, "provider.GetShared", trace.WithAttributes(
		tracing.SessionIDKey.String(sessionID), tracing.ProviderNameKey.String(f.backend.name)))
	defer span.End()

	value, _, stash, err := f.store().GetSession(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}

	scope := NewRequestScope(sessionID)
	scope.setStash(stash)
	return value, scope, nil
}

// ScheduleExtension implements the request-end half of "Get (shared)": a
// background, best-effort sliding-expiration write using the resource the
// matching GetShared call stashed.
func (f *Facade) ScheduleExtension(ctx context.Context, scope *RequestScope) {
	if scope == nil || scope.stash == nil {
		return
	}
	stash := scope.stash
	name := f.backend.name

	f.backend.queue.Submit(ctx, func(bgCtx context.Context) {
		logger := utils.LoggerFromContext(bgCtx).WithValues(
			utils.LogValues{}.AddSessionID(scope.SessionID).AddOperation("provider.extend")...)
		bgCtx = utils.ContextWithLogger(bgCtx, logger)

		_, span := facadeTracer.Start(bgCtx, "provider.ScheduleExtension", trace.WithAttributes(
			tracing.SessionIDKey.String(scope.SessionID), tracing.ProviderNameKey.String(name)))
		defer span.End()

		if _, err := f.store().ExtendLifetime(bgCtx, stash); err != nil {
			logger.Error(err, "background lifetime extension failed")
		}
	})
}

// GetExclusive implements "Get (exclusive)": acquire the lock; on
// contention return the observed lock age without reading content; on
// success read the content and, if it does not exist, release the lock
// and return nil (mirroring the source behavior of never leaving an
// exclusive lock held over a nonexistent session).
func (f *Facade) GetExclusive(ctx context.Context, sessionID string) (*database.SessionValue, *RequestScope, *ContentionResult, error) {
	if err := validateSessionID(sessionID); err != nil {
		return nil, nil, nil, err
	}

	ctx, span := facadeTracer.Start(ctx, "provider.GetExclusive", trace.WithAttributes(
		tracing.SessionIDKey.String(sessionID), tracing.ProviderNameKey.String(f.backend.name)))
	defer span.End()

	logger := utils.LoggerFromContext(ctx).WithValues(
		utils.LogValues{}.AddSessionID(sessionID).AddOperation("provider.getExclusive")...)

	taken, lockDate, lockID, err := f.lockClient().Acquire(ctx, sessionID)
	if err != nil {
		return nil, nil, nil, err
	}
	if !taken {
		logger.Info("exclusive acquire contended", "lockAge", time.Since(lockDate).Round(time.Second).String())
		return nil, nil, &ContentionResult{LockDate: lockDate, Age: time.Since(lockDate)}, nil
	}

	scope := NewRequestScope(sessionID)
	scope.setLock(lockID)

	value, _, stash, err := f.store().GetSession(ctx, sessionID)
	if err != nil {
		f.releaseNow(ctx, scope)
		return nil, nil, nil, err
	}
	if value == nil && stash == nil {
		f.releaseNow(ctx, scope)
		return nil, nil, nil, nil
	}
	scope.setStash(stash)

	return value, scope, nil, nil
}

// ReleaseExclusive implements "Release exclusive": fire-and-forget lock
// release via the background queue.
func (f *Facade) ReleaseExclusive(ctx context.Context, scope *RequestScope) {
	if scope == nil || !scope.acquired {
		return
	}
	f.scheduleRelease(ctx, scope.SessionID, scope.lockID)
	scope.clearLock()
}

// SetAndReleaseExclusive implements "Set and release exclusive":
// writeContents, then release (unless the caller is in the middle of
// creating the session, matching §4.5's "when not newly created"
// clause); release is always attempted regardless of the write's
// outcome.
func (f *Facade) SetAndReleaseExclusive(ctx context.Context, scope *RequestScope, value *database.SessionValue, isNew bool) error {
	if err := validateSessionID(scope.SessionID); err != nil {
		return err
	}

	ctx, span := facadeTracer.Start(ctx, "provider.SetAndReleaseExclusive", trace.WithAttributes(
		tracing.SessionIDKey.String(scope.SessionID), tracing.ProviderNameKey.String(f.backend.name)))
	defer span.End()

	writeErr := f.store().WriteContents(ctx, scope.SessionID, value, isNew)

	if !isNew {
		f.ReleaseExclusive(ctx, scope)
	}

	return writeErr
}

// Remove implements "Remove": delete both the content and lock records.
func (f *Facade) Remove(ctx context.Context, sessionID string) error {
	if err := validateSessionID(sessionID); err != nil {
		return err
	}

	ctx, span := facadeTracer.Start(ctx, "provider.Remove", trace.WithAttributes(
		tracing.SessionIDKey.String(sessionID), tracing.ProviderNameKey.String(f.backend.name)))
	defer span.End()

	return f.store().Remove(ctx, sessionID, f.lockClient(), "")
}

// ResetTimeout implements "Reset timeout": a documented no-op, since the
// dampening rule already handles sliding expiration on every shared read.
func (f *Facade) ResetTimeout(ctx context.Context, sessionID string) error {
	return validateSessionID(sessionID)
}

// releaseNow releases synchronously; used on the error/not-found paths
// inside GetExclusive where the caller is about to return anyway and
// there is no request-end boundary to defer to.
func (f *Facade) releaseNow(ctx context.Context, scope *RequestScope) {
	if scope == nil || !scope.acquired {
		return
	}
	if err := f.lockClient().Release(ctx, scope.SessionID, scope.lockID); err != nil {
		utils.LoggerFromContext(ctx).Error(err, "synchronous release failed")
	}
	scope.clearLock()
}

func (f *Facade) scheduleRelease(ctx context.Context, sessionID, lockID string) {
	name := f.backend.name
	f.backend.queue.Submit(ctx, func(bgCtx context.Context) {
		logger := utils.LoggerFromContext(bgCtx).WithValues(
			utils.LogValues{}.AddSessionID(sessionID).AddLockID(lockID).AddOperation("provider.release")...)
		bgCtx = utils.ContextWithLogger(bgCtx, logger)

		_, span := facadeTracer.Start(bgCtx, "provider.ReleaseExclusive", trace.WithAttributes(
			tracing.SessionIDKey.String(sessionID), tracing.ProviderNameKey.String(name)))
		defer span.End()

		if err := f.lockClient().Release(bgCtx, sessionID, lockID); err != nil {
			logger.Error(err, "background lock release failed")
		}
	})
}

// Close stops the backend's background queue, waiting up to the
// context's deadline for in-flight release/extension tasks to drain.
func (f *Facade) Close(ctx context.Context) {
	f.backend.queue.Close(ctx)
}
