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
	"sync"

	"github.com/google/uuid"

	"github.com/Azure/cosmos-sessionstore/internal/utils"
)

// backgroundQueueDepth is the small, bounded size of the fire-and-forget
// work queue §9 calls for: lock release and deferred lifetime-extension
// must not block request completion, but must also not spawn an
// unbounded number of detached goroutines under load.
const backgroundQueueDepth = 256

// backgroundWorkers is the fixed size of the worker pool draining the
// queue.
const backgroundWorkers = 4

// backgroundQueue is a bounded, supervised task queue with drop-oldest
// semantics: when full, the oldest queued task is discarded to make room
// for the newest, on the theory that a late lock release/extension is
// strictly less harmful than blocking the caller or growing without
// bound.
type backgroundQueue struct {
	tasks chan func(context.Context)

	mu      sync.Mutex
	closed  bool
	logger  func() string
	cancel  context.CancelFunc
	workers sync.WaitGroup
}

// newBackgroundQueue starts backgroundWorkers goroutines draining a
// channel of depth backgroundQueueDepth. Call Close to stop it during
// process shutdown.
func newBackgroundQueue() *backgroundQueue {
	ctx, cancel := context.WithCancel(context.Background())
	q := &backgroundQueue{
		tasks:  make(chan func(context.Context), backgroundQueueDepth),
		cancel: cancel,
	}

	for i := 0; i < backgroundWorkers; i++ {
		q.workers.Add(1)
		go q.run(ctx)
	}
	return q
}

func (q *backgroundQueue) run(ctx context.Context) {
	defer q.workers.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case task, ok := <-q.tasks:
			if !ok {
				return
			}
			task(ctx)
		}
	}
}

// Submit enqueues task for fire-and-forget execution. If the queue is
// full the oldest pending task is dropped to make room; if the queue has
// been closed, task is dropped entirely and logged.
//
// Each submission is tagged with a fresh correlation ID so that a task's
// log lines — emitted later, on a worker goroutine, detached from the
// request that queued it — can still be tied back to this Submit call
// in aggregated logs.
func (q *backgroundQueue) Submit(ctx context.Context, task func(context.Context)) {
	// Held for the whole submission so Close cannot close the channel
	// between the closed check and the send below.
	q.mu.Lock()
	defer q.mu.Unlock()
	closed := q.closed

	taskID := uuid.NewString()
	logger := utils.LoggerFromContext(ctx).WithValues(utils.LogValues{}.AddTaskID(taskID)...)

	if closed {
		logger.Info("background queue closed, dropping task", "level", "warn")
		return
	}

	wrapped := func(taskCtx context.Context) {
		task(utils.ContextWithLogger(taskCtx, logger))
	}

	for {
		select {
		case q.tasks <- wrapped:
			return
		default:
			select {
			case <-q.tasks:
				// Dropped the oldest pending task; retry the send.
			default:
				// Raced with a worker draining the queue; retry the send.
			}
		}
	}
}

// Close stops accepting new tasks and waits for in-flight tasks (and
// anything still queued) to drain, bounded by the caller's context.
func (q *backgroundQueue) Close(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.tasks)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.workers.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		q.cancel()
	}
}
