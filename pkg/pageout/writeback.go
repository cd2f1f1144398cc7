/*
Copyright 2022 The Katalyst Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package pageout

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/effemmess/illumos-omnios/pkg/util/general"
)

// writebackRequest is one queued async put_page request.
type writebackRequest struct {
	vnode  VnodeHandle
	offset uint64
	length uint64
	flags  PutPageFlags
	cred   Credential
}

// writebackQueue is a bounded freelist plus a LIFO pending stack,
// guarded by one mutex and one condition variable (push_lock/push_cv
// in the original). A newly queued request is pushed and popped from
// the same end, so the most recently dirtied page is pushed first
// under write pressure. inFlight and pushCount are the state the
// deadman watches.
type writebackQueue struct {
	host Host
	k    *kstats
	pr   Probes

	mu       sync.Mutex
	cond     *sync.Cond
	freelist []*writebackRequest
	pending  []*writebackRequest

	maxPushesPerTick int

	inFlight  atomic.Bool
	pushCount atomic.Uint64
}

func newWritebackQueue(host Host, size int, k *kstats, pr Probes) *writebackQueue {
	if size <= 0 {
		size = 256
	}
	q := &writebackQueue{
		host:     host,
		k:        k,
		pr:       pr,
		freelist: make([]*writebackRequest, 0, size),
	}
	q.cond = sync.NewCond(&q.mu)
	for i := 0; i < size; i++ {
		q.freelist = append(q.freelist, &writebackRequest{})
	}
	return q
}

func (q *writebackQueue) capacity() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.freelist) + len(q.pending)
}

func (q *writebackQueue) pendingLen() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

func (q *writebackQueue) setMaxPushesPerTick(n int) {
	q.mu.Lock()
	q.maxPushesPerTick = n
	q.mu.Unlock()
	q.cond.Broadcast()
}

// queueIORequest pops a freelist slot and pushes it onto the pending
// stack. Returns false if the freelist is exhausted — the caller must
// then release its vnode hold itself.
func (q *writebackQueue) queueIORequest(v VnodeHandle, offset uint64, cred Credential) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.freelist)
	if n == 0 {
		return false
	}
	req := q.freelist[n-1]
	q.freelist = q.freelist[:n-1]

	req.vnode = v
	req.offset = offset
	req.length = pageSize
	req.flags = PutPageAsync | PutPageFree
	req.cred = cred

	q.pending = append(q.pending, req)

	if len(q.freelist) == 0 {
		q.cond.Signal()
	}
	return true
}

const pageSize = 4096

// run is the writeback master loop.
// It blocks until there is pending work and the per-tick push budget
// has not been exceeded, dispatches exactly one request to the
// external Writeback capability, then returns the slot to the
// freelist. It runs until ctx is canceled.
func (q *writebackQueue) run(ctx context.Context) {
	pushesThisTick := 0

	for {
		q.mu.Lock()
		for (len(q.pending) == 0 || pushesThisTick > q.maxPushesPerTick) && ctx.Err() == nil {
			q.cond.Wait()
			pushesThisTick = 0
		}
		if ctx.Err() != nil {
			q.mu.Unlock()
			return
		}

		n := len(q.pending)
		req := q.pending[n-1]
		q.pending[n-1] = nil
		q.pending = q.pending[:n-1]
		q.inFlight.Store(true)
		q.mu.Unlock()

		q.pr.PageoutPush()
		err := q.host.PutPage(ctx, req.vnode, req.offset, req.length, req.flags, req.cred)
		if err == nil {
			pushesThisTick++
		} else {
			general.Warningf("put_page failed for vnode %v offset %d: %v", req.vnode, req.offset, err)
		}

		// Released regardless of push success: a failing push still
		// consumes a slot and releases its vnode hold, it just doesn't
		// count against the per-tick budget.
		q.host.ReleaseVnode(req.vnode)

		q.mu.Lock()
		q.inFlight.Store(false)
		q.pushCount.Add(1)
		req.vnode = nil
		q.freelist = append(q.freelist, req)
		q.mu.Unlock()
	}
}

// wakeIfPending signals the master if there is work waiting.
func (q *writebackQueue) wakeIfPending() {
	q.mu.Lock()
	hasPending := len(q.pending) > 0
	q.mu.Unlock()
	if hasPending {
		q.cond.Signal()
	}
}

// shutdownWake unconditionally broadcasts the master's condition
// variable, so a master parked in run()'s Wait() with no pending work
// observes ctx cancellation instead of blocking forever.
func (q *writebackQueue) shutdownWake() {
	q.mu.Lock()
	q.cond.Broadcast()
	q.mu.Unlock()
}
