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
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/effemmess/illumos-omnios/pkg/pageout/hostctl"
)

// S5: async queue saturation. Filling every one of the 256 freelist
// slots succeeds; the 257th queueIORequest call fails.
func TestWritebackQueue_S5_Saturation(t *testing.T) {
	t.Parallel()
	as := require.New(t)

	host := hostctl.NewMockHost(1)
	k := newKstats(nil)
	q := newWritebackQueue(host, 256, k, NoopProbes{})
	v := &hostctl.MockVnode{ID: 1}

	for i := 0; i < 256; i++ {
		as.True(q.queueIORequest(v, uint64(i), host.DefaultCredential()), "slot %d should still be free", i)
	}
	as.False(q.queueIORequest(v, 256, host.DefaultCredential()))
	as.Equal(256, q.pendingLen())
	as.Equal(256, q.capacity())
}

func TestWritebackQueue_DefaultSizeIsTwoFiftySix(t *testing.T) {
	t.Parallel()
	as := require.New(t)

	host := hostctl.NewMockHost(1)
	k := newKstats(nil)
	q := newWritebackQueue(host, 0, k, NoopProbes{})
	as.Equal(256, q.capacity())
}

func TestWritebackQueue_RunPushesAndRecyclesSlot(t *testing.T) {
	t.Parallel()
	as := require.New(t)

	host := hostctl.NewMockHost(1)
	k := newKstats(nil)
	q := newWritebackQueue(host, 4, k, NoopProbes{})
	q.setMaxPushesPerTick(100)
	v := &hostctl.MockVnode{ID: 1}
	host.HoldVnode(v)

	as.True(q.queueIORequest(v, 0, host.DefaultCredential()))
	as.Equal(1, q.pendingLen())

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan struct{})
	go func() {
		q.run(ctx)
		close(runDone)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for q.pendingLen() > 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	as.Equal(0, q.pendingLen())
	as.Equal(uint64(1), q.pushCount.Load())
	as.Equal(4, q.capacity())
	as.Equal(int64(1), host.PutPageCalls())
	as.Equal(0, host.VnodeHoldCount(v))

	cancel()
	q.shutdownWake()
	select {
	case <-runDone:
	case <-time.After(2 * time.Second):
		t.Fatal("writeback master did not exit after cancellation")
	}
}

func TestWritebackQueue_PushFailureStillReleasesVnodeAndRecyclesSlot(t *testing.T) {
	t.Parallel()
	as := require.New(t)

	host := hostctl.NewMockHost(1)
	host.SetPutPageError(errTestPutPage)
	k := newKstats(nil)
	q := newWritebackQueue(host, 4, k, NoopProbes{})
	q.setMaxPushesPerTick(100)
	v := &hostctl.MockVnode{ID: 1}
	host.HoldVnode(v)

	as.True(q.queueIORequest(v, 0, host.DefaultCredential()))

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan struct{})
	go func() {
		q.run(ctx)
		close(runDone)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for q.pendingLen() > 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	as.Equal(0, q.pendingLen())
	as.Equal(4, q.capacity())
	as.Equal(0, host.VnodeHoldCount(v), "a failing push must still release its vnode hold")

	cancel()
	q.shutdownWake()
	select {
	case <-runDone:
	case <-time.After(2 * time.Second):
		t.Fatal("writeback master did not exit after cancellation")
	}
}

// The pending stack pushes and pops from the same end: the most
// recently queued request is the one dispatched next.
func TestWritebackQueue_PendingIsLIFO(t *testing.T) {
	t.Parallel()
	as := require.New(t)

	host := hostctl.NewMockHost(1)
	k := newKstats(nil)
	q := newWritebackQueue(host, 4, k, NoopProbes{})
	v := &hostctl.MockVnode{ID: 1}

	as.True(q.queueIORequest(v, 100, host.DefaultCredential()))
	as.True(q.queueIORequest(v, 200, host.DefaultCredential()))
	as.True(q.queueIORequest(v, 300, host.DefaultCredential()))

	q.mu.Lock()
	first := q.pending[len(q.pending)-1]
	q.mu.Unlock()
	as.Equal(uint64(300), first.offset, "the last request queued must be the first popped")
}

var errTestPutPage = &testPutPageError{}

type testPutPageError struct{}

func (*testPutPageError) Error() string { return "put_page failed" }
