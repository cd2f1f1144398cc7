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

	pageoutconfig "github.com/effemmess/illumos-omnios/pkg/config/pageout"
	"github.com/effemmess/illumos-omnios/pkg/pageout/hostctl"
)

func TestCtx_StartStopLifecycle(t *testing.T) {
	t.Parallel()
	as := require.New(t)

	host := hostctl.NewMockHost(4096)
	host.SetFreeMem(1_000_000)
	conf := pageoutconfig.NewPageoutConfiguration()

	c := New(host, conf, 4096, WithProbes(NoopProbes{}))
	as.Greater(c.Thresholds().Lotsfree, uint64(0))

	c.Start(context.Background())
	time.Sleep(50 * time.Millisecond)
	c.Stop()
}

// End-to-end round trip: drive the scheduler tick directly against a
// host under memory pressure with dirty, vnode-backed pages seeded on
// the ring, then run one scanner pass and confirm the writeback queue
// picked up work.
func TestCtx_SchedulerToScannerToWritebackRoundTrip(t *testing.T) {
	t.Parallel()
	as := require.New(t)

	const total = 64
	host := hostctl.NewMockHost(total)
	host.SetFreeMem(0)
	host.SetNeedFree(0)

	v := &hostctl.MockVnode{ID: 1}
	for i := 0; i < total; i++ {
		host.MarkDirty(PageID(i), v, uint64(i)*4096)
	}

	conf := pageoutconfig.NewPageoutConfiguration()
	c := New(host, conf, total, WithProbes(NoopProbes{}))

	// Force calibration complete so the scheduler publishes a
	// non-startup scan budget immediately.
	c.clock.pageoutNewSpread = 1
	c.state.currentScanners.Store(1)

	c.sched.tick()
	as.Greater(c.state.scanBudget.Load(), uint64(0))

	w := newScannerWorker(0, host, conf, c.clock, c.calib, c.state, c.dec, c.pr, c.k)
	w.reposition()
	w.scanOnce()

	as.Greater(c.wb.pendingLen()+int(host.PutPageCalls()), 0,
		"scanning dirty vnode-backed pages should have queued or already dispatched writeback work")
}
