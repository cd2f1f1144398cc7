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

func newTestScannerWorker(t *testing.T, inst int, host *hostctl.MockHost, th Thresholds) (*scannerWorker, *sharedState) {
	t.Helper()
	conf := pageoutconfig.NewPageoutConfiguration()

	clock := NewClock(conf)
	clock.Setup(false, th.TotalPages)
	clock.th = th
	clock.pageoutNewSpread = 1

	calib := newCalibrationState(conf.PageoutSampleLim)
	state := newSharedState()
	k := newKstats(nil)
	pr := NoopProbes{}
	wb := newWritebackQueue(host, conf.AsyncListSize, k, pr)
	dec := newDecider(host, state, pr, k, wb)

	w := newScannerWorker(inst, host, conf, clock, calib, state, dec, pr, k)
	return w, state
}

func TestScannerWorker_RepositionHandspread(t *testing.T) {
	t.Parallel()
	as := require.New(t)

	host := hostctl.NewMockHost(1000)
	th := Thresholds{TotalPages: 1000, Handspreadpages: 100, Lotsfree: 1, MaxPageoutNsec: 100}
	w, state := newTestScannerWorker(t, 0, host, th)
	state.currentScanners.Store(1)

	w.reposition()

	as.True(w.positioned)
	as.Equal(PageID(0), w.back)
	as.Equal(PageID(100), w.front)
}

func TestScannerWorker_RepositionTwoInstancesSplitRing(t *testing.T) {
	t.Parallel()
	as := require.New(t)

	host := hostctl.NewMockHost(1000)
	th := Thresholds{TotalPages: 1000, Handspreadpages: 50, Lotsfree: 1, MaxPageoutNsec: 100}

	w0, state := newTestScannerWorker(t, 0, host, th)
	state.currentScanners.Store(2)
	w0.reposition()

	w1, _ := newTestScannerWorker(t, 1, host, th)
	w1.state = state
	w1.reposition()

	as.Equal(PageID(0), w0.back)
	as.Equal(PageID(500), w1.back)
	as.NotEqual(w0.back, w1.back)
}

func TestScannerWorker_ScanOnceFreesCleanPagesUnderLowMemory(t *testing.T) {
	t.Parallel()
	as := require.New(t)

	host := hostctl.NewMockHost(16)
	host.SetFreeMem(0)
	host.SetNeedFree(0)
	host.SetNowNs(0)

	th := Thresholds{
		TotalPages:     16,
		Handspreadpages: 4,
		Lotsfree:       100,
		MinPageoutNsec: 1,
		MaxPageoutNsec: int64(time.Second),
	}
	w, state := newTestScannerWorker(t, 0, host, th)
	state.currentScanners.Store(1)
	state.scanBudget.Store(16)
	state.cpuBudgetNs.Store(int64(time.Second))
	w.reposition()

	w.scanOnce()

	as.Greater(state.nscan.Load(), uint64(0))
	as.True(host.IsFree(0), "the back hand starts on clean page 0 and frees it")
}

func TestScannerWorker_ShouldKeepScanning_ZonesOverAlwaysContinues(t *testing.T) {
	t.Parallel()
	as := require.New(t)

	host := hostctl.NewMockHost(16)
	host.SetFreeMem(1_000_000)
	th := Thresholds{TotalPages: 16, Lotsfree: 1, MaxPageoutNsec: 100}
	w, state := newTestScannerWorker(t, 0, host, th)
	state.zonesOver.Store(true)

	as.True(w.shouldKeepScanning(false))
}

func TestScannerWorker_ShouldKeepScanning_CalmAndPlentifulStops(t *testing.T) {
	t.Parallel()
	as := require.New(t)

	host := hostctl.NewMockHost(16)
	host.SetFreeMem(1_000_000)
	th := Thresholds{TotalPages: 16, Lotsfree: 1, MaxPageoutNsec: 100}
	w, _ := newTestScannerWorker(t, 0, host, th)

	as.False(w.shouldKeepScanning(false))
}

func TestScannerWorker_CalibrationBookkeeping_OnlyAccumulatesDuringStartup(t *testing.T) {
	t.Parallel()
	as := require.New(t)

	host := hostctl.NewMockHost(16)
	th := Thresholds{TotalPages: 16, Lotsfree: 1, MaxPageoutNsec: 100}
	w, _ := newTestScannerWorker(t, 0, host, th)
	w.clock.pageoutNewSpread = 0

	w.calibrationBookkeeping(true, 1000, int64(time.Second))
	as.Equal(uint(1), w.calib.sampleCount)

	for w.calib.startup() {
		w.calibrationBookkeeping(true, 1000, int64(time.Second))
	}
	as.False(w.clock.Calibrated())

	w.calibrationBookkeeping(false, 0, 0)
	as.True(w.clock.Calibrated())
}

func TestScannerWorker_RunTerminatesOnShrinkBelowInstance(t *testing.T) {
	t.Parallel()
	as := require.New(t)

	host := hostctl.NewMockHost(16)
	th := Thresholds{TotalPages: 16, Handspreadpages: 4, Lotsfree: 1, MaxPageoutNsec: 100}
	w, state := newTestScannerWorker(t, 2, host, th)
	state.currentScanners.Store(1)
	state.resetHand[2].Store(true)

	done := make(chan struct{})
	go func() {
		w.run(context.Background())
		close(done)
	}()

	// sync.Cond exposes no waiter count, so retry the broadcast until
	// the worker's goroutine has actually parked on Wait(); a single
	// broadcast racing the goroutine's startup would otherwise be lost.
	deadline := time.Now().Add(2 * time.Second)
	for {
		select {
		case <-done:
			return
		default:
		}
		if time.Now().After(deadline) {
			t.Fatal("scanner worker did not terminate after shrink below its instance")
		}
		state.wakeScanners()
		time.Sleep(time.Millisecond)
	}
}
