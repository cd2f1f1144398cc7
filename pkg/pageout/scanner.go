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

	pageoutconfig "github.com/effemmess/illumos-omnios/pkg/config/pageout"
)

// scannerWorker is one of current_scanners clock-hand walkers.
// Instance 0 additionally performs calibration bookkeeping.
type scannerWorker struct {
	inst int

	host  Host
	conf  *pageoutconfig.PageoutConfiguration
	clock *Clock
	calib *calibrationState
	state *sharedState
	dec   *decider
	pr    Probes
	k     *kstats

	front, back PageID
	positioned  bool

	count     uint64
	totalWraps uint64
}

func newScannerWorker(inst int, host Host, conf *pageoutconfig.PageoutConfiguration, clock *Clock, calib *calibrationState, state *sharedState, dec *decider, pr Probes, k *kstats) *scannerWorker {
	return &scannerWorker{inst: inst, host: host, conf: conf, clock: clock, calib: calib, state: state, dec: dec, pr: pr, k: k}
}

// run blocks on the shared wake condition variable and performs one
// scan pass per wake, until ctx is canceled.
func (w *scannerWorker) run(ctx context.Context) {
	for {
		w.state.scanWakeMu.Lock()
		w.state.scanWake.Wait()
		w.state.scanWakeMu.Unlock()

		if ctx.Err() != nil {
			return
		}

		if !w.conf.DoPageout {
			continue
		}

		if w.state.resetHand[w.inst].Load() {
			w.state.resetHand[w.inst].Store(false)
			if w.inst >= int(w.state.currentScanners.Load()) {
				return
			}
			w.reposition()
		}

		if !w.positioned {
			w.reposition()
		}

		w.scanOnce()
	}
}

// reposition recomputes this worker's front/back hands from the
// current scanner-pool size.
func (w *scannerWorker) reposition() {
	th := w.clock.Thresholds()
	total := th.TotalPages
	scanners := uint64(w.state.currentScanners.Load())
	if scanners == 0 {
		scanners = 1
	}
	offset := total / scanners

	spread := th.Handspreadpages
	if total > 0 && spread >= total {
		spread = total - 1
	}

	back := w.host.PageNextN(w.host.PageFirst(), offset*uint64(w.inst))
	front := w.host.PageNextN(back, spread)

	w.back = back
	w.front = front
	w.positioned = true
}

// scanOnce runs exactly one wake's worth of the scan loop.
func (w *scannerWorker) scanOnce() {
	th := w.clock.Thresholds()
	calibrating := w.calib.startup()

	sampleStart := w.host.NowNs()
	var pcount, nscanCnt uint64

	nscanLimit := w.state.scanBudget.Load()
	if calibrating {
		nscanLimit = th.TotalPages
	}

	cpuBudget := w.state.cpuBudgetNs.Load()
	wrapsThisWake := 0

	w.k.incPgrrun()
	w.pr.PageoutStart(nscanLimit, w.inst, w.back, w.front)

	for nscanCnt < nscanLimit && w.shouldKeepScanning(calibrating) {
		if pcount&PagesPollMask == 0 && pcount > 0 {
			if w.host.NowNs()-sampleStart >= cpuBudget {
				if !w.state.zonesOver.Load() {
					w.state.pageoutTimeouts.Add(1)
					w.k.incPageoutTimeouts(1)
					w.pr.PageoutTimeout(w.inst)
				}
				break
			}
		}

		zf := zoneFilterNone
		if w.state.zonesOver.Load() {
			zf = zoneFilterOverCapOnly
		}

		rvf := w.dec.CheckPage(w.front, HandFront, zf)
		if rvf == CheckFreed {
			w.count = 0
		}
		rvb := w.dec.CheckPage(w.back, HandBack, zf)
		if rvb == CheckFreed {
			w.count = 0
		}

		pcount++
		if rvf != CheckIneligible || rvb != CheckIneligible {
			nscanCnt++
		}

		w.front = w.host.PageNext(w.front)
		w.back = w.host.PageNext(w.back)

		if w.front == w.host.PageFirst() {
			w.totalWraps++
			wrapsThisWake++
			w.k.incRev()
			w.pr.PageoutWrapFront(w.inst)

			resetCnt := w.conf.PageoutResetCnt
			if resetCnt == 0 {
				resetCnt = 64
			}
			if w.totalWraps%resetCnt == 0 {
				w.state.resetHand[w.inst].Store(true)
			}

			lowMem := w.host.FreeMem() < int64(th.Lotsfree)+w.host.NeedFree()
			if lowMem && wrapsThisWake >= 2 {
				if !w.state.doublePoShare() {
					break
				}
			}
		}

		w.pr.PageoutLoop(pcount, w.inst)
	}

	w.state.nscan.Add(nscanCnt)
	w.k.addScan(int64(nscanCnt))
	w.pr.PageoutLoopEnd(w.state.nscan.Load(), pcount, w.inst)

	if w.inst == 0 {
		w.calibrationBookkeeping(calibrating, pcount, w.host.NowNs()-sampleStart)
	}
}

// shouldKeepScanning is the per-pass loop guard: continue while zones
// are over cap, or global memory is short, or calibration is still
// underway.
func (w *scannerWorker) shouldKeepScanning(calibrating bool) bool {
	if w.state.zonesOver.Load() {
		return true
	}
	th := w.clock.Thresholds()
	if w.host.FreeMem() < int64(th.Lotsfree)+w.host.NeedFree() {
		return true
	}
	return calibrating
}

// calibrationBookkeeping is performed only by instance 0.
func (w *scannerWorker) calibrationBookkeeping(calibrating bool, pcount uint64, elapsedNs int64) {
	if calibrating {
		w.calib.addSample(pcount, elapsedNs)
		return
	}
	if w.clock.Calibrated() {
		return
	}
	rate := w.calib.rate()
	if rate == 0 {
		return
	}
	spread := rate / 10
	w.clock.SetCalibratedSpread(spread, w.clock.Thresholds().TotalPages)
}
