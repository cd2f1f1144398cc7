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

	"k8s.io/apimachinery/pkg/util/wait"

	pageoutconfig "github.com/effemmess/illumos-omnios/pkg/config/pageout"
	"github.com/effemmess/illumos-omnios/pkg/util/general"
)

// scheduler is the 4 Hz scheduling controller. It is the single writer
// of the budget, zones-over and scanner-count fields in sharedState.
// po_share is shared: the scheduler halves it in calm periods, and
// scanners double it on repeated low-memory wraps.
type scheduler struct {
	host   Host
	conf   *pageoutconfig.PageoutConfiguration
	clock  *Clock
	calib  *calibrationState
	state  *sharedState
	k      *kstats
	pr     Probes
	wb     *writebackQueue

	spawnWorker func(inst int)
}

func newScheduler(host Host, conf *pageoutconfig.PageoutConfiguration, clock *Clock, calib *calibrationState, state *sharedState, k *kstats, pr Probes, wb *writebackQueue, spawnWorker func(inst int)) *scheduler {
	return &scheduler{host: host, conf: conf, clock: clock, calib: calib, state: state, k: k, pr: pr, wb: wb, spawnWorker: spawnWorker}
}

// run drives the scheduler tick forever at SchedPagingPeriod until ctx
// is canceled.
func (s *scheduler) run(ctx context.Context) {
	wait.Until(func() { s.tick() }, SchedPagingPeriod, ctx.Done())
}

func (s *scheduler) tick() {
	th := s.clock.Thresholds()
	freemem := s.host.FreeMem()
	needfree := s.host.NeedFree()
	deficit := s.host.Deficit()

	// Kick the other memory-demand actors strictly before computing
	// this cycle's scan budget, so their effect on freemem is not
	// observed within the same tick.
	if freemem < int64(th.Lotsfree)+needfree+s.host.KmemReapahead() {
		s.host.KmemReap()
	}
	if freemem < int64(th.Lotsfree)+needfree {
		s.host.SegPreap()
	}
	if s.host.KcageOn() && s.host.KcageFreeMem() < s.host.KcageNeedFree() {
		s.host.CageWakeup()
	}

	s.state.scannedSoFar.Store(0)

	calibrating := s.calib.startup()

	// vavail approximates memory truly available for use once the
	// current deficit and any pending allocation request are subtracted.
	vavailNeedfree := int64(0)
	if s.clock.Calibrated() {
		vavailNeedfree = needfree
	}
	vavail := clampI64(freemem-deficit-vavailNeedfree, 0, int64(th.Lotsfree))

	// desscan interpolates linearly between slowscan (at vavail ==
	// lotsfree) and fastscan (at vavail == 0).
	var desscan uint64
	if !s.clock.Calibrated() && needfree > 0 {
		desscan = th.Fastscan / SchedPagingHz
	} else {
		lotsfree := th.Lotsfree
		if lotsfree == 0 {
			lotsfree = 1
		}
		num := th.Slowscan*uint64(vavail) + th.Fastscan*(th.Lotsfree-uint64(vavail))
		desscan = num / lotsfree / SchedPagingHz
	}

	// pageoutNsec interpolates the same way between the min and max CPU
	// budget per tick.
	var pageoutNsec int64
	if !s.clock.Calibrated() {
		pageoutNsec = th.MaxPageoutNsec
	} else {
		lotsfree := int64(th.Lotsfree)
		if lotsfree == 0 {
			lotsfree = 1
		}
		pageoutNsec = th.MinPageoutNsec + (int64(th.Lotsfree)-vavail)*(th.MaxPageoutNsec-th.MinPageoutNsec)/lotsfree
	}

	if s.clock.Calibrated() {
		s.resizePool(th)
	}

	zoneOverCap := s.host.NumOverCap() > 0
	switch {
	case freemem < int64(th.Lotsfree)+needfree || calibrating:
		s.state.zonesOver.Store(false)
		s.pr.SchedWakeLow()
		s.k.incLowMemScan()
	case zoneOverCap:
		desscan = th.TotalPages
		if s.conf.ZonePageoutNsec > 0 {
			pageoutNsec = s.conf.ZonePageoutNsec
		} else {
			pageoutNsec = th.MaxPageoutNsec
		}
		s.state.zonesOver.Store(true)
		s.pr.SchedWakeZone()
		s.k.incZoneCapScan()
	default:
		s.state.zonesOver.Store(false)
		s.wb.wakeIfPending()
		s.state.halvePoShare()
	}

	s.state.scanBudget.Store(desscan)
	s.state.cpuBudgetNs.Store(pageoutNsec)

	if zoneOverCap || freemem < int64(th.Lotsfree)+needfree || calibrating {
		s.state.wakeScanners()
	}

	if s.host.KmemAvail() > 0 {
		s.state.broadcastMemavail()
	}
}

// resizePool clamps the desired scanner count, publishes it, latches
// every worker's reset_hand, and spawns any newly added workers.
func (s *scheduler) resizePool(th Thresholds) {
	desired := th.DesiredScanners
	if s.conf.DesiredScanners > 0 {
		desired = s.conf.DesiredScanners
	}
	maxByRegion := MaxPscanThreads
	if th.Handspreadpages > 0 {
		byHandspread := int(th.TotalPages / th.Handspreadpages)
		if byHandspread < maxByRegion {
			maxByRegion = byHandspread
		}
	}
	if maxByRegion < 1 {
		maxByRegion = 1
	}
	desired = general.Clamp(desired, 1, maxByRegion)

	current := int(s.state.currentScanners.Load())
	if desired == current {
		return
	}

	growing := desired > current
	s.state.currentScanners.Store(int32(desired))
	for i := 0; i < MaxPscanThreads; i++ {
		s.state.resetHand[i].Store(true)
	}
	if growing && s.spawnWorker != nil {
		for i := current; i < desired; i++ {
			s.spawnWorker(i)
		}
	}
}

func clampI64(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
