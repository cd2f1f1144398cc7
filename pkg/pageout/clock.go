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
	"time"

	pageoutconfig "github.com/effemmess/illumos-omnios/pkg/config/pageout"
	"github.com/effemmess/illumos-omnios/pkg/util/general"
)

// Thresholds is the full set of derived reclaim thresholds and scanner
// sizing produced by Clock.Setup.
type Thresholds struct {
	LotsfreeMax     uint64
	LotsfreeMin     uint64
	Lotsfree        uint64
	Desfree         uint64
	Minfree         uint64
	Throttlefree    uint64
	PageoutReserve  uint64
	Maxpgio         uint64
	MaxFastscan     uint64
	Fastscan        uint64
	Slowscan        uint64
	Handspreadpages uint64

	MinPageoutNsec int64
	MaxPageoutNsec int64

	TotalPages      uint64
	RegionPages     uint64
	DesiredScanners int
}

// overrideSnapshot is the sticky, one-time capture of whatever the
// operator supplied before the very first Setup call. Every later
// recalculation re-derives thresholds from this snapshot so operator
// overrides are never lost, even after calibration replaces the
// calculated defaults.
type overrideSnapshot struct {
	captured bool

	lotsfreeMin     uint64
	lotsfreeMax     uint64
	lotsfree        uint64
	desfree         uint64
	minfree         uint64
	throttlefree    uint64
	pageoutReserve  uint64
	maxpgio         uint64
	maxFastscan     uint64
	fastscan        uint64
	slowscan        uint64
	handspreadpages uint64
}

// Clock is the threshold calculator. It is
// called once at boot (recalc=false) and again when calibration
// completes (recalc=true); nothing in this package re-runs it when
// total memory changes.
type Clock struct {
	conf *pageoutconfig.PageoutConfiguration

	snap overrideSnapshot

	// pageoutNewSpread is the calibrated scan-rate spread (pages/sec /
	// 10); zero until scanner worker 0's calibration bookkeeping sets it.
	pageoutNewSpread uint64

	th Thresholds
}

// NewClock constructs a threshold calculator from the supplied
// tunables. The returned Clock has not yet computed any thresholds;
// call Setup(false) once before first use.
func NewClock(conf *pageoutconfig.PageoutConfiguration) *Clock {
	return &Clock{conf: conf}
}

// Thresholds returns the most recently computed threshold set.
func (c *Clock) Thresholds() Thresholds {
	return c.th
}

// SetCalibratedSpread records the measured scan-rate spread once
// worker 0's sampling window completes, and
// triggers Setup in recalc mode.
func (c *Clock) SetCalibratedSpread(spread uint64, totalPages uint64) {
	c.pageoutNewSpread = spread
	c.Setup(true, totalPages)
}

// Calibrated reports whether a scan-rate spread has been measured yet.
func (c *Clock) Calibrated() bool {
	return c.pageoutNewSpread != 0
}

// tune implements the operator-override policy: a value of 0 means
// "use the default"; a nonzero value at or above its ceiling also
// collapses to the default; otherwise the override is honored
// verbatim. Grounded on original_source's tune()/clamp() pair.
func tune(override, ceiling, def uint64) uint64 {
	if override == 0 || override >= ceiling {
		return def
	}
	return override
}

func clampU64(v, lo, hi uint64) uint64 {
	return general.Clamp(v, lo, hi)
}

func btop(bytes uint64) uint64 {
	const pageSize = 4096
	return bytes / pageSize
}

// Setup (re)computes every derived threshold from totalPages and the
// tunables snapshot, then sizes the scanner pool.
// The very first call captures the operator overrides and is always
// treated as recalc=false: it derives every threshold, but leaves
// desired scanners at 1 until a later recalculation.
func (c *Clock) Setup(recalc bool, totalPages uint64) {
	conf := c.conf

	if !c.snap.captured {
		c.snap = overrideSnapshot{
			captured:        true,
			lotsfreeMin:     conf.LotsfreeMinOverride,
			lotsfreeMax:     conf.LotsfreeMaxOverride,
			lotsfree:        conf.LotsfreeOverride,
			desfree:         conf.DesfreeOverride,
			minfree:         conf.MinfreeOverride,
			throttlefree:    conf.ThrottlefreeOverride,
			pageoutReserve:  conf.PageoutReserveOverride,
			maxpgio:         conf.MaxpgioOverride,
			maxFastscan:     conf.MaxFastscanOverride,
			fastscan:        conf.FastscanOverride,
			slowscan:        conf.SlowscanOverride,
			handspreadpages: conf.HandspreadOverride,
		}
		recalc = false
	}

	half := conf.ThresholdStyle == pageoutconfig.ThresholdStyleHalf

	lotsfreeFraction := conf.LotsfreeFraction
	if lotsfreeFraction == 0 {
		lotsfreeFraction = 64
	}

	th := Thresholds{}

	th.LotsfreeMax = tune(c.snap.lotsfreeMax, totalPages, btop(lotsfreeMaxDefaultBytes))
	th.LotsfreeMin = tune(c.snap.lotsfreeMin, th.LotsfreeMax, btop(lotsfreeMinDefaultBytes))

	th.Lotsfree = tune(c.snap.lotsfree, totalPages,
		clampU64(totalPages/lotsfreeFraction, th.LotsfreeMin, th.LotsfreeMax))

	// The LotsfreeMin/LotsfreeMax floor and ceiling are fixed byte
	// amounts unrelated to totalPages; on a tiny region they can exceed
	// it outright. Clamp the derived default (never an explicit
	// operator override, which tune() already bounds by ceiling) down
	// to totalPages so the threshold cascade never exceeds T.
	if c.snap.lotsfree == 0 && totalPages > 0 && th.Lotsfree > totalPages {
		th.Lotsfree = totalPages
	}

	th.Desfree = tune(c.snap.desfree, th.Lotsfree, th.Lotsfree/2)

	if half {
		th.Minfree = tune(c.snap.minfree, th.Desfree, th.Desfree/2)
	} else {
		th.Minfree = tune(c.snap.minfree, th.Desfree, 3*th.Desfree/4)
	}

	th.Throttlefree = tune(c.snap.throttlefree, th.Desfree, th.Minfree)

	if half {
		th.PageoutReserve = tune(c.snap.pageoutReserve, th.Throttlefree, th.Throttlefree/2)
	} else {
		th.PageoutReserve = tune(c.snap.pageoutReserve, th.Throttlefree, 3*th.Throttlefree/4)
	}

	if c.snap.maxpgio == 0 {
		th.Maxpgio = (conf.DiskRPM * 2) / 3
	} else {
		th.Maxpgio = c.snap.maxpgio
	}

	if c.snap.maxFastscan == 0 {
		if c.pageoutNewSpread != 0 {
			th.MaxFastscan = c.pageoutNewSpread
		} else {
			th.MaxFastscan = MaxHandspreadPages
		}
	} else {
		th.MaxFastscan = c.snap.maxFastscan
	}

	loopfraction := uint64(2)
	if c.snap.fastscan == 0 {
		th.Fastscan = minU64(totalPages/loopfraction, th.MaxFastscan)
	} else {
		th.Fastscan = c.snap.fastscan
	}
	if th.Fastscan > totalPages/loopfraction {
		th.Fastscan = totalPages / loopfraction
	}

	maxSlowscan := conf.MaxSlowscan
	if maxSlowscan == 0 {
		maxSlowscan = 100
	}
	if c.snap.slowscan == 0 {
		th.Slowscan = minU64(th.Fastscan/10, maxSlowscan)
	} else {
		th.Slowscan = c.snap.slowscan
	}
	if th.Slowscan > th.Fastscan/2 {
		th.Slowscan = th.Fastscan / 2
	}

	if c.snap.handspreadpages == 0 {
		th.Handspreadpages = th.Fastscan
	} else {
		th.Handspreadpages = c.snap.handspreadpages
	}
	if totalPages > 0 && th.Handspreadpages >= totalPages {
		th.Handspreadpages = totalPages - 1
	}

	minPct := uint64(conf.MinPercentCPU)
	maxPct := uint64(conf.MaxPercentCPU)
	if minPct == 0 {
		minPct = 4
	}
	if maxPct == 0 {
		maxPct = 80
	}
	nsecPerSecond := int64(time.Second)
	th.MinPageoutNsec = maxI64(1, nsecPerSecond*int64(minPct)/100/SchedPagingHz)
	th.MaxPageoutNsec = maxI64(th.MinPageoutNsec, nsecPerSecond*int64(maxPct)/100/SchedPagingHz)

	th.TotalPages = totalPages

	if !recalc {
		th.RegionPages = totalPages
		th.DesiredScanners = 1
		c.th = th
		return
	}

	regionSize := uint64(defaultRegionPages)
	if regionSize < th.Handspreadpages {
		regionSize = th.Handspreadpages << 1
	}
	if totalPages > 0 && regionSize > totalPages {
		regionSize = totalPages
	}
	th.RegionPages = regionSize

	desired := 1
	if regionSize > 0 {
		for tmp := regionSize; tmp < totalPages; tmp += regionSize {
			desired++
		}
	}
	if desired > MaxPscanThreads {
		desired = MaxPscanThreads
	}
	th.DesiredScanners = desired

	c.th = th
}

func minU64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}

func maxI64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
