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
	"fmt"

	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	cliflag "k8s.io/component-base/cli/flag"

	pageoutconfig "github.com/effemmess/illumos-omnios/pkg/config/pageout"
)

// Options holds the command-line-patchable form of every operator-visible
// tunable.
type Options struct {
	LotsfreeFraction uint64

	LotsfreeMinOverride    uint64
	LotsfreeMaxOverride    uint64
	LotsfreeOverride       uint64
	DesfreeOverride        uint64
	MinfreeOverride        uint64
	ThrottlefreeOverride   uint64
	PageoutReserveOverride uint64
	MaxpgioOverride        uint64
	MaxFastscanOverride    uint64
	FastscanOverride       uint64
	SlowscanOverride       uint64
	HandspreadOverride     uint64

	ThresholdStyle uint

	MinPercentCPU uint
	MaxPercentCPU uint
	MaxSlowscan   uint64

	PageoutSampleLim      uint
	PageoutResetCnt       uint64
	PageoutDeadmanSeconds uint

	DoPageout     bool
	AsyncListSize int

	DesiredScanners int
	DiskRPM         uint64
	ZonePageoutNsec int64
}

// NewOptions creates a new Options with a default config.
func NewOptions() *Options {
	d := pageoutconfig.NewPageoutConfiguration()
	return &Options{
		LotsfreeFraction:      d.LotsfreeFraction,
		ThresholdStyle:        uint(d.ThresholdStyle),
		MinPercentCPU:         d.MinPercentCPU,
		MaxPercentCPU:         d.MaxPercentCPU,
		MaxSlowscan:           d.MaxSlowscan,
		PageoutSampleLim:      d.PageoutSampleLim,
		PageoutResetCnt:       d.PageoutResetCnt,
		PageoutDeadmanSeconds: d.PageoutDeadmanSeconds,
		DoPageout:             d.DoPageout,
		AsyncListSize:         d.AsyncListSize,
		DesiredScanners:       d.DesiredScanners,
		DiskRPM:               d.DiskRPM,
	}
}

// AddFlags adds flags to the specified FlagSet.
func (o *Options) AddFlags(fss *cliflag.NamedFlagSets) {
	fs := fss.FlagSet("pageout")

	fs.Uint64Var(&o.LotsfreeFraction, "pageout-lotsfree-fraction",
		o.LotsfreeFraction, "divisor of total pageable memory used to derive the default lotsfree threshold")
	fs.Uint64Var(&o.LotsfreeMinOverride, "pageout-lotsfree-min", o.LotsfreeMinOverride,
		"operator override for lotsfree_min, in pages; 0 means use the computed default")
	fs.Uint64Var(&o.LotsfreeMaxOverride, "pageout-lotsfree-max", o.LotsfreeMaxOverride,
		"operator override for lotsfree_max, in pages; 0 means use the computed default")
	fs.Uint64Var(&o.LotsfreeOverride, "pageout-lotsfree", o.LotsfreeOverride,
		"operator override for lotsfree, in pages; 0 means use the computed default")
	fs.Uint64Var(&o.DesfreeOverride, "pageout-desfree", o.DesfreeOverride,
		"operator override for desfree, in pages; 0 means use the computed default")
	fs.Uint64Var(&o.MinfreeOverride, "pageout-minfree", o.MinfreeOverride,
		"operator override for minfree, in pages; 0 means use the computed default")
	fs.Uint64Var(&o.ThrottlefreeOverride, "pageout-throttlefree", o.ThrottlefreeOverride,
		"operator override for throttlefree, in pages; 0 means use the computed default")
	fs.Uint64Var(&o.PageoutReserveOverride, "pageout-reserve", o.PageoutReserveOverride,
		"operator override for pageout_reserve, in pages; 0 means use the computed default")
	fs.Uint64Var(&o.MaxpgioOverride, "pageout-maxpgio", o.MaxpgioOverride,
		"operator override for maxpgio; 0 means derive from disk rpm")
	fs.Uint64Var(&o.MaxFastscanOverride, "pageout-maxfastscan", o.MaxFastscanOverride,
		"operator override for maxfastscan; 0 means use the calibrated or startup default")
	fs.Uint64Var(&o.FastscanOverride, "pageout-fastscan", o.FastscanOverride,
		"operator override for fastscan; 0 means use the computed default")
	fs.Uint64Var(&o.SlowscanOverride, "pageout-slowscan", o.SlowscanOverride,
		"operator override for slowscan; 0 means use the computed default")
	fs.Uint64Var(&o.HandspreadOverride, "pageout-handspreadpages", o.HandspreadOverride,
		"operator override for handspreadpages; 0 means use the computed default")
	fs.UintVar(&o.ThresholdStyle, "pageout-threshold-style", o.ThresholdStyle,
		"0 uses 3/4 scaling between thresholds, 1 uses 1/2 scaling")
	fs.UintVar(&o.MinPercentCPU, "pageout-min-percent-cpu", o.MinPercentCPU,
		"minimum percent of one CPU a scanner worker may consume per wakeup")
	fs.UintVar(&o.MaxPercentCPU, "pageout-max-percent-cpu", o.MaxPercentCPU,
		"maximum percent of one CPU a scanner worker may consume per wakeup")
	fs.Uint64Var(&o.MaxSlowscan, "pageout-max-slowscan", o.MaxSlowscan,
		"upper bound on slowscan, pages/sec")
	fs.UintVar(&o.PageoutSampleLim, "pageout-sample-lim", o.PageoutSampleLim,
		"number of wakeups to sample before calibration completes")
	fs.Uint64Var(&o.PageoutResetCnt, "pageout-reset-cnt", o.PageoutResetCnt,
		"number of front-hand wraps between hand repositioning")
	fs.UintVar(&o.PageoutDeadmanSeconds, "pageout-deadman-seconds", o.PageoutDeadmanSeconds,
		"seconds a stuck writeback push may go unacknowledged before panicking; 0 disables the deadman")
	fs.BoolVar(&o.DoPageout, "dopageout", o.DoPageout,
		"master kill switch for page reclamation")
	fs.IntVar(&o.AsyncListSize, "pageout-async-list-size", o.AsyncListSize,
		"number of writeback request slots")
	fs.IntVar(&o.DesiredScanners, "pageout-desired-scanners", o.DesiredScanners,
		"desired number of scanner worker threads")
	fs.Uint64Var(&o.DiskRPM, "pageout-disk-rpm", o.DiskRPM,
		"rotational speed of the backing paging device, used to derive the default maxpgio")
	fs.Int64Var(&o.ZonePageoutNsec, "pageout-zone-pageout-nsec", o.ZonePageoutNsec,
		"CPU budget nanoseconds/wakeup while one or more zones are over cap; 0 means use max_pageout_nsec")
}

// ApplyTo fills up config with options.
func (o *Options) ApplyTo(c *pageoutconfig.PageoutConfiguration) error {
	c.LotsfreeFraction = o.LotsfreeFraction
	c.LotsfreeMinOverride = o.LotsfreeMinOverride
	c.LotsfreeMaxOverride = o.LotsfreeMaxOverride
	c.LotsfreeOverride = o.LotsfreeOverride
	c.DesfreeOverride = o.DesfreeOverride
	c.MinfreeOverride = o.MinfreeOverride
	c.ThrottlefreeOverride = o.ThrottlefreeOverride
	c.PageoutReserveOverride = o.PageoutReserveOverride
	c.MaxpgioOverride = o.MaxpgioOverride
	c.MaxFastscanOverride = o.MaxFastscanOverride
	c.FastscanOverride = o.FastscanOverride
	c.SlowscanOverride = o.SlowscanOverride
	c.HandspreadOverride = o.HandspreadOverride
	c.ThresholdStyle = pageoutconfig.ThresholdStyle(o.ThresholdStyle)
	c.MinPercentCPU = o.MinPercentCPU
	c.MaxPercentCPU = o.MaxPercentCPU
	c.MaxSlowscan = o.MaxSlowscan
	c.PageoutSampleLim = o.PageoutSampleLim
	c.PageoutResetCnt = o.PageoutResetCnt
	c.PageoutDeadmanSeconds = o.PageoutDeadmanSeconds
	c.DoPageout = o.DoPageout
	c.AsyncListSize = o.AsyncListSize
	c.DesiredScanners = o.DesiredScanners
	c.DiskRPM = o.DiskRPM
	c.ZonePageoutNsec = o.ZonePageoutNsec
	return nil
}

// Validate checks the option set for internally inconsistent values
// before ApplyTo ever runs, aggregating every problem found rather than
// failing on the first.
func (o *Options) Validate() error {
	var errs []error
	if o.MinPercentCPU == 0 {
		errs = append(errs, fmt.Errorf("pageout-min-percent-cpu must be greater than zero"))
	}
	if o.MaxPercentCPU < o.MinPercentCPU {
		errs = append(errs, fmt.Errorf("pageout-max-percent-cpu (%d) must be >= pageout-min-percent-cpu (%d)",
			o.MaxPercentCPU, o.MinPercentCPU))
	}
	if o.AsyncListSize <= 0 {
		errs = append(errs, fmt.Errorf("pageout-async-list-size must be greater than zero"))
	}
	if o.DesiredScanners <= 0 {
		errs = append(errs, fmt.Errorf("pageout-desired-scanners must be greater than zero"))
	}
	if o.ThresholdStyle > uint(pageoutconfig.ThresholdStyleHalf) {
		errs = append(errs, fmt.Errorf("pageout-threshold-style must be 0 or 1"))
	}
	return utilerrors.NewAggregate(errs)
}
