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

// Package pageout holds the operator-patchable tunables of the pageout
// control plane.
package pageout

// ThresholdStyle selects how minfree/throttlefree/pageout_reserve are
// derived from their parent threshold.
type ThresholdStyle uint

const (
	ThresholdStyleThreeQuarter ThresholdStyle = 0
	ThresholdStyleHalf         ThresholdStyle = 1
)

// PageoutConfiguration stores every tunable of the control plane,
// patchable at runtime via the CLI options in
// cmd/pageout-agent/app/options/pageout.
type PageoutConfiguration struct {
	// LotsfreeFraction is the divisor used to derive the default
	// lotsfree threshold from total pageable memory.
	LotsfreeFraction uint64

	// Operator overrides; 0 means "use the computed default".
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

	ThresholdStyle ThresholdStyle

	MinPercentCPU uint
	MaxPercentCPU uint
	MaxSlowscan   uint64

	PageoutSampleLim      uint
	PageoutResetCnt       uint64
	PageoutDeadmanSeconds uint

	DoPageout     bool
	AsyncListSize int

	// DesiredScanners may be patched by an operator at runtime; the
	// scheduler clamps and reconciles it every tick.
	DesiredScanners int

	// DiskRPM feeds the default maxpgio derivation.
	DiskRPM uint64

	// ZonePageoutNsec overrides the CPU budget used while one or more
	// zones are over their cap; 0 means "use MaxPageoutNsec".
	ZonePageoutNsec int64
}

// NewPageoutConfiguration returns the illumos-derived defaults.
func NewPageoutConfiguration() *PageoutConfiguration {
	return &PageoutConfiguration{
		LotsfreeFraction:      64,
		ThresholdStyle:        ThresholdStyleThreeQuarter,
		MinPercentCPU:         4,
		MaxPercentCPU:         80,
		MaxSlowscan:           100,
		PageoutSampleLim:      4,
		PageoutResetCnt:       64,
		PageoutDeadmanSeconds: 90,
		DoPageout:             true,
		AsyncListSize:         256,
		DesiredScanners:       1,
		DiskRPM:               7200,
	}
}
