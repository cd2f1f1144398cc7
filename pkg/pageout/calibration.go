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

// calibrationState accumulates worker 0's startup samples. It is
// touched only by worker instance 0, and only while sampleCount <
// sampleLimit, so no lock is required — the same single-writer
// argument the original makes for pageout_sample_*.
type calibrationState struct {
	sampleLimit uint

	samplePages uint64
	sampleEtime int64
	sampleCount uint
}

func newCalibrationState(limit uint) *calibrationState {
	if limit == 0 {
		limit = 4
	}
	return &calibrationState{sampleLimit: limit}
}

// startup reports whether the scanner is still in its calibration
// window (the original's PAGE_SCAN_STARTUP).
func (c *calibrationState) startup() bool {
	return c.sampleCount < c.sampleLimit
}

// addSample records one worker-0 wakeup's contribution to the scan-rate
// sample.
func (c *calibrationState) addSample(pages uint64, etimeNs int64) {
	c.samplePages += pages
	c.sampleEtime += etimeNs
	c.sampleCount++
}

// rate returns the measured pages/sec scan throughput; callers must
// check startup() == false and sampleEtime > 0 before trusting it.
func (c *calibrationState) rate() uint64 {
	if c.sampleEtime <= 0 {
		return 0
	}
	return c.samplePages * uint64(1e9) / uint64(c.sampleEtime)
}
