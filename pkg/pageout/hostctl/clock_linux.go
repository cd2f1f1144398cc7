//go:build linux

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

package hostctl

import (
	"golang.org/x/sys/unix"

	"github.com/effemmess/illumos-omnios/pkg/util/general"
)

// MonotonicClock satisfies pageout.WallClock with CLOCK_MONOTONIC,
// reached via a direct x/sys/unix syscall rather than time.Now().
type MonotonicClock struct{}

// NowNs returns the current monotonic time in nanoseconds.
func (MonotonicClock) NowNs() int64 {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		general.Errorf("clock_gettime(CLOCK_MONOTONIC) failed: %v", err)
		return 0
	}
	return ts.Nano()
}
