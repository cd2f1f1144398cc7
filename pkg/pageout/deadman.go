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
	"fmt"

	"k8s.io/apimachinery/pkg/util/wait"

	pageoutconfig "github.com/effemmess/illumos-omnios/pkg/config/pageout"
	"github.com/effemmess/illumos-omnios/pkg/util/general"
)

// panicFunc aborts the process; tests substitute a recording stand-in
// so a tripped deadman can be observed instead of crashing the suite.
type panicFunc func(format string, args ...interface{})

func defaultPanicFunc(format string, args ...interface{}) {
	panic(fmt.Sprintf(format, args...))
}

// deadman is the 1 Hz writeback watchdog.
type deadman struct {
	host  Host
	conf  *pageoutconfig.PageoutConfiguration
	wb    *writebackQueue
	panic panicFunc

	stuck         uint
	pushCountSeen uint64
	haveSeen      bool
}

func newDeadman(host Host, conf *pageoutconfig.PageoutConfiguration, wb *writebackQueue) *deadman {
	return &deadman{host: host, conf: conf, wb: wb, panic: defaultPanicFunc}
}

// run ticks check once a second until ctx is canceled.
func (d *deadman) run(ctx context.Context) {
	wait.Until(func() { d.check() }, DeadmanPeriod, ctx.Done())
}

// check advances the stuck-tick counter and panics once it crosses
// PageoutDeadmanSeconds while a push is in flight. It does nothing while
// the process is already unwinding a panic, so the deadman never fires
// on top of a crash already in progress.
func (d *deadman) check() {
	if d.host.Panicking() {
		return
	}

	seconds := d.conf.PageoutDeadmanSeconds
	if seconds == 0 {
		return
	}

	if !d.wb.inFlight.Load() {
		d.stuck = 0
		d.pushCountSeen = d.wb.pushCount.Load()
		d.haveSeen = true
		return
	}

	current := d.wb.pushCount.Load()
	if !d.haveSeen || current != d.pushCountSeen {
		d.stuck = 0
		d.pushCountSeen = current
		d.haveSeen = true
		return
	}

	d.stuck++
	if d.stuck >= seconds {
		freemem := d.host.FreeMem()
		general.Errorf("pageout deadman: writeback push stalled for %d seconds, freemem=%d", d.stuck, freemem)
		d.panic("pageout: writeback push stalled for %d seconds, freemem=%d", d.stuck, freemem)
	}
}
