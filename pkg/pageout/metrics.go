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
	"sync/atomic"

	"github.com/effemmess/illumos-omnios/pkg/metrics"
	"github.com/effemmess/illumos-omnios/pkg/util/general"
)

// kstat names for the emitted pageout counters.
const (
	kstatLowMemScan      = "low_mem_scan"
	kstatZoneCapScan     = "zone_cap_scan"
	kstatPageoutTimeouts = "pageout_timeouts"
	kstatPgrrun          = "pgrrun"
	kstatScan            = "scan"
	kstatRev             = "rev"
	kstatDfree           = "dfree"
	kstatExecfree        = "execfree"
	kstatFsfree          = "fsfree"
	kstatAnonfree        = "anonfree"
)

// kstats holds the process-wide counters reported through the
// MetricEmitter capability: one emitter injected into every component
// rather than package-level Prometheus globals.
type kstats struct {
	emitter metrics.MetricEmitter

	lowMemScan      atomic.Int64
	zoneCapScan     atomic.Int64
	pageoutTimeouts atomic.Int64
	pgrrun          atomic.Int64
	scan            atomic.Int64
	rev             atomic.Int64
	dfree           atomic.Int64
	execfree        atomic.Int64
	fsfree          atomic.Int64
	anonfree        atomic.Int64
}

func newKstats(emitter metrics.MetricEmitter) *kstats {
	if emitter == nil {
		emitter = metrics.DummyMetrics{}
	}
	return &kstats{emitter: emitter}
}

func (k *kstats) incLowMemScan()  { k.bump(&k.lowMemScan, kstatLowMemScan) }
func (k *kstats) incZoneCapScan() { k.bump(&k.zoneCapScan, kstatZoneCapScan) }
func (k *kstats) incPageoutTimeouts(n int64) {
	k.bumpN(&k.pageoutTimeouts, kstatPageoutTimeouts, n)
}
func (k *kstats) incPgrrun()        { k.bump(&k.pgrrun, kstatPgrrun) }
func (k *kstats) addScan(n int64)   { k.bumpN(&k.scan, kstatScan, n) }
func (k *kstats) incRev()           { k.bump(&k.rev, kstatRev) }
func (k *kstats) incDfree()         { k.bump(&k.dfree, kstatDfree) }
func (k *kstats) incExecfree()      { k.bump(&k.execfree, kstatExecfree) }
func (k *kstats) incFsfree()        { k.bump(&k.fsfree, kstatFsfree) }
func (k *kstats) incAnonfree()      { k.bump(&k.anonfree, kstatAnonfree) }

func (k *kstats) bump(counter *atomic.Int64, name string) {
	k.bumpN(counter, name, 1)
}

func (k *kstats) bumpN(counter *atomic.Int64, name string, n int64) {
	v := counter.Add(n)
	if err := k.emitter.StoreInt64(name, v, metrics.MetricTypeNameCounter); err != nil {
		general.Errorf("failed to emit kstat %s: %v", name, err)
	}
}
