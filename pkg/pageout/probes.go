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

import "sync"

// Probes is the stable trace-point surface for the control plane, the
// idiomatic Go analogue of the original's DTrace/TNF probes: a set of
// cheap, optionally-recording hooks rather than a static compiled-in
// tracer. The zero value (NoopProbes) costs nothing at each call site.
type Probes interface {
	SchedWakeLow()
	SchedWakeZone()
	PageoutStart(limit uint64, inst int, back, front PageID)
	PageoutLoop(pcount uint64, inst int)
	PageoutLoopEnd(nscan, pcount uint64, inst int)
	PageoutTimeout(inst int)
	PageoutWrapFront(inst int)
	PageoutIsRef(p PageID, hand Hand)
	PageoutFree(p PageID, hand Hand)
	PageoutPush()
}

// NoopProbes discards every probe firing.
type NoopProbes struct{}

func (NoopProbes) SchedWakeLow()                                        {}
func (NoopProbes) SchedWakeZone()                                       {}
func (NoopProbes) PageoutStart(limit uint64, inst int, back, front PageID) {}
func (NoopProbes) PageoutLoop(pcount uint64, inst int)                  {}
func (NoopProbes) PageoutLoopEnd(nscan, pcount uint64, inst int)        {}
func (NoopProbes) PageoutTimeout(inst int)                              {}
func (NoopProbes) PageoutWrapFront(inst int)                            {}
func (NoopProbes) PageoutIsRef(p PageID, hand Hand)                     {}
func (NoopProbes) PageoutFree(p PageID, hand Hand)                      {}
func (NoopProbes) PageoutPush()                                         {}

// RecordingProbes counts firings by name, for tests that need to assert
// a probe fired (or did not) without depending on trace infrastructure.
type RecordingProbes struct {
	mu     sync.Mutex
	counts map[string]int
}

func NewRecordingProbes() *RecordingProbes {
	return &RecordingProbes{counts: make(map[string]int)}
}

func (r *RecordingProbes) bump(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[name]++
}

// Count returns how many times the named probe fired.
func (r *RecordingProbes) Count(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[name]
}

func (r *RecordingProbes) SchedWakeLow()  { r.bump("sched_wake_low") }
func (r *RecordingProbes) SchedWakeZone() { r.bump("sched_wake_zone") }
func (r *RecordingProbes) PageoutStart(limit uint64, inst int, back, front PageID) {
	r.bump("pageout_start")
}
func (r *RecordingProbes) PageoutLoop(pcount uint64, inst int) { r.bump("pageout_loop") }
func (r *RecordingProbes) PageoutLoopEnd(nscan, pcount uint64, inst int) {
	r.bump("pageout_loop_end")
}
func (r *RecordingProbes) PageoutTimeout(inst int)   { r.bump("pageout_timeout") }
func (r *RecordingProbes) PageoutWrapFront(inst int) { r.bump("pageout_wrap_front") }
func (r *RecordingProbes) PageoutIsRef(p PageID, hand Hand) { r.bump("pageout_isref") }
func (r *RecordingProbes) PageoutFree(p PageID, hand Hand)  { r.bump("pageout_free") }
func (r *RecordingProbes) PageoutPush()                     { r.bump("pageout_push") }
