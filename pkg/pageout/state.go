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
	"sync"
	"sync/atomic"
)

// sharedState is the scheduler/scanner shared state. The scan/cpu
// budgets are published by the scheduler alone and read
// without locking by scanners — a worker may observe a value up to
// one cycle stale, which is acceptable by design. po_share is the one
// field mutated from both sides and is guarded by mu, matching
// "po_share is modified under pageout_mutex".
type sharedState struct {
	mu sync.Mutex // pageout_mutex: guards poShare only

	scanBudget  atomic.Uint64 // desscan
	cpuBudgetNs atomic.Int64  // pageout_nsec
	scannedSoFar atomic.Uint64

	poShare atomic.Uint64

	zonesOver atomic.Bool

	currentScanners atomic.Int32

	nscan           atomic.Uint64
	pageoutTimeouts atomic.Uint64

	// resetHand is a one-way, single-producer/single-consumer publish
	// latch per worker instance: the scheduler sets it, worker i clears
	// it. Workers never inspect another instance's slot.
	resetHand [MaxPscanThreads]atomic.Bool

	// scanWake is broadcast by the scheduler to tick every worker at
	// once.
	scanWakeMu sync.Mutex
	scanWake   *sync.Cond

	// memavail is broadcast by the scheduler only, to external waiters
	// for memory.
	memavailMu sync.Mutex
	memavail   *sync.Cond
}

func newSharedState() *sharedState {
	s := &sharedState{}
	s.poShare.Store(MinPoShare)
	s.currentScanners.Store(1)
	s.scanWake = sync.NewCond(&s.scanWakeMu)
	s.memavail = sync.NewCond(&s.memavailMu)
	return s
}

func (s *sharedState) wakeScanners() {
	s.scanWakeMu.Lock()
	s.scanWake.Broadcast()
	s.scanWakeMu.Unlock()
}

func (s *sharedState) broadcastMemavail() {
	s.memavailMu.Lock()
	s.memavail.Broadcast()
	s.memavailMu.Unlock()
}

// halvePoShare cools the share-count threshold down toward MinPoShare.
func (s *sharedState) halvePoShare() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur := s.poShare.Load(); cur > MinPoShare {
		s.poShare.Store(cur >> 1)
	}
}

// doublePoShare escalates the share-count threshold toward MaxPoShare.
// Returns false if po_share was already at the ceiling (the scanner
// should then give up for this wakeup).
func (s *sharedState) doublePoShare() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.poShare.Load()
	if cur >= MaxPoShare {
		return false
	}
	s.poShare.Store(cur << 1)
	return true
}
