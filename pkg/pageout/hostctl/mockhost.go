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

// Package hostctl provides host-capability implementations for the
// pageout control plane: a real monotonic clock for Linux, and a
// deterministic in-memory mock used to exercise pkg/pageout against a
// known page population without any real VM/filesystem underneath.
package hostctl

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/effemmess/illumos-omnios/pkg/pageout"
)

// MockVnode identifies a fake backing file in MockHost.
type MockVnode struct {
	ID   int
	Exec bool
	Swap bool
}

type mockPageState struct {
	kernel    bool
	locked    bool
	free      bool
	lockCount int
	cowCount  int
	shareCnt  uint64
	sizeClass int
	zone      pageout.ZoneID
	vnode     *MockVnode
	offset    uint64
	attrs     pageout.Attrs
}

// MockHost is a deterministic, in-memory pageout.Host. Pages are
// numbered 0..N-1 arranged in a ring; PageNext/PageNextN wrap modulo N.
// Every field read by the scheduler/scanner under MemorySignals is
// plain, test-settable state guarded by a mutex — there is no
// background mutation, so tests can set up a scenario and step the
// control plane deterministically.
type MockHost struct {
	mu    sync.Mutex
	pages []mockPageState

	freeMem       int64
	needFree      int64
	deficit       int64
	totalPages    uint64
	kmemReapahead int64
	kmemAvail     int64
	kcageOn       bool
	kcageFreeMem  int64
	kcageNeedFree int64

	zoneCaps map[pageout.ZoneID]bool

	kmemReapCalls  atomic.Int64
	segPreapCalls  atomic.Int64
	cageWakeCalls  atomic.Int64

	putPageErr  error
	putPageHook func(v pageout.VnodeHandle, offset, length uint64, flags pageout.PutPageFlags) error
	putPageCalls atomic.Int64

	vnodeHolds map[*MockVnode]int

	statCounts map[pageout.ZoneID]map[pageout.PageoutStat]int

	nowNs atomic.Int64

	panicking atomic.Bool
}

// NewMockHost creates a MockHost with n pages, all initially
// unlocked, clean, and free of any vnode.
func NewMockHost(n int) *MockHost {
	return &MockHost{
		pages:      make([]mockPageState, n),
		totalPages: uint64(n),
		zoneCaps:   make(map[pageout.ZoneID]bool),
		vnodeHolds: make(map[*MockVnode]int),
		statCounts: make(map[pageout.ZoneID]map[pageout.PageoutStat]int),
	}
}

func (h *MockHost) idx(p pageout.PageID) int {
	n := len(h.pages)
	if n == 0 {
		return 0
	}
	return int(uint64(p) % uint64(n))
}

// --- test setup helpers ---

// SetFreeMem, SetNeedFree, etc. let a test drive the scheduler's inputs.
func (h *MockHost) SetFreeMem(v int64)       { h.mu.Lock(); h.freeMem = v; h.mu.Unlock() }
func (h *MockHost) SetNeedFree(v int64)      { h.mu.Lock(); h.needFree = v; h.mu.Unlock() }
func (h *MockHost) SetDeficit(v int64)       { h.mu.Lock(); h.deficit = v; h.mu.Unlock() }
func (h *MockHost) SetKmemReapahead(v int64) { h.mu.Lock(); h.kmemReapahead = v; h.mu.Unlock() }
func (h *MockHost) SetKmemAvail(v int64)     { h.mu.Lock(); h.kmemAvail = v; h.mu.Unlock() }
func (h *MockHost) SetKcageOn(v bool)        { h.mu.Lock(); h.kcageOn = v; h.mu.Unlock() }
func (h *MockHost) SetKcageFreeMem(v int64)  { h.mu.Lock(); h.kcageFreeMem = v; h.mu.Unlock() }
func (h *MockHost) SetKcageNeedFree(v int64) { h.mu.Lock(); h.kcageNeedFree = v; h.mu.Unlock() }
func (h *MockHost) SetNowNs(v int64)         { h.nowNs.Store(v) }
func (h *MockHost) AdvanceNs(delta int64)    { h.nowNs.Add(delta) }
func (h *MockHost) SetPanicking(v bool)      { h.panicking.Store(v) }

// Panicking reports whether the process is currently unwinding a panic.
func (h *MockHost) Panicking() bool { return h.panicking.Load() }

func (h *MockHost) SetZoneOverCap(z pageout.ZoneID, over bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.zoneCaps[z] = over
}

func (h *MockHost) SetPutPageError(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.putPageErr = err
}

func (h *MockHost) SetPutPageHook(fn func(v pageout.VnodeHandle, offset, length uint64, flags pageout.PutPageFlags) error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.putPageHook = fn
}

func (h *MockHost) PutPageCalls() int64 { return h.putPageCalls.Load() }
func (h *MockHost) KmemReapCalls() int64 { return h.kmemReapCalls.Load() }
func (h *MockHost) SegPreapCalls() int64 { return h.segPreapCalls.Load() }
func (h *MockHost) CageWakeupCalls() int64 { return h.cageWakeCalls.Load() }

// SetPage configures one page's initial state for a test scenario.
func (h *MockHost) SetPage(p pageout.PageID, mutate func(*mockPageState)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	mutate(&h.pages[h.idx(p)])
}

// MarkDirty is a convenience setter combining the common "page backed
// by vnode v at offset, currently modified" scenario.
func (h *MockHost) MarkDirty(p pageout.PageID, v *MockVnode, offset uint64) {
	h.SetPage(p, func(s *mockPageState) {
		s.vnode = v
		s.offset = offset
		s.attrs |= pageout.AttrMod
	})
}

// MarkCow sets the copy-on-write reference count for p.
func (h *MockHost) MarkCow(p pageout.PageID, count int) {
	h.SetPage(p, func(s *mockPageState) {
		s.cowCount = count
	})
}

// SetLockCount sets the external page-lock count for p (the
// mapping-level lock_count checked by CheckPage, distinct from the
// scanner's own exclusive lock acquired via TryLockExclusive).
func (h *MockHost) SetLockCount(p pageout.PageID, count int) {
	h.SetPage(p, func(s *mockPageState) {
		s.lockCount = count
	})
}

// VnodeHoldCount reports how many outstanding holds exist on v.
func (h *MockHost) VnodeHoldCount(v *MockVnode) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.vnodeHolds[v]
}

// StatCount reports how many times RecordPageoutStat was called for
// the given zone/stat pair.
func (h *MockHost) StatCount(z pageout.ZoneID, stat pageout.PageoutStat) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if m, ok := h.statCounts[z]; ok {
		return m[stat]
	}
	return 0
}

// --- pageout.Page ---

func (h *MockHost) IsKernel(p pageout.PageID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pages[h.idx(p)].kernel
}

func (h *MockHost) IsLocked(p pageout.PageID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pages[h.idx(p)].locked
}

func (h *MockHost) IsFree(p pageout.PageID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pages[h.idx(p)].free
}

func (h *MockHost) LockCount(p pageout.PageID) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pages[h.idx(p)].lockCount
}

func (h *MockHost) CowCount(p pageout.PageID) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pages[h.idx(p)].cowCount
}

func (h *MockHost) ShareCountExceeds(p pageout.PageID, threshold uint64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pages[h.idx(p)].shareCnt > threshold
}

func (h *MockHost) SizeClass(p pageout.PageID) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pages[h.idx(p)].sizeClass
}

func (h *MockHost) ZoneOf(p pageout.PageID) pageout.ZoneID {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pages[h.idx(p)].zone
}

func (h *MockHost) Vnode(p pageout.PageID) (pageout.VnodeHandle, uint64, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s := h.pages[h.idx(p)]
	if s.vnode == nil {
		return nil, 0, false
	}
	return s.vnode, s.offset, true
}

func (h *MockHost) IsExec(v pageout.VnodeHandle) bool {
	mv, ok := v.(*MockVnode)
	return ok && mv.Exec
}

func (h *MockHost) IsSwap(v pageout.VnodeHandle) bool {
	mv, ok := v.(*MockVnode)
	return ok && mv.Swap
}

// --- pageout.PageOps ---

func (h *MockHost) TryLockExclusive(p pageout.PageID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	s := &h.pages[h.idx(p)]
	if s.locked {
		return false
	}
	s.locked = true
	return true
}

func (h *MockHost) Unlock(p pageout.PageID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pages[h.idx(p)].locked = false
}

func (h *MockHost) SyncAttrs(p pageout.PageID, mode pageout.SyncMode) pageout.Attrs {
	h.mu.Lock()
	defer h.mu.Unlock()
	s := &h.pages[h.idx(p)]
	attrs := s.attrs
	if mode == pageout.SyncZeroRM {
		s.attrs = 0
	}
	return attrs
}

func (h *MockHost) ClearRef(p pageout.PageID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pages[h.idx(p)].attrs &^= pageout.AttrRef
}

func (h *MockHost) GetAttrs(p pageout.PageID, mask pageout.Attrs) pageout.Attrs {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pages[h.idx(p)].attrs & mask
}

func (h *MockHost) TryDemote(p pageout.PageID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	s := &h.pages[h.idx(p)]
	s.sizeClass = 0
	return true
}

func (h *MockHost) UnloadMappings(p pageout.PageID, force bool) {}

func (h *MockHost) DisposeFree(p pageout.PageID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s := &h.pages[h.idx(p)]
	s.free = true
	s.attrs = 0
}

// --- pageout.PageWalk ---

func (h *MockHost) PageFirst() pageout.PageID { return 0 }

func (h *MockHost) PageNext(p pageout.PageID) pageout.PageID {
	return h.PageNextN(p, 1)
}

func (h *MockHost) PageNextN(p pageout.PageID, n uint64) pageout.PageID {
	h.mu.Lock()
	total := uint64(len(h.pages))
	h.mu.Unlock()
	if total == 0 {
		return 0
	}
	return pageout.PageID((uint64(p) + n) % total)
}

// --- pageout.VnodeOps ---

func (h *MockHost) HoldVnode(v pageout.VnodeHandle) {
	mv, ok := v.(*MockVnode)
	if !ok {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.vnodeHolds[mv]++
}

func (h *MockHost) ReleaseVnode(v pageout.VnodeHandle) {
	mv, ok := v.(*MockVnode)
	if !ok {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.vnodeHolds[mv]--
}

// --- pageout.Zone ---

func (h *MockHost) NumOverCap() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, over := range h.zoneCaps {
		if over {
			n++
		}
	}
	return n
}

func (h *MockHost) OverCap(z pageout.ZoneID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.zoneCaps[z]
}

func (h *MockHost) RecordPageoutStat(z pageout.ZoneID, stat pageout.PageoutStat) {
	h.mu.Lock()
	defer h.mu.Unlock()
	m, ok := h.statCounts[z]
	if !ok {
		m = make(map[pageout.PageoutStat]int)
		h.statCounts[z] = m
	}
	m[stat]++
}

// --- pageout.MemorySignals ---

func (h *MockHost) FreeMem() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.freeMem
}

func (h *MockHost) NeedFree() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.needFree
}

func (h *MockHost) Deficit() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.deficit
}

func (h *MockHost) TotalPages() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.totalPages
}

func (h *MockHost) KmemReapahead() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.kmemReapahead
}

func (h *MockHost) KmemAvail() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.kmemAvail
}

func (h *MockHost) KcageOn() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.kcageOn
}

func (h *MockHost) KcageFreeMem() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.kcageFreeMem
}

func (h *MockHost) KcageNeedFree() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.kcageNeedFree
}

// --- pageout.Reclaimers ---

func (h *MockHost) KmemReap()   { h.kmemReapCalls.Add(1) }
func (h *MockHost) SegPreap()   { h.segPreapCalls.Add(1) }
func (h *MockHost) CageWakeup() { h.cageWakeCalls.Add(1) }

// --- pageout.Writeback ---

func (h *MockHost) PutPage(ctx context.Context, v pageout.VnodeHandle, offset, length uint64, flags pageout.PutPageFlags, cred pageout.Credential) error {
	h.putPageCalls.Add(1)

	h.mu.Lock()
	hook := h.putPageHook
	err := h.putPageErr
	h.mu.Unlock()

	if hook != nil {
		return hook(v, offset, length, flags)
	}
	return err
}

// --- pageout.WallClock ---

func (h *MockHost) NowNs() int64 { return h.nowNs.Load() }

// --- Host.DefaultCredential ---

type mockCredential struct{}

func (h *MockHost) DefaultCredential() pageout.Credential { return mockCredential{} }

var _ pageout.Host = (*MockHost)(nil)
