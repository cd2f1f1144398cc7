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

import "context"

// PageID is an opaque handle into the host's circular page array.
// Implementations may back it with an index into a contiguous
// descriptor table; CheckPage must not assume stability of any prior
// snapshot across a yield.
type PageID uint64

// ZoneID identifies a zone for the zones-over-cap filter. ZoneNone
// means the page is not attributed to any single zone (the original's
// ALL_ZONES).
type ZoneID int64

const ZoneNone ZoneID = -1

// VnodeHandle identifies the backing file object of a dirty page, held
// across the page-unlock/enqueue boundary so it cannot be freed out
// from under an async writeback request.
type VnodeHandle interface{}

// Credential is opaque authorization context threaded through to the
// external writeback call.
type Credential interface{}

// SyncMode selects how Host.SyncAttrs inspects and clears a page's
// reference/modified bits.
type SyncMode int

const (
	// SyncZeroRM clears both reference and modified bits atomically
	// with the read (the front hand's mode).
	SyncZeroRM SyncMode = iota
	// SyncDontZeroStopOnRefOrShared reads without clearing, and may
	// short-circuit on a referenced or widely-shared page (the back
	// hand's mode).
	SyncDontZeroStopOnRefOrShared
)

// Attrs are the page attribute bits the decider inspects.
type Attrs uint32

const (
	AttrRef Attrs = 1 << iota
	AttrMod
)

// PutPageFlags mirrors the flags passed to the external writeback call.
type PutPageFlags uint32

const (
	PutPageAsync PutPageFlags = 1 << iota
	PutPageFree
)

// Page is the minimal read side of the host's page abstraction: identity
// plus the predicates CheckPage consults before ever taking a lock.
type Page interface {
	IsKernel(p PageID) bool
	IsLocked(p PageID) bool
	IsFree(p PageID) bool
	LockCount(p PageID) int
	CowCount(p PageID) int
	ShareCountExceeds(p PageID, threshold uint64) bool
	SizeClass(p PageID) int
	ZoneOf(p PageID) ZoneID

	// Vnode returns the backing file and offset for a page, if any.
	Vnode(p PageID) (v VnodeHandle, offset uint64, ok bool)
	IsExec(v VnodeHandle) bool
	IsSwap(v VnodeHandle) bool
}

// PageOps are the mutating, lock-guarded operations CheckPage performs
// on a page once it holds the exclusive lock.
type PageOps interface {
	TryLockExclusive(p PageID) bool
	Unlock(p PageID)
	SyncAttrs(p PageID, mode SyncMode) Attrs
	ClearRef(p PageID)
	GetAttrs(p PageID, mask Attrs) Attrs
	TryDemote(p PageID) bool
	UnloadMappings(p PageID, force bool)
	DisposeFree(p PageID)
}

// PageWalk is the circular page array iterator capability.
type PageWalk interface {
	PageFirst() PageID
	PageNext(p PageID) PageID
	PageNextN(p PageID, n uint64) PageID
}

// VnodeOps holds and releases a vnode across the unlock/enqueue
// boundary of a dirty-page handoff.
type VnodeOps interface {
	HoldVnode(v VnodeHandle)
	ReleaseVnode(v VnodeHandle)
}

// Zone reports per-zone cap state for the zones-over-cap scan mode.
type Zone interface {
	// NumOverCap returns how many zones currently exceed their memory
	// cap.
	NumOverCap() int
	// OverCap reports whether the given zone is itself over its cap.
	OverCap(z ZoneID) bool
	// RecordPageoutStat attributes one freed-or-dirtied page to a zone's
	// accounting.
	RecordPageoutStat(z ZoneID, stat PageoutStat)
}

// MemorySignals are the instantaneous, read-only global counters the
// scheduler samples every tick.
type MemorySignals interface {
	FreeMem() int64
	NeedFree() int64
	Deficit() int64
	TotalPages() uint64
	KmemReapahead() int64
	KmemAvail() int64
	KcageOn() bool
	KcageFreeMem() int64
	KcageNeedFree() int64
}

// Reclaimers are the external memory-demand actors the scheduler kicks
// before computing the next cycle's scan budget.
type Reclaimers interface {
	KmemReap()
	SegPreap()
	CageWakeup()
}

// Writeback is the external asynchronous page-out path; it is the only
// capability invoked from the writeback master, never from a scanner
// goroutine directly.
type Writeback interface {
	PutPage(ctx context.Context, v VnodeHandle, offset, length uint64, flags PutPageFlags, cred Credential) error
}

// WallClock is the wall-clock source used for CPU-budget sampling and
// the deadman's progress checks.
type WallClock interface {
	NowNs() int64
}

// ProcessState reports process-wide conditions the deadman consults
// before acting. Panicking distinguishes an unwind already in progress
// from a genuinely stalled writeback push, so the deadman does not
// re-panic on top of a panic already unwinding through this process.
type ProcessState interface {
	Panicking() bool
}

// Host bundles every external collaborator the pageout core needs. It
// is a capability set, not a global: the core is constructed with one
// and never reaches for package-level state, so it is fully testable
// against a mock.
type Host interface {
	Page
	PageOps
	PageWalk
	VnodeOps
	Zone
	MemorySignals
	Reclaimers
	Writeback
	WallClock
	ProcessState

	// DefaultCredential returns the credential used for writeback
	// requests queued on behalf of the pageout process itself.
	DefaultCredential() Credential
}
