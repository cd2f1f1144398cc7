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

// decider implements CheckPage: the per-page
// eligibility test and reclaim action applied by both clock hands.
type decider struct {
	host      Host
	state     *sharedState
	pr        Probes
	k         *kstats
	writeback *writebackQueue
}

func newDecider(host Host, state *sharedState, pr Probes, k *kstats, wb *writebackQueue) *decider {
	return &decider{host: host, state: state, pr: pr, k: k, writeback: wb}
}

// zoneFilterMode controls whether CheckPage only considers pages that
// belong to a zone presently over its cap.
type zoneFilterMode int

const (
	zoneFilterNone zoneFilterMode = iota
	zoneFilterOverCapOnly
)

// CheckPage applies the page eligibility test and, for an eligible
// page, the hand-specific action: the front hand clears the reference
// bit, the back hand attempts to reclaim an unreferenced page. It
// returns CheckIneligible without ever taking the page lock when a
// cheap pre-check already rules the page out.
func (d *decider) CheckPage(p PageID, hand Hand, zf zoneFilterMode) CheckResult {
	h := d.host

	if h.IsKernel(p) || h.IsFree(p) || h.LockCount(p) > 0 || h.CowCount(p) != 0 {
		return CheckIneligible
	}

	if zf == zoneFilterOverCapOnly {
		z := h.ZoneOf(p)
		if z == ZoneNone || !h.OverCap(z) {
			return CheckIneligible
		}
	}

	poShare := d.state.poShare.Load()
	if h.ShareCountExceeds(p, poShare) {
		return CheckIneligible
	}

	if !h.TryLockExclusive(p) {
		return CheckIneligible
	}

	if h.IsFree(p) || h.LockCount(p) > 0 || h.CowCount(p) != 0 {
		h.Unlock(p)
		return CheckIneligible
	}

	switch hand {
	case HandFront:
		return d.checkFront(p)
	default:
		return d.checkBack(p)
	}
}

// checkFront implements the front hand: clear the reference bit and
// release the page unconditionally.
func (d *decider) checkFront(p PageID) CheckResult {
	d.host.SyncAttrs(p, SyncZeroRM)
	d.pr.PageoutIsRef(p, HandFront)
	d.host.Unlock(p)
	return CheckNotFreed
}

// maxDemoteRetries bounds the back hand's unmap-and-recheck retry
// loop. The original imposes no explicit bound because the page lock
// prevents new mappings from appearing; a small cap here guards
// against a pathological host mock that never settles.
const maxDemoteRetries = 4

// checkBack implements the back hand: a page that was referenced since
// the front hand passed, or whose share count grew past threshold, or
// that cannot be demoted from a large mapping, survives untouched. A
// genuinely cold page is either handed to the writeback queue (dirty
// and vnode-backed, without unmapping it here) or unmapped and freed
// directly (clean).
func (d *decider) checkBack(p PageID) CheckResult {
	h := d.host
	attrs := h.SyncAttrs(p, SyncDontZeroStopOnRefOrShared)

	for attempt := 0; ; attempt++ {
		if attrs&AttrRef != 0 {
			d.pr.PageoutIsRef(p, HandBack)
			h.Unlock(p)
			return CheckNotFreed
		}

		if h.ShareCountExceeds(p, d.state.poShare.Load()) {
			h.Unlock(p)
			return CheckNotFreed
		}

		if h.SizeClass(p) != 0 {
			if !h.TryDemote(p) {
				h.Unlock(p)
				return CheckIneligible
			}
			attrs = h.GetAttrs(p, AttrMod|AttrRef)
			continue
		}

		v, offset, hasVnode := h.Vnode(p)

		if attrs&AttrMod != 0 && hasVnode {
			if d.queueDirty(p, v, offset) {
				d.pr.PageoutFree(p, HandBack)
				return CheckFreed
			}
			h.Unlock(p)
			return CheckNotFreed
		}

		h.UnloadMappings(p, true)
		attrs = h.GetAttrs(p, AttrMod|AttrRef)

		if attrs&AttrRef != 0 || (attrs&AttrMod != 0 && hasVnode) {
			if attempt >= maxDemoteRetries {
				h.Unlock(p)
				return CheckNotFreed
			}
			continue
		}

		d.freeClean(p, hasVnode, v)
		d.pr.PageoutFree(p, HandBack)
		return CheckFreed
	}
}

func (d *decider) freeClean(p PageID, hasVnode bool, v VnodeHandle) {
	h := d.host

	var isExec, isSwap bool
	if hasVnode {
		isExec = h.IsExec(v)
		isSwap = h.IsSwap(v)
	}

	h.DisposeFree(p)
	h.Unlock(p)

	d.k.incDfree()
	switch {
	case !hasVnode || isSwap:
		d.k.incAnonfree()
	case isExec:
		d.k.incExecfree()
	default:
		d.k.incFsfree()
	}

	if hasVnode {
		if z := h.ZoneOf(p); z != ZoneNone {
			h.RecordPageoutStat(z, StatFS)
		}
	}
}

// queueDirty holds the vnode, enqueues an async writeback request, and
// unlocks the page so the writeback master can push it independently
// of the scanning goroutine.
func (d *decider) queueDirty(p PageID, v VnodeHandle, offset uint64) bool {
	h := d.host
	h.HoldVnode(v)

	ok := d.writeback.queueIORequest(v, offset, h.DefaultCredential())
	if !ok {
		h.ReleaseVnode(v)
		return false
	}

	if z := h.ZoneOf(p); z != ZoneNone {
		if h.IsExec(v) {
			h.RecordPageoutStat(z, StatExec)
		} else if h.IsSwap(v) {
			h.RecordPageoutStat(z, StatAnonDirty)
		} else {
			h.RecordPageoutStat(z, StatDirty)
		}
	}

	h.Unlock(p)
	d.writeback.wakeIfPending()
	return true
}
