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
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/effemmess/illumos-omnios/pkg/pageout"
)

func TestMockHost_PageNextWrapsModuloN(t *testing.T) {
	t.Parallel()
	as := require.New(t)

	h := NewMockHost(4)
	as.Equal(pageout.PageID(0), h.PageFirst())
	as.Equal(pageout.PageID(1), h.PageNext(0))
	as.Equal(pageout.PageID(0), h.PageNext(3))
	as.Equal(pageout.PageID(2), h.PageNextN(0, 6))
}

func TestMockHost_PageNextNZeroPages(t *testing.T) {
	t.Parallel()
	as := require.New(t)

	h := NewMockHost(0)
	as.Equal(pageout.PageID(0), h.PageNextN(5, 3))
}

func TestMockHost_TryLockExclusiveIsMutuallyExclusive(t *testing.T) {
	t.Parallel()
	as := require.New(t)

	h := NewMockHost(2)
	as.True(h.TryLockExclusive(0))
	as.False(h.TryLockExclusive(0))
	h.Unlock(0)
	as.True(h.TryLockExclusive(0))
}

func TestMockHost_VnodeHoldReleaseCounting(t *testing.T) {
	t.Parallel()
	as := require.New(t)

	h := NewMockHost(1)
	v := &MockVnode{ID: 1}
	as.Equal(0, h.VnodeHoldCount(v))

	h.HoldVnode(v)
	h.HoldVnode(v)
	as.Equal(2, h.VnodeHoldCount(v))

	h.ReleaseVnode(v)
	as.Equal(1, h.VnodeHoldCount(v))
}

func TestMockHost_MarkDirtySetsVnodeOffsetAndModBit(t *testing.T) {
	t.Parallel()
	as := require.New(t)

	h := NewMockHost(2)
	v := &MockVnode{ID: 7, Exec: true}
	h.MarkDirty(0, v, 4096)

	gotV, offset, ok := h.Vnode(0)
	as.True(ok)
	as.Equal(v, gotV)
	as.Equal(uint64(4096), offset)
	as.NotZero(h.GetAttrs(0, pageout.AttrMod))
	as.True(h.IsExec(gotV))
}

func TestMockHost_SyncAttrsZeroRMClearsAttrs(t *testing.T) {
	t.Parallel()
	as := require.New(t)

	h := NewMockHost(1)
	h.MarkDirty(0, nil, 0)
	as.NotZero(h.SyncAttrs(0, pageout.SyncZeroRM))
	as.Zero(h.GetAttrs(0, pageout.AttrMod|pageout.AttrRef))
}

func TestMockHost_SyncAttrsDontZeroPreservesAttrs(t *testing.T) {
	t.Parallel()
	as := require.New(t)

	h := NewMockHost(1)
	h.MarkDirty(0, nil, 0)
	first := h.SyncAttrs(0, pageout.SyncDontZeroStopOnRefOrShared)
	second := h.SyncAttrs(0, pageout.SyncDontZeroStopOnRefOrShared)
	as.Equal(first, second)
}

func TestMockHost_DisposeFreeMarksPageFreeAndClearsAttrs(t *testing.T) {
	t.Parallel()
	as := require.New(t)

	h := NewMockHost(1)
	h.MarkDirty(0, nil, 0)
	h.DisposeFree(0)
	as.True(h.IsFree(0))
	as.Zero(h.GetAttrs(0, pageout.AttrMod|pageout.AttrRef))
}

func TestMockHost_PutPageHookOverridesDefaultError(t *testing.T) {
	t.Parallel()
	as := require.New(t)

	h := NewMockHost(1)
	var seenOffset uint64
	h.SetPutPageHook(func(v pageout.VnodeHandle, offset, length uint64, flags pageout.PutPageFlags) error {
		seenOffset = offset
		return nil
	})

	err := h.PutPage(context.Background(), nil, 8192, 4096, pageout.PutPageAsync, h.DefaultCredential())
	as.NoError(err)
	as.Equal(uint64(8192), seenOffset)
	as.Equal(int64(1), h.PutPageCalls())
}

func TestMockHost_ZoneOverCapAndNumOverCap(t *testing.T) {
	t.Parallel()
	as := require.New(t)

	h := NewMockHost(1)
	as.Equal(0, h.NumOverCap())
	as.False(h.OverCap(1))

	h.SetZoneOverCap(1, true)
	as.Equal(1, h.NumOverCap())
	as.True(h.OverCap(1))

	h.SetZoneOverCap(1, false)
	as.Equal(0, h.NumOverCap())
}

func TestMockHost_RecordPageoutStatCounts(t *testing.T) {
	t.Parallel()
	as := require.New(t)

	h := NewMockHost(1)
	as.Equal(0, h.StatCount(1, pageout.StatDirty))
	h.RecordPageoutStat(1, pageout.StatDirty)
	h.RecordPageoutStat(1, pageout.StatDirty)
	as.Equal(2, h.StatCount(1, pageout.StatDirty))
}

var _ pageout.Host = (*MockHost)(nil)
