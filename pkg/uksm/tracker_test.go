package uksm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTracker(gw KernelGateway) *Tracker {
	idx := NewMergeIndex(gw)
	return NewTracker(100, gw, idx)
}

func TestTrackerSingleProcessStability(t *testing.T) {
	tr := newTestTracker(newFakeGateway())

	tr.applyObservation(0x1000, PagemapEntry{Crc: 0xA})
	tr.applyObservation(0x2000, PagemapEntry{Crc: 0xB})
	tr.applyObservation(0x3000, PagemapEntry{Crc: 0xC})

	n, o, m := tr.Status()
	assert.Equal(t, 3, n)
	assert.Equal(t, 0, o)
	assert.Equal(t, 0, m)

	tr.applyObservation(0x1000, PagemapEntry{Crc: 0xA})
	tr.applyObservation(0x2000, PagemapEntry{Crc: 0xB})
	tr.applyObservation(0x3000, PagemapEntry{Crc: 0xC})

	n, o, m = tr.Status()
	assert.Equal(t, 0, n)
	assert.Equal(t, 3, o)
	assert.Equal(t, 0, m)
}

func TestTrackerFingerprintChange(t *testing.T) {
	tr := newTestTracker(newFakeGateway())
	for _, crc := range []uint32{0xA, 0xB, 0xC} {
		tr.applyObservation(addrFor(crc), PagemapEntry{Crc: crc})
	}
	for _, crc := range []uint32{0xA, 0xB, 0xC} {
		tr.applyObservation(addrFor(crc), PagemapEntry{Crc: crc})
	}

	tr.applyObservation(0x1000, PagemapEntry{Crc: 0xA})
	tr.applyObservation(0x2000, PagemapEntry{Crc: 0xB1})
	tr.applyObservation(0x3000, PagemapEntry{Crc: 0xC})

	assert.Equal(t, PageEntry{Crc: 0xA}, tr.oldB[0x1000])
	assert.Equal(t, PageEntry{Crc: 0xC}, tr.oldB[0x3000])
	assert.Equal(t, PageEntry{Crc: 0xB1}, tr.newB[0x2000])
	assert.Empty(t, tr.merged)
}

func addrFor(crc uint32) uint64 {
	switch crc {
	case 0xA:
		return 0x1000
	case 0xB:
		return 0x2000
	case 0xC:
		return 0x3000
	}
	return 0
}

func TestTrackerBucketDisjointness(t *testing.T) {
	tr := newTestTracker(newFakeGateway())
	tr.applyObservation(0x1000, PagemapEntry{Crc: 1})
	tr.applyObservation(0x1000, PagemapEntry{Crc: 1}) // -> old
	tr.applyObservation(0x2000, PagemapEntry{Crc: 2}) // -> new

	for addr := range tr.newB {
		_, inOld := tr.oldB[addr]
		_, inMerged := tr.merged[addr]
		assert.False(t, inOld)
		assert.False(t, inMerged)
	}
	for addr := range tr.oldB {
		_, inMerged := tr.merged[addr]
		assert.False(t, inMerged)
	}
}

// Merge then unmerge restores the old bucket and leaves the index
// without the class the merge created.
func TestTrackerMergeUnmergeRoundTrip(t *testing.T) {
	gw := newFakeGateway()
	idx := NewMergeIndex(gw)
	tr := NewTracker(100, gw, idx)

	tr.applyObservation(0x1000, PagemapEntry{Crc: 5})
	tr.applyObservation(0x1000, PagemapEntry{Crc: 5}) // -> old

	require.NoError(t, tr.Merge())
	_, oldOk := tr.oldB[0x1000]
	_, mergedOk := tr.merged[0x1000]
	assert.False(t, oldOk)
	assert.True(t, mergedOk)
	assert.Len(t, idx.Classes(5), 1)

	require.NoError(t, tr.Unmerge())
	entry, oldOk := tr.oldB[0x1000]
	_, mergedOk = tr.merged[0x1000]
	assert.True(t, oldOk)
	assert.False(t, mergedOk)
	assert.Equal(t, PageEntry{Crc: 5}, entry)
	assert.Empty(t, idx.Classes(5))
}

// An index that has lost track of one merged pair must not stop Unmerge
// from draining the remaining merged entries back to old.
func TestTrackerUnmergeDrainsDespiteLostIndexPair(t *testing.T) {
	gw := newFakeGateway()
	idx := NewMergeIndex(gw)
	tr := NewTracker(100, gw, idx)

	for _, addr := range []uint64{0x1000, 0x2000, 0x3000} {
		tr.applyObservation(addr, PagemapEntry{Crc: 5})
		tr.applyObservation(addr, PagemapEntry{Crc: 5})
	}
	require.NoError(t, tr.Merge())
	_, _, merged := tr.Status()
	require.Equal(t, 3, merged)

	// Simulate the invariant violation: the index no longer knows one of
	// the pairs the tracker still holds in merged.
	idx.Remove(100, 0x2000, 5)

	require.NoError(t, tr.Unmerge())

	n, o, m := tr.Status()
	assert.Equal(t, 0, n)
	assert.Equal(t, 3, o)
	assert.Equal(t, 0, m)
	assert.Empty(t, idx.Classes(5))
	assert.Len(t, gw.unmergedAddr, 3)
}

func TestTrackerAbsentEntryRemovesFromMergedAndIndex(t *testing.T) {
	gw := newFakeGateway()
	idx := NewMergeIndex(gw)
	tr := NewTracker(100, gw, idx)

	tr.applyObservation(0x1000, PagemapEntry{Crc: 5})
	tr.applyObservation(0x1000, PagemapEntry{Crc: 5})
	require.NoError(t, tr.Merge())
	require.Len(t, idx.Classes(5), 1)

	tr.applyAbsent(0x1000)

	assert.Empty(t, tr.merged)
	assert.Empty(t, tr.newB)
	assert.Empty(t, tr.oldB)
	assert.Empty(t, idx.Classes(5))
}

func TestTrackerMergedPageLosesKsmFlagBecomesNew(t *testing.T) {
	gw := newFakeGateway()
	idx := NewMergeIndex(gw)
	tr := NewTracker(100, gw, idx)

	tr.applyObservation(0x1000, PagemapEntry{Crc: 5})
	tr.applyObservation(0x1000, PagemapEntry{Crc: 5})
	require.NoError(t, tr.Merge())

	tr.applyObservation(0x1000, PagemapEntry{Crc: 5, IsKsm: false})

	assert.Empty(t, tr.merged)
	assert.Equal(t, PageEntry{Crc: 5}, tr.newB[0x1000])
	assert.Empty(t, idx.Classes(5))
}
