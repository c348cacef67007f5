package uksm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubtractRangesNoOverlap(t *testing.T) {
	prev := []MapRange{{Start: 0x1000, End: 0x2000}}
	cur := []MapRange{{Start: 0x5000, End: 0x6000}}
	assert.Equal(t, prev, SubtractRanges(prev, cur))
}

func TestSubtractRangesFullyCovered(t *testing.T) {
	prev := []MapRange{{Start: 0x1000, End: 0x2000}}
	cur := []MapRange{{Start: 0x1000, End: 0x2000}}
	assert.Empty(t, SubtractRanges(prev, cur))
}

func TestSubtractRangesPartialOverlapSplits(t *testing.T) {
	prev := []MapRange{{Start: 0x1000, End: 0x4000}}
	cur := []MapRange{{Start: 0x2000, End: 0x3000}}
	got := SubtractRanges(prev, cur)
	assert.Equal(t, []MapRange{
		{Start: 0x1000, End: 0x2000},
		{Start: 0x3000, End: 0x4000},
	}, got)
}

func TestClipToWindowDropsOutside(t *testing.T) {
	ranges := []MapRange{{Start: 0x1000, End: 0x2000}, {Start: 0x5000, End: 0x6000}}
	win := Window{Start: 0x4000, End: 0x7000}
	got := clipToWindow(ranges, win)
	assert.Equal(t, []MapRange{{Start: 0x5000, End: 0x6000}}, got)
}

func TestClipToWindowIntersectsOverlap(t *testing.T) {
	ranges := []MapRange{{Start: 0x1000, End: 0x5000}}
	win := Window{Start: 0x2000, End: 0x3000}
	got := clipToWindow(ranges, win)
	assert.Equal(t, []MapRange{{Start: 0x2000, End: 0x3000}}, got)
}
