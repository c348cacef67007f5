package uksm

import "os"

// PageSize is resolved once at startup; every address handled by this
// package is a multiple of it.
var PageSize = os.Getpagesize()

const (
	mergePath          = "/proc/uksm/merge"
	unmergePath        = "/proc/uksm/unmerge"
	cmpPath            = "/proc/uksm/cmp"
	lruAddDrainAllPath = "/proc/uksm/lru_add_drain_all"

	pagesNotSameErrno = 541

	// uksmPagemapChunk is the number of 16-byte records read per chunked
	// read of uksm_pagemap.
	uksmPagemapChunk = 256

	// pagemapRecordSize is 8 bytes pagemap word + 8 bytes uksm word.
	pagemapRecordSize = 16

	pmPfnBits   = 55
	pmPfnMask   = (uint64(1) << pmPfnBits) - 1
	uksmCrcBits = 32
	uksmCrcMask = (uint64(1) << uksmCrcBits) - 1

	uksmCrcPresent = uint64(1) << 63
	uksmPmThp      = uint64(1) << 62
	uksmPmKsm      = uint64(1) << 61
)
