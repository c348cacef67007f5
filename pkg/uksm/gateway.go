package uksm

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/teawater/uksmd/pkg/log"
	"github.com/teawater/uksmd/pkg/uksmerr"
)

var gwLog = log.Get("gateway")

// KernelGateway is the interface the tracker and merge index depend on,
// letting tests substitute a fake kernel without touching /proc.
type KernelGateway interface {
	Probe() error
	DrainLRU() error
	ReadPagemap(pid int, start, end uint64) ([]*PagemapEntry, error)
	CompareAndMerge(a, b PidAddr) (MergeOutcome, error)
	Unmerge(a PidAddr) error
}

// Gateway is the only component aware of the kernel's uksm byte formats
// and pseudo-file layout. It owns no mutable state beyond its outcome
// counters; the control nodes are opened per operation.
type Gateway struct {
	mergePath   string
	unmergePath string
	cmpPath     string
	drainPath   string

	merged       int64
	notIdentical int64
	ioErrors     int64
}

// Counters returns the running totals of merge outcomes and I/O errors,
// for the prometheus collector in collectors.go.
func (g *Gateway) Counters() (merged, notIdentical, ioErrors int64) {
	return atomic.LoadInt64(&g.merged), atomic.LoadInt64(&g.notIdentical), atomic.LoadInt64(&g.ioErrors)
}

// NewGateway builds a Gateway against the standard /proc/uksm/* control
// nodes.
func NewGateway() *Gateway {
	return &Gateway{
		mergePath:   mergePath,
		unmergePath: unmergePath,
		cmpPath:     cmpPath,
		drainPath:   lruAddDrainAllPath,
	}
}

// Probe verifies the kernel facility is available by checking that the
// merge control node can be opened for writing.
func (g *Gateway) Probe() error {
	f, err := os.OpenFile(g.mergePath, os.O_WRONLY, 0)
	if err != nil {
		return uksmerr.Wrap(uksmerr.KernelUnavailable, err, "uksm control node %s not writable", g.mergePath)
	}
	f.Close()
	return nil
}

// DrainLRU instructs the kernel to flush its deferred per-cpu page lists.
// Invoked once at the start of each merge pass.
func (g *Gateway) DrainLRU() error {
	f, err := os.OpenFile(g.drainPath, os.O_WRONLY, 0)
	if err != nil {
		return uksmerr.Wrap(uksmerr.KernelIoError, err, "opening %s", g.drainPath)
	}
	defer f.Close()
	if _, err := f.WriteString("1"); err != nil {
		return uksmerr.Wrap(uksmerr.KernelIoError, err, "writing %s", g.drainPath)
	}
	return nil
}

// ReadPagemap reads the per-process uksm_pagemap pseudo-file for pages
// [start, end), returning one optional entry (nil when not present) per
// page in address order. Reads occur in uksmPagemapChunk-entry chunks at
// the offset corresponding to the first page.
func (g *Gateway) ReadPagemap(pid int, start, end uint64) ([]*PagemapEntry, error) {
	path := fmt.Sprintf("/proc/%d/uksm_pagemap", pid)
	f, err := os.Open(path)
	if err != nil {
		return nil, uksmerr.Wrap(uksmerr.KernelIoError, err, "opening %s", path)
	}
	defer f.Close()

	firstPage := start / uint64(PageSize)
	npages := int((end - start) / uint64(PageSize))
	entries := make([]*PagemapEntry, 0, npages)

	buf := make([]byte, uksmPagemapChunk*pagemapRecordSize)
	for page := 0; page < npages; page += uksmPagemapChunk {
		chunk := uksmPagemapChunk
		if remaining := npages - page; remaining < chunk {
			chunk = remaining
		}
		off := int64(firstPage+uint64(page)) * pagemapRecordSize
		want := chunk * pagemapRecordSize
		n, err := f.ReadAt(buf[:want], off)
		if err != nil && err != io.EOF {
			return nil, uksmerr.Wrap(uksmerr.KernelIoError, err, "reading %s at offset %d", path, off)
		}
		if n < want {
			return nil, uksmerr.New(uksmerr.PagemapMalformed, "short read of %s: got %d want %d bytes", path, n, want)
		}
		for i := 0; i < chunk; i++ {
			rec := buf[i*pagemapRecordSize : (i+1)*pagemapRecordSize]
			pmWord := binary.NativeEndian.Uint64(rec[0:8])
			uksmWord := binary.NativeEndian.Uint64(rec[8:16])
			if uksmWord&uksmCrcPresent == 0 {
				entries = append(entries, nil)
				continue
			}
			entries = append(entries, &PagemapEntry{
				Pfn:   pmWord & pmPfnMask,
				Crc:   uint32(uksmWord & uksmCrcMask),
				IsThp: uksmWord&uksmPmThp != 0,
				IsKsm: uksmWord&uksmPmKsm != 0,
			})
		}
	}
	return entries, nil
}

// CompareAndMerge asks the kernel whether the pages at a and b are
// byte-identical; on success it orders the kernel to merge them.
func (g *Gateway) CompareAndMerge(a, b PidAddr) (MergeOutcome, error) {
	cmd := fmt.Sprintf("%d 0x%x %d 0x%x", a.Pid, a.Addr, b.Pid, b.Addr)

	if outcome, err := g.writeCommand(g.cmpPath, cmd); outcome == NotIdentical || err != nil {
		return outcome, err
	}
	return g.writeCommand(g.mergePath, cmd)
}

// Unmerge orders the kernel to separate page a from whatever class it was
// in.
func (g *Gateway) Unmerge(a PidAddr) error {
	cmd := fmt.Sprintf("%d 0x%x", a.Pid, a.Addr)
	f, err := os.OpenFile(g.unmergePath, os.O_WRONLY, 0)
	if err != nil {
		return uksmerr.Wrap(uksmerr.KernelIoError, err, "opening %s", g.unmergePath)
	}
	defer f.Close()
	if _, err := f.WriteString(cmd); err != nil {
		if isPagesNotSame(err) {
			return nil
		}
		return uksmerr.Wrap(uksmerr.KernelIoError, err, "writing %s to %s", cmd, g.unmergePath)
	}
	return nil
}

func (g *Gateway) writeCommand(path, cmd string) (MergeOutcome, error) {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return NotIdentical, uksmerr.Wrap(uksmerr.KernelIoError, err, "opening %s", path)
	}
	defer f.Close()

	if _, err := f.WriteString(cmd); err != nil {
		if isPagesNotSame(err) {
			gwLog.DebugBlock("", "pages not same: %s", cmd)
			atomic.AddInt64(&g.notIdentical, 1)
			return NotIdentical, nil
		}
		atomic.AddInt64(&g.ioErrors, 1)
		return NotIdentical, uksmerr.Wrap(uksmerr.KernelIoError, err, "writing %s to %s", cmd, path)
	}
	if path == g.mergePath {
		atomic.AddInt64(&g.merged, 1)
	}
	return Merged, nil
}

// isPagesNotSame reports whether err is the kernel's errno-541 "pages not
// same" signal, as opposed to a genuine I/O failure. It must be
// distinguished precisely: conflating it with real errors would mask
// genuine kernel I/O problems.
func isPagesNotSame(err error) bool {
	var errno unix.Errno
	if errors.As(err, &errno) {
		return errno == pagesNotSameErrno
	}
	return false
}
