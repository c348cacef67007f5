package uksm

import (
	"github.com/teawater/uksmd/pkg/log"
	"github.com/teawater/uksmd/pkg/uksmerr"
)

var indexLog = log.Get("mergeindex")

// equivalenceClass is an ordered list of pages the kernel has confirmed
// byte-identical, directly or transitively via a representative.
type equivalenceClass []PidAddr

// MergeIndex is the global mapping crc -> equivalence classes, driving the
// gateway's compare/merge/unmerge primitives with at-most-once semantics.
type MergeIndex struct {
	gateway KernelGateway
	pages   map[uint32][]equivalenceClass
}

// NewMergeIndex creates an empty index bound to gateway.
func NewMergeIndex(gateway KernelGateway) *MergeIndex {
	return &MergeIndex{gateway: gateway, pages: make(map[uint32][]equivalenceClass)}
}

// Add records that (pid, addr), last observed with entry.Crc, is a merge
// candidate. It probes every existing class under that crc, in order,
// asking the gateway to compare-and-merge against each member in turn
// before giving up on the class; this is what makes the index
// self-healing when a class's original members have silently diverged
// since the last pass.
func (idx *MergeIndex) Add(pid int, addr uint64, entry PageEntry) error {
	n := PidAddr{Pid: pid, Addr: addr}
	classes, ok := idx.pages[entry.Crc]
	if !ok || len(classes) == 0 {
		idx.pages[entry.Crc] = []equivalenceClass{{n}}
		return nil
	}

	for i, class := range classes {
		accepted := false
		for _, m := range class {
			outcome, err := idx.gateway.CompareAndMerge(m, n)
			if err != nil {
				return err
			}
			if outcome == Merged {
				accepted = true
				break
			}
		}
		if accepted {
			classes[i] = append(class, n)
			idx.pages[entry.Crc] = classes
			return nil
		}
	}

	idx.pages[entry.Crc] = append(classes, equivalenceClass{n})
	return nil
}

// Remove erases (pid, addr) from the class holding it under crc, dropping
// the class if it becomes empty and the crc entry if no classes remain.
// Failure to find the pair indicates an invariant violation; it is logged
// as a warning, never surfaced to the caller as a failure.
func (idx *MergeIndex) Remove(pid int, addr uint64, crc uint32) {
	classes, ok := idx.pages[crc]
	if !ok {
		indexLog.Warn("%v", uksmerr.New(uksmerr.InvariantViolation,
			"remove: no classes for crc %d (pid %d addr 0x%x)", crc, pid, addr))
		return
	}

	target := PidAddr{Pid: pid, Addr: addr}
	for ci, class := range classes {
		for mi, m := range class {
			if m != target {
				continue
			}
			class = append(class[:mi], class[mi+1:]...)
			if len(class) == 0 {
				classes = append(classes[:ci], classes[ci+1:]...)
			} else {
				classes[ci] = class
			}
			if len(classes) == 0 {
				delete(idx.pages, crc)
			} else {
				idx.pages[crc] = classes
			}
			return
		}
	}

	indexLog.Warn("%v", uksmerr.New(uksmerr.InvariantViolation,
		"remove: %v not found under crc %d", target, crc))
}

// Unmerge tells the gateway to separate (pid, addr) from its class, then
// removes it from the index. If the gateway fails, the index is left
// unchanged and the error is surfaced.
func (idx *MergeIndex) Unmerge(pid int, addr uint64, entry PageEntry) error {
	if err := idx.gateway.Unmerge(PidAddr{Pid: pid, Addr: addr}); err != nil {
		return err
	}
	idx.Remove(pid, addr, entry.Crc)
	return nil
}

// Counts returns the total number of crc keys and the total number of
// equivalence classes across all of them, for the prometheus collector in
// collectors.go. Like the tracker, the index's only mutator is the
// worker; callers scraping this concurrently with a running worker should
// expect an occasional stale read, not a torn one.
func (idx *MergeIndex) Counts() (crcs, classes int) {
	crcs = len(idx.pages)
	for _, cs := range idx.pages {
		classes += len(cs)
	}
	return crcs, classes
}

// Classes returns a defensive copy of the classes registered under crc,
// for tests and status introspection.
func (idx *MergeIndex) Classes(crc uint32) [][]PidAddr {
	classes := idx.pages[crc]
	out := make([][]PidAddr, len(classes))
	for i, c := range classes {
		cp := make([]PidAddr, len(c))
		copy(cp, c)
		out[i] = cp
	}
	return out
}
