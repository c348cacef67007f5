package uksm

import (
	"fmt"
	"os"
	"sync"

	"github.com/teawater/uksmd/pkg/log"
	"github.com/teawater/uksmd/pkg/uksmerr"
)

var schedLog = log.Get("scheduler")

// taskKey is a comparable projection of TaskInfo (whose Window field is a
// pointer) used for refresh-queue dedup by value equality.
type taskKey struct {
	pid        int
	hasWindow  bool
	start, end uint64
}

func keyOf(t TaskInfo) taskKey {
	if t.Window == nil {
		return taskKey{pid: t.Pid}
	}
	return taskKey{pid: t.Pid, hasWindow: true, start: t.Window.Start, end: t.Window.End}
}

// Scheduler holds exclusive ownership of the registered-task map, the four
// work queues, the tracker set and the merge index. Control operations are
// brief mutations of the registry/queues; a single background worker
// drains queues in fixed priority and is the only thing that ever touches
// trackers or the index.
type Scheduler struct {
	gateway KernelGateway
	index   *MergeIndex

	mu       sync.Mutex
	registry map[int]TaskInfo
	trackers map[int]*Tracker

	unmergeQ []int
	delQ     []int
	refreshQ []TaskInfo
	mergeQ   []int

	unmergeSet map[int]bool
	delSet     map[int]bool
	mergeSet   map[int]bool
	refreshSet map[taskKey]bool

	workerActive bool
}

// NewScheduler creates a scheduler driving gateway through a fresh merge
// index.
func NewScheduler(gateway KernelGateway) *Scheduler {
	index := NewMergeIndex(gateway)
	return &Scheduler{
		gateway:    gateway,
		index:      index,
		registry:   make(map[int]TaskInfo),
		trackers:   make(map[int]*Tracker),
		unmergeSet: make(map[int]bool),
		delSet:     make(map[int]bool),
		mergeSet:   make(map[int]bool),
		refreshSet: make(map[taskKey]bool),
	}
}

// Add validates and registers pid, enqueuing an initial refresh. Fails if
// the pid's smaps file is unreadable, the window is misaligned, or the
// pid is already registered.
func (s *Scheduler) Add(pid int, window *Window) error {
	if window != nil {
		if window.Start%uint64(PageSize) != 0 || window.End%uint64(PageSize) != 0 {
			return uksmerr.New(uksmerr.PreconditionFailed, "window [0x%x,0x%x) not page-aligned", window.Start, window.End)
		}
	}
	if err := checkPidExists(pid); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.registry[pid]; ok {
		return uksmerr.New(uksmerr.PreconditionFailed, "pid %d already registered", pid)
	}

	task := TaskInfo{Pid: pid, Window: window}
	s.registry[pid] = task
	s.enqueueRefreshLocked(task)
	s.kickLocked()
	return nil
}

// Del deregisters pid: purges any pending refresh/merge entries for it and
// ensures exactly one unmerge and one del entry at the tail of their
// queues.
func (s *Scheduler) Del(pid int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.registry[pid]; !ok {
		return uksmerr.New(uksmerr.PreconditionFailed, "pid %d not registered", pid)
	}
	delete(s.registry, pid)

	s.purgeRefreshLocked(pid)
	s.purgeMergeLocked(pid)
	s.enqueueUnmergeLocked(pid)
	s.enqueueDelLocked(pid)
	s.kickLocked()
	return nil
}

// RefreshAll unions the current registered-task set into the refresh
// queue, deduplicated by TaskInfo equality.
func (s *Scheduler) RefreshAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshAllLocked()
	s.kickLocked()
}

// MergeAll performs RefreshAll semantics, then unions the registered pids
// into the merge queue.
func (s *Scheduler) MergeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshAllLocked()
	for pid := range s.registry {
		s.enqueueMergeLocked(pid)
	}
	s.kickLocked()
}

func (s *Scheduler) refreshAllLocked() {
	for _, task := range s.registry {
		s.enqueueRefreshLocked(task)
	}
}

func (s *Scheduler) enqueueRefreshLocked(task TaskInfo) {
	k := keyOf(task)
	if s.refreshSet[k] {
		return
	}
	s.refreshSet[k] = true
	s.refreshQ = append(s.refreshQ, task)
}

func (s *Scheduler) enqueueMergeLocked(pid int) {
	if s.mergeSet[pid] {
		return
	}
	s.mergeSet[pid] = true
	s.mergeQ = append(s.mergeQ, pid)
}

func (s *Scheduler) enqueueUnmergeLocked(pid int) {
	if s.unmergeSet[pid] {
		return
	}
	s.unmergeSet[pid] = true
	s.unmergeQ = append(s.unmergeQ, pid)
}

func (s *Scheduler) enqueueDelLocked(pid int) {
	if s.delSet[pid] {
		return
	}
	s.delSet[pid] = true
	s.delQ = append(s.delQ, pid)
}

func (s *Scheduler) purgeRefreshLocked(pid int) {
	kept := s.refreshQ[:0]
	for _, t := range s.refreshQ {
		if t.Pid == pid {
			delete(s.refreshSet, keyOf(t))
			continue
		}
		kept = append(kept, t)
	}
	s.refreshQ = kept
}

func (s *Scheduler) purgeMergeLocked(pid int) {
	kept := s.mergeQ[:0]
	for _, p := range s.mergeQ {
		if p == pid {
			delete(s.mergeSet, p)
			continue
		}
		kept = append(kept, p)
	}
	s.mergeQ = kept
}

// kickLocked starts the worker if none is running and work is pending.
// Caller must hold s.mu.
func (s *Scheduler) kickLocked() {
	if s.workerActive {
		return
	}
	if len(s.unmergeQ) == 0 && len(s.delQ) == 0 && len(s.refreshQ) == 0 && len(s.mergeQ) == 0 {
		return
	}
	s.workerActive = true
	go s.runWorker()
}

// runWorker drains the four queues in strict priority (unmerge > del >
// refresh > merge) until all are empty, tolerant of concurrent appends:
// each iteration re-checks the queues under lock, so work enqueued mid-run
// is picked up rather than requiring a fresh worker launch. Trackers and
// the merge index are touched only here, never by a control call.
func (s *Scheduler) runWorker() {
	drainedLRU := false
	for {
		item, kind, ok := s.popNext()
		if !ok {
			return
		}
		switch kind {
		case kindUnmerge:
			s.doUnmerge(item.(int))
		case kindDel:
			s.doDel(item.(int))
		case kindRefresh:
			s.doRefresh(item.(TaskInfo))
		case kindMerge:
			if !drainedLRU {
				if err := s.gateway.DrainLRU(); err != nil {
					schedLog.Error("drain_lru: %v", err)
				}
				drainedLRU = true
			}
			s.doMerge(item.(int))
		}
	}
}

type workKind int

const (
	kindUnmerge workKind = iota
	kindDel
	kindRefresh
	kindMerge
)

// popNext pops the highest-priority pending item, or reports no work
// and clears workerActive.
func (s *Scheduler) popNext() (interface{}, workKind, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.unmergeQ) > 0 {
		pid := s.unmergeQ[0]
		s.unmergeQ = s.unmergeQ[1:]
		delete(s.unmergeSet, pid)
		return pid, kindUnmerge, true
	}
	if len(s.delQ) > 0 {
		pid := s.delQ[0]
		s.delQ = s.delQ[1:]
		delete(s.delSet, pid)
		return pid, kindDel, true
	}
	if len(s.refreshQ) > 0 {
		task := s.refreshQ[0]
		s.refreshQ = s.refreshQ[1:]
		delete(s.refreshSet, keyOf(task))
		return task, kindRefresh, true
	}
	if len(s.mergeQ) > 0 {
		pid := s.mergeQ[0]
		s.mergeQ = s.mergeQ[1:]
		delete(s.mergeSet, pid)
		return pid, kindMerge, true
	}

	s.workerActive = false
	return nil, 0, false
}

func (s *Scheduler) doUnmerge(pid int) {
	s.mu.Lock()
	t := s.trackers[pid]
	s.mu.Unlock()
	if t == nil {
		return
	}
	if err := t.Unmerge(); err != nil {
		schedLog.Error("unmerge pid %d: %v", pid, err)
	}
}

func (s *Scheduler) doDel(pid int) {
	s.mu.Lock()
	delete(s.trackers, pid)
	s.mu.Unlock()
}

func (s *Scheduler) doRefresh(task TaskInfo) {
	s.mu.Lock()
	t := s.trackers[task.Pid]
	if t == nil {
		t = NewTracker(task.Pid, s.gateway, s.index)
		s.trackers[task.Pid] = t
	}
	s.mu.Unlock()

	if err := t.Refresh(task); err != nil {
		schedLog.Error("refresh pid %d: %v", task.Pid, err)
	}
}

func (s *Scheduler) doMerge(pid int) {
	s.mu.Lock()
	t := s.trackers[pid]
	s.mu.Unlock()
	if t == nil {
		// A concurrent Del may have dropped the tracker between MergeAll
		// enqueuing this pid and the worker reaching it; the queue
		// priorities guarantee the unmerge+del pair ran first, so this is
		// a harmless no-op, not an invariant violation.
		return
	}
	if err := t.Merge(); err != nil {
		schedLog.Error("merge pid %d: %v", pid, err)
	}
}

// TrackerStatus returns the bucket sizes for pid's tracker, for telemetry
// and tests. The second return is false if pid has no tracker.
func (s *Scheduler) TrackerStatus(pid int) (newCount, oldCount, mergedCount int, ok bool) {
	s.mu.Lock()
	t := s.trackers[pid]
	s.mu.Unlock()
	if t == nil {
		return 0, 0, 0, false
	}
	n, o, m := t.Status()
	return n, o, m, true
}

// Idle reports whether no worker is running and all four queues are
// empty. The daemon's shutdown path in cmd/uksmd polls this to let an
// in-flight worker finish before the process exits.
func (s *Scheduler) Idle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.workerActive &&
		len(s.unmergeQ) == 0 && len(s.delQ) == 0 && len(s.refreshQ) == 0 && len(s.mergeQ) == 0
}

// Index returns the scheduler's merge index, for metrics registration.
func (s *Scheduler) Index() *MergeIndex { return s.index }

// QueueDepths returns the current length of each of the four work queues,
// for the prometheus collector in collectors.go.
func (s *Scheduler) QueueDepths() (unmerge, del, refresh, merge int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.unmergeQ), len(s.delQ), len(s.refreshQ), len(s.mergeQ)
}

// TrackerCount returns the number of live per-process trackers.
func (s *Scheduler) TrackerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.trackers)
}

// Registered reports whether pid is currently in the registry, for tests.
func (s *Scheduler) Registered(pid int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.registry[pid]
	return ok
}

func checkPidExists(pid int) error {
	path := fmt.Sprintf("/proc/%d/smaps", pid)
	f, err := os.Open(path)
	if err != nil {
		return uksmerr.Wrap(uksmerr.PreconditionFailed, err, "pid %d smaps file unreadable", pid)
	}
	f.Close()
	return nil
}
