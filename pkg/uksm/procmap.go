package uksm

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/teawater/uksmd/pkg/uksmerr"
)

// ParseSmaps parses the smaps-style VMA summary for task.Pid, yielding a
// MapRange for every anonymous, non-hugetlb virtual memory area, clipped
// to task.Window if one is set. Ranges are returned in the order they
// appear in the source file.
func ParseSmaps(task TaskInfo) ([]MapRange, error) {
	path := fmt.Sprintf("/proc/%d/smaps", task.Pid)
	f, err := os.Open(path)
	if err != nil {
		return nil, uksmerr.Wrap(uksmerr.PreconditionFailed, err, "opening %s", path)
	}
	defer f.Close()

	var ranges []MapRange
	var cur *MapRange
	var anon, sharedHuge, privHuge uint64
	haveHeader := false

	flush := func() {
		if !haveHeader || cur == nil {
			return
		}
		if anon > 0 && sharedHuge == 0 && privHuge == 0 {
			ranges = append(ranges, *cur)
		}
		cur = nil
		haveHeader = false
		anon, sharedHuge, privHuge = 0, 0, 0
	}

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if r, ok := parseAreaHeader(line); ok {
			flush()
			cur = &r
			haveHeader = true
			continue
		}
		switch {
		case strings.HasPrefix(line, "Anonymous:"):
			anon = parseKbField(line)
		case strings.HasPrefix(line, "Shared_Hugetlb:"):
			sharedHuge = parseKbField(line)
		case strings.HasPrefix(line, "Private_Hugetlb:"):
			privHuge = parseKbField(line)
		}
	}
	flush()
	if err := scanner.Err(); err != nil {
		return nil, uksmerr.Wrap(uksmerr.PagemapMalformed, err, "reading %s", path)
	}

	if task.Window != nil {
		ranges = clipToWindow(ranges, *task.Window)
	}
	return ranges, nil
}

// parseAreaHeader matches a smaps header line "<start>-<end> ..." in
// lowercase hex, returning the MapRange if start < end.
func parseAreaHeader(line string) (MapRange, bool) {
	dash := strings.IndexByte(line, '-')
	if dash < 0 {
		return MapRange{}, false
	}
	sp := strings.IndexByte(line, ' ')
	if sp < 0 || sp < dash {
		return MapRange{}, false
	}
	startStr := line[:dash]
	endStr := line[dash+1 : sp]
	start, err1 := strconv.ParseUint(startStr, 16, 64)
	end, err2 := strconv.ParseUint(endStr, 16, 64)
	if err1 != nil || err2 != nil || start >= end {
		return MapRange{}, false
	}
	return MapRange{Start: start, End: end}, true
}

// parseKbField extracts the numeric field from a "Name:  <n> kB" smaps
// line, returning 0 if malformed. A malformed field is treated as absent,
// not as a fatal parse error.
func parseKbField(line string) uint64 {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return 0
	}
	v, err := strconv.ParseUint(fields[1], 10, 64)
	if err != nil {
		return 0
	}
	return v
}

// clipToWindow drops ranges fully outside win and intersects overlapping
// ranges with it.
func clipToWindow(ranges []MapRange, win Window) []MapRange {
	out := make([]MapRange, 0, len(ranges))
	for _, r := range ranges {
		start := r.Start
		end := r.End
		if end <= win.Start || start >= win.End {
			continue
		}
		if start < win.Start {
			start = win.Start
		}
		if end > win.End {
			end = win.End
		}
		if start < end {
			out = append(out, MapRange{Start: start, End: end})
		}
	}
	return out
}
