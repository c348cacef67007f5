// Copyright 2019-2020 Intel Corporation. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package log

import (
	"fmt"
	"strings"
)

//
// Backend interface and the default fmt-based implementation.
//

// BackendFn creates a Backend instance.
type BackendFn func() Backend

// Backend formats and emits log messages.
type Backend interface {
	// Name returns the name of this backend.
	Name() string
	// Log emits a message with the given severity, source, and Printf-like arguments.
	Log(Level, string, string, ...interface{})
	// Block emits a multi-line message with an additional per-line prefix.
	Block(Level, string, string, string, ...interface{})
	// Flush flushes and stops initial buffering synchronously.
	Flush()
	// Sync waits for all queued messages to get emitted.
	Sync()
	// Stop stops the backend instance.
	Stop()
	// SetSourceAlignment sets the longest source name for prefix alignment.
	SetSourceAlignment(int)
}

// RegisterBackend registers a logger backend constructor.
func RegisterBackend(name string, fn BackendFn) {
	log.backend[name] = fn
}

const (
	// FmtBackendName is the name of our simple fmt-based logging backend.
	FmtBackendName = "fmt"
	// fmtQueueLen is the length of the internal fmt message queue.
	fmtQueueLen = 1024
)

// control levels the fmt backend's goroutine recognizes above the valid
// severities
const (
	levelNop Level = iota + levelHighest
	levelStop
)

// severity tags the fmt backend prefixes emitted messages with
var levelTags = map[Level]string{
	LevelDebug: "D: ",
	LevelInfo:  "I: ",
	LevelWarn:  "W: ",
	LevelError: "E: ",
	LevelFatal: "FATAL ERROR: ",
	LevelPanic: "PANIC: ",
}

// fmtBackend is the default fmt.Println-based Backend. A goroutine owns
// the actual emitting; messages before the first flush or error are
// buffered so early startup noise can be dropped by backends that care.
type fmtBackend struct {
	queue    chan *fmtMsg // emit requests
	srcAlign int          // source alignment width
}

// fmtMsg is one emit request for the fmt backend goroutine.
type fmtMsg struct {
	level  Level         // message severity
	source string        // logger source
	prefix string        // block prefix
	msg    string        // formatted message body
	sync   chan struct{} // reverse-ack for synchronous requests
	flush  bool          // flush buffered messages first
}

// newFmtBackend creates a fmt Backend and starts its emitter goroutine.
func newFmtBackend() Backend {
	f := &fmtBackend{
		queue: make(chan *fmtMsg, fmtQueueLen),
	}
	go f.emitLoop()
	return f
}

func (*fmtBackend) Name() string {
	return FmtBackendName
}

func (f *fmtBackend) Log(level Level, source, format string, args ...interface{}) {
	f.push(level, source, "", format, args...)
}

func (f *fmtBackend) Block(level Level, source, prefix, format string, args ...interface{}) {
	f.push(level, source, prefix, format, args...)
}

func (f *fmtBackend) Flush() {
	f.control(levelNop, true)
}

func (f *fmtBackend) Sync() {
	f.control(levelNop, false)
}

func (f *fmtBackend) Stop() {
	f.control(levelStop, false)
}

func (f *fmtBackend) SetSourceAlignment(width int) {
	f.srcAlign = width
}

// control sends a synchronous control request to the emitter goroutine.
func (f *fmtBackend) control(level Level, flush bool) {
	sync := make(chan struct{})
	f.queue <- &fmtMsg{
		level: level,
		flush: flush,
		sync:  sync,
	}
	<-sync
	close(sync)
}

// push queues one message for emitting. Errors and above force the buffer
// out first; fatal and panic messages are also synchronous.
func (f *fmtBackend) push(level Level, source, prefix, format string, args ...interface{}) {
	var sync chan struct{}

	if level > LevelError {
		sync = make(chan struct{})
	}

	f.queue <- &fmtMsg{
		level:  level,
		source: source,
		prefix: prefix,
		msg:    fmt.Sprintf(format, args...),
		sync:   sync,
		flush:  level >= LevelError,
	}

	if sync != nil {
		<-sync
		close(sync)
	}
}

// emitLoop is the emitter goroutine: buffer until the first flush (or a
// full buffer), then pass everything straight through.
func (f *fmtBackend) emitLoop() {
	buf := make([]*fmtMsg, 0, fmtQueueLen)

	for m := range f.queue {
		if buf == nil {
			f.emit(m)
		} else if m.flush || len(buf) == cap(buf) {
			for _, b := range buf {
				f.emit(b)
			}
			f.emit(m)
			buf = nil
		} else {
			buf = append(buf, m)
		}
		if m.sync != nil {
			m.sync <- struct{}{}
		}
		if m.level == levelStop {
			return
		}
	}
}

// emit prints one message, its source centered in an aligned bracket.
func (f *fmtBackend) emit(m *fmtMsg) {
	if m.level >= levelNop {
		return
	}
	length := len(m.source)
	suflen := (f.srcAlign - length) / 2
	prelen := f.srcAlign - (length + suflen)
	source := "[" + fmt.Sprintf("%*s", prelen, "") + m.source + fmt.Sprintf("%*s", suflen, "") + "]"

	for _, line := range strings.Split(m.msg, "\n") {
		if m.prefix == "" {
			fmt.Println(levelTags[m.level], source, line)
		} else {
			fmt.Println(levelTags[m.level], source, m.prefix, line)
		}
	}
}

func init() {
	RegisterBackend(FmtBackendName, newFmtBackend)
}
