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
	"sync"
)

// levelHighest is one above the highest valid message severity. Backends
// use it and the levels above it for internal control requests.
const levelHighest = LevelPanic + 1

// logging is the shared state of all loggers: the active backend, the
// severity threshold, and the per-source configuration bits.
type logging struct {
	sync.RWMutex
	level   Level                // lowest unsuppressed severity
	forced  bool                 // forced debugging for all sources
	active  Backend              // active backend instance
	backend map[string]BackendFn // registered backend constructors
	loggers map[string]logger    // source name to logger id
	sources map[logger]string    // logger id to source name
	configs map[logger]srcConfig // logger id to configuration bits
	align   int                  // longest source name seen so far
}

// our logging state
var log = &logging{
	level:   DefaultLevel,
	backend: make(map[string]BackendFn),
	loggers: make(map[string]logger),
	sources: make(map[logger]string),
	configs: make(map[logger]srcConfig),
}

// Get returns the Logger for the given source, creating it if necessary.
func Get(source string) Logger {
	return log.get(source)
}

// NewLogger creates a Logger for the given source, getting the existing
// one if the source is already known.
func NewLogger(source string) Logger {
	return log.get(source)
}

// SetLevel sets the lowest unsuppressed message severity.
func SetLevel(level Level) {
	opt.Level = level

	log.Lock()
	defer log.Unlock()

	log.level = level
}

// SetBackend activates the backend registered under the given name.
func SetBackend(name string) error {
	log.Lock()
	defer log.Unlock()

	fn, ok := log.backend[name]
	if !ok {
		return loggerError("unknown logger backend '%s'", name)
	}

	old := log.active
	log.active = fn()
	log.active.SetSourceAlignment(log.align)
	if old != nil {
		old.Stop()
	}

	return nil
}

// activateBackend is SetBackend for the command line, where an unknown
// backend name should not prevent the remaining options from parsing.
func activateBackend(name string) {
	if err := SetBackend(name); err != nil {
		defLog.Error("%v", err)
	}
}

// get returns the logger for the given source, creating it if necessary.
func (log *logging) get(source string) Logger {
	log.Lock()
	defer log.Unlock()

	if l, ok := log.loggers[source]; ok {
		return l
	}

	if len(log.loggers) >= maxLoggers {
		panic("log: too many logger instances")
	}

	l := logger(len(log.loggers))
	log.loggers[source] = l
	log.sources[l] = source
	log.configs[l] = newSrcConfig(l, opt.sourceEnabled(source), opt.debugEnabled(source))

	if len(source) > log.align {
		log.align = len(source)
		if log.active != nil {
			log.active.SetSourceAlignment(log.align)
		}
	}

	return l
}

// forceDebug turns debug messages from all sources on or off.
func (log *logging) forceDebug(state bool) {
	log.Lock()
	defer log.Unlock()

	log.forced = state
}

// debugForced checks if debugging is forced for all sources.
func (log *logging) debugForced() bool {
	log.RLock()
	defer log.RUnlock()

	return log.forced
}

// updateLoggers reapplies the configured level and per-source enabled and
// debugging states to every logger created so far.
func (o *options) updateLoggers() {
	log.Lock()
	defer log.Unlock()

	log.level = o.Level
	for source, l := range log.loggers {
		cfg := log.configs[l]
		cfg.setEnabled(o.sourceEnabled(source), o.debugEnabled(source))
		log.configs[l] = cfg
	}
}

func init() {
	activateBackend(string(defaults.Logger))
}
