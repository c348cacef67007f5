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
	"math"
	"os"
)

// Level describes the severity of log messages.
type Level int

const (
	// LevelDebug is the severity for debug messages.
	LevelDebug Level = iota
	// LevelInfo is the severity for informational messages.
	LevelInfo
	// LevelWarn is the severity for warnings.
	LevelWarn
	// LevelError is the severity for errors.
	LevelError
	// LevelFatal is the severity for fatal errors.
	LevelFatal
	// LevelPanic is the severity for panic messages.
	LevelPanic
)

// Logger is the interface for producing log messages for/from a particular source.
type Logger interface {
	// Debug formats and emits a debug message.
	Debug(format string, args ...interface{})
	// Info formats and emits an informational message.
	Info(format string, args ...interface{})
	// Warn formats and emits a warning message.
	Warn(format string, args ...interface{})
	// Error formats and emits an error message.
	Error(format string, args ...interface{})
	// Fatal formats and emits an error message and os.Exit()'s with status 1.
	Fatal(format string, args ...interface{})
	// Panic formats and emits an error messages, and panics with the same.
	Panic(format string, args ...interface{})

	// DebugBlock formats and emits a multiline debug message.
	DebugBlock(prefix string, format string, args ...interface{})
	// InfoBlock formats and emits a multiline information message.
	InfoBlock(prefix string, format string, args ...interface{})
	// WarnBlock formats and emits a multiline warning message.
	WarnBlock(prefix string, format string, args ...interface{})
	// ErrorBlock formats and emits a multiline error message.
	ErrorBlock(prefix string, format string, args ...interface{})

	// EnableDebug enables debug messages for this Logger.
	EnableDebug(bool) bool
	// DebugEnabled checks if debug messages are enabled for this Logger.
	DebugEnabled() bool

	// Source returns the source name of this Logger.
	Source() string
}

// logger implements Logger as an index into the shared logging state.
type logger uint

// EnableDebug enables/disables debug logging for this logger.
func (l logger) EnableDebug(state bool) bool {
	log.Lock()
	defer log.Unlock()

	cfg := log.configs[l]
	old := cfg.setDebug(state)
	log.configs[l] = cfg

	return old
}

// DebugEnabled checks if debug logging is enabled for this logger.
func (l logger) DebugEnabled() bool {
	log.RLock()
	defer log.RUnlock()

	cfg := log.configs[l]
	return cfg.isDebug()
}

// Source returns the source for the given logger.
func (l logger) Source() string {
	log.RLock()
	defer log.RUnlock()

	return log.sources[l]
}

// Debug logs a debug message.
func (l logger) Debug(format string, args ...interface{}) {
	level := LevelDebug
	if cfg, active, emit := l.config(level); emit {
		active.Log(level, cfg.source(), format, args...)
	}
}

// Info logs an informational message.
func (l logger) Info(format string, args ...interface{}) {
	level := LevelInfo
	if cfg, active, emit := l.config(level); emit {
		active.Log(LevelInfo, cfg.source(), format, args...)
	}
}

// Warn logs a warning message.
func (l logger) Warn(format string, args ...interface{}) {
	level := LevelWarn
	if cfg, active, emit := l.config(level); emit {
		active.Log(level, cfg.source(), format, args...)
	}
}

// Error logs an error message.
func (l logger) Error(format string, args ...interface{}) {
	level := LevelError
	if cfg, active, emit := l.config(level); emit {
		active.Log(level, cfg.source(), format, args...)
	}
}

// Fatal logs a fatal error message and os.Exit(1)'s.
func (l logger) Fatal(format string, args ...interface{}) {
	level := LevelFatal
	cfg, active, _ := l.config(level)
	active.Log(level, cfg.source(), format, args...)

	os.Exit(1)
}

// Panic logs a panic message and panic()'s.
func (l logger) Panic(format string, args ...interface{}) {
	level := LevelPanic
	cfg, active, _ := l.config(level)
	active.Log(level, cfg.source(), format, args...)

	panic(fmt.Sprintf(cfg.source()+" "+format, args...))
}

// DebugBlock logs a multi-line debug message.
func (l logger) DebugBlock(prefix string, format string, args ...interface{}) {
	level := LevelDebug
	if cfg, active, emit := l.config(level); emit {
		active.Block(level, cfg.source(), prefix, format, args...)
	}
}

// InfoBlock logs a multi-line informational message.
func (l logger) InfoBlock(prefix string, format string, args ...interface{}) {
	level := LevelInfo
	if cfg, active, emit := l.config(level); emit {
		active.Block(level, cfg.source(), prefix, format, args...)
	}
}

// WarnBlock logs a multi-line warning message.
func (l logger) WarnBlock(prefix string, format string, args ...interface{}) {
	level := LevelWarn
	if cfg, active, emit := l.config(level); emit {
		active.Block(level, cfg.source(), prefix, format, args...)
	}
}

// ErrorBlock logs a multi-line error message.
func (l logger) ErrorBlock(prefix string, format string, args ...interface{}) {
	level := LevelError
	if cfg, active, emit := l.config(level); emit {
		active.Block(level, cfg.source(), prefix, format, args...)
	}
}

// config returns the logger's configuration and whether level is emitted:
// info is gated by the source-enabled bit, debug by the debug bit or
// forced debugging, warnings and above always pass.
func (l logger) config(level Level) (srcConfig, Backend, bool) {
	if level != LevelDebug && level < log.level {
		return srcConfig{}, nil, false
	}

	log.RLock()
	cfg := log.configs[l]
	active := log.active
	forced := log.forced
	log.RUnlock()

	switch level {
	case LevelInfo:
		return cfg, active, cfg.isInfo()
	case LevelDebug:
		return cfg, active, cfg.isDebug() || forced
	default:
		return cfg, active, true
	}
}

//
// Per-source runtime configuration bits.
//

const (
	maxLoggers = math.MaxUint16
	infoBit    = (1 << iota)
	debugBit
)

// srcConfig is one source's configuration: its logger id plus the info
// and debug gate bits.
type srcConfig struct {
	id   uint16
	bits uint16
}

// newSrcConfig creates a configuration with the given gates.
func newSrcConfig(id logger, info, debug bool) srcConfig {
	cfg := srcConfig{id: uint16(id)}
	cfg.setEnabled(info, debug)
	return cfg
}

// owner returns the logger this config belongs to.
func (cfg *srcConfig) owner() logger {
	return logger(cfg.id)
}

// setEnabled sets both gate bits.
func (cfg *srcConfig) setEnabled(info, debug bool) {
	cfg.bits = 0
	if info {
		cfg.bits = infoBit
	}
	if debug {
		cfg.bits |= debugBit
	}
}

// setInfo sets/clears the info gate, returning the previous state.
func (cfg *srcConfig) setInfo(enable bool) bool {
	old := (cfg.bits & infoBit) != 0
	if enable {
		cfg.bits |= infoBit
	} else {
		cfg.bits &^= infoBit
	}
	return old
}

// isInfo tests the info gate.
func (cfg *srcConfig) isInfo() bool {
	return (cfg.bits & infoBit) != 0
}

// setDebug sets/clears the debug gate, returning the previous state.
func (cfg *srcConfig) setDebug(enable bool) bool {
	old := (cfg.bits & debugBit) != 0
	if enable {
		cfg.bits |= debugBit
	} else {
		cfg.bits &^= debugBit
	}
	return old
}

// isDebug tests the debug gate.
func (cfg *srcConfig) isDebug() bool {
	return (cfg.bits & debugBit) != 0
}

// source returns the source name for this config.
func (cfg srcConfig) source() string {
	return cfg.owner().Source()
}
