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
	"sync"
	"time"

	xrate "golang.org/x/time/rate"
)

// Rate caps how often any single message may be emitted. Per-page state
// churn can repeat the same message for thousands of addresses in one
// refresh pass; wrapping a logger with a Rate keeps that from flooding
// the backend.
type Rate struct {
	// rate limit
	Limit xrate.Limit
	// allowed bursts
	Burst int
	// optional message window size
	Window int
}

// rateLimited wraps a Logger with a sliding window of recently seen
// messages, each throttled by its own limiter.
type rateLimited struct {
	Logger
	sync.Mutex
	rate     Rate
	fifo     []string
	limiters map[string]*xrate.Limiter
}

const (
	// DefaultWindow is the default message window size for rate limiting.
	DefaultWindow = 256
	// MinimumWindow is the smallest message window size for rate limiting.
	MinimumWindow = 32
)

// Every defines a rate limit for the given interval.
func Every(interval time.Duration) xrate.Limit {
	return xrate.Every(interval)
}

// Interval returns a Rate allowing one message per interval.
func Interval(interval time.Duration) Rate {
	return Rate{Limit: Every(interval), Burst: 1}
}

// RateLimit returns a rate-limited version of the given logger.
func RateLimit(log Logger, rate Rate) Logger {
	switch {
	case rate.Window == 0:
		rate.Window = DefaultWindow
	case rate.Window < MinimumWindow:
		rate.Window = MinimumWindow
	}
	if rate.Burst < 1 {
		rate.Burst = 1
	}
	return &rateLimited{
		Logger:   log,
		rate:     rate,
		fifo:     make([]string, 0, rate.Window),
		limiters: make(map[string]*xrate.Limiter),
	}
}

func (rl *rateLimited) Debug(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if rl.limiterFor(msg).Allow() {
		rl.Logger.Debug("<rate-limited> %s", msg)
	}
}

func (rl *rateLimited) Info(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if rl.limiterFor(msg).Allow() {
		rl.Logger.Info("<rate-limited> %s", msg)
	}
}

func (rl *rateLimited) Warn(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if rl.limiterFor(msg).Allow() {
		rl.Logger.Warn("<rate-limited> %s", msg)
	}
}

func (rl *rateLimited) Error(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if rl.limiterFor(msg).Allow() {
		rl.Logger.Error("<rate-limited> %s", msg)
	}
}

// limiterFor returns the limiter for msg, creating one if msg is new and
// shifting the oldest tracked message out once the window is full.
func (rl *rateLimited) limiterFor(msg string) *xrate.Limiter {
	rl.Lock()
	defer rl.Unlock()

	if limiter, ok := rl.limiters[msg]; ok {
		return limiter
	}

	limiter := xrate.NewLimiter(rl.rate.Limit, rl.rate.Burst)
	if len(rl.limiters) == rl.rate.Window {
		delete(rl.limiters, rl.fifo[0])
		rl.fifo = rl.fifo[1:]
	}
	rl.fifo = append(rl.fifo, msg)
	rl.limiters[msg] = limiter

	return limiter
}
