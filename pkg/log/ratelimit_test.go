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
	"testing"
	"time"

	xrate "golang.org/x/time/rate"
)

// Limiters must be stable for messages still inside the window and
// recreated for messages the window has shifted out.
func TestRateLimit(t *testing.T) {
	limited := RateLimit(Default(), Rate{Window: MinimumWindow, Limit: Every(time.Second)})
	rl := limited.(*rateLimited)

	seen := make(map[string]*xrate.Limiter)

	// fill the window, remembering each message's limiter
	messages := make([]string, 0, MinimumWindow)
	for idx := 0; idx < cap(messages); idx++ {
		msg := fmt.Sprintf("message #%d", idx)
		messages = append(messages, msg)
		seen[msg] = rl.limiterFor(msg)
	}

	// a second lookup returns the remembered limiter
	for msg, limiter := range seen {
		if rl.limiterFor(msg) != limiter {
			t.Errorf("unexpected new limiter for message %s", msg)
		}
	}

	// overflow the window with a batch of fresh messages
	fresh := make([]string, 0, MinimumWindow/5)
	for i := 0; i < cap(fresh); i++ {
		msg := fmt.Sprintf("message #%d", len(messages)+i)
		fresh = append(fresh, msg)
		seen[msg] = rl.limiterFor(msg)
	}

	for _, msg := range fresh {
		if rl.limiterFor(msg) != seen[msg] {
			t.Errorf("unexpected new limiter for fresh message %s", msg)
		}
	}

	// old messages still inside the window kept their limiters
	for idx := len(fresh); idx < len(messages); idx++ {
		msg := messages[idx]
		if rl.limiterFor(msg) != seen[msg] {
			t.Errorf("unexpected new limiter for old message %s", msg)
		}
	}

	// the oldest messages were shifted out and get fresh limiters
	for idx := 0; idx < len(fresh); idx++ {
		msg := messages[idx]
		if rl.limiterFor(msg) == seen[msg] {
			t.Errorf("unexpected old limiter for shifted-out message %s", msg)
		}
	}
}
