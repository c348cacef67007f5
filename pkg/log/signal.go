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
	"os"
	"os/signal"
)

// channel the debug-toggle signal is delivered on
var debugSig chan os.Signal

// SetupDebugToggleSignal makes sig flip forced full debugging on and off
// for the running daemon, without restarting it or touching its flags.
func SetupDebugToggleSignal(sig os.Signal) {
	log.Lock()
	defer log.Unlock()

	stopDebugToggle()

	debugSig = make(chan os.Signal, 1)
	signal.Notify(debugSig, sig)

	go func(ch <-chan os.Signal) {
		state := map[bool]string{false: "off", true: "on"}
		for range ch {
			log.forceDebug(!log.debugForced())
			defLog.Warn("forced full debugging is now %s...", state[log.debugForced()])
		}
	}(debugSig)
}

// ClearDebugToggleSignal removes any debug-toggle signal handler.
func ClearDebugToggleSignal() {
	log.Lock()
	defer log.Unlock()
	stopDebugToggle()
}

func stopDebugToggle() {
	if debugSig != nil {
		signal.Stop(debugSig)
		close(debugSig)
		debugSig = nil
	}
}
