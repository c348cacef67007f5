// Copyright 2019 Intel Corporation. All Rights Reserved.
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

// Package log provides a leveled, per-source logger with pluggable
// backends.
//
// The lowest severity of messages to pass through, which log sources
// are enabled, and which log sources are producing debug messages are
// all controlled from the command line: --logger-level, --logger-source,
// and --logger-debug. The reserved keywords 'all' and 'none' refer to
// all or none of the log sources, e.g. --logger-debug=on:all,off:scheduler
// enables debug everywhere except the scheduler.
package log
