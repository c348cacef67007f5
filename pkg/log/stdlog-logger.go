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
	stdlog "log"
)

// stdWriter is the io.Writer that funnels the stock log package into one
// of our loggers as debug messages.
type stdWriter struct {
	l Logger
}

// SetStdLogger redirects the standard log package's output through the
// logger registered for source (or the default logger).
func SetStdLogger(source string) {
	var l Logger

	if source == "" {
		l = Default()
	} else {
		l = log.get(source)
	}

	stdlog.SetPrefix("")
	stdlog.SetFlags(0)
	stdlog.SetOutput(&stdWriter{l: l})
}

func (s *stdWriter) Write(p []byte) (int, error) {
	s.l.Debug("%s", string(p))
	return len(p), nil
}
