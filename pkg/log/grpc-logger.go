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

	"google.golang.org/grpc/grpclog"
)

// SetGrpcLogger routes the grpc library's logging through the logger
// registered for source, optionally rate-limited. grpc's informational
// chatter is demoted to debug severity.
func SetGrpcLogger(source string, rate *Rate) {
	var l Logger

	if source == "" {
		l = Default()
	} else {
		l = log.get(source)
	}

	if rate != nil {
		l = RateLimit(l, *rate)
	}

	grpclog.SetLoggerV2(&grpcLogger{Logger: l})
}

// grpcLogger adapts a Logger to the grpclog.LoggerV2 interface.
type grpcLogger struct {
	Logger
}

func (g grpcLogger) Info(args ...interface{}) {
	g.Logger.Debug("%s", fmt.Sprint(args...))
}

func (g grpcLogger) Infoln(args ...interface{}) {
	g.Logger.Debug("%s", fmt.Sprint(args...))
}

func (g grpcLogger) Infof(format string, args ...interface{}) {
	g.Logger.Debug(format, args...)
}

func (g grpcLogger) Warning(args ...interface{}) {
	g.Logger.Warn("%s", fmt.Sprint(args...))
}

func (g grpcLogger) Warningln(args ...interface{}) {
	g.Logger.Warn("%s", fmt.Sprint(args...))
}

func (g grpcLogger) Warningf(format string, args ...interface{}) {
	g.Logger.Warn(format, args...)
}

func (g grpcLogger) Error(args ...interface{}) {
	g.Logger.Error("%s", fmt.Sprint(args...))
}

func (g grpcLogger) Errorln(args ...interface{}) {
	g.Logger.Error("%s", fmt.Sprint(args...))
}

func (g grpcLogger) Errorf(format string, args ...interface{}) {
	g.Logger.Error(format, args...)
}

func (g grpcLogger) Fatal(args ...interface{}) {
	g.Logger.Fatal("%s", fmt.Sprint(args...))
}

func (g grpcLogger) Fatalln(args ...interface{}) {
	g.Logger.Fatal("%s", fmt.Sprint(args...))
}

func (g grpcLogger) Fatalf(format string, args ...interface{}) {
	g.Logger.Fatal(format, args...)
}

func (g grpcLogger) V(_ int) bool {
	return true
}
