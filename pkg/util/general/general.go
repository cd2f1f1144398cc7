/*
Copyright 2022 The Katalyst Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package general carries the small set of logging and numeric helpers
// used throughout this repository, mirroring the call shape of the
// equivalent package in katalyst-core.
package general

import (
	"encoding/json"
	"fmt"
	"os"

	"k8s.io/klog/v2"
)

// Infof logs at info level.
func Infof(format string, args ...interface{}) {
	klog.InfoDepth(1, sprintf(format, args...))
}

// InfoS logs a structured info message, key/value pairs following msg.
func InfoS(msg string, keysAndValues ...interface{}) {
	klog.InfoSDepth(1, msg, keysAndValues...)
}

// Warningf logs at warning level.
func Warningf(format string, args ...interface{}) {
	klog.WarningDepth(1, sprintf(format, args...))
}

// Errorf logs at error level.
func Errorf(format string, args ...interface{}) {
	klog.ErrorDepth(1, sprintf(format, args...))
}

// Fatalf logs at fatal level and terminates the process, matching the
// severity of a panic() condition reported from deep inside a worker.
func Fatalf(format string, args ...interface{}) {
	klog.FatalDepth(1, sprintf(format, args...))
}

func sprintf(format string, args ...interface{}) string {
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}

// Ordered is the subset of constraints.Ordered this package needs,
// spelled out locally to avoid an extra dependency for one constraint.
type Ordered interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uintptr |
		~float32 | ~float64
}

// Clamp restricts v to the closed interval [lo, hi].
func Clamp[T Ordered](v, lo, hi T) T {
	if lo > hi {
		lo, hi = hi, lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// LoadJSONConfig reads a JSON document from path into v.
func LoadJSONConfig(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
