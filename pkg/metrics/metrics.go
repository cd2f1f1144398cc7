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

// Package metrics defines the emitter interface every component in this
// repository reports through, so that handler-style functions can be
// written against a single injectable surface instead of package-level
// Prometheus globals.
package metrics

// MetricTypeName distinguishes how a reported value should be
// interpreted by the collector (raw gauge vs. monotonic counter).
type MetricTypeName string

const (
	MetricTypeNameRaw     MetricTypeName = "raw"
	MetricTypeNameCounter MetricTypeName = "counter"
)

// MetricTag attaches a dimension (e.g. zone id, hand) to an emitted
// sample.
type MetricTag struct {
	Key string
	Val string
}

// MetricEmitter is the capability every component uses to report
// kstat-equivalent counters and gauges, instead of reaching for a
// package-level Prometheus client directly.
type MetricEmitter interface {
	StoreInt64(name string, value int64, typ MetricTypeName, tags ...MetricTag) error
	StoreFloat64(name string, value float64, typ MetricTypeName, tags ...MetricTag) error
}

// DummyMetrics is a MetricEmitter that discards every sample; it is
// used by tests and by callers that have not wired a real collector.
type DummyMetrics struct{}

func (DummyMetrics) StoreInt64(string, int64, MetricTypeName, ...MetricTag) error { return nil }

func (DummyMetrics) StoreFloat64(string, float64, MetricTypeName, ...MetricTag) error { return nil }
