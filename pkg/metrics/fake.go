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

package metrics

import "sync"

// Sample is one recorded emission, captured by FakeMetrics for test
// assertions.
type Sample struct {
	Name  string
	Value float64
	Type  MetricTypeName
	Tags  []MetricTag
}

// FakeMetrics records every emitted sample under a mutex so that
// concurrent scanner goroutines can emit into it safely in tests.
type FakeMetrics struct {
	mu      sync.Mutex
	samples []Sample
}

func NewFakeMetrics() *FakeMetrics {
	return &FakeMetrics{}
}

func (f *FakeMetrics) StoreInt64(name string, value int64, typ MetricTypeName, tags ...MetricTag) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.samples = append(f.samples, Sample{Name: name, Value: float64(value), Type: typ, Tags: tags})
	return nil
}

func (f *FakeMetrics) StoreFloat64(name string, value float64, typ MetricTypeName, tags ...MetricTag) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.samples = append(f.samples, Sample{Name: name, Value: value, Type: typ, Tags: tags})
	return nil
}

// Samples returns a snapshot of every sample recorded so far.
func (f *FakeMetrics) Samples() []Sample {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Sample, len(f.samples))
	copy(out, f.samples)
	return out
}

// Sum adds up every sample recorded under name.
func (f *FakeMetrics) Sum(name string) float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	var total float64
	for _, s := range f.samples {
		if s.Name == name {
			total += s.Value
		}
	}
	return total
}
