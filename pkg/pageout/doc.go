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

// Package pageout implements a page replacement and pageout control
// plane: a self-tuning two-handed clock scanner driven by a scheduling
// controller that reads instantaneous memory pressure and sets reclaim
// intensity.
//
// The subsystem never touches physical pages directly. Everything it
// needs from the host — page iteration and attributes, vnode holds,
// zone accounting, writeback I/O, and wall-clock time — is expressed as
// the Host capability in host.go, so the core can run unmodified against
// a mock host in tests and against a real port elsewhere.
package pageout
