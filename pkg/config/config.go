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

// Package config is the root Configuration tree, reduced from the
// teacher's AgentConfiguration/StaticAgentConfiguration nesting down to
// the single domain this repository implements.
package config

import (
	pageoutconfig "github.com/effemmess/illumos-omnios/pkg/config/pageout"
)

// Configuration is the full, assembled configuration passed to every
// component at startup.
type Configuration struct {
	Pageout *pageoutconfig.PageoutConfiguration
}

// NewConfiguration returns a Configuration seeded with every component's
// defaults.
func NewConfiguration() *Configuration {
	return &Configuration{
		Pageout: pageoutconfig.NewPageoutConfiguration(),
	}
}
