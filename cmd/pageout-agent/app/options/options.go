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

package options

import (
	cliflag "k8s.io/component-base/cli/flag"

	"github.com/effemmess/illumos-omnios/cmd/pageout-agent/app/options/pageout"
	"github.com/effemmess/illumos-omnios/pkg/config"
)

// Options is the top-level aggregation of every component's command
// line options.
type Options struct {
	Pageout *pageout.Options

	TotalPages uint64
	MetricPort int
}

// NewOptions creates a new Options with every nested option's default.
func NewOptions() *Options {
	return &Options{
		Pageout:    pageout.NewOptions(),
		TotalPages: 0,
		MetricPort: 9090,
	}
}

// Flags returns the full set of named flag sets for every component.
func (o *Options) Flags() cliflag.NamedFlagSets {
	fss := cliflag.NamedFlagSets{}

	o.Pageout.AddFlags(&fss)

	genericFs := fss.FlagSet("generic")
	genericFs.Uint64Var(&o.TotalPages, "total-pages", o.TotalPages,
		"total pageable page count of the host, also used as the page count of the in-memory demo host; 0 is used as is, not auto-detected")
	genericFs.IntVar(&o.MetricPort, "metric-port", o.MetricPort,
		"metrics port; not read by the agent, whose emitter discards every sample")

	return fss
}

// Config validates every option set, then materializes the patched
// Configuration from them.
func (o *Options) Config() (*config.Configuration, error) {
	if err := o.Pageout.Validate(); err != nil {
		return nil, err
	}

	c := config.NewConfiguration()
	if err := o.Pageout.ApplyTo(c.Pageout); err != nil {
		return nil, err
	}
	return c, nil
}
