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

// Package app wires parsed Options into a running pageout control
// plane, keeping flag parsing separate from construction and run.
package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/effemmess/illumos-omnios/cmd/pageout-agent/app/options"
	"github.com/effemmess/illumos-omnios/pkg/metrics"
	"github.com/effemmess/illumos-omnios/pkg/pageout"
	"github.com/effemmess/illumos-omnios/pkg/pageout/hostctl"
	"github.com/effemmess/illumos-omnios/pkg/util/general"
)

// ParseFlags registers every component's flags on fs and parses args,
// returning the resulting Options.
func ParseFlags(fs *pflag.FlagSet, args []string) (*options.Options, error) {
	opts := options.NewOptions()
	fss := opts.Flags()
	for _, f := range fss.FlagSets {
		fs.AddFlagSet(f)
	}
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return opts, nil
}

// Run materializes Options into a Configuration, constructs the
// pageout control plane against a host capability, and blocks until an
// interrupt signal or ctx is canceled.
func Run(ctx context.Context, opts *options.Options) error {
	conf, err := opts.Config()
	if err != nil {
		return err
	}

	// The physical page table, filesystem writeback path, and zone
	// accounting subsystem are external collaborators out of scope for
	// this repository; a real deployment supplies its own pageout.Host.
	// hostctl.MockHost stands in here so pageout-agent is runnable end
	// to end for demonstration.
	host := hostctl.NewMockHost(int(opts.TotalPages))
	emitter := metrics.DummyMetrics{}

	ctl := pageout.New(host, conf.Pageout, opts.TotalPages,
		pageout.WithMetricEmitter(emitter),
		pageout.WithProbes(pageout.NoopProbes{}),
	)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	general.Infof("starting pageout control plane: total_pages=%d", opts.TotalPages)
	ctl.Start(runCtx)

	select {
	case <-sigCh:
		general.Infof("received shutdown signal, stopping pageout control plane")
	case <-ctx.Done():
	}

	cancel()
	ctl.Stop()
	return nil
}
