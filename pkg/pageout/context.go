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

package pageout

import (
	"context"
	"sync"

	pageoutconfig "github.com/effemmess/illumos-omnios/pkg/config/pageout"
	"github.com/effemmess/illumos-omnios/pkg/metrics"
)

// Ctx is the process-wide handle for the control plane: every writer
// of shared threshold/scanner state is documented here, and it owns
// the goroutine lifecycle of the whole thing.
type Ctx struct {
	host Host
	conf *pageoutconfig.PageoutConfiguration

	clock *Clock
	calib *calibrationState
	state *sharedState
	k     *kstats
	pr    Probes

	wb    *writebackQueue
	dec   *decider
	sched *scheduler
	dm    *deadman

	mu      sync.Mutex
	workers map[int]*scannerWorker
	runCtx  context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Option customizes Ctx construction.
type Option func(*Ctx)

// WithProbes overrides the default no-op probe surface.
func WithProbes(pr Probes) Option {
	return func(c *Ctx) { c.pr = pr }
}

// WithMetricEmitter wires kstat-equivalent counters to an external
// metrics backend.
func WithMetricEmitter(emitter metrics.MetricEmitter) Option {
	return func(c *Ctx) { c.k = newKstats(emitter) }
}

// New constructs the pageout control plane against the supplied host
// capability set and configuration. totalPages seeds the very first,
// non-recalculating threshold derivation.
func New(host Host, conf *pageoutconfig.PageoutConfiguration, totalPages uint64, opts ...Option) *Ctx {
	c := &Ctx{
		host:    host,
		conf:    conf,
		pr:      NoopProbes{},
		workers: make(map[int]*scannerWorker),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.k == nil {
		c.k = newKstats(nil)
	}

	c.clock = NewClock(conf)
	c.clock.Setup(false, totalPages)

	c.calib = newCalibrationState(conf.PageoutSampleLim)
	c.state = newSharedState()

	size := conf.AsyncListSize
	if size <= 0 {
		size = 256
	}
	c.wb = newWritebackQueue(host, size, c.k, c.pr)
	maxPushes := int(c.clock.Thresholds().Maxpgio) / SchedPagingHz
	c.wb.setMaxPushesPerTick(maxPushes)

	c.dec = newDecider(host, c.state, c.pr, c.k, c.wb)

	c.sched = newScheduler(host, conf, c.clock, c.calib, c.state, c.k, c.pr, c.wb, c.spawnWorker)
	c.dm = newDeadman(host, conf, c.wb)

	c.spawnWorker(0)

	return c
}

// spawnWorker registers a scanner worker for instance inst. If the
// control plane is already running it is started immediately;
// otherwise Start picks it up when called.
func (c *Ctx) spawnWorker(inst int) {
	c.mu.Lock()
	if _, ok := c.workers[inst]; ok {
		c.mu.Unlock()
		return
	}
	w := newScannerWorker(inst, c.host, c.conf, c.clock, c.calib, c.state, c.dec, c.pr, c.k)
	c.workers[inst] = w
	runCtx := c.runCtx
	c.mu.Unlock()

	if runCtx != nil {
		c.startWorker(runCtx, w)
	}
}

func (c *Ctx) startWorker(runCtx context.Context, w *scannerWorker) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		w.run(runCtx)
	}()
}

// Start launches the scheduler, writeback master, deadman, and the
// currently registered scanner workers. It returns immediately; use
// Stop to shut everything down.
func (c *Ctx) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)

	c.mu.Lock()
	c.runCtx = runCtx
	c.cancel = cancel
	workers := make([]*scannerWorker, 0, len(c.workers))
	for _, w := range c.workers {
		workers = append(workers, w)
	}
	c.mu.Unlock()

	c.wg.Add(3)
	go func() { defer c.wg.Done(); c.sched.run(runCtx) }()
	go func() { defer c.wg.Done(); c.wb.run(runCtx) }()
	go func() { defer c.wg.Done(); c.dm.run(runCtx) }()

	for _, w := range workers {
		c.startWorker(runCtx, w)
	}

	// Unblock any worker currently parked on the wake/memavail condition
	// variables once shutdown begins, since sync.Cond has no native
	// context support.
	go func() {
		<-runCtx.Done()
		c.state.wakeScanners()
		c.state.broadcastMemavail()
		c.wb.shutdownWake()
	}()
}

// Stop cancels every goroutine started by Start and waits for them to
// exit.
func (c *Ctx) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	c.wg.Wait()
}

// Thresholds exposes the most recently computed threshold set, for
// diagnostics and tests.
func (c *Ctx) Thresholds() Thresholds {
	return c.clock.Thresholds()
}
