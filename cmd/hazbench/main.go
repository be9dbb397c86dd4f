// hazbench stress-tests the hazard pointer registry: writer goroutines
// rotate shared atomic pointers and retire the displaced objects while
// reader goroutines protect and dereference through them. Every freed
// object is poisoned, so any use-after-free a reader could observe
// aborts the run.
package main

import (
	"flag"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"hazptr"
	"hazptr/infra/memory"
	"hazptr/infra/sequence"
	"hazptr/metrics"
)

// poison marks a node's payload after the registry freed it. A reader
// seeing it while holding a protection is a reclamation bug.
const poison = ^uint64(0)

type node struct {
	payload atomic.Uint64
}

type counters struct {
	swaps atomic.Uint64
	reads atomic.Uint64
	frees atomic.Uint64
}

func main() {
	configPath := flag.String("config", "", "path to YAML config (optional)")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg, err := Load(*configPath)
	if err != nil {
		logger.Fatal("config load failed", zap.Error(err))
	}

	logger.Info("starting run",
		zap.Int("readers", cfg.Readers),
		zap.Int("writers", cfg.Writers),
		zap.Int("objects", cfg.Objects),
		zap.Int("slots", cfg.Slots),
		zap.Duration("duration", cfg.Duration.Std()),
		zap.Bool("use_pool", cfg.UsePool),
	)

	// ---------------- Memory ----------------

	var pool *memory.Pool[node]
	if cfg.UsePool {
		pool = memory.NewPool(func() *node { return &node{} })
	}

	var stats counters
	free := func(n *node) {
		n.payload.Store(poison)
		stats.frees.Add(1)
		if pool != nil {
			pool.Put(n)
		}
	}

	// Writers take thread ids [0, Writers), readers the rest.
	reg := hazptr.New(cfg.Writers+cfg.Readers, cfg.Slots, free)

	// ---------------- Metrics ----------------

	promReg := prometheus.NewRegistry()
	if err := promReg.Register(metrics.NewCollector("hazbench", reg)); err != nil {
		logger.Fatal("metrics registration failed", zap.Error(err))
	}

	// ---------------- Shared state ----------------

	seq := sequence.New(0)
	srcs := make([]atomic.Pointer[node], cfg.Objects)
	for i := range srcs {
		n := &node{}
		n.payload.Store(seq.Next())
		srcs[i].Store(n)
	}

	// ---------------- Run ----------------

	var stop atomic.Bool
	var wg sync.WaitGroup

	for w := 0; w < cfg.Writers; w++ {
		wg.Add(1)
		go func(tid int) {
			defer wg.Done()
			runWriter(tid, cfg, reg, pool, seq, srcs, &stats, &stop)
		}(w)
	}
	for r := 0; r < cfg.Readers; r++ {
		wg.Add(1)
		go func(tid int) {
			defer wg.Done()
			runReader(tid, cfg, reg, srcs, &stats, &stop, logger)
		}(cfg.Writers + r)
	}

	time.Sleep(cfg.Duration.Std())
	stop.Store(true)
	wg.Wait()

	// Readers are gone; a final sweep per writer drains the lists.
	for w := 0; w < cfg.Writers; w++ {
		reg.Retire(w, nil)
	}

	// ---------------- Report ----------------

	mfs, err := promReg.Gather()
	if err != nil {
		logger.Fatal("metrics gather failed", zap.Error(err))
	}
	pending := 0.0
	for _, mf := range mfs {
		if mf.GetName() == "hazptr_retired_pending" && len(mf.GetMetric()) > 0 {
			pending = mf.GetMetric()[0].GetGauge().GetValue()
		}
	}

	logger.Info("run complete",
		zap.Uint64("swaps", stats.swaps.Load()),
		zap.Uint64("reads", stats.reads.Load()),
		zap.Uint64("frees", stats.frees.Load()),
		zap.Float64("pending", pending),
	)
}

// runWriter rotates the pointers in [lo, hi) owned by this writer,
// retiring each displaced object on the writer's own thread id.
func runWriter(tid int, cfg Config, reg *hazptr.Registry[node], pool *memory.Pool[node],
	seq *sequence.Sequencer, srcs []atomic.Pointer[node], stats *counters, stop *atomic.Bool) {

	per := len(srcs) / cfg.Writers
	lo := tid * per
	hi := lo + per
	if tid == cfg.Writers-1 {
		hi = len(srcs) // last writer absorbs the remainder
	}

	for i := lo; !stop.Load(); i++ {
		if i == hi {
			i = lo
		}
		var n *node
		if pool != nil {
			n = pool.Get()
		} else {
			n = &node{}
		}
		n.payload.Store(seq.Next())

		old := srcs[i].Swap(n)
		stats.swaps.Add(1)
		reg.Retire(tid, old)
	}
}

// runReader protects a random pointer, checks the object was not
// poisoned underneath the protection, and clears.
func runReader(tid int, cfg Config, reg *hazptr.Registry[node], srcs []atomic.Pointer[node],
	stats *counters, stop *atomic.Bool, logger *zap.Logger) {

	holders := make([]*hazptr.Holder[node], cfg.Slots)
	for s := range holders {
		holders[s] = reg.Holder(tid, s)
	}
	defer func() {
		for _, h := range holders {
			h.Clear()
		}
	}()

	rng := rand.New(rand.NewSource(int64(tid)))
	for slot := 0; !stop.Load(); slot = (slot + 1) % cfg.Slots {
		h := holders[slot]
		n := h.Protect(&srcs[rng.Intn(len(srcs))])
		if n == nil {
			continue
		}
		if n.payload.Load() == poison {
			logger.Fatal("use-after-free: protected object was reclaimed",
				zap.Int("reader", tid))
		}
		stats.reads.Add(1)
		h.Clear()
	}
}
