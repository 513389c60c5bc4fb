// Package main provides membench, a workload driver for the memkit views.
// It exercises the array, ring and hash-table views over a single
// registry, reports per-view throughput, and optionally compares the ring
// against a heap-backed queue.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/eapache/queue"
	flag "github.com/spf13/pflag"
	"github.com/sugawarayuuta/sonnet"

	"github.com/joshuapare/memkit/internal/storage"
	"github.com/joshuapare/memkit/membuf"
	"github.com/joshuapare/memkit/view"
)

// Config holds all workload configuration.
type Config struct {
	Items    int
	RingCap  int
	TableCap int
	UseMmap  bool
	JSON     bool
	Compare  bool
	Verbose  bool
}

// Result is one view's workload outcome.
type Result struct {
	View    string  `json:"view"`
	Ops     int     `json:"ops"`
	Elapsed float64 `json:"elapsed_seconds"`
	OpsPerS float64 `json:"ops_per_second"`
}

// Report is the full run, including registry state after the workloads.
type Report struct {
	Results  []Result     `json:"results"`
	Registry membuf.Stats `json:"registry"`
	Buffers  []string     `json:"buffers"`
	Backend  string       `json:"backend"`
}

func main() {
	cfg := Config{}
	flag.IntVar(&cfg.Items, "items", 1_000_000, "operations per workload")
	flag.IntVar(&cfg.RingCap, "ring-cap", 4096, "ring capacity in elements")
	flag.IntVar(&cfg.TableCap, "table-cap", 1024, "hash table starting capacity in cells")
	flag.BoolVar(&cfg.UseMmap, "mmap", false, "back the registry with anonymous mappings")
	flag.BoolVar(&cfg.JSON, "json", false, "emit the report as JSON")
	flag.BoolVar(&cfg.Compare, "compare", false, "also run the heap-queue ring baseline")
	flag.BoolVarP(&cfg.Verbose, "verbose", "v", false, "log registry diagnostics")
	flag.Parse()

	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "membench: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg Config) error {
	logger := slog.New(slog.DiscardHandler)
	if cfg.Verbose {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
	}

	backend := "heap"
	opts := []membuf.Option{membuf.WithLogger(logger)}
	if cfg.UseMmap {
		backend = "mmap"
		opts = append(opts, membuf.WithAllocator(storage.NewMmap()))
	}
	reg := membuf.NewRegistry(opts...)
	defer reg.Close()

	report := Report{Backend: backend}

	res, err := arrayWorkload(reg, cfg.Items)
	if err != nil {
		return err
	}
	report.Results = append(report.Results, res)

	res, err = ringWorkload(reg, cfg.RingCap, cfg.Items)
	if err != nil {
		return err
	}
	report.Results = append(report.Results, res)

	if cfg.Compare {
		report.Results = append(report.Results, queueBaseline(cfg.RingCap, cfg.Items))
	}

	res, err = tableWorkload(reg, cfg.TableCap, cfg.Items)
	if err != nil {
		return err
	}
	report.Results = append(report.Results, res)

	report.Registry = reg.Stats()
	report.Buffers = reg.Names()

	if cfg.JSON {
		out, err := sonnet.MarshalIndent(report, "", "  ")
		if err != nil {
			return fmt.Errorf("encode report: %w", err)
		}
		fmt.Println(string(out))
		return nil
	}

	for _, r := range report.Results {
		fmt.Printf("%-12s %10d ops in %8.3fs  (%12.0f ops/s)\n",
			r.View, r.Ops, r.Elapsed, r.OpsPerS)
	}
	fmt.Printf("registry: %d buffers, %d bytes (%s backend)\n",
		report.Registry.Buffers, report.Registry.Bytes, backend)
	return nil
}

func finish(name string, ops int, start time.Time) Result {
	elapsed := time.Since(start).Seconds()
	return Result{
		View:    name,
		Ops:     ops,
		Elapsed: elapsed,
		OpsPerS: float64(ops) / elapsed,
	}
}

func arrayWorkload(reg *membuf.Registry, items int) (Result, error) {
	a, err := view.NewArrayNamed[uint64](reg, "bench.array", 16)
	if err != nil {
		return Result{}, err
	}

	start := time.Now()
	for i := 0; i < items; i++ {
		if err := a.Push(uint64(i)); err != nil {
			return Result{}, err
		}
	}
	// Walk everything back to keep the pushes honest.
	var sum uint64
	for _, v := range a.All() {
		sum += v
	}
	_ = sum
	return finish("array", items, start), nil
}

func ringWorkload(reg *membuf.Registry, capacity, items int) (Result, error) {
	r, err := view.NewRingNamed[uint64](reg, "bench.ring", capacity)
	if err != nil {
		return Result{}, err
	}

	start := time.Now()
	for i := 0; i < items; i++ {
		r.Push(uint64(i))
	}
	_ = r.Last()
	return finish("ring", items, start), nil
}

func queueBaseline(capacity, items int) Result {
	q := queue.New()

	start := time.Now()
	for i := 0; i < items; i++ {
		q.Add(uint64(i))
		if q.Length() > capacity {
			q.Remove()
		}
	}
	return finish("heap-queue", items, start)
}

func tableWorkload(reg *membuf.Registry, capacity, items int) (Result, error) {
	h, err := view.NewHashTableNamed[uint64, uint64](reg, "bench.table", capacity,
		view.TableConfig[uint64]{Hash: view.Shift64})
	if err != nil {
		return Result{}, err
	}

	start := time.Now()
	for i := 0; i < items; i++ {
		k := uint64(i) % uint64(capacity*4)
		if !h.Set(k, uint64(i)) {
			return Result{}, fmt.Errorf("table rejected key %d", k)
		}
		if i%3 == 0 {
			h.Destroy(k)
		}
	}
	return finish("hashtable", items, start), nil
}
