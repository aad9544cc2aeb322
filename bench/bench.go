// Package bench drives randomized operation mixes against the collections
// backed by the reclamation engine and samples throughput and pool growth over
// time.
package bench

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"math/rand"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/outofforest/logger"
	"github.com/outofforest/parallel"
	"github.com/outofforest/vbr"
	"github.com/outofforest/vbr/hashmap"
	"github.com/outofforest/vbr/list"
)

// DataStructure selects the collection under test.
type DataStructure string

// Available collections.
const (
	List    DataStructure = "list"
	HashMap DataStructure = "hashmap"
)

// Config defines a benchmark run.
type Config struct {
	DataStructure DataStructure
	Threads       int
	// GetRate is the fraction of read operations; the rest splits evenly
	// between inserts and deletes.
	GetRate   float64
	KeyRange  uint64
	Prefill   uint64
	Capacity  uint64
	Buckets   uint64
	Duration  time.Duration
	Interval  time.Duration
	HugePages bool
	Seed      int64
}

// Sample is one interval measurement.
type Sample struct {
	Elapsed time.Duration
	Ops     uint64
	Stats   vbr.Stats
}

// Report aggregates a finished run.
type Report struct {
	Config     Config
	Samples    []Sample
	TotalOps   uint64
	Throughput float64
	FinalStats vbr.Stats
}

// WriteCSV writes the interval samples.
func (r *Report) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"elapsed_ms", "ops", "epoch", "bags", "capacity", "mapped_bytes"}); err != nil {
		return errors.WithStack(err)
	}
	records := lo.Map(r.Samples, func(s Sample, _ int) []string {
		return []string{
			strconv.FormatInt(s.Elapsed.Milliseconds(), 10),
			strconv.FormatUint(s.Ops, 10),
			strconv.FormatUint(s.Stats.Epoch, 10),
			strconv.FormatUint(s.Stats.Bags, 10),
			strconv.FormatUint(s.Stats.Capacity, 10),
			strconv.FormatUint(s.Stats.Mapped, 10),
		}
	})
	if err := cw.WriteAll(records); err != nil {
		return errors.WithStack(err)
	}
	cw.Flush()
	return errors.WithStack(cw.Error())
}

type target interface {
	Get(local *vbr.Local[list.Node], key uint64) (uint64, bool)
	Insert(local *vbr.Local[list.Node], key, value uint64) bool
	Delete(local *vbr.Local[list.Node], key uint64) (uint64, bool)
}

type counter struct {
	ops uint64
	_   [56]byte
}

// Run executes the configured benchmark.
func Run(ctx context.Context, config Config) (*Report, error) {
	if config.Threads <= 0 {
		return nil, errors.New("thread count must be positive")
	}
	if config.KeyRange == 0 {
		return nil, errors.New("key range must be positive")
	}
	if config.GetRate < 0 || config.GetRate > 1 {
		return nil, errors.New("get rate must be within [0, 1]")
	}
	if config.Duration <= 0 || config.Interval <= 0 {
		return nil, errors.New("duration and interval must be positive")
	}

	global, deallocFunc, err := vbr.New[list.Node](vbr.Config{
		Capacity:     config.Capacity,
		UseHugePages: config.HugePages,
	})
	if err != nil {
		return nil, err
	}
	defer deallocFunc()

	t, err := newTarget(global, config)
	if err != nil {
		return nil, err
	}

	log := logger.Get(ctx)
	log.Info("benchmark started",
		zap.String("dataStructure", string(config.DataStructure)),
		zap.Int("threads", config.Threads),
		zap.Float64("getRate", config.GetRate),
		zap.Uint64("keyRange", config.KeyRange),
		zap.Duration("duration", config.Duration),
	)

	counters := make([]counter, config.Threads)
	samples := make([]Sample, 0, config.Duration/config.Interval+1)
	started := time.Now()

	runCtx, cancel := context.WithTimeout(ctx, config.Duration)
	defer cancel()

	err = parallel.Run(runCtx, func(ctx context.Context, spawn parallel.SpawnFn) error {
		for i := range config.Threads {
			spawn(fmt.Sprintf("worker-%02d", i), parallel.Fail, func(ctx context.Context) error {
				return runWorker(ctx, t, global, config, rand.New(rand.NewSource(config.Seed+int64(i))),
					&counters[i].ops)
			})
		}
		spawn("sampler", parallel.Fail, func(ctx context.Context) error {
			ticker := time.NewTicker(config.Interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return errors.WithStack(ctx.Err())
				case <-ticker.C:
					samples = append(samples, Sample{
						Elapsed: time.Since(started),
						Ops:     totalOps(counters),
						Stats:   global.Stats(),
					})
				}
			}
		})
		return nil
	})
	if err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
		return nil, err
	}

	elapsed := time.Since(started)
	total := totalOps(counters)
	report := &Report{
		Config:     config,
		Samples:    samples,
		TotalOps:   total,
		Throughput: float64(total) / elapsed.Seconds(),
		FinalStats: global.Stats(),
	}

	log.Info("benchmark finished",
		zap.Uint64("totalOps", report.TotalOps),
		zap.Float64("throughput", report.Throughput),
		zap.Uint64("finalEpoch", report.FinalStats.Epoch),
		zap.Uint64("mappedBytes", report.FinalStats.Mapped),
	)

	return report, nil
}

func newTarget(global *vbr.Global[list.Node], config Config) (target, error) {
	local := vbr.NewLocal(global)

	var t target
	switch config.DataStructure {
	case List:
		t = list.New(local)
	case HashMap:
		buckets := config.Buckets
		if buckets == 0 {
			buckets = 1024
		}
		t = hashmap.New(local, buckets)
	default:
		return nil, errors.Errorf("unknown data structure %q", config.DataStructure)
	}

	rnd := rand.New(rand.NewSource(config.Seed))
	for range config.Prefill {
		t.Insert(local, rnd.Uint64()%config.KeyRange, rnd.Uint64())
	}
	return t, nil
}

func runWorker(
	ctx context.Context,
	t target,
	global *vbr.Global[list.Node],
	config Config,
	rnd *rand.Rand,
	ops *uint64,
) error {
	local := vbr.NewLocal(global)
	updateRate := config.GetRate + (1-config.GetRate)/2

	for ctx.Err() == nil {
		key := rnd.Uint64() % config.KeyRange
		switch dice := rnd.Float64(); {
		case dice < config.GetRate:
			t.Get(local, key)
		case dice < updateRate:
			t.Insert(local, key, rnd.Uint64())
		default:
			t.Delete(local, key)
		}
		atomic.AddUint64(ops, 1)
	}
	return errors.WithStack(ctx.Err())
}

func totalOps(counters []counter) uint64 {
	var total uint64
	for i := range counters {
		total += atomic.LoadUint64(&counters[i].ops)
	}
	return total
}
