package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/outofforest/logger"
	"github.com/outofforest/vbr/bench"
)

var (
	benchCmd = &cobra.Command{
		Use:   "bench",
		Short: "Benchmark lock-free collections backed by version-based reclamation",
		RunE:  benchRun,
	}

	dataStructure = string(bench.List)
	threads       = 4
	getRate       = 0.9
	keyRange      = uint64(100_000)
	prefill       = uint64(50_000)
	capacity      = uint64(1 << 16)
	buckets       = uint64(1024)
	duration      = 10 * time.Second
	interval      = time.Second
	hugePages     = false
	seed          = int64(1)
	output        = ""
)

func init() {
	fs := benchCmd.Flags()
	fs.StringVarP(&dataStructure, "data-structure", "d", dataStructure, "collection to benchmark: list or hashmap")
	fs.IntVarP(&threads, "threads", "t", threads, "number of worker goroutines")
	fs.Float64VarP(&getRate, "get-rate", "g", getRate, "fraction of read operations")
	fs.Uint64VarP(&keyRange, "key-range", "r", keyRange, "size of the key space")
	fs.Uint64Var(&prefill, "prefill", prefill, "number of keys inserted before the run")
	fs.Uint64Var(&capacity, "capacity", capacity, "initial slot capacity of the pool")
	fs.Uint64Var(&buckets, "buckets", buckets, "number of hashmap buckets")
	fs.DurationVar(&duration, "duration", duration, "benchmark duration")
	fs.DurationVar(&interval, "interval", interval, "sampling interval")
	fs.BoolVar(&hugePages, "huge-pages", hugePages, "map huge pages for the slot pool")
	fs.Int64Var(&seed, "seed", seed, "random seed")
	fs.StringVarP(&output, "output", "o", output, "`file` to write interval samples to as CSV")
}

func main() {
	if err := benchCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func benchRun(cmd *cobra.Command, args []string) error {
	ctx := logger.WithLogger(context.Background(), logger.New(logger.DefaultConfig))

	report, err := bench.Run(ctx, bench.Config{
		DataStructure: bench.DataStructure(dataStructure),
		Threads:       threads,
		GetRate:       getRate,
		KeyRange:      keyRange,
		Prefill:       prefill,
		Capacity:      capacity,
		Buckets:       buckets,
		Duration:      duration,
		Interval:      interval,
		HugePages:     hugePages,
		Seed:          seed,
	})
	if err != nil {
		return err
	}

	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return err
		}
		defer f.Close()

		if err := report.WriteCSV(f); err != nil {
			return err
		}
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Data structure", "Threads", "Duration", "Total ops", "Ops/s", "Epoch", "Mapped MB"})
	table.Append([]string{
		string(report.Config.DataStructure),
		strconv.Itoa(report.Config.Threads),
		report.Config.Duration.String(),
		strconv.FormatUint(report.TotalOps, 10),
		strconv.FormatFloat(report.Throughput, 'f', 0, 64),
		strconv.FormatUint(report.FinalStats.Epoch, 10),
		strconv.FormatUint(report.FinalStats.Mapped/(1024*1024), 10),
	})
	table.Render()

	return nil
}
