// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2025.10.13
//

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	m "github.com/mkhts/proximum"
	"github.com/mkhts/proximum/internal/config"
	"github.com/mkhts/proximum/internal/metrics"
	"github.com/mkhts/proximum/internal/report"
	"github.com/mkhts/proximum/internal/store"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {

	// Parse command line arguments
	args, err := parseArgs()
	if err != nil {
		m.PrintE(err)
		flag.Usage()
		os.Exit(1)
	}

	// Run the main application
	if err := runApplication(args); err != nil {
		m.PrintE(err)
		os.Exit(1)
	}
}

// Main application processing
func runApplication(args cmdOpt) error {

	cfg, err := loadConfig(args)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	sim, err := m.NewSimulation(cfg, m.NewH3Grid())
	if err != nil {
		return fmt.Errorf("failed to create simulation: %w", err)
	}
	m.PrintA("run %s: %d nodes, %d epochs, %d measurements, seed %d\n", sim.ID, cfg.NNodes, cfg.NEpochs, cfg.NMeasurements, cfg.Seed)

	// Metrics follow the simulation through its listeners
	var collector *metrics.Collector
	if len(args.metricsFn) > 0 {
		collector, err = metrics.NewCollector(prometheus.NewRegistry())
		if err != nil {
			return fmt.Errorf("failed to create metrics: %w", err)
		}
		sim.RegisterEpochListener(collector.ObserveEpoch)
		sim.RegisterSkipListener(collector.ObserveSkip)
		last := time.Now()
		sim.RegisterEpochListener(func(m.EpochEvent) {
			now := time.Now()
			collector.ObserveEpochDuration(now.Sub(last))
			last = now
		})
	}

	var db *store.Store
	if len(args.dbFn) > 0 {
		db, err = store.Open(args.dbFn)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()
	}

	// Process epochs
	if err := processChunks(sim, args.chunk, db); err != nil {
		return err
	}

	// Prepare output file
	out, err := prepareOutput(args)
	if err != nil {
		return fmt.Errorf("failed to prepare output: %w", err)
	}
	defer closeOutput(out)

	if err := writeSnapshot(out, sim.Snapshot()); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return writeReports(args, sim.Stats(), collector)
}

// Apply the config file, then the flags given on the command line
func loadConfig(args cmdOpt) (*m.SimulationConfig, error) {
	cfg := m.NewSimulationConfig()
	if len(args.cfgFn) > 0 {
		var err error
		cfg, err = config.LoadSimulationConfig(args.cfgFn)
		if err != nil {
			return nil, err
		}
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "n":
			cfg.NNodes = args.nNodes
		case "e":
			cfg.NEpochs = args.nEpochs
		case "seed":
			cfg.Seed = args.seed
		}
	})
	return cfg, nil
}

// Run the simulation in chunks, reporting progress and saving after each one
func processChunks(sim *m.Simulation, chunk int, db *store.Store) error {
	ctx := context.Background()
	cfg := sim.Config()

	for sim.State() != m.Completed {
		res, err := sim.RunEpochs(chunk)
		if err != nil {
			return fmt.Errorf("simulation failed: %w", err)
		}
		kf, ls, asserted := res.Stats.Last()
		m.PrintA("epoch %4d/%d: rms kf=%10.1f ls=%10.1f asserted=%10.1f [m]\n", sim.Epoch(), cfg.NEpochs, kf, ls, asserted)

		if db != nil {
			if err := db.SaveRun(ctx, sim.Snapshot(), cfg); err != nil {
				return fmt.Errorf("failed to save run: %w", err)
			}
		}
	}

	// A run without epochs still stores its initial state
	if db != nil && cfg.NEpochs == 0 {
		if err := db.SaveRun(ctx, sim.Snapshot(), cfg); err != nil {
			return fmt.Errorf("failed to save run: %w", err)
		}
	}
	return nil
}

func writeSnapshot(w io.Writer, snap *m.Snapshot) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(snap)
}

func writeReports(args cmdOpt, st m.Stats, collector *metrics.Collector) error {
	if len(args.pngFn) > 0 {
		if err := report.WritePNG(st, args.pngFn); err != nil {
			return fmt.Errorf("failed to write png: %w", err)
		}
	}
	if len(args.htmlFn) > 0 {
		f, err := os.Create(args.htmlFn)
		if err != nil {
			return fmt.Errorf("failed to create html file: %w", err)
		}
		defer f.Close()
		if err := report.WriteHTML(st, f); err != nil {
			return fmt.Errorf("failed to write html: %w", err)
		}
	}
	if collector != nil {
		if err := collector.WriteTextfile(args.metricsFn); err != nil {
			return err
		}
	}
	return nil
}

// Prepare output file
func prepareOutput(args cmdOpt) (io.WriteCloser, error) {

	// Use stdout if no output file is specified
	if len(args.outFn) == 0 {
		return &nopCloser{os.Stdout}, nil
	}

	// Create output file
	f, err := os.Create(args.outFn)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, nil
}

// Close output file
func closeOutput(out io.WriteCloser) {
	if out != nil {
		out.Close()
	}
}

// nopCloser - WriteCloser that ignores close operations
type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }

// Structure to hold command line argument information
type cmdOpt struct {
	cfgFn     string
	outFn     string
	dbFn      string
	pngFn     string
	htmlFn    string
	metricsFn string
	nNodes    int
	nEpochs   int
	seed      uint64
	chunk     int
}

// Parse command line arguments
func parseArgs() (a cmdOpt, err error) {
	flag.Usage = func() {
		m.PrintA(`
[Usage]
	%s [Options]

[Options]
`, filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
	def := m.NewSimulationConfig()
	flag.StringVar(&a.cfgFn, "c", "", "Config file (.json, .yaml or .yml). Omitted fields keep their default values.")
	flag.IntVar(&a.nNodes, "n", def.NNodes, "Number of nodes. Overrides the config file.")
	flag.IntVar(&a.nEpochs, "e", def.NEpochs, "Number of epochs. Overrides the config file.")
	flag.Uint64Var(&a.seed, "seed", def.Seed, "Seed of the random source. Overrides the config file.")
	flag.IntVar(&a.chunk, "chunk", 10, "Epochs run between progress reports")
	flag.StringVar(&a.outFn, "o", "", "Output snapshot JSON path. If not specified, output to stdout.")
	flag.StringVar(&a.dbFn, "db", "", "SQLite database path to save the run into")
	flag.StringVar(&a.pngFn, "png", "", "PNG path of the RMS error chart")
	flag.StringVar(&a.htmlFn, "html", "", "HTML path of the interactive RMS error chart")
	flag.StringVar(&a.metricsFn, "metrics", "", "Prometheus textfile path of the run metrics")
	var dbg int
	flag.IntVar(&dbg, "x", 0, "Debug information display. Specify level value. 0(OFF), 1(display), 2(detailed display), 3(more detailed), 4(matrices)")
	flag.Parse()
	if flag.NArg() > 0 {
		return a, fmt.Errorf("unexpected arguments: %v", flag.Args())
	}
	if a.chunk < 1 {
		return a, fmt.Errorf("chunk must be at least 1, got %d", a.chunk)
	}
	m.DBG_ = dbg
	return
}
