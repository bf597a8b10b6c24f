package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/inhies/go-bytesize"

	"github.com/regia-io/regia/internal/config"
	"github.com/regia-io/regia/internal/logging"
	"github.com/regia-io/regia/internal/metrics"
	"github.com/regia-io/regia/internal/snapshot"
)

func runPause(args []string) {
	fs := flag.NewFlagSet("pause", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	pauses := fs.Int("pauses", 1, "Number of collection pauses to simulate")
	seed := fs.Int64("seed", 1, "Random seed for the simulated pauses")
	metricsAddr := fs.String("metrics", "", "Override metrics endpoint address (e.g., :9090); empty disables the endpoint")
	snapshotPath := fs.String("snapshot", "", "Write a heap snapshot here after the last pause")
	verbose := fs.Bool("verbose", false, "Print per-phase timings after every pause")

	fs.Usage = func() {
		fmt.Println(`Usage: regia pause [options]

Simulate collection pauses and run the post-evacuation cleanup pipeline.

Options:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.LoadFromPath(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if *metricsAddr != "" {
		cfg.Observability.MetricsAddr = *metricsAddr
	}
	if *snapshotPath != "" {
		cfg.Snapshot.Enabled = true
		cfg.Snapshot.Path = *snapshotPath
	}

	logger := logging.New(logging.Config{
		Level:  logging.ParseLevel(cfg.Observability.LogLevel),
		Format: logging.ParseFormat(cfg.Observability.LogFormat),
	})
	logging.SetGlobal(logger)

	pm := metrics.NewPauseMetrics()
	if *metricsAddr != "" {
		srv := metrics.NewServer(cfg.Observability.MetricsAddr)
		if err := srv.Start(); err != nil {
			logger.Errorf("failed to start metrics server", map[string]any{"error": err.Error()})
			os.Exit(1)
		}
		defer srv.Close()
		logger.Infof("metrics endpoint up", map[string]any{"addr": srv.Addr()})
	}

	sim := newSimulation(cfg, *seed, pm)
	defer sim.Close()

	logger.Infof("starting pause simulation", map[string]any{
		"pauses":      *pauses,
		"seed":        *seed,
		"regions":     cfg.Heap.NumRegions,
		"regionBytes": cfg.Heap.RegionBytes,
		"workers":     sim.pool.NumWorkers(),
	})

	var res *pauseResult
	for i := 0; i < *pauses; i++ {
		res = sim.RunPause()
		logger.WithPauseID(res.PauseID).Infof("pause complete", map[string]any{
			"pause":        i + 1,
			"regionsFreed": res.RegionsFreed,
			"evacFailed":   res.EvacFailed,
			"usedBefore":   bytesize.New(float64(res.UsedBefore)).String(),
			"usedAfter":    bytesize.New(float64(res.UsedAfter)).String(),
			"cardsLogged":  res.CardsLogged,
		})
		if *verbose {
			fmt.Print(phaseTable(res.Recorder))
		}
	}

	if cfg.Snapshot.Enabled && res != nil {
		snap := snapshot.Capture(sim.hm, res.PauseID)
		if err := snapshot.WriteFile(cfg.Snapshot.Path, snap); err != nil {
			logger.Errorf("failed to write snapshot", map[string]any{
				"path":  cfg.Snapshot.Path,
				"error": err.Error(),
			})
			os.Exit(1)
		}
		logger.Infof("snapshot written", map[string]any{
			"path":    cfg.Snapshot.Path,
			"regions": len(snap.Regions),
		})
	}
}
