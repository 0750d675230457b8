// query-bench runs the fixed query suite against every configured backend,
// prints the per-query timings and writes them to a JSON report.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/marketbench/marketbench/internal/backend"
	"github.com/marketbench/marketbench/internal/bench"
	"github.com/marketbench/marketbench/internal/config"
	"github.com/marketbench/marketbench/internal/logging"
)

func main() {
	var (
		configPath = flag.String("config", "config.yaml", "Path to the config file")
		outPath    = flag.String("out", "", "Override the JSON report path")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}
	if *outPath != "" {
		cfg.Report.Path = *outPath
	}
	log := logging.New(cfg.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backends, err := backend.OpenAll(ctx, cfg.Backends)
	if err != nil {
		log.Fatalf("Failed to connect backends: %v", err)
	}
	defer func() {
		for _, b := range backends {
			b.Close()
		}
	}()

	report := bench.Run(ctx, backends, log)
	bench.Print(os.Stdout, report)

	if err := bench.WriteFile(cfg.Report.Path, report); err != nil {
		log.Fatalf("Failed to write report: %v", err)
	}
	log.WithField("path", cfg.Report.Path).Info("report written")
}
