// Command atrcore runs the real-time control core for one autonomous
// haulage truck. It is grounded on cmd/oriond/main.go: parse flags, build
// a structured logger, construct the service, wire signal handling, run
// until asked to stop, shut down gracefully, exit 0.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joaoigorandrade/ATR/internal/config"
	"github.com/joaoigorandrade/ATR/internal/coordinator"
	"github.com/joaoigorandrade/ATR/internal/obslog"
)

const defaultConfigPath = "config/atrcore.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "path to the YAML configuration file")
	flag.Parse()

	obslog.Init(slog.LevelInfo)
	log := obslog.For("MA")

	cfg, warnings, err := config.Load(*configPath)
	if err != nil {
		log.Warn("", "event", "config_load_fallback", "path", *configPath, "error", err.Error())
	}
	for _, w := range warnings {
		log.Warn("", "event", "config_warning", "detail", w)
	}

	if flag.NArg() > 0 {
		if id, parseErr := strconv.Atoi(flag.Arg(0)); parseErr == nil && id > 0 {
			cfg.TruckID = id
		} else {
			log.Warn("", "event", "truck_id_invalid", "arg", flag.Arg(0))
		}
	}

	log.Info("", "event", "init", "truck_id", cfg.TruckID, "config", *configPath)

	coord, err := coordinator.New(cfg)
	if err != nil {
		log.Error("", "event", "startup_failed", "error", err.Error())
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if err := coord.Start(ctx); err != nil {
		log.Error("", "event", "startup_failed", "error", err.Error())
		os.Exit(1)
	}

	sig := <-sigChan
	log.Info("", "event", "shutdown_signal", "signal", sig.String())
	cancel()

	coord.Stop()
	log.Info("", "event", "exit")
}
