package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/flowshift/arbengine/pkg/config"
	"github.com/flowshift/arbengine/pkg/logger"
)

// startCmd runs the engine until signaled, spec §6: "start".
//
// Grounded on cmd/ai-arbitrage-service/main.go's signal-handling and
// graceful-shutdown-with-timeout-then-force pattern.
var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Run the arbitrage engine until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		os.Exit(runStart())
		return nil
	},
}

func runStart() int {
	e, err := buildEngine(loadedCfg, log)
	if err != nil {
		log.Error("failed to start engine", logger.Err(err))
		return 1
	}
	e.adminSocketPath = adminSocketPath()

	go func() {
		if err := config.WatchKillSwitch(cfgFile, func(killSwitch, simulationMode bool) {
			e.risk.SetKillSwitch(killSwitch)
			e.cfg.SimulationMode = simulationMode
			e.orch.SetSimulationMode(simulationMode)
			log.Info("config hot-reload applied", logger.String("killSwitch", fmt.Sprintf("%t", killSwitch)), logger.String("simulationMode", fmt.Sprintf("%t", simulationMode)))
		}); err != nil {
			log.Warn("config watch disabled", logger.Err(err))
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = e.run(ctx)
	}()

	select {
	case s := <-sig:
		log.Info("received signal, shutting down", logger.String("signal", s.String()))
	case <-ctx.Done():
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	select {
	case <-done:
		log.Info("engine stopped cleanly")
		return 0
	case <-shutdownCtx.Done():
		log.Error("graceful shutdown timed out, forcing exit")
		return 2
	}
}
