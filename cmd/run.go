// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/emcore/pkg/config"
	"github.com/Thermoquad/emcore/pkg/emtypes"
	"github.com/Thermoquad/emcore/pkg/platform"
	"github.com/Thermoquad/emcore/pkg/runtime"
	"github.com/Thermoquad/emcore/pkg/scheduler"
)

var (
	runTickMS      int
	runPrintBudget bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Host the emCore runtime (scheduler, broker, watchdog, event bus)",
	Long: `run constructs a Runtime from the default Config, validates it against
the arena budget planner, and drives its cooperative scheduler, watchdog,
and event bus in a tick loop until interrupted.`,
	RunE: runRuntime,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().IntVar(&runTickMS, "tick-ms", 10, "Milliseconds between scheduler ticks")
	runCmd.Flags().BoolVar(&runPrintBudget, "print-budget", false, "Print the arena budget report before running")
}

func runRuntime(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	p := platform.Default()
	log := runtime.NewStdLogger()

	rt, err := runtime.New(cfg, p, log)
	if err != nil {
		return fmt.Errorf("emcored: %w", err)
	}

	if runPrintBudget {
		fmt.Printf("arena: total=%d bytes, budget=%d bytes\n", rt.Layout.TotalBytes, rt.Layout.BudgetBytes)
		for i := 0; i < len(rt.Layout.Sizes); i++ {
			fmt.Printf("  region %d: %d bytes at offset %d\n", i, rt.Layout.Sizes[i], rt.Layout.Offsets[i])
		}
	}

	heartbeatID, code := rt.Scheduler.CreateTask(heartbeatTaskConfig(log))
	if code != emtypes.Success {
		return fmt.Errorf("emcored: create heartbeat task: %v", code)
	}
	rt.Broker.RegisterTask(heartbeatID)
	rt.Watchdog.RegisterTask(heartbeatID, 5000, 0)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	ticker := time.NewTicker(time.Duration(runTickMS) * time.Millisecond)
	defer ticker.Stop()

	log.Infof("emcored: running with %d max tasks, %d max topics", cfg.MaxTasks, cfg.MaxTopics)
	for {
		select {
		case <-sigCh:
			log.Infof("emcored: shutting down")
			return nil
		case <-ticker.C:
			rt.Tick()
		}
	}
}

// heartbeatTaskConfig is a trivial always-ready cooperative task that
// exists so run has at least one scheduled task to drive and feed into the
// watchdog, demonstrating the tick loop without requiring a real workload.
func heartbeatTaskConfig(log runtime.Logger) scheduler.Config {
	return scheduler.Config{
		Name:     "heartbeat",
		Priority: emtypes.PriorityLow,
		Fn:       func(any) { log.Debugf("heartbeat") },
	}
}
