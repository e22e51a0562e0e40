package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pdiddy/rewards-engine/internal/scheduler"
	"github.com/pdiddy/rewards-engine/internal/store"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Rehearse a full session against a simulated account",
	Long: `Simulate drives the complete session loop (pool top-up, prioritized
queue, submission, verification, pacing, persistence) against an
in-memory account and an offline term source. Pacing durations are
compressed so a full quota clears in seconds. State is written under
the data directory exactly as in a real run; point --data-dir at a
scratch directory to keep rehearsals separate.`,
	RunE: runSimulate,
}

func init() {
	simulateCmd.Flags().Int("desktop", 20, "remaining desktop searches")
	simulateCmd.Flags().Int("mobile", 10, "remaining mobile searches")
	simulateCmd.Flags().Float64("failure-rate", 0.1, "share of submissions rejected without points")
	simulateCmd.Flags().Int("points", 5, "points awarded per accepted search")
	simulateCmd.Flags().Int64("seed", 0, "seed for the simulated account (0 = from clock)")

	rootCmd.AddCommand(simulateCmd)
}

func runSimulate(cmd *cobra.Command, args []string) error {
	desktop, _ := cmd.Flags().GetInt("desktop")
	mobile, _ := cmd.Flags().GetInt("mobile")
	failureRate, _ := cmd.Flags().GetFloat64("failure-rate")
	points, _ := cmd.Flags().GetInt("points")
	seed, _ := cmd.Flags().GetInt64("seed")

	cfg := engineConfig()

	// Compress every pacing knob so a rehearsal finishes in seconds
	// rather than hours.
	cfg.Search.BaseDelay = 50 * time.Millisecond
	cfg.Search.CycleGapMin = 10 * time.Millisecond
	cfg.Search.CycleGapMax = 30 * time.Millisecond
	cfg.Pacing.BurstWindow = 150 * time.Second
	cfg.Pacing.PauseBase = 200 * time.Millisecond
	cfg.Pacing.UnproductiveLimit = 500 * time.Millisecond
	scheduler.MinBackoff = 10 * time.Millisecond
	scheduler.BackoffJitter = 20 * time.Millisecond
	scheduler.PauseJitterStep = time.Millisecond

	st, err := store.Open(cfg.Store)
	if err != nil {
		return err
	}
	defer st.Close()

	browser := scheduler.NewSimulator(scheduler.SimulatorConfig{
		Desktop:   desktop,
		Mobile:    mobile,
		PointsPer: points,
		FailRate:  failureRate,
		Seed:      seed,
	})
	exec := scheduler.NewExecutor(browser, scheduler.NewSimulatedTerms(), st, cfg, os.Stdout)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	_, err = scheduler.NewSession(exec).Run(ctx)
	if errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, "interrupted; state saved for resume")
		return nil
	}
	return err
}
