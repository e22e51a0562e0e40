package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the rewards-engine config file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a commented starter config file",
	Long: `Init writes rewards-engine.yaml to the current directory with every
setting present, commented out, and set to its default. An existing
file is never overwritten.`,
	RunE: runConfigInit,
}

const configTemplate = `# rewards-engine configuration.
# Values shown are the defaults; uncomment a line to change it.
# Environment variables override the file, e.g. REWARDS_ENGINE_STORE_DATA_DIR.

discovery:
  # geo: US
  # timeout: 30s
  # user_agent: rewards-engine/0.1
  # max_retries: 4
  # suggestions_per_second: 2

store:
  # data_dir: data
  # save_threshold: 3
  # blacklist_ttl: 30h
  # cooldown_ttl: 24h

queue:
  # similarity_threshold: 0.7
  # min_size: 50

search:
  # max_retries: 4
  # base_delay: 2m
  # strategy: exponential   # or constant
  # fetch_margin: 15
  # cycle_gap_min: 15s
  # cycle_gap_max: 25s

pacing:
  # burst_threshold: 4
  # burst_window: 150s
  # pause_base: 30m
  # unproductive_limit: 3m
`

func runConfigInit(cmd *cobra.Command, args []string) error {
	const path = "rewards-engine.yaml"
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}
	if err := os.WriteFile(path, []byte(configTemplate), 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	fmt.Printf("wrote %s\n", path)
	return nil
}

func init() {
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}
