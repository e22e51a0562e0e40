// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the rewards-engine CLI.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/rewards-engine/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

// rootCmd is the base command for the rewards-engine CLI.
var rootCmd = &cobra.Command{
	Use:   "rewards-engine",
	Short: "Term scheduling engine for rewards search automation",
	Long: `rewards-engine plans and paces the daily search workload of a rewards
account. It discovers trending search terms, prioritizes them for
diversity, and drives query submission with humanlike pacing while a
browser collaborator performs the actual page work.

Each concern is a subcommand: terms manages the discovery pool and the
prioritized queue, store inspects the persistent records, simulate
rehearses a full session offline, and config bootstraps a config file.`,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./rewards-engine.yaml or ~/.config/rewards-engine/config.yaml)")
	rootCmd.PersistentFlags().String("data-dir", "", "base directory for scheduler state (default: data)")
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("rewards-engine")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "rewards-engine"))
		}
	}

	viper.SetEnvPrefix("REWARDS_ENGINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// engineConfig assembles the engine configuration from viper. Unset keys
// stay zero; each component applies its own defaults.
func engineConfig() types.EngineConfig {
	cfg := types.EngineConfig{
		Discovery: types.DiscoveryConfig{
			HTTPConfig: types.HTTPConfig{
				Timeout:   viper.GetDuration("discovery.timeout"),
				UserAgent: viper.GetString("discovery.user_agent"),
			},
			TrendsURL:            viper.GetString("discovery.trends_url"),
			SuggestURL:           viper.GetString("discovery.suggest_url"),
			Geo:                  viper.GetString("discovery.geo"),
			MaxRetries:           viper.GetInt("discovery.max_retries"),
			SuggestionsPerSecond: viper.GetFloat64("discovery.suggestions_per_second"),
		},
		Store: types.StoreConfig{
			DataDir:       viper.GetString("store.data_dir"),
			SaveThreshold: viper.GetInt("store.save_threshold"),
			BlacklistTTL:  viper.GetDuration("store.blacklist_ttl"),
			CooldownTTL:   viper.GetDuration("store.cooldown_ttl"),
		},
		Queue: types.QueueConfig{
			SimilarityThreshold: viper.GetFloat64("queue.similarity_threshold"),
			MinSize:             viper.GetInt("queue.min_size"),
		},
		Search: types.SearchConfig{
			MaxRetries:  viper.GetInt("search.max_retries"),
			BaseDelay:   viper.GetDuration("search.base_delay"),
			Strategy:    types.RetryStrategy(viper.GetString("search.strategy")),
			FetchMargin: viper.GetInt("search.fetch_margin"),
			CycleGapMin: viper.GetDuration("search.cycle_gap_min"),
			CycleGapMax: viper.GetDuration("search.cycle_gap_max"),
		},
		Pacing: types.PacingConfig{
			BurstThreshold:    viper.GetInt("pacing.burst_threshold"),
			BurstWindow:       viper.GetDuration("pacing.burst_window"),
			PauseBase:         viper.GetDuration("pacing.pause_base"),
			UnproductiveLimit: viper.GetDuration("pacing.unproductive_limit"),
		},
	}

	if dir, _ := rootCmd.PersistentFlags().GetString("data-dir"); dir != "" {
		cfg.Store.DataDir = dir
	}
	return cfg
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
