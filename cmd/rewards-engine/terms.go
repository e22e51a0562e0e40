// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/rewards-engine/internal/discovery"
	"github.com/pdiddy/rewards-engine/internal/prioritize"
	"github.com/pdiddy/rewards-engine/internal/store"
)

var termsCmd = &cobra.Command{
	Use:   "terms",
	Short: "Manage the trending-term pool and prioritized queue",
	Long: `Terms manages the scheduler's supply of search terms: fetching trending
searches into the persistent pool, expanding a term into its query
variants, and previewing the prioritized queue a run would work through.`,
}

// --- fetch subcommand ---

var termsFetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch trending terms into the pool",
	Long: `Fetch requests the current trending searches for a geography and stores
the new ones in the term pool. Terms already pooled are skipped.`,
	RunE: runTermsFetch,
}

func runTermsFetch(cmd *cobra.Command, args []string) error {
	count, _ := cmd.Flags().GetInt("count")
	geo, _ := cmd.Flags().GetString("geo")

	cfg := engineConfig()
	client := discovery.New(cfg.Discovery)

	terms, err := client.TrendingTerms(context.Background(), count, geo)
	if err != nil {
		return fmt.Errorf("fetching trends: %w", err)
	}

	st, err := store.Open(cfg.Store)
	if err != nil {
		return err
	}
	defer st.Close()

	added, err := st.AddTerms(terms...)
	if err != nil {
		return err
	}
	total, err := st.TermCount()
	if err != nil {
		return err
	}
	fmt.Printf("%d trending terms fetched, %d new (pool: %d)\n", len(terms), added, total)
	return nil
}

// --- expand subcommand ---

var termsExpandCmd = &cobra.Command{
	Use:   "expand [term]",
	Short: "Preview the query variants for a term",
	Long: `Expand looks up suggestion-based query variants for a term, the same
expansion a run performs before submitting. When the lookup fails the
term itself is the only variant, matching run behavior.`,
	RunE: runTermsExpand,
}

func runTermsExpand(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("provide a term to expand")
	}
	term := strings.Join(args, " ")

	cfg := engineConfig()
	client := discovery.New(cfg.Discovery)

	variants, err := client.Variants(context.Background(), term)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: suggestion lookup failed: %v\n", err)
	}
	for _, v := range variants {
		fmt.Println(v)
	}
	return nil
}

// --- list subcommand ---

var termsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the pooled terms in insertion order",
	RunE:  runTermsList,
}

func runTermsList(cmd *cobra.Command, args []string) error {
	cfg := engineConfig()
	st, err := store.Open(cfg.Store)
	if err != nil {
		return err
	}
	defer st.Close()

	terms, err := st.Terms()
	if err != nil {
		return err
	}
	for _, term := range terms {
		fmt.Println(term)
	}
	fmt.Printf("\n%d terms in pool\n", len(terms))
	return nil
}

// --- queue subcommand ---

var termsQueueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Preview the prioritized queue for today",
	Long: `Queue builds the prioritized queue from the current pool and cooldown
records the way a run would: near-duplicate terms clustered with one
diverse representative each, cooling-down terms excluded and then
backfilled up to the size floor. Use --out to export it for analysis.`,
	RunE: runTermsQueue,
}

func runTermsQueue(cmd *cobra.Command, args []string) error {
	outFile, _ := cmd.Flags().GetString("out")
	asYAML, _ := cmd.Flags().GetBool("yaml")

	cfg := engineConfig()
	st, err := store.Open(cfg.Store)
	if err != nil {
		return err
	}
	defer st.Close()

	pool, err := st.Terms()
	if err != nil {
		return err
	}
	queue := prioritize.BuildQueue(pool, st.Cooldowns(), cfg.Queue, time.Now())

	if asYAML || outFile != "" {
		data, err := yaml.Marshal(queue)
		if err != nil {
			return fmt.Errorf("encoding queue: %w", err)
		}
		if outFile == "" {
			_, err := os.Stdout.Write(data)
			return err
		}
		if err := os.WriteFile(outFile, data, 0o644); err != nil {
			return fmt.Errorf("writing queue export: %w", err)
		}
		fmt.Printf("queue exported to %s\n", outFile)
		return nil
	}

	for i, term := range queue {
		fmt.Printf("%-4d  %s\n", i+1, term)
	}
	fmt.Printf("\n%d of %d pool terms queued\n", len(queue), len(pool))
	return nil
}

// --- clear subcommand ---

var termsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Empty the term pool",
	RunE:  runTermsClear,
}

func runTermsClear(cmd *cobra.Command, args []string) error {
	cfg := engineConfig()
	st, err := store.Open(cfg.Store)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.ClearTerms(); err != nil {
		return err
	}
	fmt.Println("term pool cleared")
	return nil
}

func init() {
	termsFetchCmd.Flags().Int("count", 20, "number of trending terms to request")
	termsFetchCmd.Flags().String("geo", "", "two-letter geography code (default from config)")

	termsQueueCmd.Flags().String("out", "", "write the queue to a file instead of stdout")
	termsQueueCmd.Flags().Bool("yaml", false, "output the queue as YAML")

	termsCmd.AddCommand(termsFetchCmd)
	termsCmd.AddCommand(termsExpandCmd)
	termsCmd.AddCommand(termsListCmd)
	termsCmd.AddCommand(termsQueueCmd)
	termsCmd.AddCommand(termsClearCmd)

	rootCmd.AddCommand(termsCmd)
}
