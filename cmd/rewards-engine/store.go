package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/rewards-engine/internal/store"
)

var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Inspect and maintain the scheduler's persistent records",
	Long: `Store inspects the records a run leaves behind: the per-term variant
blacklist, the root-term cooldown list, the daily success counter, and
the size of the term pool.`,
}

// storeSnapshot is the printable view of the persistent records.
type storeSnapshot struct {
	SuccessfulSearches int                             `json:"successful_searches" yaml:"successful_searches"`
	PoolSize           int                             `json:"pool_size" yaml:"pool_size"`
	Blacklist          map[string]map[string]time.Time `json:"blacklist" yaml:"blacklist"`
	Cooldowns          map[string]time.Time            `json:"cooldowns" yaml:"cooldowns"`
}

// --- show subcommand ---

var storeShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print a snapshot of the persistent records",
	RunE:  runStoreShow,
}

func runStoreShow(cmd *cobra.Command, args []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	cfg := engineConfig()
	st, err := store.Open(cfg.Store)
	if err != nil {
		return err
	}
	defer st.Close()

	poolSize, err := st.TermCount()
	if err != nil {
		return err
	}
	snap := storeSnapshot{
		SuccessfulSearches: st.Counter(),
		PoolSize:           poolSize,
		Blacklist:          st.BlacklistEntries(),
		Cooldowns:          st.Cooldowns(),
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	}
	data, err := yaml.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	_, err = os.Stdout.Write(data)
	return err
}

// --- sweep subcommand ---

var storeSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Prune expired blacklist and cooldown entries",
	RunE:  runStoreSweep,
}

func runStoreSweep(cmd *cobra.Command, args []string) error {
	cfg := engineConfig()
	st, err := store.Open(cfg.Store)
	if err != nil {
		return err
	}
	defer st.Close()

	removed, err := st.SweepExpired()
	if err != nil {
		return err
	}
	fmt.Printf("%d expired records removed\n", removed)
	return nil
}

func init() {
	storeShowCmd.Flags().Bool("json", false, "output the snapshot as JSON")

	storeCmd.AddCommand(storeShowCmd)
	storeCmd.AddCommand(storeSweepCmd)

	rootCmd.AddCommand(storeCmd)
}
