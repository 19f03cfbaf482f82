package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ecsdb/ecsdb/internal/engine"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print prepared-statement cache and hook dispatcher counters",
	Long: `stats opens its own engine from the config, prints that engine's counters,
and exits. The prepared-statement cache and hook dispatcher counters live in
process memory, so the numbers are those of the engine stats itself just
opened; it does not attach to another process's in-memory state.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := engine.LoadConfig(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		eng, err := engine.Open(rootCtx, cfg)
		if err != nil {
			return fmt.Errorf("open engine: %w", err)
		}
		defer eng.Close()

		s := eng.Stats()
		fmt.Printf("prepared statement cache: size=%d hits=%d misses=%d evictions=%d\n",
			s.PreparedCache.Len, s.PreparedCache.Hits, s.PreparedCache.Misses, s.PreparedCache.Evictions)
		for kind, hs := range s.Hooks {
			fmt.Printf("hook %-20s invocations=%-6d failures=%-6d timeouts=%d\n",
				kind, hs.Invocations, hs.Failures, hs.Timeouts)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
