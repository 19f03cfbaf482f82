package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ecsdb/ecsdb/internal/engine"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Schema bootstrap and inspection",
}

var schemaBootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "Create base tables and, under hash partitioning, the fixed component partitions",
	Long: `bootstrap runs the same idempotent DDL Open runs automatically at startup
(every statement is CREATE ... IF NOT EXISTS), so it's safe to run against an
already-bootstrapped database to confirm it's up to date.`,
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

		if err := eng.Bootstrap(rootCtx); err != nil {
			return fmt.Errorf("bootstrap: %w", err)
		}
		fmt.Println("schema bootstrap complete")
		return nil
	},
}

var schemaListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every registered component type with its type-ID and partition table",
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

		names := eng.Registry().Names()
		if len(names) == 0 {
			fmt.Println("no component types registered")
			return nil
		}
		for _, name := range names {
			d, ok := eng.Registry().Describe(name)
			if !ok {
				continue
			}
			fmt.Printf("%-24s type_id=%-6d partition=%s\n", d.Name, d.TypeID, d.PartitionTable)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(schemaCmd)
	schemaCmd.AddCommand(schemaBootstrapCmd)
	schemaCmd.AddCommand(schemaListCmd)
}
