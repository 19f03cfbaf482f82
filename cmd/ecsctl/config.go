package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ecsdb/ecsdb/internal/engine"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration file management",
}

var configInitOut string

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter TOML config file populated with default values",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := engine.WriteDefaultConfig(configInitOut, engine.DefaultConfig()); err != nil {
			return fmt.Errorf("write config: %w", err)
		}
		fmt.Printf("wrote %s\n", configInitOut)
		return nil
	},
}

func init() {
	configInitCmd.Flags().StringVar(&configInitOut, "out", "ecsdb.toml", "Output path for the generated config file")
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
}
