// Command ecsctl administers an ecsdb database out of band: bootstrapping
// schema, listing registered component types, writing a starter config
// file, and printing the prepared statement cache and hook dispatcher
// counters of the engine it opens. It is deliberately small next to the teacher's cmd/bd: the
// storage engine itself is a library meant to be embedded, and ecsctl only
// covers the operations an embedding application can't do for itself
// without first opening a connection.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	cfgPath string

	rootCtx    context.Context
	rootCancel context.CancelFunc
)

var rootCmd = &cobra.Command{
	Use:   "ecsctl",
	Short: "ecsctl - administration CLI for an ecsdb storage engine",
	Long:  `ecsctl bootstraps schema, manages configuration, and inspects cache and hook statistics for an ecsdb-backed database.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		rootCtx, rootCancel = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if rootCancel != nil {
			rootCancel()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "Path to ecsdb TOML config file (default: built-in defaults + ECSDB_* env vars)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
