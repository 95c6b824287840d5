// Command lsmctl is a small operator-facing inspection tool over the
// lsm package's public handle API, replacing the teacher's many
// single-purpose cmd/demo_* mains with one structured CLI (see
// SPEC_FULL.md §4.11).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tidalstore/lsmtree/lsm"
	"github.com/tidalstore/lsmtree/server/conf"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var configPath string

var rootCmd = &cobra.Command{
	Use:   "lsmctl",
	Short: "lsmctl inspects and drives an lsmtree database file",
	Long: `lsmctl is an operator tool for the embedded LSM-tree storage
engine: inspect a database's structure, force a checkpoint or a merge
pass, and dump raw pages, all without writing a throwaway Go program.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "ini file of [lsmtree] Open options (see server/conf)")
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(checkpointCmd)
	rootCmd.AddCommand(workCmd)
	rootCmd.AddCommand(dumpCmd)
}

// openOpts returns the Open options implied by --config, or none if it
// was not given.
func openOpts() ([]lsm.Option, error) {
	if configPath == "" {
		return nil, nil
	}
	c, err := conf.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return lsm.OptionsFromConf(c), nil
}
