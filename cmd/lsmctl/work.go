package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tidalstore/lsmtree/lsm"
)

var (
	workNMerge int
	workNKB    int
)

var workCmd = &cobra.Command{
	Use:   "work PATH",
	Short: "Run one merge pass over the oldest segments",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := openOpts()
		if err != nil {
			return err
		}
		db, err := lsm.Open(args[0], opts...)
		if err != nil {
			return fmt.Errorf("open: %w", err)
		}
		defer db.Close()

		n, err := db.Work(workNMerge, workNKB)
		if err != nil {
			return fmt.Errorf("work: %w", err)
		}
		fmt.Printf("Merged %d entries\n", n)
		return nil
	},
}

func init() {
	workCmd.Flags().IntVar(&workNMerge, "n-merge", 0, "number of segments to merge (0 = AUTOMERGE threshold)")
	workCmd.Flags().IntVar(&workNKB, "n-kb", 0, "approximate output budget in KiB (0 = unbounded)")
}
