package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tidalstore/lsmtree/lsm"
)

var checkpointCmd = &cobra.Command{
	Use:   "checkpoint PATH",
	Short: "Force a checkpoint, flushing the live tree first",
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

		nKB, err := db.Checkpoint()
		if err != nil {
			return fmt.Errorf("checkpoint: %w", err)
		}
		fmt.Printf("Checkpoint written: %d KiB\n", nKB)
		return nil
	},
}
