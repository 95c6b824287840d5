package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tidalstore/lsmtree/lsm"
)

var infoCmd = &cobra.Command{
	Use:   "info PATH",
	Short: "Display database and log structure",
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

		tree, err := db.Info(lsm.InfoDBStructure, 0)
		if err != nil {
			return fmt.Errorf("db structure: %w", err)
		}
		arr, err := db.Info(lsm.InfoArrayStructure, 0)
		if err != nil {
			return fmt.Errorf("array structure: %w", err)
		}
		log, err := db.Info(lsm.InfoLogStructure, 0)
		if err != nil {
			return fmt.Errorf("log structure: %w", err)
		}
		comp, err := db.Info(lsm.InfoCompressionID, 0)
		if err != nil {
			return fmt.Errorf("compression id: %w", err)
		}

		fmt.Printf("Database: %s\n", args[0])
		fmt.Printf("  Tree height:    %d\n", tree.DBStructure.Height)
		fmt.Printf("  Tree bytes:     %d\n", tree.DBStructure.TotalBytes)
		fmt.Printf("  Tree txid:      %d\n", tree.DBStructure.Txid)
		fmt.Printf("  Levels:         %d\n", arr.ArrayStructure.LevelCount)
		fmt.Printf("  Next segment:   %d\n", arr.ArrayStructure.NextSegID)
		fmt.Printf("  WAL tail:       %d\n", log.LogStructure.Tail)
		fmt.Printf("  WAL low-water:  %d\n", log.LogStructure.LowWater)
		fmt.Printf("  Compression ID: %d\n", comp.CompressionID)

		pages, err := db.Info(lsm.InfoArrayPages, 0)
		if err != nil {
			return fmt.Errorf("array pages: %w", err)
		}
		if len(pages.ArrayPages) > 0 {
			fmt.Println("\nSegments (newest first):")
			for _, p := range pages.ArrayPages {
				fmt.Printf("  #%d level=%d entries=%d min=%q max=%q\n",
					p.SegmentID, p.Level, p.Entries, p.MinKey, p.MaxKey)
			}
		}
		return nil
	},
}
