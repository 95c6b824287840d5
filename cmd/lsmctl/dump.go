package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tidalstore/lsmtree/lsm"
)

var dumpPage uint64
var dumpHex bool

var dumpCmd = &cobra.Command{
	Use:   "dump PATH",
	Short: "Dump every live key/value pair, or one raw page with --page",
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

		if cmd.Flags().Changed("page") {
			opt := lsm.InfoPageASCIIDump
			if dumpHex {
				opt = lsm.InfoPageHexDump
			}
			res, err := db.Info(opt, dumpPage)
			if err != nil {
				return fmt.Errorf("page dump: %w", err)
			}
			fmt.Println(res.PageDump)
			return nil
		}

		cur, err := db.OpenCursor()
		if err != nil {
			return fmt.Errorf("open cursor: %w", err)
		}
		defer cur.Close()

		n := 0
		for ok := cur.First(); ok; ok = cur.Next() {
			fmt.Printf("%q => %q\n", cur.Key(), cur.Value())
			n++
		}
		fmt.Printf("\n%d entries\n", n)
		return nil
	},
}

func init() {
	dumpCmd.Flags().Uint64Var(&dumpPage, "page", 0, "dump this page number instead of all entries")
	dumpCmd.Flags().BoolVar(&dumpHex, "hex", false, "dump the page in hex instead of ASCII")
}
