package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/axiograph/axiograph/internal/snapshotstore"
)

var syncUpdateHeads bool

var syncCmd = &cobra.Command{
	Use:   "sync <from-dir> <to-dir>",
	Short: "Copy missing content-addressed objects from one snapshot store to another",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		from, err := snapshotstore.Open(args[0])
		if err != nil {
			return fmt.Errorf("sync: %w", err)
		}
		to, err := snapshotstore.Open(args[1])
		if err != nil {
			return fmt.Errorf("sync: %w", err)
		}
		if err := snapshotstore.Sync(context.Background(), from, to, syncUpdateHeads); err != nil {
			return fmt.Errorf("sync: %w", err)
		}
		return nil
	},
}

func init() {
	syncCmd.Flags().BoolVar(&syncUpdateHeads, "update-heads", true, "advance the destination's HEAD pointers to match the source")
	rootCmd.AddCommand(syncCmd)
}
