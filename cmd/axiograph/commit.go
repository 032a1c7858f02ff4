package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/axiograph/axiograph/internal/snapshotstore"
)

var commitOpsFile string
var commitMessage string
var commitCheckpoint bool

var commitCmd = &cobra.Command{
	Use:   "commit <accepted-snapshot-id>",
	Short: "Build a PathDB snapshot from an accepted module, applying overlay ops",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var ops []snapshotstore.OverlayOp
		if commitOpsFile != "" {
			data, err := os.ReadFile(commitOpsFile)
			if err != nil {
				return fmt.Errorf("commit: read %s: %w", commitOpsFile, err)
			}
			if err := json.Unmarshal(data, &ops); err != nil {
				return fmt.Errorf("commit: parse %s: %w", commitOpsFile, err)
			}
		}

		s, err := openStore()
		if err != nil {
			return fmt.Errorf("commit: %w", err)
		}
		id, db, err := s.Commit(args[0], ops, commitMessage)
		if err != nil {
			return fmt.Errorf("commit: %w", err)
		}
		if commitCheckpoint {
			if err := s.Checkpoint(id, db); err != nil {
				return fmt.Errorf("commit: checkpoint: %w", err)
			}
		}
		fmt.Println(id)
		return nil
	},
}

func init() {
	commitCmd.Flags().StringVar(&commitOpsFile, "ops", "", "path to a JSON file of overlay ops to apply")
	commitCmd.Flags().StringVar(&commitMessage, "message", "", "commit message recorded in the WAL manifest")
	commitCmd.Flags().BoolVar(&commitCheckpoint, "checkpoint", false, "also write a .axpd checkpoint for the new PathDB snapshot")
	rootCmd.AddCommand(commitCmd)
}
