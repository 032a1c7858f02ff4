package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var promoteCmd = &cobra.Command{
	Use:   "promote <file.axi>",
	Short: "Parse, typecheck, and accept a canonical module",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("promote: read %s: %w", args[0], err)
		}
		s, err := openStore()
		if err != nil {
			return fmt.Errorf("promote: %w", err)
		}
		id, err := s.Promote(string(text))
		if err != nil {
			return fmt.Errorf("promote: %w", err)
		}
		fmt.Println(id)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(promoteCmd)
}
