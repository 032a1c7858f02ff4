package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/axiograph/axiograph/internal/axql"
	"github.com/axiograph/axiograph/internal/certs"
	"github.com/axiograph/axiograph/internal/checkeddb"
	"github.com/axiograph/axiograph/internal/elaborate"
	"github.com/axiograph/axiograph/internal/executor"
	"github.com/axiograph/axiograph/internal/planner"
)

var querySnapshotID string
var queryLimit int
var queryCertify bool

var queryCmd = &cobra.Command{
	Use:   "query <axql-text>",
	Short: "Run an AxQL query against a PathDB snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		db, err := s.Build(querySnapshotID, false)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		env, err := checkeddb.NewTypingEnv(db)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}

		q, err := axql.Parse(args[0])
		if err != nil {
			return fmt.Errorf("query: parse: %w", err)
		}
		el, err := elaborate.Elaborate(q, env.Index)
		if err != nil {
			return fmt.Errorf("query: elaborate: %w", err)
		}
		plan, err := planner.Build(db, env.Index, el)
		if err != nil {
			return fmt.Errorf("query: plan: %w", err)
		}
		res, err := executor.Run(db, plan, el.Query, queryLimit, nil)
		if err != nil {
			return fmt.Errorf("query: execute: %w", err)
		}

		if queryCertify {
			canonical, err := s.CanonicalText(querySnapshotID)
			if err != nil {
				return fmt.Errorf("query: %w", err)
			}
			cert, err := certs.QueryResultV3Cert(canonical, res, el)
			if err != nil {
				return fmt.Errorf("query: certify: %w", err)
			}
			return printJSON(cert)
		}

		rows := make([]certs.RowJSON, 0, len(res.Rows))
		for _, row := range res.Rows {
			rows = append(rows, certs.ToRowJSON(row))
		}
		return printJSON(struct {
			Rows      []certs.RowJSON `json:"rows"`
			Truncated bool            `json:"truncated"`
		}{Rows: rows, Truncated: res.Truncated})
	},
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	queryCmd.Flags().StringVar(&querySnapshotID, "snapshot", "head", "PathDB snapshot id to query (\"head\" for the latest commit)")
	queryCmd.Flags().IntVar(&queryLimit, "limit", 0, "maximum rows to return (0 means unbounded)")
	queryCmd.Flags().BoolVar(&queryCertify, "certify", false, "print a query_result_v3 certificate instead of raw rows")
	rootCmd.AddCommand(queryCmd)
}
