package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/axiograph/axiograph/internal/axql"
	"github.com/axiograph/axiograph/internal/certs"
	"github.com/axiograph/axiograph/internal/entitystore"
	"github.com/axiograph/axiograph/internal/planner"
)

var certCmd = &cobra.Command{
	Use:   "cert",
	Short: "Issue certificates against a PathDB snapshot",
}

var reachabilitySnapshotID string
var reachabilityStart uint32
var reachabilityRelations string
var reachabilityMinConfidence float64
var reachabilityMaxHops int
var reachabilityShow bool

var certReachabilityCmd = &cobra.Command{
	Use:   "reachability",
	Short: "Certify the set of entities reachable from a start node",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return fmt.Errorf("cert reachability: %w", err)
		}
		db, err := s.Build(reachabilitySnapshotID, false)
		if err != nil {
			return fmt.Errorf("cert reachability: %w", err)
		}

		relIDs := strings.Split(reachabilityRelations, ",")
		if len(relIDs) == 0 || relIDs[0] == "" {
			return fmt.Errorf("cert reachability: --relations must be non-empty")
		}
		path := &axql.PathExpr{Kind: axql.PathRel, Rel: relIDs[0]}
		for _, rel := range relIDs[1:] {
			path = &axql.PathExpr{
				Kind:     axql.PathConcat,
				Children: []*axql.PathExpr{path, {Kind: axql.PathRel, Rel: rel}},
			}
		}
		dfa := planner.CompileRPQ(path)
		reached := dfa.Reachable(db, entitystore.ID(reachabilityStart), reachabilityMinConfidence, reachabilityMaxHops, nil)

		snapshotID := reachabilitySnapshotID
		if snapshotID == "head" || snapshotID == "" {
			head, err := s.WALHead()
			if err != nil {
				return fmt.Errorf("cert reachability: %w", err)
			}
			snapshotID = head
		}
		cert, err := certs.ReachabilityCert(snapshotID, reachabilityStart, dfa, reached.ToSlice())
		if err != nil {
			return fmt.Errorf("cert reachability: %w", err)
		}

		if reachabilityShow {
			return showCert(cert)
		}
		return printJSON(cert)
	},
}

// showCert renders an envelope with lipgloss for a terminal reader,
// instead of raw JSON.
func showCert(env *certs.Envelope) error {
	body, err := json.MarshalIndent(env.Payload, "", "  ")
	if err != nil {
		return fmt.Errorf("cert show: %w", err)
	}
	title := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205")).Render(env.Kind)
	anchor := lipgloss.NewStyle().Faint(true).Render("anchor: " + env.Anchor.AxiDigestV1)
	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		Padding(0, 1).
		Render(title + "\n" + anchor + "\n\n" + string(body))
	fmt.Fprintln(os.Stdout, box)
	return nil
}

func init() {
	certReachabilityCmd.Flags().StringVar(&reachabilitySnapshotID, "snapshot", "head", "PathDB snapshot id (\"head\" for the latest commit)")
	certReachabilityCmd.Flags().Uint32Var(&reachabilityStart, "start", 0, "starting entity id")
	certReachabilityCmd.Flags().StringVar(&reachabilityRelations, "relations", "", "comma-separated relation ids forming the path chain")
	certReachabilityCmd.Flags().Float64Var(&reachabilityMinConfidence, "min-confidence", 0, "minimum edge confidence to follow")
	certReachabilityCmd.Flags().IntVar(&reachabilityMaxHops, "max-hops", -1, "maximum hop count (-1 for unbounded)")
	certReachabilityCmd.Flags().BoolVar(&reachabilityShow, "show", false, "pretty-print the certificate instead of raw JSON")
	certCmd.AddCommand(certReachabilityCmd)
	rootCmd.AddCommand(certCmd)
}
