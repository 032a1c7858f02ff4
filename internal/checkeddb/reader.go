package checkeddb

import (
	"fmt"
	"strings"

	"github.com/axiograph/axiograph/internal/entitystore"
	"github.com/axiograph/axiograph/internal/metaplane"
	"github.com/axiograph/axiograph/internal/pathdb"
	"github.com/axiograph/axiograph/internal/relstore"
)

// TypingEnv is the read wrapper's output: a PathDB plus meta-plane index
// that has already passed every invariant check in §4.G. Only a validated
// TypingEnv may be handed to the elaborator/planner/executor.
type TypingEnv struct {
	DB    *pathdb.DB
	Index *metaplane.Index
}

// NewTypingEnv runs axi-fact typecheck, rewrite-rule typecheck, context
// invariants, and modal invariants in order, failing closed on the first
// violation category found (§4.G, §7 propagation policy).
func NewTypingEnv(db *pathdb.DB) (*TypingEnv, error) {
	idx, err := metaplane.Build(db)
	if err != nil {
		return nil, fmt.Errorf("checkeddb: build meta-plane index: %w", err)
	}

	report, err := metaplane.TypecheckAxiFacts(db, idx)
	if err != nil {
		return nil, fmt.Errorf("checkeddb: typecheck: %w", err)
	}
	if !report.OK() {
		return nil, invariantf("typecheck", "%d field typing error(s), first: %s", len(report.Errors), report.Errors[0])
	}

	if err := typecheckRewriteRules(idx); err != nil {
		return nil, err
	}
	if err := metaplane.ContextInvariant(db, idx); err != nil {
		return nil, fmt.Errorf("checkeddb: context invariant: %w", err)
	}
	if err := modalInvariants(db); err != nil {
		return nil, fmt.Errorf("checkeddb: modal invariant: %w", err)
	}

	return &TypingEnv{DB: db, Index: idx}, nil
}

// typecheckRewriteRules checks every rewrite rule: path variables'
// endpoints must be declared object variables, lhs and rhs must both be
// non-empty, and lhs/rhs must name the same (start, end) variable pair.
// lhs/rhs are not parsed beyond that endpoint extraction, and the
// endpoints are compared by variable name, not by signature type.
func typecheckRewriteRules(idx *metaplane.Index) error {
	for _, si := range idx.Schemas {
		for theory, rules := range si.RewriteRulesByTheory {
			for _, rule := range rules {
				objVars := map[string]bool{}
				pathVars := map[string][2]string{}
				for _, v := range rule.Vars {
					if v.IsPath {
						pathVars[v.Name] = [2]string{v.From, v.To}
					} else {
						objVars[v.Name] = true
					}
				}
				for pname, ends := range pathVars {
					if !objVars[ends[0]] || !objVars[ends[1]] {
						return invariantf("rewrite_rule", fmt.Sprintf("theory %s rule %s: path var %s endpoints not declared among object vars", theory, rule.Name, pname))
					}
				}
				if rule.LHS == "" || rule.RHS == "" {
					return invariantf("rewrite_rule", fmt.Sprintf("theory %s rule %s: lhs/rhs must both be present", theory, rule.Name))
				}
				lEnds, rEnds := pathEndpointVars(rule.LHS), pathEndpointVars(rule.RHS)
				if lEnds != rEnds {
					return invariantf("rewrite_rule", fmt.Sprintf("theory %s rule %s: lhs/rhs endpoint pairs differ (%v vs %v)", theory, rule.Name, lEnds, rEnds))
				}
			}
		}
	}
	return nil
}

// pathEndpointVars extracts the (start, end) variable names from a path
// expression of the form "x-rel/rel2->y", used only to compare that lhs
// and rhs name the same endpoint pair (§3 invariant 5); it does not
// attempt to parse the full RPQ grammar.
func pathEndpointVars(expr string) [2]string {
	expr = strings.TrimSpace(expr)
	arrowIdx := strings.LastIndex(expr, "->")
	if arrowIdx < 0 {
		return [2]string{expr, expr}
	}
	end := strings.TrimSpace(expr[arrowIdx+2:])
	head := expr[:arrowIdx]
	dashIdx := strings.Index(head, "-")
	start := head
	if dashIdx >= 0 {
		start = strings.TrimSpace(head[:dashIdx])
	}
	return [2]string{start, end}
}

// modalInvariants implements §3 invariant 4: has_evidence_chunk must
// target DocChunk entities, and any entity carrying proposal_id must also
// carry a finite proposal_confidence in [0,1] plus at least one evidence
// pointer.
func modalInvariants(db *pathdb.DB) error {
	evidenceEdge, hasEvidenceEdge := db.Interner.IDOf(metaplane.EdgeHasEvidenceChunk)
	docChunkType, hasDocChunkType := db.Interner.IDOf("DocChunk")
	proposalIDKey, hasProposalIDKey := db.Interner.IDOf(metaplane.AttrProposalID)
	proposalConfKey, hasProposalConfKey := db.Interner.IDOf(metaplane.AttrProposalConf)

	if hasEvidenceEdge && hasDocChunkType {
		for i := 0; i < db.Relations.Len(); i++ {
			row, ok := db.Relations.Row(relstore.ID(i))
			if !ok || row.RelType != evidenceEdge {
				continue
			}
			targetType, ok := db.Entities.GetType(row.Target)
			if !ok || targetType != docChunkType {
				return invariantf("modal", fmt.Sprintf("has_evidence_chunk target %d is not a DocChunk", row.Target))
			}
		}
	}

	if !hasProposalIDKey {
		return nil
	}
	for id := 0; id < db.Entities.Len(); id++ {
		ent := entitystore.ID(id)
		if _, ok := db.Entities.GetAttr(ent, proposalIDKey); !ok {
			continue
		}
		if !hasProposalConfKey {
			return invariantf("modal", fmt.Sprintf("entity %d carries proposal_id but no proposal_confidence", ent))
		}
		confVal, ok := db.Entities.GetAttr(ent, proposalConfKey)
		if !ok {
			return invariantf("modal", fmt.Sprintf("entity %d carries proposal_id but no proposal_confidence", ent))
		}
		confStr := db.Interner.Lookup(confVal)
		var conf float64
		if _, err := fmt.Sscanf(confStr, "%g", &conf); err != nil || !(conf >= 0 && conf <= 1) {
			return invariantf("modal", fmt.Sprintf("entity %d proposal_confidence %q is not finite in [0,1]", ent, confStr))
		}
		if !hasEvidenceEdge || len(db.Relations.Outgoing(ent, evidenceEdge)) == 0 {
			return invariantf("modal", fmt.Sprintf("entity %d has no evidence pointer", ent))
		}
	}
	return nil
}
