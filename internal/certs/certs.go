// Package certs builds the versioned, content-anchored certificates the
// rest of Axiograph issues as proof objects (§4.M): typing/constraint
// soundness certs, query results, and reachability witnesses. Every
// certificate is anchored to a content digest, never a mutable identifier,
// so the same input and the same query always produce the same bytes.
package certs

import (
	"encoding/json"
	"fmt"

	"github.com/axiograph/axiograph/internal/digest"
	"github.com/axiograph/axiograph/internal/elaborate"
	"github.com/axiograph/axiograph/internal/executor"
	"github.com/axiograph/axiograph/internal/metaplane"
	"github.com/axiograph/axiograph/internal/planner"
)

// EnvelopeVersion is the certificate envelope schema version (§4.M).
const EnvelopeVersion = 2

// Anchor ties a certificate to the content digest of the canonical module
// text it was computed against.
type Anchor struct {
	AxiDigestV1 string `json:"axi_digest_v1"`
}

// Envelope is the versioned wrapper shared by every certificate kind.
type Envelope struct {
	Version int             `json:"version"`
	Anchor  Anchor          `json:"anchor"`
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

func wrap(canonicalText, kind string, payload any) (*Envelope, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("certs: marshal %s payload: %w", kind, err)
	}
	return &Envelope{
		Version: EnvelopeVersion,
		Anchor:  Anchor{AxiDigestV1: digest.OfString(canonicalText)},
		Kind:    kind,
		Payload: body,
	}, nil
}

// WellTyped is the axi_well_typed_v1 payload.
type WellTyped struct {
	ModuleName     string `json:"module_name"`
	SchemaCount    int    `json:"schema_count"`
	RelationCount  int    `json:"relation_count"`
}

// WellTypedCert certifies that every fact in idx typechecked cleanly
// against its declared relation signature. Callers must only call this
// after metaplane.TypecheckAxiFacts reports report.OK(); it does not
// re-run the typecheck.
func WellTypedCert(canonicalText, moduleName string, idx *metaplane.Index) (*Envelope, error) {
	relCount := 0
	for _, si := range idx.Schemas {
		relCount += len(si.RelationDecls)
	}
	return wrap(canonicalText, "axi_well_typed_v1", WellTyped{
		ModuleName:    moduleName,
		SchemaCount:   len(idx.Schemas),
		RelationCount: relCount,
	})
}

// ConstraintsOK is the axi_constraints_ok_v1 payload.
type ConstraintsOK struct {
	ModuleName      string `json:"module_name"`
	ConstraintCount int    `json:"constraint_count"`
	InstanceCount   int    `json:"instance_count"`
	CheckCount      int    `json:"check_count"`
}

// ErrUnknownConstraint is returned when idx carries a theory constraint
// whose kind did not decode to a known ConstraintKind — constraint
// certification is fail-closed on Unknown (§4.M).
type ErrUnknownConstraint struct {
	Schema   string
	Relation string
}

func (e *ErrUnknownConstraint) Error() string {
	return fmt.Sprintf("certs: schema %s relation %s has an Unknown theory constraint", e.Schema, e.Relation)
}

// ConstraintsOKCert certifies every theory constraint decoded to a known
// kind, refusing (fail-closed) if any constraint is Unknown.
func ConstraintsOKCert(canonicalText, moduleName string, idx *metaplane.Index, instanceCount int) (*Envelope, error) {
	constraintCount, checkCount := 0, 0
	for _, si := range idx.Schemas {
		for rel, cs := range si.ConstraintsByRelation {
			for _, c := range cs {
				constraintCount++
				if c.Kind == metaplane.ConstraintUnknown {
					return nil, &ErrUnknownConstraint{Schema: si.Name, Relation: rel}
				}
				checkCount++
			}
		}
		for _, cs := range si.NamedBlockConstraintsByTheory {
			for _, c := range cs {
				constraintCount++
				if c.Kind == metaplane.ConstraintUnknown {
					return nil, &ErrUnknownConstraint{Schema: si.Name, Relation: "(named block)"}
				}
				checkCount++
			}
		}
	}
	return wrap(canonicalText, "axi_constraints_ok_v1", ConstraintsOK{
		ModuleName:      moduleName,
		ConstraintCount: constraintCount,
		InstanceCount:   instanceCount,
		CheckCount:      checkCount,
	})
}

// WitnessJSON is the JSON-safe form of an executor.Witness.
type WitnessJSON struct {
	AtomIndex  int      `json:"atom_index"`
	EntityIDs  []uint32 `json:"entity_ids"`
	EdgeRowIDs []uint32 `json:"edge_row_ids,omitempty"`
}

// RowJSON is the JSON-safe form of an executor.Row.
type RowJSON struct {
	Disjunct  int               `json:"disjunct,omitempty"`
	Bindings  map[string]uint32 `json:"bindings"`
	Witnesses []WitnessJSON     `json:"witnesses"`
}

// ToRowJSON converts one executor.Row into its JSON-safe form, for
// callers (e.g. httpapi) that need to return rows independent of any
// certificate.
func ToRowJSON(r executor.Row) RowJSON {
	rj := RowJSON{Disjunct: r.Disjunct, Bindings: map[string]uint32{}}
	for k, v := range r.Bindings {
		rj.Bindings[k] = uint32(v)
	}
	for _, w := range r.Witnesses {
		wj := WitnessJSON{AtomIndex: w.AtomIndex}
		for _, id := range w.EntityIDs {
			wj.EntityIDs = append(wj.EntityIDs, uint32(id))
		}
		for _, id := range w.EdgeRowIDs {
			wj.EdgeRowIDs = append(wj.EdgeRowIDs, uint32(id))
		}
		rj.Witnesses = append(rj.Witnesses, wj)
	}
	return rj
}

// QueryResultV1 is the conjunctive query_result_v1 payload: rows with
// per-atom witnesses, no disjunct index.
type QueryResultV1 struct {
	Rows []RowJSON `json:"rows"`
}

// QueryResultV1Cert certifies a single-disjunct (conjunctive) query
// result.
func QueryResultV1Cert(canonicalText string, res *executor.Result) (*Envelope, error) {
	payload := QueryResultV1{}
	for _, r := range res.Rows {
		payload.Rows = append(payload.Rows, ToRowJSON(r))
	}
	return wrap(canonicalText, "query_result_v1", payload)
}

// QueryResultV2 is the UCQ query_result_v2 payload: identical to v1 but
// each row keeps its originating disjunct index.
type QueryResultV2 struct {
	Rows      []RowJSON `json:"rows"`
	Truncated bool      `json:"truncated"`
}

// QueryResultV2Cert certifies a union-of-conjunctive-queries result.
func QueryResultV2Cert(canonicalText string, res *executor.Result) (*Envelope, error) {
	payload := QueryResultV2{Truncated: res.Truncated}
	for _, r := range res.Rows {
		payload.Rows = append(payload.Rows, ToRowJSON(r))
	}
	return wrap(canonicalText, "query_result_v2", payload)
}

// RewriteWitnessJSON is the JSON-safe form of an elaborate.RewriteWitness.
type RewriteWitnessJSON struct {
	RuleName   string `json:"rule_name"`
	TheoryName string `json:"theory_name"`
	LHS        string `json:"lhs"`
	RHS        string `json:"rhs"`
}

// QueryResultV3 is the name-based query_result_v3 payload, anchored to the
// canonical digest and carrying the elaborator's path-canonicalization
// witnesses so a reader can see why a path atom matched.
type QueryResultV3 struct {
	Rows               []RowJSON            `json:"rows"`
	Truncated          bool                  `json:"truncated"`
	ElaborationRewrites []RewriteWitnessJSON `json:"elaboration_rewrites"`
}

// QueryResultV3Cert certifies a query result together with the rewrite
// witnesses that justify any path canonicalization the elaborator applied.
func QueryResultV3Cert(canonicalText string, res *executor.Result, el *elaborate.Elaborated) (*Envelope, error) {
	payload := QueryResultV3{Truncated: res.Truncated}
	for _, r := range res.Rows {
		payload.Rows = append(payload.Rows, ToRowJSON(r))
	}
	for _, w := range el.Rewrites {
		payload.ElaborationRewrites = append(payload.ElaborationRewrites, RewriteWitnessJSON{
			RuleName: w.RuleName, TheoryName: w.TheoryName, LHS: w.LHS, RHS: w.RHS,
		})
	}
	return wrap(canonicalText, "query_result_v3", payload)
}

// Reachability is the reachability_v2 payload.
type Reachability struct {
	Start        uint32   `json:"start"`
	RelationIDs  []string `json:"relation_ids"`
	Witnesses    []uint32 `json:"witnesses"`
}

// ReachabilityCert certifies the set of entities reachable from start via
// dfa, anchored to a derived snapshot digest (§4.M reachability_v2).
func ReachabilityCert(snapshotDigestText string, start uint32, dfa *planner.DFA, reached []uint32) (*Envelope, error) {
	return wrap(snapshotDigestText, "reachability_v2", Reachability{
		Start:       start,
		RelationIDs: dfa.RelationsUsed(),
		Witnesses:   reached,
	})
}
