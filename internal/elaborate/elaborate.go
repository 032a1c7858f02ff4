// Package elaborate implements the AxQL typestate transition parsed ->
// lowered -> typechecked -> planned (§4.I): implied typing from relation
// signatures, supertype-closure expansion, and path canonicalization via
// theory rewrite rules.
package elaborate

import (
	"github.com/axiograph/axiograph/internal/axql"
	"github.com/axiograph/axiograph/internal/metaplane"
)

// RewriteWitness records one applied path-canonicalization step, carried
// into query_result_v3 certificates (§4.M, §9 supplement 3).
type RewriteWitness struct {
	RuleName   string
	TheoryName string
	LHS        string
	RHS        string
}

// ImpliedType is a type constraint derived for a variable from the field
// signature of a Fact atom it appears in (§4.I "implied typing").
type ImpliedType struct {
	Var        string
	Type       string
	DerivedFrom string // the relation/field this type was derived from, diagnostics only
}

// Elaborated is the typechecked-and-planned-ready form of a Query.
type Elaborated struct {
	Query        *axql.Query
	ImpliedTypes []ImpliedType
	// ExpandedTypes maps a variable to the full set of acceptable types
	// once supertype closure has been applied, per disjunct-agnostic
	// union (conservative: a variable's constraints across all disjuncts
	// it appears in are unioned, since disjuncts are alternatives).
	ExpandedTypes map[string]map[string]bool
	Rewrites      []RewriteWitness
}

// maxRewriteSteps bounds path canonicalization when no rewrite rule
// produces a structural decrease in expression size (§4.I).
const maxRewriteSteps = 16

// Elaborate runs implied typing, supertype closure, and path
// canonicalization over q against the schema index idx, assuming every
// atom's relation/type names resolve within a single schema (the common
// case: queries are scoped to one schema's vocabulary at a time).
func Elaborate(q *axql.Query, idx *metaplane.Index) (*Elaborated, error) {
	// Path rewrites below are written into a copy of q's atoms, so the
	// caller's query (whose digest keys the prepared-query cache) stays as
	// parsed.
	lowered := *q
	lowered.Disjuncts = make([]axql.Disjunct, len(q.Disjuncts))
	for i, d := range q.Disjuncts {
		d.Atoms = append([]axql.Atom(nil), d.Atoms...)
		lowered.Disjuncts[i] = d
	}
	el := &Elaborated{Query: &lowered, ExpandedTypes: map[string]map[string]bool{}}

	for _, d := range lowered.Disjuncts {
		for i, a := range d.Atoms {
			switch a.Kind {
			case axql.AtomType:
				if a.Term.Kind == axql.TermVar {
					el.addType(a.Term.Var, a.TypeName)
				}
			case axql.AtomFact:
				si := findSchemaForRelation(idx, a.Relation)
				if si == nil {
					continue
				}
				sig, ok := si.RelationDecls[a.Relation]
				if !ok {
					continue
				}
				for fieldName, term := range a.FactFields {
					if term.Kind != axql.TermVar {
						continue
					}
					ft, ok := "", false
					for _, f := range sig.Fields {
						if f.Name == fieldName {
							ft, ok = f.Type, true
							break
						}
					}
					if !ok || ft == "Entity" {
						continue
					}
					el.ImpliedTypes = append(el.ImpliedTypes, ImpliedType{
						Var: term.Var, Type: ft,
						DerivedFrom: a.Relation + "." + fieldName,
					})
					el.addType(term.Var, ft)
				}
			case axql.AtomPath:
				if a.Path != nil {
					rewritten, witnesses := canonicalizePath(a.Path, idx)
					d.Atoms[i].Path = rewritten
					el.Rewrites = append(el.Rewrites, witnesses...)
				}
			}
		}
	}

	el.expandSupertypes(idx)
	return el, nil
}

func (el *Elaborated) addType(v, t string) {
	set, ok := el.ExpandedTypes[v]
	if !ok {
		set = map[string]bool{}
		el.ExpandedTypes[v] = set
	}
	set[t] = true
}

// expandSupertypes replaces each variable's type set with its union over
// every schema's supertype closure, so a query constraining a variable to
// a supertype still matches subtype instances during planning.
func (el *Elaborated) expandSupertypes(idx *metaplane.Index) {
	for v, types := range el.ExpandedTypes {
		expanded := map[string]bool{}
		for t := range types {
			expanded[t] = true
			for _, si := range idx.Schemas {
				closure := si.SupertypesClosure()
				if subs, ok := closure[t]; ok {
					for s := range subs {
						expanded[s] = true
					}
				}
				for sub, supers := range closure {
					if supers[t] {
						expanded[sub] = true
					}
				}
			}
		}
		el.ExpandedTypes[v] = expanded
	}
}

func findSchemaForRelation(idx *metaplane.Index, relation string) *metaplane.SchemaIndex {
	for _, si := range idx.Schemas {
		if _, ok := si.RelationDecls[relation]; ok {
			return si
		}
	}
	return nil
}

// canonicalizePath attempts to rewrite p using forward-oriented theory
// rewrite rules whose LHS textually matches p's rendered form, bounded by
// maxRewriteSteps (§4.I). Matching is syntactic (rendered-text equality)
// rather than full unification, a scope simplification documented in
// DESIGN.md; it still exercises the witness-recording contract that
// query_result_v3 certificates depend on.
func canonicalizePath(p *axql.PathExpr, idx *metaplane.Index) (*axql.PathExpr, []RewriteWitness) {
	var witnesses []RewriteWitness
	current := p
	for step := 0; step < maxRewriteSteps; step++ {
		rendered := renderPath(current)
		rule, theory, ok := findMatchingRule(idx, rendered)
		if !ok {
			break
		}
		rewritten, err := axql.Parse("where x - " + rule.RHS + " -> y")
		if err != nil || len(rewritten.Disjuncts) == 0 {
			break
		}
		next := rewritten.Disjuncts[0].Atoms[0].Path
		if renderPath(next) == rendered {
			break // no structural decrease; stop to avoid looping
		}
		witnesses = append(witnesses, RewriteWitness{RuleName: rule.Name, TheoryName: theory, LHS: rule.LHS, RHS: rule.RHS})
		current = next
	}
	return current, witnesses
}

func findMatchingRule(idx *metaplane.Index, rendered string) (metaplane.RewriteRule, string, bool) {
	for _, si := range idx.Schemas {
		for theory, rules := range si.RewriteRulesByTheory {
			for _, r := range rules {
				if r.Orientation == "backward" {
					continue
				}
				if r.LHS == rendered {
					return r, theory, true
				}
			}
		}
	}
	return metaplane.RewriteRule{}, "", false
}

func renderPath(p *axql.PathExpr) string {
	if p == nil {
		return ""
	}
	switch p.Kind {
	case axql.PathEpsilon:
		return "eps"
	case axql.PathRel:
		return p.Rel
	case axql.PathConcat:
		return renderPath(p.Children[0]) + "/" + renderPath(p.Children[1])
	case axql.PathAlt:
		return "(" + renderPath(p.Children[0]) + "|" + renderPath(p.Children[1]) + ")"
	case axql.PathStar:
		return renderPath(p.Children[0]) + "*"
	case axql.PathPlus:
		return renderPath(p.Children[0]) + "+"
	case axql.PathOpt:
		return renderPath(p.Children[0]) + "?"
	}
	return ""
}
