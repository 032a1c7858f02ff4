// Package planner builds a QueryPlan from an elaborated AxQL disjunct
// (§4.J): per-variable candidate domains, a deterministic join order, a
// cheapest-first atom order, and compiled RPQ programs for path atoms.
package planner

import (
	"sort"

	"github.com/axiograph/axiograph/internal/axql"
	"github.com/axiograph/axiograph/internal/elaborate"
	"github.com/axiograph/axiograph/internal/entitystore"
	"github.com/axiograph/axiograph/internal/metaplane"
	"github.com/axiograph/axiograph/internal/pathdb"
)

// atomCost orders atom kinds cheapest-first (§4.J.3): bounded edges before
// RPQs, attribute equality before substring/FTS/fuzzy, a known axi_relation
// hint first of all.
func atomCost(a axql.Atom) int {
	switch a.Kind {
	case axql.AtomFact:
		return 0
	case axql.AtomType, axql.AtomAttr, axql.AtomAttrs:
		return 1
	case axql.AtomHas:
		return 2
	case axql.AtomContains, axql.AtomFTS, axql.AtomFuzzy:
		return 3
	case axql.AtomPath:
		if a.Path != nil && isBoundedPath(a.Path) {
			return 4
		}
		return 5
	}
	return 6
}

func isBoundedPath(p *axql.PathExpr) bool {
	switch p.Kind {
	case axql.PathStar, axql.PathPlus:
		return false
	case axql.PathConcat, axql.PathAlt, axql.PathOpt:
		for _, c := range p.Children {
			if !isBoundedPath(c) {
				return false
			}
		}
		return true
	}
	return true
}

// DisjunctPlan is the plan for one Disjunct: candidate domains per
// variable, variable order, atom order, and compiled RPQ programs keyed
// by atom index.
type DisjunctPlan struct {
	Candidates map[string]*entitystore.Bitmap
	VarOrder   []string
	AtomOrder  []axql.Atom
	RPQs       map[int]*DFA // index into AtomOrder
}

// Plan is the compiled form of an elaborated query: one DisjunctPlan per
// disjunct, evaluated independently and unioned by the executor (UCQ
// semantics, §4.M query_result_v2).
type Plan struct {
	Disjuncts []*DisjunctPlan
}

// Build constructs a Plan from an elaborated query against db (§4.J).
func Build(db *pathdb.DB, idx *metaplane.Index, el *elaborate.Elaborated) (*Plan, error) {
	plan := &Plan{}
	for _, d := range el.Query.Disjuncts {
		dp, err := buildDisjunct(db, idx, el, d)
		if err != nil {
			return nil, err
		}
		plan.Disjuncts = append(plan.Disjuncts, dp)
	}
	return plan, nil
}

func buildDisjunct(db *pathdb.DB, idx *metaplane.Index, el *elaborate.Elaborated, d axql.Disjunct) (*DisjunctPlan, error) {
	dp := &DisjunctPlan{
		Candidates: map[string]*entitystore.Bitmap{},
		RPQs:       map[int]*DFA{},
	}

	atoms := append([]axql.Atom{}, d.Atoms...)
	sort.SliceStable(atoms, func(i, j int) bool { return atomCost(atoms[i]) < atomCost(atoms[j]) })
	dp.AtomOrder = atoms

	for i, a := range atoms {
		switch a.Kind {
		case axql.AtomType:
			if a.Term.Kind == axql.TermVar {
				restrictByTypeName(db, dp, a.Term.Var, a.TypeName, el, idx)
			}
		case axql.AtomFact:
			for fieldName, term := range a.FactFields {
				if term.Kind != axql.TermVar {
					continue
				}
				if types, ok := el.ExpandedTypes[term.Var]; ok {
					restrictByTypeSet(db, dp, term.Var, types)
				} else {
					_ = fieldName
				}
			}
			if a.FactVar != "" {
				restrictByFactRelation(db, dp, a.FactVar, a.Relation)
			}
		case axql.AtomPath:
			if a.Path != nil {
				dp.RPQs[i] = CompileRPQ(a.Path)
			}
		}
	}

	// Any variable that appears only in path/attr/has atoms never gets a
	// type- or fact-derived domain above; fall back to the full entity
	// space so the backtracking search still has something to iterate.
	for _, v := range allVars(atoms) {
		if _, ok := dp.Candidates[v]; !ok {
			dp.Candidates[v] = fullDomain(db)
		}
	}

	varCard := map[string]int{}
	for v, b := range dp.Candidates {
		varCard[v] = b.Len()
	}
	for v := range varCard {
		dp.VarOrder = append(dp.VarOrder, v)
	}
	sort.Slice(dp.VarOrder, func(i, j int) bool {
		vi, vj := dp.VarOrder[i], dp.VarOrder[j]
		if varCard[vi] != varCard[vj] {
			return varCard[vi] < varCard[vj]
		}
		return vi < vj // deterministic tiebreak by variable name
	})

	return dp, nil
}

func restrictByTypeName(db *pathdb.DB, dp *DisjunctPlan, v, typeName string, el *elaborate.Elaborated, idx *metaplane.Index) {
	types := map[string]bool{typeName: true}
	for _, si := range idx.Schemas {
		for sub, supers := range si.SupertypesClosure() {
			if supers[typeName] {
				types[sub] = true
			}
		}
	}
	restrictByTypeSet(db, dp, v, types)
}

func restrictByTypeSet(db *pathdb.DB, dp *DisjunctPlan, v string, types map[string]bool) {
	union := entitystore.NewBitmap()
	for t := range types {
		typeID, ok := db.Interner.IDOf(t)
		if !ok {
			continue
		}
		union = entitystore.Union(union, db.Entities.ByType(typeID))
	}
	intersectInto(dp, v, union)
}

func restrictByFactRelation(db *pathdb.DB, dp *DisjunctPlan, v, relation string) {
	relKey, ok1 := db.Interner.IDOf(metaplane.AttrAxiRelation)
	relVal, ok2 := db.Interner.IDOf(relation)
	if !ok1 || !ok2 {
		intersectInto(dp, v, entitystore.NewBitmap())
		return
	}
	intersectInto(dp, v, db.Entities.EntitiesWithAttrValue(relKey, relVal))
}

// allVars collects every distinct variable referenced by any atom's terms.
func allVars(atoms []axql.Atom) []string {
	seen := map[string]bool{}
	add := func(t axql.Term) {
		if t.Kind == axql.TermVar {
			seen[t.Var] = true
		}
	}
	for _, a := range atoms {
		add(a.Term)
		add(a.From)
		add(a.To)
		for _, t := range a.FactFields {
			add(t)
		}
		if a.FactVar != "" {
			seen[a.FactVar] = true
		}
	}
	out := make([]string, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// fullDomain returns the bitmap of every entity ever added, used as the
// fallback candidate set for variables with no type- or fact-derived
// constraint (§4.J candidate construction has no entry for such variables
// otherwise).
func fullDomain(db *pathdb.DB) *entitystore.Bitmap {
	all := entitystore.NewBitmap()
	for i := 0; i < db.Entities.Len(); i++ {
		all.Add(uint32(i))
	}
	return all
}

func intersectInto(dp *DisjunctPlan, v string, set *entitystore.Bitmap) {
	if existing, ok := dp.Candidates[v]; ok {
		dp.Candidates[v] = entitystore.Intersect(existing, set)
	} else {
		dp.Candidates[v] = set
	}
}
