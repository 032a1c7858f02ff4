// Package executor runs a compiled QueryPlan against a PathDB (§4.K):
// backtracking homomorphism search over the variable order, with a
// grounded-query fast path and RPQ edges stepped through the planner's
// compiled DFAs.
package executor

import (
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/axiograph/axiograph/internal/axql"
	"github.com/axiograph/axiograph/internal/entitystore"
	"github.com/axiograph/axiograph/internal/metaplane"
	"github.com/axiograph/axiograph/internal/pathdb"
	"github.com/axiograph/axiograph/internal/planner"
	"github.com/axiograph/axiograph/internal/relstore"
)

// Witness records the concrete entities/edges that satisfied one atom, for
// certificate payloads (§4.M query_result_v1/v2/v3).
type Witness struct {
	AtomIndex  int
	EntityIDs  []entitystore.ID
	EdgeRowIDs []relstore.ID
}

// Row is one result binding, tagged with the disjunct it came from (UCQ
// semantics, §4.M query_result_v2) and the witnesses that proved it.
type Row struct {
	Disjunct  int
	Bindings  map[string]entitystore.ID
	Witnesses []Witness
}

// Result is the full output of Run: ordered rows plus a truncation flag
// when limit was hit before exhausting the search (§4.K).
type Result struct {
	Rows      []Row
	Truncated bool
}

// Cancelled reports whether a cancellation token fired during execution.
type Cancelled struct{}

func (Cancelled) Error() string { return "executor: cancelled" }

// Run executes plan against db, honoring limit (0 means unbounded) and
// stopping early if cancel is closed. Results are ordered by disjunct,
// then join order over sorted-bitmap iteration, matching §5's determinism
// guarantee.
func Run(db *pathdb.DB, plan *planner.Plan, el *axql.Query, limit int, cancel <-chan struct{}) (*Result, error) {
	res := &Result{}
	sel := selectVarSet(el, plan)
	for dIdx, dp := range plan.Disjuncts {
		e := &disjunctExec{
			db: db, dp: dp, disjunct: dIdx, minConfidence: minConf(el),
			maxHops: maxHops(el), limit: limit, cancel: cancel, res: res,
			selectVars: sel,
		}
		if err := e.run(); err != nil {
			return res, err
		}
		if limit > 0 && len(res.Rows) >= limit {
			res.Truncated = res.Truncated || e.truncated
			break
		}
	}
	return res, nil
}

// selectVarSet resolves the columns a query projects (§8 "UCQ implicit
// select"): an explicit `select` list if given, otherwise the intersection
// of free variables across every disjunct's branch.
func selectVarSet(el *axql.Query, plan *planner.Plan) map[string]bool {
	out := map[string]bool{}
	if len(el.SelectVars) > 0 {
		for _, v := range el.SelectVars {
			out[v] = true
		}
		return out
	}
	if len(plan.Disjuncts) == 0 {
		return out
	}
	counts := map[string]int{}
	for _, dp := range plan.Disjuncts {
		seen := map[string]bool{}
		for _, v := range dp.VarOrder {
			seen[v] = true
		}
		for v := range seen {
			counts[v]++
		}
	}
	n := len(plan.Disjuncts)
	for v, c := range counts {
		if c == n {
			out[v] = true
		}
	}
	return out
}

func minConf(q *axql.Query) float64 {
	if q.MinConfidence != nil {
		return *q.MinConfidence
	}
	return 0
}

func maxHops(q *axql.Query) int {
	if q.MaxHops != nil {
		return *q.MaxHops
	}
	return -1 // unbounded; 0 would restrict to epsilon-only matches
}

type disjunctExec struct {
	db            *pathdb.DB
	dp            *planner.DisjunctPlan
	disjunct      int
	minConfidence float64
	maxHops       int
	limit         int
	cancel        <-chan struct{}
	res           *Result
	truncated     bool
	selectVars    map[string]bool
}

func (e *disjunctExec) cancelled() bool {
	select {
	case <-e.cancel:
		return true
	default:
		return false
	}
}

func (e *disjunctExec) run() error {
	if len(e.dp.VarOrder) == 0 {
		return e.runGrounded()
	}
	if fastID, fastVar, ok := e.fastSinglePath(); ok {
		return e.runFastPath(fastID, fastVar)
	}
	binding := map[string]entitystore.ID{}
	_, err := e.search(0, binding)
	return err
}

// runGrounded evaluates every atom with no live bindings required and
// yields a single empty-binding row iff all succeed (§4.K "grounded
// query").
func (e *disjunctExec) runGrounded() error {
	if e.cancelled() {
		return Cancelled{}
	}
	binding := map[string]entitystore.ID{}
	var witnesses []Witness
	for i, a := range e.dp.AtomOrder {
		w, ok := e.evalAtom(i, a, binding)
		if !ok {
			return nil
		}
		witnesses = append(witnesses, w)
	}
	e.emit(Row{Disjunct: e.disjunct, Bindings: binding, Witnesses: witnesses})
	return nil
}

// fastSinglePath detects the single bound->unknown path shape the spec
// calls out for direct FollowPath-style delegation (§4.K): one atom, an
// AtomPath whose From resolves to a concrete entity and whose To is the
// single free variable.
func (e *disjunctExec) fastSinglePath() (entitystore.ID, string, bool) {
	if len(e.dp.AtomOrder) != 1 || len(e.dp.VarOrder) != 1 {
		return 0, "", false
	}
	a := e.dp.AtomOrder[0]
	if a.Kind != axql.AtomPath || a.To.Kind != axql.TermVar || a.To.Var != e.dp.VarOrder[0] {
		return 0, "", false
	}
	id, ok := resolveTerm(e.db, nil, a.From)
	if !ok {
		return 0, "", false
	}
	return id, a.To.Var, true
}

func (e *disjunctExec) runFastPath(start entitystore.ID, v string) error {
	if e.cancelled() {
		return Cancelled{}
	}
	dfa := e.dp.RPQs[0]
	reached := dfa.Reachable(e.db, start, e.minConfidence, e.maxHops, nil)
	for _, raw := range reached.ToSlice() {
		if e.limit > 0 && len(e.res.Rows) >= e.limit {
			e.truncated = true
			break
		}
		target := entitystore.ID(raw)
		binding := map[string]entitystore.ID{v: target}
		e.emit(Row{Disjunct: e.disjunct, Bindings: binding, Witnesses: []Witness{
			{AtomIndex: 0, EntityIDs: []entitystore.ID{start, target}},
		}})
	}
	return nil
}

// search performs the backtracking homomorphism search (§4.K): for each
// variable in join order, intersect the candidate domain with live
// constraints implied by already-bound atoms, and recurse.
func (e *disjunctExec) search(varIdx int, binding map[string]entitystore.ID) (bool, error) {
	if e.cancelled() {
		return false, Cancelled{}
	}
	if varIdx == len(e.dp.VarOrder) {
		var witnesses []Witness
		for i, a := range e.dp.AtomOrder {
			if !atomFullyBound(a, binding) {
				continue
			}
			w, ok := e.evalAtom(i, a, binding)
			if !ok {
				return true, nil
			}
			witnesses = append(witnesses, w)
		}
		copied := make(map[string]entitystore.ID, len(binding))
		for k, v := range binding {
			copied[k] = v
		}
		e.emit(Row{Disjunct: e.disjunct, Bindings: copied, Witnesses: witnesses})
		if e.limit > 0 && len(e.res.Rows) >= e.limit {
			e.truncated = true
			return false, nil
		}
		return true, nil
	}

	v := e.dp.VarOrder[varIdx]
	candidates := e.dp.Candidates[v]
	if candidates == nil {
		return true, nil
	}
	ids := candidates.ToSlice()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, raw := range ids {
		binding[v] = entitystore.ID(raw)
		ok := true
		for i, a := range e.dp.AtomOrder {
			if !atomFullyBound(a, binding) {
				continue
			}
			if _, good := e.evalAtom(i, a, binding); !good {
				ok = false
				break
			}
		}
		if ok {
			cont, err := e.search(varIdx+1, binding)
			if err != nil {
				delete(binding, v)
				return false, err
			}
			if !cont {
				delete(binding, v)
				return false, nil
			}
		}
		delete(binding, v)
		if e.cancelled() {
			return false, Cancelled{}
		}
	}
	return true, nil
}

// emit projects r.Bindings down to the query's selected columns (§8 "UCQ
// implicit select") before recording the row. A branch that never bound a
// selected variable simply omits it rather than being dropped.
func (e *disjunctExec) emit(r Row) {
	filtered := make(map[string]entitystore.ID, len(r.Bindings))
	for k, v := range r.Bindings {
		if e.selectVars[k] {
			filtered[k] = v
		}
	}
	r.Bindings = filtered
	e.res.Rows = append(e.res.Rows, r)
}

func atomFullyBound(a axql.Atom, binding map[string]entitystore.ID) bool {
	for _, v := range varsInAtom(a) {
		if _, ok := binding[v]; !ok {
			return false
		}
	}
	return true
}

func varsInAtom(a axql.Atom) []string {
	var out []string
	add := func(t axql.Term) {
		if t.Kind == axql.TermVar {
			out = append(out, t.Var)
		}
	}
	add(a.Term)
	switch a.Kind {
	case axql.AtomPath:
		add(a.From)
		add(a.To)
	case axql.AtomFact:
		for _, t := range a.FactFields {
			add(t)
		}
		if a.FactVar != "" {
			out = append(out, a.FactVar)
		}
	}
	return out
}

// resolveTerm resolves a Term to a concrete entity id. Variables resolve
// through binding; name("...") and entity(k,"v") terms resolve through the
// attribute index (EntitiesWithAttrValue), taking the first match in
// sorted order for determinism — a documented simplification for terms
// that match more than one entity (see DESIGN.md).
func resolveTerm(db *pathdb.DB, binding map[string]entitystore.ID, t axql.Term) (entitystore.ID, bool) {
	switch t.Kind {
	case axql.TermVar:
		id, ok := binding[t.Var]
		return id, ok
	case axql.TermName:
		key, val := "name", t.Name
		if i := strings.IndexByte(t.Name, '='); i >= 0 {
			key, val = t.Name[:i], t.Name[i+1:]
		}
		keyID, ok1 := db.Interner.IDOf(key)
		valID, ok2 := db.Interner.IDOf(val)
		if !ok1 || !ok2 {
			return 0, false
		}
		matches := db.Entities.EntitiesWithAttrValue(keyID, valID).ToSlice()
		if len(matches) == 0 {
			return 0, false
		}
		return entitystore.ID(matches[0]), true
	}
	return 0, false
}

// factMatchesFields checks that factID carries exactly the field bindings
// named in fields, returning the edge rows that prove each one.
func (e *disjunctExec) factMatchesFields(factID entitystore.ID, fields map[string]axql.Term, binding map[string]entitystore.ID) ([]relstore.ID, bool) {
	var edgeIDs []relstore.ID
	for field, term := range fields {
		val, ok := resolveTerm(e.db, binding, term)
		if !ok {
			return nil, false
		}
		fieldEdge, ok := e.db.Interner.IDOf(field)
		if !ok || !e.db.Relations.HasEdge(factID, fieldEdge, val) {
			return nil, false
		}
		edgeIDs = append(edgeIDs, e.db.Relations.Outgoing(factID, fieldEdge)...)
	}
	return edgeIDs, true
}

// evalAtom evaluates one atom against a (possibly partial) binding,
// returning the witness that proved it on success.
func (e *disjunctExec) evalAtom(idx int, a axql.Atom, binding map[string]entitystore.ID) (Witness, bool) {
	switch a.Kind {
	case axql.AtomType:
		id, ok := resolveTerm(e.db, binding, a.Term)
		if !ok {
			return Witness{}, false
		}
		typeID, ok := e.db.Entities.GetType(id)
		if !ok {
			return Witness{}, false
		}
		if e.db.TypeName(typeID) == a.TypeName {
			return Witness{AtomIndex: idx, EntityIDs: []entitystore.ID{id}}, true
		}
		// Accept subtypes for a variable: its candidate domain was built
		// from the type's subtype closure, so membership is the subtype
		// check. A constant term matches the exact type only.
		if a.Term.Kind == axql.TermVar {
			if c := e.dp.Candidates[a.Term.Var]; c != nil && c.Contains(uint32(id)) {
				return Witness{AtomIndex: idx, EntityIDs: []entitystore.ID{id}}, true
			}
		}
		return Witness{}, false

	case axql.AtomPath:
		from, ok := resolveTerm(e.db, binding, a.From)
		if !ok {
			return Witness{}, false
		}
		to, ok := resolveTerm(e.db, binding, a.To)
		if !ok {
			return Witness{}, false
		}
		dfa := e.dp.RPQs[idx]
		if dfa == nil {
			return Witness{}, false
		}
		reached := dfa.Reachable(e.db, from, e.minConfidence, e.maxHops, nil)
		if !reached.Contains(uint32(to)) {
			return Witness{}, false
		}
		return Witness{AtomIndex: idx, EntityIDs: []entitystore.ID{from, to}}, true

	case axql.AtomFact:
		relKey, _ := e.db.Interner.IDOf(metaplane.AttrAxiRelation)
		relVal, ok := e.db.Interner.IDOf(a.Relation)
		if !ok {
			return Witness{}, false
		}
		candidates := e.db.Entities.EntitiesWithAttrValue(relKey, relVal).ToSlice()

		if a.FactVar != "" {
			if bound, ok := binding[a.FactVar]; ok {
				candidates = []uint32{uint32(bound)}
			}
		}
		for _, raw := range candidates {
			factID := entitystore.ID(raw)
			edgeIDs, ok := e.factMatchesFields(factID, a.FactFields, binding)
			if !ok {
				continue
			}
			return Witness{AtomIndex: idx, EntityIDs: []entitystore.ID{factID}, EdgeRowIDs: edgeIDs}, true
		}
		return Witness{}, false

	case axql.AtomAttr:
		id, ok := resolveTerm(e.db, binding, a.Term)
		if !ok {
			return Witness{}, false
		}
		keyID, ok1 := e.db.Interner.IDOf(a.AttrKey)
		valID, ok2 := e.db.Interner.IDOf(a.AttrValue)
		if !ok1 || !ok2 {
			return Witness{}, false
		}
		got, ok := e.db.Entities.GetAttr(id, keyID)
		if !ok || got != valID {
			return Witness{}, false
		}
		return Witness{AtomIndex: idx, EntityIDs: []entitystore.ID{id}}, true

	case axql.AtomAttrs:
		id, ok := resolveTerm(e.db, binding, a.Term)
		if !ok {
			return Witness{}, false
		}
		for k, v := range a.Attrs {
			keyID, ok1 := e.db.Interner.IDOf(k)
			valID, ok2 := e.db.Interner.IDOf(v)
			if !ok1 || !ok2 {
				return Witness{}, false
			}
			got, ok := e.db.Entities.GetAttr(id, keyID)
			if !ok || got != valID {
				return Witness{}, false
			}
		}
		return Witness{AtomIndex: idx, EntityIDs: []entitystore.ID{id}}, true

	case axql.AtomHas:
		id, ok := resolveTerm(e.db, binding, a.Term)
		if !ok {
			return Witness{}, false
		}
		for _, rel := range a.Rels {
			relID, ok := e.db.Interner.IDOf(rel)
			if !ok || len(e.db.Relations.Outgoing(id, relID)) == 0 {
				return Witness{}, false
			}
		}
		return Witness{AtomIndex: idx, EntityIDs: []entitystore.ID{id}}, true

	case axql.AtomContains, axql.AtomFTS, axql.AtomFuzzy:
		id, ok := resolveTerm(e.db, binding, a.Term)
		if !ok {
			return Witness{}, false
		}
		keyID, ok := e.db.Interner.IDOf(a.AttrKey)
		if !ok {
			return Witness{}, false
		}
		valID, ok := e.db.Entities.GetAttr(id, keyID)
		if !ok {
			return Witness{}, false
		}
		got := strings.ToLower(e.db.Interner.Lookup(valID))
		needle := strings.ToLower(a.AttrValue)
		var matched bool
		switch a.Kind {
		case axql.AtomContains:
			matched = strings.Contains(got, needle)
		case axql.AtomFTS:
			matched = true
			for _, tok := range strings.Fields(needle) {
				if !strings.Contains(got, tok) {
					matched = false
					break
				}
			}
		case axql.AtomFuzzy:
			matched = levenshtein.ComputeDistance(got, needle) <= a.FuzzyDist
		}
		if !matched {
			return Witness{}, false
		}
		return Witness{AtomIndex: idx, EntityIDs: []entitystore.ID{id}}, true
	}
	return Witness{}, false
}
