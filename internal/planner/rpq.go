package planner

import (
	"sort"

	"github.com/axiograph/axiograph/internal/axql"
	"github.com/axiograph/axiograph/internal/entitystore"
	"github.com/axiograph/axiograph/internal/pathdb"
)

// nfaState is one Thompson-construction state: at most one labeled
// transition (Rel) plus any number of epsilon transitions (§4.J "RPQ
// compilation: convert regex to Thompson NFA").
type nfaState struct {
	rel   string
	hasRel bool
	out   int
	out2  int // second epsilon branch, -1 if unused
	eps   []int
}

type nfa struct {
	states []nfaState
	start  int
	accept int
}

func newNFA() *nfa {
	return &nfa{}
}

func (n *nfa) addState() int {
	n.states = append(n.states, nfaState{out: -1, out2: -1})
	return len(n.states) - 1
}

func (n *nfa) addEps(from, to int) {
	n.states[from].eps = append(n.states[from].eps, to)
}

// buildNFA compiles a PathExpr into a Thompson NFA fragment with a single
// start and accept state (§4.J).
func buildNFA(p *axql.PathExpr) *nfa {
	n := newNFA()
	start, accept := compileFragment(n, p)
	n.start, n.accept = start, accept
	return n
}

func compileFragment(n *nfa, p *axql.PathExpr) (start, accept int) {
	if p == nil {
		s := n.addState()
		a := n.addState()
		n.addEps(s, a)
		return s, a
	}
	switch p.Kind {
	case axql.PathEpsilon:
		s := n.addState()
		a := n.addState()
		n.addEps(s, a)
		return s, a
	case axql.PathRel:
		s := n.addState()
		a := n.addState()
		n.states[s].rel = p.Rel
		n.states[s].hasRel = true
		n.states[s].out = a
		return s, a
	case axql.PathConcat:
		s1, a1 := compileFragment(n, p.Children[0])
		s2, a2 := compileFragment(n, p.Children[1])
		n.addEps(a1, s2)
		return s1, a2
	case axql.PathAlt:
		s := n.addState()
		a := n.addState()
		s1, a1 := compileFragment(n, p.Children[0])
		s2, a2 := compileFragment(n, p.Children[1])
		n.addEps(s, s1)
		n.addEps(s, s2)
		n.addEps(a1, a)
		n.addEps(a2, a)
		return s, a
	case axql.PathStar:
		s := n.addState()
		a := n.addState()
		s1, a1 := compileFragment(n, p.Children[0])
		n.addEps(s, s1)
		n.addEps(s, a)
		n.addEps(a1, s1)
		n.addEps(a1, a)
		return s, a
	case axql.PathPlus:
		s1, a1 := compileFragment(n, p.Children[0])
		a := n.addState()
		n.addEps(a1, s1)
		n.addEps(a1, a)
		return s1, a
	case axql.PathOpt:
		s := n.addState()
		a := n.addState()
		s1, a1 := compileFragment(n, p.Children[0])
		n.addEps(s, s1)
		n.addEps(s, a)
		n.addEps(a1, a)
		return s, a
	}
	s := n.addState()
	return s, s
}

// closure returns the epsilon-closure of a state set.
func (n *nfa) closure(states map[int]bool) map[int]bool {
	out := map[int]bool{}
	var stack []int
	for s := range states {
		out[s] = true
		stack = append(stack, s)
	}
	for len(stack) > 0 {
		s := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, e := range n.states[s].eps {
			if !out[e] {
				out[e] = true
				stack = append(stack, e)
			}
		}
	}
	return out
}

// DFA is the compiled form of one path expression. It holds the Thompson
// NFA itself; no subset construction is performed, and Reachable
// simulates the NFA over sets of NFA states instead. Per-source
// reachability is memoized by the caller.
type DFA struct {
	n *nfa
}

// CompileRPQ builds the DFA for a path expression. Per-source reachability
// is memoized on first use via Reachable's cache parameter, not inside the
// DFA itself, so one compiled DFA can serve many start entities.
func CompileRPQ(p *axql.PathExpr) *DFA {
	return &DFA{n: buildNFA(p)}
}

// Reachable computes the set of entities reachable from start by stepping
// the DFA over db's relation edges, honoring minConfidence and maxHops
// (0 hops restricts to epsilon-only matches, §4.K). The memo map is keyed
// by start entity and is the planner/executor's reachability cache.
func (d *DFA) Reachable(db *pathdb.DB, start entitystore.ID, minConfidence float64, maxHops int, memo map[entitystore.ID]*entitystore.Bitmap) *entitystore.Bitmap {
	if memo != nil {
		if cached, ok := memo[start]; ok {
			return cached
		}
	}

	type frontierState struct {
		entity entitystore.ID
		nfaSt  int
	}
	startSet := d.n.closure(map[int]bool{d.n.start: true})
	visited := map[frontierState]bool{}
	result := entitystore.NewBitmap()
	var queue []frontierState
	for s := range startSet {
		fs := frontierState{entity: start, nfaSt: s}
		if !visited[fs] {
			visited[fs] = true
			queue = append(queue, fs)
			if s == d.n.accept {
				result.Add(uint32(start))
			}
		}
	}

	hops := 0
	for len(queue) > 0 && (maxHops < 0 || hops < maxHops) {
		var next []frontierState
		for _, fs := range queue {
			st := d.n.states[fs.nfaSt]
			if !st.hasRel {
				continue
			}
			relID, ok := db.Interner.IDOf(st.rel)
			if !ok {
				continue
			}
			targets := db.Relations.TargetsSorted(fs.entity, relID, minConfidence)
			for _, t := range targets {
				closure := d.n.closure(map[int]bool{st.out: true})
				for s := range closure {
					nfs := frontierState{entity: t, nfaSt: s}
					if visited[nfs] {
						continue
					}
					visited[nfs] = true
					next = append(next, nfs)
					if s == d.n.accept {
						result.Add(uint32(t))
					}
				}
			}
		}
		queue = next
		hops++
	}

	if memo != nil {
		memo[start] = result
	}
	return result
}

// RelationsUsed returns every distinct relation label this path
// expression's NFA references, used by the planner to estimate atom cost
// and by certificates to list `relation_ids` (§4.M reachability_v2).
func (d *DFA) RelationsUsed() []string {
	seen := map[string]bool{}
	for _, s := range d.n.states {
		if s.hasRel {
			seen[s.rel] = true
		}
	}
	out := make([]string, 0, len(seen))
	for r := range seen {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}
