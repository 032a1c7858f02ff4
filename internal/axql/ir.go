// Package axql implements the AxQL parser (§4.H): a small query language
// over PathDB whose surface syntax compiles to an IR the elaborator,
// planner, and executor share.
package axql

// TermKind distinguishes the forms a Term may take.
type TermKind int

const (
	TermVar TermKind = iota
	TermNat
	TermWildcard
	TermName
)

// Term is one query term: a variable, a bound natural number (entity id),
// the wildcard "_", or a name(Str) literal resolved by attribute lookup.
type Term struct {
	Kind TermKind
	Var  string
	Nat  uint64
	Name string
}

// AtomKind enumerates the atom shapes of §4.H's grammar.
type AtomKind int

const (
	AtomType AtomKind = iota
	AtomPath
	AtomAttr
	AtomFact
	AtomHas
	AtomAttrs
	// AtomContains, AtomFTS, AtomFuzzy are the approximate attribute-match
	// sugars (§4.H): `contains`/`fts`/`fuzzy` (Term, key, needle[, dist]).
	// Discovery/REPL convenience, not part of the certified query core.
	AtomContains
	AtomFTS
	AtomFuzzy
)

// Atom is one conjunct of a Disjunct.
type Atom struct {
	Kind AtomKind
	// AtomType
	Term     Term
	TypeName string
	// AtomPath
	From, To Term
	Path     *PathExpr
	// AtomAttr: attr(Term, key, value)
	// AtomContains/AtomFTS: (Term, AttrKey, AttrValue=needle)
	AttrKey, AttrValue string
	// AtomFuzzy: max edit distance, in addition to AttrKey/AttrValue
	FuzzyDist int
	// AtomFact: [Var =] Ident(field=Term, ...)
	FactVar    string
	Relation   string
	FactFields map[string]Term
	// AtomHas: has(Term, Rel...) | Term has Rel
	Rels []string
	// AtomAttrs: attrs(Term, k=v, ...)
	Attrs map[string]string

	SourceText string // stable span for error messages (§9 supplement 3)
}

// PathExprKind enumerates the RPQ grammar's node shapes.
type PathExprKind int

const (
	PathEpsilon PathExprKind = iota
	PathRel
	PathConcat
	PathAlt
	PathStar
	PathPlus
	PathOpt
)

// PathExpr is a regular path expression node (§4.H RPQ grammar).
type PathExpr struct {
	Kind     PathExprKind
	Rel      string
	Children []*PathExpr
}

// Disjunct is a conjunction of atoms (§4.H).
type Disjunct struct {
	Atoms []Atom
}

// Query is the fully parsed IR for one AxQL query text (§4.H, §9
// supplement 3: "IR keeps a Disjunct as a conjunction of Atoms").
type Query struct {
	SelectVars    []string
	Disjuncts     []Disjunct
	Contexts      []Term
	MaxHops       *int
	MinConfidence *float64
	Limit         *int

	SourceText string
}
