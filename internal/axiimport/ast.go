// Package axiimport parses the canonical `.axi` module text (§6 "Canonical
// input language") and imports it into a PathDB, reifying schemas,
// theories, and instances as ordinary entities/edges per §3's "Meta-plane
// (reified)" so the same query machinery that answers AxQL queries can see
// declarations too.
package axiimport

// Module is the parsed form of one `.axi` document.
type Module struct {
	Name      string
	Schemas   []*Schema
	Theories  []*Theory
	Instances []*Instance
}

// Schema is a `schema S:` block.
type Schema struct {
	Name      string
	Objects   []string
	Subtypes  []SubtypeDecl
	Relations []RelationDecl
}

// SubtypeDecl is a `sub Sub < Super` line.
type SubtypeDecl struct {
	Sub, Super string
}

// RelationDecl is a `relation R(f1: T1, f2: T2, ...)` line.
type RelationDecl struct {
	Name   string
	Fields []FieldDecl
}

// FieldDecl is one `name: Type` field in a relation declaration.
type FieldDecl struct {
	Name string
	Type string
}

// Theory is a `theory T on S:` block.
type Theory struct {
	Name        string
	OnSchema    string
	Constraints []ConstraintDecl
	Rewrites    []RewriteDecl
}

// ConstraintDecl is one `constraint ...` line or named block inside a
// theory. Not every field is populated for every Kind; see §4.F for which
// fields each kind uses.
type ConstraintDecl struct {
	Kind          string // metaplane.ConstraintKind value
	Name          string // only for named-block constraints
	Relation      string
	SrcField      string
	DstField      string
	Max           int
	WhereField    string
	WhereInValues []string
	OnFields      []string // the "on (c1, c2)" context-pair, if present
	KeyFields     []string // `key` constraint's field list
	RuleName      string   // `typing` constraint's rewrite-rule reference
	Text          string   // opaque body, for named-block constraints
}

// RewriteDecl is one `rewrite name:` block.
type RewriteDecl struct {
	Name        string
	Orientation string // forward | backward
	Vars        []VarDecl
	LHS         string
	RHS         string
}

// VarDecl is one entry in a rewrite rule's `vars:` list.
type VarDecl struct {
	Name string
	Type string // object type, or "Path" for path variables
	// For path variables (`p: Path(x,y)`), From/To name the endpoint
	// object variables.
	IsPath bool
	From   string
	To     string
}

// Instance is an `instance I of S:` block.
type Instance struct {
	Name     string
	OfSchema string
	// Objects maps object-type name -> entity names declared for it.
	Objects map[string][]string
	// Facts maps relation name -> tuples declared for it.
	Facts map[string][]FactLiteral
}

// FactLiteral is one `(f1=v1, f2=v2, ...)` tuple in an instance block.
type FactLiteral struct {
	Fields map[string]string
}
