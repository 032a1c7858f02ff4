package metaplane

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/axiograph/axiograph/internal/entitystore"
	"github.com/axiograph/axiograph/internal/intern"
	"github.com/axiograph/axiograph/internal/pathdb"
)

// FieldSig is one declared field of a relation.
type FieldSig struct {
	Name string
	Type string
}

// RelationSignature is a relation declaration as seen by the planner and
// the typechecker.
type RelationSignature struct {
	Name   string
	Fields []FieldSig
}

func (r RelationSignature) fieldType(name string) (string, bool) {
	for _, f := range r.Fields {
		if f.Name == name {
			return f.Type, true
		}
	}
	return "", false
}

// specificity scores a relation signature for the "most specific wins"
// merge rule of §4.F: more fields, fewer bare `Entity` types, fewer
// generic `from`/`to` field names all score higher.
func (r RelationSignature) specificity() int {
	score := len(r.Fields) * 10
	for _, f := range r.Fields {
		if f.Type != "Entity" {
			score++
		}
		if f.Name != "from" && f.Name != "to" {
			score++
		}
	}
	return score
}

// RewriteVar is one entry in a rewrite rule's variable list.
type RewriteVar struct {
	Name   string
	Type   string
	IsPath bool
	From   string
	To     string
}

// RewriteRule is a decoded `rewrite` block (§4.F, §9 "path canonicalization").
type RewriteRule struct {
	Name        string
	TheoryName  string
	Orientation string
	Vars        []RewriteVar
	LHS         string
	RHS         string
}

// SchemaIndex is the per-schema view §4.F builds.
type SchemaIndex struct {
	Name                          string
	ObjectTypes                   map[string]bool
	SubtypeDecls                  []SubtypeEdge
	RelationDecls                 map[string]RelationSignature
	ConstraintsByRelation         map[string][]Constraint
	RewriteRulesByTheory          map[string][]RewriteRule
	NamedBlockConstraintsByTheory map[string][]Constraint

	supertypesClosure map[string]map[string]bool // lazily computed, cached
}

// SubtypeEdge is one `sub Sub < Super` declaration.
type SubtypeEdge struct {
	Sub, Super string
}

// IsSubtypeOf reports whether sub is super, or a declared (transitive)
// subtype of super, using the lazily-computed, cached fixpoint closure
// (§9 axi_semantics: cache the closure per schema).
func (si *SchemaIndex) IsSubtypeOf(sub, super string) bool {
	closure := si.SupertypesClosure()
	supers, ok := closure[sub]
	if !ok {
		return sub == super
	}
	return supers[super]
}

// SupertypesClosure returns, for every object type, the set of its direct
// and transitive supertypes plus itself (reflexive), computing the
// fixpoint on first use and caching the result.
func (si *SchemaIndex) SupertypesClosure() map[string]map[string]bool {
	if si.supertypesClosure != nil {
		return si.supertypesClosure
	}
	closure := make(map[string]map[string]bool)
	for t := range si.ObjectTypes {
		closure[t] = map[string]bool{t: true}
	}
	changed := true
	for changed {
		changed = false
		for _, sd := range si.SubtypeDecls {
			subSet, ok := closure[sd.Sub]
			if !ok {
				subSet = map[string]bool{sd.Sub: true}
				closure[sd.Sub] = subSet
			}
			superSet, ok := closure[sd.Super]
			if !ok {
				superSet = map[string]bool{sd.Super: true}
				closure[sd.Super] = superSet
			}
			for t := range superSet {
				if !subSet[t] {
					subSet[t] = true
					changed = true
				}
			}
		}
	}
	si.supertypesClosure = closure
	return closure
}

// Index is the whole meta-plane index, keyed by schema name.
type Index struct {
	Schemas map[string]*SchemaIndex
}

func newSchemaIndex(name string) *SchemaIndex {
	return &SchemaIndex{
		Name:                          name,
		ObjectTypes:                   map[string]bool{},
		RelationDecls:                 map[string]RelationSignature{},
		ConstraintsByRelation:         map[string][]Constraint{},
		RewriteRulesByTheory:          map[string][]RewriteRule{},
		NamedBlockConstraintsByTheory: map[string][]Constraint{},
	}
}

// Build walks the reified meta-plane of db and produces the index (§4.F).
func Build(db *pathdb.DB) (*Index, error) {
	idx := &Index{Schemas: map[string]*SchemaIndex{}}

	schemaTypeID, ok := db.Interner.IDOf(TypeSchema)
	if !ok {
		return idx, nil // no meta-plane present yet
	}
	nameKey, _ := db.Interner.IDOf(AttrName)

	for _, raw := range db.Entities.ByType(schemaTypeID).ToSlice() {
		schemaEnt := entitystore.ID(raw)
		name := attrString(db, schemaEnt, nameKey)
		si := newSchemaIndex(name)

		if err := walkObjectTypes(db, schemaEnt, si); err != nil {
			return nil, err
		}
		if err := walkSubtypes(db, schemaEnt, si); err != nil {
			return nil, err
		}
		if err := walkRelations(db, schemaEnt, si); err != nil {
			return nil, err
		}
		if err := walkTheories(db, schemaEnt, si); err != nil {
			return nil, err
		}

		if existing, ok := idx.Schemas[name]; ok {
			mergeSchemaIndex(existing, si)
		} else {
			idx.Schemas[name] = si
		}
	}
	return idx, nil
}

func mergeSchemaIndex(dst, src *SchemaIndex) {
	for t := range src.ObjectTypes {
		dst.ObjectTypes[t] = true
	}
	dst.SubtypeDecls = append(dst.SubtypeDecls, src.SubtypeDecls...)
	for name, sig := range src.RelationDecls {
		existing, ok := dst.RelationDecls[name]
		if !ok || sig.specificity() > existing.specificity() {
			dst.RelationDecls[name] = sig
		}
	}
	for rel, cs := range src.ConstraintsByRelation {
		dst.ConstraintsByRelation[rel] = append(dst.ConstraintsByRelation[rel], cs...)
	}
	for th, rs := range src.RewriteRulesByTheory {
		dst.RewriteRulesByTheory[th] = append(dst.RewriteRulesByTheory[th], rs...)
	}
	for th, cs := range src.NamedBlockConstraintsByTheory {
		dst.NamedBlockConstraintsByTheory[th] = append(dst.NamedBlockConstraintsByTheory[th], cs...)
	}
	dst.supertypesClosure = nil
}

func attrString(db *pathdb.DB, id entitystore.ID, key intern.ID) string {
	if key == 0 {
		return ""
	}
	v, ok := db.Entities.GetAttr(id, key)
	if !ok {
		return ""
	}
	return db.Interner.Lookup(v)
}

func walkObjectTypes(db *pathdb.DB, schemaEnt entitystore.ID, si *SchemaIndex) error {
	edgeID, ok := db.Interner.IDOf(EdgeSchemaObjectType)
	if !ok {
		return nil
	}
	nameKey, _ := db.Interner.IDOf(AttrName)
	for _, rowID := range db.Relations.Outgoing(schemaEnt, edgeID) {
		row, _ := db.Relations.Row(rowID)
		si.ObjectTypes[attrString(db, row.Target, nameKey)] = true
	}
	return nil
}

func walkSubtypes(db *pathdb.DB, schemaEnt entitystore.ID, si *SchemaIndex) error {
	edgeID, ok := db.Interner.IDOf(EdgeSchemaSubtype)
	if !ok {
		return nil
	}
	subKey, _ := db.Interner.IDOf(AttrSubType)
	superKey, _ := db.Interner.IDOf(AttrSuperType)
	for _, rowID := range db.Relations.Outgoing(schemaEnt, edgeID) {
		row, _ := db.Relations.Row(rowID)
		si.SubtypeDecls = append(si.SubtypeDecls, SubtypeEdge{
			Sub:   attrString(db, row.Target, subKey),
			Super: attrString(db, row.Target, superKey),
		})
	}
	return nil
}

func walkRelations(db *pathdb.DB, schemaEnt entitystore.ID, si *SchemaIndex) error {
	edgeID, ok := db.Interner.IDOf(EdgeSchemaRelation)
	if !ok {
		return nil
	}
	nameKey, _ := db.Interner.IDOf(AttrName)
	fieldEdgeID, _ := db.Interner.IDOf(EdgeRelationField)
	fieldTypeKey, _ := db.Interner.IDOf(AttrFieldType)
	fieldIndexKey, _ := db.Interner.IDOf(AttrFieldIndex)

	for _, rowID := range db.Relations.Outgoing(schemaEnt, edgeID) {
		row, _ := db.Relations.Row(rowID)
		relEnt := row.Target
		relName := attrString(db, relEnt, nameKey)

		type indexedField struct {
			idx int
			f   FieldSig
		}
		var fields []indexedField
		for _, fRowID := range db.Relations.Outgoing(relEnt, fieldEdgeID) {
			fRow, _ := db.Relations.Row(fRowID)
			fieldEnt := fRow.Target
			idxStr := attrString(db, fieldEnt, fieldIndexKey)
			idx, _ := strconv.Atoi(idxStr)
			fields = append(fields, indexedField{
				idx: idx,
				f:   FieldSig{Name: attrString(db, fieldEnt, nameKey), Type: attrString(db, fieldEnt, fieldTypeKey)},
			})
		}
		sort.Slice(fields, func(i, j int) bool { return fields[i].idx < fields[j].idx })
		sig := RelationSignature{Name: relName}
		for _, f := range fields {
			sig.Fields = append(sig.Fields, f.f)
		}

		existing, ok := si.RelationDecls[relName]
		if !ok || sig.specificity() > existing.specificity() {
			si.RelationDecls[relName] = sig
		}
	}
	return nil
}

func walkTheories(db *pathdb.DB, schemaEnt entitystore.ID, si *SchemaIndex) error {
	edgeID, ok := db.Interner.IDOf(EdgeSchemaTheory)
	if !ok {
		return nil
	}
	nameKey, _ := db.Interner.IDOf(AttrName)
	constraintEdgeID, _ := db.Interner.IDOf(EdgeTheoryConstraint)
	rewriteEdgeID, _ := db.Interner.IDOf(EdgeTheoryRewrite)

	for _, rowID := range db.Relations.Outgoing(schemaEnt, edgeID) {
		row, _ := db.Relations.Row(rowID)
		theoryEnt := row.Target
		theoryName := attrString(db, theoryEnt, nameKey)

		for _, cRowID := range db.Relations.Outgoing(theoryEnt, constraintEdgeID) {
			cRow, _ := db.Relations.Row(cRowID)
			c, err := decodeConstraintEntity(db, cRow.Target)
			if err != nil {
				return err
			}
			if c.Kind == ConstraintNamedBlock {
				// Re-decode the opaque body against the known constraint
				// shapes (§9 Open Question (b)); a body that doesn't
				// round-trip falls back to Unknown and blocks
				// axi_constraints_ok_v1. Bucketed as a named block either
				// way since that's how the theory declared it.
				c = redecodeNamedBlock(c)
				si.NamedBlockConstraintsByTheory[theoryName] = append(si.NamedBlockConstraintsByTheory[theoryName], c)
			} else {
				si.ConstraintsByRelation[c.Relation] = append(si.ConstraintsByRelation[c.Relation], c)
			}
		}
		for _, rRowID := range db.Relations.Outgoing(theoryEnt, rewriteEdgeID) {
			rRow, _ := db.Relations.Row(rRowID)
			rule, err := decodeRewriteEntity(db, rRow.Target, theoryName)
			if err != nil {
				return err
			}
			si.RewriteRulesByTheory[theoryName] = append(si.RewriteRulesByTheory[theoryName], rule)
		}
	}
	return nil
}

func decodeConstraintEntity(db *pathdb.DB, ent entitystore.ID) (Constraint, error) {
	keys := constraintAttrKeys(db)
	kindRaw := attrString(db, ent, keys.kind)
	c := Constraint{
		Kind:       decodeConstraintKind(kindRaw),
		Name:       attrString(db, ent, keys.name),
		Relation:   attrString(db, ent, keys.axiRelation),
		SrcField:   attrString(db, ent, keys.srcField),
		DstField:   attrString(db, ent, keys.dstField),
		WhereField: attrString(db, ent, keys.whereField),
		RuleName:   attrString(db, ent, keys.ruleName),
		Text:       attrString(db, ent, keys.text),
	}
	if maxStr := attrString(db, ent, keys.max); maxStr != "" {
		c.Max, _ = strconv.Atoi(maxStr)
	}
	if fields := attrString(db, ent, keys.fields); fields != "" {
		c.KeyFields = strings.Split(fields, ",")
	}
	if vals := attrString(db, ent, keys.whereIn); vals != "" {
		c.WhereInValues = strings.Split(vals, ",")
	}
	if kindRaw == "" {
		c.Kind = ConstraintUnknown
		c.Text = attrString(db, ent, keys.text)
	}
	return c, nil
}

type constraintKeys struct {
	kind, name, axiRelation, srcField, dstField, max, whereField, whereIn, fields, ruleName, text intern.ID
}

func constraintAttrKeys(db *pathdb.DB) constraintKeys {
	get := func(s string) intern.ID { id, _ := db.Interner.IDOf(s); return id }
	return constraintKeys{
		kind:        get(AttrConstraintKind),
		name:        get(AttrName),
		axiRelation: get(AttrAxiRelation),
		srcField:    get(AttrSrcField),
		dstField:    get(AttrDstField),
		max:         get(AttrMax),
		whereField:  get(AttrWhereField),
		whereIn:     get(AttrWhereInValues),
		fields:      get(AttrFields),
		ruleName:    get(AttrRuleName),
		text:        get(AttrText),
	}
}

func decodeRewriteEntity(db *pathdb.DB, ent entitystore.ID, theoryName string) (RewriteRule, error) {
	get := func(s string) intern.ID { id, _ := db.Interner.IDOf(s); return id }
	rule := RewriteRule{
		Name:        attrString(db, ent, get(AttrName)),
		TheoryName:  theoryName,
		Orientation: attrString(db, ent, get(AttrOrientation)),
		LHS:         attrString(db, ent, get(AttrLHS)),
		RHS:         attrString(db, ent, get(AttrRHS)),
	}
	varsRaw := attrString(db, ent, get(AttrVars))
	for _, v := range strings.Split(varsRaw, ";") {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		name, typ, ok := strings.Cut(v, ":")
		if !ok {
			return RewriteRule{}, fmt.Errorf("metaplane: malformed rewrite var %q", v)
		}
		name = strings.TrimSpace(name)
		typ = strings.TrimSpace(typ)
		if strings.HasPrefix(typ, "Path(") && strings.HasSuffix(typ, ")") {
			inner := typ[len("Path(") : len(typ)-1]
			parts := strings.SplitN(inner, ",", 2)
			if len(parts) == 2 {
				rule.Vars = append(rule.Vars, RewriteVar{Name: name, Type: "Path", IsPath: true, From: strings.TrimSpace(parts[0]), To: strings.TrimSpace(parts[1])})
				continue
			}
		}
		rule.Vars = append(rule.Vars, RewriteVar{Name: name, Type: typ})
	}
	return rule, nil
}
