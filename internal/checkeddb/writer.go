package checkeddb

import (
	"fmt"
	"math"
	"sort"

	"github.com/axiograph/axiograph/internal/digest"
	"github.com/axiograph/axiograph/internal/entitystore"
	"github.com/axiograph/axiograph/internal/intern"
	"github.com/axiograph/axiograph/internal/metaplane"
	"github.com/axiograph/axiograph/internal/pathdb"
)

// Writer is the only correct-by-construction path for creating meta-plane
// entities and fact nodes (§4.G): every builder it hands out validates its
// invariants at Commit time and leaves nothing partial behind on failure.
type Writer struct {
	db  *pathdb.DB
	idx *metaplane.Index
}

// NewWriter wraps db for writes, indexed against the meta-plane state idx
// last saw. Callers must rebuild idx (metaplane.Build) after structural
// schema/theory changes before opening a new Writer.
func NewWriter(db *pathdb.DB, idx *metaplane.Index) *Writer {
	return &Writer{db: db, idx: idx}
}

// EntityBuilder starts construction of an ordinary object-type instance in
// schema, typed objectType. The schema and object type must already be
// declared in the meta-plane index.
func (w *Writer) EntityBuilder(schema, objectType string) (*EntityBuilder, error) {
	si, ok := w.idx.Schemas[schema]
	if !ok {
		return nil, invariantf("entity_builder", fmt.Sprintf("unknown schema %q", schema))
	}
	if !si.ObjectTypes[objectType] {
		return nil, invariantf("entity_builder", fmt.Sprintf("schema %q has no object type %q", schema, objectType))
	}
	return &EntityBuilder{
		w:          w,
		schema:     schema,
		objectType: objectType,
		attrs:      map[string]string{},
	}, nil
}

// EntityBuilder accumulates attributes for one object-type instance.
type EntityBuilder struct {
	w          *Writer
	schema     string
	objectType string
	attrs      map[string]string
}

// Set stamps a plain string attribute onto the entity under construction.
func (b *EntityBuilder) Set(key, value string) *EntityBuilder {
	b.attrs[key] = value
	return b
}

// Commit interns the accumulated attributes, stamps axi_schema, and creates
// the entity. All-or-nothing: no partial entity is left if this were ever
// to fail, since every step up to Add is pure bookkeeping (§7.3).
func (b *EntityBuilder) Commit() (entitystore.ID, error) {
	db := b.w.db
	typeID := db.TypeID(b.objectType)
	attrs := make(map[intern.ID]intern.ID, len(b.attrs)+1)
	attrs[db.TypeID(metaplane.AttrAxiSchema)] = db.TypeID(b.schema)
	for k, v := range b.attrs {
		attrs[db.TypeID(k)] = db.TypeID(v)
	}
	return db.Entities.Add(typeID, attrs), nil
}

// FactBuilder starts construction of a fact node instantiating relation in
// schema. The relation must be declared in the meta-plane index; the
// builder enforces the declared field set exactly once Commit is called.
func (w *Writer) FactBuilder(schema, relation string) (*FactBuilder, error) {
	si, ok := w.idx.Schemas[schema]
	if !ok {
		return nil, invariantf("fact_builder", fmt.Sprintf("unknown schema %q", schema))
	}
	sig, ok := si.RelationDecls[relation]
	if !ok {
		return nil, invariantf("fact_builder", fmt.Sprintf("schema %q has no relation %q", schema, relation))
	}
	return &FactBuilder{
		w:        w,
		si:       si,
		schema:   schema,
		relation: relation,
		sig:      sig,
		fields:   map[string]entitystore.ID{},
	}, nil
}

// FactBuilder accumulates field values for one relation instance.
type FactBuilder struct {
	w        *Writer
	si       *metaplane.SchemaIndex
	schema   string
	relation string
	sig      metaplane.RelationSignature
	fields   map[string]entitystore.ID
	ctx      *entitystore.ID
}

// SetField binds field to the given entity, which must already exist.
func (b *FactBuilder) SetField(field string, value entitystore.ID) *FactBuilder {
	b.fields[field] = value
	if field == "ctx" {
		v := value
		b.ctx = &v
	}
	return b
}

// Commit validates the declared field set exactly, subtyping on every
// field value, and the context-mirror invariant, then creates the fact
// node with its content-addressed name, a fact_of edge back to the
// relation decl, and (when a ctx field is present) an axi_fact_in_context
// edge (§3 "Fact nodes", §3 invariant 3).
func (b *FactBuilder) Commit() (entitystore.ID, error) {
	db := b.w.db

	declared := make(map[string]bool, len(b.sig.Fields))
	for _, f := range b.sig.Fields {
		declared[f.Name] = true
		target, ok := b.fields[f.Name]
		if !ok {
			return 0, invariantf("fact_builder", fmt.Sprintf("%s.%s: missing required field %q", b.schema, b.relation, f.Name))
		}
		targetType, ok := db.Entities.GetType(target)
		if !ok {
			return 0, invariantf("fact_builder", fmt.Sprintf("%s.%s: field %q target %d does not exist", b.schema, b.relation, f.Name, target))
		}
		if f.Type != "Entity" {
			targetTypeName := db.TypeName(targetType)
			if !b.si.IsSubtypeOf(targetTypeName, f.Type) {
				return 0, invariantf("fact_builder", fmt.Sprintf("%s.%s: field %q target type %s is not a subtype of %s", b.schema, b.relation, f.Name, targetTypeName, f.Type))
			}
		}
	}
	for name := range b.fields {
		if name != "ctx" && !declared[name] {
			return 0, invariantf("fact_builder", fmt.Sprintf("%s.%s: undeclared field %q", b.schema, b.relation, name))
		}
	}

	if b.ctx != nil {
		ctxType, ok := db.Entities.GetType(*b.ctx)
		if !ok {
			return 0, invariantf("fact_builder", fmt.Sprintf("%s.%s: ctx target %d does not exist", b.schema, b.relation, *b.ctx))
		}
		ctxTypeName := db.TypeName(ctxType)
		if ctxTypeName != metaplane.TypeContext && ctxTypeName != metaplane.TypeWorld && !b.si.IsSubtypeOf(ctxTypeName, metaplane.TypeContext) {
			return 0, invariantf("fact_builder", fmt.Sprintf("%s.%s: ctx target type %s is not Context/World", b.schema, b.relation, ctxTypeName))
		}
	}

	names := make([]string, 0, len(b.fields))
	for name := range b.fields {
		names = append(names, name)
	}
	sort.Strings(names)
	pairs := make([]digest.Pair, 0, len(names))
	for _, name := range names {
		pairs = append(pairs, digest.Pair{Field: name, Value: fmt.Sprintf("%d", b.fields[name])})
	}
	factName := digest.OfFact(b.schema, b.relation, pairs)

	attrs := map[intern.ID]intern.ID{
		db.TypeID(metaplane.AttrName):        db.TypeID(factName),
		db.TypeID(metaplane.AttrAxiSchema):   db.TypeID(b.schema),
		db.TypeID(metaplane.AttrAxiRelation): db.TypeID(b.relation),
	}
	factType := db.TypeID(b.relation)
	factID := db.Entities.Add(factType, attrs)
	db.Entities.MarkVirtualType(factID, db.TypeID(metaplane.VirtualFactNode))

	for name, target := range b.fields {
		fieldEdge := db.TypeID(name)
		if _, err := db.Relations.Add(factID, fieldEdge, target, 1.0, nil); err != nil {
			return 0, fmt.Errorf("checkeddb: fact %s field %q edge: %w", factName, name, err)
		}
	}

	if b.ctx != nil {
		ctxEdge := db.TypeID(metaplane.EdgeFactInContext)
		if _, err := db.Relations.Add(factID, ctxEdge, *b.ctx, 1.0, nil); err != nil {
			return 0, fmt.Errorf("checkeddb: fact %s context edge: %w", factName, err)
		}
	}

	if relEnt, ok := b.relationDeclEntity(); ok {
		factOfEdge := db.TypeID(metaplane.EdgeFactOf)
		if _, err := db.Relations.Add(factID, factOfEdge, relEnt, 1.0, nil); err != nil {
			return 0, fmt.Errorf("checkeddb: fact %s fact_of edge: %w", factName, err)
		}
	}

	return factID, nil
}

// relationDeclEntity finds the reified AxiMetaRelationDecl entity this
// fact's relation corresponds to, so Commit can attach the fact_of edge.
func (b *FactBuilder) relationDeclEntity() (entitystore.ID, bool) {
	db := b.w.db
	relTypeID, ok := db.Interner.IDOf(metaplane.TypeRelationDecl)
	if !ok {
		return 0, false
	}
	nameKey, ok := db.Interner.IDOf(metaplane.AttrName)
	if !ok {
		return 0, false
	}
	for _, raw := range db.Entities.ByType(relTypeID).ToSlice() {
		ent := entitystore.ID(raw)
		v, ok := db.Entities.GetAttr(ent, nameKey)
		if ok && db.Interner.Lookup(v) == b.relation {
			return ent, true
		}
	}
	return 0, false
}

// CommitIntoExisting reconciles the accumulated fields onto an existing
// fact entity: missing fields are added, a field already present with a
// different value is an error (§4.G "commit_into_existing").
func (b *FactBuilder) CommitIntoExisting(id entitystore.ID) error {
	db := b.w.db
	if _, ok := db.Entities.GetType(id); !ok {
		return invariantf("commit_into_existing", fmt.Sprintf("entity %d does not exist", id))
	}
	for name, target := range b.fields {
		fieldEdge := db.TypeID(name)
		existing := db.Relations.Outgoing(id, fieldEdge)
		if len(existing) == 0 {
			if _, err := db.Relations.Add(id, fieldEdge, target, 1.0, nil); err != nil {
				return fmt.Errorf("checkeddb: commit_into_existing field %q: %w", name, err)
			}
			continue
		}
		row, _ := db.Relations.Row(existing[0])
		if row.Target != target {
			return invariantf("commit_into_existing", fmt.Sprintf("field %q already has a conflicting value", name))
		}
	}
	return nil
}

// AddEdgeChecked creates a labeled edge between two existing entities,
// enforcing endpoint existence and a finite confidence in [0,1] (§4.C,
// §3 invariant 2).
func (w *Writer) AddEdgeChecked(source entitystore.ID, relType string, target entitystore.ID, confidence float64, attrs map[string]string) error {
	db := w.db
	if _, ok := db.Entities.GetType(source); !ok {
		return invariantf("add_edge_checked", fmt.Sprintf("source %d does not exist", source))
	}
	if _, ok := db.Entities.GetType(target); !ok {
		return invariantf("add_edge_checked", fmt.Sprintf("target %d does not exist", target))
	}
	if math.IsNaN(confidence) || math.IsInf(confidence, 0) || confidence < 0 || confidence > 1 {
		return invariantf("add_edge_checked", fmt.Sprintf("confidence %v out of [0,1]", confidence))
	}
	var internedAttrs map[intern.ID]intern.ID
	if len(attrs) > 0 {
		internedAttrs = make(map[intern.ID]intern.ID, len(attrs))
		for k, v := range attrs {
			internedAttrs[db.TypeID(k)] = db.TypeID(v)
		}
	}
	relTypeID := db.TypeID(relType)
	if _, err := db.Relations.Add(source, relTypeID, target, confidence, internedAttrs); err != nil {
		return fmt.Errorf("checkeddb: add_edge_checked: %w", err)
	}
	return nil
}
