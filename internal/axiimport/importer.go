package axiimport

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/axiograph/axiograph/internal/checkeddb"
	"github.com/axiograph/axiograph/internal/entitystore"
	"github.com/axiograph/axiograph/internal/intern"
	"github.com/axiograph/axiograph/internal/metaplane"
	"github.com/axiograph/axiograph/internal/pathdb"
)

// Import reifies a parsed Module into db: schemas, theories, and their
// declarations become ordinary meta-plane entities/edges (§3 "Meta-plane
// (reified)"), and instance object/fact literals become object-type
// entities and checked fact nodes (§4.G). Import runs schema/theory
// reification first, rebuilds the meta-plane index, then hands instances
// to a checkeddb.Writer so every fact is validated at construction time.
func Import(db *pathdb.DB, mod *Module) error {
	imp := &importer{db: db}

	for _, s := range mod.Schemas {
		if err := imp.reifySchema(s); err != nil {
			return err
		}
	}
	for _, th := range mod.Theories {
		if err := imp.reifyTheory(th); err != nil {
			return err
		}
	}

	idx, err := metaplane.Build(db)
	if err != nil {
		return fmt.Errorf("axiimport: build meta-plane index: %w", err)
	}
	w := checkeddb.NewWriter(db, idx)

	for _, inst := range mod.Instances {
		if err := importInstance(w, idx, inst); err != nil {
			return fmt.Errorf("axiimport: instance %s: %w", inst.Name, err)
		}
	}
	return nil
}

type importer struct {
	db *pathdb.DB
}

func (imp *importer) add(typ string, attrs map[string]string) entitystore.ID {
	db := imp.db
	m := make(map[intern.ID]intern.ID, len(attrs))
	for k, v := range attrs {
		m[db.TypeID(k)] = db.TypeID(v)
	}
	return db.Entities.Add(db.TypeID(typ), m)
}

func (imp *importer) edge(src entitystore.ID, rel string, dst entitystore.ID) error {
	_, err := imp.db.Relations.Add(src, imp.db.TypeID(rel), dst, 1.0, nil)
	return err
}

func (imp *importer) reifySchema(s *Schema) error {
	schemaEnt := imp.add(metaplane.TypeSchema, map[string]string{metaplane.AttrName: s.Name})

	objEnts := map[string]entitystore.ID{}
	for _, obj := range s.Objects {
		ent := imp.add(metaplane.TypeObjectType, map[string]string{metaplane.AttrName: obj})
		objEnts[obj] = ent
		if err := imp.edge(schemaEnt, metaplane.EdgeSchemaObjectType, ent); err != nil {
			return fmt.Errorf("axiimport: schema %s object %s: %w", s.Name, obj, err)
		}
	}

	for _, sub := range s.Subtypes {
		ent := imp.add(metaplane.TypeSubtypeDecl, map[string]string{
			metaplane.AttrSubType:   sub.Sub,
			metaplane.AttrSuperType: sub.Super,
		})
		if err := imp.edge(schemaEnt, metaplane.EdgeSchemaSubtype, ent); err != nil {
			return fmt.Errorf("axiimport: schema %s subtype %s<%s: %w", s.Name, sub.Sub, sub.Super, err)
		}
	}

	for _, rel := range s.Relations {
		relEnt := imp.add(metaplane.TypeRelationDecl, map[string]string{metaplane.AttrName: rel.Name})
		if err := imp.edge(schemaEnt, metaplane.EdgeSchemaRelation, relEnt); err != nil {
			return fmt.Errorf("axiimport: schema %s relation %s: %w", s.Name, rel.Name, err)
		}
		for i, f := range rel.Fields {
			fieldEnt := imp.add(metaplane.TypeFieldDecl, map[string]string{
				metaplane.AttrName:       f.Name,
				metaplane.AttrFieldType:  f.Type,
				metaplane.AttrFieldIndex: strconv.Itoa(i),
			})
			if err := imp.edge(relEnt, metaplane.EdgeRelationField, fieldEnt); err != nil {
				return fmt.Errorf("axiimport: relation %s field %s: %w", rel.Name, f.Name, err)
			}
		}
	}
	return nil
}

func (imp *importer) reifyTheory(th *Theory) error {
	schemaTypeID, ok := imp.db.Interner.IDOf(metaplane.TypeSchema)
	if !ok {
		return fmt.Errorf("axiimport: theory %s: no schemas reified yet", th.Name)
	}
	nameKey, _ := imp.db.Interner.IDOf(metaplane.AttrName)
	var schemaEnt entitystore.ID
	found := false
	for _, raw := range imp.db.Entities.ByType(schemaTypeID).ToSlice() {
		ent := entitystore.ID(raw)
		if v, ok := imp.db.Entities.GetAttr(ent, nameKey); ok && imp.db.Interner.Lookup(v) == th.OnSchema {
			schemaEnt, found = ent, true
			break
		}
	}
	if !found {
		return fmt.Errorf("axiimport: theory %s references unknown schema %s", th.Name, th.OnSchema)
	}

	theoryEnt := imp.add(metaplane.TypeTheory, map[string]string{metaplane.AttrName: th.Name})
	if err := imp.edge(schemaEnt, metaplane.EdgeSchemaTheory, theoryEnt); err != nil {
		return fmt.Errorf("axiimport: theory %s: %w", th.Name, err)
	}

	for _, c := range th.Constraints {
		attrs := map[string]string{metaplane.AttrConstraintKind: c.Kind}
		if c.Name != "" {
			attrs[metaplane.AttrName] = c.Name
		}
		if c.Relation != "" {
			attrs[metaplane.AttrAxiRelation] = c.Relation
		}
		if c.SrcField != "" {
			attrs[metaplane.AttrSrcField] = c.SrcField
		}
		if c.DstField != "" {
			attrs[metaplane.AttrDstField] = c.DstField
		}
		if c.Max != 0 {
			attrs[metaplane.AttrMax] = strconv.Itoa(c.Max)
		}
		if c.WhereField != "" {
			attrs[metaplane.AttrWhereField] = c.WhereField
		}
		if len(c.WhereInValues) > 0 {
			attrs[metaplane.AttrWhereInValues] = strings.Join(c.WhereInValues, ",")
		}
		if len(c.KeyFields) > 0 {
			attrs[metaplane.AttrFields] = strings.Join(c.KeyFields, ",")
		}
		if c.RuleName != "" {
			attrs[metaplane.AttrRuleName] = c.RuleName
		}
		if c.Text != "" {
			attrs[metaplane.AttrText] = c.Text
		}
		cEnt := imp.add(metaplane.TypeConstraint, attrs)
		if err := imp.edge(theoryEnt, metaplane.EdgeTheoryConstraint, cEnt); err != nil {
			return fmt.Errorf("axiimport: theory %s constraint: %w", th.Name, err)
		}
	}

	for _, rw := range th.Rewrites {
		var varParts []string
		for _, v := range rw.Vars {
			if v.IsPath {
				varParts = append(varParts, fmt.Sprintf("%s:Path(%s,%s)", v.Name, v.From, v.To))
			} else {
				varParts = append(varParts, fmt.Sprintf("%s:%s", v.Name, v.Type))
			}
		}
		rEnt := imp.add(metaplane.TypeRewriteRule, map[string]string{
			metaplane.AttrName:        rw.Name,
			metaplane.AttrOrientation: rw.Orientation,
			metaplane.AttrVars:        strings.Join(varParts, ";"),
			metaplane.AttrLHS:         rw.LHS,
			metaplane.AttrRHS:         rw.RHS,
		})
		if err := imp.edge(theoryEnt, metaplane.EdgeTheoryRewrite, rEnt); err != nil {
			return fmt.Errorf("axiimport: theory %s rewrite %s: %w", th.Name, rw.Name, err)
		}
	}
	return nil
}

// importInstance creates one entity per declared object name, then one
// validated fact node per fact literal, resolving each field value by the
// name of an object declared in the same instance. Fact nodes are not
// registered by name, so a field value cannot refer to another fact.
func importInstance(w *checkeddb.Writer, idx *metaplane.Index, inst *Instance) error {
	if _, ok := idx.Schemas[inst.OfSchema]; !ok {
		return fmt.Errorf("instance of unknown schema %s", inst.OfSchema)
	}

	byName := map[string]entitystore.ID{}
	for objType, names := range inst.Objects {
		for _, name := range names {
			eb, err := w.EntityBuilder(inst.OfSchema, objType)
			if err != nil {
				return fmt.Errorf("object %s (%s): %w", name, objType, err)
			}
			id, err := eb.Set(metaplane.AttrName, name).Commit()
			if err != nil {
				return fmt.Errorf("object %s (%s): %w", name, objType, err)
			}
			byName[name] = id
		}
	}

	for relName, facts := range inst.Facts {
		for _, fact := range facts {
			fb, err := w.FactBuilder(inst.OfSchema, relName)
			if err != nil {
				return fmt.Errorf("fact %s: %w", relName, err)
			}
			for field, valueName := range fact.Fields {
				target, ok := byName[valueName]
				if !ok {
					return fmt.Errorf("fact %s field %s: unknown object %q", relName, field, valueName)
				}
				fb.SetField(field, target)
			}
			if _, err := fb.Commit(); err != nil {
				return fmt.Errorf("fact %s: %w", relName, err)
			}
		}
	}
	return nil
}
