package metaplane

import (
	"fmt"

	"github.com/axiograph/axiograph/internal/entitystore"
	"github.com/axiograph/axiograph/internal/pathdb"
	"github.com/axiograph/axiograph/internal/relstore"
)

// TypingError is one field-level typing defect found by TypecheckAxiFacts.
// Every error for a given fact node is reported in one pass (§9
// axi_semantics: "collect all diagnostics", not fail on first).
type TypingError struct {
	FactEntity entitystore.ID
	Schema     string
	Relation   string
	Field      string
	Problem    string
}

func (e TypingError) Error() string {
	return fmt.Sprintf("fact %d (%s.%s field %q): %s", e.FactEntity, e.Schema, e.Relation, e.Field, e.Problem)
}

// TypingReport is the accumulated result of TypecheckAxiFacts.
type TypingReport struct {
	Errors []TypingError
}

// OK reports whether the report contains no errors.
func (r *TypingReport) OK() bool { return len(r.Errors) == 0 }

// TypecheckAxiFacts implements §4.F's typecheck_axi_facts / the
// "Typecheck soundness" property of §8: for every entity carrying
// axi_relation, look up the schema and relation, then for each declared
// field check exactly one outgoing edge whose target's type is a declared
// subtype of the field type.
func TypecheckAxiFacts(db *pathdb.DB, idx *Index) (*TypingReport, error) {
	report := &TypingReport{}

	schemaKey, ok1 := db.Interner.IDOf(AttrAxiSchema)
	relKey, ok2 := db.Interner.IDOf(AttrAxiRelation)
	if !ok1 || !ok2 {
		return report, nil // nothing reified yet
	}

	factTag := db.Interner.Intern(VirtualFactNode)
	for _, raw := range db.Entities.VirtualType(factTag).ToSlice() {
		fact := entitystore.ID(raw)
		schemaVal, ok := db.Entities.GetAttr(fact, schemaKey)
		if !ok {
			continue
		}
		relVal, ok := db.Entities.GetAttr(fact, relKey)
		if !ok {
			continue
		}
		schemaName := db.Interner.Lookup(schemaVal)
		relName := db.Interner.Lookup(relVal)

		si, ok := idx.Schemas[schemaName]
		if !ok {
			report.Errors = append(report.Errors, TypingError{FactEntity: fact, Schema: schemaName, Relation: relName, Problem: "unknown schema"})
			continue
		}
		sig, ok := si.RelationDecls[relName]
		if !ok {
			report.Errors = append(report.Errors, TypingError{FactEntity: fact, Schema: schemaName, Relation: relName, Problem: "unknown relation"})
			continue
		}

		for _, field := range sig.Fields {
			checkField(db, si, fact, schemaName, relName, field, report)
		}
	}
	return report, nil
}

func checkField(db *pathdb.DB, si *SchemaIndex, fact entitystore.ID, schemaName, relName string, field FieldSig, report *TypingReport) {
	fieldEdge, ok := db.Interner.IDOf(field.Name)
	if !ok {
		report.Errors = append(report.Errors, TypingError{FactEntity: fact, Schema: schemaName, Relation: relName, Field: field.Name, Problem: "missing field edge"})
		return
	}
	rows := db.Relations.Outgoing(fact, fieldEdge)
	switch len(rows) {
	case 0:
		report.Errors = append(report.Errors, TypingError{FactEntity: fact, Schema: schemaName, Relation: relName, Field: field.Name, Problem: "missing field edge"})
		return
	case 1:
		// exactly one, continue to type check below
	default:
		report.Errors = append(report.Errors, TypingError{FactEntity: fact, Schema: schemaName, Relation: relName, Field: field.Name, Problem: "multi-valued field"})
		return
	}
	row, _ := db.Relations.Row(rows[0])
	targetType, ok := db.Entities.GetType(row.Target)
	if !ok {
		report.Errors = append(report.Errors, TypingError{FactEntity: fact, Schema: schemaName, Relation: relName, Field: field.Name, Problem: "field target does not exist"})
		return
	}
	targetTypeName := db.Interner.Lookup(targetType)
	if field.Type == "Entity" {
		return // Entity accepts any object type
	}
	if !si.IsSubtypeOf(targetTypeName, field.Type) {
		report.Errors = append(report.Errors, TypingError{
			FactEntity: fact, Schema: schemaName, Relation: relName, Field: field.Name,
			Problem: fmt.Sprintf("target type %s is not a declared subtype of %s", targetTypeName, field.Type),
		})
	}
}

// ContextInvariant implements §3 invariant 3 / §8's "Context invariant":
// every axi_fact_in_context edge must target a Context, World, or declared
// Context subtype, and must equal the `ctx` field when one is present.
func ContextInvariant(db *pathdb.DB, idx *Index) error {
	edgeID, ok := db.Interner.IDOf(EdgeFactInContext)
	if !ok {
		return nil
	}
	ctxFieldID, hasCtxField := db.Interner.IDOf("ctx")

	for i := 0; i < db.Relations.Len(); i++ {
		rowID := relstore.ID(i)
		row, ok := db.Relations.Row(rowID)
		if !ok || row.RelType != edgeID {
			continue
		}
		targetType, ok := db.Entities.GetType(row.Target)
		if !ok {
			return fmt.Errorf("metaplane: axi_fact_in_context target %d does not exist", row.Target)
		}
		targetTypeName := db.Interner.Lookup(targetType)
		if !isContextType(targetTypeName, idx) {
			return fmt.Errorf("metaplane: axi_fact_in_context target %d has non-Context type %s", row.Target, targetTypeName)
		}
		if !hasCtxField {
			continue
		}
		for _, ctxRowID := range db.Relations.Outgoing(row.Source, ctxFieldID) {
			ctxRow, ok := db.Relations.Row(ctxRowID)
			if !ok {
				continue
			}
			if ctxRow.Target != row.Target {
				return fmt.Errorf("metaplane: fact %d ctx field targets %d but axi_fact_in_context targets %d", row.Source, ctxRow.Target, row.Target)
			}
		}
	}
	return nil
}

func isContextType(typeName string, idx *Index) bool {
	if typeName == TypeContext || typeName == TypeWorld {
		return true
	}
	for _, si := range idx.Schemas {
		if si.IsSubtypeOf(typeName, TypeContext) {
			return true
		}
	}
	return false
}
